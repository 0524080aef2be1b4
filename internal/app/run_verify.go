package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dev-tams/sqlbackup/internal/compression"
	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/storage/local"
	"github.com/dev-tams/sqlbackup/internal/storage/prunable"
)

// RunVerify decompresses one artifact end to end to prove the gzip stream is
// intact. An empty name selects the newest artifact.
func RunVerify(ctx context.Context, cfg *config.Config, name string, out io.Writer) error {
	st := local.New("local", cfg.Backup.Path, nil)

	a, err := pickArtifact(ctx, st, strings.TrimSpace(name))
	if err != nil {
		return err
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.Name, err)
	}
	defer f.Close()

	n, err := compression.Gunzip(io.Discard, f)
	if err != nil {
		return fmt.Errorf("verify %s: %w", a.Name, err)
	}

	fmt.Fprintf(out, "verify OK: file=%s compressed=%s uncompressed=%s\n",
		a.Name,
		humanize.Bytes(uint64(a.Size)),
		humanize.Bytes(uint64(n)),
	)
	return nil
}

func pickArtifact(ctx context.Context, st *local.Storage, name string) (prunable.Artifact, error) {
	if name != "" {
		if name != filepath.Base(name) {
			return prunable.Artifact{}, fmt.Errorf("%s: give the artifact name, not a path", name)
		}
		if !strings.HasSuffix(name, prunable.ArtifactExt) {
			return prunable.Artifact{}, fmt.Errorf("%s is not a backup artifact (expected %s suffix)", name, prunable.ArtifactExt)
		}
		return st.Stat(ctx, name)
	}

	artifacts, err := st.List(ctx)
	if err != nil {
		return prunable.Artifact{}, err
	}
	if len(artifacts) == 0 {
		return prunable.Artifact{}, fmt.Errorf("no backups in %s", st.BasePath())
	}
	return artifacts[0], nil
}
