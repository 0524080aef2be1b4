package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/backup"
	"github.com/dev-tams/sqlbackup/internal/compression"
	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/storage/local"
)

type restorer interface {
	Restore(ctx context.Context, conn config.DatabaseConfig, src io.Reader) error
}

// RunRestore loads the named artifact back into the configured database.
func RunRestore(ctx context.Context, cfg *config.Config, name string, log *zap.Logger, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r := backup.MySQLRestorer{Binary: cfg.Backup.RestoreBinary, Log: log}
	return restoreArtifact(ctx, cfg, name, r, out)
}

func restoreArtifact(ctx context.Context, cfg *config.Config, name string, r restorer, out io.Writer) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("restore needs an artifact name")
	}

	st := local.New("local", cfg.Backup.Path, nil)
	a, err := pickArtifact(ctx, st, name)
	if err != nil {
		return err
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()

	gr, err := compression.Open(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	if err := r.Restore(ctx, cfg.Database, gr); err != nil {
		return err
	}

	fmt.Fprintf(out, "restore OK: db=%s from=%s sql=%s\n", cfg.Database.Name, a.Name, humanize.Bytes(uint64(gr.Uncompressed())))
	return nil
}
