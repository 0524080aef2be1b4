package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/config"
)

// MySQLRestorer replays a plain SQL dump through the mysql client, using the
// same option-file credential channel as MySQLDumper.
type MySQLRestorer struct {
	Binary  string
	TempDir string
	Log     *zap.Logger
}

func (r MySQLRestorer) binary() string {
	if r.Binary == "" {
		return "mysql"
	}
	return r.Binary
}

func restoreArgs(defaultsFile string, conn config.DatabaseConfig) []string {
	return []string{
		"--defaults-extra-file=" + defaultsFile,
		conn.Name,
	}
}

// Restore streams src into the database named by conn. The client's exit
// status decides success.
func (r MySQLRestorer) Restore(ctx context.Context, conn config.DatabaseConfig, src io.Reader) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	credFile, err := writeDefaultsFile(r.TempDir, conn)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(credFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove credentials file", zap.String("path", credFile), zap.Error(err))
		}
	}()

	cmd := exec.CommandContext(ctx, r.binary(), restoreArgs(credFile, conn)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%s stdin: %w", r.binary(), err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start %s: %w", r.binary(), err)
	}

	n, copyErr := io.Copy(stdin, src)
	_ = stdin.Close()
	waitErr := cmd.Wait()

	diag := strings.TrimSpace(stderr.String())
	if waitErr != nil {
		return fmt.Errorf("restore of %s failed: %w: %s", conn.Name, waitErr, diag)
	}
	if copyErr != nil {
		return fmt.Errorf("stream restore input: %w", copyErr)
	}
	if diag != "" {
		log.Warn("restore reported diagnostics", zap.String("database", conn.Name), zap.String("stderr", diag))
	}

	log.Debug("restore finished", zap.String("database", conn.Name), zap.Int64("bytes", n))
	return nil
}
