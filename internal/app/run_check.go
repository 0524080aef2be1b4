package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/dev-tams/sqlbackup/internal/backup"
	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/schedule"
)

const pingTimeout = 15 * time.Second

var pingDatabase = backup.Ping

// RunCheck validates the configuration, prints the non-secret settings,
// inspects the backup directory and pings the database.
func RunCheck(ctx context.Context, cfg *config.Config, out io.Writer) error {
	fmt.Fprintln(out, "=== Testing Backup Configuration ===")

	fmt.Fprintln(out, "1. validating configuration")
	if err := cfg.Validate(); err != nil {
		return err
	}
	spec := schedule.Spec{Expr: cfg.Schedule.Cron, Timezone: cfg.Schedule.Timezone}
	parsed, err := schedule.Parse(spec)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "   configuration is valid")

	fmt.Fprintln(out, "2. configuration details")
	fmt.Fprintf(out, "   database:   %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	fmt.Fprintf(out, "   backups:    %s\n", cfg.Backup.Path)
	fmt.Fprintf(out, "   retention:  %d days\n", cfg.Backup.RetentionDays)
	fmt.Fprintf(out, "   schedule:   %s (%s, %s)\n", parsed.Spec.Expr, schedule.Describe(parsed.Spec.Expr), parsed.Spec.Timezone)
	fmt.Fprintf(out, "   next run:   %s\n", parsed.Next(time.Now()).Format(time.RFC3339))
	if cfg.Mirror.S3.Enabled() {
		fmt.Fprintf(out, "   mirror:     s3://%s/%s\n", cfg.Mirror.S3.Bucket, cfg.Mirror.S3.Prefix)
	}

	fmt.Fprintln(out, "3. checking backup directory")
	info, err := os.Stat(cfg.Backup.Path)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "   backup directory exists: %s\n", cfg.Backup.Path)
	case err == nil:
		return fmt.Errorf("backup path %s is not a directory", cfg.Backup.Path)
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(out, "   backup directory will be created: %s\n", cfg.Backup.Path)
	default:
		return fmt.Errorf("backup path: %w", err)
	}

	fmt.Fprintln(out, "4. testing MySQL connection")
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pingDatabase(pingCtx, cfg.Database); err != nil {
		return fmt.Errorf("mysql connection failed: %w", err)
	}
	fmt.Fprintln(out, "   MySQL connection successful")

	fmt.Fprintln(out, "=== All Tests Passed ===")
	return nil
}
