package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/backup"
	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/schedule"
)

// RunBackup runs exactly one backup and prints the result to out. Canceling
// ctx does not interrupt a backup that has already started.
func RunBackup(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}

	svc, err := NewService(ctx, cfg, TriggerManual, log)
	if err != nil {
		return err
	}
	sched := schedule.New(svc.Run, log, schedule.WithRunTimeout(cfg.Backup.Timeout))

	log.Info("=== Manual Backup Started ===")
	if err := sched.RunNow(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("manual backup failed: %w", err)
	}

	res := svc.Last()
	fmt.Fprintf(out, "backup OK: file=%s size=%s total=%d duration=%s\n",
		res.Filename,
		formatSize(res.Size),
		res.Remaining,
		res.Duration.Round(time.Millisecond),
	)
	if res.MirrorErr != nil {
		fmt.Fprintf(out, "mirror failed: %v\n", res.MirrorErr)
	} else if res.MirrorLocation != "" {
		fmt.Fprintf(out, "mirrored to %s\n", res.MirrorLocation)
	}
	return nil
}

func formatSize(n int64) string {
	if n == backup.UnknownSize {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}
