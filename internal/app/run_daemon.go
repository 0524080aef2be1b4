package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/schedule"
)

// RunDaemon runs backups on the configured schedule until ctx is canceled,
// then waits for an in-flight backup to finish before returning.
func RunDaemon(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}

	svc, err := NewService(ctx, cfg, TriggerScheduled, log)
	if err != nil {
		return err
	}

	sched := schedule.New(svc.Run, log, schedule.WithRunTimeout(cfg.Backup.Timeout))
	spec := schedule.Spec{Expr: cfg.Schedule.Cron, Timezone: cfg.Schedule.Timezone}
	if err := sched.Start(ctx, spec); err != nil {
		return err
	}

	log.Info("MySQL backup service is running", zap.String("database", cfg.Database.Name))

	<-ctx.Done()
	log.Info("shutdown requested")

	// the in-flight run is bounded by BACKUP_TIMEOUT when one is configured
	if err := sched.Stop(context.Background()); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	log.Info("backup service stopped gracefully")
	return nil
}
