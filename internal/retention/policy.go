// Package retention decides which artifacts have outlived the retention
// window and removes them from a store.
package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/storage/prunable"
)

type Policy struct {
	Retention time.Duration
}

func NewPolicy(d time.Duration) (Policy, error) {
	if d <= 0 {
		return Policy{}, fmt.Errorf("retention must be > 0, got %s", d)
	}
	return Policy{Retention: d}, nil
}

// ShouldDelete reports whether the artifact is strictly older than the window.
// Age comes from the filesystem modification time, not the name.
func (p Policy) ShouldDelete(a prunable.Artifact, now time.Time) bool {
	return now.Sub(a.ModTime) > p.Retention
}

// Sweep deletes every expired artifact in st and returns how many were removed.
// A failed delete is logged and skipped; only a failure to list is returned.
func (p Policy) Sweep(ctx context.Context, st prunable.Prunable, now time.Time, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if p.Retention <= 0 {
		return 0, fmt.Errorf("retention must be > 0, got %s", p.Retention)
	}

	artifacts, err := st.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("retention list: %w", err)
	}

	deleted := 0
	for _, a := range artifacts {
		if !p.ShouldDelete(a, now) {
			continue
		}
		if err := st.Delete(ctx, a.Name); err != nil {
			log.Warn("failed to delete old backup",
				zap.String("artifact", a.Name),
				zap.Error(err),
			)
			continue
		}
		deleted++
		log.Info("deleted old backup",
			zap.String("artifact", a.Name),
			zap.Duration("age", now.Sub(a.ModTime).Round(time.Second)),
		)
	}

	if deleted > 0 {
		log.Info("cleanup completed", zap.Int("deleted", deleted))
	} else {
		log.Info("no old backups to delete")
	}
	return deleted, nil
}
