package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/storage/local"
	"github.com/dev-tams/sqlbackup/internal/storage/prunable"
)

// Executor produces exactly one new artifact per CreateBackup call.
type Executor struct {
	dumper Dumper
	store  *local.Storage
	conn   config.DatabaseConfig
	loc    *time.Location
	now    func() time.Time
	log    *zap.Logger
}

func NewExecutor(d Dumper, st *local.Storage, conn config.DatabaseConfig, loc *time.Location, log *zap.Logger) *Executor {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		dumper: d,
		store:  st,
		conn:   conn,
		loc:    loc,
		now:    time.Now,
		log:    log,
	}
}

// CreateBackup streams dump -> gzip -> temp file and publishes the artifact
// only when every stage succeeded. On failure nothing is left in the store.
// The returned artifact's Size is UnknownSize; measuring is the caller's job.
func (e *Executor) CreateBackup(ctx context.Context) (prunable.Artifact, error) {
	started := e.now().In(e.loc)
	name := ArtifactName(e.conn.Name, started)

	w, dest, err := e.store.OpenWriter(ctx, name)
	if err != nil {
		return prunable.Artifact{}, fmt.Errorf("open artifact: %w", err)
	}

	e.log.Info("starting backup", zap.String("database", e.conn.Name), zap.String("artifact", name))

	r, err := e.dumper.Dump(ctx, e.conn)
	if err != nil {
		_ = w.Abort()
		return prunable.Artifact{}, err
	}

	var cs closeStack
	stream := gzipReader(r, &cs)

	n, copyErr := io.Copy(w, stream)

	// close order matters: pipe first so the gzip goroutine can exit, then the
	// dump so the process is reaped
	cs.closeAll()
	dumpErr := r.Close()

	if copyErr != nil || dumpErr != nil {
		if abortErr := w.Abort(); abortErr != nil {
			e.log.Warn("failed to discard partial artifact", zap.String("artifact", name), zap.Error(abortErr))
		}
		return prunable.Artifact{}, e.failure(ctx, copyErr, dumpErr)
	}

	if err := w.Close(); err != nil {
		return prunable.Artifact{}, fmt.Errorf("finalize artifact %s: %w", name, err)
	}

	e.log.Info("backup created", zap.String("artifact", name), zap.Int64("bytes_written", n))
	return prunable.Artifact{
		Name:    name,
		Path:    dest,
		Size:    UnknownSize,
		ModTime: started,
	}, nil
}

func (e *Executor) failure(ctx context.Context, copyErr, dumpErr error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("backup timed out for %s: %w", e.conn.Name, errors.Join(ctx.Err(), dumpErr))
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("backup canceled for %s: %w", e.conn.Name, errors.Join(ctx.Err(), dumpErr))
	case dumpErr != nil:
		// the dump's own failure explains a broken copy better than the pipe error
		return dumpErr
	default:
		return fmt.Errorf("write backup: %w", copyErr)
	}
}
