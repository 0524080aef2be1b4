package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/backup"
	"github.com/dev-tams/sqlbackup/internal/retention"
	"github.com/dev-tams/sqlbackup/internal/storage"
	"github.com/dev-tams/sqlbackup/internal/storage/local"
	"github.com/dev-tams/sqlbackup/internal/storage/prunable"
)

type Stage string

const (
	StageEnsuringDirectory Stage = "ensuring_directory"
	StageDumping           Stage = "dumping"
	StageMeasuring         Stage = "measuring"
	StageMirroring         Stage = "mirroring"
	StageSweeping          Stage = "sweeping"
	StageListing           Stage = "listing"
	StageCompleted         Stage = "completed"
)

// Outcome summarizes one workflow run. Stage is the last stage entered, so
// for a failed run it names the stage that failed. Size is
// backup.UnknownSize when the artifact could not be measured.
type Outcome struct {
	Success        bool
	Filename       string
	Path           string
	Size           int64
	Remaining      int
	Deleted        int
	Stage          Stage
	Err            error
	MirrorLocation string
	MirrorErr      error
	Duration       time.Duration
}

// Failure returns the failure as an error, or nil for a successful run.
func (o Outcome) Failure() error {
	if o.Success {
		return nil
	}
	if o.Err == nil {
		return fmt.Errorf("backup failed during %s", o.Stage)
	}
	return fmt.Errorf("backup failed during %s: %w", o.Stage, o.Err)
}

// BackupCreator produces one new artifact per call.
type BackupCreator interface {
	CreateBackup(ctx context.Context) (prunable.Artifact, error)
}

// Sweeper removes expired artifacts from a store; retention.Policy is the
// production implementation.
type Sweeper interface {
	Sweep(ctx context.Context, st prunable.Prunable, now time.Time, log *zap.Logger) (int, error)
}

// Workflow runs dump, measure, mirror, sweep and inventory in that order.
type Workflow struct {
	database string
	creator  BackupCreator
	store    *local.Storage
	policy   Sweeper
	mirror   storage.Mirror
	now      func() time.Time
	log      *zap.Logger
}

// NewWorkflow wires the stages together. mirror may be nil.
func NewWorkflow(database string, c BackupCreator, st *local.Storage, p retention.Policy, mirror storage.Mirror, log *zap.Logger) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{
		database: database,
		creator:  c,
		store:    st,
		policy:   p,
		mirror:   mirror,
		now:      time.Now,
		log:      log,
	}
}

// Run never returns an error; every failure ends up in the Outcome.
func (w *Workflow) Run(ctx context.Context) Outcome {
	started := w.now()
	out := Outcome{Size: backup.UnknownSize}
	log := w.log.With(zap.String("database", w.database))

	fail := func(stage Stage, err error) Outcome {
		out.Stage = stage
		out.Err = err
		out.Duration = w.now().Sub(started)
		log.Error("=== Backup Workflow Failed ===", zap.String("stage", string(stage)), zap.Error(err))
		return out
	}

	log.Info("=== Starting Backup Workflow ===")

	out.Stage = StageEnsuringDirectory
	if err := w.store.EnsureDir(); err != nil {
		return fail(StageEnsuringDirectory, err)
	}

	out.Stage = StageDumping
	a, err := w.creator.CreateBackup(ctx)
	if err != nil {
		return fail(StageDumping, err)
	}
	out.Filename = a.Name
	out.Path = a.Path

	out.Stage = StageMeasuring
	if st, err := w.store.Stat(ctx, a.Name); err != nil {
		log.Warn("could not measure backup size", zap.String("artifact", a.Name), zap.Error(err))
	} else {
		out.Size = st.Size
		log.Info("backup size", zap.String("size", humanize.Bytes(uint64(st.Size))))
	}

	if w.mirror != nil {
		out.Stage = StageMirroring
		loc, err := w.upload(ctx, a)
		if err != nil {
			out.MirrorErr = err
			log.Warn("mirror upload failed", zap.String("mirror", w.mirror.Name()), zap.Error(err))
		} else {
			out.MirrorLocation = loc
			log.Info("backup mirrored", zap.String("location", loc))
		}
	}

	out.Stage = StageSweeping
	deleted, err := w.policy.Sweep(ctx, w.store, w.now(), log)
	if err != nil {
		return fail(StageSweeping, err)
	}
	out.Deleted = deleted

	out.Stage = StageListing
	remaining, err := w.store.List(ctx)
	if err != nil {
		return fail(StageListing, err)
	}
	out.Remaining = len(remaining)
	log.Info("total backups", zap.Int("count", out.Remaining))

	out.Stage = StageCompleted
	out.Success = true
	out.Duration = w.now().Sub(started)
	log.Info("=== Backup Workflow Completed Successfully ===",
		zap.String("artifact", out.Filename),
		zap.Duration("duration", out.Duration.Round(time.Millisecond)),
	)
	return out
}

func (w *Workflow) upload(ctx context.Context, a prunable.Artifact) (string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	return w.mirror.Upload(ctx, a.Name, f, info.Size())
}
