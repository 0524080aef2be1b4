package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/backup"
	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/notify"
	"github.com/dev-tams/sqlbackup/internal/retention"
	"github.com/dev-tams/sqlbackup/internal/storage"
	"github.com/dev-tams/sqlbackup/internal/storage/local"
)

const notificationTimeout = 5 * time.Second

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

type notifier interface {
	Notify(ctx context.Context, event notify.Event) error
}

// Service runs the workflow as a scheduler job and forwards every outcome to
// the configured notification routes.
type Service struct {
	database string
	trigger  string
	workflow *Workflow
	notifier notifier
	log      *zap.Logger

	mu   sync.Mutex
	last Outcome
}

// NewService builds the full backup pipeline from cfg.
func NewService(ctx context.Context, cfg *config.Config, trigger string, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}

	loc, err := loadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}

	policy, err := retention.NewPolicy(cfg.Backup.Retention())
	if err != nil {
		return nil, err
	}

	mirror, err := storage.MirrorFromConfig(ctx, cfg.Mirror)
	if err != nil {
		return nil, err
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		return nil, err
	}

	st := local.New("local", cfg.Backup.Path, log)
	dumper := backup.MySQLDumper{Binary: cfg.Backup.DumpBinary, Log: log}
	exec := backup.NewExecutor(dumper, st, cfg.Database, loc, log)

	wf := NewWorkflow(cfg.Database.Name, exec, st, policy, mirror, log)
	return &Service{
		database: cfg.Database.Name,
		trigger:  trigger,
		workflow: wf,
		notifier: dispatcher,
		log:      log,
	}, nil
}

// Run executes one workflow and reports its failure, if any, as an error.
// It has the shape of schedule.Job.
func (s *Service) Run(ctx context.Context) error {
	out := s.workflow.Run(ctx)

	s.mu.Lock()
	s.last = out
	s.mu.Unlock()

	s.notify(ctx, out)
	return out.Failure()
}

// Last is the outcome of the most recent Run.
func (s *Service) Last() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Service) notify(ctx context.Context, out Outcome) {
	if s.notifier == nil {
		return
	}

	notifyCtx, cancel := notificationContext(ctx)
	defer cancel()

	event := eventFor(s.database, s.trigger, out)
	if err := s.notifier.Notify(notifyCtx, event); err != nil {
		s.log.Warn("notification failed", zap.String("status", event.Status), zap.Error(err))
	}
}

func eventFor(database, trigger string, out Outcome) notify.Event {
	e := notify.Event{
		DB:        database,
		Status:    notify.StatusSuccess,
		Trigger:   trigger,
		Filename:  out.Filename,
		Bytes:     out.Size,
		Remaining: out.Remaining,
		Deleted:   out.Deleted,
		Mirror:    out.MirrorLocation,
		Duration:  out.Duration.Round(time.Millisecond).String(),
	}
	if out.MirrorErr != nil {
		e.MirrorError = out.MirrorErr.Error()
	}
	if !out.Success {
		e.Status = notify.StatusFailure
		e.Stage = string(out.Stage)
		if out.Err != nil {
			e.Error = out.Err.Error()
		}
	}
	return e
}

func notificationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), notificationTimeout)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}
