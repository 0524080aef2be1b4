package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by RunNow when a run is in flight.
var ErrAlreadyRunning = errors.New("backup already running")

// Job is one backup run. Its error is only logged for scheduled triggers.
type Job func(ctx context.Context) error

type Option func(*Scheduler)

// WithRunTimeout bounds each run. When it elapses the run's context is
// canceled, which kills the dump process. Zero means no bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// Scheduler fires Job on a cron cadence and on demand, never more than one
// run at a time. Scheduled and manual triggers share the same gate.
type Scheduler struct {
	job     Job
	log     *zap.Logger
	timeout time.Duration

	trigger cron.Job

	mu      sync.Mutex
	cron    *cron.Cron
	parsed  Parsed
	baseCtx context.Context
	current chan struct{} // closed when the in-flight run returns; nil when idle
	stopped bool
}

func New(job Job, log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{job: job, log: log, baseCtx: context.Background()}
	for _, opt := range opts {
		opt(s)
	}
	// a panicking job is logged and the daemon keeps its schedule
	s.trigger = cron.NewChain(cron.Recover(cronLogger{s.log.Sugar()})).Then(cron.FuncJob(s.fire))
	return s
}

// Start validates spec and registers the recurring trigger. Runs started by
// the schedule inherit ctx's values but not its cancellation.
func (s *Scheduler) Start(ctx context.Context, spec Spec) error {
	p, err := Parse(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	if s.stopped {
		return fmt.Errorf("scheduler already stopped")
	}

	c := cron.New(cron.WithLocation(p.Location), cron.WithLogger(cronLogger{s.log.Sugar()}))
	c.Schedule(p.schedule, s.trigger)

	s.parsed = p
	s.baseCtx = context.WithoutCancel(ctx)
	s.cron = c

	s.log.Info("initializing backup scheduler",
		zap.String("schedule", p.Spec.Expr),
		zap.String("timezone", p.Spec.Timezone),
	)
	s.log.Info(Describe(p.Spec.Expr), zap.Time("next_run", p.Next(time.Now())))

	c.Start()
	s.log.Info("backup scheduler started")
	return nil
}

// RunNow runs the job once, synchronously, unless a run is already in
// flight, in which case it returns ErrAlreadyRunning without waiting.
func (s *Scheduler) RunNow(ctx context.Context) error {
	done, ok := s.acquire(false)
	if !ok {
		return ErrAlreadyRunning
	}
	s.log.Info("running immediate backup (manual trigger)")
	return s.run(ctx, done)
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// NextRun is the next scheduled activation, or zero before Start and after Stop.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || s.stopped {
		return time.Time{}
	}
	return s.parsed.Next(time.Now())
}

// Stop suppresses future triggers and waits for the in-flight run, if any, to
// finish on its own. It gives up waiting when ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	c := s.cron
	current := s.current
	s.mu.Unlock()

	if c != nil {
		// cron waits for fire, and fire waits for the run it started
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		s.log.Info("backup scheduler stopped")
	}

	if current != nil {
		s.log.Info("waiting for in-flight backup to finish")
		select {
		case <-current:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) fire() {
	done, ok := s.acquire(true)
	if !ok {
		s.log.Warn("scheduled trigger skipped, backup already running or scheduler stopping")
		return
	}

	s.log.Info("cron job triggered, starting scheduled backup")
	if err := s.run(s.baseCtx, done); err != nil {
		s.log.Error("scheduled backup failed", zap.Error(err))
	}
}

func (s *Scheduler) acquire(scheduled bool) (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil || (scheduled && s.stopped) {
		return nil, false
	}
	s.current = make(chan struct{})
	return s.current, true
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) error {
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		close(done)
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.job(ctx)
}

// cronLogger routes robfig/cron's own logging into zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
