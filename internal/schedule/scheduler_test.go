package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// blockingJob runs until release is closed and counts its invocations.
type blockingJob struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	ctxErr  atomic.Value
}

func newBlockingJob() *blockingJob {
	return &blockingJob{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingJob) run(ctx context.Context) error {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	if err := ctx.Err(); err != nil {
		b.ctxErr.Store(err)
	}
	return nil
}

func waitStarted(t *testing.T, b *blockingJob) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New(func(context.Context) error { return nil }, zaptest.NewLogger(t))

	err := s.Start(context.Background(), Spec{Expr: "61 * * * *"})
	require.Error(t, err)

	var serr *ScheduleError
	assert.True(t, errors.As(err, &serr))
	assert.True(t, s.NextRun().IsZero())
}

func TestStartTwiceFails(t *testing.T) {
	s := New(func(context.Context) error { return nil }, nil)
	require.NoError(t, s.Start(context.Background(), Spec{Expr: "0 2 * * *"}))
	defer s.Stop(context.Background())

	assert.False(t, s.NextRun().IsZero())
	require.Error(t, s.Start(context.Background(), Spec{Expr: "0 2 * * *"}))
}

func TestRunNowReturnsJobError(t *testing.T) {
	boom := errors.New("dump failed")
	s := New(func(context.Context) error { return boom }, nil)

	assert.ErrorIs(t, s.RunNow(context.Background()), boom)
	assert.False(t, s.Running())
}

func TestRunNowWhileRunningIsRejected(t *testing.T) {
	job := newBlockingJob()
	s := New(job.run, zaptest.NewLogger(t))

	first := make(chan error, 1)
	go func() { first <- s.RunNow(context.Background()) }()
	waitStarted(t, job)
	assert.True(t, s.Running())

	start := time.Now()
	err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Less(t, time.Since(start), time.Second, "must not wait for the in-flight run")

	close(job.release)
	require.NoError(t, <-first)
	assert.Equal(t, int32(1), job.calls.Load())

	// the gate reopens once the run is over
	require.NoError(t, s.RunNow(context.Background()))
	assert.Equal(t, int32(2), job.calls.Load())
}

func TestOverlappingScheduledTriggerIsSkipped(t *testing.T) {
	job := newBlockingJob()
	core, logs := observer.New(zap.InfoLevel)
	s := New(job.run, zap.New(core))

	go func() { _ = s.RunNow(context.Background()) }()
	waitStarted(t, job)

	s.fire()
	assert.Equal(t, int32(1), job.calls.Load())
	assert.Equal(t, 1, logs.FilterMessageSnippet("scheduled trigger skipped").Len())

	close(job.release)
}

func TestScheduledRunIgnoresCallerCancellation(t *testing.T) {
	job := newBlockingJob()
	s := New(job.run, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, Spec{Expr: "0 2 * * *"}))
	cancel()

	done := make(chan struct{})
	go func() { s.fire(); close(done) }()
	waitStarted(t, job)
	close(job.release)
	<-done

	assert.Nil(t, job.ctxErr.Load(), "in-flight run must not see the daemon's cancellation")
	require.NoError(t, s.Stop(context.Background()))
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	job := newBlockingJob()
	s := New(job.run, zaptest.NewLogger(t))
	require.NoError(t, s.Start(context.Background(), Spec{Expr: "0 2 * * *"}))

	go func() { _ = s.RunNow(context.Background()) }()
	waitStarted(t, job)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(job.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
	assert.False(t, s.Running())
	assert.Nil(t, job.ctxErr.Load())
}

func TestStopGivesUpWhenContextExpires(t *testing.T) {
	job := newBlockingJob()
	s := New(job.run, nil)

	go func() { _ = s.RunNow(context.Background()) }()
	waitStarted(t, job)
	defer close(job.release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestTriggersAfterStopAreSuppressed(t *testing.T) {
	var calls atomic.Int32
	s := New(func(context.Context) error { calls.Add(1); return nil }, nil)
	require.NoError(t, s.Start(context.Background(), Spec{Expr: "0 2 * * *"}))
	require.NoError(t, s.Stop(context.Background()))

	s.fire()
	assert.Zero(t, calls.Load())
	assert.True(t, s.NextRun().IsZero())

	// manual runs are still allowed
	require.NoError(t, s.RunNow(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCronTriggersJob(t *testing.T) {
	ran := make(chan struct{}, 4)
	s := New(func(context.Context) error { ran <- struct{}{}; return nil }, zaptest.NewLogger(t))
	require.NoError(t, s.Start(context.Background(), Spec{Expr: "@every 1s", Timezone: "UTC"}))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job never ran")
	}
	require.NoError(t, s.Stop(context.Background()))
}

func TestRunTimeoutCancelsRun(t *testing.T) {
	s := New(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil, WithRunTimeout(20*time.Millisecond))

	assert.ErrorIs(t, s.RunNow(context.Background()), context.DeadlineExceeded)
}

func TestScheduledPanicIsRecoveredAndReleasesGate(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	var calls atomic.Int32
	s := New(func(context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}, zap.New(core))

	require.NotPanics(t, func() { s.trigger.Run() })
	assert.Equal(t, 1, logs.FilterMessage("panic").Len())
	assert.False(t, s.Running())

	require.NoError(t, s.RunNow(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}
