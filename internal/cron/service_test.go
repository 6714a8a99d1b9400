package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-core/pkg/metrics"
)

type fakeLock struct {
	busy     bool
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.busy || f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

func (f *fakeLock) Holder(context.Context) (string, error) { return "other-host:42:abc", nil }

type testJob struct {
	name  string
	err   error
	runs  int
	every time.Duration
	block bool
}

func (t *testJob) Name() string         { return t.name }
func (t *testJob) Every() time.Duration { return t.every }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.NewRegistry()),
		JobTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatalf("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	last := &testJob{name: "last"}
	lock := &fakeLock{}
	service := newTestService(t, lock, ok, failing, last)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	for _, job := range []*testJob{ok, failing, last} {
		if job.runs != 1 {
			t.Fatalf("%s ran %d times", job.name, job.runs)
		}
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lock not released: %+v", lock)
	}
}

func TestRunCycleSkipsJobsInsideCadence(t *testing.T) {
	daily := &testJob{name: "daily", every: 24 * time.Hour}
	hourly := &testJob{name: "hourly"}
	service := newTestService(t, &fakeLock{}, daily, hourly)
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if err := service.runCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		clock = clock.Add(time.Hour)
	}
	if daily.runs != 1 || hourly.runs != 3 {
		t.Fatalf("expected daily=1 hourly=3, got %d %d", daily.runs, hourly.runs)
	}

	clock = clock.Add(24 * time.Hour)
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("late cycle: %v", err)
	}
	if daily.runs != 2 {
		t.Fatalf("expected daily job to run after its window, ran %d", daily.runs)
	}
}

func TestRunCycleSkipsWhenLockBusy(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{busy: true}
	service := newTestService(t, lock, job)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
	if lock.releases != 0 {
		t.Fatalf("released a lock it never held")
	}
}

func TestRunCycleReturnsLockErrors(t *testing.T) {
	service := newTestService(t, &fakeLock{err: errors.New("redis down")}, &testJob{name: "job"})
	if err := service.runCycle(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestRunJobTimesOut(t *testing.T) {
	slow := &testJob{name: "slow", block: true}
	after := &testJob{name: "after"}
	service := newTestService(t, &fakeLock{}, slow, after)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if slow.runs != 1 || after.runs != 1 {
		t.Fatalf("expected both jobs to run, got slow=%d after=%d", slow.runs, after.runs)
	}
	if _, ok := service.lastRun["slow"]; !ok {
		t.Fatalf("timed out job not recorded")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
