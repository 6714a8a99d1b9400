package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

type pruneCall struct {
	cutoff time.Time
	calls  int
}

type fakePruner struct {
	published pruneCall
	dead      pruneCall
	pubErr    error
	deadErr   error
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.published.calls++
	f.published.cutoff = cutoff
	return 4, f.pubErr
}

func (f *fakePruner) DeleteFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.dead.calls++
	f.dead.cutoff = cutoff
	return 1, f.deadErr
}

func retentionJobFor(t *testing.T, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	job, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionPrunesBothTables(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	job := retentionJobFor(t, OutboxRetentionJobParams{
		Events:       pruner,
		DeadLetters:  pruner,
		Retention:    48 * time.Hour,
		DLQRetention: 10 * 24 * time.Hour,
	})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !pruner.published.cutoff.Equal(want) {
		t.Fatalf("published cutoff = %s, want %s", pruner.published.cutoff, want)
	}
	if want := now.Add(-10 * 24 * time.Hour); !pruner.dead.cutoff.Equal(want) {
		t.Fatalf("dlq cutoff = %s, want %s", pruner.dead.cutoff, want)
	}
}

func TestOutboxRetentionDefaultsAndOptionalDLQ(t *testing.T) {
	pruner := &fakePruner{}
	job := retentionJobFor(t, OutboxRetentionJobParams{Events: pruner})
	if job.retention != defaultOutboxRetention || job.dlqRetention != defaultDLQRetention {
		t.Fatalf("unexpected defaults %s / %s", job.retention, job.dlqRetention)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pruner.dead.calls != 0 {
		t.Fatal("dead letters pruned without a repository")
	}
}

func TestOutboxRetentionKeepsGoingAfterFailure(t *testing.T) {
	pruner := &fakePruner{pubErr: errors.New("statement timeout"), deadErr: errors.New("conn reset")}
	job := retentionJobFor(t, OutboxRetentionJobParams{Events: pruner, DeadLetters: pruner})

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if pruner.dead.calls != 1 {
		t.Fatal("dlq prune skipped after outbox failure")
	}
	for _, part := range []string{"statement timeout", "conn reset"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("error %q missing %q", err, part)
		}
	}
}

func TestOutboxRetentionRequiresRepository(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.New(logger.Options{Output: io.Discard})}); err == nil {
		t.Fatal("expected error without outbox repository")
	}
}
