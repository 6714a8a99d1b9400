package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const (
	OutboxRetentionJobName = "outbox_retention"

	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
)

// publishedDeleter prunes delivered outbox rows.
type publishedDeleter interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterDeleter interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	Events publishedDeleter
	// DeadLetters is optional; nil leaves the DLQ untouched.
	DeadLetters  deadLetterDeleter
	Retention    time.Duration
	DLQRetention time.Duration
}

// NewOutboxRetentionJob prunes published outbox rows past Retention and dead
// letters past DLQRetention. Pending rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		events:       params.Events,
		deadLetters:  params.DeadLetters,
		retention:    orDefault(params.Retention, defaultOutboxRetention),
		dlqRetention: orDefault(params.DLQRetention, defaultDLQRetention),
		now:          time.Now,
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	events       publishedDeleter
	deadLetters  deadLetterDeleter
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return OutboxRetentionJobName }

// Run prunes both tables even when the first delete fails.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{}
	var errs error

	published, err := j.events.DeletePublishedBefore(ctx, now.Add(-j.retention))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune published events: %w", err))
	}
	fields["published_deleted"] = published

	if j.deadLetters != nil {
		dead, err := j.deadLetters.DeleteFailedBefore(ctx, now.Add(-j.dlqRetention))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune dead letters: %w", err))
		}
		fields["dlq_deleted"] = dead
	}
	if errs != nil {
		return errs
	}

	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
