package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond

	resultPublished = "published"
	resultFailed    = "failed"
	resultTerminal  = "terminal"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordAttemptTx(tx *gorm.DB, id uuid.UUID, cause error) error
	PinTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type resultRecorder interface {
	ObserveOutbox(eventType, result string)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Sink          outbox.Sink
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Recorder      resultRecorder
}

// Service drains outbox rows in batches, one transaction per batch, and
// forwards each to the configured sink.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	sink        outbox.Sink
	registry    registryResolver
	dlq         dlqRepository
	recorder    resultRecorder
	batchSize   int
	maxAttempts int
	pace        pacer
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Sink == nil:
		return nil, errors.New("event sink is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		sink:        params.Sink,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		recorder:    params.Recorder,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pace:        newPacer(time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs))*time.Millisecond, maxBackoff),
		now:         time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is cancelled. Both the database and the sink must
// answer a ping before the first batch.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.sink.Ping(ctx); err != nil {
		return fmt.Errorf("event sink ping failed: %w", err)
	}

	for {
		if ctx.Err() != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		}

		drained, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = s.pace.failure()
		case drained:
			s.pace.reset()
			continue
		default:
			wait = s.pace.idle()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// verdict is what happens to a row after one dispatch attempt.
type verdict struct {
	result string
	reason enums.OutboxDLQErrorReason
	err    error
}

// processBatch reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.ClaimPending(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, v := s.dispatch(ctx, event)
	fields := s.eventFields(event, resolved)
	logCtx := s.logg.WithFields(ctx, fields)

	switch v.result {
	case resultPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case resultFailed:
		s.logg.Warn(s.logg.WithField(logCtx, "error", v.err.Error()), "outbox publish failed")
		if err := s.repo.RecordAttemptTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case resultTerminal:
		logCtx = s.logg.WithFields(logCtx, map[string]any{"error_reason": v.reason, "error": v.err.Error()})
		s.logg.Warn(logCtx, "outbox event moved to dlq")
		if err := s.deadLetter(tx, event, v); err != nil {
			return err
		}
	}
	s.observe(event, v.result)
	return nil
}

// dispatch resolves and publishes one row without touching the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) (*registry.ResolvedEvent, verdict) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return nil, verdict{result: resultTerminal, reason: enums.OutboxDLQReasonUnsupportedEvent, err: err}
	}
	if resolved.Descriptor.Topic == "" {
		return resolved, verdict{
			result: resultTerminal,
			reason: enums.OutboxDLQReasonNonRetryable,
			err:    fmt.Errorf("no topic configured for %s", event.EventType),
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	err = s.sink.Publish(publishCtx, resolved.Descriptor.Topic, message(event, resolved))
	var rejected registry.NonRetryableError
	switch {
	case err == nil:
		return resolved, verdict{result: resultPublished}
	case errors.As(err, &rejected):
		return resolved, verdict{result: resultTerminal, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	case event.AttemptCount+1 >= s.maxAttempts:
		return resolved, verdict{
			result: resultTerminal,
			reason: enums.OutboxDLQReasonMaxAttempts,
			err:    fmt.Errorf("max publish attempts reached: %w", err),
		}
	default:
		return resolved, verdict{result: resultFailed, err: err}
	}
}

func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) outbox.Message {
	return outbox.Message{
		Key:  event.AggregateID.String(),
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) deadLetter(tx *gorm.DB, event models.OutboxEvent, v verdict) error {
	msg := v.err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   v.reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.PinTerminalTx(tx, event.ID, v.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) observe(event models.OutboxEvent, result string) {
	if s.recorder != nil {
		s.recorder.ObserveOutbox(string(event.EventType), result)
	}
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		if topic := resolved.Descriptor.Topic; topic != "" {
			fields["topic"] = topic
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

// pacer spaces polls: the base interval while idle, doubling after each
// failed batch up to a cap.
type pacer struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newPacer(base, max time.Duration) pacer {
	return pacer{base: base, max: max, current: base}
}

func (p *pacer) reset() { p.current = p.base }

func (p *pacer) idle() time.Duration {
	p.reset()
	return withJitter(p.base)
}

func (p *pacer) failure() time.Duration {
	p.current = nextBackoff(p.current, p.base, p.max)
	return withJitter(p.current)
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, max)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
