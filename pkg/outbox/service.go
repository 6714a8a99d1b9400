package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

// DomainEvent is a state change to record alongside the write that caused it.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	aggregate, ok := e.EventType.Aggregate()
	switch {
	case !ok:
		return fmt.Errorf("unknown event type %q", e.EventType)
	case e.AggregateType != aggregate:
		return fmt.Errorf("event %s belongs to %s, not %s", e.EventType, aggregate, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("event %s has no aggregate id", e.EventType)
	case e.Data == nil:
		return fmt.Errorf("event %s has no data", e.EventType)
	}
	return nil
}

// Emitter writes domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores event as an unpublished outbox row on tx. The row commits or
// rolls back with the caller's write.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if event.Version == 0 {
		event.Version = CurrentVersion
	}

	id := uuid.New()
	envelope := PayloadEnvelope{
		Version:     event.Version,
		EventID:     id.String(),
		EventType:   string(event.EventType),
		AggregateID: event.AggregateID.String(),
		OccurredAt:  event.OccurredAt.UTC(),
		Actor:       event.Actor,
		Data:        data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("insert %s outbox row: %w", event.EventType, err)
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"outbox_id":    envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": envelope.AggregateID,
		}), "outbox event queued")
	}
	return nil
}
