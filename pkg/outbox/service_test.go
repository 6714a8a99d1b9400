package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

func TestEmitWritesEnvelope(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))

	aggregateID := uuid.New()
	actor := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{UserID: actor, Role: "buyer"},
			Data:          map[string]string{"order_number": "MV-1"},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var rows []models.OutboxEvent
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	var envelope PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != CurrentVersion || envelope.Actor == nil || envelope.Actor.UserID != actor {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if envelope.EventID != rows[0].ID.String() {
		t.Fatalf("envelope id %s must match row id %s", envelope.EventID, rows[0].ID)
	}
	if envelope.EventType != string(enums.EventOrderPaid) || envelope.AggregateID != aggregateID.String() {
		t.Fatalf("unexpected envelope routing %+v", envelope)
	}
	if string(envelope.Data) != `{"order_number":"MV-1"}` {
		t.Fatalf("unexpected data %s", envelope.Data)
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{}); err == nil {
		t.Fatal("expected transaction required error")
	}
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	valid := DomainEvent{
		EventType:     enums.EventPayoutCreated,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"payout_number": "PO-1"},
	}

	cases := map[string]func(e *DomainEvent){
		"unknown type":       func(e *DomainEvent) { e.EventType = "vendor_onboarded" },
		"aggregate mismatch": func(e *DomainEvent) { e.AggregateType = enums.AggregateOrder },
		"missing aggregate":  func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		"missing data":       func(e *DomainEvent) { e.Data = nil },
	}
	for name, mutate := range cases {
		event := valid
		mutate(&event)
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows written, got %d", count)
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	first := seedEvent(t, db, 0)
	second := seedEvent(t, db, 3)

	var fetched []models.OutboxEvent
	if err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.ClaimPending(tx, 10, 3)
		return err
	}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fetched) != 1 || fetched[0].ID != first.ID {
		t.Fatalf("expected only the retryable row, got %+v", fetched)
	}

	if err := repo.RecordAttemptTx(db, first.ID, errors.New("broker down")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	var reloaded models.OutboxEvent
	if err := db.First(&reloaded, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AttemptCount != 1 || reloaded.LastError == nil || *reloaded.LastError != "broker down" {
		t.Fatalf("unexpected failure bookkeeping %+v", reloaded)
	}

	if err := repo.MarkPublishedTx(db, first.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := repo.PinTerminalTx(db, second.ID, errors.New("bad payload"), 3); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("delete published: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one published row deleted, got %d", deleted)
	}
}

func TestDLQRepositoryTruncatesError(t *testing.T) {
	db := newTestDB(t)
	repo := NewDLQRepository(db)
	long := make([]byte, maxDLQErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()
	if err := repo.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
	}); err != nil {
		t.Fatalf("insert dlq: %v", err)
	}
	found, err := repo.FindByEventID(context.Background(), eventID)
	if err != nil || found == nil {
		t.Fatalf("find dlq: %v", err)
	}
	if len(*found.ErrorMessage) != maxDLQErrorLen {
		t.Fatalf("expected truncated message, got %d chars", len(*found.ErrorMessage))
	}

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown event, got %+v %v", missing, err)
	}
}

func TestDLQRepositoryRequeue(t *testing.T) {
	db := newTestDB(t)
	repo := NewDLQRepository(db)
	ctx := context.Background()

	exhausted := seedEvent(t, db, 10)
	rejected := seedEvent(t, db, 10)
	for _, tc := range []struct {
		event  models.OutboxEvent
		reason enums.OutboxDLQErrorReason
	}{
		{exhausted, enums.OutboxDLQReasonMaxAttempts},
		{rejected, enums.OutboxDLQReasonUnsupportedEvent},
	} {
		if err := repo.InsertTx(db, models.OutboxDLQ{
			EventID:       tc.event.ID,
			EventType:     tc.event.EventType,
			AggregateType: tc.event.AggregateType,
			AggregateID:   tc.event.AggregateID,
			Payload:       tc.event.Payload,
			ErrorReason:   tc.reason,
		}); err != nil {
			t.Fatalf("insert dlq: %v", err)
		}
	}

	if err := repo.Requeue(ctx, exhausted.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	var row models.OutboxEvent
	if err := db.First(&row, "id = ?", exhausted.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.AttemptCount != 0 || row.LastError != nil {
		t.Fatalf("expected fresh attempt budget, got %+v", row)
	}
	if entry, _ := repo.FindByEventID(ctx, exhausted.ID); entry != nil {
		t.Fatalf("dlq entry should be removed after requeue")
	}

	if err := repo.Requeue(ctx, rejected.ID); !errors.Is(err, ErrNotReplayable) {
		t.Fatalf("expected ErrNotReplayable, got %v", err)
	}
	if err := repo.Requeue(ctx, uuid.New()); !errors.Is(err, ErrDLQEntryNotFound) {
		t.Fatalf("expected ErrDLQEntryNotFound, got %v", err)
	}
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	if got := truncateUTF8("héllo", 2); got != "h" {
		t.Fatalf("expected cut before multibyte rune, got %q", got)
	}
	if got := truncateUTF8("short", 10); got != "short" {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func seedEvent(t *testing.T, db *gorm.DB, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		AttemptCount:  attempts,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return row
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate outbox: %v", err)
	}
	return db
}
