package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the envelope version written by Emit when the event
// does not choose one.
const CurrentVersion = 1

// ActorRef identifies who caused the event. System transitions carry none.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and delivered
// to sinks unchanged. EventID equals the outbox row id so consumers can
// dedupe redeliveries.
type PayloadEnvelope struct {
	Version     int             `json:"version"`
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType,omitempty"`
	AggregateID string          `json:"aggregateId,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Actor       *ActorRef       `json:"actor,omitempty"`
	Data        json.RawMessage `json:"data"`
}

var errEmptyData = errors.New("envelope data is empty")

// CheckData rejects envelopes whose data is missing or JSON null.
func (e PayloadEnvelope) CheckData() error {
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errEmptyData
	}
	return nil
}
