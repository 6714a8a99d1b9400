package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// ErrUnknownVersion is returned when an envelope names a payload version with
// no decoder.
var ErrUnknownVersion = errors.New("unknown payload version")

type decoderFunc func(payload json.RawMessage) (any, error)

// DecoderRegistry maps event types to their payload decoders per schema
// version. It is filled during construction and read-only afterwards.
type DecoderRegistry struct {
	decoders map[enums.OutboxEventType]map[int]decoderFunc
	latest   map[enums.OutboxEventType]int
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{
		decoders: make(map[enums.OutboxEventType]map[int]decoderFunc),
		latest:   make(map[enums.OutboxEventType]int),
	}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	if r.decoders[eventType] == nil {
		r.decoders[eventType] = make(map[int]decoderFunc)
	}
	r.decoders[eventType][version] = decoder
	if version > r.latest[eventType] {
		r.latest[eventType] = version
	}
}

// Decode runs the decoder for version. Rows written before envelopes
// carried a version (version 0) use the latest decoder.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	if version == 0 {
		version = r.latest[eventType]
	}
	decoder, ok := r.decoders[eventType][version]
	if !ok {
		return nil, fmt.Errorf("%s@v%d: %w", eventType, version, ErrUnknownVersion)
	}
	return decoder(payload)
}

// jsonDecoder decodes into a fresh *T for every payload.
func jsonDecoder[T any]() decoderFunc {
	return func(payload json.RawMessage) (any, error) {
		target := new(T)
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, err
		}
		return target, nil
	}
}
