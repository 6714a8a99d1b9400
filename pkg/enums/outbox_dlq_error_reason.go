package enums

// OutboxDLQErrorReason records why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable covers rows the sink rejected outright.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUnsupportedEvent covers rows the event registry could
	// not resolve: unknown type, aggregate mismatch or an undecodable payload.
	OutboxDLQReasonUnsupportedEvent OutboxDLQErrorReason = "unsupported_event"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnsupportedEvent:
		return true
	}
	return false
}

// Replayable reports whether an operator may requeue the row unchanged.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts
}
