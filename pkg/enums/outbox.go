package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregatePayout  OutboxAggregateType = "payout"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateOrder, AggregatePayment, AggregatePayout:
		return true
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated    OutboxEventType = "order_created"
	EventOrderPaid       OutboxEventType = "order_paid"
	EventOrderCancelled  OutboxEventType = "order_cancelled"
	EventOrderRefunded   OutboxEventType = "order_refunded"
	EventOrderShipped    OutboxEventType = "order_shipped"
	EventOrderCompleted  OutboxEventType = "order_completed"
	EventPaymentFailed   OutboxEventType = "payment_failed"
	EventPayoutCreated   OutboxEventType = "payout_created"
	EventPayoutCompleted OutboxEventType = "payout_completed"
	EventPayoutCancelled OutboxEventType = "payout_cancelled"
)

// eventAggregates pins each event type to the aggregate it is emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:    AggregateOrder,
	EventOrderPaid:       AggregateOrder,
	EventOrderCancelled:  AggregateOrder,
	EventOrderRefunded:   AggregateOrder,
	EventOrderShipped:    AggregateOrder,
	EventOrderCompleted:  AggregateOrder,
	EventPaymentFailed:   AggregatePayment,
	EventPayoutCreated:   AggregatePayout,
	EventPayoutCompleted: AggregatePayout,
	EventPayoutCancelled: AggregatePayout,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to.
func (e OutboxEventType) Aggregate() (OutboxAggregateType, bool) {
	a, ok := eventAggregates[e]
	return a, ok
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
