package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// OrderCreatedEvent signals a new order holding stock reservations.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	VendorIDs   []uuid.UUID     `json:"vendor_ids"`
	Total       decimal.Decimal `json:"total"`
}

// OrderStatusEvent is shared by order transitions that carry no extra data.
type OrderStatusEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// OrderPaidEvent is emitted once payment settles and stock is committed.
type OrderPaidEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaidAt        time.Time       `json:"paid_at"`
}

// PaymentFailedEvent reports a denied, expired or fraud-flagged payment.
type PaymentFailedEvent struct {
	OrderID           uuid.UUID               `json:"order_id"`
	OrderNumber       string                  `json:"order_number"`
	PaymentID         uuid.UUID               `json:"payment_id"`
	TransactionStatus enums.TransactionStatus `json:"transaction_status"`
	Reason            string                  `json:"reason"`
}

// PayoutEvent is shared by payout lifecycle events.
type PayoutEvent struct {
	PayoutID     uuid.UUID          `json:"payout_id"`
	PayoutNumber string             `json:"payout_number"`
	VendorID     uuid.UUID          `json:"vendor_id"`
	Amount       decimal.Decimal    `json:"amount"`
	Status       enums.PayoutStatus `json:"status"`
	Reference    string             `json:"reference,omitempty"`
	Reason       string             `json:"reason,omitempty"`
}
