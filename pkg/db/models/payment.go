package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// Payment is the single gateway payment record of an order.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:payments_order_id_key"`
	TransactionID   *string             `gorm:"column:transaction_id;index"`
	SnapToken       *string             `gorm:"column:snap_token"`
	PaymentMethod   *string             `gorm:"column:payment_method"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(15,2);not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	GatewayResponse json.RawMessage     `gorm:"column:gateway_response;type:jsonb;serializer:json"`
	Notes           *string             `gorm:"column:notes"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
