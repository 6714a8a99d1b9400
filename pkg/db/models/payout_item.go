package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayoutItem links an order item to the payout that paid it. order_item_id is
// unique so an item is paid out at most once.
type PayoutItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PayoutID    uuid.UUID       `gorm:"column:payout_id;type:uuid;not null;index"`
	OrderItemID uuid.UUID       `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:payout_items_order_item_id_key"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *PayoutItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
