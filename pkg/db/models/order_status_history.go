package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatusHistory is the append-only audit trail of order transitions.
type OrderStatusHistory struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID *uuid.UUID `gorm:"column:order_item_id;type:uuid"`
	Status      string     `gorm:"column:status;not null"`
	Notes       *string    `gorm:"column:notes"`
	ActorID     *uuid.UUID `gorm:"column:actor_id;type:uuid"`
	OccurredAt  time.Time  `gorm:"column:occurred_at;not null;index"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_histories"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
