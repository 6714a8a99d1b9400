package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Category groups products and may override the platform commission rate.
type Category struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ParentID       *uuid.UUID       `gorm:"column:parent_id;type:uuid"`
	Name           string           `gorm:"column:name;not null"`
	Slug           string           `gorm:"column:slug;not null;uniqueIndex"`
	CommissionRate *decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4)"`
	IsActive       bool             `gorm:"column:is_active;not null"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
