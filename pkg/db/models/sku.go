package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sku is a purchasable variant with its own stock ledger.
// Invariant: 0 <= ReservedStock <= Stock.
type Sku struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	SkuCode           string          `gorm:"column:sku_code;not null;uniqueIndex"`
	Price             decimal.Decimal `gorm:"column:price;type:numeric(15,2);not null"`
	Stock             int             `gorm:"column:stock;not null;default:0"`
	ReservedStock     int             `gorm:"column:reserved_stock;not null;default:0"`
	SoldCount         int             `gorm:"column:sold_count;not null;default:0"`
	LowStockThreshold int             `gorm:"column:low_stock_threshold;not null;default:10"`
	Weight            int             `gorm:"column:weight;not null;default:0"`
	IsActive          bool            `gorm:"column:is_active;not null"`
	Product           *Product        `gorm:"foreignKey:ProductID"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Sku) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Available returns stock not held by reservations, clamped at zero.
func (s Sku) Available() int {
	if avail := s.Stock - s.ReservedStock; avail > 0 {
		return avail
	}
	return 0
}

func (s Sku) HasStock(qty int) bool {
	return s.Available() >= qty
}

func (s Sku) IsLowStock() bool {
	return s.Available() <= s.LowStockThreshold
}
