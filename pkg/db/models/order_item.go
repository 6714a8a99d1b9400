package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// OrderItem snapshots one SKU line of an order, including the commission and
// tax computed at order time.
type OrderItem struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	SkuID            uuid.UUID             `gorm:"column:sku_id;type:uuid;not null"`
	VendorID         uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index"`
	ProductName      string                `gorm:"column:product_name;not null"`
	SkuCode          string                `gorm:"column:sku_code;not null"`
	Price            decimal.Decimal       `gorm:"column:price;type:numeric(15,2);not null"`
	Quantity         int                   `gorm:"column:quantity;not null"`
	Subtotal         decimal.Decimal       `gorm:"column:subtotal;type:numeric(15,2);not null"`
	CommissionRate   decimal.Decimal       `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	CommissionAmount decimal.Decimal       `gorm:"column:commission_amount;type:numeric(15,2);not null"`
	VendorEarnings   decimal.Decimal       `gorm:"column:vendor_earnings;type:numeric(15,2);not null"`
	TaxAmount        decimal.Decimal       `gorm:"column:tax_amount;type:numeric(15,2);not null;default:0"`
	ShippingCost     decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(15,2);not null;default:0"`
	CourierName      *string               `gorm:"column:courier_name"`
	CourierService   *string               `gorm:"column:courier_service"`
	Status           enums.OrderItemStatus `gorm:"column:status;type:order_item_status;not null;default:'pending'"`
	TrackingNumber   *string               `gorm:"column:tracking_number"`
	ShippedAt        *time.Time            `gorm:"column:shipped_at"`
	CompletedAt      *time.Time            `gorm:"column:completed_at"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
