package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// Order is the immutable purchase snapshot; only Status and its timestamps change.
type Order struct {
	ID                     uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber            string            `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	UserID                 uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Subtotal               decimal.Decimal   `gorm:"column:subtotal;type:numeric(15,2);not null"`
	ShippingCost           decimal.Decimal   `gorm:"column:shipping_cost;type:numeric(15,2);not null;default:0"`
	TaxAmount              decimal.Decimal   `gorm:"column:tax_amount;type:numeric(15,2);not null;default:0"`
	VATAmount              decimal.Decimal   `gorm:"column:vat_amount;type:numeric(15,2);not null;default:0"`
	MarketplaceWithholding decimal.Decimal   `gorm:"column:marketplace_withholding;type:numeric(15,2);not null;default:0"`
	Total                  decimal.Decimal   `gorm:"column:total;type:numeric(15,2);not null"`
	ShippingName           string            `gorm:"column:shipping_name;not null"`
	ShippingPhone          string            `gorm:"column:shipping_phone;not null"`
	ShippingEmail          *string           `gorm:"column:shipping_email"`
	ShippingAddress        string            `gorm:"column:shipping_address;not null"`
	ShippingCity           string            `gorm:"column:shipping_city;not null"`
	ShippingProvince       string            `gorm:"column:shipping_province;not null"`
	ShippingPostalCode     string            `gorm:"column:shipping_postal_code;not null"`
	Status                 enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Notes                  *string           `gorm:"column:notes"`
	PaymentMethod          *string           `gorm:"column:payment_method"`
	PaidAt                 *time.Time        `gorm:"column:paid_at"`
	CompletedAt            *time.Time        `gorm:"column:completed_at"`
	CancelledAt            *time.Time        `gorm:"column:cancelled_at"`
	Items                  []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment                *Payment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt              time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
