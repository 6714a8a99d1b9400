package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// Vendor is a seller on the marketplace. Balance holds settled earnings that
// have not been paid out yet.
type Vendor struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	ShopName          string             `gorm:"column:shop_name;not null"`
	Slug              string             `gorm:"column:slug;not null;uniqueIndex"`
	Status            enums.VendorStatus `gorm:"column:status;type:vendor_status;not null;default:'pending'"`
	CommissionRate    *decimal.Decimal   `gorm:"column:commission_rate;type:numeric(5,4)"`
	Balance           decimal.Decimal    `gorm:"column:balance;type:numeric(15,2);not null;default:0"`
	TotalEarnings     decimal.Decimal    `gorm:"column:total_earnings;type:numeric(15,2);not null;default:0"`
	BankName          *string            `gorm:"column:bank_name"`
	BankAccountNumber *string            `gorm:"column:bank_account_number"`
	BankAccountName   *string            `gorm:"column:bank_account_name"`
	NPWP              *string            `gorm:"column:npwp"`
	OriginCityID      *string            `gorm:"column:origin_city_id"`
	Couriers          []string           `gorm:"column:couriers;type:jsonb;serializer:json"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// BankDetails is the snapshot of payout destination stored on a payout.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

func (v *Vendor) BankDetails() BankDetails {
	return BankDetails{
		BankName:      deref(v.BankName),
		AccountNumber: deref(v.BankAccountNumber),
		AccountName:   deref(v.BankAccountName),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
