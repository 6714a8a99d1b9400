package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// VendorPayout batches settled order item earnings for a single transfer.
type VendorPayout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index"`
	PayoutNumber    string             `gorm:"column:payout_number;not null;uniqueIndex:vendor_payouts_payout_number_key"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(15,2);not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	Method          enums.PayoutMethod `gorm:"column:method;type:payout_method;not null;default:'bank_transfer'"`
	BankDetails     BankDetails        `gorm:"column:bank_details;type:jsonb;serializer:json"`
	ReferenceNumber *string            `gorm:"column:reference_number"`
	Notes           *string            `gorm:"column:notes"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at"`
	Items           []PayoutItem       `gorm:"foreignKey:PayoutID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *VendorPayout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
