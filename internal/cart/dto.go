package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
)

const (
	ReasonSkuInactive       = "sku_inactive"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonCartEmpty         = "cart_empty"
)

// Owner identifies a cart by signed-in user or by guest session.
type Owner struct {
	UserID    *uuid.UUID
	SessionID string
}

func (o Owner) IsGuest() bool {
	return o.UserID == nil
}

// MutationResult reports a cart mutation. OK=false carries a business reason
// and is never returned alongside an error.
type MutationResult struct {
	OK        bool             `json:"ok"`
	Reason    string           `json:"reason,omitempty"`
	Available int              `json:"available"`
	Removed   bool             `json:"removed,omitempty"`
	Item      *models.CartItem `json:"item,omitempty"`
}

type Line struct {
	ItemID      uuid.UUID       `json:"id"`
	SkuID       uuid.UUID       `json:"sku_id"`
	ProductName string          `json:"product_name"`
	SkuCode     string          `json:"sku_code"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Weight      int             `json:"weight"`
	Sku         *models.Sku     `json:"-"`
}

type VendorGroup struct {
	VendorID     uuid.UUID       `json:"vendor_id"`
	VendorName   string          `json:"vendor_name"`
	OriginCityID string          `json:"origin_city_id,omitempty"`
	Couriers     []string        `json:"couriers,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Weight       int             `json:"weight"`
	Items        []Line          `json:"items"`
	Vendor       *models.Vendor  `json:"-"`
}

type Summary struct {
	CartID      uuid.UUID       `json:"cart_id"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TotalItems  int             `json:"total_items"`
	TotalWeight int             `json:"total_weight"`
	Vendors     []VendorGroup   `json:"vendors"`
}

type Problem struct {
	SkuID     uuid.UUID `json:"sku_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Reason    string    `json:"reason"`
	Available int       `json:"available"`
	Requested int       `json:"requested"`
}

type Validation struct {
	Valid    bool      `json:"valid"`
	Problems []Problem `json:"problems,omitempty"`
}
