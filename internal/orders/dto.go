package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
)

const (
	RejectInvalidCart       = "invalid_cart"
	RejectInsufficientStock = "insufficient_stock"

	CheckoutCreated           = "created"
	CheckoutInsufficientStock = "insufficient_stock"
	CheckoutInvalidCart       = "invalid_cart"
	CheckoutError             = "error"
)

// Address is the shipping address snapshot copied onto the order.
type Address struct {
	Name       string  `json:"name" validate:"required,max=255"`
	Phone      string  `json:"phone" validate:"required,id_phone"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	Line       string  `json:"address" validate:"required"`
	City       string  `json:"city" validate:"required"`
	CityID     string  `json:"city_id,omitempty"`
	Province   string  `json:"province" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required,id_postal"`
}

// ShippingSelection is the courier option a buyer picked for one vendor group.
type ShippingSelection struct {
	Courier string          `json:"courier" validate:"required"`
	Service string          `json:"service" validate:"required"`
	Cost    decimal.Decimal `json:"cost"`
}

type CreateOrderInput struct {
	UserID           uuid.UUID
	CartID           uuid.UUID
	Address          Address
	ShippingByVendor map[uuid.UUID]ShippingSelection
	Notes            *string
}

// Shortfall names the SKU that could not be reserved.
type Shortfall struct {
	SkuID     uuid.UUID `json:"sku_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

type Rejection struct {
	Reason    string         `json:"reason"`
	Problems  []cart.Problem `json:"problems,omitempty"`
	Shortfall *Shortfall     `json:"shortfall,omitempty"`
}

// CreateResult holds exactly one of Created or Rejected.
type CreateResult struct {
	Created  *models.Order
	Rejected *Rejection
}

func (r CreateResult) OK() bool {
	return r.Created != nil
}

// Actor identifies who triggered a transition; a nil UserID is the system.
type Actor struct {
	UserID *uuid.UUID
	Role   enums.ActorRole
}

func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleOperator}
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *a.UserID, Role: a.Role.String()}
}

type TaxSummary struct {
	VAT         decimal.Decimal `json:"vat"`
	Withholding decimal.Decimal `json:"withholding"`
	Total       decimal.Decimal `json:"total"`
}

type ShippingSummary struct {
	Courier string          `json:"courier,omitempty"`
	Service string          `json:"service,omitempty"`
	Cost    decimal.Decimal `json:"cost"`
}

type ItemSummary struct {
	ID          uuid.UUID             `json:"id"`
	ProductName string                `json:"product_name"`
	SkuCode     string                `json:"sku_code"`
	Quantity    int                   `json:"quantity"`
	Price       decimal.Decimal       `json:"price"`
	Subtotal    decimal.Decimal       `json:"subtotal"`
	Status      enums.OrderItemStatus `json:"status"`
	Tracking    *string               `json:"tracking_number,omitempty"`
}

type VendorSummary struct {
	VendorID uuid.UUID       `json:"vendor_id"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Items    []ItemSummary   `json:"items"`
	Shipping ShippingSummary `json:"shipping"`
}

// OrderSummary is the review view of an order grouped by vendor.
type OrderSummary struct {
	ID           uuid.UUID         `json:"id"`
	OrderNumber  string            `json:"order_number"`
	Status       enums.OrderStatus `json:"status"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	ShippingCost decimal.Decimal   `json:"shipping_cost"`
	Tax          TaxSummary        `json:"tax"`
	Total        decimal.Decimal   `json:"total"`
	Address      Address           `json:"shipping_address"`
	Vendors      []VendorSummary   `json:"vendors"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
