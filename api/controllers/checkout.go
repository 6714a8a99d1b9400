package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/api/middleware"
	"github.com/angelmondragon/marketplace-core/api/responses"
	"github.com/angelmondragon/marketplace-core/api/validators"
	"github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/internal/orders"
	"github.com/angelmondragon/marketplace-core/internal/payments"
	"github.com/angelmondragon/marketplace-core/internal/shipping"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

type checkoutCarts interface {
	GetOrCreate(ctx context.Context, owner cart.Owner) (*models.Cart, error)
	Summary(ctx context.Context, cartID uuid.UUID) (*cart.Summary, error)
}

type checkoutOrders interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (orders.CreateResult, error)
}

type paymentSessions interface {
	CreateSession(ctx context.Context, orderID uuid.UUID) (payments.Session, error)
}

type shippingQuoter interface {
	Quote(ctx context.Context, group shipping.Group, destination string, couriers []string) (shipping.Quote, error)
}

// CheckoutDeps groups the collaborators of the checkout endpoints. Quoter is
// optional; without it shipping selections are accepted as submitted.
type CheckoutDeps struct {
	Carts    checkoutCarts
	Orders   checkoutOrders
	Payments paymentSessions
	Quoter   shippingQuoter
}

type checkoutShipping struct {
	VendorID uuid.UUID       `json:"vendor_id" validate:"required"`
	Courier  string          `json:"courier" validate:"required,max=32"`
	Service  string          `json:"service" validate:"required,max=64"`
	Cost     decimal.Decimal `json:"cost"`
}

type checkoutRequest struct {
	Address  orders.Address     `json:"shipping_address"`
	Shipping []checkoutShipping `json:"shipping" validate:"required,min=1,dive"`
	Notes    *string            `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type checkoutResponse struct {
	Order        orders.OrderSummary `json:"order"`
	Payment      *payments.Session   `json:"payment,omitempty"`
	PaymentError string              `json:"payment_error,omitempty"`
}

type shippingQuoteRequest struct {
	DestinationCityID string   `json:"destination_city_id" validate:"required,max=16"`
	Couriers          []string `json:"couriers,omitempty" validate:"omitempty,dive,max=16"`
}

// Checkout converts the caller's cart into an order and opens a payment
// session for it. A failed session does not undo the order; the buyer retries
// through the order's payment-session endpoint.
func Checkout(deps CheckoutDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if deps.Carts == nil || deps.Orders == nil || deps.Payments == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		userID, _, ok := middleware.ActorFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		userCart, err := deps.Carts.GetOrCreate(ctx, cart.Owner{UserID: &userID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		selections := make(map[uuid.UUID]orders.ShippingSelection, len(req.Shipping))
		for _, s := range req.Shipping {
			if _, dup := selections[s.VendorID]; dup {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "duplicate shipping selection").WithDetails(map[string]any{"vendor_id": s.VendorID.String()}))
				return
			}
			if s.Cost.IsNegative() {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost must not be negative").WithDetails(map[string]any{"vendor_id": s.VendorID.String()}))
				return
			}
			selections[s.VendorID] = orders.ShippingSelection{Courier: s.Courier, Service: s.Service, Cost: s.Cost}
		}

		if deps.Quoter != nil && req.Address.CityID != "" {
			if err := verifySelections(ctx, deps, userCart.ID, req.Address.CityID, selections); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		result, err := deps.Orders.CreateOrder(ctx, orders.CreateOrderInput{
			UserID:           userID,
			CartID:           userCart.ID,
			Address:          req.Address,
			ShippingByVendor: selections,
			Notes:            req.Notes,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !result.OK() {
			responses.WriteError(ctx, logg, w, rejectionError(result.Rejected))
			return
		}

		order := result.Created
		resp := checkoutResponse{Order: orders.Summarize(order)}
		session, err := deps.Payments.CreateSession(ctx, order.ID)
		if err != nil {
			if logg != nil {
				warnCtx := logg.WithOrderID(ctx, order.ID.String())
				warnCtx = logg.WithField(warnCtx, "error", err.Error())
				logg.Warn(warnCtx, "checkout.payment_session_failed")
			}
			resp.PaymentError = "payment session unavailable, retry from the order"
		} else {
			resp.Payment = &session
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// ShippingQuotes prices every vendor group of the caller's cart.
func ShippingQuotes(deps CheckoutDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if deps.Quoter == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "shipping quotes unavailable"))
			return
		}
		if deps.Carts == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, _, ok := middleware.ActorFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		var req shippingQuoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		userCart, err := deps.Carts.GetOrCreate(ctx, cart.Owner{UserID: &userID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		summary, err := deps.Carts.Summary(ctx, userCart.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if len(summary.Vendors) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, cart.ReasonCartEmpty))
			return
		}
		quotes := make([]shipping.Quote, 0, len(summary.Vendors))
		for _, group := range summary.Vendors {
			quote, err := deps.Quoter.Quote(ctx, shipping.GroupFromCart(group), req.DestinationCityID, req.Couriers)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			quotes = append(quotes, quote)
		}
		responses.WriteSuccess(w, map[string]any{"quotes": quotes})
	}
}

func verifySelections(ctx context.Context, deps CheckoutDeps, cartID uuid.UUID, destination string, selections map[uuid.UUID]orders.ShippingSelection) error {
	summary, err := deps.Carts.Summary(ctx, cartID)
	if err != nil {
		return err
	}
	for _, group := range summary.Vendors {
		sel, ok := selections[group.VendorID]
		if !ok {
			continue
		}
		quote, err := deps.Quoter.Quote(ctx, shipping.GroupFromCart(group), destination, []string{sel.Courier})
		if err != nil {
			return err
		}
		if err := shipping.Validate(shipping.Selection{Courier: sel.Courier, Service: sel.Service, Cost: sel.Cost}, quote); err != nil {
			return err
		}
	}
	return nil
}

func rejectionError(rej *orders.Rejection) error {
	if rej == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "checkout rejected")
	}
	if rej.Reason == orders.RejectInsufficientStock {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(rej)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "cart is not ready for checkout").WithDetails(rej)
}
