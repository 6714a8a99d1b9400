package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-core/api/middleware"
	"github.com/angelmondragon/marketplace-core/api/responses"
	"github.com/angelmondragon/marketplace-core/api/validators"
	"github.com/angelmondragon/marketplace-core/internal/orders"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

type fulfilmentService interface {
	StartProcessing(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	Ship(ctx context.Context, input orders.ShipInput) (*models.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID, reason string, actor orders.Actor) (*models.Order, error)
}

type shipRequest struct {
	TrackingNumbers map[uuid.UUID]string `json:"tracking_numbers" validate:"required,min=1,dive,required,max=64"`
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdminProcessOrder moves a paid order into processing.
func AdminProcessOrder(svc fulfilmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actor, ok := operatorOrderRequest(w, r, svc != nil, logg)
		if !ok {
			return
		}
		order, err := svc.StartProcessing(r.Context(), orderID, actor)
		writeOrder(w, r, logg, order, err)
	}
}

// AdminShipOrder records tracking numbers per vendor and marks the order shipped.
func AdminShipOrder(svc fulfilmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actor, ok := operatorOrderRequest(w, r, svc != nil, logg)
		if !ok {
			return
		}
		var req shipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Ship(r.Context(), orders.ShipInput{OrderID: orderID, TrackingNumbers: req.TrackingNumbers, Actor: actor})
		writeOrder(w, r, logg, order, err)
	}
}

// AdminCompleteOrder confirms delivery; completed items become payable.
func AdminCompleteOrder(svc fulfilmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actor, ok := operatorOrderRequest(w, r, svc != nil, logg)
		if !ok {
			return
		}
		order, err := svc.Complete(r.Context(), orderID, actor)
		writeOrder(w, r, logg, order, err)
	}
}

// AdminRefundOrder refunds a shipped or completed order and restocks its items.
func AdminRefundOrder(svc fulfilmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, actor, ok := operatorOrderRequest(w, r, svc != nil, logg)
		if !ok {
			return
		}
		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Refund(r.Context(), orderID, validators.CleanText(req.Reason, 500), actor)
		writeOrder(w, r, logg, order, err)
	}
}

func operatorOrderRequest(w http.ResponseWriter, r *http.Request, available bool, logg *logger.Logger) (uuid.UUID, orders.Actor, bool) {
	if !available {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return uuid.Nil, orders.Actor{}, false
	}
	userID, role, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, orders.Actor{}, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, orders.Actor{}, false
	}
	return orderID, orders.Actor{UserID: &userID, Role: role}, true
}

func writeOrder(w http.ResponseWriter, r *http.Request, logg *logger.Logger, order *models.Order, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, orders.Summarize(order))
}
