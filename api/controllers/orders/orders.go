package orders

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-core/api/middleware"
	"github.com/angelmondragon/marketplace-core/api/responses"
	"github.com/angelmondragon/marketplace-core/api/validators"
	internalorders "github.com/angelmondragon/marketplace-core/internal/orders"
	"github.com/angelmondragon/marketplace-core/internal/payments"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/pagination"
)

type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (internalorders.OrderList, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor internalorders.Actor) (*models.Order, error)
}

type paymentSessions interface {
	CreateSession(ctx context.Context, orderID uuid.UUID) (payments.Session, error)
}

type HistoryEntry struct {
	Status      string     `json:"status"`
	Notes       *string    `json:"notes,omitempty"`
	OrderItemID *uuid.UUID `json:"order_item_id,omitempty"`
	ActorID     *uuid.UUID `json:"actor_id,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

type orderDetail struct {
	internalorders.OrderSummary
	PaymentMethod *string        `json:"payment_method,omitempty"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CancelledAt   *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	History       []HistoryEntry `json:"history"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// List returns the caller's orders newest first.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, _, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		list, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with its status history.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, ok := loadOwnedOrder(w, r, svc, logg)
		if !ok {
			return
		}
		history, err := svc.History(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buildDetail(order, history))
	}
}

// CancelOrder cancels a pending or paid order on behalf of its buyer.
func CancelOrder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, ok := loadOwnedOrder(w, r, svc, logg)
		if !ok {
			return
		}
		userID, role, _ := middleware.ActorFromContext(r.Context())
		reason := validators.CleanText(req.Reason, 500)
		if reason == "" {
			reason = "Cancelled by buyer"
		}
		updated, err := svc.Cancel(r.Context(), order.ID, reason, internalorders.Actor{UserID: &userID, Role: role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.Summarize(updated))
	}
}

// PaymentSession opens a fresh gateway session for a pending order.
func PaymentSession(svc Service, sessions paymentSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}
		order, ok := loadOwnedOrder(w, r, svc, logg)
		if !ok {
			return
		}
		session, err := sessions.CreateSession(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// loadOwnedOrder resolves the orderId parameter; buyers only see their own
// orders and a foreign order reads as not found.
func loadOwnedOrder(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (*models.Order, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return nil, false
	}
	userID, role, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	order, err := svc.Get(r.Context(), orderID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if role != enums.ActorRoleOperator && order.UserID != userID {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
		return nil, false
	}
	return order, true
}

func buildDetail(order *models.Order, history []models.OrderStatusHistory) orderDetail {
	detail := orderDetail{
		OrderSummary:  internalorders.Summarize(order),
		PaymentMethod: order.PaymentMethod,
		PaidAt:        order.PaidAt,
		CompletedAt:   order.CompletedAt,
		CancelledAt:   order.CancelledAt,
		CreatedAt:     order.CreatedAt,
		History:       make([]HistoryEntry, 0, len(history)),
	}
	for _, h := range history {
		detail.History = append(detail.History, HistoryEntry{
			Status:      h.Status,
			Notes:       h.Notes,
			OrderItemID: h.OrderItemID,
			ActorID:     h.ActorID,
			OccurredAt:  h.OccurredAt,
		})
	}
	return detail
}
