package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-core/internal/orders"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
)

type stubFulfilment struct {
	actor    orders.Actor
	ship     orders.ShipInput
	reason   string
	stateErr error
}

func (s *stubFulfilment) order(id uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if s.stateErr != nil {
		return nil, s.stateErr
	}
	return &models.Order{ID: id, OrderNumber: "ORD-1", Status: status}, nil
}

func (s *stubFulfilment) StartProcessing(_ context.Context, id uuid.UUID, actor orders.Actor) (*models.Order, error) {
	s.actor = actor
	return s.order(id, enums.OrderStatusProcessing)
}

func (s *stubFulfilment) Ship(_ context.Context, input orders.ShipInput) (*models.Order, error) {
	s.ship = input
	s.actor = input.Actor
	return s.order(input.OrderID, enums.OrderStatusShipped)
}

func (s *stubFulfilment) Complete(_ context.Context, id uuid.UUID, actor orders.Actor) (*models.Order, error) {
	s.actor = actor
	return s.order(id, enums.OrderStatusCompleted)
}

func (s *stubFulfilment) Refund(_ context.Context, id uuid.UUID, reason string, actor orders.Actor) (*models.Order, error) {
	s.actor = actor
	s.reason = reason
	return s.order(id, enums.OrderStatusRefunded)
}

func TestAdminOrderTransitions(t *testing.T) {
	operator := uuid.New()
	orderID := uuid.New()
	vendorID := uuid.New()
	cases := []struct {
		name    string
		handler func(fulfilmentService) http.HandlerFunc
		body    string
		status  enums.OrderStatus
	}{
		{"process", func(s fulfilmentService) http.HandlerFunc { return AdminProcessOrder(s, nil) }, "", enums.OrderStatusProcessing},
		{"ship", func(s fulfilmentService) http.HandlerFunc { return AdminShipOrder(s, nil) }, `{"tracking_numbers":{"` + vendorID.String() + `":"JNE123"}}`, enums.OrderStatusShipped},
		{"complete", func(s fulfilmentService) http.HandlerFunc { return AdminCompleteOrder(s, nil) }, "", enums.OrderStatusCompleted},
		{"refund", func(s fulfilmentService) http.HandlerFunc { return AdminRefundOrder(s, nil) }, `{"reason":"damaged in transit"}`, enums.OrderStatusRefunded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubFulfilment{}
			resp := httptest.NewRecorder()
			req := authedRequest(http.MethodPost, "/api/v1/admin/orders/"+orderID.String()+"/"+tc.name, tc.body, operator, enums.ActorRoleOperator, map[string]string{"orderId": orderID.String()})
			tc.handler(svc).ServeHTTP(resp, req)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
			}
			if !strings.Contains(resp.Body.String(), string(tc.status)) {
				t.Fatalf("expected status %s in body: %s", tc.status, resp.Body.String())
			}
			if svc.actor.UserID == nil || *svc.actor.UserID != operator || svc.actor.Role != enums.ActorRoleOperator {
				t.Fatalf("expected operator actor, got %+v", svc.actor)
			}
		})
	}
}

func TestAdminShipForwardsTracking(t *testing.T) {
	svc := &stubFulfilment{}
	orderID := uuid.New()
	vendorID := uuid.New()
	resp := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/", `{"tracking_numbers":{"`+vendorID.String()+`":"JNE123"}}`, uuid.New(), enums.ActorRoleOperator, map[string]string{"orderId": orderID.String()})
	AdminShipOrder(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.ship.OrderID != orderID || svc.ship.TrackingNumbers[vendorID] != "JNE123" {
		t.Fatalf("unexpected ship input %+v", svc.ship)
	}
}

func TestAdminOrderRejectsBadInput(t *testing.T) {
	svc := &stubFulfilment{}
	orderID := uuid.New()

	resp := httptest.NewRecorder()
	AdminProcessOrder(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/", "", uuid.New(), enums.ActorRoleOperator, map[string]string{"orderId": "nope"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	AdminShipOrder(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/", `{"tracking_numbers":{}}`, uuid.New(), enums.ActorRoleOperator, map[string]string{"orderId": orderID.String()}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty tracking, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	AdminRefundOrder(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/", `{}`, uuid.New(), enums.ActorRoleOperator, map[string]string{"orderId": orderID.String()}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing reason, got %d", resp.Code)
	}
}

func TestAdminOrderStateConflict(t *testing.T) {
	svc := &stubFulfilment{stateErr: pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot transition from pending to shipped")}
	orderID := uuid.New()
	resp := httptest.NewRecorder()
	AdminCompleteOrder(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/", "", uuid.New(), enums.ActorRoleOperator, map[string]string{"orderId": orderID.String()}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}
