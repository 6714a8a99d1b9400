package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/midtrans"
	"github.com/angelmondragon/marketplace-core/pkg/money"
)

// Gateway is the hosted-payment surface the service drives.
type Gateway interface {
	CreateTransaction(ctx context.Context, req midtrans.SnapRequest) (*midtrans.SnapResponse, error)
	Status(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error)
	Cancel(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error)
}

type orderReader interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Session is the hosted-payment handle returned to the buyer.
type Session struct {
	Token       string    `json:"token"`
	RedirectURL string    `json:"redirect_url"`
	OrderNumber string    `json:"order_number"`
	PaymentID   uuid.UUID `json:"payment_id"`
}

type Service interface {
	CreateSession(ctx context.Context, orderID uuid.UUID) (Session, error)
	CheckStatus(ctx context.Context, orderNumber string) (*midtrans.TransactionStatus, error)
	CancelTransaction(ctx context.Context, orderNumber string) (*midtrans.TransactionStatus, error)
}

type ServiceParams struct {
	Repo      Repository
	Orders    orderReader
	Gateway   Gateway
	Tx        txRunner
	FinishURL string
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	orders    orderReader
	gateway   Gateway
	tx        txRunner
	finishURL string
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order reader required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:      params.Repo,
		orders:    params.Orders,
		gateway:   params.Gateway,
		tx:        params.Tx,
		finishURL: params.FinishURL,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// CreateSession opens a hosted payment page for a pending order. The payment
// row is written only after the gateway issues a token, and only while the
// order, re-read under its row lock, is still pending and unpaid.
func (s *service) CreateSession(ctx context.Context, orderID uuid.UUID) (Session, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Session{}, err
	}
	if order.Status != enums.OrderStatusPending {
		return Session{}, sessionConflict(order, "payment can only be started for pending orders", map[string]any{"status": order.Status})
	}

	resp, err := s.gateway.CreateTransaction(ctx, BuildRequest(order, s.finishURL))
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "payment session creation failed", err)
		}
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
	}

	var paymentID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		status, err := repo.LockOrderStatus(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if status != enums.OrderStatusPending {
			return sessionConflict(order, "order changed while the payment session was created", map[string]any{"status": status})
		}
		existing, err := repo.LockByOrderID(ctx, order.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			token := resp.Token
			method := enums.PaymentMethodSnap.String()
			payment := &models.Payment{
				OrderID:       order.ID,
				SnapToken:     &token,
				PaymentMethod: &method,
				Amount:        order.Total,
				Status:        enums.PaymentStatusPending,
			}
			if err := repo.Create(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
			}
			paymentID = payment.ID
			return nil
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if existing.Status == enums.PaymentStatusSuccess {
			return sessionConflict(order, "payment already settled", map[string]any{"payment_status": existing.Status})
		}
		paymentID = existing.ID
		if err := repo.Update(ctx, existing.ID, map[string]any{
			"snap_token": resp.Token,
			"amount":     order.Total,
			"status":     enums.PaymentStatusPending,
			"updated_at": s.now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh payment")
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		OrderNumber: order.OrderNumber,
		PaymentID:   paymentID,
	}, nil
}

func sessionConflict(order *models.Order, msg string, details map[string]any) error {
	details["order_id"] = order.ID.String()
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(details)
}

func (s *service) CheckStatus(ctx context.Context, orderNumber string) (*midtrans.TransactionStatus, error) {
	return s.passthrough(ctx, orderNumber, "check payment status", s.gateway.Status)
}

func (s *service) CancelTransaction(ctx context.Context, orderNumber string) (*midtrans.TransactionStatus, error) {
	return s.passthrough(ctx, orderNumber, "cancel payment", s.gateway.Cancel)
}

func (s *service) passthrough(ctx context.Context, orderNumber, action string, call func(context.Context, string) (*midtrans.TransactionStatus, error)) (*midtrans.TransactionStatus, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	status, err := call(ctx, orderNumber)
	if errors.Is(err, midtrans.ErrTransactionNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
	return status, nil
}

// BuildRequest maps an order onto a Snap request. Shipping and tax become
// synthetic line items so the item total matches the gross amount.
func BuildRequest(order *models.Order, finishURL string) midtrans.SnapRequest {
	req := midtrans.SnapRequest{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:     order.OrderNumber,
			GrossAmount: money.ToIDR(order.Total),
		},
		CustomerDetails: &midtrans.CustomerDetails{
			FirstName: order.ShippingName,
			Phone:     order.ShippingPhone,
		},
	}
	if order.ShippingEmail != nil {
		req.CustomerDetails.Email = *order.ShippingEmail
	}
	for _, item := range order.Items {
		req.Items = append(req.Items, midtrans.ItemDetail{
			ID:       item.SkuID.String(),
			Price:    money.ToIDR(item.Price),
			Quantity: item.Quantity,
			Name:     midtrans.TruncateName(item.ProductName),
		})
	}
	if order.ShippingCost.IsPositive() {
		req.Items = append(req.Items, midtrans.ItemDetail{ID: "SHIPPING", Price: money.ToIDR(order.ShippingCost), Quantity: 1, Name: "Shipping Cost"})
	}
	if order.TaxAmount.IsPositive() {
		req.Items = append(req.Items, midtrans.ItemDetail{ID: "TAX", Price: money.ToIDR(order.TaxAmount), Quantity: 1, Name: "Tax"})
	}
	if finishURL != "" {
		req.Callbacks = &midtrans.Callbacks{Finish: finishURL}
	}
	return req
}
