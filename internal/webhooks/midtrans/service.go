package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/internal/orders"
	"github.com/angelmondragon/marketplace-core/internal/payments"
	"github.com/angelmondragon/marketplace-core/internal/vendors"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/outbox/payloads"
)

type OutcomeKind string

const (
	OutcomeProcessed OutcomeKind = "processed"
	OutcomeIgnored   OutcomeKind = "ignored"

	// RecorderDuplicate and RecorderError complement the outcome kinds in metrics.
	RecorderDuplicate = "duplicate"
	RecorderError     = "error"

	// DedupeScope namespaces notification keys in the idempotency store.
	DedupeScope = "midtrans-notification"

	lateSettlementNote = "late_settlement"
)

// Outcome describes what a notification did. Ignored outcomes are still
// acknowledged to the gateway.
type Outcome struct {
	Kind          OutcomeKind         `json:"kind"`
	Message       string              `json:"message"`
	OrderID       uuid.UUID           `json:"order_id,omitempty"`
	OrderStatus   enums.OrderStatus   `json:"order_status,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"payment_status,omitempty"`
	AlreadyPaid   bool                `json:"already_paid,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderWorkflow is the subset of the order service reconciliation drives.
type orderWorkflow interface {
	MarkAsPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paymentMethod string) (*models.Order, error)
	CancelInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor orders.Actor) (*models.Order, error)
}

// SignatureVerifier checks notification signatures.
type SignatureVerifier interface {
	VerifySignature(orderID, statusCode, grossAmount, signatureKey string) bool
}

// Recorder observes webhook outcomes.
type Recorder interface {
	ObserveWebhook(outcome string)
}

type ServiceParams struct {
	Tx       txRunner
	Orders   orders.Repository
	Workflow orderWorkflow
	Payments payments.Repository
	Vendors  vendors.Repository
	Outbox   outboxPublisher
	Verifier SignatureVerifier
	Guard    *IdempotencyGuard
	Logger   *logger.Logger
	Recorder Recorder
}

type Service struct {
	tx       txRunner
	orders   orders.Repository
	workflow orderWorkflow
	payments payments.Repository
	vendors  vendors.Repository
	outbox   outboxPublisher
	verifier SignatureVerifier
	guard    *IdempotencyGuard
	logg     *logger.Logger
	recorder Recorder
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	case params.Workflow == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order workflow required")
	case params.Payments == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	case params.Vendors == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "vendors repo required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	return &Service{
		tx:       params.Tx,
		orders:   params.Orders,
		workflow: params.Workflow,
		payments: params.Payments,
		vendors:  params.Vendors,
		outbox:   params.Outbox,
		verifier: params.Verifier,
		guard:    params.Guard,
		logg:     params.Logger,
		recorder: params.Recorder,
		now:      time.Now,
	}, nil
}

// HandleNotification reconciles one gateway notification. Every state change
// it causes commits in a single transaction or not at all.
func (s *Service) HandleNotification(ctx context.Context, payload []byte) (Outcome, error) {
	n, err := Decode(payload)
	if err != nil {
		s.observe(RecorderError)
		return Outcome{}, err
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"order_number":       n.OrderID,
			"transaction_status": n.TransactionStatus,
			"transaction_id":     n.TransactionID,
		})
	}
	if s.verifier != nil && !s.verifier.VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey) {
		s.observe(RecorderError)
		s.warn(ctx, "notification signature rejected")
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification signature")
	}

	key := n.DedupeKey()
	if s.guard != nil {
		committed, err := s.guard.Committed(ctx, key)
		if err != nil {
			s.warn(ctx, "notification dedupe unavailable: "+err.Error())
		} else if committed {
			s.observe(RecorderDuplicate)
			return Outcome{Kind: OutcomeIgnored, Message: "Duplicate notification"}, nil
		}
	}

	var outcome Outcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.reconcile(ctx, tx, n)
		return err
	})
	if err != nil {
		s.observe(RecorderError)
		if s.logg != nil {
			s.logg.Error(ctx, "notification reconciliation failed", err)
		}
		return Outcome{}, err
	}
	if s.guard != nil {
		if err := s.guard.MarkCommitted(ctx, key); err != nil {
			s.warn(ctx, "record notification dedupe key: "+err.Error())
		}
	}
	s.observe(string(outcome.Kind))
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "outcome", outcome.Message), "notification reconciled")
	}
	return outcome, nil
}

func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, n Notification) (Outcome, error) {
	order, err := s.orders.WithTx(tx).LockByNumber(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithDetails(map[string]any{"order_number": n.OrderID})
		}
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	if order.Status.IsPaidOrLater() {
		return Outcome{
			Kind:        OutcomeProcessed,
			Message:     "Order already paid",
			OrderID:     order.ID,
			OrderStatus: order.Status,
			AlreadyPaid: true,
		}, nil
	}

	payment, err := s.findOrCreatePayment(ctx, tx, order, n)
	if err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{Kind: OutcomeProcessed, OrderID: order.ID, OrderStatus: order.Status, PaymentStatus: payment.Status}
	now := s.now().UTC()
	status := n.TransactionStatus

	if order.Status == enums.OrderStatusCancelled {
		if !status.IsSuccess() {
			outcome.Kind = OutcomeIgnored
			outcome.Message = "Order already cancelled"
			return outcome, nil
		}
		note := lateSettlementNote
		if err := s.updatePayment(ctx, tx, payment, map[string]any{
			"status":  enums.PaymentStatusSuccess,
			"paid_at": now,
			"notes":   note,
		}); err != nil {
			return Outcome{}, err
		}
		s.warn(ctx, "payment settled for cancelled order")
		outcome.PaymentStatus = enums.PaymentStatusSuccess
		outcome.Message = "Late settlement recorded for cancelled order"
		return outcome, nil
	}

	switch {
	case status.IsSuccess() && n.FraudAccepted():
		method := enums.PaymentMethodFromGateway(n.PaymentType)
		updates := map[string]any{"status": enums.PaymentStatusSuccess, "paid_at": now}
		if method != enums.PaymentMethodSnap {
			updates["payment_method"] = method.String()
		}
		if err := s.updatePayment(ctx, tx, payment, updates); err != nil {
			return Outcome{}, err
		}
		paid, err := s.workflow.MarkAsPaid(ctx, tx, order.ID, method.String())
		if err != nil {
			return Outcome{}, err
		}
		if err := s.creditVendors(ctx, tx, order.Items); err != nil {
			return Outcome{}, err
		}
		outcome.OrderStatus = paid.Status
		outcome.PaymentStatus = enums.PaymentStatusSuccess
		outcome.Message = "Payment successful"

	case status.IsSuccess():
		reason := fmt.Sprintf("Fraud detected: %s", n.FraudStatus)
		if err := s.fail(ctx, tx, order, payment, enums.PaymentStatusFailed, status, reason); err != nil {
			return Outcome{}, err
		}
		outcome.PaymentStatus = enums.PaymentStatusFailed
		outcome.Message = "Payment failed: fraud check"

	case status == enums.TransactionStatusPending && payment.Status.IsFinal():
		outcome.Kind = OutcomeIgnored
		outcome.Message = "Pending notification after final payment status"

	case status == enums.TransactionStatusPending:
		if err := s.updatePayment(ctx, tx, payment, map[string]any{"status": enums.PaymentStatusPending}); err != nil {
			return Outcome{}, err
		}
		outcome.PaymentStatus = enums.PaymentStatusPending
		outcome.Message = "Payment pending"

	case status.IsFailure():
		paymentStatus := enums.PaymentStatusFailed
		if status == enums.TransactionStatusExpire {
			paymentStatus = enums.PaymentStatusExpired
		}
		if err := s.fail(ctx, tx, order, payment, paymentStatus, status, "Transaction "+string(status)); err != nil {
			return Outcome{}, err
		}
		cancelled, err := s.workflow.CancelInTx(ctx, tx, order.ID, "Payment "+string(status), orders.SystemActor())
		if err != nil {
			return Outcome{}, err
		}
		outcome.OrderStatus = cancelled.Status
		outcome.PaymentStatus = paymentStatus
		outcome.Message = "Payment " + string(status)

	default:
		outcome.Kind = OutcomeIgnored
		outcome.Message = "Unhandled status"
	}
	return outcome, nil
}

func (s *Service) findOrCreatePayment(ctx context.Context, tx *gorm.DB, order *models.Order, n Notification) (*models.Payment, error) {
	repo := s.payments.WithTx(tx)
	payment, err := repo.LockByOrderID(ctx, order.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		method := enums.PaymentMethodSnap.String()
		payment = &models.Payment{
			OrderID:       order.ID,
			PaymentMethod: &method,
			Amount:        order.Total,
			Status:        enums.PaymentStatusPending,
		}
		if err := repo.Create(ctx, payment); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
	} else if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
	}

	updates := map[string]any{"gateway_response": n.Raw}
	if n.TransactionID != "" {
		updates["transaction_id"] = n.TransactionID
	}
	if err := s.updatePayment(ctx, tx, payment, updates); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) updatePayment(ctx context.Context, tx *gorm.DB, payment *models.Payment, updates map[string]any) error {
	updates["updated_at"] = s.now().UTC()
	if err := s.payments.WithTx(tx).Update(ctx, payment.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	if status, ok := updates["status"].(enums.PaymentStatus); ok {
		payment.Status = status
	}
	return nil
}

func (s *Service) fail(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, paymentStatus enums.PaymentStatus, status enums.TransactionStatus, reason string) error {
	if err := s.updatePayment(ctx, tx, payment, map[string]any{"status": paymentStatus, "notes": reason}); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Data: payloads.PaymentFailedEvent{
			OrderID:           order.ID,
			OrderNumber:       order.OrderNumber,
			PaymentID:         payment.ID,
			TransactionStatus: status,
			Reason:            reason,
		},
	})
}

// creditVendors adds each vendor's stored earnings once, locking vendor rows
// in ascending id order.
func (s *Service) creditVendors(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	earnings := map[uuid.UUID]decimal.Decimal{}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := earnings[item.VendorID]; !ok {
			ids = append(ids, item.VendorID)
		}
		earnings[item.VendorID] = earnings[item.VendorID].Add(item.VendorEarnings)
	}
	repo := s.vendors.WithTx(tx)
	ids = vendors.SortedIDs(ids)
	if _, err := repo.LockMany(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		if err := repo.Credit(ctx, id, earnings[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) observe(outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveWebhook(outcome)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}
