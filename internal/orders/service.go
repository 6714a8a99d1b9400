package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/internal/commission"
	"github.com/angelmondragon/marketplace-core/internal/stock"
	"github.com/angelmondragon/marketplace-core/internal/tax"
	"github.com/angelmondragon/marketplace-core/internal/vendors"
	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/money"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-core/pkg/pagination"
)

const (
	orderNumberSavepoint = "order_number"
	sweepBatchSize       = 200
)

// Service drives the order lifecycle.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (CreateResult, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error)
	CancelInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error)
	MarkAsPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paymentMethod string) (*models.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error)
	StartProcessing(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Ship(ctx context.Context, input ShipInput) (*models.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	AutoComplete(ctx context.Context, olderThan time.Duration) (int, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (OrderList, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
}

// ShipInput carries tracking numbers keyed by vendor id.
type ShipInput struct {
	OrderID         uuid.UUID
	TrackingNumbers map[uuid.UUID]string
	Actor           Actor
}

// ServiceParams groups the order workflow collaborators.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Stock      StockLedger
	Carts      cartValidator
	Commission *commission.Calculator
	Tax        *tax.Calculator
	Numbers    numberGenerator
	Config     config.MarketplaceConfig
	Logger     *logger.Logger
	Recorder   CheckoutRecorder
	// Vendors reverses credited earnings when a paid order is cancelled.
	// Nil skips the reversal.
	Vendors    vendorBalances
}

type vendorBalances interface {
	WithTx(tx *gorm.DB) vendors.Repository
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	stock      StockLedger
	carts      cartValidator
	commission *commission.Calculator
	tax        *tax.Calculator
	numbers    numberGenerator
	attempts   int
	logg       *logger.Logger
	recorder   CheckoutRecorder
	vendors    vendorBalances
	now        func() time.Time
}

// NewService builds the order workflow with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart validator required")
	case params.Commission == nil:
		return nil, fmt.Errorf("commission calculator required")
	case params.Tax == nil:
		return nil, fmt.Errorf("tax calculator required")
	case params.Numbers == nil:
		return nil, fmt.Errorf("order number generator required")
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		outbox:     params.Outbox,
		stock:      params.Stock,
		carts:      params.Carts,
		commission: params.Commission,
		tax:        params.Tax,
		numbers:    params.Numbers,
		attempts:   max(params.Config.OrderNumberAttempts, 1),
		logg:       params.Logger,
		recorder:   params.Recorder,
		vendors:    params.Vendors,
		now:        time.Now,
	}, nil
}

// rejectedError aborts the checkout transaction while carrying the business
// rejection back to the caller.
type rejectedError struct {
	rejection Rejection
}

func (e *rejectedError) Error() string {
	return "checkout rejected: " + e.rejection.Reason
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (CreateResult, error) {
	if input.UserID == uuid.Nil {
		return CreateResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.CartID == uuid.Nil {
		return CreateResult{}, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	ctx = s.fields(ctx, map[string]any{"cart_id": input.CartID.String(), "user_id": input.UserID.String()})

	validation, err := s.carts.Validate(ctx, input.CartID)
	if err != nil {
		s.observe(CheckoutError)
		return CreateResult{}, err
	}
	if !validation.Valid {
		s.observe(CheckoutInvalidCart)
		s.warn(ctx, "checkout rejected: invalid cart")
		return CreateResult{Rejected: &Rejection{Reason: RejectInvalidCart, Problems: validation.Problems}}, nil
	}

	var orderID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.createInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})

	var rejected *rejectedError
	if errors.As(err, &rejected) {
		outcome := CheckoutInvalidCart
		fields := map[string]any{"reason": rejected.rejection.Reason}
		if sf := rejected.rejection.Shortfall; sf != nil {
			outcome = CheckoutInsufficientStock
			fields["sku_id"] = sf.SkuID.String()
			fields["requested"] = sf.Requested
			fields["available"] = sf.Available
		}
		s.observe(outcome)
		s.warn(s.fields(ctx, fields), "checkout rejected")
		return CreateResult{Rejected: &rejected.rejection}, nil
	}
	if err != nil {
		s.observe(CheckoutError)
		s.error(ctx, "checkout failed", err)
		return CreateResult{}, err
	}

	s.observe(CheckoutCreated)
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return CreateResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return CreateResult{Created: order}, nil
}

func (s *service) createInTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	c, err := repo.LoadCart(ctx, input.CartID)
	if err != nil {
		return nil, notFound(err, "cart not found", "load cart")
	}
	if c.UserID == nil || *c.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cart does not belong to user")
	}
	if len(c.Items) == 0 {
		return nil, &rejectedError{rejection: Rejection{
			Reason:   RejectInvalidCart,
			Problems: []cart.Problem{{Reason: cart.ReasonCartEmpty}},
		}}
	}

	summary := cart.Summarize(c)
	order, items, err := s.price(summary, input)
	if err != nil {
		return nil, err
	}
	if err := s.insertWithNumber(ctx, tx, repo, order); err != nil {
		return nil, err
	}

	requests := make([]stock.Request, 0, len(items))
	for _, item := range items {
		requests = append(requests, stock.Request{SkuID: item.SkuID, Qty: item.Quantity})
	}
	batch, err := s.stock.ReserveAll(ctx, tx, requests)
	if err != nil {
		return nil, err
	}
	if !batch.Reserved() {
		sf := batch.Shortfall
		if sf.Inactive {
			return nil, &rejectedError{rejection: Rejection{
				Reason: RejectInvalidCart,
				Problems: []cart.Problem{{
					SkuID:     sf.SkuID,
					Reason:    cart.ReasonSkuInactive,
					Requested: sf.Requested,
					Available: sf.Available,
				}},
			}}
		}
		return nil, &rejectedError{rejection: Rejection{
			Reason:    RejectInsufficientStock,
			Shortfall: &Shortfall{SkuID: sf.SkuID, Requested: sf.Requested, Available: sf.Available},
		}}
	}

	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := repo.CreateItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order items")
	}
	if err := repo.AppendHistory(ctx, s.history(order.ID, enums.OrderStatusPending, "Order created", actorFor(input.UserID))); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}

	vendorIDs := make([]uuid.UUID, 0, len(summary.Vendors))
	for _, group := range summary.Vendors {
		vendorIDs = append(vendorIDs, group.VendorID)
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         actorFor(input.UserID).ref(),
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			VendorIDs:   vendorIDs,
			Total:       order.Total,
		},
	}); err != nil {
		return nil, err
	}
	if err := repo.ClearCart(ctx, c.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return order, nil
}

// price snapshots every cart line into an order item and totals the order.
func (s *service) price(summary cart.Summary, input CreateOrderInput) (*models.Order, []models.OrderItem, error) {
	var (
		items     []models.OrderItem
		subtotals []decimal.Decimal
		shipping  = decimal.Zero
	)
	for _, group := range summary.Vendors {
		selection, ok := input.ShippingByVendor[group.VendorID]
		if !ok {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping option required for every vendor").WithDetails(map[string]any{
				"vendor_id": group.VendorID.String(),
			})
		}
		if selection.Cost.IsNegative() {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost must not be negative")
		}
		cost := money.Round(selection.Cost)
		shipping = shipping.Add(cost)
		courier, service := selection.Courier, selection.Service

		var vendorRate *decimal.Decimal
		if group.Vendor != nil {
			vendorRate = group.Vendor.CommissionRate
		}
		for _, line := range group.Items {
			var categoryRate *decimal.Decimal
			if line.Sku.Product != nil && line.Sku.Product.Category != nil {
				categoryRate = line.Sku.Product.Category.CommissionRate
			}
			breakdown := s.commission.Calculate(line.Subtotal, vendorRate, categoryRate)
			items = append(items, models.OrderItem{
				SkuID:            line.SkuID,
				VendorID:         group.VendorID,
				ProductName:      line.ProductName,
				SkuCode:          line.SkuCode,
				Price:            line.Price,
				Quantity:         line.Quantity,
				Subtotal:         line.Subtotal,
				CommissionRate:   breakdown.Rate,
				CommissionAmount: breakdown.CommissionAmount,
				VendorEarnings:   breakdown.VendorEarnings,
				ShippingCost:     cost,
				CourierName:      &courier,
				CourierService:   &service,
				Status:           enums.OrderItemStatusPending,
			})
			subtotals = append(subtotals, line.Subtotal)
		}
	}

	perItem, orderTax := s.tax.ForItems(subtotals)
	for i := range items {
		items[i].TaxAmount = perItem[i].Total
	}

	addr := input.Address
	order := &models.Order{
		UserID:                 input.UserID,
		Subtotal:               summary.Subtotal,
		ShippingCost:           shipping,
		TaxAmount:              orderTax.Total,
		VATAmount:              orderTax.VAT,
		MarketplaceWithholding: orderTax.Withholding,
		Total:                  money.Sum(summary.Subtotal, shipping, orderTax.Total),
		ShippingName:           addr.Name,
		ShippingPhone:          addr.Phone,
		ShippingEmail:          addr.Email,
		ShippingAddress:        addr.Line,
		ShippingCity:           addr.City,
		ShippingProvince:       addr.Province,
		ShippingPostalCode:     addr.PostalCode,
		Status:                 enums.OrderStatusPending,
		Notes:                  input.Notes,
	}
	return order, items, nil
}

// insertWithNumber inserts the order under a fresh number, retrying inside a
// savepoint when the number collides with an existing order.
func (s *service) insertWithNumber(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) error {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.OrderNumber = number
		if err := tx.SavePoint(orderNumberSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
		err = repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "orders_order_number_key", "orders.order_number") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		if rbErr := tx.RollbackTo(orderNumberSavepoint).Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback savepoint")
		}
		s.warn(s.fields(ctx, map[string]any{"order_number": number, "attempt": attempt}), "order number collision, retrying")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number")
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error) {
	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.CancelInTx(ctx, tx, orderID, reason, actor)
		out = order
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelInTx cancels a pending or paid order on the caller's transaction.
// Pending orders release their reservations; paid orders already consumed
// stock, so their quantities are restocked.
func (s *service) CancelInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order not found", "lock order")
	}
	if err := s.guard(order, enums.OrderStatusCancelled); err != nil {
		return nil, err
	}

	requests := stockRequests(order.Items)
	if len(requests) > 0 {
		if order.Status == enums.OrderStatusPaid {
			err = s.stock.RestockAll(ctx, tx, requests)
		} else {
			err = s.stock.ReleaseAll(ctx, tx, requests)
		}
		if err != nil {
			return nil, err
		}
	}
	if order.Status == enums.OrderStatusPaid {
		if err := s.reverseEarnings(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	if reason == "" {
		reason = "Order cancelled"
	}
	now := s.now().UTC()
	err = s.apply(ctx, tx, order, change{
		next:         enums.OrderStatusCancelled,
		itemStatus:   enums.OrderItemStatusCancelled,
		notes:        reason,
		event:        enums.EventOrderCancelled,
		orderUpdates: map[string]any{"cancelled_at": now},
	}, actor)
	if err != nil {
		return nil, err
	}
	order.CancelledAt = &now
	return order, nil
}

// MarkAsPaid commits reserved stock for every item and moves the order to
// paid. Only payment reconciliation calls it, on its own transaction.
func (s *service) MarkAsPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paymentMethod string) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to mark order paid")
	}
	order, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order not found", "lock order")
	}
	if err := s.guard(order, enums.OrderStatusPaid); err != nil {
		return nil, err
	}
	if requests := stockRequests(order.Items); len(requests) > 0 {
		if err := s.stock.CommitAll(ctx, tx, requests); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	updates := map[string]any{"paid_at": now}
	if paymentMethod != "" {
		updates["payment_method"] = paymentMethod
		order.PaymentMethod = &paymentMethod
	}
	err = s.apply(ctx, tx, order, change{
		next:         enums.OrderStatusPaid,
		notes:        "Payment received",
		event:        enums.EventOrderPaid,
		orderUpdates: updates,
		eventData: payloads.OrderPaidEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Total:         order.Total,
			PaymentMethod: paymentMethod,
			PaidAt:        now,
		},
	}, SystemActor())
	if err != nil {
		return nil, err
	}
	order.PaidAt = &now
	return order, nil
}

// reverseEarnings debits each vendor the earnings credited when order was
// paid, locking vendor rows in ascending id order.
func (s *service) reverseEarnings(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if s.vendors == nil {
		return nil
	}
	owed := map[uuid.UUID]decimal.Decimal{}
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		if _, seen := owed[item.VendorID]; !seen {
			ids = append(ids, item.VendorID)
		}
		owed[item.VendorID] = owed[item.VendorID].Add(item.VendorEarnings)
	}
	repo := s.vendors.WithTx(tx)
	ids = vendors.SortedIDs(ids)
	if _, err := repo.LockMany(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		ok, err := repo.Reverse(ctx, id, owed[id])
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vendor balance no longer covers order earnings").WithDetails(map[string]any{
				"order_id":  order.ID.String(),
				"vendor_id": id.String(),
				"amount":    owed[id].String(),
			})
		}
	}
	return nil
}

func (s *service) Refund(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error) {
	if reason == "" {
		reason = "Order refunded"
	}
	return s.transition(ctx, orderID, actor, func(tx *gorm.DB, order *models.Order) (change, error) {
		if err := s.guard(order, enums.OrderStatusRefunded); err != nil {
			return change{}, err
		}
		if requests := stockRequests(order.Items); len(requests) > 0 {
			if err := s.stock.RestockAll(ctx, tx, requests); err != nil {
				return change{}, err
			}
		}
		return change{
			next:       enums.OrderStatusRefunded,
			itemStatus: enums.OrderItemStatusRefunded,
			notes:      reason,
			event:      enums.EventOrderRefunded,
		}, nil
	})
}

func (s *service) StartProcessing(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.transition(ctx, orderID, actor, func(_ *gorm.DB, _ *models.Order) (change, error) {
		return change{
			next:       enums.OrderStatusProcessing,
			itemStatus: enums.OrderItemStatusProcessing,
			notes:      "Order is being processed",
		}, nil
	})
}

func (s *service) Ship(ctx context.Context, input ShipInput) (*models.Order, error) {
	return s.transition(ctx, input.OrderID, input.Actor, func(tx *gorm.DB, order *models.Order) (change, error) {
		if err := s.guard(order, enums.OrderStatusShipped); err != nil {
			return change{}, err
		}
		repo := s.repo.WithTx(tx)
		for vendorID, tracking := range input.TrackingNumbers {
			if tracking == "" {
				continue
			}
			if err := repo.UpdateItemsByVendor(ctx, order.ID, vendorID, map[string]any{"tracking_number": tracking}); err != nil {
				return change{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store tracking number")
			}
		}
		return change{
			next:        enums.OrderStatusShipped,
			itemStatus:  enums.OrderItemStatusShipped,
			notes:       "Order shipped",
			event:       enums.EventOrderShipped,
			itemUpdates: map[string]any{"shipped_at": s.now().UTC()},
		}, nil
	})
}

// Complete closes a shipped order; completed items become payout eligible.
func (s *service) Complete(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.transition(ctx, orderID, actor, func(_ *gorm.DB, _ *models.Order) (change, error) {
		now := s.now().UTC()
		return change{
			next:         enums.OrderStatusCompleted,
			itemStatus:   enums.OrderItemStatusCompleted,
			notes:        "Order completed",
			event:        enums.EventOrderCompleted,
			orderUpdates: map[string]any{"completed_at": now},
			itemUpdates:  map[string]any{"completed_at": now},
		}, nil
	})
}

// AutoComplete completes shipped orders untouched for olderThan.
func (s *service) AutoComplete(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.repo.ListIDsByStatusBefore(ctx, enums.OrderStatusShipped, "updated_at", s.now().UTC().Add(-olderThan), sweepBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipped orders")
	}
	return s.sweep(ctx, ids, func(id uuid.UUID) error {
		_, err := s.Complete(ctx, id, SystemActor())
		return err
	})
}

// ExpireStale cancels pending orders whose payment window has passed.
func (s *service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.repo.ListIDsByStatusBefore(ctx, enums.OrderStatusPending, "created_at", s.now().UTC().Add(-olderThan), sweepBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale orders")
	}
	return s.sweep(ctx, ids, func(id uuid.UUID) error {
		_, err := s.Cancel(ctx, id, "Payment window expired", SystemActor())
		return err
	})
}

// sweep applies fn to each order. Orders that moved on concurrently are
// skipped; other failures are collected without stopping the sweep.
func (s *service) sweep(ctx context.Context, ids []uuid.UUID, fn func(uuid.UUID) error) (int, error) {
	var (
		done int
		errs error
	)
	for _, id := range ids {
		err := fn(id)
		switch {
		case err == nil:
			done++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		default:
			s.error(s.fields(ctx, map[string]any{"order_id": id.String()}), "order sweep failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", id, err))
		}
	}
	return done, errs
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order not found", "load order")
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	order, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, notFound(err, "order not found", "load order")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (OrderList, error) {
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return OrderList{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return OrderList{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	list := OrderList{Orders: make([]OrderSummary, 0, len(page)), NextCursor: next}
	for i := range page {
		list.Orders = append(list.Orders, Summarize(&page[i]))
	}
	return list, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	entries, err := s.repo.History(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	return entries, nil
}

// change describes one state transition and its side effects.
type change struct {
	next         enums.OrderStatus
	itemStatus   enums.OrderItemStatus
	notes        string
	event        enums.OutboxEventType
	eventData    any
	orderUpdates map[string]any
	itemUpdates  map[string]any
}

func (s *service) transition(ctx context.Context, orderID uuid.UUID, actor Actor, plan func(tx *gorm.DB, order *models.Order) (change, error)) (*models.Order, error) {
	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			return notFound(err, "order not found", "lock order")
		}
		c, err := plan(tx, order)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, tx, order, c, actor); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, out.ID)
}

func (s *service) guard(order *models.Order, next enums.OrderStatus) error {
	if order.Status.CanTransitionTo(next) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", order.Status, next)).WithDetails(map[string]any{
		"order_id": order.ID.String(),
		"from":     order.Status,
		"to":       next,
	})
}

// apply persists the transition, its history entry and its event on tx.
func (s *service) apply(ctx context.Context, tx *gorm.DB, order *models.Order, c change, actor Actor) error {
	if err := s.guard(order, c.next); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	updates := map[string]any{"status": c.next, "updated_at": now}
	for k, v := range c.orderUpdates {
		updates[k] = v
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if c.itemStatus != "" {
		itemUpdates := map[string]any{"status": c.itemStatus, "updated_at": now}
		for k, v := range c.itemUpdates {
			itemUpdates[k] = v
		}
		if err := repo.UpdateItems(ctx, order.ID, itemUpdates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order items")
		}
		for i := range order.Items {
			order.Items[i].Status = c.itemStatus
		}
	}
	if err := repo.AppendHistory(ctx, s.history(order.ID, c.next, c.notes, actor)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	order.Status = c.next

	if c.event == "" {
		return nil
	}
	data := c.eventData
	if data == nil {
		data = payloads.OrderStatusEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      c.next,
			Reason:      c.notes,
			OccurredAt:  now,
		}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     c.event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         actor.ref(),
		Data:          data,
		OccurredAt:    now,
	})
}

func (s *service) history(orderID uuid.UUID, status enums.OrderStatus, notes string, actor Actor) models.OrderStatusHistory {
	entry := models.OrderStatusHistory{
		OrderID:    orderID,
		Status:     status.String(),
		ActorID:    actor.UserID,
		OccurredAt: s.now().UTC(),
	}
	if notes != "" {
		entry.Notes = &notes
	}
	return entry
}

// Summarize groups an order's items by vendor for review screens.
func Summarize(order *models.Order) OrderSummary {
	summary := OrderSummary{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		Status:       order.Status,
		Subtotal:     order.Subtotal,
		ShippingCost: order.ShippingCost,
		Tax: TaxSummary{
			VAT:         order.VATAmount,
			Withholding: order.MarketplaceWithholding,
			Total:       order.TaxAmount,
		},
		Total: order.Total,
		Address: Address{
			Name:       order.ShippingName,
			Phone:      order.ShippingPhone,
			Email:      order.ShippingEmail,
			Line:       order.ShippingAddress,
			City:       order.ShippingCity,
			Province:   order.ShippingProvince,
			PostalCode: order.ShippingPostalCode,
		},
		Vendors: []VendorSummary{},
	}
	index := map[uuid.UUID]int{}
	for _, item := range order.Items {
		pos, ok := index[item.VendorID]
		if !ok {
			shipping := ShippingSummary{Cost: item.ShippingCost}
			if item.CourierName != nil {
				shipping.Courier = *item.CourierName
			}
			if item.CourierService != nil {
				shipping.Service = *item.CourierService
			}
			summary.Vendors = append(summary.Vendors, VendorSummary{VendorID: item.VendorID, Shipping: shipping})
			pos = len(summary.Vendors) - 1
			index[item.VendorID] = pos
		}
		group := &summary.Vendors[pos]
		group.Subtotal = group.Subtotal.Add(item.Subtotal)
		group.Items = append(group.Items, ItemSummary{
			ID:          item.ID,
			ProductName: item.ProductName,
			SkuCode:     item.SkuCode,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Subtotal:    item.Subtotal,
			Status:      item.Status,
			Tracking:    item.TrackingNumber,
		})
	}
	return summary
}

func stockRequests(items []models.OrderItem) []stock.Request {
	out := make([]stock.Request, 0, len(items))
	for _, item := range items {
		if item.Quantity > 0 {
			out = append(out, stock.Request{SkuID: item.SkuID, Qty: item.Quantity})
		}
	}
	return out
}

func actorFor(userID uuid.UUID) Actor {
	id := userID
	return Actor{UserID: &id, Role: enums.ActorRoleBuyer}
}

func notFound(err error, message, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func (s *service) observe(outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveCheckout(outcome)
	}
}

func (s *service) fields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *service) error(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
