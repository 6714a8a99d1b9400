package payments

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/midtrans"
)

type fakeGateway struct {
	requests []midtrans.SnapRequest
	err      error
	status   *midtrans.TransactionStatus
	token    string
}

func (f *fakeGateway) CreateTransaction(_ context.Context, req midtrans.SnapRequest) (*midtrans.SnapResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	token := f.token
	if token == "" {
		token = "tok-" + req.TransactionDetails.OrderID
	}
	return &midtrans.SnapResponse{Token: token, RedirectURL: "https://pay.example/" + token}, nil
}

func (f *fakeGateway) Status(_ context.Context, orderID string) (*midtrans.TransactionStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error) {
	return f.Status(ctx, orderID)
}

type dbOrders struct{ conn *gorm.DB }

func (d dbOrders) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := d.conn.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &order, err
}

func seedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus) *models.Order {
	t.Helper()
	email := "budi@example.com"
	order := &models.Order{
		OrderNumber:        "MV-240309143005-" + strings.ToUpper(uuid.NewString()[:4]),
		UserID:             uuid.New(),
		Subtotal:           dbtest.D("100000"),
		ShippingCost:       dbtest.D("15000"),
		TaxAmount:          dbtest.D("13500"),
		Total:              dbtest.D("128500"),
		ShippingName:       "Budi",
		ShippingPhone:      "0812",
		ShippingEmail:      &email,
		ShippingAddress:    "Jl. Sudirman 1",
		ShippingCity:       "Jakarta",
		ShippingProvince:   "DKI Jakarta",
		ShippingPostalCode: "12190",
		Status:             status,
	}
	require.NoError(t, conn.Omit("Items", "Payment").Create(order).Error)
	item := models.OrderItem{
		OrderID:          order.ID,
		SkuID:            uuid.New(),
		VendorID:         uuid.New(),
		ProductName:      strings.Repeat("Kopi Arabika Gayo ", 5),
		SkuCode:          "KOPI-1",
		Price:            dbtest.D("50000"),
		Quantity:         2,
		Subtotal:         dbtest.D("100000"),
		CommissionRate:   dbtest.D("0.10"),
		CommissionAmount: dbtest.D("10000"),
		VendorEarnings:   dbtest.D("90000"),
		Status:           enums.OrderItemStatusPending,
	}
	require.NoError(t, conn.Create(&item).Error)
	order.Items = []models.OrderItem{item}
	return order
}

func newTestService(t *testing.T, conn *gorm.DB, gw Gateway) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Orders:    dbOrders{conn: conn},
		Gateway:   gw,
		Tx:        db.FromConn(conn),
		FinishURL: "http://localhost:8080/payment/finish",
	})
	require.NoError(t, err)
	return svc
}

func TestBuildRequest(t *testing.T) {
	conn := dbtest.New(t, "payments_build")
	order := seedOrder(t, conn, enums.OrderStatusPending)

	req := BuildRequest(order, "http://localhost/payment/finish")
	assert.Equal(t, order.OrderNumber, req.TransactionDetails.OrderID)
	assert.EqualValues(t, 128500, req.TransactionDetails.GrossAmount)
	assert.Equal(t, "budi@example.com", req.CustomerDetails.Email)
	require.Len(t, req.Items, 3)
	assert.Len(t, []rune(req.Items[0].Name), midtrans.ItemNameLimit)
	assert.EqualValues(t, 50000, req.Items[0].Price)
	assert.Equal(t, "SHIPPING", req.Items[1].ID)
	assert.Equal(t, "TAX", req.Items[2].ID)

	var sum int64
	for _, item := range req.Items {
		sum += item.Price * int64(item.Quantity)
	}
	assert.Equal(t, req.TransactionDetails.GrossAmount, sum)
	require.NotNil(t, req.Callbacks)
	assert.Equal(t, "http://localhost/payment/finish", req.Callbacks.Finish)
}

func TestCreateSessionPersistsPaymentAfterToken(t *testing.T) {
	conn := dbtest.New(t, "payments_session")
	order := seedOrder(t, conn, enums.OrderStatusPending)
	gw := &fakeGateway{}
	svc := newTestService(t, conn, gw)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-"+order.OrderNumber, session.Token)
	assert.Equal(t, order.OrderNumber, session.OrderNumber)

	payment, err := NewRepository(conn).FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PaymentID, payment.ID)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.True(t, payment.Amount.Equal(order.Total))
	require.NotNil(t, payment.SnapToken)

	gw.token = "tok-retry"
	retry, err := svc.CreateSession(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, retry.PaymentID)
	payment, err = NewRepository(conn).FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-retry", *payment.SnapToken)

	var count int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateSessionGatewayFailureLeavesOrderPending(t *testing.T) {
	conn := dbtest.New(t, "payments_failure")
	order := seedOrder(t, conn, enums.OrderStatusPending)
	svc := newTestService(t, conn, &fakeGateway{err: errors.New("connection reset")})

	_, err := svc.CreateSession(context.Background(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)

	var reloaded models.Order
	require.NoError(t, conn.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, reloaded.Status)
}

func TestCreateSessionRequiresPendingOrder(t *testing.T) {
	conn := dbtest.New(t, "payments_state")
	order := seedOrder(t, conn, enums.OrderStatusPaid)
	gw := &fakeGateway{}
	svc := newTestService(t, conn, gw)

	_, err := svc.CreateSession(context.Background(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, gw.requests)

	_, err = svc.CreateSession(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

// settlingGateway commits a settlement for the order while the session request
// is in flight, as a webhook racing the buyer's retry would.
type settlingGateway struct {
	fakeGateway
	conn    *gorm.DB
	orderID uuid.UUID
}

func (g *settlingGateway) CreateTransaction(ctx context.Context, req midtrans.SnapRequest) (*midtrans.SnapResponse, error) {
	if err := g.conn.Model(&models.Payment{}).Where("order_id = ?", g.orderID).
		Update("status", enums.PaymentStatusSuccess).Error; err != nil {
		return nil, err
	}
	if err := g.conn.Model(&models.Order{}).Where("id = ?", g.orderID).
		Update("status", enums.OrderStatusPaid).Error; err != nil {
		return nil, err
	}
	return g.fakeGateway.CreateTransaction(ctx, req)
}

func TestCreateSessionDoesNotReopenPaymentSettledMidRequest(t *testing.T) {
	conn := dbtest.New(t, "payments_settled_race")
	order := seedOrder(t, conn, enums.OrderStatusPending)
	ctx := context.Background()
	_, err := newTestService(t, conn, &fakeGateway{}).CreateSession(ctx, order.ID)
	require.NoError(t, err)

	svc := newTestService(t, conn, &settlingGateway{conn: conn, orderID: order.ID})
	_, err = svc.CreateSession(ctx, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	payment, err := NewRepository(conn).FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, "tok-"+order.OrderNumber, *payment.SnapToken)
}

func TestCreateSessionRefusesSettledPaymentOnPendingOrder(t *testing.T) {
	conn := dbtest.New(t, "payments_settled_pending")
	order := seedOrder(t, conn, enums.OrderStatusPending)
	ctx := context.Background()
	svc := newTestService(t, conn, &fakeGateway{})
	_, err := svc.CreateSession(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Payment{}).Where("order_id = ?", order.ID).
		Update("status", enums.PaymentStatusSuccess).Error)

	_, err = svc.CreateSession(ctx, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestCreateSessionRetriesAfterFailedAttempt(t *testing.T) {
	conn := dbtest.New(t, "payments_failed_retry")
	order := seedOrder(t, conn, enums.OrderStatusPending)
	ctx := context.Background()
	gw := &fakeGateway{}
	svc := newTestService(t, conn, gw)
	_, err := svc.CreateSession(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Payment{}).Where("order_id = ?", order.ID).
		Update("status", enums.PaymentStatusFailed).Error)

	gw.token = "tok-second"
	_, err = svc.CreateSession(ctx, order.ID)
	require.NoError(t, err)
	payment, err := NewRepository(conn).FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, "tok-second", *payment.SnapToken)
}

func TestStatusPassthrough(t *testing.T) {
	conn := dbtest.New(t, "payments_status")
	gw := &fakeGateway{status: &midtrans.TransactionStatus{TransactionStatus: "pending"}}
	svc := newTestService(t, conn, gw)
	ctx := context.Background()

	status, err := svc.CheckStatus(ctx, "MV-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", status.TransactionStatus)

	_, err = svc.CheckStatus(ctx, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	gw.err = midtrans.ErrTransactionNotFound
	_, err = svc.CancelTransaction(ctx, "MV-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	gw.err = errors.New("timeout")
	_, err = svc.CancelTransaction(ctx, "MV-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
