package payouts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/internal/vendors"
	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/refnum"
)

type sequence struct {
	numbers []string
	next    int
}

func (s *sequence) Next() (string, error) {
	if s.next >= len(s.numbers) {
		return "", errors.New("sequence exhausted")
	}
	n := s.numbers[s.next]
	s.next++
	return n, nil
}

func newTestService(t *testing.T, conn *gorm.DB, numbers numberGenerator) *service {
	t.Helper()
	if numbers == nil {
		numbers = refnum.New("PO")
	}
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(conn),
		Vendors:       vendors.NewRepository(conn),
		Tx:            db.FromConn(conn),
		Outbox:        outbox.NewService(outbox.NewRepository(conn), nil),
		Numbers:       numbers,
		MinimumPayout: dbtest.D("100000"),
	})
	require.NoError(t, err)
	return svc.(*service)
}

// seedItems inserts one order holding an item per earnings value for vendor.
func seedItems(t *testing.T, conn *gorm.DB, vendor models.Vendor, status enums.OrderItemStatus, earnings ...string) []models.OrderItem {
	t.Helper()
	order := models.Order{
		OrderNumber:        "MV-" + uuid.NewString(),
		UserID:             uuid.New(),
		Subtotal:           dbtest.D("0"),
		ShippingCost:       dbtest.D("0"),
		TaxAmount:          dbtest.D("0"),
		Total:              dbtest.D("0"),
		ShippingName:       "Budi",
		ShippingPhone:      "0812",
		ShippingAddress:    "Jl. Sudirman 1",
		ShippingCity:       "Jakarta",
		ShippingProvince:   "DKI Jakarta",
		ShippingPostalCode: "12190",
		Status:             enums.OrderStatusCompleted,
	}
	require.NoError(t, conn.Omit("Items", "Payment").Create(&order).Error)
	completed := time.Now().UTC()
	items := make([]models.OrderItem, 0, len(earnings))
	for i, e := range earnings {
		item := models.OrderItem{
			OrderID:          order.ID,
			SkuID:            uuid.New(),
			VendorID:         vendor.ID,
			ProductName:      "Kopi",
			SkuCode:          fmt.Sprintf("KOPI-%d", i),
			Price:            dbtest.D(e),
			Quantity:         1,
			Subtotal:         dbtest.D(e),
			CommissionRate:   dbtest.D("0"),
			CommissionAmount: dbtest.D("0"),
			VendorEarnings:   dbtest.D(e),
			Status:           status,
			CompletedAt:      &completed,
		}
		require.NoError(t, conn.Create(&item).Error)
		items = append(items, item)
	}
	return items
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func TestCreateForVendorBatchesUnpaidItems(t *testing.T) {
	conn := dbtest.New(t, "payouts_create")
	vendor := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("250000") })
	seedItems(t, conn, vendor, enums.OrderItemStatusCompleted, "90000", "60000")
	seedItems(t, conn, vendor, enums.OrderItemStatusShipped, "500000")
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	res, err := svc.CreateForVendor(ctx, vendor.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Created)
	payout := res.Created
	assert.Regexp(t, `^PO-\d{12}-[0-9A-F]{4}$`, payout.PayoutNumber)
	assert.True(t, payout.Amount.Equal(dbtest.D("150000")), "amount %s", payout.Amount)
	assert.Equal(t, enums.PayoutStatusPending, payout.Status)
	assert.Equal(t, "BCA", payout.BankDetails.BankName)
	assert.Len(t, payout.Items, 2)

	again, err := svc.CreateForVendor(ctx, vendor.ID)
	require.NoError(t, err)
	require.NotNil(t, again.Skipped)
	assert.Equal(t, SkipNoItems, again.Skipped.Reason)

	assert.True(t, dbtest.LoadVendor(t, conn, vendor.ID).Balance.Equal(dbtest.D("250000")))
	assert.EqualValues(t, 1, countRows(t, conn, &models.OutboxEvent{}))
}

func TestCreateForVendorSkips(t *testing.T) {
	conn := dbtest.New(t, "payouts_skip")
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	poor := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("50000") })
	seedItems(t, conn, poor, enums.OrderItemStatusCompleted, "50000")
	res, err := svc.CreateForVendor(ctx, poor.ID)
	require.NoError(t, err)
	assert.Equal(t, SkipBelowMinimum, res.Skipped.Reason)

	small := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("500000") })
	seedItems(t, conn, small, enums.OrderItemStatusCompleted, "40000")
	res, err = svc.CreateForVendor(ctx, small.ID)
	require.NoError(t, err)
	assert.Equal(t, SkipBelowMinimum, res.Skipped.Reason)

	suspended := dbtest.SeedVendor(t, conn, func(v *models.Vendor) {
		v.Balance = dbtest.D("500000")
		v.Status = enums.VendorStatusSuspended
	})
	res, err = svc.CreateForVendor(ctx, suspended.ID)
	require.NoError(t, err)
	assert.Equal(t, SkipVendorNotApproved, res.Skipped.Reason)

	_, err = svc.CreateForVendor(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Zero(t, countRows(t, conn, &models.VendorPayout{}))
}

func TestCreateForVendorRetriesPayoutNumber(t *testing.T) {
	conn := dbtest.New(t, "payouts_number")
	svc := newTestService(t, conn, &sequence{numbers: []string{"PO-1", "PO-1", "PO-2"}})
	ctx := context.Background()

	first := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("100000") })
	seedItems(t, conn, first, enums.OrderItemStatusCompleted, "100000")
	second := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("100000") })
	seedItems(t, conn, second, enums.OrderItemStatusCompleted, "100000")

	res, err := svc.CreateForVendor(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "PO-1", res.Created.PayoutNumber)
	res, err = svc.CreateForVendor(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "PO-2", res.Created.PayoutNumber)
}

func TestRunScheduledSummarises(t *testing.T) {
	conn := dbtest.New(t, "payouts_run")
	svc := newTestService(t, conn, nil)

	a := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("120000") })
	seedItems(t, conn, a, enums.OrderItemStatusCompleted, "120000")
	b := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("300000") })
	seedItems(t, conn, b, enums.OrderItemStatusCompleted, "100000", "200000")
	dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("150000") })
	dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("10") })

	summary, err := svc.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.True(t, summary.TotalAmount.Equal(dbtest.D("420000")))
	assert.Len(t, summary.PayoutIDs, 2)
}

func TestProcessDebitsBalance(t *testing.T) {
	conn := dbtest.New(t, "payouts_process")
	svc := newTestService(t, conn, nil)
	ctx := context.Background()
	vendor := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("150000") })
	seedItems(t, conn, vendor, enums.OrderItemStatusCompleted, "150000")
	res, err := svc.CreateForVendor(ctx, vendor.ID)
	require.NoError(t, err)

	_, err = svc.Process(ctx, res.Created.ID, " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	processing, err := svc.MarkProcessing(ctx, res.Created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusProcessing, processing.Status)

	done, err := svc.Process(ctx, res.Created.ID, "TRF-001")
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted, done.Status)
	require.NotNil(t, done.ReferenceNumber)
	assert.Equal(t, "TRF-001", *done.ReferenceNumber)
	assert.NotNil(t, done.ProcessedAt)
	assert.True(t, dbtest.LoadVendor(t, conn, vendor.ID).Balance.IsZero())

	_, err = svc.Process(ctx, res.Created.ID, "TRF-002")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.True(t, dbtest.LoadVendor(t, conn, vendor.ID).Balance.IsZero())
}

func TestProcessRejectsInsufficientBalance(t *testing.T) {
	conn := dbtest.New(t, "payouts_insufficient")
	svc := newTestService(t, conn, nil)
	ctx := context.Background()
	vendor := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("150000") })
	seedItems(t, conn, vendor, enums.OrderItemStatusCompleted, "150000")
	res, err := svc.CreateForVendor(ctx, vendor.ID)
	require.NoError(t, err)

	require.NoError(t, conn.Model(&models.Vendor{}).Where("id = ?", vendor.ID).Update("balance", dbtest.D("100000")).Error)

	_, err = svc.Process(ctx, res.Created.ID, "TRF-001")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	payout, err := svc.Get(ctx, res.Created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPending, payout.Status)
	assert.Nil(t, payout.ReferenceNumber)
	assert.True(t, dbtest.LoadVendor(t, conn, vendor.ID).Balance.Equal(dbtest.D("100000")))
}

func TestCancelFreesItems(t *testing.T) {
	conn := dbtest.New(t, "payouts_cancel")
	svc := newTestService(t, conn, nil)
	ctx := context.Background()
	vendor := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D("150000") })
	seedItems(t, conn, vendor, enums.OrderItemStatusCompleted, "150000")
	res, err := svc.CreateForVendor(ctx, vendor.ID)
	require.NoError(t, err)

	pending, err := svc.PendingAmount(ctx, vendor.ID)
	require.NoError(t, err)
	assert.True(t, pending.IsZero())

	cancelled, err := svc.Cancel(ctx, res.Created.ID, "wrong account")
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, cancelled.Status)
	require.NotNil(t, cancelled.Notes)
	assert.Equal(t, "wrong account", *cancelled.Notes)
	assert.Empty(t, cancelled.Items)
	assert.True(t, dbtest.LoadVendor(t, conn, vendor.ID).Balance.Equal(dbtest.D("150000")))

	pending, err = svc.PendingAmount(ctx, vendor.ID)
	require.NoError(t, err)
	assert.True(t, pending.Equal(dbtest.D("150000")))

	_, err = svc.Cancel(ctx, res.Created.ID, "again")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	again, err := svc.CreateForVendor(ctx, vendor.ID)
	require.NoError(t, err)
	require.NotNil(t, again.Created)
	assert.NotEqual(t, res.Created.ID, again.Created.ID)
}

func TestStatistics(t *testing.T) {
	conn := dbtest.New(t, "payouts_stats")
	svc := newTestService(t, conn, nil)
	ctx := context.Background()
	for _, balance := range []string{"100000", "200000"} {
		vendor := dbtest.SeedVendor(t, conn, func(v *models.Vendor) { v.Balance = dbtest.D(balance) })
		seedItems(t, conn, vendor, enums.OrderItemStatusCompleted, balance)
		_, err := svc.CreateForVendor(ctx, vendor.ID)
		require.NoError(t, err)
	}

	now := time.Now().UTC()
	stats, err := svc.Statistics(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Count)
	assert.True(t, stats.Amount.Equal(dbtest.D("300000")), "amount %s", stats.Amount)
	assert.EqualValues(t, 2, stats.ByStatus[enums.PayoutStatusPending].Count)

	_, err = svc.Statistics(ctx, now, now)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
