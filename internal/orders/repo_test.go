package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

func seedOrder(t *testing.T, conn *gorm.DB, number string, vendors ...models.Vendor) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:        number,
		UserID:             uuid.New(),
		Subtotal:           dbtest.D("20000"),
		Total:              dbtest.D("20000"),
		ShippingName:       "Budi",
		ShippingPhone:      "0812",
		ShippingAddress:    "Jl. Merdeka 2",
		ShippingCity:       "Bandung",
		ShippingProvince:   "Jawa Barat",
		ShippingPostalCode: "40111",
		Status:             enums.OrderStatusPending,
	}
	repo := NewRepository(conn)
	require.NoError(t, repo.CreateOrder(context.Background(), order))

	items := make([]models.OrderItem, 0, len(vendors))
	for _, v := range vendors {
		items = append(items, models.OrderItem{
			OrderID:          order.ID,
			SkuID:            uuid.New(),
			VendorID:         v.ID,
			ProductName:      "Kopi",
			SkuCode:          "KOPI-" + v.ID.String()[:4],
			Price:            dbtest.D("10000"),
			Quantity:         1,
			Subtotal:         dbtest.D("10000"),
			CommissionRate:   dbtest.D("0.10"),
			CommissionAmount: dbtest.D("1000"),
			VendorEarnings:   dbtest.D("9000"),
			Status:           enums.OrderItemStatusPending,
		})
	}
	require.NoError(t, repo.CreateItems(context.Background(), items))
	return order
}

func TestRepositoryFindAndLock(t *testing.T) {
	conn := dbtest.New(t, "orders_repo_find")
	ctx := context.Background()
	a, b := dbtest.SeedVendor(t, conn), dbtest.SeedVendor(t, conn)
	order := seedOrder(t, conn, "MV-240101000000-0001", a, b)
	repo := NewRepository(conn)

	found, err := repo.FindByNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.Len(t, found.Items, 2)
	assert.Nil(t, found.Payment)

	err = conn.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.WithTx(tx).LockByNumber(ctx, order.OrderNumber)
		if err != nil {
			return err
		}
		assert.Len(t, locked.Items, 2)
		return nil
	})
	require.NoError(t, err)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUpdateItemsByVendor(t *testing.T) {
	conn := dbtest.New(t, "orders_repo_vendor")
	ctx := context.Background()
	a, b := dbtest.SeedVendor(t, conn), dbtest.SeedVendor(t, conn)
	order := seedOrder(t, conn, "MV-240101000000-0002", a, b)
	repo := NewRepository(conn)

	require.NoError(t, repo.UpdateItemsByVendor(ctx, order.ID, a.ID, map[string]any{"tracking_number": "SICEPAT1"}))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	for _, item := range found.Items {
		if item.VendorID == a.ID {
			require.NotNil(t, item.TrackingNumber)
			assert.Equal(t, "SICEPAT1", *item.TrackingNumber)
		} else {
			assert.Nil(t, item.TrackingNumber)
		}
	}
}

func TestRepositoryListIDsByStatusBefore(t *testing.T) {
	conn := dbtest.New(t, "orders_repo_sweep")
	ctx := context.Background()
	vendor := dbtest.SeedVendor(t, conn)
	old := seedOrder(t, conn, "MV-240101000000-0003", vendor)
	seedOrder(t, conn, "MV-240101000000-0004", vendor)
	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().UTC().Add(-72*time.Hour)).Error)
	repo := NewRepository(conn)

	ids, err := repo.ListIDsByStatusBefore(ctx, enums.OrderStatusPending, "created_at", time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old.ID}, ids)

	ids, err = repo.ListIDsByStatusBefore(ctx, enums.OrderStatusPaid, "created_at", time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = repo.ListIDsByStatusBefore(ctx, enums.OrderStatusPending, "paid_at; DROP TABLE orders", time.Now(), 10)
	assert.Error(t, err)
}

func TestRepositoryHistoryOrdered(t *testing.T) {
	conn := dbtest.New(t, "orders_repo_history")
	ctx := context.Background()
	order := seedOrder(t, conn, "MV-240101000000-0005", dbtest.SeedVendor(t, conn))
	repo := NewRepository(conn)
	base := time.Now().UTC()

	require.NoError(t, repo.AppendHistory(ctx,
		models.OrderStatusHistory{OrderID: order.ID, Status: "paid", OccurredAt: base.Add(time.Minute)},
		models.OrderStatusHistory{OrderID: order.ID, Status: "pending", OccurredAt: base},
	))
	entries, err := repo.History(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pending", entries[0].Status)
	assert.Equal(t, "paid", entries[1].Status)
}
