package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

// Repository persists payouts and the order items they settle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	Create(ctx context.Context, payout *models.VendorPayout) error
	CreateItems(ctx context.Context, items []models.PayoutItem) error
	DeleteItems(ctx context.Context, payoutID uuid.UUID) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UnpaidItems(ctx context.Context, vendorID uuid.UUID) ([]models.OrderItem, error)
	UnpaidAmount(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error)
	StatusTotals(ctx context.Context, from, to time.Time) ([]StatusTotal, error)
}

// StatusTotal aggregates payouts sharing a status.
type StatusTotal struct {
	Status enums.PayoutStatus `gorm:"column:status"`
	Count  int64              `gorm:"column:count"`
	Amount decimal.Decimal    `gorm:"column:amount"`
}

const unpaidItemFilter = "order_items.vendor_id = ? AND order_items.status = ? AND NOT EXISTS (SELECT 1 FROM payout_items pi WHERE pi.order_item_id = order_items.id)"

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	if err := r.db.WithContext(ctx).Preload("Items").First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) Create(ctx context.Context, payout *models.VendorPayout) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(payout).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.PayoutItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) DeleteItems(ctx context.Context, payoutID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("payout_id = ?", payoutID).Delete(&models.PayoutItem{}).Error
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.VendorPayout{}).Where("id = ?", id).Updates(updates).Error
}

// UnpaidItems returns the vendor's completed order items not yet linked to a
// payout, oldest first.
func (r *repository) UnpaidItems(ctx context.Context, vendorID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where(unpaidItemFilter, vendorID, enums.OrderItemStatusCompleted).
		Order("order_items.completed_at ASC, order_items.id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) UnpaidAmount(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Select("SUM(order_items.vendor_earnings)").
		Where(unpaidItemFilter, vendorID, enums.OrderItemStatusCompleted).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repository) StatusTotals(ctx context.Context, from, to time.Time) ([]StatusTotal, error) {
	var rows []StatusTotal
	err := r.db.WithContext(ctx).
		Model(&models.VendorPayout{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("status").
		Order("status ASC").
		Scan(&rows).Error
	return rows, err
}
