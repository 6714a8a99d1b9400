package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	"github.com/angelmondragon/marketplace-core/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LoadCart locks the cart row before loading its lines, so two checkouts of
// the same cart serialize and the second sees the cleared cart.
func (r *repository) LoadCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	var locked models.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", cartID).
		First(&locked).Error
	if err != nil {
		return nil, err
	}
	return cart.NewRepository(r.db).FindWithItems(ctx, cartID)
}

func (r *repository) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	_, err := cart.NewRepository(r.db).ClearItems(ctx, cartID)
	return err
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) AppendHistory(ctx context.Context, entries ...models.OrderStatusHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *repository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.vendor_id ASC, order_items.created_at ASC, order_items.id ASC")
		}).
		Preload("Payment")
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.withDetails(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	if err := r.withDetails(ctx).Where("order_number = ?", number).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID takes the order row lock and loads its items.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.lock(ctx, "id = ?", id)
}

func (r *repository) LockByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.lock(ctx, "order_number = ?", number)
}

func (r *repository) lock(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, arg).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	var items []models.OrderItem
	err = r.db.WithContext(ctx).
		Where("order_id = ?", order.ID).
		Order("vendor_id ASC, created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	query := r.withDetails(ctx).Where("user_id = ?", userID)
	query, err := pagination.Apply(query, "orders", params)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListIDsByStatusBefore returns ids of orders in status whose column is older
// than cutoff, oldest first.
func (r *repository) ListIDsByStatusBefore(ctx context.Context, status enums.OrderStatus, column string, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	switch column {
	case "created_at", "updated_at":
	default:
		return nil, fmt.Errorf("unsupported cutoff column %q", column)
	}
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ?", status).
		Where(column+" < ?", cutoff).
		Order(column + " ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var entries []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) UpdateItems(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.OrderItem{}).Where("order_id = ?", orderID).Updates(updates).Error
}

func (r *repository) UpdateItemsByVendor(ctx context.Context, orderID, vendorID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.OrderItem{}).
		Where("order_id = ? AND vendor_id = ?", orderID, vendorID).
		Updates(updates).Error
}
