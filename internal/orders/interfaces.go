package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/internal/stock"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/pagination"
)

// Repository defines the persistence surface required by the order workflow.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	LoadCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	AppendHistory(ctx context.Context, entries ...models.OrderStatusHistory) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, number string) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByNumber(ctx context.Context, number string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error)
	ListIDsByStatusBefore(ctx context.Context, status enums.OrderStatus, column string, cutoff time.Time, limit int) ([]uuid.UUID, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)

	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateItems(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdateItemsByVendor(ctx context.Context, orderID, vendorID uuid.UUID, updates map[string]any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockLedger is the stock surface the workflow drives.
type StockLedger interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, requests []stock.Request) (stock.BatchResult, error)
	ReleaseAll(ctx context.Context, tx *gorm.DB, requests []stock.Request) error
	CommitAll(ctx context.Context, tx *gorm.DB, requests []stock.Request) error
	RestockAll(ctx context.Context, tx *gorm.DB, requests []stock.Request) error
}

type cartValidator interface {
	Validate(ctx context.Context, cartID uuid.UUID) (cart.Validation, error)
}

type numberGenerator interface {
	Next() (string, error)
}

// CheckoutRecorder observes checkout outcomes.
type CheckoutRecorder interface {
	ObserveCheckout(outcome string)
}
