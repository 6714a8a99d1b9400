package vendors

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
)

// Repository persists vendors and their running balance.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Vendor, error)
	Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
	Reverse(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
	ListPayoutEligible(ctx context.Context, minimum decimal.Decimal) ([]models.Vendor, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository builds a vendor repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error; err != nil {
		return nil, translate(err, "load vendor")
	}
	return &vendor, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&vendor).Error
	if err != nil {
		return nil, translate(err, "lock vendor")
	}
	return &vendor, nil
}

// LockMany locks vendors one at a time in ascending id order.
func (r *repository) LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Vendor, error) {
	ordered := SortedIDs(ids)
	out := make(map[uuid.UUID]*models.Vendor, len(ordered))
	for _, id := range ordered {
		vendor, err := r.LockByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = vendor
	}
	return out, nil
}

// Credit adds settled earnings to the vendor balance and lifetime total.
// Callers hold the vendor row lock.
func (r *repository) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must not be negative")
	}
	res := r.db.WithContext(ctx).Model(&models.Vendor{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":        gorm.Expr("balance + ?", amount),
			"total_earnings": gorm.Expr("total_earnings + ?", amount),
			"updated_at":     r.now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit vendor balance")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	return nil
}

// Debit removes amount from the balance when it is covered. It reports false
// without mutating anything when the balance is insufficient.
func (r *repository) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must not be negative")
	}
	res := r.db.WithContext(ctx).Model(&models.Vendor{}).
		Where("id = ? AND balance >= ?", id, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": r.now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "debit vendor balance")
	}
	return res.RowsAffected == 1, nil
}

// Reverse takes back earnings credited for an order that will not be
// fulfilled. Like Debit it reports false when the balance no longer covers
// amount.
func (r *repository) Reverse(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reversal amount must not be negative")
	}
	res := r.db.WithContext(ctx).Model(&models.Vendor{}).
		Where("id = ? AND balance >= ? AND total_earnings >= ?", id, amount, amount).
		Updates(map[string]any{
			"balance":        gorm.Expr("balance - ?", amount),
			"total_earnings": gorm.Expr("total_earnings - ?", amount),
			"updated_at":     r.now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reverse vendor earnings")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListPayoutEligible(ctx context.Context, minimum decimal.Decimal) ([]models.Vendor, error) {
	var vendors []models.Vendor
	err := r.db.WithContext(ctx).
		Where("status = ? AND balance >= ?", enums.VendorStatusApproved, minimum).
		Order("id ASC").
		Find(&vendors).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout eligible vendors")
	}
	return vendors, nil
}

// SortedIDs deduplicates ids and orders them ascending by their string form.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func translate(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
