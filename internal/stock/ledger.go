package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const (
	OpReserve = "reserve"
	OpRelease = "release"
	OpCommit  = "commit"
	OpRestock = "restock"

	OutcomeApplied      = "applied"
	OutcomeInsufficient = "insufficient"
	OutcomeRejected     = "rejected"
)

// Recorder receives one observation per ledger mutation.
type Recorder interface {
	ObserveStock(op, outcome string, qty int)
}

// Request names a quantity of a single SKU.
type Request struct {
	SkuID uuid.UUID
	Qty   int
}

// ReserveResult is the outcome of a reservation attempt. Reserved=false is a
// business outcome, not an error. Inactive marks a SKU found deactivated on
// its locked row.
type ReserveResult struct {
	SkuID     uuid.UUID
	Reserved  bool
	Inactive  bool
	Requested int
	Available int
}

// BatchResult carries per-SKU results of ReserveAll in lock order.
type BatchResult struct {
	Results   []ReserveResult
	Shortfall *ReserveResult
}

func (b BatchResult) Reserved() bool {
	return b.Shortfall == nil
}

// Ledger mutates SKU stock counters. Every operation runs on the caller's
// transaction and locks the SKU row before reading it.
type Ledger struct {
	logg     *logger.Logger
	recorder Recorder
	now      func() time.Time
}

func NewLedger(logg *logger.Logger, recorder Recorder) *Ledger {
	return &Ledger{logg: logg, recorder: recorder, now: time.Now}
}

func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, skuID uuid.UUID, qty int) (ReserveResult, error) {
	batch, err := l.ReserveAll(ctx, tx, []Request{{SkuID: skuID, Qty: qty}})
	if err != nil {
		return ReserveResult{}, err
	}
	return batch.Results[0], nil
}

// ReserveAll locks every requested SKU in ascending id order and reserves
// all quantities only when every SKU is active and has enough available stock.
func (l *Ledger) ReserveAll(ctx context.Context, tx *gorm.DB, requests []Request) (BatchResult, error) {
	normalized, err := Normalize(requests)
	if err != nil {
		return BatchResult{}, err
	}

	skus := make([]*models.Sku, 0, len(normalized))
	result := BatchResult{Results: make([]ReserveResult, 0, len(normalized))}
	for _, req := range normalized {
		sku, err := l.lock(ctx, tx, req.SkuID)
		if err != nil {
			return BatchResult{}, err
		}
		skus = append(skus, sku)
		res := ReserveResult{
			SkuID:     req.SkuID,
			Reserved:  sku.IsActive && sku.HasStock(req.Qty),
			Inactive:  !sku.IsActive,
			Requested: req.Qty,
			Available: sku.Available(),
		}
		result.Results = append(result.Results, res)
		if !res.Reserved && result.Shortfall == nil {
			shortfall := res
			result.Shortfall = &shortfall
		}
	}

	if result.Shortfall != nil {
		outcome := OutcomeInsufficient
		if result.Shortfall.Inactive {
			outcome = OutcomeRejected
		}
		l.observe(OpReserve, outcome, result.Shortfall.Requested)
		l.logShortfall(ctx, *result.Shortfall)
		for i := range result.Results {
			result.Results[i].Reserved = false
		}
		return result, nil
	}

	for i, req := range normalized {
		sku := skus[i]
		if err := l.save(ctx, tx, sku.ID, map[string]any{
			"reserved_stock": sku.ReservedStock + req.Qty,
		}); err != nil {
			return BatchResult{}, err
		}
		result.Results[i].Available = sku.Available() - req.Qty
		l.observe(OpReserve, OutcomeApplied, req.Qty)
	}
	return result, nil
}

// Release returns up to qty reserved units; the decrement is clamped to the
// currently reserved amount. It returns the number of units released.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, skuID uuid.UUID, qty int) (int, error) {
	if err := validateQty(qty); err != nil {
		return 0, err
	}
	sku, err := l.lock(ctx, tx, skuID)
	if err != nil {
		return 0, err
	}
	released := min(qty, sku.ReservedStock)
	if released == 0 {
		return 0, nil
	}
	if err := l.save(ctx, tx, sku.ID, map[string]any{
		"reserved_stock": sku.ReservedStock - released,
	}); err != nil {
		return 0, err
	}
	l.observe(OpRelease, OutcomeApplied, released)
	return released, nil
}

// Commit consumes reserved units permanently on payment success.
func (l *Ledger) Commit(ctx context.Context, tx *gorm.DB, skuID uuid.UUID, qty int) error {
	if err := validateQty(qty); err != nil {
		return err
	}
	sku, err := l.lock(ctx, tx, skuID)
	if err != nil {
		return err
	}
	if sku.ReservedStock < qty || sku.Stock < qty {
		l.observe(OpCommit, OutcomeRejected, qty)
		return pkgerrors.New(pkgerrors.CodeStateConflict, "commit exceeds reserved stock").WithDetails(map[string]any{
			"sku_id":         skuID.String(),
			"requested":      qty,
			"reserved_stock": sku.ReservedStock,
			"stock":          sku.Stock,
		})
	}
	if err := l.save(ctx, tx, sku.ID, map[string]any{
		"stock":          sku.Stock - qty,
		"reserved_stock": sku.ReservedStock - qty,
		"sold_count":     sku.SoldCount + qty,
	}); err != nil {
		return err
	}
	l.observe(OpCommit, OutcomeApplied, qty)
	return nil
}

// Restock returns units to stock on refunds and returns.
func (l *Ledger) Restock(ctx context.Context, tx *gorm.DB, skuID uuid.UUID, qty int) error {
	if err := validateQty(qty); err != nil {
		return err
	}
	sku, err := l.lock(ctx, tx, skuID)
	if err != nil {
		return err
	}
	if err := l.save(ctx, tx, sku.ID, map[string]any{
		"stock": sku.Stock + qty,
	}); err != nil {
		return err
	}
	l.observe(OpRestock, OutcomeApplied, qty)
	return nil
}

func (l *Ledger) ReleaseAll(ctx context.Context, tx *gorm.DB, requests []Request) error {
	return l.each(requests, func(req Request) error {
		_, err := l.Release(ctx, tx, req.SkuID, req.Qty)
		return err
	})
}

func (l *Ledger) CommitAll(ctx context.Context, tx *gorm.DB, requests []Request) error {
	return l.each(requests, func(req Request) error {
		return l.Commit(ctx, tx, req.SkuID, req.Qty)
	})
}

func (l *Ledger) RestockAll(ctx context.Context, tx *gorm.DB, requests []Request) error {
	return l.each(requests, func(req Request) error {
		return l.Restock(ctx, tx, req.SkuID, req.Qty)
	})
}

func (l *Ledger) each(requests []Request, fn func(Request) error) error {
	normalized, err := Normalize(requests)
	if err != nil {
		return err
	}
	for _, req := range normalized {
		if err := fn(req); err != nil {
			return err
		}
	}
	return nil
}

// Normalize merges duplicate SKUs and sorts requests by ascending SKU id so
// multi-SKU transactions always acquire row locks in the same order.
func Normalize(requests []Request) ([]Request, error) {
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one stock request is required")
	}
	merged := make(map[uuid.UUID]int, len(requests))
	for _, req := range requests {
		if req.SkuID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku id required")
		}
		if err := validateQty(req.Qty); err != nil {
			return nil, err
		}
		merged[req.SkuID] += req.Qty
	}
	out := make([]Request, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Request{SkuID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SkuID.String() < out[j].SkuID.String()
	})
	return out, nil
}

func (l *Ledger) lock(ctx context.Context, tx *gorm.DB, skuID uuid.UUID) (*models.Sku, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock mutation")
	}
	var sku models.Sku
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", skuID).
		First(&sku).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sku not found").WithDetails(map[string]any{"sku_id": skuID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock sku")
	}
	return &sku, nil
}

func (l *Ledger) save(ctx context.Context, tx *gorm.DB, skuID uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = l.now().UTC()
	if err := tx.WithContext(ctx).Model(&models.Sku{}).Where("id = ?", skuID).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("update sku %s", skuID))
	}
	return nil
}

func (l *Ledger) observe(op, outcome string, qty int) {
	if l.recorder != nil {
		l.recorder.ObserveStock(op, outcome, qty)
	}
}

func (l *Ledger) logShortfall(ctx context.Context, res ReserveResult) {
	if l.logg == nil {
		return
	}
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"sku_id":    res.SkuID.String(),
		"requested": res.Requested,
		"available": res.Available,
	})
	if res.Inactive {
		l.logg.Warn(logCtx, "reservation refused for inactive sku")
		return
	}
	l.logg.Warn(logCtx, "insufficient stock for reservation")
}

func validateQty(qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}
