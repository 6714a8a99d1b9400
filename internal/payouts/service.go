package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-core/internal/vendors"
	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/outbox/payloads"
)

const (
	SkipBelowMinimum      = "below_minimum"
	SkipNoItems           = "no_items"
	SkipVendorNotApproved = "vendor_not_approved"

	payoutNumberSavepoint = "payout_number"
	defaultNumberAttempts = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type numberGenerator interface {
	Next() (string, error)
}

// Skipped explains why a vendor received no payout.
type Skipped struct {
	VendorID uuid.UUID `json:"vendor_id"`
	Reason   string    `json:"reason"`
}

// CreateResult holds exactly one of Created or Skipped.
type CreateResult struct {
	Created *models.VendorPayout
	Skipped *Skipped
}

type RunSummary struct {
	Processed   int             `json:"processed"`
	Skipped     int             `json:"skipped"`
	Failed      int             `json:"failed"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PayoutIDs   []uuid.UUID     `json:"payout_ids"`
}

type Statistics struct {
	From     time.Time                          `json:"from"`
	To       time.Time                          `json:"to"`
	Count    int64                              `json:"count"`
	Amount   decimal.Decimal                    `json:"amount"`
	ByStatus map[enums.PayoutStatus]StatusTotal `json:"by_status"`
}

type Service interface {
	CreateForVendor(ctx context.Context, vendorID uuid.UUID) (CreateResult, error)
	RunScheduled(ctx context.Context) (RunSummary, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	Process(ctx context.Context, payoutID uuid.UUID, reference string) (*models.VendorPayout, error)
	Cancel(ctx context.Context, payoutID uuid.UUID, reason string) (*models.VendorPayout, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	PendingAmount(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error)
	Statistics(ctx context.Context, from, to time.Time) (Statistics, error)
}

type ServiceParams struct {
	Repo           Repository
	Vendors        vendors.Repository
	Tx             txRunner
	Outbox         outboxPublisher
	Numbers        numberGenerator
	MinimumPayout  decimal.Decimal
	NumberAttempts int
	Logger         *logger.Logger
}

type service struct {
	repo     Repository
	vendors  vendors.Repository
	tx       txRunner
	outbox   outboxPublisher
	numbers  numberGenerator
	minimum  decimal.Decimal
	attempts int
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payouts repository required")
	case params.Vendors == nil:
		return nil, fmt.Errorf("vendors repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Numbers == nil:
		return nil, fmt.Errorf("payout number generator required")
	case params.MinimumPayout.IsNegative():
		return nil, fmt.Errorf("minimum payout must not be negative")
	}
	attempts := params.NumberAttempts
	if attempts <= 0 {
		attempts = defaultNumberAttempts
	}
	return &service{
		repo:     params.Repo,
		vendors:  params.Vendors,
		tx:       params.Tx,
		outbox:   params.Outbox,
		numbers:  params.Numbers,
		minimum:  params.MinimumPayout,
		attempts: attempts,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// CreateForVendor batches the vendor's completed, unpaid order items into one
// pending payout while holding the vendor row lock.
func (s *service) CreateForVendor(ctx context.Context, vendorID uuid.UUID) (CreateResult, error) {
	ctx = s.fields(ctx, map[string]any{"vendor_id": vendorID.String()})
	var result CreateResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		vendor, err := s.vendors.WithTx(tx).LockByID(ctx, vendorID)
		if err != nil {
			return err
		}
		skip := func(reason string) error {
			result = CreateResult{Skipped: &Skipped{VendorID: vendorID, Reason: reason}}
			return nil
		}
		if vendor.Status != enums.VendorStatusApproved {
			return skip(SkipVendorNotApproved)
		}
		if vendor.Balance.LessThan(s.minimum) {
			return skip(SkipBelowMinimum)
		}

		repo := s.repo.WithTx(tx)
		items, err := repo.UnpaidItems(ctx, vendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unpaid order items")
		}
		if len(items) == 0 {
			return skip(SkipNoItems)
		}
		amount := decimal.Zero
		for _, item := range items {
			amount = amount.Add(item.VendorEarnings)
		}
		if amount.LessThan(s.minimum) {
			return skip(SkipBelowMinimum)
		}

		payout := &models.VendorPayout{
			VendorID:    vendorID,
			Amount:      amount,
			Status:      enums.PayoutStatusPending,
			Method:      enums.PayoutMethodBankTransfer,
			BankDetails: vendor.BankDetails(),
		}
		if err := s.insertWithNumber(ctx, tx, repo, payout); err != nil {
			return err
		}
		links := make([]models.PayoutItem, 0, len(items))
		for _, item := range items {
			links = append(links, models.PayoutItem{PayoutID: payout.ID, OrderItemID: item.ID, Amount: item.VendorEarnings})
		}
		if err := repo.CreateItems(ctx, links); err != nil {
			if db.IsUniqueViolation(err, "payout_items_order_item_id_key", "payout_items.order_item_id") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order item already paid out")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link payout items")
		}
		payout.Items = links
		if err := s.emit(ctx, tx, enums.EventPayoutCreated, payout, ""); err != nil {
			return err
		}
		result = CreateResult{Created: payout}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	if result.Created != nil && s.logg != nil {
		s.logg.Info(s.fields(ctx, map[string]any{
			"payout_number": result.Created.PayoutNumber,
			"amount":        result.Created.Amount.String(),
		}), "payout created")
	}
	return result, nil
}

func (s *service) insertWithNumber(ctx context.Context, tx *gorm.DB, repo Repository, payout *models.VendorPayout) error {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate payout number")
		}
		payout.PayoutNumber = number
		if err := tx.SavePoint(payoutNumberSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
		err = repo.Create(ctx, payout)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "vendor_payouts_payout_number_key", "vendor_payouts.payout_number") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payout")
		}
		if rbErr := tx.RollbackTo(payoutNumberSavepoint).Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback savepoint")
		}
		payout.ID = uuid.Nil
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique payout number")
}

// RunScheduled attempts a payout for every eligible vendor. A failing vendor
// is counted and reported but does not stop the run.
func (s *service) RunScheduled(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{TotalAmount: decimal.Zero, PayoutIDs: []uuid.UUID{}}
	eligible, err := s.vendors.ListPayoutEligible(ctx, s.minimum)
	if err != nil {
		return summary, err
	}
	var errs error
	for _, vendor := range eligible {
		res, err := s.CreateForVendor(ctx, vendor.ID)
		switch {
		case err != nil:
			summary.Failed++
			s.error(s.fields(ctx, map[string]any{"vendor_id": vendor.ID.String()}), "vendor payout failed", err)
			errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", vendor.ID, err))
		case res.Skipped != nil:
			summary.Skipped++
		default:
			summary.Processed++
			summary.TotalAmount = summary.TotalAmount.Add(res.Created.Amount)
			summary.PayoutIDs = append(summary.PayoutIDs, res.Created.ID)
		}
	}
	return summary, errs
}

func (s *service) MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error) {
	return s.transition(ctx, payoutID, func(tx *gorm.DB, payout *models.VendorPayout) error {
		if payout.Status != enums.PayoutStatusPending {
			return stateConflict(payout, "only pending payouts can start processing")
		}
		return s.repo.WithTx(tx).Update(ctx, payout.ID, map[string]any{
			"status":     enums.PayoutStatusProcessing,
			"updated_at": s.now().UTC(),
		})
	})
}

// Process completes a payout, debiting the vendor balance. The balance is
// checked again here because it may have changed since the payout was created.
func (s *service) Process(ctx context.Context, payoutID uuid.UUID, reference string) (*models.VendorPayout, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference number required")
	}
	return s.transition(ctx, payoutID, func(tx *gorm.DB, payout *models.VendorPayout) error {
		if payout.Status != enums.PayoutStatusPending && payout.Status != enums.PayoutStatusProcessing {
			return stateConflict(payout, "payout cannot be processed")
		}
		vendorRepo := s.vendors.WithTx(tx)
		if _, err := vendorRepo.LockByID(ctx, payout.VendorID); err != nil {
			return err
		}
		ok, err := vendorRepo.Debit(ctx, payout.VendorID, payout.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient balance").WithDetails(map[string]any{
				"payout_id": payout.ID.String(),
				"amount":    payout.Amount.String(),
			})
		}
		now := s.now().UTC()
		if err := s.repo.WithTx(tx).Update(ctx, payout.ID, map[string]any{
			"status":           enums.PayoutStatusCompleted,
			"reference_number": reference,
			"processed_at":     now,
			"updated_at":       now,
		}); err != nil {
			return err
		}
		payout.Status = enums.PayoutStatusCompleted
		payout.ReferenceNumber = &reference
		return s.emit(ctx, tx, enums.EventPayoutCompleted, payout, "")
	})
}

// Cancel fails a pending payout and frees its order items for a later
// payout. The vendor balance is untouched.
func (s *service) Cancel(ctx context.Context, payoutID uuid.UUID, reason string) (*models.VendorPayout, error) {
	return s.transition(ctx, payoutID, func(tx *gorm.DB, payout *models.VendorPayout) error {
		if payout.Status != enums.PayoutStatusPending {
			return stateConflict(payout, "only pending payouts can be cancelled")
		}
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteItems(ctx, payout.ID); err != nil {
			return err
		}
		updates := map[string]any{
			"status":     enums.PayoutStatusFailed,
			"updated_at": s.now().UTC(),
		}
		if reason != "" {
			updates["notes"] = reason
		}
		if err := repo.Update(ctx, payout.ID, updates); err != nil {
			return err
		}
		payout.Status = enums.PayoutStatusFailed
		return s.emit(ctx, tx, enums.EventPayoutCancelled, payout, reason)
	})
}

func (s *service) transition(ctx context.Context, payoutID uuid.UUID, fn func(tx *gorm.DB, payout *models.VendorPayout) error) (*models.VendorPayout, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payout, err := s.repo.WithTx(tx).LockByID(ctx, payoutID)
		if err != nil {
			return notFound(err)
		}
		if err := fn(tx, payout); err != nil {
			var typed *pkgerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, payoutID)
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, notFound(err)
	}
	return payout, nil
}

// PendingAmount is what the vendor would receive from completed items not
// yet linked to a payout.
func (s *service) PendingAmount(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error) {
	amount, err := s.repo.UnpaidAmount(ctx, vendorID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum unpaid earnings")
	}
	return amount, nil
}

func (s *service) Statistics(ctx context.Context, from, to time.Time) (Statistics, error) {
	if !to.After(from) {
		return Statistics{}, pkgerrors.New(pkgerrors.CodeValidation, "range end must be after start")
	}
	rows, err := s.repo.StatusTotals(ctx, from, to)
	if err != nil {
		return Statistics{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate payouts")
	}
	stats := Statistics{From: from, To: to, Amount: decimal.Zero, ByStatus: map[enums.PayoutStatus]StatusTotal{}}
	for _, row := range rows {
		stats.Count += row.Count
		stats.Amount = stats.Amount.Add(row.Amount)
		stats.ByStatus[row.Status] = row
	}
	return stats, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.VendorPayout, reason string) error {
	event := payloads.PayoutEvent{
		PayoutID:     payout.ID,
		PayoutNumber: payout.PayoutNumber,
		VendorID:     payout.VendorID,
		Amount:       payout.Amount,
		Status:       payout.Status,
		Reason:       reason,
	}
	if payout.ReferenceNumber != nil {
		event.Reference = *payout.ReferenceNumber
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Version:       1,
		Data:          event,
	})
}

func stateConflict(payout *models.VendorPayout, msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(map[string]any{
		"payout_id": payout.ID.String(),
		"status":    payout.Status,
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
}

func (s *service) fields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *service) error(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
