package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/api/responses"
	"github.com/angelmondragon/marketplace-core/api/validators"
	"github.com/angelmondragon/marketplace-core/internal/payouts"
	"github.com/angelmondragon/marketplace-core/pkg/db/models"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const defaultStatsWindow = 30 * 24 * time.Hour

type payoutService interface {
	CreateForVendor(ctx context.Context, vendorID uuid.UUID) (payouts.CreateResult, error)
	RunScheduled(ctx context.Context) (payouts.RunSummary, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	Process(ctx context.Context, payoutID uuid.UUID, reference string) (*models.VendorPayout, error)
	Cancel(ctx context.Context, payoutID uuid.UUID, reason string) (*models.VendorPayout, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	PendingAmount(ctx context.Context, vendorID uuid.UUID) (decimal.Decimal, error)
	Statistics(ctx context.Context, from, to time.Time) (payouts.Statistics, error)
}

type payoutView struct {
	ID              uuid.UUID          `json:"id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	PayoutNumber    string             `json:"payout_number"`
	Amount          decimal.Decimal    `json:"amount"`
	Status          enums.PayoutStatus `json:"status"`
	Method          enums.PayoutMethod `json:"method"`
	BankDetails     models.BankDetails `json:"bank_details"`
	ReferenceNumber *string            `json:"reference_number,omitempty"`
	Notes           *string            `json:"notes,omitempty"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
	ItemCount       int                `json:"item_count"`
	CreatedAt       time.Time          `json:"created_at"`
}

type completePayoutRequest struct {
	Reference string `json:"reference" validate:"required,max=128"`
}

type cancelPayoutRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdminRunPayouts batches payouts for every eligible vendor.
func AdminRunPayouts(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		summary, err := svc.RunScheduled(r.Context())
		if err != nil && summary.Processed == 0 && summary.Failed == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "payouts.run_partial_failure")
		}
		responses.WriteSuccess(w, summary)
	}
}

// AdminCreateVendorPayout batches one vendor's unpaid completed items.
func AdminCreateVendorPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CreateForVendor(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Skipped != nil {
			responses.WriteSuccess(w, map[string]any{"skipped": result.Skipped})
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPayoutView(result.Created))
	}
}

// AdminVendorPendingPayout reports a vendor's unpaid completed earnings.
func AdminVendorPendingPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := svc.PendingAmount(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"vendor_id": vendorID, "pending_amount": amount})
	}
}

func AdminGetPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(svc, logg, func(r *http.Request, id uuid.UUID) (*models.VendorPayout, error) {
		return svc.Get(r.Context(), id)
	})
}

// AdminProcessPayout marks a pending payout as being transferred.
func AdminProcessPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(svc, logg, func(r *http.Request, id uuid.UUID) (*models.VendorPayout, error) {
		return svc.MarkProcessing(r.Context(), id)
	})
}

// AdminCompletePayout records the transfer reference and debits the vendor balance.
func AdminCompletePayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(svc, logg, func(r *http.Request, id uuid.UUID) (*models.VendorPayout, error) {
		var req completePayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Process(r.Context(), id, validators.CleanText(req.Reference, 128))
	})
}

// AdminCancelPayout fails a pending payout and frees its items.
func AdminCancelPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutAction(svc, logg, func(r *http.Request, id uuid.UUID) (*models.VendorPayout, error) {
		var req cancelPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), id, validators.CleanText(req.Reason, 500))
	})
}

// AdminPayoutStats aggregates payouts created in [from, to). The window
// defaults to the last 30 days.
func AdminPayoutStats(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		from, err := validators.ParseQueryDate(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end := time.Now().UTC()
		if to != nil {
			end = to.Add(24 * time.Hour)
		}
		start := end.Add(-defaultStatsWindow)
		if from != nil {
			start = *from
		}
		if !start.Before(end) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to"))
			return
		}
		stats, err := svc.Statistics(r.Context(), start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func payoutAction(svc payoutService, logg *logger.Logger, fn func(*http.Request, uuid.UUID) (*models.VendorPayout, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := fn(r, payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPayoutView(payout))
	}
}

func toPayoutView(p *models.VendorPayout) payoutView {
	return payoutView{
		ID:              p.ID,
		VendorID:        p.VendorID,
		PayoutNumber:    p.PayoutNumber,
		Amount:          p.Amount,
		Status:          p.Status,
		Method:          p.Method,
		BankDetails:     p.BankDetails,
		ReferenceNumber: p.ReferenceNumber,
		Notes:           p.Notes,
		ProcessedAt:     p.ProcessedAt,
		ItemCount:       len(p.Items),
		CreatedAt:       p.CreatedAt,
	}
}
