package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-core/internal/payouts"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const VendorPayoutsJobName = "vendor_payouts"

type payoutRunner interface {
	RunScheduled(ctx context.Context) (payouts.RunSummary, error)
}

type VendorPayoutsJobParams struct {
	Logger  *logger.Logger
	Payouts payoutRunner
	// Every is the minimum gap between runs; zero runs on every tick.
	Every time.Duration
}

// NewVendorPayoutsJob creates pending payouts for every vendor whose balance
// reached the minimum.
func NewVendorPayoutsJob(params VendorPayoutsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	return &vendorPayoutsJob{logg: params.Logger, payouts: params.Payouts, every: params.Every}, nil
}

type vendorPayoutsJob struct {
	logg    *logger.Logger
	payouts payoutRunner
	every   time.Duration
}

func (j *vendorPayoutsJob) Name() string         { return VendorPayoutsJobName }
func (j *vendorPayoutsJob) Every() time.Duration { return j.every }

func (j *vendorPayoutsJob) Run(ctx context.Context) error {
	summary, err := j.payouts.RunScheduled(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed":    summary.Processed,
		"skipped":      summary.Skipped,
		"failed":       summary.Failed,
		"total_amount": summary.TotalAmount.String(),
	})
	j.logg.Info(logCtx, "vendor payout run complete")
	if err != nil {
		return fmt.Errorf("vendor payouts: %w", err)
	}
	return nil
}
