package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const (
	PendingOrderExpiryJobName = "pending_order_expiry"
	OrderAutoCompleteJobName  = "order_auto_complete"

	defaultPendingOrderTTL   = 24 * time.Hour
	defaultAutoCompleteAfter = 7 * 24 * time.Hour
)

type orderSweeper interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
	AutoComplete(ctx context.Context, olderThan time.Duration) (int, error)
}

type OrderJobParams struct {
	Logger *logger.Logger
	Orders orderSweeper
	// OlderThan is the pending TTL for expiry and the shipped age for
	// auto-completion.
	OlderThan time.Duration
}

// NewPendingOrderExpiryJob cancels unpaid orders older than the pending TTL,
// releasing their reserved stock.
func NewPendingOrderExpiryJob(params OrderJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	ttl := params.OlderThan
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderSweepJob{
		name:      PendingOrderExpiryJobName,
		logg:      params.Logger,
		olderThan: ttl,
		sweep:     params.Orders.ExpireStale,
	}, nil
}

// NewOrderAutoCompleteJob completes shipped orders the buyer never confirmed.
func NewOrderAutoCompleteJob(params OrderJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	after := params.OlderThan
	if after <= 0 {
		after = defaultAutoCompleteAfter
	}
	return &orderSweepJob{
		name:      OrderAutoCompleteJobName,
		logg:      params.Logger,
		olderThan: after,
		sweep:     params.Orders.AutoComplete,
	}, nil
}

func (p OrderJobParams) validate() error {
	if p.Logger == nil {
		return fmt.Errorf("logger required")
	}
	if p.Orders == nil {
		return fmt.Errorf("orders service required")
	}
	return nil
}

type orderSweepJob struct {
	name      string
	logg      *logger.Logger
	olderThan time.Duration
	sweep     func(ctx context.Context, olderThan time.Duration) (int, error)
}

func (j *orderSweepJob) Name() string { return j.name }

func (j *orderSweepJob) Run(ctx context.Context) error {
	count, err := j.sweep(ctx, j.olderThan)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"count":      count,
		"older_than": j.olderThan.String(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(logCtx, "order sweep complete")
	return nil
}
