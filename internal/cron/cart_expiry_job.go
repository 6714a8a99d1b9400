package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const CartExpiryJobName = "cart_expiry"

type cartPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type CartExpiryJobParams struct {
	Logger *logger.Logger
	Carts  cartPurger
	Every  time.Duration
}

func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartExpiryJob{logg: params.Logger, carts: params.Carts, every: params.Every}, nil
}

type cartExpiryJob struct {
	logg  *logger.Logger
	carts cartPurger
	every time.Duration
}

func (j *cartExpiryJob) Name() string         { return CartExpiryJobName }
func (j *cartExpiryJob) Every() time.Duration { return j.every }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	removed, err := j.carts.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("cart expiry: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "carts_deleted", removed), "expired carts purged")
	return nil
}
