// Package app assembles the marketplace services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/internal/commission"
	"github.com/angelmondragon/marketplace-core/internal/orders"
	"github.com/angelmondragon/marketplace-core/internal/payments"
	"github.com/angelmondragon/marketplace-core/internal/payouts"
	"github.com/angelmondragon/marketplace-core/internal/shipping"
	"github.com/angelmondragon/marketplace-core/internal/stock"
	"github.com/angelmondragon/marketplace-core/internal/tax"
	"github.com/angelmondragon/marketplace-core/internal/vendors"
	midtranswebhook "github.com/angelmondragon/marketplace-core/internal/webhooks/midtrans"
	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/metrics"
	"github.com/angelmondragon/marketplace-core/pkg/midtrans"
	"github.com/angelmondragon/marketplace-core/pkg/outbox"
	"github.com/angelmondragon/marketplace-core/pkg/rajaongkir"
	"github.com/angelmondragon/marketplace-core/pkg/redis"
	"github.com/angelmondragon/marketplace-core/pkg/refnum"
)

// Core holds the services every binary needs: carts, the order workflow and
// payouts, all writing domain events through the outbox.
type Core struct {
	Carts      cart.Service
	OrderRepo  orders.Repository
	Orders     orders.Service
	Payouts    payouts.Service
	Vendors    vendors.Repository
	Outbox     *outbox.Service
	OutboxRepo *outbox.Repository
	DLQRepo    *outbox.DLQRepository
}

type CoreParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Metrics *metrics.Marketplace
}

func NewCore(params CoreParams) (*Core, error) {
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	cfg := params.Config.Marketplace
	conn := params.DB.DB()

	outboxRepo := outbox.NewRepository(conn)
	events := outbox.NewService(outboxRepo, params.Logger)

	carts, err := cart.NewService(cart.NewRepository(conn), params.DB, cfg)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	commissions, err := commission.NewCalculatorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("commission calculator: %w", err)
	}
	taxes, err := tax.NewCalculatorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("tax calculator: %w", err)
	}

	vendorRepo := vendors.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:       orderRepo,
		Tx:         params.DB,
		Outbox:     events,
		Stock:      stock.NewLedger(params.Logger, params.Metrics),
		Carts:      carts,
		Commission: commissions,
		Tax:        taxes,
		Numbers:    refnum.New(cfg.OrderNumberPrefix),
		Config:     cfg,
		Logger:     params.Logger,
		Recorder:   params.Metrics,
		Vendors:    vendorRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:           payouts.NewRepository(conn),
		Vendors:        vendorRepo,
		Tx:             params.DB,
		Outbox:         events,
		Numbers:        refnum.New(cfg.PayoutNumberPrefix),
		MinimumPayout:  cfg.MinimumPayout.Decimal,
		NumberAttempts: cfg.OrderNumberAttempts,
		Logger:         params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	return &Core{
		Carts:      carts,
		OrderRepo:  orderRepo,
		Orders:     orderSvc,
		Payouts:    payoutSvc,
		Vendors:    vendorRepo,
		Outbox:     events,
		OutboxRepo: outboxRepo,
		DLQRepo:    outbox.NewDLQRepository(conn),
	}, nil
}

// Gateway holds the services that talk to the payment gateway and the
// shipping rate provider.
type Gateway struct {
	Payments payments.Service
	Webhooks *midtranswebhook.Service
	Shipping *shipping.Quoter
}

type GatewayParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *redis.Client
	Metrics *metrics.Marketplace
	Core    *Core
	// HTTPClient overrides the outbound client of the gateway integrations.
	HTTPClient *http.Client
}

func NewGateway(ctx context.Context, params GatewayParams) (*Gateway, error) {
	if params.Core == nil {
		return nil, errors.New("core services required")
	}
	cfg := params.Config

	var midtransOpts []midtrans.Option
	if params.HTTPClient != nil {
		midtransOpts = append(midtransOpts, midtrans.WithHTTPClient(params.HTTPClient))
	}
	gateway, err := midtrans.NewClient(ctx, cfg.Midtrans, params.Logger, midtransOpts...)
	if err != nil {
		return nil, fmt.Errorf("midtrans client: %w", err)
	}

	paymentRepo := payments.NewRepository(params.DB.DB())
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:      paymentRepo,
		Orders:    params.Core.Orders,
		Gateway:   gateway,
		Tx:        params.DB,
		FinishURL: strings.TrimRight(cfg.App.PublicURL, "/") + cfg.Midtrans.FinishPath,
		Logger:    params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	var guard *midtranswebhook.IdempotencyGuard
	if params.Redis != nil {
		guard, err = midtranswebhook.NewIdempotencyGuard(params.Redis, cfg.Midtrans.DedupeTTL, midtranswebhook.DedupeScope)
		if err != nil {
			return nil, fmt.Errorf("webhook guard: %w", err)
		}
	}
	webhookSvc, err := midtranswebhook.NewService(midtranswebhook.ServiceParams{
		Tx:       params.DB,
		Orders:   params.Core.OrderRepo,
		Workflow: params.Core.Orders,
		Payments: paymentRepo,
		Vendors:  params.Core.Vendors,
		Outbox:   params.Core.Outbox,
		Verifier: gateway,
		Guard:    guard,
		Logger:   params.Logger,
		Recorder: params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	rajaOpts := []rajaongkir.Option{rajaongkir.WithBaseURL(cfg.Shipping.BaseURL), rajaongkir.WithTimeout(cfg.Shipping.Timeout)}
	if params.HTTPClient != nil {
		rajaOpts = append(rajaOpts, rajaongkir.WithHTTPClient(params.HTTPClient))
	}
	var quoter *shipping.Quoter
	if strings.TrimSpace(cfg.Shipping.APIKey) != "" {
		provider, err := rajaongkir.NewClient(cfg.Shipping.APIKey, rajaOpts...)
		if err != nil {
			return nil, fmt.Errorf("shipping client: %w", err)
		}
		qp := shipping.QuoterParams{
			Provider: provider,
			CacheTTL: cfg.Shipping.CacheTTL,
			Couriers: cfg.Shipping.Couriers,
			Logger:   params.Logger,
		}
		if params.Redis != nil {
			qp.Cache = params.Redis
		}
		quoter, err = shipping.NewQuoter(qp)
		if err != nil {
			return nil, fmt.Errorf("shipping quoter: %w", err)
		}
	} else if params.Logger != nil {
		params.Logger.Warn(ctx, "shipping api key not set, shipping quotes disabled")
	}

	return &Gateway{Payments: paymentSvc, Webhooks: webhookSvc, Shipping: quoter}, nil
}
