package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-core/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-core/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/marketplace-core/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/marketplace-core/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-core/api/middleware"
	"github.com/angelmondragon/marketplace-core/internal/cart"
	"github.com/angelmondragon/marketplace-core/internal/orders"
	"github.com/angelmondragon/marketplace-core/internal/payments"
	"github.com/angelmondragon/marketplace-core/internal/payouts"
	"github.com/angelmondragon/marketplace-core/internal/shipping"
	"github.com/angelmondragon/marketplace-core/pkg/config"
	"github.com/angelmondragon/marketplace-core/pkg/db"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-core/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP surface needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	pkgredis.Pinger
}

// ShippingQuoter prices a vendor group. Leave it nil when no courier API is
// configured.
type ShippingQuoter interface {
	Quote(ctx context.Context, group shipping.Group, destination string, couriers []string) (shipping.Quote, error)
}

type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics
	Carts    cart.Service
	Orders   orders.Service
	Payouts  payouts.Service
	Payments payments.Service
	Webhooks webhookcontrollers.NotificationHandler
	Shipping ShippingQuoter
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(p)))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(p.Gatherer))

	limits := rateLimits(cfg.RateLimit)
	limiter := rateLimiter(p.Redis)

	r.With(middleware.RateLimit(limits.notifications, limiter, logg)).
		Post("/webhooks/midtrans", webhookcontrollers.MidtransNotification(p.Webhooks, logg))
	r.Get("/payment/finish", webhookcontrollers.PaymentFinish())

	checkoutDeps := controllers.CheckoutDeps{Carts: p.Carts, Orders: p.Orders, Payments: p.Payments}
	if p.Shipping != nil {
		checkoutDeps.Quoter = p.Shipping
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore(p.Redis), logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(p.Carts, logg))
			r.Post("/items", cartcontrollers.CartAddItem(p.Carts, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(p.Carts, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(p.Carts, logg))
			r.Post("/merge", cartcontrollers.CartMerge(p.Carts, logg))
		})

		r.With(middleware.RateLimit(limits.checkout, limiter, logg)).
			Post("/checkout", controllers.Checkout(checkoutDeps, logg))
		r.Post("/checkout/shipping-quotes", controllers.ShippingQuotes(checkoutDeps, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.CancelOrder(p.Orders, logg))
			r.With(middleware.RateLimit(limits.paymentSession, limiter, logg)).
				Post("/{orderId}/payment-session", ordercontrollers.PaymentSession(p.Orders, p.Payments, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleOperator))

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Post("/process", controllers.AdminProcessOrder(p.Orders, logg))
				r.Post("/ship", controllers.AdminShipOrder(p.Orders, logg))
				r.Post("/complete", controllers.AdminCompleteOrder(p.Orders, logg))
				r.Post("/refund", controllers.AdminRefundOrder(p.Orders, logg))
			})

			r.Route("/payouts", func(r chi.Router) {
				r.Post("/run", controllers.AdminRunPayouts(p.Payouts, logg))
				r.Get("/stats", controllers.AdminPayoutStats(p.Payouts, logg))
				r.Route("/{payoutId}", func(r chi.Router) {
					r.Get("/", controllers.AdminGetPayout(p.Payouts, logg))
					r.Post("/process", controllers.AdminProcessPayout(p.Payouts, logg))
					r.Post("/complete", controllers.AdminCompletePayout(p.Payouts, logg))
					r.Post("/cancel", controllers.AdminCancelPayout(p.Payouts, logg))
				})
			})

			r.Route("/vendors/{vendorId}", func(r chi.Router) {
				r.Post("/payouts", controllers.AdminCreateVendorPayout(p.Payouts, logg))
				r.Get("/pending-payout", controllers.AdminVendorPendingPayout(p.Payouts, logg))
			})
		})
	})

	return r
}

func readinessDeps(p RouterParams) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{"database": nil, "redis": nil}
	if p.DB != nil {
		deps["database"] = p.DB
	}
	if p.Redis != nil {
		deps["redis"] = p.Redis
	}
	return deps
}

type routeLimits struct {
	checkout       middleware.RateLimitPolicy
	paymentSession middleware.RateLimitPolicy
	notifications  middleware.RateLimitPolicy
}

func rateLimits(cfg config.RateLimitConfig) routeLimits {
	return routeLimits{
		checkout:       middleware.RateLimitPolicy{Name: "checkout", Limit: cfg.CheckoutLimit, Window: cfg.Window, By: middleware.ByActor},
		paymentSession: middleware.RateLimitPolicy{Name: "payment_session", Limit: cfg.PaymentLimit, Window: cfg.Window, By: middleware.ByActor},
		notifications:  middleware.RateLimitPolicy{Name: "midtrans_notification", Limit: cfg.NotificationIPs, Window: cfg.Window, By: middleware.ByClientIP},
	}
}

func rateLimiter(store RedisStore) pkgredis.RateLimiter {
	if store == nil {
		return nil
	}
	return store
}

func idempotencyStore(store RedisStore) pkgredis.IdempotencyStore {
	if store == nil {
		return nil
	}
	return store
}
