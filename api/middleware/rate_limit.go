package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-core/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-core/pkg/redis"
)

// RateLimitBy selects the counter a request is charged to.
type RateLimitBy int

const (
	// ByActor charges the authenticated user and must run after Auth.
	ByActor RateLimitBy = iota
	// ByClientIP charges the first X-Forwarded-For hop or the peer address.
	ByClientIP
)

// RateLimitPolicy is a fixed-window cap for one traffic surface.
type RateLimitPolicy struct {
	Name   string
	Limit  int
	Window time.Duration
	By     RateLimitBy
}

func (p RateLimitPolicy) enabled() bool {
	return p.Limit > 0 && p.Window > 0 && p.Name != ""
}

// RateLimit answers 429 with Retry-After once a caller exceeds policy. A
// Redis failure lets the request through.
func RateLimit(policy RateLimitPolicy, limiter pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subject := rateLimitSubject(r, policy.By)
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, policy.Name+":"+subject, int64(policy.Limit), policy.Window)
			if err != nil {
				logError(ctx, logg, "rate limit check failed", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy": policy.Name,
						"hits":   count,
						"limit":  policy.Limit,
					}), "rate limit exceeded")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, retry later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitSubject(r *http.Request, by RateLimitBy) string {
	if by == ByActor {
		if id, ok := IdentityFromContext(r.Context()); ok {
			return id.UserID.String()
		}
		return ""
	}
	return clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
