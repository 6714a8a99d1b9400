package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-core/internal/cart"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
	"github.com/angelmondragon/marketplace-core/pkg/rajaongkir"
	"github.com/angelmondragon/marketplace-core/pkg/redis"
)

const (
	cacheScope      = "shipping"
	minWeightGrams  = 1
	defaultCacheTTL = 24 * time.Hour
)

// CostProvider prices courier services between two cities.
type CostProvider interface {
	Cost(ctx context.Context, req rajaongkir.CostRequest) ([]rajaongkir.ServiceCost, error)
}

// Group is the shippable unit of a checkout: one vendor's lines.
type Group struct {
	VendorID     uuid.UUID `json:"vendor_id"`
	OriginCityID string    `json:"origin_city_id"`
	WeightGrams  int       `json:"weight_grams"`
	Couriers     []string  `json:"couriers,omitempty"`
}

// GroupFromCart adapts a cart vendor group.
func GroupFromCart(g cart.VendorGroup) Group {
	return Group{VendorID: g.VendorID, OriginCityID: g.OriginCityID, WeightGrams: g.Weight, Couriers: g.Couriers}
}

type Option struct {
	Courier     string          `json:"courier"`
	Service     string          `json:"service"`
	Description string          `json:"description,omitempty"`
	Cost        decimal.Decimal `json:"cost"`
	ETD         string          `json:"etd,omitempty"`
}

type Quote struct {
	VendorID uuid.UUID `json:"vendor_id"`
	Options  []Option  `json:"options"`
}

// Selection is the option a buyer picked for a vendor group.
type Selection struct {
	Courier string
	Service string
	Cost    decimal.Decimal
}

type Quoter struct {
	provider CostProvider
	cache    redis.Cache
	ttl      time.Duration
	couriers []string
	logg     *logger.Logger
}

type QuoterParams struct {
	Provider CostProvider
	Cache    redis.Cache
	CacheTTL time.Duration
	Couriers []string
	Logger   *logger.Logger
}

func NewQuoter(params QuoterParams) (*Quoter, error) {
	if params.Provider == nil {
		return nil, errors.New("shipping cost provider required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Quoter{
		provider: params.Provider,
		cache:    params.Cache,
		ttl:      ttl,
		couriers: normalizeCouriers(params.Couriers),
		logg:     params.Logger,
	}, nil
}

// Quote prices every allowed courier service for group delivered to
// destination. Results are cached per origin, destination, weight and courier
// set; cache failures fall through to the provider.
func (q *Quoter) Quote(ctx context.Context, group Group, destination string, couriers []string) (Quote, error) {
	if strings.TrimSpace(group.OriginCityID) == "" {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor has no shipping origin").WithDetails(map[string]any{"vendor_id": group.VendorID.String()})
	}
	if strings.TrimSpace(destination) == "" {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "destination is required")
	}
	selected := q.resolveCouriers(group.Couriers, couriers)
	if len(selected) == 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "no courier available for vendor")
	}
	weight := max(group.WeightGrams, minWeightGrams)

	key := ""
	if q.cache != nil {
		key = q.cache.CacheKey(cacheScope, group.OriginCityID, destination, strconv.Itoa(weight), strings.Join(selected, ","))
		if options, ok := q.cached(ctx, key); ok {
			return Quote{VendorID: group.VendorID, Options: options}, nil
		}
	}

	costs, err := q.provider.Cost(ctx, rajaongkir.CostRequest{
		Origin:      group.OriginCityID,
		Destination: destination,
		WeightGrams: weight,
		Couriers:    selected,
	})
	if err != nil {
		return Quote{}, err
	}
	options := make([]Option, 0, len(costs))
	for _, c := range costs {
		options = append(options, Option{
			Courier:     c.Courier,
			Service:     c.Service,
			Description: c.Description,
			Cost:        decimal.NewFromInt(c.Cost),
			ETD:         c.ETD,
		})
	}
	sort.SliceStable(options, func(i, j int) bool { return options[i].Cost.LessThan(options[j].Cost) })

	if key != "" {
		if raw, err := json.Marshal(options); err == nil {
			if err := q.cache.Set(ctx, key, string(raw), q.ttl); err != nil {
				q.warn(ctx, "cache shipping quote: "+err.Error())
			}
		}
	}
	return Quote{VendorID: group.VendorID, Options: options}, nil
}

func (q *Quoter) cached(ctx context.Context, key string) ([]Option, bool) {
	raw, err := q.cache.Cached(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			q.warn(ctx, "read shipping quote cache: "+err.Error())
		}
		return nil, false
	}
	var options []Option
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		q.warn(ctx, "decode cached shipping quote: "+err.Error())
		return nil, false
	}
	return options, true
}

// resolveCouriers intersects the configured couriers with the vendor's and
// the buyer's preferences, keeping configured order.
func (q *Quoter) resolveCouriers(vendor, requested []string) []string {
	allowed := q.couriers
	for _, filter := range [][]string{normalizeCouriers(vendor), normalizeCouriers(requested)} {
		if len(filter) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(filter))
		for _, c := range filter {
			set[c] = struct{}{}
		}
		next := make([]string, 0, len(allowed))
		for _, c := range allowed {
			if _, ok := set[c]; ok {
				next = append(next, c)
			}
		}
		allowed = next
	}
	return allowed
}

// Cheapest returns the lowest-cost option.
func Cheapest(quote Quote) (Option, bool) {
	if len(quote.Options) == 0 {
		return Option{}, false
	}
	best := quote.Options[0]
	for _, opt := range quote.Options[1:] {
		if opt.Cost.LessThan(best.Cost) {
			best = opt
		}
	}
	return best, true
}

// Validate confirms sel matches a quoted option, courier and service compared
// case-insensitively and cost exactly.
func Validate(sel Selection, quote Quote) error {
	for _, opt := range quote.Options {
		if strings.EqualFold(opt.Courier, sel.Courier) && strings.EqualFold(opt.Service, sel.Service) {
			if !opt.Cost.Equal(sel.Cost) {
				return pkgerrors.New(pkgerrors.CodeValidation, "shipping cost does not match quote").WithDetails(map[string]any{
					"vendor_id": quote.VendorID.String(),
					"quoted":    opt.Cost.String(),
					"selected":  sel.Cost.String(),
				})
			}
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("shipping option %s %s not available", sel.Courier, sel.Service)).WithDetails(map[string]any{
		"vendor_id": quote.VendorID.String(),
	})
}

func normalizeCouriers(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (q *Quoter) warn(ctx context.Context, msg string) {
	if q.logg != nil {
		q.logg.Warn(ctx, msg)
	}
}
