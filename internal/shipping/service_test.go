package shipping

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/rajaongkir"
	"github.com/angelmondragon/marketplace-core/pkg/redis"
)

type fakeProvider struct {
	calls []rajaongkir.CostRequest
	costs []rajaongkir.ServiceCost
	err   error
}

func (f *fakeProvider) Cost(_ context.Context, req rajaongkir.CostRequest) ([]rajaongkir.ServiceCost, error) {
	f.calls = append(f.calls, req)
	return f.costs, f.err
}

type memoryCache struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Cached(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) CacheKey(scope string, parts ...string) string {
	return scope + ":" + strings.Join(parts, ":")
}

func provider() *fakeProvider {
	return &fakeProvider{costs: []rajaongkir.ServiceCost{
		{Courier: "jne", Service: "YES", Cost: 28000, ETD: "1"},
		{Courier: "jne", Service: "REG", Cost: 15000, ETD: "2-3"},
		{Courier: "pos", Service: "Kilat", Cost: 12000, ETD: "4"},
	}}
}

func TestQuoteSortsAndCaches(t *testing.T) {
	p := provider()
	cache := newMemoryCache()
	q, err := NewQuoter(QuoterParams{Provider: p, Cache: cache, CacheTTL: time.Hour, Couriers: []string{"JNE", "pos", "tiki"}})
	require.NoError(t, err)
	group := Group{VendorID: uuid.New(), OriginCityID: "151", WeightGrams: 0}

	quote, err := q.Quote(context.Background(), group, "153", nil)
	require.NoError(t, err)
	require.Len(t, quote.Options, 3)
	assert.Equal(t, "Kilat", quote.Options[0].Service)
	assert.Equal(t, "YES", quote.Options[2].Service)
	require.Len(t, p.calls, 1)
	assert.Equal(t, 1, p.calls[0].WeightGrams)
	assert.Equal(t, []string{"jne", "pos", "tiki"}, p.calls[0].Couriers)

	again, err := q.Quote(context.Background(), group, "153", nil)
	require.NoError(t, err)
	assert.Len(t, p.calls, 1)
	assert.True(t, again.Options[0].Cost.Equal(decimal.NewFromInt(12000)))
	for _, ttl := range cache.ttls {
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestQuoteIntersectsCouriers(t *testing.T) {
	p := provider()
	q, err := NewQuoter(QuoterParams{Provider: p, Couriers: []string{"jne", "pos", "tiki"}})
	require.NoError(t, err)
	group := Group{VendorID: uuid.New(), OriginCityID: "151", WeightGrams: 1200, Couriers: []string{"pos", "jne"}}

	_, err = q.Quote(context.Background(), group, "153", []string{"JNE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jne"}, p.calls[0].Couriers)

	_, err = q.Quote(context.Background(), group, "153", []string{"sicepat"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestQuoteValidatesInput(t *testing.T) {
	p := provider()
	q, err := NewQuoter(QuoterParams{Provider: p, Couriers: []string{"jne"}})
	require.NoError(t, err)

	_, err = q.Quote(context.Background(), Group{VendorID: uuid.New()}, "153", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = q.Quote(context.Background(), Group{VendorID: uuid.New(), OriginCityID: "151"}, " ", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, p.calls)

	p.err = errors.New("boom")
	_, err = q.Quote(context.Background(), Group{VendorID: uuid.New(), OriginCityID: "151"}, "153", nil)
	assert.Error(t, err)

	_, err = NewQuoter(QuoterParams{})
	assert.Error(t, err)
}

func TestCheapestAndValidate(t *testing.T) {
	quote := Quote{VendorID: uuid.New(), Options: []Option{
		{Courier: "jne", Service: "REG", Cost: decimal.NewFromInt(15000)},
		{Courier: "pos", Service: "Kilat", Cost: decimal.NewFromInt(12000)},
	}}
	best, ok := Cheapest(quote)
	require.True(t, ok)
	assert.Equal(t, "pos", best.Courier)
	_, ok = Cheapest(Quote{})
	assert.False(t, ok)

	assert.NoError(t, Validate(Selection{Courier: "JNE", Service: "reg", Cost: decimal.NewFromInt(15000)}, quote))
	err := Validate(Selection{Courier: "jne", Service: "REG", Cost: decimal.NewFromInt(10000)}, quote)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = Validate(Selection{Courier: "tiki", Service: "ONS", Cost: decimal.NewFromInt(15000)}, quote)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
