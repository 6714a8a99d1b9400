package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMarketplaceCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMarketplace(reg)
	m.ObserveStock("reserve", "applied", 3)
	m.ObserveStock("reserve", "insufficient", 5)
	m.ObserveCheckout("created")
	m.ObserveWebhook("processed")
	m.ObserveWebhook("processed")
	m.ObserveOutbox("order_paid", "published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_stock_units_total", "op", "reserve"); err != nil || got != 3 {
		t.Fatalf("expected reserved units=3, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_stock_operations_total", "outcome", "insufficient"); err != nil || got != 1 {
		t.Fatalf("expected one insufficient reservation, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_payments_notifications_total", "outcome", "processed"); err != nil || got != 2 {
		t.Fatalf("expected processed=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_checkout_attempts_total", "outcome", "created"); err != nil || got != 1 {
		t.Fatalf("expected created=1, got %f (%v)", got, err)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMarketplace(reg).ObserveCheckout("rejected")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `marketplace_checkout_attempts_total{outcome="rejected"} 1`) {
		t.Fatalf("metrics output missing checkout counter:\n%s", body)
	}
}

func TestNilMarketplaceIsNoop(t *testing.T) {
	var m *Marketplace
	m.ObserveStock("commit", "applied", 1)
	NewMarketplace(nil).ObserveWebhook("error")
}
