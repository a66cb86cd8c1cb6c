package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nftbay/marketplace/internal/domain/market"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestEmitCountsEventsByType(t *testing.T) {
	m := New()
	asset := market.AssetID{Contract: "0xabc", TokenID: 7}

	m.Emit(context.Background(), market.NewItemListed("0xseller", asset, 100))
	m.Emit(context.Background(), market.NewItemListed("0xseller", asset, 100))
	m.Emit(context.Background(), market.NewItemBought("0xbuyer", asset, 100))

	body := scrape(t, m)
	if !strings.Contains(body, `marketplace_events_total{type="item_listed"} 2`) {
		t.Fatalf("missing listed count in:\n%s", body)
	}
	if !strings.Contains(body, `marketplace_events_total{type="item_bought"} 1`) {
		t.Fatalf("missing bought count in:\n%s", body)
	}
}

func TestOperationErrorsAndStaleGauge(t *testing.T) {
	m := New()
	m.RecordOperationError("buy", "price_not_met")
	m.SetStaleListings(3)

	body := scrape(t, m)
	if !strings.Contains(body, `marketplace_operation_errors_total{kind="price_not_met",operation="buy"} 1`) {
		t.Fatalf("missing operation error in:\n%s", body)
	}
	if !strings.Contains(body, "marketplace_stale_listings 3") {
		t.Fatalf("missing stale gauge in:\n%s", body)
	}
}

func TestHTTPRequestHistogram(t *testing.T) {
	m := New()
	m.RecordHTTPRequest(http.MethodGet, "/listings", "200", 25*time.Millisecond)

	body := scrape(t, m)
	if !strings.Contains(body, `marketplace_http_request_duration_seconds_count{method="GET",path="/listings",status="200"} 1`) {
		t.Fatalf("missing histogram sample in:\n%s", body)
	}
}
