package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/coins/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("per_page") != "20" || q.Get("vs_currency") != "usd" || q.Get("order") != "market_cap_desc" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":50000.5,"price_change_percentage_24h":2.5,"total_volume":1000000},
			{"id":"newcoin","symbol":"new","name":"New","current_price":null,"price_change_percentage_24h":null,"total_volume":null},
			{"id":"","symbol":"bad","name":"Bad"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "USD", time.Second)
	got, err := c.FetchMarkets(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("FetchMarkets failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(got))
	}
	if got[0].Coin.Symbol != "BTC" || got[0].Quote.Price != 50000.5 || got[0].Quote.Change24h != 2.5 {
		t.Errorf("unexpected BTC listing %+v", got[0])
	}
	if got[1].Quote.HasData() {
		t.Errorf("null quote should map to no data, got %+v", got[1].Quote)
	}
}

func TestFetchMarketChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/coins/bitcoin/market_chart" || r.URL.Query().Get("days") != "7" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"prices":[[1700000000000,50000.1],[1700003600000,50100.2],[1]]}`))
	}))
	defer srv.Close()

	pts, err := NewClient(srv.URL, "", 0).FetchMarketChart(context.Background(), "bitcoin", 0)
	if err != nil {
		t.Fatalf("FetchMarketChart failed: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if !pts[0].Time.Equal(time.UnixMilli(1700000000000)) || pts[1].Price != 50100.2 {
		t.Errorf("unexpected points %+v", pts)
	}
}

func TestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "usd", time.Second)
	if _, err := c.FetchMarkets(context.Background(), 1, 20); err == nil {
		t.Error("expected error on 429")
	}
	if _, err := c.FetchMarketChart(context.Background(), " ", 1); err == nil {
		t.Error("expected error on empty id")
	}
}
