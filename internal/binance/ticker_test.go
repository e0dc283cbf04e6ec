package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTestConnectivity(t *testing.T) {
	t.Run("healthy server", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v3/time" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/api/v3/time")
			}
			w.Write([]byte(`{"serverTime": 1704067200000}`))
		}))
		defer server.Close()

		client := NewClient(server.URL)
		if !client.TestConnectivity(context.Background()) {
			t.Error("TestConnectivity = false, want true")
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, WithRetries(0, time.Millisecond))
		if client.TestConnectivity(context.Background()) {
			t.Error("TestConnectivity = true, want false")
		}
	})

	t.Run("implausible timestamp", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"serverTime": 0}`))
		}))
		defer server.Close()

		client := NewClient(server.URL)
		if client.TestConnectivity(context.Background()) {
			t.Error("TestConnectivity = true, want false")
		}
	})
}

func TestTopAssetsByActivity(t *testing.T) {
	body := `[
		{"symbol": "ETHUSDT", "lastPrice": "2000.5", "quoteVolume": "300.0"},
		{"symbol": "BTCUSDT", "lastPrice": "50000", "quoteVolume": "500.1"},
		{"symbol": "AAAUSDT", "lastPrice": "1.25", "quoteVolume": "300.0"},
		{"symbol": "BADUSDT", "lastPrice": "garbage", "quoteVolume": "900"},
		{"symbol": "DOGEUSDT", "lastPrice": "0.1", "quoteVolume": "42"}
	]`

	newServer := func(t *testing.T) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v3/ticker/24hr" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/api/v3/ticker/24hr")
			}
			w.Write([]byte(body))
		}))
	}

	t.Run("ranks by quote volume with symbol tiebreak", func(t *testing.T) {
		server := newServer(t)
		defer server.Close()

		client := NewClient(server.URL)
		assets, err := client.TopAssetsByActivity(context.Background(), 0)
		if err != nil {
			t.Fatalf("TopAssetsByActivity failed: %v", err)
		}

		// BADUSDT has an unparsable price and is dropped, not ranked.
		want := []string{"BTCUSDT", "AAAUSDT", "ETHUSDT", "DOGEUSDT"}
		if len(assets) != len(want) {
			t.Fatalf("len(assets) = %d, want %d", len(assets), len(want))
		}
		for i, sym := range want {
			if assets[i].Symbol != sym {
				t.Errorf("assets[%d].Symbol = %q, want %q", i, assets[i].Symbol, sym)
			}
		}
	})

	t.Run("truncates to limit", func(t *testing.T) {
		server := newServer(t)
		defer server.Close()

		client := NewClient(server.URL)
		assets, err := client.TopAssetsByActivity(context.Background(), 2)
		if err != nil {
			t.Fatalf("TopAssetsByActivity failed: %v", err)
		}
		if len(assets) != 2 {
			t.Fatalf("len(assets) = %d, want 2", len(assets))
		}
		if assets[0].Symbol != "BTCUSDT" || assets[1].Symbol != "AAAUSDT" {
			t.Errorf("top two = %q, %q, want BTCUSDT, AAAUSDT", assets[0].Symbol, assets[1].Symbol)
		}
	})

	t.Run("server error propagates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": -1100, "msg": "bad request"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL)
		if _, err := client.TopAssetsByActivity(context.Background(), 10); err == nil {
			t.Error("expected error, got nil")
		}
	})
}
