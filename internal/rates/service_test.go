package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bitcoin-tipjar-go/internal/models"

	"github.com/shopspring/decimal"
)

func tickerBody(price string) string {
	return fmt.Sprintf(`{"error":[],"result":{"XXBTZUSD":{"c":["%s","0.01000000"]}}}`, price)
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc := NewService(models.RatesConfig{
		TickerUrl:       srv.URL,
		FreshnessWindow: 60 * time.Second,
		RequestTimeout:  5 * time.Second,
	})
	return svc, srv
}

func TestSatsAtRate(t *testing.T) {
	tests := []struct {
		usd   string
		price string
		want  int64
	}{
		{"20", "100000", 20000},
		{"0.01", "97250", 10},
		{"10", "100000", 10000},
		{"50", "100000", 50000},
		{"1", "100000000", 1},
	}
	for _, tt := range tests {
		usd := decimal.RequireFromString(tt.usd)
		price := decimal.RequireFromString(tt.price)
		if got := SatsAtRate(usd, price); got != tt.want {
			t.Errorf("SatsAtRate(%s, %s) = %d, want %d", tt.usd, tt.price, got, tt.want)
		}
	}
}

func TestGetRate_SingleFetchWithinFreshnessWindow(t *testing.T) {
	var fetches int64
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		fmt.Fprint(w, tickerBody("100000.0"))
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rate, err := svc.GetRate(ctx)
		if err != nil {
			t.Fatalf("GetRate failed: %v", err)
		}
		if !rate.Price.Equal(decimal.RequireFromString("100000.0")) {
			t.Errorf("unexpected price %s", rate.Price.String())
		}
		now = now.Add(10 * time.Second)
	}

	if got := atomic.LoadInt64(&fetches); got != 1 {
		t.Errorf("expected exactly 1 live fetch within freshness window, got %d", got)
	}

	// Crossing the window triggers a second fetch.
	now = now.Add(60 * time.Second)
	if _, err := svc.GetRate(ctx); err != nil {
		t.Fatalf("GetRate after window failed: %v", err)
	}
	if got := atomic.LoadInt64(&fetches); got != 2 {
		t.Errorf("expected a refetch after the window, got %d fetches", got)
	}
}

func TestGetRate_StaleFallbackOnFetchFailure(t *testing.T) {
	var fail atomic.Bool
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, tickerBody("97250"))
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := svc.GetRate(ctx); err != nil {
		t.Fatalf("initial GetRate failed: %v", err)
	}

	// Expire the cache, then break the ticker.
	now = now.Add(5 * time.Minute)
	fail.Store(true)

	rate, err := svc.GetRate(ctx)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !rate.Price.Equal(decimal.RequireFromString("97250")) {
		t.Errorf("expected stale price 97250, got %s", rate.Price.String())
	}
}

func TestGetRate_NoCacheFailsWithRateUnavailable(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := svc.GetRate(context.Background())
	if err == nil {
		t.Fatal("expected error with empty cache and failing ticker")
	}

	var unavailable *RateUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("expected RateUnavailableError, got %T: %v", err, err)
	}
}

func TestGetRate_TickerApiError(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":["EService:Unavailable"],"result":{}}`)
	})

	var unavailable *RateUnavailableError
	if _, err := svc.GetRate(context.Background()); !errors.As(err, &unavailable) {
		t.Errorf("expected RateUnavailableError for ticker API error, got %v", err)
	}
}

func TestGetRate_RejectsNonPositivePrice(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tickerBody("0"))
	})

	if _, err := svc.GetRate(context.Background()); err == nil {
		t.Error("expected error for non-positive price")
	}
}

func TestConvertUsdToSats(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tickerBody("100000"))
	})

	ctx := context.Background()
	sats, err := svc.ConvertUsdToSats(ctx, decimal.RequireFromString("20"))
	if err != nil {
		t.Fatalf("ConvertUsdToSats failed: %v", err)
	}
	if sats != 20000 {
		t.Errorf("expected 20000 sats, got %d", sats)
	}

	// Repeated calls inside the freshness window are stable.
	for i := 0; i < 3; i++ {
		again, err := svc.ConvertUsdToSats(ctx, decimal.RequireFromString("20"))
		if err != nil {
			t.Fatalf("repeat conversion failed: %v", err)
		}
		if again != sats {
			t.Errorf("conversion not stable: got %d then %d", sats, again)
		}
	}

	msats, err := svc.ConvertUsdToMsats(ctx, decimal.RequireFromString("20"))
	if err != nil {
		t.Fatalf("ConvertUsdToMsats failed: %v", err)
	}
	if msats != 20000*1000 {
		t.Errorf("expected %d msats, got %d", 20000*1000, msats)
	}
}

func TestConvertUsdToSats_RejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tickerBody("100000"))
	})

	for _, amount := range []string{"0", "-5"} {
		if _, err := svc.ConvertUsdToSats(context.Background(), decimal.RequireFromString(amount)); err == nil {
			t.Errorf("expected error for amount %s", amount)
		}
	}
}
