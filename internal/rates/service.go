package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"bitcoin-tipjar-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// satsPerBtc is the satoshi denomination of one bitcoin.
var satsPerBtc = decimal.NewFromInt(100_000_000)

// RateUnavailableError means no usable exchange rate exists, live or cached.
type RateUnavailableError struct {
	Cause error
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("exchange rate unavailable: %v", e.Cause)
}

func (e *RateUnavailableError) Unwrap() error {
	return e.Cause
}

// Service fetches the BTC/USD exchange rate from a public ticker and caches
// the most recent observation. The cache cell is replaced as a whole record
// under the mutex, so readers never see a partially updated rate; the last
// successful fetch wins.
type Service struct {
	client    *http.Client
	tickerUrl string
	freshness time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	entry *models.ExchangeRate
}

func NewService(cfg models.RatesConfig) *Service {
	return &Service{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		tickerUrl: cfg.TickerUrl,
		freshness: cfg.FreshnessWindow,
		now:       time.Now,
	}
}

// GetRate returns the cached rate when it is still inside the freshness
// window, otherwise performs a live fetch. A failed fetch falls back to the
// stale cache when one exists; with an empty cache it fails with
// RateUnavailableError.
func (s *Service) GetRate(ctx context.Context) (models.ExchangeRate, error) {
	if entry, ok := s.freshEntry(); ok {
		return entry, nil
	}

	rate, err := s.fetchRate(ctx)
	if err != nil {
		if stale := s.lastEntry(); stale != nil {
			zap.L().Warn("Live price fetch failed, serving stale cached rate",
				zap.String("price_usd", stale.Price.String()),
				zap.Time("observed_at", stale.ObservedAt),
				zap.Error(err))
			return *stale, nil
		}
		return models.ExchangeRate{}, &RateUnavailableError{Cause: err}
	}

	s.mu.Lock()
	s.entry = &rate
	s.mu.Unlock()

	zap.L().Info("Fetched BTC/USD exchange rate",
		zap.String("price_usd", rate.Price.String()),
		zap.Time("observed_at", rate.ObservedAt))

	return rate, nil
}

// ConvertUsdToSats converts a positive USD amount to satoshis at the current
// rate: round(usd / price * 1e8). The result is stable across repeated calls
// within the freshness window.
func (s *Service) ConvertUsdToSats(ctx context.Context, usd decimal.Decimal) (int64, error) {
	if usd.Sign() <= 0 {
		return 0, fmt.Errorf("usd amount must be positive, got %s", usd.String())
	}

	rate, err := s.GetRate(ctx)
	if err != nil {
		return 0, err
	}

	return SatsAtRate(usd, rate.Price), nil
}

// ConvertUsdToMsats converts a positive USD amount to millisatoshis, the
// remote payment service's native amount unit.
func (s *Service) ConvertUsdToMsats(ctx context.Context, usd decimal.Decimal) (int64, error) {
	sats, err := s.ConvertUsdToSats(ctx, usd)
	if err != nil {
		return 0, err
	}
	return sats * 1000, nil
}

// SatsAtRate applies the conversion formula at a fixed price. Exposed so the
// embedding layer can compute fallback-rate previews with the exact same
// arithmetic as the live path.
func SatsAtRate(usd, price decimal.Decimal) int64 {
	return usd.Div(price).Mul(satsPerBtc).Round(0).IntPart()
}

func (s *Service) freshEntry() (models.ExchangeRate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entry == nil {
		return models.ExchangeRate{}, false
	}
	if s.now().Sub(s.entry.ObservedAt) >= s.freshness {
		return models.ExchangeRate{}, false
	}
	return *s.entry, true
}

func (s *Service) lastEntry() *models.ExchangeRate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry
}

// krakenTickerResponse is the slice of the Kraken public ticker payload we
// consume: the last-trade price of the BTC/USD pair.
type krakenTickerResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

type krakenTicker struct {
	C []string `json:"c"` // last trade closed [price, lot volume]
}

func (s *Service) fetchRate(ctx context.Context) (models.ExchangeRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tickerUrl, nil)
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("unable to build ticker request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("ticker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ExchangeRate{}, fmt.Errorf("ticker returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ticker krakenTickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return models.ExchangeRate{}, fmt.Errorf("unable to decode ticker response: %w", err)
	}

	if len(ticker.Error) > 0 {
		return models.ExchangeRate{}, fmt.Errorf("ticker API error: %s", strings.Join(ticker.Error, ", "))
	}

	price, err := lastTradePrice(ticker.Result)
	if err != nil {
		return models.ExchangeRate{}, err
	}

	return models.ExchangeRate{
		Price:      price,
		ObservedAt: s.now(),
	}, nil
}

// lastTradePrice extracts the last-trade price from the result map. Kraken
// keys the BTC/USD pair as XXBTZUSD; when the key is absent (other pair
// aliases) any single-entry result is accepted.
func lastTradePrice(result map[string]krakenTicker) (decimal.Decimal, error) {
	pair, ok := result["XXBTZUSD"]
	if !ok {
		if len(result) != 1 {
			return decimal.Zero, fmt.Errorf("unexpected ticker result format: %d pairs", len(result))
		}
		for _, v := range result {
			pair = v
		}
	}

	if len(pair.C) == 0 {
		return decimal.Zero, fmt.Errorf("ticker result missing last trade price")
	}

	price, err := decimal.NewFromString(pair.C[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse last trade price %q: %w", pair.C[0], err)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("ticker returned non-positive price %s", price.String())
	}

	return price, nil
}
