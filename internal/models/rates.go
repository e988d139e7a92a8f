package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one observed USD price for 1 BTC. Price is always
// positive. A rate is never mutated in place; the cache replaces the whole
// record on refresh.
type ExchangeRate struct {
	Price      decimal.Decimal
	ObservedAt time.Time
}
