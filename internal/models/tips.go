package models

import "github.com/shopspring/decimal"

// TipSession is the ephemeral aggregate for one tip attempt: the amount the
// visitor picked, the derived sats, the request id and the latest payment
// snapshot. It is created when the visitor confirms an amount and discarded
// when a new tip starts.
type TipSession struct {
	AmountUsd  decimal.Decimal
	AmountSats int64
	PaymentId  string
	Payment    *Payment
}

// TipOption is one preset amount tile shown to the visitor.
type TipOption struct {
	AmountUsd decimal.Decimal
	Emoji     string
	Message   string
}
