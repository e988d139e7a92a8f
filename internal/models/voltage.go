package models

// PaymentKind selects which payment instructions Voltage generates for a
// receive request.
type PaymentKind string

const (
	PaymentKindBolt11  PaymentKind = "bolt11"  // Lightning invoice only
	PaymentKindOnchain PaymentKind = "onchain" // on-chain address only
	PaymentKindBip21   PaymentKind = "bip21"   // unified: address + invoice
)

// PaymentStatus is the remote service's lifecycle state for a payment.
type PaymentStatus string

const (
	PaymentStatusReceiving PaymentStatus = "receiving"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// Terminal reports whether the status means the payment is dead and will
// never settle.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusExpired
}

// PaymentRequest is the create-receive-payment payload. Id doubles as the
// idempotency key: it is generated once per tip attempt, reused verbatim on
// transport retries of the same logical request, and never reused across
// distinct tips.
type PaymentRequest struct {
	Id          string      `json:"id"`
	PaymentKind PaymentKind `json:"payment_kind"`
	WalletId    string      `json:"wallet_id"`
	AmountMsats int64       `json:"amount_msats"`
	Currency    string      `json:"currency"`
	Description string      `json:"description,omitempty"`
}

// PaymentData carries the generated payment instructions once the remote
// service has produced them.
type PaymentData struct {
	AmountMsats    int64  `json:"amount_msats"`
	Expiration     string `json:"expiration,omitempty"`
	Memo           string `json:"memo,omitempty"`
	PaymentRequest string `json:"payment_request,omitempty"` // Lightning invoice
	Address        string `json:"address,omitempty"`         // on-chain address
}

// RequestedAmount echoes the amount the payment was created for.
type RequestedAmount struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Unit     string  `json:"unit"`
}

// Payment is the server-side record for a payment request, keyed by
// PaymentRequest.Id. The orchestrator only ever holds an immutable
// snapshot fetched per poll; the remote service owns the record.
type Payment struct {
	Id              string          `json:"id"`
	OrganizationId  string          `json:"organization_id"`
	EnvironmentId   string          `json:"environment_id"`
	WalletId        string          `json:"wallet_id"`
	Bip21Uri        string          `json:"bip21_uri,omitempty"`
	CreatedAt       string          `json:"created_at"`
	Currency        string          `json:"currency"`
	Data            PaymentData     `json:"data"`
	Direction       string          `json:"direction"`
	Error           string          `json:"error,omitempty"`
	RequestedAmount RequestedAmount `json:"requested_amount"`
	Status          PaymentStatus   `json:"status"`
	Type            PaymentKind     `json:"type"`
	UpdatedAt       string          `json:"updated_at"`
}

// InstructionsReady reports whether the snapshot carries something a wallet
// can pay: a Lightning invoice, an on-chain address, or a unified URI.
func (p *Payment) InstructionsReady() bool {
	return p.Data.PaymentRequest != "" || p.Data.Address != "" || p.Bip21Uri != ""
}
