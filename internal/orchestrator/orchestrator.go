/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"bitcoin-tipjar-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gateway is the slice of the payment API client the orchestrator depends
// on. The real implementation is internal/voltage.
type Gateway interface {
	CreatePayment(ctx context.Context, req models.PaymentRequest) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
}

// Converter provides USD to millisatoshi conversion. The real
// implementation is the rate cache in internal/rates.
type Converter interface {
	ConvertUsdToMsats(ctx context.Context, usd decimal.Decimal) (int64, error)
}

// State is the orchestrator's position in the tip lifecycle.
type State string

const (
	StateIdle                 State = "idle"
	StateSubmitting           State = "submitting"
	StateAwaitingInstructions State = "awaiting_instructions"
	StateInstructionsReady    State = "instructions_ready"
	StateAwaitingSettlement   State = "awaiting_settlement"
	StateSettled              State = "settled"
	StateFailed               State = "failed"
)

// SettlementResult is delivered exactly once on a tip handle's Settlement
// channel: the final payment snapshot on success, or the error that ended
// the settlement loop.
type SettlementResult struct {
	Payment *models.Payment
	Err     error
}

// TipHandle is the caller's view of one tip attempt after the payment
// instructions became available. The settlement loop keeps running in the
// background and reports through Settlement.
type TipHandle struct {
	PaymentId        string
	AmountMsats      int64
	LightningInvoice string
	OnchainAddress   string
	Bip21Uri         string
	Payment          *models.Payment
	Settlement       <-chan SettlementResult
}

// Config contains configuration for the Orchestrator.
type Config struct {
	Gateway      Gateway
	Converter    Converter
	WalletId     string
	PaymentKind  models.PaymentKind
	Instructions models.PollBudget
	Settlement   models.PollBudget
	Clock        Clock // defaults to the system clock
}

// Orchestrator drives one tip session at a time: price the tip, submit the
// receive-payment request, poll until the payment instructions exist, then
// poll in the background until the payment settles. Starting a new session
// cancels the previous one; results tagged with a superseded session id are
// never applied to current state.
type Orchestrator struct {
	gateway      Gateway
	converter    Converter
	walletId     string
	paymentKind  models.PaymentKind
	instructions models.PollBudget
	settlement   models.PollBudget
	clock        Clock

	mu            sync.Mutex
	activeId      string
	state         State
	cancelSession context.CancelFunc
}

func New(cfg Config) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	paymentKind := cfg.PaymentKind
	if paymentKind == "" {
		paymentKind = models.PaymentKindBolt11
	}

	return &Orchestrator{
		gateway:      cfg.Gateway,
		converter:    cfg.Converter,
		walletId:     cfg.WalletId,
		paymentKind:  paymentKind,
		instructions: cfg.Instructions,
		settlement:   cfg.Settlement,
		clock:        clock,
		state:        StateIdle,
	}
}

// State returns the lifecycle state of the currently active session.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Cancel aborts the active session's poll loops, for callers abandoning the
// tip flow entirely.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelSession != nil {
		o.cancelSession()
		o.cancelSession = nil
	}
	o.activeId = ""
	o.state = StateIdle
}

// Start runs one tip attempt: converts amountUsd to msats, submits the
// receive-payment request under a fresh idempotency id, and polls until the
// payment instructions are ready. It returns a handle carrying the invoice
// and/or address; the settlement poll continues in the background without
// blocking the caller. Any previous session is superseded immediately.
func (o *Orchestrator) Start(ctx context.Context, amountUsd decimal.Decimal, description string) (*TipHandle, error) {
	msats, err := o.converter.ConvertUsdToMsats(ctx, amountUsd)
	if err != nil {
		return nil, fmt.Errorf("unable to price tip: %w", err)
	}

	id := uuid.New().String()
	sessionCtx := o.beginSession(ctx, id)

	zap.L().Info("Starting tip session",
		zap.String("payment_id", id),
		zap.String("amount_usd", amountUsd.String()),
		zap.Int64("amount_msats", msats))

	req := models.PaymentRequest{
		Id:          id,
		PaymentKind: o.paymentKind,
		WalletId:    o.walletId,
		AmountMsats: msats,
		Currency:    "btc",
		Description: description,
	}

	if err := o.gateway.CreatePayment(sessionCtx, req); err != nil {
		o.setState(id, StateFailed)
		return nil, fmt.Errorf("payment creation failed: %w", err)
	}
	o.setState(id, StateAwaitingInstructions)

	payment, err := o.pollInstructions(sessionCtx, id)
	if err != nil {
		o.setState(id, StateFailed)
		return nil, err
	}
	o.setState(id, StateInstructionsReady)

	results := make(chan SettlementResult, 1)
	handle := &TipHandle{
		PaymentId:        id,
		AmountMsats:      msats,
		LightningInvoice: payment.Data.PaymentRequest,
		OnchainAddress:   payment.Data.Address,
		Bip21Uri:         payment.Bip21Uri,
		Payment:          payment,
		Settlement:       results,
	}

	o.setState(id, StateAwaitingSettlement)
	go o.pollSettlement(sessionCtx, id, results)

	return handle, nil
}

// beginSession cancels any in-flight session and registers the new one as
// active. The returned context is cancelled when the session is superseded.
func (o *Orchestrator) beginSession(ctx context.Context, id string) context.Context {
	sessionCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelSession != nil {
		zap.L().Info("Superseding in-flight tip session",
			zap.String("previous_payment_id", o.activeId),
			zap.String("payment_id", id))
		o.cancelSession()
	}

	o.activeId = id
	o.cancelSession = cancel
	o.state = StateSubmitting

	return sessionCtx
}

// setState applies a transition only when id is still the active session.
func (o *Orchestrator) setState(id string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.activeId != id {
		return
	}
	o.state = state
}

func (o *Orchestrator) isActive(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeId == id
}

// pollInstructions fetches the payment snapshot at a fixed interval until
// it carries payable instructions. The attempt budget is shared between
// "not ready yet" and transient fetch errors; exhausting it is an expected
// outcome when the backend is slow and leaves the caller free to retry the
// whole flow.
func (o *Orchestrator) pollInstructions(ctx context.Context, id string) (*models.Payment, error) {
	budget := o.instructions

	for attempt := 1; attempt <= budget.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payment, err := o.gateway.GetPayment(ctx, id)
		switch {
		case err == nil && payment.InstructionsReady():
			zap.L().Info("Payment instructions ready",
				zap.String("payment_id", id),
				zap.Int("attempt", attempt))
			return payment, nil
		case err != nil:
			zap.L().Debug("Instructions poll attempt failed",
				zap.String("payment_id", id),
				zap.Int("attempt", attempt),
				zap.Error(err))
		default:
			zap.L().Debug("Payment instructions not ready yet",
				zap.String("payment_id", id),
				zap.Int("attempt", attempt),
				zap.String("status", string(payment.Status)))
		}

		if attempt < budget.MaxAttempts {
			if err := o.clock.Sleep(ctx, budget.Interval); err != nil {
				return nil, err
			}
		}
	}

	return nil, &PollTimeoutError{Stage: StageInstructions, Attempts: budget.MaxAttempts, Interval: budget.Interval}
}

// pollSettlement watches the payment until it completes, dies, or the
// budget runs out, and delivers exactly one result on ch. Results for a
// superseded session never mutate orchestrator state; the stale handle gets
// ErrSessionSuperseded instead.
func (o *Orchestrator) pollSettlement(ctx context.Context, id string, ch chan<- SettlementResult) {
	budget := o.settlement

	for attempt := 1; attempt <= budget.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			o.deliver(id, ch, SettlementResult{Err: err})
			return
		}

		payment, err := o.gateway.GetPayment(ctx, id)
		if err == nil {
			switch {
			case payment.Status == models.PaymentStatusCompleted:
				zap.L().Info("Payment settled",
					zap.String("payment_id", id),
					zap.Int("attempt", attempt))
				o.setState(id, StateSettled)
				o.deliver(id, ch, SettlementResult{Payment: payment})
				return
			case payment.Status.Terminal():
				zap.L().Warn("Payment reached terminal failure",
					zap.String("payment_id", id),
					zap.String("status", string(payment.Status)),
					zap.Int("attempt", attempt))
				o.setState(id, StateFailed)
				o.deliver(id, ch, SettlementResult{Payment: payment, Err: &TerminalFailureError{Status: payment.Status}})
				return
			}
			zap.L().Debug("Payment not settled yet",
				zap.String("payment_id", id),
				zap.Int("attempt", attempt),
				zap.String("status", string(payment.Status)))
		} else {
			zap.L().Debug("Settlement poll attempt failed",
				zap.String("payment_id", id),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		if attempt < budget.MaxAttempts {
			if err := o.clock.Sleep(ctx, budget.Interval); err != nil {
				o.deliver(id, ch, SettlementResult{Err: err})
				return
			}
		}
	}

	o.deliver(id, ch, SettlementResult{Err: &PollTimeoutError{Stage: StageSettlement, Attempts: budget.MaxAttempts, Interval: budget.Interval}})
}

// deliver sends the result to the handle, downgrading it to
// ErrSessionSuperseded when the session is no longer active. ch is buffered
// so delivery never blocks the loop.
func (o *Orchestrator) deliver(id string, ch chan<- SettlementResult, result SettlementResult) {
	if !o.isActive(id) {
		ch <- SettlementResult{Err: ErrSessionSuperseded}
		return
	}
	ch <- result
}
