package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"bitcoin-tipjar-go/internal/models"
)

// ErrSessionSuperseded is delivered to a tip handle whose session was
// replaced by a newer Start call (or cancelled by the caller) before its
// settlement loop resolved.
var ErrSessionSuperseded = errors.New("tip session superseded")

// Stage names which poll loop ran out of budget.
type Stage string

const (
	StageInstructions Stage = "instructions"
	StageSettlement   Stage = "settlement"
)

// PollTimeoutError means a bounded poll loop exhausted its attempt budget
// without reaching the target state. For the settlement stage this is a UX
// signal only: the payment may still settle after local polling gave up.
type PollTimeoutError struct {
	Stage    Stage
	Attempts int
	Interval time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("%s poll timed out after %d attempts at %s intervals", e.Stage, e.Attempts, e.Interval)
}

// TerminalFailureError means the remote service declared the payment dead.
type TerminalFailureError struct {
	Status models.PaymentStatus
}

func (e *TerminalFailureError) Error() string {
	return fmt.Sprintf("payment %s", e.Status)
}
