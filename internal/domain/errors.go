package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrTokenNotFound         = errors.New("token not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvariantViolation    = errors.New("inventory invariant violation")
	ErrHoldNotFound          = errors.New("hold not found")
	ErrHoldExists            = errors.New("hold already exists")
	ErrTokenMismatch         = errors.New("hold belongs to a different token")
	ErrMissingFields         = errors.New("missing required fields")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidMethod         = errors.New("payment method must be CARD or BANK")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderExists           = errors.New("order already exists")
	ErrOrderConflict         = errors.New("order changed concurrently")
	ErrAlreadyFinal          = errors.New("order already final")
	ErrSettlementIncomplete  = errors.New("settlement incomplete")
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
	ErrUpstream              = errors.New("upstream service failure")
	ErrInvalidID             = errors.New("invalid id")
)

// InsufficientInventoryError reports how much was available when a
// reservation was refused.
type InsufficientInventoryError struct {
	Available decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: available %s", e.Available.String())
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// Settlement and creation steps reported by StepError.
const (
	StepReserve   = "reserve"
	StepAuthorize = "authorize"
	StepCapture   = "capture"
	StepCommit    = "commit"
	StepTransfer  = "transfer"
	StepRelease   = "release"
	StepQuote     = "quote"
)

// StepError identifies which orchestration step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// UpstreamFailure wraps a collaborator error so it matches ErrUpstream while
// keeping the original cause.
func UpstreamFailure(step string, err error) error {
	return &StepError{Step: step, Err: fmt.Errorf("%w: %w", ErrUpstream, err)}
}

// SettlementIncomplete marks a failure after payment capture. The order must be
// reconciled by hand.
func SettlementIncomplete(step string, err error) error {
	return &StepError{Step: step, Err: fmt.Errorf("%w: %w", ErrSettlementIncomplete, err)}
}

// FailedStep returns the step recorded in err, if any.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
