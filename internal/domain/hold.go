package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hold reserves Amount of a token until it is committed, released, or reaped
// after ExpiresAt. Holds are never edited; every transition deletes the row.
type Hold struct {
	ID        string
	TokenID   string
	Amount    decimal.Decimal
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the hold is past its expiry at now.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// HoldOutcome names the terminal transition a hold went through.
type HoldOutcome string

const (
	HoldCommitted       HoldOutcome = "committed"
	HoldReleased        HoldOutcome = "released"
	HoldExpiredReleased HoldOutcome = "expired_released"
)

// Reservation is the result of reserving inventory: the hold plus the token
// state it was taken against.
type Reservation struct {
	Hold  Hold
	Token Token
}
