package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token is a catalog-listed token together with its inventory counters.
// Counters satisfy 0 <= Reserved <= Inventory.
type Token struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Network         string          `json:"network"`
	Name            string          `json:"name"`
	PriceFiat       decimal.Decimal `json:"priceFiat"`
	FiatCurrency    string          `json:"fiatCurrency"`
	Decimals        int             `json:"decimals"`
	ContractAddress string          `json:"contractAddress,omitempty"`
	Inventory       decimal.Decimal `json:"inventory"`
	Reserved        decimal.Decimal `json:"reserved"`
	Enabled         bool            `json:"enabled"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Available is the quantity that can still be reserved.
func (t Token) Available() decimal.Decimal {
	return t.Inventory.Sub(t.Reserved)
}

// CheckCounters reports whether inventory and reserved satisfy the ledger
// invariant.
func CheckCounters(inventory, reserved decimal.Decimal) error {
	if reserved.IsNegative() || inventory.IsNegative() || reserved.GreaterThan(inventory) {
		return ErrInvariantViolation
	}
	return nil
}

// TokenSnapshot is the subset of token fields copied onto an order.
type TokenSnapshot struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Network  string `json:"network"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

func (t Token) Snapshot() TokenSnapshot {
	return TokenSnapshot{
		ID:       t.ID,
		Symbol:   t.Symbol,
		Network:  t.Network,
		Name:     t.Name,
		Decimals: t.Decimals,
	}
}
