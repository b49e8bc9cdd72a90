package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// PaymentGateway authorizes and captures card payments and confirms receipt
// of bank transfers.
type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error)
	Capture(ctx context.Context, reference string) (domain.PaymentStatus, error)
	ConfirmBank(ctx context.Context, reference string) (domain.PaymentStatus, error)
}

type AuthorizeRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

type Authorization struct {
	Provider  string
	Reference string
}

// Wallet sends tokens to the buyer once payment is captured.
type Wallet interface {
	Transfer(ctx context.Context, req TransferRequest) (domain.Transfer, error)
}

type TransferRequest struct {
	OrderID string
	TokenID string
	Symbol  string
	Network string
	To      string
	Amount  decimal.Decimal
}

// QuoteSource prices fiat-to-crypto conversions for quote orders.
type QuoteSource interface {
	Quote(ctx context.Context, req QuoteRequest) (domain.Quote, error)
}

type QuoteRequest struct {
	FiatAmount     decimal.Decimal
	FiatCurrency   string
	CryptoCurrency string
}

// EventPublisher receives order state changes. Delivery is best effort from
// the orchestrator's point of view.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.OrderEvent) error { return nil }

// Collaborators groups the external services an orchestrator talks to.
type Collaborators struct {
	Payment PaymentGateway
	Wallet  Wallet
	Quotes  QuoteSource
	Events  EventPublisher
}
