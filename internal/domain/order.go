package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderKind string

const (
	OrderKindCustomSell OrderKind = "CUSTOM_SELL"
	OrderKindQuote      OrderKind = "QUOTE"
)

type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "CREATED"
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusAuthorized     OrderStatus = "AUTHORIZED"
	OrderStatusCaptured       OrderStatus = "CAPTURED"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// Final reports whether no further transition is allowed.
func (s OrderStatus) Final() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodBank PaymentMethod = "BANK"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodBank
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured   PaymentStatus = "CAPTURED"
)

// BankInstructions tell the buyer where to wire a BANK payment.
type BankInstructions struct {
	IBAN      string `json:"iban"`
	BIC       string `json:"bic"`
	Reference string `json:"reference"`
}

// PaymentState tracks the payment side of an order.
type PaymentState struct {
	Status       PaymentStatus     `json:"status"`
	Method       PaymentMethod     `json:"method"`
	Provider     string            `json:"provider,omitempty"`
	Reference    string            `json:"reference,omitempty"`
	Amount       decimal.Decimal   `json:"amount"`
	Instructions *BankInstructions `json:"instructions,omitempty"`
}

// Transfer is the wallet transfer that delivered the tokens.
type Transfer struct {
	Reference string `json:"txId"`
	Network   string `json:"network,omitempty"`
}

// SettlementFailure records the step at which a confirm stopped after payment
// was captured.
type SettlementFailure struct {
	Step     string    `json:"step"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

// Quote is a rate quote attached to QUOTE orders.
type Quote struct {
	Rate         decimal.Decimal `json:"rate"`
	CryptoAmount decimal.Decimal `json:"cryptoAmount"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

// Order is owned by the order orchestrator. CUSTOM_SELL orders reference a
// hold by id; the hold itself belongs to the reservation manager.
type Order struct {
	ID             string             `json:"id"`
	Kind           OrderKind          `json:"type"`
	Status         OrderStatus        `json:"status"`
	Token          TokenSnapshot      `json:"token"`
	TokenID        string             `json:"tokenId,omitempty"`
	AmountCrypto   decimal.Decimal    `json:"amountCrypto"`
	PriceFiat      decimal.Decimal    `json:"priceFiat"`
	FiatCurrency   string             `json:"fiatCurrency"`
	TotalFiat      decimal.Decimal    `json:"totalFiat"`
	Method         PaymentMethod      `json:"method"`
	DestAddress    string             `json:"destAddress"`
	HoldID         string             `json:"holdId,omitempty"`
	Payment        PaymentState       `json:"payment"`
	Transfer       *Transfer          `json:"tx,omitempty"`
	HoldCommitted  bool               `json:"holdCommitted"`
	Settlement     *SettlementFailure `json:"settlement,omitempty"`
	CryptoCurrency string             `json:"cryptoCurrency,omitempty"`
	Network        string             `json:"network,omitempty"`
	FiatAmount     decimal.Decimal    `json:"fiatAmount"`
	Quote          *Quote             `json:"quote,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// SettlementStuck reports whether a previous confirm failed after capture.
func (o Order) SettlementStuck() bool {
	return o.Settlement != nil
}
