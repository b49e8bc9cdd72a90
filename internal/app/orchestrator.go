package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// OrderRepository persists orders.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	// UpdateOrder replaces the stored order if its status still equals
	// expected, otherwise it returns domain.ErrOrderConflict.
	UpdateOrder(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
}

// Reservations is the part of ReservationManager the orchestrator drives.
type Reservations interface {
	Reserve(ctx context.Context, tokenID string, amount decimal.Decimal) (domain.Reservation, error)
	Commit(ctx context.Context, tokenID, holdID string) (domain.Token, error)
	Release(ctx context.Context, tokenID, holdID string) (domain.Token, error)
}

// BankAccount is where BANK orders are told to wire funds.
type BankAccount struct {
	IBAN string
	BIC  string
}

var defaultBankAccount = BankAccount{IBAN: "DE89370400440532013000", BIC: "COBADEFFXXX"}

// OrderOrchestrator runs the sell-order lifecycle across reservations,
// payment, and wallet. It never holds a token's exclusive section while
// waiting on a collaborator.
type OrderOrchestrator struct {
	orders       OrderRepository
	reservations Reservations
	idempotency  *IdempotencyStore
	payment      PaymentGateway
	wallet       Wallet
	quotes       QuoteSource
	events       EventPublisher
	clock        clock.Clock
	logger       *zap.Logger
	bank         BankAccount
	locks        *keyLocks
}

// NewOrderOrchestrator wires the order flows to their reservations, keys and
// external collaborators.
func NewOrderOrchestrator(
	orders OrderRepository,
	reservations Reservations,
	idempotency *IdempotencyStore,
	collab Collaborators,
	clk clock.Clock,
	opts ...OrchestratorOption,
) *OrderOrchestrator {
	o := &OrderOrchestrator{
		orders:       orders,
		reservations: reservations,
		idempotency:  idempotency,
		payment:      collab.Payment,
		wallet:       collab.Wallet,
		quotes:       collab.Quotes,
		events:       collab.Events,
		clock:        clk,
		logger:       zap.NewNop(),
		bank:         defaultBankAccount,
		locks:        newKeyLocks(),
	}
	if o.events == nil {
		o.events = nopPublisher{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OrchestratorOption configures an OrderOrchestrator.
type OrchestratorOption func(*OrderOrchestrator)

// WithBankAccount overrides the account printed on BANK instructions.
func WithBankAccount(acct BankAccount) OrchestratorOption {
	return func(o *OrderOrchestrator) {
		if acct.IBAN != "" {
			o.bank = acct
		}
	}
}

func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *OrderOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type CreateSellOrderInput struct {
	IdempotencyKey string
	TokenID        string
	AmountCrypto   decimal.Decimal
	Method         domain.PaymentMethod
	DestAddress    string
}

// CreateSellOrder reserves inventory and opens the payment for a new order.
// With an idempotency key, retries return the first order unchanged.
func (o *OrderOrchestrator) CreateSellOrder(ctx context.Context, in CreateSellOrderInput) (domain.Order, error) {
	if in.TokenID == "" || in.DestAddress == "" || in.Method == "" || !in.AmountCrypto.IsPositive() {
		return domain.Order{}, domain.ErrMissingFields
	}
	if !in.Method.Valid() {
		return domain.Order{}, domain.ErrInvalidMethod
	}

	ctx, span := tracer.Start(ctx, "orders.create_sell", trace.WithAttributes(
		attribute.String("token.id", in.TokenID),
		attribute.String("payment.method", string(in.Method)),
	))
	var err error
	defer func() { endSpan(span, err) }()

	raw, err := o.idempotency.Execute(ctx, in.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
		order, err := o.createSellOrder(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	if err = json.Unmarshal(raw, &order); err != nil {
		err = fmt.Errorf("decode stored order: %w", err)
		return domain.Order{}, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	return order, nil
}

func (o *OrderOrchestrator) createSellOrder(ctx context.Context, in CreateSellOrderInput) (domain.Order, error) {
	res, err := o.reservations.Reserve(ctx, in.TokenID, in.AmountCrypto)
	if err != nil {
		return domain.Order{}, err
	}

	now := o.clock.Now()
	id := newID()
	total := domain.TotalFiat(res.Token.PriceFiat, in.AmountCrypto, res.Token.FiatCurrency)
	order := domain.Order{
		ID:           id,
		Kind:         domain.OrderKindCustomSell,
		Status:       domain.OrderStatusPendingPayment,
		Token:        res.Token.Snapshot(),
		TokenID:      in.TokenID,
		AmountCrypto: in.AmountCrypto,
		PriceFiat:    res.Token.PriceFiat,
		FiatCurrency: res.Token.FiatCurrency,
		TotalFiat:    total,
		Method:       in.Method,
		DestAddress:  in.DestAddress,
		HoldID:       res.Hold.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if in.Method == domain.PaymentMethodBank {
		order.Payment = domain.PaymentState{
			Status: domain.PaymentStatusPending,
			Method: domain.PaymentMethodBank,
			Amount: total,
			Instructions: &domain.BankInstructions{
				IBAN:      o.bank.IBAN,
				BIC:       o.bank.BIC,
				Reference: bankReference(order),
			},
		}
	} else {
		auth, err := o.payment.Authorize(ctx, AuthorizeRequest{
			OrderID:        id,
			Amount:         total,
			Currency:       res.Token.FiatCurrency,
			IdempotencyKey: in.IdempotencyKey,
		})
		if err != nil {
			o.releaseHold(ctx, order, "authorization failed")
			return domain.Order{}, domain.UpstreamFailure(domain.StepAuthorize, err)
		}
		order.Payment = domain.PaymentState{
			Status:    domain.PaymentStatusAuthorized,
			Method:    domain.PaymentMethodCard,
			Provider:  auth.Provider,
			Reference: auth.Reference,
			Amount:    total,
		}
	}
	order.Status = domain.OrderStatusAuthorized

	if err := o.orders.CreateOrder(ctx, order); err != nil {
		o.releaseHold(ctx, order, "order not persisted")
		return domain.Order{}, err
	}

	o.logger.Info("sell order created",
		zap.String("order_id", order.ID),
		zap.String("token_id", order.TokenID),
		zap.String("amount", order.AmountCrypto.String()),
		zap.String("total_fiat", order.TotalFiat.String()),
		zap.String("method", string(order.Method)),
	)
	o.publish(ctx, order, domain.EventOrderCreated, "")
	return order, nil
}

// releaseHold gives back the reservation of an order that never got stored.
func (o *OrderOrchestrator) releaseHold(ctx context.Context, order domain.Order, reason string) {
	if _, err := o.reservations.Release(context.WithoutCancel(ctx), order.TokenID, order.HoldID); err != nil {
		o.logger.Error("failed to release hold",
			zap.String("hold_id", order.HoldID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

// ConfirmSellOrder captures payment, consumes the hold, and transfers the
// tokens. Steps already done by an earlier attempt are not repeated. A failure
// after capture leaves the order flagged for manual reconciliation and every
// later confirm reports the same failure.
func (o *OrderOrchestrator) ConfirmSellOrder(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.confirm_sell", trace.WithAttributes(attribute.String("order.id", orderID)))
	var err error
	defer func() { endSpan(span, err) }()

	unlock, err := o.locks.Lock(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	order, err := o.getSellOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.Final() {
		err = domain.ErrAlreadyFinal
		return order, err
	}
	if order.SettlementStuck() {
		err = domain.SettlementIncomplete(order.Settlement.Step, errors.New(order.Settlement.Reason))
		return order, err
	}

	if order.Payment.Status != domain.PaymentStatusCaptured {
		var cerr error
		if order.Method == domain.PaymentMethodBank {
			_, cerr = o.payment.ConfirmBank(ctx, bankReference(order))
		} else {
			_, cerr = o.payment.Capture(ctx, order.Payment.Reference)
		}
		if cerr != nil {
			err = domain.UpstreamFailure(domain.StepCapture, cerr)
			return order, err
		}
		prev := order.Status
		order.Payment.Status = domain.PaymentStatusCaptured
		order.Status = domain.OrderStatusCaptured
		if err = o.save(ctx, &order, prev); err != nil {
			return order, err
		}
	}

	if !order.HoldCommitted {
		if _, cerr := o.reservations.Commit(ctx, order.TokenID, order.HoldID); cerr != nil {
			err = o.markStuck(ctx, &order, domain.StepCommit, cerr)
			return order, err
		}
		order.HoldCommitted = true
		if err = o.save(ctx, &order, order.Status); err != nil {
			return order, err
		}
	}

	tx, terr := o.wallet.Transfer(ctx, TransferRequest{
		OrderID: order.ID,
		TokenID: order.TokenID,
		Symbol:  order.Token.Symbol,
		Network: order.Token.Network,
		To:      order.DestAddress,
		Amount:  order.AmountCrypto,
	})
	if terr != nil {
		err = o.markStuck(ctx, &order, domain.StepTransfer, terr)
		return order, err
	}

	order.Transfer = &tx
	order.Status = domain.OrderStatusCompleted
	if err = o.save(ctx, &order, domain.OrderStatusCaptured); err != nil {
		return order, err
	}

	o.logger.Info("sell order completed",
		zap.String("order_id", order.ID),
		zap.String("tx_id", tx.Reference),
	)
	o.publish(ctx, order, domain.EventOrderCompleted, "")
	return order, nil
}

// markStuck records a post-capture failure on the order and returns the error
// reported to the caller.
func (o *OrderOrchestrator) markStuck(ctx context.Context, order *domain.Order, step string, cause error) error {
	order.Settlement = &domain.SettlementFailure{
		Step:     step,
		Reason:   cause.Error(),
		FailedAt: o.clock.Now(),
	}
	o.logger.Error("settlement incomplete",
		zap.String("order_id", order.ID),
		zap.String("step", step),
		zap.Error(cause),
	)
	if err := o.save(context.WithoutCancel(ctx), order, order.Status); err != nil {
		o.logger.Error("failed to record settlement failure",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	o.publish(ctx, *order, domain.EventOrderSettlementIncomplete, step)
	return domain.SettlementIncomplete(step, cause)
}

// CancelSellOrder releases the hold of an order that has not completed.
func (o *OrderOrchestrator) CancelSellOrder(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.cancel_sell", trace.WithAttributes(attribute.String("order.id", orderID)))
	var err error
	defer func() { endSpan(span, err) }()

	unlock, err := o.locks.Lock(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	order, err := o.getSellOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.Final() {
		err = domain.ErrAlreadyFinal
		return order, err
	}
	// Money or inventory already moved; only reconciliation can undo this order.
	if order.SettlementStuck() {
		err = domain.SettlementIncomplete(order.Settlement.Step, errors.New(order.Settlement.Reason))
		return order, err
	}
	if order.HoldCommitted {
		err = domain.SettlementIncomplete(domain.StepCommit, errors.New("hold already committed"))
		return order, err
	}

	if _, rerr := o.reservations.Release(ctx, order.TokenID, order.HoldID); rerr != nil {
		if !errors.Is(rerr, domain.ErrHoldNotFound) {
			err = rerr
			return order, err
		}
		o.logger.Warn("hold already released", zap.String("order_id", order.ID), zap.String("hold_id", order.HoldID))
	}

	prev := order.Status
	order.Status = domain.OrderStatusCancelled
	if err = o.save(ctx, &order, prev); err != nil {
		return order, err
	}

	o.logger.Info("sell order cancelled", zap.String("order_id", order.ID))
	o.publish(ctx, order, domain.EventOrderCancelled, "")
	return order, nil
}

// GetOrder returns an order of either kind.
func (o *OrderOrchestrator) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return o.orders.GetOrder(ctx, orderID)
}

type CreateQuoteOrderInput struct {
	FiatCurrency   string
	CryptoCurrency string
	FiatAmount     decimal.Decimal
	Method         domain.PaymentMethod
	DestAddress    string
	Network        string
}

// CreateQuoteOrder stores a priced order that never touches inventory.
func (o *OrderOrchestrator) CreateQuoteOrder(ctx context.Context, in CreateQuoteOrderInput) (domain.Order, error) {
	if in.FiatCurrency == "" || in.CryptoCurrency == "" || !in.FiatAmount.IsPositive() {
		return domain.Order{}, domain.ErrMissingFields
	}
	if in.Method != "" && !in.Method.Valid() {
		return domain.Order{}, domain.ErrInvalidMethod
	}

	ctx, span := tracer.Start(ctx, "orders.create_quote")
	var err error
	defer func() { endSpan(span, err) }()

	quote, qerr := o.quotes.Quote(ctx, QuoteRequest{
		FiatAmount:     in.FiatAmount,
		FiatCurrency:   in.FiatCurrency,
		CryptoCurrency: in.CryptoCurrency,
	})
	if qerr != nil {
		err = domain.UpstreamFailure(domain.StepQuote, qerr)
		return domain.Order{}, err
	}

	now := o.clock.Now()
	order := domain.Order{
		ID:             newID(),
		Kind:           domain.OrderKindQuote,
		Status:         domain.OrderStatusCreated,
		FiatCurrency:   in.FiatCurrency,
		CryptoCurrency: in.CryptoCurrency,
		FiatAmount:     in.FiatAmount,
		Method:         in.Method,
		DestAddress:    in.DestAddress,
		Network:        in.Network,
		Quote:          &quote,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = o.orders.CreateOrder(ctx, order); err != nil {
		return domain.Order{}, err
	}
	o.publish(ctx, order, domain.EventOrderCreated, "")
	return order, nil
}

func bankReference(order domain.Order) string {
	return "ORD-" + order.ID
}

func (o *OrderOrchestrator) getSellOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Kind != domain.OrderKindCustomSell {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (o *OrderOrchestrator) save(ctx context.Context, order *domain.Order, expected domain.OrderStatus) error {
	order.UpdatedAt = o.clock.Now()
	return o.orders.UpdateOrder(ctx, *order, expected)
}

func (o *OrderOrchestrator) publish(ctx context.Context, order domain.Order, typ domain.OrderEventType, step string) {
	event := domain.OrderEvent{
		Type:       typ,
		OrderID:    order.ID,
		Status:     order.Status,
		Step:       step,
		OccurredAt: o.clock.Now(),
	}
	if err := o.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn("failed to publish order event",
			zap.String("order_id", order.ID),
			zap.String("event", string(typ)),
			zap.Error(err),
		)
	}
}
