package http

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeReservations struct {
	err        error
	gotToken   string
	gotHold    string
	gotAmount  decimal.Decimal
	reservedAt time.Time
}

func (f *fakeReservations) Reserve(_ context.Context, tokenID string, amount decimal.Decimal) (domain.Reservation, error) {
	f.gotToken, f.gotAmount = tokenID, amount
	if f.err != nil {
		return domain.Reservation{}, f.err
	}
	tok := domain.Token{
		ID:           tokenID,
		Symbol:       "USDT",
		Network:      "polygon",
		PriceFiat:    decimal.RequireFromString("0.92"),
		FiatCurrency: "EUR",
		Inventory:    decimal.NewFromInt(100),
		Reserved:     amount,
		Enabled:      true,
	}
	return domain.Reservation{
		Hold:  domain.Hold{ID: "hold-1", TokenID: tokenID, Amount: amount, CreatedAt: testNow, ExpiresAt: testNow.Add(10 * time.Minute)},
		Token: tok,
	}, nil
}

func (f *fakeReservations) Commit(_ context.Context, tokenID, holdID string) (domain.Token, error) {
	f.gotToken, f.gotHold = tokenID, holdID
	return domain.Token{ID: tokenID}, f.err
}

func (f *fakeReservations) Release(_ context.Context, tokenID, holdID string) (domain.Token, error) {
	f.gotToken, f.gotHold = tokenID, holdID
	return domain.Token{ID: tokenID}, f.err
}

type fakeOrders struct {
	err       error
	order     domain.Order
	gotSell   app.CreateSellOrderInput
	gotQuote  app.CreateQuoteOrderInput
	gotID     string
	gotAction string
}

func (f *fakeOrders) CreateSellOrder(_ context.Context, in app.CreateSellOrderInput) (domain.Order, error) {
	f.gotSell = in
	return f.order, f.err
}

func (f *fakeOrders) ConfirmSellOrder(_ context.Context, id string) (domain.Order, error) {
	f.gotID, f.gotAction = id, "confirm"
	return f.order, f.err
}

func (f *fakeOrders) CancelSellOrder(_ context.Context, id string) (domain.Order, error) {
	f.gotID, f.gotAction = id, "cancel"
	return f.order, f.err
}

func (f *fakeOrders) CreateQuoteOrder(_ context.Context, in app.CreateQuoteOrderInput) (domain.Order, error) {
	f.gotQuote = in
	return f.order, f.err
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (domain.Order, error) {
	f.gotID = id
	return f.order, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

var errBoom = errors.New("boom")
