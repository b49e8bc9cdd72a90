// Package quote prices fiat-to-crypto conversions for quote orders.
package quote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/httpclient"
)

// Client asks the quotes service for a rate.
type Client struct {
	http *httpclient.Client
}

var _ app.QuoteSource = (*Client)(nil)

func NewClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

func (c *Client) Quote(ctx context.Context, req app.QuoteRequest) (domain.Quote, error) {
	var q domain.Quote
	err := c.http.GetJSON(ctx, "/quote", url.Values{
		"fiatAmount":     {req.FiatAmount.String()},
		"fiatCurrency":   {req.FiatCurrency},
		"cryptoCurrency": {req.CryptoCurrency},
	}, &q)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("fetch quote: %w", err)
	}
	if !q.Rate.IsPositive() {
		return domain.Quote{}, errors.New("fetch quote: non-positive rate")
	}
	q.ExpiresAt = q.ExpiresAt.UTC()
	return q, nil
}

const (
	DefaultRate     = "1.05"
	DefaultValidity = time.Minute
	cryptoPrecision = 6
)

// Static quotes a fixed rate. It backs quote orders when no quotes service is
// configured.
type Static struct {
	rate     decimal.Decimal
	validity time.Duration
	clock    clock.Clock
}

var _ app.QuoteSource = (*Static)(nil)

func NewStatic(rate decimal.Decimal, clk clock.Clock) *Static {
	if !rate.IsPositive() {
		rate = decimal.RequireFromString(DefaultRate)
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Static{rate: rate, validity: DefaultValidity, clock: clk}
}

func (s *Static) Quote(_ context.Context, req app.QuoteRequest) (domain.Quote, error) {
	return domain.Quote{
		Rate:         s.rate,
		CryptoAmount: req.FiatAmount.DivRound(s.rate, cryptoPrecision),
		ExpiresAt:    s.clock.Now().Add(s.validity),
	}, nil
}
