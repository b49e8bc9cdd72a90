// Package wallet sends purchased tokens to the buyer's address.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/httpclient"
)

type transferRequest struct {
	OrderID      string          `json:"orderId"`
	To           string          `json:"to"`
	AmountCrypto decimal.Decimal `json:"amountCrypto"`
	TokenID      string          `json:"tokenId"`
	Symbol       string          `json:"symbol"`
	Network      string          `json:"network"`
}

type transferResponse struct {
	TxID    string `json:"txId"`
	Network string `json:"network"`
}

// Client calls the wallet service. The order id doubles as the idempotency
// key so a retried confirm cannot send twice.
type Client struct {
	http *httpclient.Client
}

var _ app.Wallet = (*Client)(nil)

func NewClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

func (c *Client) Transfer(ctx context.Context, req app.TransferRequest) (domain.Transfer, error) {
	var resp transferResponse
	err := c.http.PostJSON(ctx, "/transfer", "transfer-"+req.OrderID, transferRequest{
		OrderID:      req.OrderID,
		To:           req.To,
		AmountCrypto: req.Amount,
		TokenID:      req.TokenID,
		Symbol:       req.Symbol,
		Network:      req.Network,
	}, &resp)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("wallet transfer: %w", err)
	}
	if resp.TxID == "" {
		return domain.Transfer{}, errors.New("wallet transfer: empty txId")
	}
	return domain.Transfer{Reference: resp.TxID, Network: resp.Network}, nil
}

// Mock pretends every transfer lands on "mocknet".
type Mock struct{}

var _ app.Wallet = Mock{}

func (Mock) Transfer(context.Context, app.TransferRequest) (domain.Transfer, error) {
	return domain.Transfer{Reference: uuid.NewString()[:8], Network: "mocknet"}, nil
}
