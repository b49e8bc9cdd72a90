// Package payment provides the two payment capabilities the orchestrator can
// be built with: an HTTP payments service and a pass-through mock.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/httpclient"
)

const ProviderName = "payments"

type authorizeRequest struct {
	OrderID     string          `json:"orderId"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amountMinor"`
	Currency    string          `json:"currency"`
	CaptureMode string          `json:"captureMethod"`
}

type paymentResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Gateway authorizes and captures through the payments service. Cards are
// authorized with manual capture; capture happens on confirm.
type Gateway struct {
	client *httpclient.Client
}

var _ app.PaymentGateway = (*Gateway)(nil)

func NewGateway(client *httpclient.Client) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) Authorize(ctx context.Context, req app.AuthorizeRequest) (app.Authorization, error) {
	var resp paymentResponse
	err := g.client.PostJSON(ctx, "/authorize", req.IdempotencyKey, authorizeRequest{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		AmountMinor: domain.MinorUnits(req.Amount, req.Currency),
		Currency:    req.Currency,
		CaptureMode: "manual",
	}, &resp)
	if err != nil {
		return app.Authorization{}, fmt.Errorf("authorize payment: %w", err)
	}
	if domain.PaymentStatus(resp.Status) != domain.PaymentStatusAuthorized {
		return app.Authorization{}, fmt.Errorf("authorize payment: unexpected status %q", resp.Status)
	}
	ref := resp.Reference
	if ref == "" {
		// The payments service keys authorizations by order id.
		ref = req.OrderID
	}
	return app.Authorization{Provider: ProviderName, Reference: ref}, nil
}

func (g *Gateway) Capture(ctx context.Context, reference string) (domain.PaymentStatus, error) {
	return g.settle(ctx, "/capture", reference)
}

func (g *Gateway) ConfirmBank(ctx context.Context, reference string) (domain.PaymentStatus, error) {
	return g.settle(ctx, "/bank/confirm", reference)
}

func (g *Gateway) settle(ctx context.Context, path, reference string) (domain.PaymentStatus, error) {
	var resp paymentResponse
	body := map[string]string{"orderId": reference, "reference": reference}
	if err := g.client.PostJSON(ctx, path, "capture-"+reference, body, &resp); err != nil {
		return "", fmt.Errorf("settle payment %s: %w", reference, err)
	}
	status := domain.PaymentStatus(resp.Status)
	if status != domain.PaymentStatusCaptured {
		return status, fmt.Errorf("settle payment %s: unexpected status %q", reference, resp.Status)
	}
	return status, nil
}

// Mock approves everything without calling out. It is used when no payments
// service is configured.
type Mock struct{}

var _ app.PaymentGateway = Mock{}

func (Mock) Authorize(_ context.Context, req app.AuthorizeRequest) (app.Authorization, error) {
	return app.Authorization{Provider: "mock", Reference: "mock_" + req.OrderID}, nil
}

func (Mock) Capture(context.Context, string) (domain.PaymentStatus, error) {
	return domain.PaymentStatusCaptured, nil
}

func (Mock) ConfirmBank(context.Context, string) (domain.PaymentStatus, error) {
	return domain.PaymentStatusCaptured, nil
}
