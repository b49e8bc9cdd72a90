package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

// OrderService is the order surface of the orchestrator.
type OrderService interface {
	CreateSellOrder(ctx context.Context, in app.CreateSellOrderInput) (domain.Order, error)
	ConfirmSellOrder(ctx context.Context, orderID string) (domain.Order, error)
	CancelSellOrder(ctx context.Context, orderID string) (domain.Order, error)
	CreateQuoteOrder(ctx context.Context, in app.CreateQuoteOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type createSellOrderRequest struct {
	TokenID      string               `json:"tokenId"`
	AmountCrypto decimal.Decimal      `json:"amountCrypto"`
	Method       domain.PaymentMethod `json:"method"`
	DestAddress  string               `json:"destAddress"`
}

// HandleCreateSellOrder returns the handler for POST /sell-orders. Method
// defaults to CARD. Retrying with the same Idempotency-Key returns the order
// created by the first request.
func HandleCreateSellOrder(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createSellOrderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Method == "" {
			req.Method = domain.PaymentMethodCard
		}

		order, err := svc.CreateSellOrder(r.Context(), app.CreateSellOrderInput{
			IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
			TokenID:        req.TokenID,
			AmountCrypto:   req.AmountCrypto,
			Method:         domain.PaymentMethod(strings.ToUpper(string(req.Method))),
			DestAddress:    req.DestAddress,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	}
}

// HandleSellOrderAction returns the handler for
// POST /sell-orders/{id}/confirm and POST /sell-orders/{id}/cancel.
func HandleSellOrderAction(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, action, ok := parseSellOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var (
			order domain.Order
			err   error
		)
		switch action {
		case "confirm":
			order, err = svc.ConfirmSellOrder(r.Context(), orderID)
		case "cancel":
			order, err = svc.CancelSellOrder(r.Context(), orderID)
		}
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

func parseSellOrderPath(path string) (string, string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "sell-orders" || parts[1] == "" {
		return "", "", false
	}
	if parts[2] != "confirm" && parts[2] != "cancel" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type createQuoteOrderRequest struct {
	FiatCurrency   string               `json:"fiatCurrency"`
	CryptoCurrency string               `json:"cryptoCurrency"`
	FiatAmount     decimal.Decimal      `json:"fiatAmount"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	DestAddress    string               `json:"destAddress"`
	Network        string               `json:"network"`
}

// HandleCreateQuoteOrder returns the handler for POST /orders.
func HandleCreateQuoteOrder(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createQuoteOrderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		order, err := svc.CreateQuoteOrder(r.Context(), app.CreateQuoteOrderInput{
			FiatCurrency:   req.FiatCurrency,
			CryptoCurrency: req.CryptoCurrency,
			FiatAmount:     req.FiatAmount,
			Method:         domain.PaymentMethod(strings.ToUpper(string(req.PaymentMethod))),
			DestAddress:    req.DestAddress,
			Network:        req.Network,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	}
}

// HandleGetOrder returns the handler for GET /orders/{id}.
func HandleGetOrder(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "orders" || parts[1] == "" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		order, err := svc.GetOrder(r.Context(), parts[1])
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}
