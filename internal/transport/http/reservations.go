package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// Reservations is the internal catalog surface used by order services.
type Reservations interface {
	Reserve(ctx context.Context, tokenID string, amount decimal.Decimal) (domain.Reservation, error)
	Commit(ctx context.Context, tokenID, holdID string) (domain.Token, error)
	Release(ctx context.Context, tokenID, holdID string) (domain.Token, error)
}

type reserveRequest struct {
	TokenID      string           `json:"tokenId"`
	AmountCrypto *decimal.Decimal `json:"amountCrypto"`
}

type reserveResponse struct {
	HoldID       string          `json:"holdId"`
	PriceFiat    decimal.Decimal `json:"priceFiat"`
	FiatCurrency string          `json:"fiatCurrency"`
	Token        domain.Token    `json:"token"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

type holdRequest struct {
	TokenID string `json:"tokenId"`
	HoldID  string `json:"holdId"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// HandleReserve returns the handler for POST /catalog/internal/reserve.
func HandleReserve(svc Reservations, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req reserveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.TokenID == "" || req.AmountCrypto == nil {
			writeError(w, http.StatusBadRequest, codeMissingFields, "tokenId and amountCrypto are required")
			return
		}

		res, err := svc.Reserve(r.Context(), req.TokenID, *req.AmountCrypto)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reserveResponse{
			HoldID:       res.Hold.ID,
			PriceFiat:    res.Token.PriceFiat,
			FiatCurrency: res.Token.FiatCurrency,
			Token:        res.Token,
			ExpiresAt:    res.Hold.ExpiresAt,
		})
	}
}

// HandleCommit returns the handler for POST /catalog/internal/commit.
func HandleCommit(svc Reservations, logger *zap.Logger) http.HandlerFunc {
	return handleHoldTransition(svc.Commit, logger)
}

// HandleRelease returns the handler for POST /catalog/internal/release.
func HandleRelease(svc Reservations, logger *zap.Logger) http.HandlerFunc {
	return handleHoldTransition(svc.Release, logger)
}

func handleHoldTransition(apply func(ctx context.Context, tokenID, holdID string) (domain.Token, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req holdRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.TokenID == "" || req.HoldID == "" {
			writeError(w, http.StatusBadRequest, codeMissingFields, "tokenId and holdId are required")
			return
		}

		if _, err := apply(r.Context(), req.TokenID, req.HoldID); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}
