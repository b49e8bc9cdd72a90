package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

const (
	codeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
	codeNotFound              = "NOT_FOUND"
	codeInvalidRequestBody    = "INVALID_REQUEST_BODY"
	codeMissingFields         = "MISSING_FIELDS"
	codeInvalidMethod         = "INVALID_METHOD"
	codeInvalidID             = "INVALID_ID"
	codeTokenNotFound         = "TOKEN_NOT_FOUND"
	codeHoldNotFound          = "HOLD_NOT_FOUND"
	codeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	codeTokenMismatch         = "TOKEN_MISMATCH"
	codeAlreadyFinal          = "ALREADY_FINAL"
	codeOrderConflict         = "ORDER_CONFLICT"
	codeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	codeUpstreamError         = "UPSTREAM_ERROR"
	codeSettlementIncomplete  = "SETTLEMENT_INCOMPLETE"
	codeUnavailable           = "UNAVAILABLE"
	codeInternalError         = "INTERNAL_ERROR"
)

type errorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	Available *decimal.Decimal `json:"available,omitempty"`
	Step      string           `json:"step,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"INTERNAL_ERROR"}`))
		return
	}
	_, _ = w.Write(payload)
}

// classifyError maps a service error to its HTTP status and body. Settlement
// failures are checked first: they wrap the cause, which may itself be a
// not-found or upstream error.
func classifyError(err error) (int, errorResponse) {
	var insufficient *domain.InsufficientInventoryError
	switch {
	case errors.Is(err, domain.ErrSettlementIncomplete):
		return http.StatusBadGateway, errorResponse{
			Error: "settlement incomplete, manual reconciliation required",
			Code:  codeSettlementIncomplete,
			Step:  domain.FailedStep(err),
		}
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, errorResponse{
			Error: "upstream service failure",
			Code:  codeUpstreamError,
			Step:  domain.FailedStep(err),
		}
	case errors.As(err, &insufficient):
		available := insufficient.Available
		return http.StatusConflict, errorResponse{
			Error:     domain.ErrInsufficientInventory.Error(),
			Code:      codeInsufficientInventory,
			Available: &available,
		}
	case errors.Is(err, domain.ErrMissingFields), errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeMissingFields}
	case errors.Is(err, domain.ErrInvalidMethod):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeInvalidMethod}
	case errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeInvalidID}
	case errors.Is(err, domain.ErrTokenMismatch):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: codeTokenMismatch}
	case errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error(), Code: codeTokenNotFound}
	case errors.Is(err, domain.ErrHoldNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error(), Code: codeHoldNotFound}
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error(), Code: codeNotFound}
	case errors.Is(err, domain.ErrAlreadyFinal):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: codeAlreadyFinal}
	case errors.Is(err, domain.ErrOrderConflict):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: codeOrderConflict}
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: codeIdempotencyInProgress}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: codeInternalError}
	}
}

func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, resp := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", resp.Code), zap.Error(err))
	}
	writeErrorResponse(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
