package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

func TestHandleReserve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success",
			body:           `{"tokenId":"tok-1","amountCrypto":30}`,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"holdId":"hold-1"`,
		},
		{
			name:           "string amount",
			body:           `{"tokenId":"tok-1","amountCrypto":"0.5"}`,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"fiatCurrency":"EUR"`,
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "invalid json",
			body:           `{"tokenId":`,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: codeInvalidRequestBody,
		},
		{
			name:           "missing amount",
			body:           `{"tokenId":"tok-1"}`,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: codeMissingFields,
		},
		{
			name:           "token not found",
			body:           `{"tokenId":"tok-1","amountCrypto":1}`,
			serviceErr:     domain.ErrTokenNotFound,
			expectedStatus: http.StatusNotFound,
			expectedSubstr: codeTokenNotFound,
		},
		{
			name:           "insufficient inventory",
			body:           `{"tokenId":"tok-1","amountCrypto":80}`,
			serviceErr:     &domain.InsufficientInventoryError{Available: decimal.NewFromInt(70)},
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"available":"70"`,
		},
		{
			name:           "storage failure",
			body:           `{"tokenId":"tok-1","amountCrypto":1}`,
			serviceErr:     errBoom,
			expectedStatus: http.StatusInternalServerError,
			expectedSubstr: codeInternalError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			method := tt.method
			if method == "" {
				method = http.MethodPost
			}
			svc := &fakeReservations{err: tt.serviceErr}
			req := httptest.NewRequest(method, "/catalog/internal/reserve", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			HandleReserve(svc, zap.NewNop()).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected body to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

func TestHandleCommitAndRelease(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		handler        func(Reservations) http.HandlerFunc
		body           string
		serviceErr     error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "commit ok",
			handler:        func(s Reservations) http.HandlerFunc { return HandleCommit(s, zap.NewNop()) },
			body:           `{"tokenId":"tok-1","holdId":"hold-1"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "commit mismatch",
			handler:        func(s Reservations) http.HandlerFunc { return HandleCommit(s, zap.NewNop()) },
			body:           `{"tokenId":"tok-2","holdId":"hold-1"}`,
			serviceErr:     domain.ErrTokenMismatch,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeTokenMismatch,
		},
		{
			name:           "release hold not found",
			handler:        func(s Reservations) http.HandlerFunc { return HandleRelease(s, zap.NewNop()) },
			body:           `{"tokenId":"tok-1","holdId":"gone"}`,
			serviceErr:     domain.ErrHoldNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeHoldNotFound,
		},
		{
			name:           "release missing hold id",
			handler:        func(s Reservations) http.HandlerFunc { return HandleRelease(s, zap.NewNop()) },
			body:           `{"tokenId":"tok-1"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeMissingFields,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeReservations{err: tt.serviceErr}
			req := httptest.NewRequest(http.MethodPost, "/catalog/internal/x", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			tt.handler(svc).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedCode == "" {
				if rec.Body.String() != "{\"ok\":true}\n" {
					t.Fatalf("expected ok body, got %q", rec.Body.String())
				}
				return
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Code != tt.expectedCode {
				t.Fatalf("expected code %s, got %s", tt.expectedCode, resp.Code)
			}
		})
	}
}
