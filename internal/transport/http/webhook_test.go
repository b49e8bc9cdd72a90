package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandlePaymentWebhook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		body           string
		expectedStatus int
		expectedLogs   int
	}{
		{
			name:           "payment succeeded",
			method:         http.MethodPost,
			body:           `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"orderId":"order-1"}}}}`,
			expectedStatus: http.StatusOK,
			expectedLogs:   1,
		},
		{
			name:           "other event",
			method:         http.MethodPost,
			body:           `{"type":"charge.refunded"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid json",
			method:         http.MethodPost,
			body:           `{`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			req := httptest.NewRequest(tt.method, "/webhook/payments", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			HandlePaymentWebhook(zap.New(core)).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if logs.Len() != tt.expectedLogs {
				t.Fatalf("expected %d log entries, got %d", tt.expectedLogs, logs.Len())
			}
			if tt.expectedLogs > 0 && logs.All()[0].ContextMap()["order_id"] != "order-1" {
				t.Fatalf("expected order_id field, got %v", logs.All()[0].ContextMap())
			}
		})
	}
}
