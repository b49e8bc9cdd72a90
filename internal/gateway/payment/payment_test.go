package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/httpclient"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGateway(httpclient.New(srv.URL, httpclient.WithRetry(1, time.Millisecond)))
}

func TestGateway_Authorize(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/authorize", r.URL.Path)
		assert.Equal(t, "abc", r.Header.Get("Idempotency-Key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "o1", body["orderId"])
		assert.Equal(t, "9.2", body["amount"])
		assert.EqualValues(t, 920, body["amountMinor"])
		assert.Equal(t, "manual", body["captureMethod"])
		_, _ = w.Write([]byte(`{"status":"AUTHORIZED"}`))
	})

	auth, err := g.Authorize(context.Background(), app.AuthorizeRequest{
		OrderID:        "o1",
		Amount:         decimal.RequireFromString("9.2"),
		Currency:       "EUR",
		IdempotencyKey: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, auth.Provider)
	assert.Equal(t, "o1", auth.Reference)
}

func TestGateway_AuthorizeDeclined(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"card_declined"}`, http.StatusPaymentRequired)
	})
	_, err := g.Authorize(context.Background(), app.AuthorizeRequest{OrderID: "o1", Amount: decimal.NewFromInt(1), Currency: "EUR"})
	require.Error(t, err)
}

func TestGateway_CaptureAndBankConfirm(t *testing.T) {
	var paths []string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "capture-ref-1", r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"status":"CAPTURED"}`))
	})

	status, err := g.Capture(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, status)

	status, err = g.ConfirmBank(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, status)
	assert.Equal(t, []string{"/capture", "/bank/confirm"}, paths)
}

func TestGateway_CaptureNotSettled(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"AUTHORIZED"}`))
	})
	_, err := g.Capture(context.Background(), "ref-1")
	require.Error(t, err)
}

func TestMock(t *testing.T) {
	auth, err := Mock{}.Authorize(context.Background(), app.AuthorizeRequest{OrderID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, "mock", auth.Provider)
	assert.Equal(t, "mock_o1", auth.Reference)

	status, err := Mock{}.Capture(context.Background(), auth.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, status)
}
