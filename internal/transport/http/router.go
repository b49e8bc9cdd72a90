package http

import (
	"net/http"

	"go.uber.org/zap"
)

// Services groups what the router dispatches to.
type Services struct {
	Reservations Reservations
	Orders       OrderService
	Storage      Pinger
}

// NewRouter wires every route and wraps the mux in tracing and request logging.
func NewRouter(svc Services, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/health", HandleHealth(svc.Storage, logger))
	mux.Handle("/catalog/internal/reserve", HandleReserve(svc.Reservations, logger))
	mux.Handle("/catalog/internal/commit", HandleCommit(svc.Reservations, logger))
	mux.Handle("/catalog/internal/release", HandleRelease(svc.Reservations, logger))
	mux.Handle("/sell-orders", HandleCreateSellOrder(svc.Orders, logger))
	mux.Handle("/sell-orders/", HandleSellOrderAction(svc.Orders, logger))
	mux.Handle("/orders", HandleCreateQuoteOrder(svc.Orders, logger))
	mux.Handle("/orders/", HandleGetOrder(svc.Orders, logger))
	mux.Handle("/webhook/payments", HandlePaymentWebhook(logger))
	mux.Handle("/", NotFoundHandler())

	return RequestLogger(Trace(mux), logger)
}
