package http

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const paymentSucceeded = "payment_intent.succeeded"

type paymentEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// HandlePaymentWebhook accepts payment provider events. Successful payments
// are logged; confirmation stays an explicit call to the confirm endpoint.
// Signatures are not verified.
func HandlePaymentWebhook(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		var event paymentEvent
		if err := json.Unmarshal(body, &event); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		if event.Type == paymentSucceeded {
			logger.Info("payment succeeded",
				zap.String("order_id", event.Data.Object.Metadata["orderId"]),
				zap.String("payment_intent", event.Data.Object.ID),
			)
		}
		w.WriteHeader(http.StatusOK)
	}
}
