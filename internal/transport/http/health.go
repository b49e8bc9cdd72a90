package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth reports liveness and whether storage answers a ping.
func HandleHealth(db Pinger, logger *zap.Logger) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			writeError(w, stdhttp.StatusServiceUnavailable, codeUnavailable, "storage unavailable")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
