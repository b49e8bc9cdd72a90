// Package reaper periodically returns expired holds to available inventory.
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Reservations interface {
	ReapExpired(ctx context.Context) (int, error)
}

type Reaper struct {
	reservations Reservations
	interval     time.Duration
	logger       *zap.Logger
}

func New(reservations Reservations, interval time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{reservations: reservations, interval: interval, logger: logger}
}

// Run sweeps once immediately and then every interval until ctx is done. A
// sweep keeps calling ReapExpired until a call releases nothing.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.sweep(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("hold reaper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("hold reaper panic recovered", zap.Any("panic", p))
		}
	}()

	total := 0
	for ctx.Err() == nil {
		n, err := r.reservations.ReapExpired(ctx)
		total += n
		if err != nil {
			r.logger.Warn("reaping expired holds failed", zap.Int("reaped", total), zap.Error(err))
			return
		}
		if n == 0 {
			break
		}
	}
	if total > 0 {
		r.logger.Info("expired holds released", zap.Int("count", total))
	}
}
