// Package relay drains the outbox into Kafka.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/outbox"
)

type Source interface {
	Pending(limit int) ([]outbox.Entry, error)
	Ack(seq uint64) error
	MarkFailed(seq uint64) (uint32, error)
}

type Sink interface {
	Send(ctx context.Context, key, value []byte) error
}

type Relay struct {
	source   Source
	sink     Sink
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

func New(source Source, sink Sink, interval time.Duration, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{source: source, sink: sink, interval: interval, batch: 100, logger: logger}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("outbox relay pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sends pending entries in order and stops at the first failure so
// later events of the same order are not delivered ahead of it.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.source.Pending(r.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range entries {
		payload, err := json.Marshal(e.Event)
		if err != nil {
			return sent, err
		}
		if err := r.sink.Send(ctx, []byte(e.Event.OrderID), payload); err != nil {
			attempts, merr := r.source.MarkFailed(e.Seq)
			r.logger.Warn("order event not delivered",
				zap.Uint64("seq", e.Seq),
				zap.String("order_id", e.Event.OrderID),
				zap.Uint32("attempts", attempts),
				zap.Error(err),
			)
			return sent, errors.Join(err, merr)
		}
		if err := r.source.Ack(e.Seq); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
