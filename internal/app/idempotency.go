package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// IdempotencyRepository persists idempotency claims. ClaimKey inserts a
// pending record unless one already exists, and takes over a pending record
// claimed at or before staleBefore; claimed reports whether the caller now
// holds the key.
type IdempotencyRepository interface {
	ClaimKey(ctx context.Context, key string, now, staleBefore time.Time) (rec domain.IdempotencyRecord, claimed bool, err error)
	CompleteKey(ctx context.Context, key string, result []byte, now time.Time) error
	ReleaseKey(ctx context.Context, key string) error
}

// DefaultClaimLease bounds how long a pending claim blocks other callers. It
// outlives one create call, including its payment retries.
const DefaultClaimLease = 2 * time.Minute

// IdempotencyStore runs an operation at most once per key and replays the
// stored result to later callers. Callers racing in this process block on the
// key; a caller that finds a live claim held by another process gets
// ErrIdempotencyInProgress and may retry. A claim left pending past its lease,
// by a crash or a failed result write, is taken over by the next caller.
type IdempotencyStore struct {
	repo   IdempotencyRepository
	clock  clock.Clock
	locks  *keyLocks
	logger *zap.Logger
	lease  time.Duration
}

type IdempotencyOption func(*IdempotencyStore)

// WithClaimLease overrides DefaultClaimLease.
func WithClaimLease(d time.Duration) IdempotencyOption {
	return func(s *IdempotencyStore) {
		if d > 0 {
			s.lease = d
		}
	}
}

// NewIdempotencyStore returns a store backed by repo. A nil logger is
// replaced by a no-op logger.
func NewIdempotencyStore(repo IdempotencyRepository, clk clock.Clock, logger *zap.Logger, opts ...IdempotencyOption) *IdempotencyStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IdempotencyStore{
		repo:   repo,
		clock:  clk,
		locks:  newKeyLocks(),
		logger: logger,
		lease:  DefaultClaimLease,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute invokes op unless key already has a stored result. An empty key runs
// op directly. When op fails the claim is dropped and nothing is stored, so
// the same key can be retried. When op succeeds but its result cannot be
// stored, the error is returned and the claim is left to lapse.
func (s *IdempotencyStore) Execute(ctx context.Context, key string, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if key == "" {
		return op(ctx)
	}

	ctx, span := tracer.Start(ctx, "idempotency.execute")
	var err error
	defer func() { endSpan(span, err) }()

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	rec, claimed, err := s.repo.ClaimKey(ctx, key, now, now.Add(-s.lease))
	if err != nil {
		return nil, err
	}
	if claimed && rec.CreatedAt.Before(rec.ClaimedAt) {
		span.SetAttributes(attribute.Bool("idempotency.taken_over", true))
		s.logger.Warn("took over stale idempotency claim",
			zap.String("idempotency_key", key),
			zap.Time("first_claimed_at", rec.CreatedAt),
		)
	}
	if !claimed {
		if rec.State == domain.IdempotencyCompleted {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			s.logger.Debug("replaying stored result", zap.String("idempotency_key", key))
			return rec.Result, nil
		}
		err = domain.ErrIdempotencyInProgress
		return nil, err
	}

	result, err := op(ctx)
	if err != nil {
		if rerr := s.repo.ReleaseKey(context.WithoutCancel(ctx), key); rerr != nil {
			s.logger.Error("failed to release idempotency claim",
				zap.String("idempotency_key", key),
				zap.Error(rerr),
			)
		}
		return nil, err
	}

	if err = s.repo.CompleteKey(context.WithoutCancel(ctx), key, result, s.clock.Now()); err != nil {
		// The claim stays pending; the next caller after the lease reruns op.
		s.logger.Error("failed to store idempotent result",
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
		err = fmt.Errorf("store idempotent result: %w", err)
		return nil, err
	}
	return result, nil
}
