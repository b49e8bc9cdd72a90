package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

type IdempotencyRepository struct {
	conn
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{conn{pool: pool}}
}

// ClaimKey inserts a pending record for key, or takes over a pending record
// claimed at or before staleBefore. Otherwise the existing record is returned
// with claimed=false.
func (r *IdempotencyRepository) ClaimKey(ctx context.Context, key string, now, staleBefore time.Time) (domain.IdempotencyRecord, bool, error) {
	const claim = `
INSERT INTO idempotency_keys (key, state, created_at, claimed_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (key) DO UPDATE SET claimed_at = EXCLUDED.claimed_at
WHERE idempotency_keys.state = $2 AND idempotency_keys.claimed_at <= $4
RETURNING created_at`

	rec := domain.IdempotencyRecord{Key: key, State: domain.IdempotencyPending, ClaimedAt: now}
	err := r.queryRow(ctx, claim, key, string(domain.IdempotencyPending), now, staleBefore).Scan(&rec.CreatedAt)
	switch {
	case err == nil:
		rec.CreatedAt = rec.CreatedAt.UTC()
		return rec, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.IdempotencyRecord{}, false, fmt.Errorf("claim idempotency key: %w", err)
	}

	const query = `SELECT key, state, result, created_at, claimed_at, completed_at FROM idempotency_keys WHERE key = $1`
	var state string
	err = r.queryRow(ctx, query, key).Scan(&rec.Key, &state, &rec.Result, &rec.CreatedAt, &rec.ClaimedAt, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Released between our insert and read; the caller can retry.
			return domain.IdempotencyRecord{}, false, domain.ErrIdempotencyInProgress
		}
		return domain.IdempotencyRecord{}, false, fmt.Errorf("read idempotency key: %w", err)
	}
	rec.State = domain.IdempotencyState(state)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ClaimedAt = rec.ClaimedAt.UTC()
	return rec, false, nil
}

func (r *IdempotencyRepository) CompleteKey(ctx context.Context, key string, result []byte, now time.Time) error {
	const stmt = `
UPDATE idempotency_keys
SET state = $2, result = $3, completed_at = $4
WHERE key = $1 AND state = $5`

	tag, err := r.exec(ctx, stmt, key, string(domain.IdempotencyCompleted), result, now, string(domain.IdempotencyPending))
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete idempotency key %q: no pending claim", key)
	}
	return nil
}

// ReleaseKey drops a pending claim. Completed records are never removed.
func (r *IdempotencyRepository) ReleaseKey(ctx context.Context, key string) error {
	const stmt = `DELETE FROM idempotency_keys WHERE key = $1 AND state = $2`
	if _, err := r.exec(ctx, stmt, key, string(domain.IdempotencyPending)); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
