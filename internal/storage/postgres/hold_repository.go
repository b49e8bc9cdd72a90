package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

type HoldRepository struct {
	conn
}

func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{conn{pool: pool}}
}

func (r *HoldRepository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, token_id, amount, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt,
		hold.ID,
		hold.TokenID,
		hold.Amount.String(),
		hold.CreatedAt,
		hold.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrHoldExists
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (r *HoldRepository) GetHold(ctx context.Context, id string) (domain.Hold, error) {
	const query = `SELECT id, token_id, amount::text, created_at, expires_at FROM holds WHERE id = $1`

	h, err := scanHold(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	return h, nil
}

func (r *HoldRepository) DeleteHold(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM holds WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrHoldNotFound
		}
		return fmt.Errorf("delete hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ListExpiredHolds returns up to limit holds with expires_at <= now, oldest
// first.
func (r *HoldRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	const query = `
SELECT id, token_id, amount::text, created_at, expires_at
FROM holds
WHERE expires_at <= $1
ORDER BY expires_at
LIMIT $2`

	rows, err := r.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	return holds, nil
}

func scanHold(row pgx.Row) (domain.Hold, error) {
	var h domain.Hold
	var amount string
	if err := row.Scan(&h.ID, &h.TokenID, &amount, &h.CreatedAt, &h.ExpiresAt); err != nil {
		return domain.Hold{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("parse amount: %w", err)
	}
	h.Amount = d
	h.CreatedAt = h.CreatedAt.UTC()
	h.ExpiresAt = h.ExpiresAt.UTC()
	return h, nil
}
