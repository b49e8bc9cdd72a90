package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// ClaimKey inserts a pending record for key, or takes over a pending record
// claimed at or before staleBefore.
func (s *Store) ClaimKey(ctx context.Context, key string, now, staleBefore time.Time) (domain.IdempotencyRecord, bool, error) {
	m := idempotencyModel{Key: key, State: string(domain.IdempotencyPending), CreatedAt: now, ClaimedAt: &now}
	res := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{"claimed_at": now}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{
				SQL:  "idempotency_keys.state = ? AND COALESCE(idempotency_keys.claimed_at, idempotency_keys.created_at) <= ?",
				Vars: []any{string(domain.IdempotencyPending), staleBefore},
			},
		}},
	}).Create(&m)
	if res.Error != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("claim idempotency key: %w", res.Error)
	}

	var existing idempotencyModel
	if err := s.conn(ctx).First(&existing, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.IdempotencyRecord{}, false, domain.ErrIdempotencyInProgress
		}
		return domain.IdempotencyRecord{}, false, fmt.Errorf("read idempotency key: %w", err)
	}
	return existing.toDomain(), res.RowsAffected == 1, nil
}

func (s *Store) CompleteKey(ctx context.Context, key string, result []byte, now time.Time) error {
	res := s.conn(ctx).Model(&idempotencyModel{}).
		Where("key = ? AND state = ?", key, string(domain.IdempotencyPending)).
		Updates(map[string]any{
			"state":        string(domain.IdempotencyCompleted),
			"result":       result,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete idempotency key %q: no pending claim", key)
	}
	return nil
}

func (s *Store) ReleaseKey(ctx context.Context, key string) error {
	err := s.conn(ctx).
		Where("key = ? AND state = ?", key, string(domain.IdempotencyPending)).
		Delete(&idempotencyModel{}).Error
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
