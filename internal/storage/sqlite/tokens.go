package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

func (s *Store) GetToken(ctx context.Context, id string) (domain.Token, error) {
	var m tokenModel
	err := s.conn(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Token{}, domain.ErrTokenNotFound
		}
		return domain.Token{}, fmt.Errorf("get token: %w", err)
	}
	return m.toDomain(), nil
}

// GetTokenForUpdate is GetToken: SQLite has no row locks, and the single
// connection already serializes transactions.
func (s *Store) GetTokenForUpdate(ctx context.Context, id string) (domain.Token, error) {
	return s.GetToken(ctx, id)
}

func (s *Store) UpdateTokenCounters(ctx context.Context, id string, inventory, reserved decimal.Decimal, updatedAt time.Time) error {
	if err := domain.CheckCounters(inventory, reserved); err != nil {
		return err
	}
	res := s.conn(ctx).Model(&tokenModel{}).Where("id = ?", id).Updates(map[string]any{
		"inventory":  inventory,
		"reserved":   reserved,
		"updated_at": updatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update token counters: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (s *Store) InsertTokenIfAbsent(ctx context.Context, t domain.Token) (bool, error) {
	m := newTokenModel(t)
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return false, fmt.Errorf("insert token: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
