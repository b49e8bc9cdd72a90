package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

func (s *Store) CreateHold(ctx context.Context, hold domain.Hold) error {
	m := newHoldModel(hold)
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrHoldExists
		}
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (s *Store) GetHold(ctx context.Context, id string) (domain.Hold, error) {
	var m holdModel
	if err := s.conn(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) DeleteHold(ctx context.Context, id string) error {
	res := s.conn(ctx).Where("id = ?", id).Delete(&holdModel{})
	if res.Error != nil {
		return fmt.Errorf("delete hold: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

func (s *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	var models []holdModel
	err := s.conn(ctx).
		Where("expires_at <= ?", now.UnixNano()).
		Order("expires_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	holds := make([]domain.Hold, 0, len(models))
	for _, m := range models {
		holds = append(holds, m.toDomain())
	}
	return holds, nil
}
