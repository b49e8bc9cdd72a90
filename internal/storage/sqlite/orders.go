package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	m := newOrderModel(o)
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var m orderModel
	if err := s.conn(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return m.toDomain(), nil
}

// UpdateOrder writes every column of o when the stored status is expected.
func (s *Store) UpdateOrder(ctx context.Context, o domain.Order, expected domain.OrderStatus) error {
	m := newOrderModel(o)
	res := s.conn(ctx).Model(&orderModel{}).
		Where("id = ? AND status = ?", o.ID, string(expected)).
		Select("*").
		Updates(&m)
	if res.Error != nil {
		return fmt.Errorf("update order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return domain.ErrOrderConflict
	}
	return nil
}
