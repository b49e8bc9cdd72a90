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

type TokenRepository struct {
	conn
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{conn{pool: pool}}
}

func (r *TokenRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// Ping reports whether the database answers.
func (r *TokenRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const tokenColumns = `id, symbol, network, name, price_fiat::text, fiat_currency, decimals,
contract_address, inventory::text, reserved::text, enabled, updated_at`

func (r *TokenRepository) GetToken(ctx context.Context, id string) (domain.Token, error) {
	return r.getToken(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id)
}

// GetTokenForUpdate row-locks the token until the surrounding transaction
// ends.
func (r *TokenRepository) GetTokenForUpdate(ctx context.Context, id string) (domain.Token, error) {
	return r.getToken(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1 FOR UPDATE`, id)
}

func (r *TokenRepository) getToken(ctx context.Context, query, id string) (domain.Token, error) {
	var t domain.Token
	var price, inventory, reserved string
	err := r.queryRow(ctx, query, id).Scan(
		&t.ID, &t.Symbol, &t.Network, &t.Name, &price, &t.FiatCurrency, &t.Decimals,
		&t.ContractAddress, &inventory, &reserved, &t.Enabled, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Token{}, domain.ErrTokenNotFound
		}
		return domain.Token{}, fmt.Errorf("get token: %w", err)
	}
	if t.PriceFiat, err = decimal.NewFromString(price); err != nil {
		return domain.Token{}, fmt.Errorf("parse price_fiat: %w", err)
	}
	if t.Inventory, err = decimal.NewFromString(inventory); err != nil {
		return domain.Token{}, fmt.Errorf("parse inventory: %w", err)
	}
	if t.Reserved, err = decimal.NewFromString(reserved); err != nil {
		return domain.Token{}, fmt.Errorf("parse reserved: %w", err)
	}
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (r *TokenRepository) UpdateTokenCounters(ctx context.Context, id string, inventory, reserved decimal.Decimal, updatedAt time.Time) error {
	const stmt = `UPDATE tokens SET inventory = $2, reserved = $3, updated_at = $4 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, inventory.String(), reserved.String(), updatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInvariantViolation
		}
		return fmt.Errorf("update token counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) InsertTokenIfAbsent(ctx context.Context, t domain.Token) (bool, error) {
	const stmt = `
INSERT INTO tokens (id, symbol, network, name, price_fiat, fiat_currency, decimals,
	contract_address, inventory, reserved, enabled, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT DO NOTHING`

	tag, err := r.exec(ctx, stmt,
		t.ID,
		t.Symbol,
		t.Network,
		t.Name,
		t.PriceFiat.String(),
		t.FiatCurrency,
		t.Decimals,
		t.ContractAddress,
		t.Inventory.String(),
		t.Reserved.String(),
		t.Enabled,
		t.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return false, domain.ErrInvariantViolation
		}
		return false, fmt.Errorf("insert token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
