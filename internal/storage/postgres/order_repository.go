package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

type OrderRepository struct {
	conn
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{conn{pool: pool}}
}

// orderRow is the flattened storage form of domain.Order. Nested values are
// kept as JSONB and decimals travel as text.
type orderRow struct {
	id, kind, status        string
	tokenID, holdID         *string
	amountCrypto, priceFiat string
	fiatCurrency, totalFiat string
	method, destAddress     string
	token, payment          []byte
	transfer, settlement    []byte
	holdCommitted           bool
	cryptoCurrency, network string
	fiatAmount              string
	quote                   []byte
	order                   domain.Order
}

func (r *OrderRepository) CreateOrder(ctx context.Context, o domain.Order) error {
	const stmt = `
INSERT INTO orders (id, kind, status, token_id, hold_id, amount_crypto, price_fiat, fiat_currency,
	total_fiat, method, dest_address, token, payment, transfer, hold_committed, settlement,
	crypto_currency, network, fiat_amount, quote, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	args = append(args, o.CreatedAt, o.UpdatedAt)
	if _, err := r.exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	const query = `
SELECT id, kind, status, token_id, hold_id, amount_crypto::text, price_fiat::text, fiat_currency,
	total_fiat::text, method, dest_address, token, payment, transfer, hold_committed, settlement,
	crypto_currency, network, fiat_amount::text, quote, created_at, updated_at
FROM orders
WHERE id = $1`

	var row orderRow
	err := r.queryRow(ctx, query, id).Scan(
		&row.id, &row.kind, &row.status, &row.tokenID, &row.holdID,
		&row.amountCrypto, &row.priceFiat, &row.fiatCurrency, &row.totalFiat,
		&row.method, &row.destAddress, &row.token, &row.payment, &row.transfer,
		&row.holdCommitted, &row.settlement, &row.cryptoCurrency, &row.network,
		&row.fiatAmount, &row.quote, &row.order.CreatedAt, &row.order.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return row.decode()
}

// UpdateOrder overwrites the mutable fields when the stored status matches
// expected.
func (r *OrderRepository) UpdateOrder(ctx context.Context, o domain.Order, expected domain.OrderStatus) error {
	const stmt = `
UPDATE orders SET
	kind = $2, status = $3, token_id = $4, hold_id = $5, amount_crypto = $6, price_fiat = $7,
	fiat_currency = $8, total_fiat = $9, method = $10, dest_address = $11, token = $12,
	payment = $13, transfer = $14, hold_committed = $15, settlement = $16,
	crypto_currency = $17, network = $18, fiat_amount = $19, quote = $20, updated_at = $21
WHERE id = $1 AND status = $22`

	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	args = append(args, o.UpdatedAt, string(expected))
	tag, err := r.exec(ctx, stmt, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return domain.ErrOrderConflict
	}
	return nil
}

func orderArgs(o domain.Order) ([]any, error) {
	token, err := json.Marshal(o.Token)
	if err != nil {
		return nil, fmt.Errorf("encode token snapshot: %w", err)
	}
	payment, err := json.Marshal(o.Payment)
	if err != nil {
		return nil, fmt.Errorf("encode payment: %w", err)
	}
	transfer, err := marshalOptional(o.Transfer)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	settlement, err := marshalOptional(o.Settlement)
	if err != nil {
		return nil, fmt.Errorf("encode settlement: %w", err)
	}
	quote, err := marshalOptional(o.Quote)
	if err != nil {
		return nil, fmt.Errorf("encode quote: %w", err)
	}
	return []any{
		o.ID,
		string(o.Kind),
		string(o.Status),
		optionalString(o.TokenID),
		optionalString(o.HoldID),
		o.AmountCrypto.String(),
		o.PriceFiat.String(),
		o.FiatCurrency,
		o.TotalFiat.String(),
		string(o.Method),
		o.DestAddress,
		token,
		payment,
		transfer,
		o.HoldCommitted,
		settlement,
		o.CryptoCurrency,
		o.Network,
		o.FiatAmount.String(),
		quote,
	}, nil
}

func (row orderRow) decode() (domain.Order, error) {
	o := row.order
	o.ID = row.id
	o.Kind = domain.OrderKind(row.kind)
	o.Status = domain.OrderStatus(row.status)
	if row.tokenID != nil {
		o.TokenID = *row.tokenID
	}
	if row.holdID != nil {
		o.HoldID = *row.holdID
	}
	o.FiatCurrency = row.fiatCurrency
	o.Method = domain.PaymentMethod(row.method)
	o.DestAddress = row.destAddress
	o.HoldCommitted = row.holdCommitted
	o.CryptoCurrency = row.cryptoCurrency
	o.Network = row.network
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.AmountCrypto, row.amountCrypto},
		{&o.PriceFiat, row.priceFiat},
		{&o.TotalFiat, row.totalFiat},
		{&o.FiatAmount, row.fiatAmount},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.Order{}, fmt.Errorf("parse order amount: %w", err)
		}
		*f.dst = d
	}

	if err := json.Unmarshal(row.token, &o.Token); err != nil {
		return domain.Order{}, fmt.Errorf("decode token snapshot: %w", err)
	}
	if err := json.Unmarshal(row.payment, &o.Payment); err != nil {
		return domain.Order{}, fmt.Errorf("decode payment: %w", err)
	}
	if row.transfer != nil {
		o.Transfer = new(domain.Transfer)
		if err := json.Unmarshal(row.transfer, o.Transfer); err != nil {
			return domain.Order{}, fmt.Errorf("decode transfer: %w", err)
		}
	}
	if row.settlement != nil {
		o.Settlement = new(domain.SettlementFailure)
		if err := json.Unmarshal(row.settlement, o.Settlement); err != nil {
			return domain.Order{}, fmt.Errorf("decode settlement: %w", err)
		}
	}
	if row.quote != nil {
		o.Quote = new(domain.Quote)
		if err := json.Unmarshal(row.quote, o.Quote); err != nil {
			return domain.Order{}, fmt.Errorf("decode quote: %w", err)
		}
	}
	return o, nil
}

func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
