package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// TokenRepository stores catalog tokens and their counters. Repositories used
// by the reservation manager must join the transaction opened by WithTx.
type TokenRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetToken(ctx context.Context, id string) (domain.Token, error)
	GetTokenForUpdate(ctx context.Context, id string) (domain.Token, error)
	UpdateTokenCounters(ctx context.Context, id string, inventory, reserved decimal.Decimal, updatedAt time.Time) error
}

// InventoryLedger owns the inventory and reserved counters of every token.
// Each mutation runs inside the token's exclusive section: an in-process lock
// keyed by token id plus a storage transaction that row-locks the token.
type InventoryLedger struct {
	repo   TokenRepository
	clock  clock.Clock
	locks  *keyLocks
	logger *zap.Logger
}

func NewInventoryLedger(repo TokenRepository, clk clock.Clock, logger *zap.Logger) *InventoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryLedger{
		repo:   repo,
		clock:  clk,
		locks:  newKeyLocks(),
		logger: logger,
	}
}

// Get returns the current token state.
func (l *InventoryLedger) Get(ctx context.Context, tokenID string) (domain.Token, error) {
	return l.repo.GetToken(ctx, tokenID)
}

// Adjust applies both deltas atomically. Nothing is written when the result
// would break 0 <= reserved <= inventory.
func (l *InventoryLedger) Adjust(ctx context.Context, tokenID string, inventoryDelta, reservedDelta decimal.Decimal) (domain.Token, error) {
	ctx, span := tracer.Start(ctx, "ledger.adjust", trace.WithAttributes(
		attribute.String("token.id", tokenID),
		attribute.String("delta.inventory", inventoryDelta.String()),
		attribute.String("delta.reserved", reservedDelta.String()),
	))
	var (
		result domain.Token
		err    error
	)
	defer func() { endSpan(span, err) }()

	err = l.exclusive(ctx, tokenID, func(txCtx context.Context) error {
		tok, err := l.adjust(txCtx, tokenID, inventoryDelta, reservedDelta)
		if err != nil {
			return err
		}
		result = tok
		return nil
	})
	if err != nil {
		return domain.Token{}, err
	}
	return result, nil
}

// exclusive runs fn in tokenID's exclusive section. fn must not call out to
// anything but storage.
func (l *InventoryLedger) exclusive(ctx context.Context, tokenID string, fn func(ctx context.Context) error) error {
	unlock, err := l.locks.Lock(ctx, tokenID)
	if err != nil {
		return err
	}
	defer unlock()
	return l.repo.WithTx(ctx, fn)
}

// adjust is Adjust for callers already inside the token's exclusive section.
func (l *InventoryLedger) adjust(ctx context.Context, tokenID string, inventoryDelta, reservedDelta decimal.Decimal) (domain.Token, error) {
	tok, err := l.repo.GetTokenForUpdate(ctx, tokenID)
	if err != nil {
		return domain.Token{}, err
	}

	inventory := tok.Inventory.Add(inventoryDelta)
	reserved := tok.Reserved.Add(reservedDelta)
	if err := domain.CheckCounters(inventory, reserved); err != nil {
		l.logger.Warn("rejected ledger adjustment",
			zap.String("token_id", tokenID),
			zap.String("inventory", inventory.String()),
			zap.String("reserved", reserved.String()),
		)
		return domain.Token{}, fmt.Errorf("%w: inventory=%s reserved=%s", err, inventory, reserved)
	}

	now := l.clock.Now()
	if err := l.repo.UpdateTokenCounters(ctx, tokenID, inventory, reserved, now); err != nil {
		return domain.Token{}, err
	}
	tok.Inventory = inventory
	tok.Reserved = reserved
	tok.UpdatedAt = now
	return tok, nil
}
