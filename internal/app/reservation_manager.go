package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// HoldRepository persists holds. Calls made inside WithTx share its transaction.
type HoldRepository interface {
	CreateHold(ctx context.Context, hold domain.Hold) error
	GetHold(ctx context.Context, id string) (domain.Hold, error)
	DeleteHold(ctx context.Context, id string) error
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
}

// ReservationManager places time-limited holds against the ledger and resolves
// them exactly once: commit, release, or expiry.
type ReservationManager struct {
	ledger    *InventoryLedger
	holds     HoldRepository
	clock     clock.Clock
	logger    *zap.Logger
	holdTTL   time.Duration
	reapBatch int
}

const (
	defaultHoldTTL   = 10 * time.Minute
	defaultReapBatch = 500
)

// NewReservationManager returns a manager placing holds of defaultHoldTTL
// unless WithHoldTTL says otherwise.
func NewReservationManager(ledger *InventoryLedger, holds HoldRepository, clk clock.Clock, opts ...ReservationOption) *ReservationManager {
	m := &ReservationManager{
		ledger:    ledger,
		holds:     holds,
		clock:     clk,
		logger:    zap.NewNop(),
		holdTTL:   defaultHoldTTL,
		reapBatch: defaultReapBatch,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ReservationOption configures a ReservationManager.
type ReservationOption func(*ReservationManager)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) ReservationOption {
	return func(m *ReservationManager) {
		if d > 0 {
			m.holdTTL = d
		}
	}
}

// WithReapBatch caps how many expired holds one ReapExpired call handles.
func WithReapBatch(n int) ReservationOption {
	return func(m *ReservationManager) {
		if n > 0 {
			m.reapBatch = n
		}
	}
}

func WithReservationLogger(logger *zap.Logger) ReservationOption {
	return func(m *ReservationManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Reserve moves amount from available to reserved and records a hold for it.
// Disabled tokens are reported as not found. A non-positive amount is refused
// the same way as one larger than what is available.
func (m *ReservationManager) Reserve(ctx context.Context, tokenID string, amount decimal.Decimal) (domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.reserve", trace.WithAttributes(
		attribute.String("token.id", tokenID),
		attribute.String("amount", amount.String()),
	))
	var (
		result domain.Reservation
		err    error
	)
	defer func() { endSpan(span, err) }()

	err = m.ledger.exclusive(ctx, tokenID, func(txCtx context.Context) error {
		tok, err := m.ledger.repo.GetTokenForUpdate(txCtx, tokenID)
		if err != nil {
			return err
		}
		if !tok.Enabled {
			return domain.ErrTokenNotFound
		}
		if available := tok.Available(); !amount.IsPositive() || amount.GreaterThan(available) {
			return &domain.InsufficientInventoryError{Available: available}
		}

		now := m.clock.Now()
		hold := domain.Hold{
			ID:        newID(),
			TokenID:   tokenID,
			Amount:    amount,
			CreatedAt: now,
			ExpiresAt: now.Add(m.holdTTL),
		}
		if err := m.holds.CreateHold(txCtx, hold); err != nil {
			return err
		}
		tok, err = m.ledger.adjust(txCtx, tokenID, decimal.Zero, amount)
		if err != nil {
			return err
		}
		result = domain.Reservation{Hold: hold, Token: tok}
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	span.SetAttributes(attribute.String("hold.id", result.Hold.ID))
	m.logger.Debug("hold placed",
		zap.String("hold_id", result.Hold.ID),
		zap.String("token_id", tokenID),
		zap.String("amount", amount.String()),
		zap.Time("expires_at", result.Hold.ExpiresAt),
	)
	return result, nil
}

// Commit consumes the hold: both counters drop by its amount. An expired hold
// that has not been reaped yet can still be committed.
func (m *ReservationManager) Commit(ctx context.Context, tokenID, holdID string) (domain.Token, error) {
	return m.resolve(ctx, "reservation.commit", tokenID, holdID, domain.HoldCommitted)
}

// Release returns the held amount to available.
func (m *ReservationManager) Release(ctx context.Context, tokenID, holdID string) (domain.Token, error) {
	return m.resolve(ctx, "reservation.release", tokenID, holdID, domain.HoldReleased)
}

func (m *ReservationManager) resolve(ctx context.Context, name, tokenID, holdID string, outcome domain.HoldOutcome) (domain.Token, error) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("token.id", tokenID),
		attribute.String("hold.id", holdID),
	))
	var (
		result domain.Token
		err    error
	)
	defer func() { endSpan(span, err) }()

	err = m.ledger.exclusive(ctx, tokenID, func(txCtx context.Context) error {
		tok, err := m.resolveLocked(txCtx, tokenID, holdID, outcome)
		if err != nil {
			return err
		}
		result = tok
		return nil
	})
	if err != nil {
		return domain.Token{}, err
	}

	m.logger.Debug("hold resolved",
		zap.String("hold_id", holdID),
		zap.String("token_id", tokenID),
		zap.String("outcome", string(outcome)),
	)
	return result, nil
}

// resolveLocked deletes the hold and applies its counter change. Callers hold
// the token's exclusive section. The token row is locked before the hold is
// read so that another replica resolving the same hold is waited for.
func (m *ReservationManager) resolveLocked(ctx context.Context, tokenID, holdID string, outcome domain.HoldOutcome) (domain.Token, error) {
	if _, err := m.ledger.repo.GetTokenForUpdate(ctx, tokenID); err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
		return domain.Token{}, err
	}
	hold, err := m.holds.GetHold(ctx, holdID)
	if err != nil {
		return domain.Token{}, err
	}
	if hold.TokenID != tokenID {
		return domain.Token{}, domain.ErrTokenMismatch
	}

	inventoryDelta := decimal.Zero
	if outcome == domain.HoldCommitted {
		inventoryDelta = hold.Amount.Neg()
	}
	tok, err := m.ledger.adjust(ctx, tokenID, inventoryDelta, hold.Amount.Neg())
	if err != nil {
		return domain.Token{}, err
	}
	if err := m.holds.DeleteHold(ctx, holdID); err != nil {
		return domain.Token{}, err
	}
	return tok, nil
}

// ReapExpired releases holds whose expiry has passed. Holds resolved between
// listing and locking are skipped. It returns the number of holds released.
func (m *ReservationManager) ReapExpired(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "reservation.reap_expired")
	var err error
	defer func() { endSpan(span, err) }()

	now := m.clock.Now()
	expired, err := m.holds.ListExpiredHolds(ctx, now, m.reapBatch)
	if err != nil {
		return 0, err
	}

	var (
		reaped int
		errs   []error
	)
	for _, h := range expired {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		released := false
		rerr := m.ledger.exclusive(ctx, h.TokenID, func(txCtx context.Context) error {
			if _, err := m.ledger.repo.GetTokenForUpdate(txCtx, h.TokenID); err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
				return err
			}
			cur, err := m.holds.GetHold(txCtx, h.ID)
			if errors.Is(err, domain.ErrHoldNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !cur.Expired(now) {
				return nil
			}
			if _, err := m.resolveLocked(txCtx, cur.TokenID, cur.ID, domain.HoldExpiredReleased); err != nil {
				return err
			}
			released = true
			return nil
		})
		if errors.Is(rerr, domain.ErrHoldNotFound) {
			// Resolved elsewhere after it was read; the transaction rolled back.
			m.logger.Debug("expired hold already resolved", zap.String("hold_id", h.ID))
			continue
		}
		if rerr != nil {
			m.logger.Error("failed to reap hold", zap.String("hold_id", h.ID), zap.Error(rerr))
			errs = append(errs, rerr)
			continue
		}
		if released {
			reaped++
			m.logger.Info("expired hold released",
				zap.String("hold_id", h.ID),
				zap.String("token_id", h.TokenID),
				zap.String("amount", h.Amount.String()),
			)
		}
	}

	span.SetAttributes(attribute.Int("holds.reaped", reaped))
	err = errors.Join(errs...)
	return reaped, err
}
