package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

type TokenSeedRepository interface {
	// InsertTokenIfAbsent stores tok unless a token with the same id exists.
	InsertTokenIfAbsent(ctx context.Context, tok domain.Token) (bool, error)
}

// CatalogSeeder makes sure the configured tokens exist. Tokens already in
// storage are left untouched so their counters survive restarts.
type CatalogSeeder struct {
	repo   TokenSeedRepository
	clock  clock.Clock
	logger *zap.Logger
}

func NewCatalogSeeder(repo TokenSeedRepository, clk clock.Clock, logger *zap.Logger) *CatalogSeeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogSeeder{repo: repo, clock: clk, logger: logger}
}

// Seed inserts missing tokens and returns how many were added.
func (s *CatalogSeeder) Seed(ctx context.Context, tokens []domain.Token) (int, error) {
	inserted := 0
	for _, tok := range tokens {
		if tok.Symbol == "" || tok.Network == "" || tok.FiatCurrency == "" {
			return inserted, fmt.Errorf("seed token %q: %w", tok.Symbol, domain.ErrMissingFields)
		}
		if err := domain.CheckCounters(tok.Inventory, tok.Reserved); err != nil {
			return inserted, fmt.Errorf("seed token %s: %w", tok.Symbol, err)
		}
		if tok.PriceFiat.IsNegative() {
			return inserted, fmt.Errorf("seed token %s: %w", tok.Symbol, domain.ErrInvalidAmount)
		}
		if tok.ID == "" {
			tok.ID = tokenIDFor(tok.Network, tok.Symbol)
		}
		tok.FiatCurrency = strings.ToUpper(tok.FiatCurrency)
		tok.UpdatedAt = s.clock.Now()

		ok, err := s.repo.InsertTokenIfAbsent(ctx, tok)
		if err != nil {
			return inserted, fmt.Errorf("seed token %s: %w", tok.Symbol, err)
		}
		if ok {
			inserted++
			s.logger.Info("seeded token",
				zap.String("token_id", tok.ID),
				zap.String("symbol", tok.Symbol),
				zap.String("network", tok.Network),
				zap.String("inventory", tok.Inventory.String()),
			)
		}
	}
	return inserted, nil
}
