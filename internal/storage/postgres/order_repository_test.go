package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/testutil"
)

func TestOrderRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewOrderRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	sellOrder := func() domain.Order {
		id := uuid.NewString()
		return domain.Order{
			ID:           id,
			Kind:         domain.OrderKindCustomSell,
			Status:       domain.OrderStatusAuthorized,
			Token:        domain.TokenSnapshot{ID: "tok-1", Symbol: "USDT", Network: "polygon", Decimals: 6},
			TokenID:      "tok-1",
			AmountCrypto: decimal.RequireFromString("10"),
			PriceFiat:    decimal.RequireFromString("0.92"),
			FiatCurrency: "EUR",
			TotalFiat:    decimal.RequireFromString("9.20"),
			Method:       domain.PaymentMethodBank,
			DestAddress:  "0xabc",
			HoldID:       uuid.NewString(),
			Payment: domain.PaymentState{
				Status: domain.PaymentStatusPending,
				Method: domain.PaymentMethodBank,
				Amount: decimal.RequireFromString("9.20"),
				Instructions: &domain.BankInstructions{
					IBAN:      "DE89370400440532013000",
					BIC:       "COBADEFFXXX",
					Reference: "ORD-" + id,
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	t.Run("CreateOrder and GetOrder round trip", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertToken(t, ctx, pool, sampleToken("tok-1"))

		o := sellOrder()
		if err := repo.CreateOrder(ctx, o); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.CreateOrder(ctx, o); err != domain.ErrOrderExists {
			t.Fatalf("expected ErrOrderExists, got %v", err)
		}

		got, err := repo.GetOrder(ctx, o.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.HoldID != o.HoldID || got.Status != o.Status || got.Token != o.Token {
			t.Fatalf("unexpected order: %+v", got)
		}
		if !got.TotalFiat.Equal(o.TotalFiat) || !got.Payment.Amount.Equal(o.Payment.Amount) {
			t.Fatalf("unexpected amounts: %+v", got)
		}
		if got.Payment.Instructions == nil || got.Payment.Instructions.Reference != "ORD-"+o.ID {
			t.Fatalf("unexpected instructions: %+v", got.Payment.Instructions)
		}
		if got.Transfer != nil || got.Settlement != nil || got.Quote != nil {
			t.Fatalf("expected empty optional fields, got %+v", got)
		}

		if _, err := repo.GetOrder(ctx, uuid.NewString()); err != domain.ErrOrderNotFound {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
		if _, err := repo.GetOrder(ctx, "not-a-uuid"); err != domain.ErrOrderNotFound {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("UpdateOrder is conditional on status", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertToken(t, ctx, pool, sampleToken("tok-1"))

		o := sellOrder()
		if err := repo.CreateOrder(ctx, o); err != nil {
			t.Fatalf("create order: %v", err)
		}

		o.Status = domain.OrderStatusCaptured
		o.HoldCommitted = true
		o.Settlement = &domain.SettlementFailure{Step: domain.StepTransfer, Reason: "node down", FailedAt: now}
		if err := repo.UpdateOrder(ctx, o, domain.OrderStatusAuthorized); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.UpdateOrder(ctx, o, domain.OrderStatusAuthorized); err != domain.ErrOrderConflict {
			t.Fatalf("expected ErrOrderConflict, got %v", err)
		}

		got, err := repo.GetOrder(ctx, o.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Status != domain.OrderStatusCaptured || !got.HoldCommitted {
			t.Fatalf("unexpected order: %+v", got)
		}
		if got.Settlement == nil || got.Settlement.Step != domain.StepTransfer {
			t.Fatalf("unexpected settlement: %+v", got.Settlement)
		}

		missing := sellOrder()
		if err := repo.UpdateOrder(ctx, missing, domain.OrderStatusAuthorized); err != domain.ErrOrderNotFound {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("quote orders have no token", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		o := domain.Order{
			ID:             uuid.NewString(),
			Kind:           domain.OrderKindQuote,
			Status:         domain.OrderStatusCreated,
			FiatCurrency:   "EUR",
			CryptoCurrency: "USDC",
			FiatAmount:     decimal.RequireFromString("105"),
			Quote: &domain.Quote{
				Rate:         decimal.RequireFromString("1.05"),
				CryptoAmount: decimal.RequireFromString("100"),
				ExpiresAt:    now.Add(time.Minute),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.CreateOrder(ctx, o); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got, err := repo.GetOrder(ctx, o.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.TokenID != "" || got.HoldID != "" || got.Quote == nil || !got.Quote.Rate.Equal(o.Quote.Rate) {
			t.Fatalf("unexpected order: %+v", got)
		}
	})
}
