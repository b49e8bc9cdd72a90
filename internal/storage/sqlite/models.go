package sqlite

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

type tokenModel struct {
	ID              string          `gorm:"primaryKey"`
	Symbol          string          `gorm:"not null;uniqueIndex:idx_tokens_symbol_network"`
	Network         string          `gorm:"not null;uniqueIndex:idx_tokens_symbol_network"`
	Name            string          `gorm:"not null;default:''"`
	PriceFiat       decimal.Decimal `gorm:"type:text;not null"`
	FiatCurrency    string          `gorm:"not null"`
	Decimals        int             `gorm:"not null"`
	ContractAddress string          `gorm:"not null;default:''"`
	Inventory       decimal.Decimal `gorm:"type:text;not null"`
	Reserved        decimal.Decimal `gorm:"type:text;not null"`
	Enabled         bool            `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime:false"`
}

func (tokenModel) TableName() string { return "tokens" }

func newTokenModel(t domain.Token) tokenModel {
	return tokenModel{
		ID:              t.ID,
		Symbol:          t.Symbol,
		Network:         t.Network,
		Name:            t.Name,
		PriceFiat:       t.PriceFiat,
		FiatCurrency:    t.FiatCurrency,
		Decimals:        t.Decimals,
		ContractAddress: t.ContractAddress,
		Inventory:       t.Inventory,
		Reserved:        t.Reserved,
		Enabled:         t.Enabled,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (m tokenModel) toDomain() domain.Token {
	return domain.Token{
		ID:              m.ID,
		Symbol:          m.Symbol,
		Network:         m.Network,
		Name:            m.Name,
		PriceFiat:       m.PriceFiat,
		FiatCurrency:    m.FiatCurrency,
		Decimals:        m.Decimals,
		ContractAddress: m.ContractAddress,
		Inventory:       m.Inventory,
		Reserved:        m.Reserved,
		Enabled:         m.Enabled,
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

// Expiry is stored as Unix nanoseconds so range scans compare numbers.
type holdModel struct {
	ID        string          `gorm:"primaryKey"`
	TokenID   string          `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:text;not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime:false"`
	ExpiresAt int64           `gorm:"not null;index"`
}

func (holdModel) TableName() string { return "holds" }

func newHoldModel(h domain.Hold) holdModel {
	return holdModel{
		ID:        h.ID,
		TokenID:   h.TokenID,
		Amount:    h.Amount,
		CreatedAt: h.CreatedAt,
		ExpiresAt: h.ExpiresAt.UnixNano(),
	}
}

func (m holdModel) toDomain() domain.Hold {
	return domain.Hold{
		ID:        m.ID,
		TokenID:   m.TokenID,
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt.UTC(),
		ExpiresAt: time.Unix(0, m.ExpiresAt).UTC(),
	}
}

type orderModel struct {
	ID             string                    `gorm:"primaryKey"`
	Kind           string                    `gorm:"not null"`
	Status         string                    `gorm:"not null;index"`
	TokenID        string                    `gorm:"not null;default:''"`
	HoldID         string                    `gorm:"not null;default:''"`
	AmountCrypto   decimal.Decimal           `gorm:"type:text;not null"`
	PriceFiat      decimal.Decimal           `gorm:"type:text;not null"`
	FiatCurrency   string                    `gorm:"not null;default:''"`
	TotalFiat      decimal.Decimal           `gorm:"type:text;not null"`
	Method         string                    `gorm:"not null;default:''"`
	DestAddress    string                    `gorm:"not null;default:''"`
	Token          domain.TokenSnapshot      `gorm:"serializer:json"`
	Payment        domain.PaymentState       `gorm:"serializer:json"`
	Transfer       *domain.Transfer          `gorm:"serializer:json"`
	HoldCommitted  bool                      `gorm:"not null"`
	Settlement     *domain.SettlementFailure `gorm:"serializer:json"`
	CryptoCurrency string                    `gorm:"not null;default:''"`
	Network        string                    `gorm:"not null;default:''"`
	FiatAmount     decimal.Decimal           `gorm:"type:text;not null"`
	Quote          *domain.Quote             `gorm:"serializer:json"`
	CreatedAt      time.Time                 `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time                 `gorm:"autoUpdateTime:false"`
}

func (orderModel) TableName() string { return "orders" }

func newOrderModel(o domain.Order) orderModel {
	return orderModel{
		ID:             o.ID,
		Kind:           string(o.Kind),
		Status:         string(o.Status),
		TokenID:        o.TokenID,
		HoldID:         o.HoldID,
		AmountCrypto:   o.AmountCrypto,
		PriceFiat:      o.PriceFiat,
		FiatCurrency:   o.FiatCurrency,
		TotalFiat:      o.TotalFiat,
		Method:         string(o.Method),
		DestAddress:    o.DestAddress,
		Token:          o.Token,
		Payment:        o.Payment,
		Transfer:       o.Transfer,
		HoldCommitted:  o.HoldCommitted,
		Settlement:     o.Settlement,
		CryptoCurrency: o.CryptoCurrency,
		Network:        o.Network,
		FiatAmount:     o.FiatAmount,
		Quote:          o.Quote,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (m orderModel) toDomain() domain.Order {
	return domain.Order{
		ID:             m.ID,
		Kind:           domain.OrderKind(m.Kind),
		Status:         domain.OrderStatus(m.Status),
		Token:          m.Token,
		TokenID:        m.TokenID,
		AmountCrypto:   m.AmountCrypto,
		PriceFiat:      m.PriceFiat,
		FiatCurrency:   m.FiatCurrency,
		TotalFiat:      m.TotalFiat,
		Method:         domain.PaymentMethod(m.Method),
		DestAddress:    m.DestAddress,
		HoldID:         m.HoldID,
		Payment:        m.Payment,
		Transfer:       m.Transfer,
		HoldCommitted:  m.HoldCommitted,
		Settlement:     m.Settlement,
		CryptoCurrency: m.CryptoCurrency,
		Network:        m.Network,
		FiatAmount:     m.FiatAmount,
		Quote:          m.Quote,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type idempotencyModel struct {
	Key         string `gorm:"primaryKey"`
	State       string `gorm:"not null"`
	Result      []byte
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	ClaimedAt   *time.Time
	CompletedAt *time.Time
}

func (idempotencyModel) TableName() string { return "idempotency_keys" }

func (m idempotencyModel) toDomain() domain.IdempotencyRecord {
	// Rows written before claims were timestamped count from creation.
	claimedAt := m.CreatedAt
	if m.ClaimedAt != nil {
		claimedAt = *m.ClaimedAt
	}
	return domain.IdempotencyRecord{
		Key:         m.Key,
		State:       domain.IdempotencyState(m.State),
		Result:      m.Result,
		CreatedAt:   m.CreatedAt.UTC(),
		ClaimedAt:   claimedAt.UTC(),
		CompletedAt: m.CompletedAt,
	}
}
