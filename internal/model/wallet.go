package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the per-user balance row plus the recycling accumulators.
// All mutation goes through the wallet service inside one DB transaction;
// Version backs the optimistic CAS on update.
type Wallet struct {
	UserID         string          `gorm:"primaryKey;size:64;column:user_id"`
	Balance        decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	RecycledWeight decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	PointsEarned   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	CO2Saved       decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0';column:co2_saved"`
	Version        uint64          `gorm:"not null;default:0"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallet" }
