package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialPrice maps a normalized material name ("Plastics") to its
// per-kilogram payout rate. Read-only from the wallet core's perspective.
type MaterialPrice struct {
	Material   string          `gorm:"primaryKey;size:64"`
	PricePerKg decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

func (MaterialPrice) TableName() string { return "material_price" }
