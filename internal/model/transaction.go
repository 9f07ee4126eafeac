package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeWithdraw      = "WITHDRAW"
	TypeRecycleCredit = "RECYCLE_CREDIT"
	TypeRefund        = "REFUND"
)

// Transaction statuses. A pending withdrawal has already been subtracted
// from the balance; pending means reserved, not unconfirmed.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is an append-only ledger entry. Amount is signed: negative
// for debits, positive for credits. After creation only Status and
// ResultMeta are ever updated.
type Transaction struct {
	ID             uint64          `gorm:"primaryKey"`
	UserID         string          `gorm:"size:64;not null;index"`
	Type           string          `gorm:"size:32;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Status         string          `gorm:"size:16;not null;index"`
	Method         *string         `gorm:"size:32"`
	Phone          *string         `gorm:"size:32;index"`
	RelatedRequest *string         `gorm:"size:64"`
	RelatedTo      *uint64
	ResultMeta     *string   `gorm:"type:jsonb"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "transaction" }
