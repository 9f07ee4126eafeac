package model

import "time"

// ProcessedEvent is the idempotency record for an external event. The row
// is inserted in the same DB transaction as the ledger mutation it guards;
// its existence means the event has already been fully applied. Rows are
// never updated or deleted.
type ProcessedEvent struct {
	RequestID string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_event" }
