package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientFunds is returned when wallet balance is not enough.
var ErrInsufficientFunds = errors.New("insufficient funds")

// RepositoryInterface restricts Repo methods for unit-test mocks.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	GetWalletForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*model.Wallet, error)
	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	UpdateWallet(ctx context.Context, tx *gorm.DB, userID string, fields map[string]interface{}, oldVersion uint64) error
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, tx *gorm.DB, id uint64, status string, resultMeta *string) error
	RefundExists(ctx context.Context, tx *gorm.DB, originalID uint64) (bool, error)
	PendingWithdrawalsByPhone(ctx context.Context, tx *gorm.DB, phone string) ([]model.Transaction, error)
	PendingWithdrawalsByUser(ctx context.Context, tx *gorm.DB, userID string) ([]model.Transaction, error)
	ReserveEvent(ctx context.Context, tx *gorm.DB, requestID string) (bool, error)
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	CacheBalance(ctx context.Context, userID string, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// sqlite has no row locks; the version CAS covers the test dialect.
func lockClause(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetWalletForUpdate locks the wallet row.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := lockClause(tx.WithContext(ctx)).
		Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWallet inserts a fresh zero wallet.
func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return tx.WithContext(ctx).Create(w).Error
}

// UpdateWallet applies fields with optimistic lock.
func (r *Repository) UpdateWallet(ctx context.Context, tx *gorm.DB, userID string, fields map[string]interface{}, oldVersion uint64) error {
	fields["version"] = oldVersion + 1
	fields["updated_at"] = time.Now()
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND version = ?", userID, oldVersion).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("optimistic lock conflict")
	}
	return nil
}

// CreateTransaction appends a ledger entry.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// GetTransactionForUpdate locks a ledger entry for a status transition.
func (r *Repository) GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Transaction, error) {
	var t model.Transaction
	if err := lockClause(tx.WithContext(ctx)).
		Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransactionStatus mutates status (and result metadata) only; all
// other transaction columns are immutable after insert.
func (r *Repository) UpdateTransactionStatus(ctx context.Context, tx *gorm.DB, id uint64, status string, resultMeta *string) error {
	fields := map[string]interface{}{"status": status}
	if resultMeta != nil {
		fields["result_meta"] = resultMeta
	}
	return tx.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", id).Updates(fields).Error
}

// RefundExists reports whether a refund row already points at originalID.
func (r *Repository) RefundExists(ctx context.Context, tx *gorm.DB, originalID uint64) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("type = ? AND related_to = ?", model.TypeRefund, originalID).
		Count(&n).Error
	return n > 0, err
}

// PendingWithdrawalsByPhone returns pending withdrawal candidates for a
// callback phone, oldest first so correlation is deterministic.
func (r *Repository) PendingWithdrawalsByPhone(ctx context.Context, tx *gorm.DB, phone string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := lockClause(tx.WithContext(ctx)).
		Where("type = ? AND status = ? AND phone = ?", model.TypeWithdraw, model.StatusPending, phone).
		Order("created_at asc, id asc").
		Find(&txs).Error
	return txs, err
}

// PendingWithdrawalsByUser is the user-keyed variant for gateway responses
// that carry no phone number.
func (r *Repository) PendingWithdrawalsByUser(ctx context.Context, tx *gorm.DB, userID string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := lockClause(tx.WithContext(ctx)).
		Where("type = ? AND status = ? AND user_id = ?", model.TypeWithdraw, model.StatusPending, userID).
		Order("created_at asc, id asc").
		Find(&txs).Error
	return txs, err
}

// ReserveEvent atomically records requestID as processed. Returns true if
// the event had already been applied (insert hit an existing row). Single
// statement so two concurrent deliveries cannot both pass.
func (r *Repository) ReserveEvent(ctx context.Context, tx *gorm.DB, requestID string) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProcessedEvent{RequestID: requestID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 0, nil
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka, keyed by user so per-wallet events stay ordered.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, userID string, bal decimal.Decimal) error {
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%s", userID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%s", userID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
