package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/greenloop/recycle-wallet/internal/pricing"
	"github.com/greenloop/recycle-wallet/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WalletService is the wallet engine: every balance-changing operation runs
// as one DB transaction that mutates the wallet row, appends the ledger
// entry, and writes the outbox event together, or not at all.
type WalletService struct {
	repo   repo.RepositoryInterface
	prices pricing.Lookup
	log    *zap.SugaredLogger
}

// NewWalletService returns WalletService.
func NewWalletService(r repo.RepositoryInterface, prices pricing.Lookup, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, prices: prices, log: logger}
}

var (
	// ErrInvalidAmount means non-positive amount passed.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrWalletNotFound means a debit referenced a wallet that does not
	// exist. Debits never create wallets.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrTransactionNotFound means a status transition referenced a
	// missing ledger entry.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidState means the target transaction is not in the state
	// the operation requires (e.g. refunding a completed withdrawal).
	ErrInvalidState = errors.New("transaction not in required state")
)

// CreditMeta carries the recycling context of a credit. A positive Weight
// also bumps the wallet's recycling accumulators.
type CreditMeta struct {
	RequestID string
	Weight    decimal.Decimal
}

// Fixed accumulator policy: points = weight/50, co2 = weight*1.5.
var (
	pointsPerKgDivisor = decimal.NewFromInt(50)
	co2PerKgFactor     = decimal.NewFromFloat(1.5)
)

// Credit adds amt to the user's balance. The wallet is created implicitly
// on first credit.
func (s *WalletService) Credit(ctx context.Context, userID string, amt decimal.Decimal, meta CreditMeta) (uint64, error) {
	if amt.LessThanOrEqual(decimal.Zero) {
		return 0, ErrInvalidAmount
	}
	var txID uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txID, err = s.creditTx(ctx, tx, userID, amt, meta)
		return err
	})
	return txID, err
}

func (s *WalletService) creditTx(ctx context.Context, tx *gorm.DB, userID string, amt decimal.Decimal, meta CreditMeta) (uint64, error) {
	w, err := s.repo.GetWalletForUpdate(ctx, tx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		w = &model.Wallet{UserID: userID, Balance: decimal.Zero}
		if err := s.repo.CreateWallet(ctx, tx, w); err != nil {
			return 0, err
		}
	}

	newBal := w.Balance.Add(amt)
	fields := map[string]interface{}{"balance": newBal}
	if meta.Weight.IsPositive() {
		fields["recycled_weight"] = w.RecycledWeight.Add(meta.Weight)
		fields["points_earned"] = w.PointsEarned.Add(meta.Weight.Div(pointsPerKgDivisor))
		fields["co2_saved"] = w.CO2Saved.Add(meta.Weight.Mul(co2PerKgFactor))
	}
	if err := s.repo.UpdateWallet(ctx, tx, userID, fields, w.Version); err != nil {
		return 0, err
	}

	t := &model.Transaction{
		UserID: userID,
		Type:   model.TypeRecycleCredit,
		Amount: amt,
		Status: model.StatusCompleted,
	}
	if meta.RequestID != "" {
		t.RelatedRequest = &meta.RequestID
	}
	if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
		return 0, err
	}
	if err := s.writeOutbox(ctx, tx, userID, "WalletCredited", map[string]interface{}{
		"user_id": userID, "amount": amt, "balance": newBal, "request_id": meta.RequestID,
	}); err != nil {
		return 0, err
	}
	if err := s.repo.CacheBalance(ctx, userID, newBal); err != nil {
		s.log.Warn(err)
	}
	return t.ID, nil
}

// DebitMeta describes how a debit is recorded. Pending debits reserve the
// funds (balance already reduced) awaiting an external payout result.
type DebitMeta struct {
	Pending bool
	Method  string
	Phone   string
}

// Debit subtracts amt from the user's balance. Fails ErrWalletNotFound for
// an unknown user and ErrInsufficientFunds on overdraft, with no mutation.
func (s *WalletService) Debit(ctx context.Context, userID string, amt decimal.Decimal, meta DebitMeta) (uint64, error) {
	if amt.LessThanOrEqual(decimal.Zero) {
		return 0, ErrInvalidAmount
	}
	var txID uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txID, err = s.debitTx(ctx, tx, userID, amt, meta)
		return err
	})
	return txID, err
}

func (s *WalletService) debitTx(ctx context.Context, tx *gorm.DB, userID string, amt decimal.Decimal, meta DebitMeta) (uint64, error) {
	w, err := s.repo.GetWalletForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}
	if w.Balance.LessThan(amt) {
		return 0, repo.ErrInsufficientFunds
	}

	newBal := w.Balance.Sub(amt)
	if err := s.repo.UpdateWallet(ctx, tx, userID, map[string]interface{}{"balance": newBal}, w.Version); err != nil {
		return 0, err
	}

	status := model.StatusCompleted
	if meta.Pending {
		status = model.StatusPending
	}
	t := &model.Transaction{
		UserID: userID,
		Type:   model.TypeWithdraw,
		Amount: amt.Neg(),
		Status: status,
	}
	if meta.Method != "" {
		t.Method = &meta.Method
	}
	if meta.Phone != "" {
		t.Phone = &meta.Phone
	}
	if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
		return 0, err
	}
	if err := s.writeOutbox(ctx, tx, userID, "WalletDebited", map[string]interface{}{
		"user_id": userID, "amount": amt, "balance": newBal, "status": status,
	}); err != nil {
		return 0, err
	}
	if err := s.repo.CacheBalance(ctx, userID, newBal); err != nil {
		s.log.Warn(err)
	}
	return t.ID, nil
}

// Refund compensates a pending (or failed, not yet compensated) withdrawal:
// restores the reserved funds, marks the original failed, and appends a
// completed refund entry pointing back at it.
func (s *WalletService) Refund(ctx context.Context, txID uint64) (uint64, error) {
	var refundID uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		refundID, err = s.refundTx(ctx, tx, txID)
		return err
	})
	return refundID, err
}

func (s *WalletService) refundTx(ctx context.Context, tx *gorm.DB, txID uint64) (uint64, error) {
	orig, err := s.repo.GetTransactionForUpdate(ctx, tx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrTransactionNotFound
		}
		return 0, err
	}
	if orig.Type != model.TypeWithdraw {
		return 0, ErrInvalidState
	}
	switch orig.Status {
	case model.StatusPending:
		// refundable
	case model.StatusFailed:
		// failed rows stay refundable until a refund entry exists, so a
		// crash between the two writes can be repaired
		exists, err := s.repo.RefundExists(ctx, tx, orig.ID)
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, ErrInvalidState
		}
	default:
		return 0, ErrInvalidState
	}

	w, err := s.repo.GetWalletForUpdate(ctx, tx, orig.UserID)
	if err != nil {
		return 0, err
	}
	amount := orig.Amount.Abs()
	newBal := w.Balance.Add(amount)
	if err := s.repo.UpdateWallet(ctx, tx, orig.UserID, map[string]interface{}{"balance": newBal}, w.Version); err != nil {
		return 0, err
	}
	if err := s.repo.UpdateTransactionStatus(ctx, tx, orig.ID, model.StatusFailed, nil); err != nil {
		return 0, err
	}

	refund := &model.Transaction{
		UserID:    orig.UserID,
		Type:      model.TypeRefund,
		Amount:    amount,
		Status:    model.StatusCompleted,
		RelatedTo: &orig.ID,
		Phone:     orig.Phone,
	}
	if err := s.repo.CreateTransaction(ctx, tx, refund); err != nil {
		return 0, err
	}
	if err := s.writeOutbox(ctx, tx, orig.UserID, "PayoutRefunded", map[string]interface{}{
		"user_id": orig.UserID, "amount": amount, "balance": newBal, "original_tx": orig.ID,
	}); err != nil {
		return 0, err
	}
	if err := s.repo.CacheBalance(ctx, orig.UserID, newBal); err != nil {
		s.log.Warn(err)
	}
	return refund.ID, nil
}

// Finalize marks a pending withdrawal completed, storing the gateway's
// result metadata. No balance change: the funds were reserved at debit time.
func (s *WalletService) Finalize(ctx context.Context, txID uint64, resultMeta map[string]interface{}) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		return s.finalizeTx(ctx, tx, txID, resultMeta)
	})
}

func (s *WalletService) finalizeTx(ctx context.Context, tx *gorm.DB, txID uint64, resultMeta map[string]interface{}) error {
	orig, err := s.repo.GetTransactionForUpdate(ctx, tx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}
	if orig.Status != model.StatusPending {
		return ErrInvalidState
	}

	var metaStr *string
	if len(resultMeta) > 0 {
		b, err := json.Marshal(resultMeta)
		if err != nil {
			return err
		}
		str := string(b)
		metaStr = &str
	}
	if err := s.repo.UpdateTransactionStatus(ctx, tx, orig.ID, model.StatusCompleted, metaStr); err != nil {
		return err
	}
	return s.writeOutbox(ctx, tx, orig.UserID, "PayoutCompleted", map[string]interface{}{
		"user_id": orig.UserID, "amount": orig.Amount.Abs(), "tx": orig.ID,
	})
}

// EnsureWallet creates the zero wallet row if absent (first verification).
func (s *WalletService) EnsureWallet(ctx context.Context, userID string) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.repo.GetWalletForUpdate(ctx, tx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.repo.CreateWallet(ctx, tx, &model.Wallet{UserID: userID, Balance: decimal.Zero})
		}
		return err
	})
}

// GetBalance returns current wallet balance, cache first.
func (s *WalletService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, userID)
	if err == nil {
		return bal, nil
	}
	var w model.Wallet
	if err := s.repo.DB(ctx).Where("user_id=?", userID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, userID, w.Balance); err != nil {
		s.log.Warn(err)
	}
	return w.Balance, nil
}

// GetHistory fetches recent transactions.
func (s *WalletService) GetHistory(ctx context.Context, userID string, limit int, since time.Time) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := s.repo.DB(ctx).
		Where("user_id=? AND created_at>=?", userID, since).
		Order("created_at asc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (s *WalletService) writeOutbox(ctx context.Context, tx *gorm.DB, userID, eventType string, payload map[string]interface{}) error {
	b, _ := json.Marshal(payload)
	return s.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
		Aggregate:   "Wallet",
		AggregateID: userID,
		EventType:   eventType,
		Payload:     string(b),
	})
}

// Repo exposes underlying repository (unit tests helper).
func (s *WalletService) Repo() repo.RepositoryInterface {
	return s.repo
}
