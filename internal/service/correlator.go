package service

import (
	"context"

	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/greenloop/recycle-wallet/internal/payout"
	"gorm.io/gorm"
)

// PayoutOutcome describes what a payout result did to the ledger.
type PayoutOutcome string

const (
	// PayoutFinalized means the matched pending withdrawal was completed.
	PayoutFinalized PayoutOutcome = "finalized"
	// PayoutRefunded means the gateway reported failure and the reserved
	// funds were returned.
	PayoutRefunded PayoutOutcome = "refunded"
	// PayoutUnmatched means no pending withdrawal matched. Duplicate and
	// late callbacks land here; it is a benign no-op, never an error.
	PayoutUnmatched PayoutOutcome = "unmatched"
)

// ResolvePayout correlates a normalized payout result with the pending
// withdrawal it belongs to and drives that one transaction to a terminal
// state. Candidates are scanned oldest first and the first exact-amount
// match wins; match and resolve happen inside a single DB transaction so
// two concurrent callbacks cannot resolve the same row twice.
func (s *WalletService) ResolvePayout(ctx context.Context, res *payout.Result) (PayoutOutcome, error) {
	if res == nil || (res.Phone == "" && res.UserID == "") {
		return PayoutUnmatched, payout.ErrMalformedCallback
	}

	outcome := PayoutUnmatched
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			cands []model.Transaction
			err   error
		)
		if res.Phone != "" {
			cands, err = s.repo.PendingWithdrawalsByPhone(ctx, tx, res.Phone)
		} else {
			cands, err = s.repo.PendingWithdrawalsByUser(ctx, tx, res.UserID)
		}
		if err != nil {
			return err
		}

		for i := range cands {
			if !cands[i].Amount.Abs().Equal(res.Amount) {
				continue
			}
			if res.Success {
				meta := map[string]interface{}{"receipt": res.Receipt}
				if err := s.finalizeTx(ctx, tx, cands[i].ID, meta); err != nil {
					return err
				}
				outcome = PayoutFinalized
			} else {
				if _, err := s.refundTx(ctx, tx, cands[i].ID); err != nil {
					return err
				}
				outcome = PayoutRefunded
			}
			s.log.Infow("payout resolved",
				"tx", cands[i].ID, "user_id", cands[i].UserID, "outcome", outcome)
			return nil
		}

		s.log.Infow("payout callback unmatched",
			"phone", res.Phone, "user_id", res.UserID, "amount", res.Amount)
		return nil
	})
	if err != nil {
		return PayoutUnmatched, err
	}
	return outcome, nil
}
