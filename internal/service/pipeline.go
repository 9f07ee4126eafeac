package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestStatusCompleted is the terminal status of a recycling request.
const RequestStatusCompleted = "completed"

// RequestSnapshot is the state of a recycling request before or after an
// update event.
type RequestSnapshot struct {
	Status    string           `json:"status"`
	UserID    string           `json:"userId"`
	Weight    *decimal.Decimal `json:"weight"`
	WasteType string           `json:"wasteType"`
}

// CompletionOutcomeKind classifies what ApplyCompletion did.
type CompletionOutcomeKind string

const (
	// OutcomeApplied means the credit was applied now.
	OutcomeApplied CompletionOutcomeKind = "applied"
	// OutcomeAlreadyProcessed means this requestID was credited earlier;
	// the duplicate delivery changed nothing.
	OutcomeAlreadyProcessed CompletionOutcomeKind = "already_processed"
	// OutcomeNoActionNeeded means the update was not a completion
	// transition (or lacked the fields to price it).
	OutcomeNoActionNeeded CompletionOutcomeKind = "no_action_needed"
)

// CompletionOutcome is the result of ApplyCompletion. Amount is set only
// for OutcomeApplied.
type CompletionOutcome struct {
	Kind   CompletionOutcomeKind
	Amount decimal.Decimal
}

// ErrMissingRequestID means the completion event carried no idempotency key.
var ErrMissingRequestID = errors.New("request id is required")

// ApplyCompletion consumes a recycling-request update and credits the user
// exactly once per requestID. Only a transition into completed with weight,
// user, and waste type present triggers a credit; reservation and credit
// share one DB transaction.
func (s *WalletService) ApplyCompletion(ctx context.Context, requestID string, before, after RequestSnapshot) (CompletionOutcome, error) {
	if requestID == "" {
		return CompletionOutcome{}, ErrMissingRequestID
	}
	if before.Status == RequestStatusCompleted || after.Status != RequestStatusCompleted {
		return CompletionOutcome{Kind: OutcomeNoActionNeeded}, nil
	}
	// normalize first so a whitespace-only waste type counts as absent
	material := NormalizeMaterial(after.WasteType)
	if after.UserID == "" || material == "" || after.Weight == nil || !after.Weight.IsPositive() {
		return CompletionOutcome{Kind: OutcomeNoActionNeeded}, nil
	}

	price, err := s.prices.PricePerKg(ctx, material)
	if err != nil {
		return CompletionOutcome{}, err
	}
	amount := after.Weight.Mul(price)
	if !amount.IsPositive() {
		return CompletionOutcome{Kind: OutcomeNoActionNeeded}, nil
	}

	outcome := CompletionOutcome{Kind: OutcomeApplied, Amount: amount}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		already, err := s.repo.ReserveEvent(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if already {
			outcome = CompletionOutcome{Kind: OutcomeAlreadyProcessed}
			return nil
		}
		_, err = s.creditTx(ctx, tx, after.UserID, amount, CreditMeta{
			RequestID: requestID,
			Weight:    *after.Weight,
		})
		return err
	})
	if err != nil {
		return CompletionOutcome{}, err
	}
	if outcome.Kind == OutcomeApplied {
		s.log.Infow("recycling credit applied",
			"request_id", requestID, "user_id", after.UserID,
			"material", material, "amount", amount)
	}
	return outcome, nil
}
