package service

import (
	"testing"

	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/greenloop/recycle-wallet/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func weight(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestApplyCompletion_EndToEnd(t *testing.T) {
	svc, ctx := newTestService(t)
	assert.NoError(t, svc.Repo().DB(ctx).Create(&model.MaterialPrice{
		Material: "Plastics", PricePerKg: decimal.NewFromInt(5),
	}).Error)

	before := RequestSnapshot{Status: "pending"}
	after := RequestSnapshot{Status: "completed", UserID: "u1", Weight: weight(10), WasteType: "plastic"}

	outcome, err := svc.ApplyCompletion(ctx, "req-1", before, after)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome.Kind)
	assert.Equal(t, "50", outcome.Amount.StringFixed(0))

	var w model.Wallet
	assert.NoError(t, svc.Repo().DB(ctx).Where("user_id = ?", "u1").First(&w).Error)
	assert.Equal(t, "50", w.Balance.StringFixed(0))
	assert.Equal(t, "10", w.RecycledWeight.StringFixed(0))
	assert.Equal(t, "0.2", w.PointsEarned.StringFixed(1))
	assert.Equal(t, "15", w.CO2Saved.StringFixed(0))

	// identical redelivery credits nothing
	outcome, err = svc.ApplyCompletion(ctx, "req-1", before, after)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome.Kind)

	assert.NoError(t, svc.Repo().DB(ctx).Where("user_id = ?", "u1").First(&w).Error)
	assert.Equal(t, "50", w.Balance.StringFixed(0))
	assert.Equal(t, "10", w.RecycledWeight.StringFixed(0))
}

func TestApplyCompletion_GuardClauses(t *testing.T) {
	svc, ctx := newTestService(t)

	done := RequestSnapshot{Status: "completed", UserID: "u1", Weight: weight(5), WasteType: "glass"}

	// not a completion transition
	outcome, err := svc.ApplyCompletion(ctx, "req-2", RequestSnapshot{Status: "pending"}, RequestSnapshot{Status: "assigned"})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeNoActionNeeded, outcome.Kind)

	// already completed before the update
	outcome, err = svc.ApplyCompletion(ctx, "req-3", done, done)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeNoActionNeeded, outcome.Kind)

	// missing weight
	outcome, err = svc.ApplyCompletion(ctx, "req-4", RequestSnapshot{Status: "pending"},
		RequestSnapshot{Status: "completed", UserID: "u1", WasteType: "glass"})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeNoActionNeeded, outcome.Kind)

	// whitespace-only waste type counts as absent, not as an unpriced material
	outcome, err = svc.ApplyCompletion(ctx, "req-4b", RequestSnapshot{Status: "pending"},
		RequestSnapshot{Status: "completed", UserID: "u1", Weight: weight(5), WasteType: "   "})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeNoActionNeeded, outcome.Kind)

	// missing request id
	_, err = svc.ApplyCompletion(ctx, "", RequestSnapshot{Status: "pending"}, done)
	assert.ErrorIs(t, err, ErrMissingRequestID)

	// nothing was written
	var n int64
	assert.NoError(t, svc.Repo().DB(ctx).Model(&model.Wallet{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestApplyCompletion_PriceMissingAbortsCleanly(t *testing.T) {
	svc, ctx := newTestService(t)

	outcome, err := svc.ApplyCompletion(ctx, "req-5", RequestSnapshot{Status: "pending"},
		RequestSnapshot{Status: "completed", UserID: "u1", Weight: weight(3), WasteType: "unobtanium"})
	assert.ErrorIs(t, err, pricing.ErrPriceNotFound)
	assert.Equal(t, CompletionOutcome{}, outcome)

	// the event was not reserved, so a retry after the price is loaded works
	var n int64
	assert.NoError(t, svc.Repo().DB(ctx).Model(&model.ProcessedEvent{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)

	assert.NoError(t, svc.Repo().DB(ctx).Create(&model.MaterialPrice{
		Material: "Unobtaniums", PricePerKg: decimal.NewFromInt(2),
	}).Error)
	res, err := svc.ApplyCompletion(ctx, "req-5", RequestSnapshot{Status: "pending"},
		RequestSnapshot{Status: "completed", UserID: "u1", Weight: weight(3), WasteType: "unobtanium"})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Kind)
	assert.Equal(t, "6", res.Amount.StringFixed(0))
}
