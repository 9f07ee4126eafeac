package repo

import (
	"context"
	"testing"

	"github.com/greenloop/recycle-wallet/internal/logger"
	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestOptimisticLock_StaleVersionLosesCAS(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:optlock?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Wallet{}))

	// seed wallet
	assert.NoError(t, db.Create(&model.Wallet{UserID: "u1", Balance: decimal.NewFromInt(100)}).Error)

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	// one read, two writers holding the same stale version: exactly one
	// CAS may land
	var w model.Wallet
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&w).Error)

	errs := make([]error, 2)
	for i := range errs {
		errs[i] = db.Transaction(func(tx *gorm.DB) error {
			return repo.UpdateWallet(ctx, tx, "u1",
				map[string]interface{}{"balance": w.Balance.Add(decimal.NewFromInt(10))}, w.Version)
		})
	}
	assert.NoError(t, errs[0])
	assert.EqualError(t, errs[1], "optimistic lock conflict")

	var final model.Wallet
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&final).Error)
	assert.True(t, final.Balance.Equal(decimal.NewFromInt(110)),
		"stale writer must not apply: got %s", final.Balance)
	assert.EqualValues(t, w.Version+1, final.Version)
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
