package pricing

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/greenloop/recycle-wallet/internal/logger"
	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestTable_PricePerKg(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pricing?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.MaterialPrice{}))
	assert.NoError(t, db.Create(&model.MaterialPrice{
		Material: "Plastics", PricePerKg: decimal.NewFromInt(5),
	}).Error)

	// cache misses fall through to the table; cache writes are best-effort
	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger()
	table := NewTable(db, rdb, log)
	ctx := context.Background()

	price, err := table.PricePerKg(ctx, "Plastics")
	assert.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(5)))

	_, err = table.PricePerKg(ctx, "Unobtaniums")
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestTable_ServesFromCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet("price:Glass").SetVal("3.50")

	log, _ := logger.NewLogger()
	table := NewTable(nil, rdb, log)

	price, err := table.PricePerKg(context.Background(), "Glass")
	assert.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(3.5)))
}
