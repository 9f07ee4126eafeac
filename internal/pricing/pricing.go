package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPriceNotFound means no rate exists for a material; the caller must not
// apply a partial credit.
var ErrPriceNotFound = errors.New("price not found for material")

// Lookup is the read-only view the credit pipeline needs.
type Lookup interface {
	PricePerKg(ctx context.Context, material string) (decimal.Decimal, error)
}

// Table serves material rates from the price table with a Redis
// read-through cache. The table itself is owned by the pricing admin
// tooling; this side only reads.
type Table struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewTable(db *gorm.DB, rdb *redis.Client, log *zap.SugaredLogger) *Table {
	return &Table{db: db, rdb: rdb, log: log}
}

func (t *Table) PricePerKg(ctx context.Context, material string) (decimal.Decimal, error) {
	key := fmt.Sprintf("price:%s", material)
	if str, err := t.rdb.Get(ctx, key).Result(); err == nil {
		if d, perr := decimal.NewFromString(str); perr == nil {
			return d, nil
		}
	}

	var row model.MaterialPrice
	err := t.db.WithContext(ctx).Where("material = ?", material).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, ErrPriceNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	if err := t.rdb.Set(ctx, key, row.PricePerKg.String(), 10*time.Minute).Err(); err != nil {
		t.log.Warnf("cache price %s: %v", material, err)
	}
	return row.PricePerKg, nil
}
