package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/greenloop/recycle-wallet/internal/config"
	"github.com/greenloop/recycle-wallet/internal/logger"
	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/greenloop/recycle-wallet/internal/pricing"
	"github.com/greenloop/recycle-wallet/internal/repo"
	"github.com/greenloop/recycle-wallet/internal/service"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.ProcessedEvent{},
		&model.MaterialPrice{}, &model.OutboxEvent{},
	))

	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	prices := pricing.NewTable(db, rdb, log)
	svc := service.NewWalletService(repository, prices, log)

	// the payout gateway and otp store are not touched by these routes
	h := NewHandler(svc, nil, nil, log)
	return NewRouter(h, config.RateLimitConfig{RPS: 100, Burst: 100}, log)
}

func TestB2CResult_MalformedCallbackIs400(t *testing.T) {
	router := newTestRouter(t)

	for _, body := range []string{
		`not json`,
		`{"something":"else"}`,
		`{"Result":{"ResultCode":0}}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/b2c/result", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestB2CResult_UnmatchedCallbackIs200(t *testing.T) {
	router := newTestRouter(t)

	body := `{"Result":{"ResultCode":0,"ResultParameters":{"ResultParameter":[
		{"Key":"TransactionAmount","Value":50},
		{"Key":"ReceiverPartyPublicName","Value":"tel:254711111111"}
	]}}}`
	req := httptest.NewRequest(http.MethodPost, "/b2c/result", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "B2C result processed", w.Body.String())
}
