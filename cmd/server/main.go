package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/greenloop/recycle-wallet/internal/config"
	"github.com/greenloop/recycle-wallet/internal/logger"
	"github.com/greenloop/recycle-wallet/internal/model"
	"github.com/greenloop/recycle-wallet/internal/otp"
	"github.com/greenloop/recycle-wallet/internal/payout"
	"github.com/greenloop/recycle-wallet/internal/pricing"
	"github.com/greenloop/recycle-wallet/internal/repo"
	"github.com/greenloop/recycle-wallet/internal/service"
	httptransport "github.com/greenloop/recycle-wallet/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. env + config
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.ProcessedEvent{},
		&model.MaterialPrice{}, &model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, kw, log)
	prices := pricing.NewTable(gdb, rdb, log)
	svc := service.NewWalletService(repository, prices, log)
	gateway := payout.NewClient(cfg.Payout, log)
	otpStore := otp.NewStore(rdb, otp.LogNotifier{Log: log}, cfg.OTP, log)

	// 7. gin router
	handler := httptransport.NewHandler(svc, gateway, otpStore, log)
	router := httptransport.NewRouter(handler, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("recycle-wallet server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
