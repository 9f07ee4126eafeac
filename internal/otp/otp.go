package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/greenloop/recycle-wallet/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrTooManyRequests means the per-phone send throttle tripped.
	ErrTooManyRequests = errors.New("too many verification requests")
	// ErrTooManyAttempts means the code has been guessed too often.
	ErrTooManyAttempts = errors.New("too many verification attempts")
)

// Notifier delivers a verification code to a phone. Delivery (SMS gateway
// choice, templates) is someone else's concern.
type Notifier interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Store keeps verification codes and throttle counters in Redis with TTLs,
// so every service instance sees the same state. No process-local maps.
type Store struct {
	rdb      *redis.Client
	notifier Notifier
	cfg      config.OTPConfig
	log      *zap.SugaredLogger
}

func NewStore(rdb *redis.Client, notifier Notifier, cfg config.OTPConfig, log *zap.SugaredLogger) *Store {
	return &Store{rdb: rdb, notifier: notifier, cfg: cfg, log: log}
}

func codeKey(phone string) string     { return fmt.Sprintf("otp:code:%s", phone) }
func sendKey(phone string) string     { return fmt.Sprintf("otp:sends:%s", phone) }
func attemptsKey(phone string) string { return fmt.Sprintf("otp:attempts:%s", phone) }

// Send issues a fresh 6-digit code for phone and hands it to the notifier.
// At most MaxSendPerHour sends per phone per hour.
func (s *Store) Send(ctx context.Context, phone string) error {
	n, err := s.rdb.Incr(ctx, sendKey(phone)).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, sendKey(phone), time.Hour).Err(); err != nil {
			s.log.Warnf("expire send counter %s: %v", phone, err)
		}
	}
	if n > int64(s.cfg.MaxSendPerHour) {
		return ErrTooManyRequests
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	ttl := time.Duration(s.cfg.TTLSeconds) * time.Second
	if err := s.rdb.Set(ctx, codeKey(phone), code, ttl).Err(); err != nil {
		return err
	}
	// reset guess counter alongside the new code
	if err := s.rdb.Del(ctx, attemptsKey(phone)).Err(); err != nil {
		s.log.Warnf("reset attempts %s: %v", phone, err)
	}
	return s.notifier.SendCode(ctx, phone, code)
}

// Verify checks code against the stored one. Returns false (not an error)
// for a wrong or expired code; the code is consumed on success.
func (s *Store) Verify(ctx context.Context, phone, code string) (bool, error) {
	n, err := s.rdb.Incr(ctx, attemptsKey(phone)).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		ttl := time.Duration(s.cfg.TTLSeconds) * time.Second
		if err := s.rdb.Expire(ctx, attemptsKey(phone), ttl).Err(); err != nil {
			s.log.Warnf("expire attempts %s: %v", phone, err)
		}
	}
	if n > int64(s.cfg.MaxAttempts) {
		return false, ErrTooManyAttempts
	}

	stored, err := s.rdb.Get(ctx, codeKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}
	if err := s.rdb.Del(ctx, codeKey(phone)).Err(); err != nil {
		s.log.Warnf("consume code %s: %v", phone, err)
	}
	return true, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
