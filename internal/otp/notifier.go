package otp

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier logs codes instead of sending them. Stand-in for the SMS
// gateway in development and tests.
type LogNotifier struct {
	Log *zap.SugaredLogger
}

func (n LogNotifier) SendCode(ctx context.Context, phone, code string) error {
	n.Log.Infof("otp for %s: %s", phone, code)
	return nil
}
