package sms

import (
	"context"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"go.uber.org/zap"
)

// Noop logs messages instead of sending them. Used when no gateway is
// configured.
type Noop struct {
	logger *zap.Logger
}

func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) Send(_ context.Context, message string, recipients []domain.Phone) error {
	n.logger.Info("sms not sent, no gateway configured",
		zap.Int("recipients", len(recipients)),
		zap.Int("length", len([]rune(message))),
	)
	return nil
}
