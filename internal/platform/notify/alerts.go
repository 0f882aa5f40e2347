package notify

import (
	"context"
	"fmt"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/metrics"
	"github.com/rgdevment/sms-firewall/internal/service"
	"go.uber.org/zap"
)

// SubscriberSource lists who receives bulk alerts.
type SubscriberSource interface {
	ListSubscribers(ctx context.Context, region string) ([]*domain.Subscriber, error)
}

// SubscriberAlerter texts every active subscriber when something gets
// blocked, and on demand for detected campaigns.
type SubscriberAlerter struct {
	subs   SubscriberSource
	sender service.MessageSender
	logger *zap.Logger
}

func NewSubscriberAlerter(subs SubscriberSource, sender service.MessageSender, logger *zap.Logger) *SubscriberAlerter {
	return &SubscriberAlerter{subs: subs, sender: sender, logger: logger}
}

// Notify implements service.Notifier. Alerts that blocked nothing are ignored.
func (a *SubscriberAlerter) Notify(ctx context.Context, alert service.Alert) error {
	switch {
	case alert.PhoneBlocked && alert.Report != nil:
		return a.broadcast(ctx, service.FormatBlacklistNotice(domain.EntityPhone, alert.Report.OriginalSender.String()))
	case alert.URLBlocked:
		return a.broadcast(ctx, service.FormatBlacklistNotice(domain.EntityURL, alert.BlockedURL))
	}
	return nil
}

// SendCampaignAlert warns every subscriber about a detected campaign.
func (a *SubscriberAlerter) SendCampaignAlert(ctx context.Context, name string, affected int) error {
	return a.broadcast(ctx, service.FormatCampaignAlert(name, affected))
}

func (a *SubscriberAlerter) broadcast(ctx context.Context, msg string) error {
	subs, err := a.subs.ListSubscribers(ctx, "")
	if err != nil {
		return fmt.Errorf("notify: list subscribers: %w", err)
	}

	recipients := make([]domain.Phone, 0, len(subs))
	for _, s := range subs {
		if s.Active && s.Phone.Valid() {
			recipients = append(recipients, s.Phone)
		}
	}
	if len(recipients) == 0 {
		a.logger.Debug("no subscribers to alert")
		return nil
	}

	err = a.sender.Send(ctx, msg, recipients)
	metrics.RecordOutbound("bulk_sms", err == nil)
	if err != nil {
		return fmt.Errorf("notify: bulk alert: %w", err)
	}
	a.logger.Info("bulk alert sent", zap.Int("recipients", len(recipients)))
	return nil
}
