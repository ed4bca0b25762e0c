package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/config"
	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
)

// Channel labels for the notifications metric.
const (
	ChannelSlack = "slack"
	ChannelEmail = "email"
)

// ErrNoChannels is returned when no notification channel is configured or
// every configured channel failed. The alert stays unmarked so a later
// redelivery can retry.
var ErrNoChannels = errors.New("no notification channel delivered")

// Sender delivers an alert over one channel.
type Sender interface {
	Send(ctx context.Context, alert *models.Alert) error
}

// Notifier fans one alert out to every configured channel.
type Notifier struct {
	slack   Sender
	email   Sender
	metrics *metrics.Registry
}

// New builds the notifier from settings. Unconfigured channels are skipped
// with a warning at startup rather than per alert.
func New(cfg *config.Settings, reg *metrics.Registry) *Notifier {
	n := &Notifier{metrics: reg}
	if s := NewSlackNotifier(cfg.SlackWebhookURL); s != nil {
		n.slack = s
	} else {
		log.Warn().Msg("slack webhook URL not configured, skipping channel")
	}
	if e := NewEmailNotifier(cfg.SendgridAPIKey, cfg.NotificationEmailFrom, cfg.NotificationEmailTo); e != nil {
		n.email = e
	} else {
		log.Warn().Msg("sendgrid API key not configured, skipping channel")
	}
	return n
}

// NewWithSenders wires explicit channels, used in tests.
func NewWithSenders(slack, email Sender, reg *metrics.Registry) *Notifier {
	return &Notifier{slack: slack, email: email, metrics: reg}
}

// Notify sends the alert on every configured channel. It returns nil when
// at least one delivery succeeded.
func (n *Notifier) Notify(ctx context.Context, alert *models.Alert) error {
	delivered := false
	if n.slack != nil {
		if err := n.slack.Send(ctx, alert); err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("slack notification failed")
		} else {
			delivered = true
			n.metrics.NotificationsSent.WithLabelValues(ChannelSlack).Inc()
			log.Info().Str("alert_id", alert.ID).Msg("slack notification sent")
		}
	}
	if n.email != nil {
		if err := n.email.Send(ctx, alert); err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("email notification failed")
		} else {
			delivered = true
			n.metrics.NotificationsSent.WithLabelValues(ChannelEmail).Inc()
			log.Info().Str("alert_id", alert.ID).Msg("email notification sent")
		}
	}
	if !delivered {
		return ErrNoChannels
	}
	return nil
}
