// Package notify fans alerts out to the configured channels: a Slack
// incoming webhook and a SendGrid email. Channels are independent; the
// alert counts as notified when at least one delivery succeeds.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/chainwatch/chainwatch/internal/models"
)

const maxSlackAlternates = 3

var severityEmoji = map[models.Severity]string{
	models.SeverityCritical: ":rotating_light:",
	models.SeverityHigh:     ":warning:",
	models.SeverityMedium:   ":zap:",
	models.SeverityLow:      ":information_source:",
}

// SlackNotifier posts alerts to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier returns nil when no webhook URL is configured.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert message to the webhook.
func (s *SlackNotifier) Send(ctx context.Context, alert *models.Alert) error {
	if err := goslack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, WebhookMessage(alert)); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

// WebhookMessage builds the Block Kit payload for one alert.
func WebhookMessage(alert *models.Alert) *goslack.WebhookMessage {
	emoji, ok := severityEmoji[alert.SeverityBand]
	if !ok {
		emoji = ":zap:"
	}

	blocks := []goslack.Block{
		goslack.NewHeaderBlock(
			goslack.NewTextBlockObject(goslack.PlainTextType, fmt.Sprintf("%s %s", emoji, alert.Title), true, false),
		),
		goslack.NewSectionBlock(nil, []*goslack.TextBlockObject{
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Severity:*\n%s", strings.ToUpper(string(alert.SeverityBand))), false, false),
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Risk Score:*\n%.2f", alert.RiskScore), false, false),
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Supplier:*\n%s", alert.AffectedSupplier), false, false),
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Material:*\n%s", alert.AffectedMaterial), false, false),
		}, nil),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Description:*\n%s", alert.Description), false, false),
			nil, nil,
		),
	}

	if len(alert.Recommendations) > 0 {
		var b strings.Builder
		b.WriteString("*Top Alternates:*\n")
		for i, alt := range alert.Recommendations {
			if i == maxSlackAlternates {
				break
			}
			fmt.Fprintf(&b, "%d. *%s* (%s) - Score: %.2f/10, Lead: %dw\n",
				i+1, alt.Name, alt.Country, alt.Score, alt.LeadTimeWeeks)
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, b.String(), false, false),
			nil, nil,
		))
	}

	if alert.RecommendationText != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Recommendation:*\n%s", alert.RecommendationText), false, false),
			nil, nil,
		))
	}

	return &goslack.WebhookMessage{
		Text:   fmt.Sprintf("%s Supply Chain Risk Alert", emoji),
		Blocks: &goslack.Blocks{BlockSet: blocks},
	}
}
