package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/chainwatch/chainwatch/internal/models"
)

const maxEmailAlternates = 3

var severityColor = map[models.Severity]string{
	models.SeverityCritical: "#DC2626",
	models.SeverityHigh:     "#EA580C",
	models.SeverityMedium:   "#F59E0B",
	models.SeverityLow:      "#10B981",
}

// EmailNotifier sends alert emails through SendGrid.
type EmailNotifier struct {
	apiKey string
	from   string
	to     string
	host   string
}

// NewEmailNotifier returns nil when no API key is configured.
func NewEmailNotifier(apiKey, from, to string) *EmailNotifier {
	if apiKey == "" {
		return nil
	}
	return &EmailNotifier{apiKey: apiKey, from: from, to: to}
}

// SetHost overrides the SendGrid API host, used in tests.
func (e *EmailNotifier) SetHost(host string) { e.host = host }

// Send delivers the alert email.
func (e *EmailNotifier) Send(ctx context.Context, alert *models.Alert) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.SeverityBand)), alert.Title)
	message := mail.NewSingleEmail(
		mail.NewEmail("ChainWatch Alerts", e.from),
		subject,
		mail.NewEmail("", e.to),
		plainBody(alert),
		HTMLBody(alert),
	)

	req := sendgrid.GetRequest(e.apiKey, "/v3/mail/send", e.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: HTTP %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// HTMLBody renders the alert email body.
func HTMLBody(alert *models.Alert) string {
	color, ok := severityColor[alert.SeverityBand]
	if !ok {
		color = "#F59E0B"
	}

	var alternates strings.Builder
	if len(alert.Recommendations) > 0 {
		alternates.WriteString("<h3>Top Alternate Suppliers</h3><ul>")
		for i, alt := range alert.Recommendations {
			if i == maxEmailAlternates {
				break
			}
			approved := "Not approved"
			if alt.ApprovedVendor {
				approved = "Approved"
			}
			fmt.Fprintf(&alternates, "<li><strong>%s</strong> (%s) - Score: %.2f/10, Lead time: %d weeks, %s</li>",
				alt.Name, alt.Country, alt.Score, alt.LeadTimeWeeks, approved)
		}
		alternates.WriteString("</ul>")
	}

	recommendation := ""
	if alert.RecommendationText != "" {
		recommendation = fmt.Sprintf("<h3>Recommendation</h3><p>%s</p>", alert.RecommendationText)
	}

	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
  <div style="border-left: 4px solid %s; padding-left: 20px;">
    <h1 style="color: %s;">%s</h1>
    <p><strong>Severity:</strong> %s</p>
    <p><strong>Risk Score:</strong> %.2f</p>
    <p><strong>Affected Supplier:</strong> %s</p>
    <p><strong>Affected Material:</strong> %s</p>
    <h3>Description</h3>
    <p>%s</p>
    %s
    %s
  </div>
  <hr style="margin-top: 30px;">
  <p style="color: #666; font-size: 12px;">
    ChainWatch Supply Chain Risk Analysis | Generated: %s
  </p>
</body>
</html>`,
		color, color, alert.Title,
		strings.ToUpper(string(alert.SeverityBand)),
		alert.RiskScore,
		alert.AffectedSupplier,
		alert.AffectedMaterial,
		alert.Description,
		alternates.String(),
		recommendation,
		alert.CreatedAt.UTC().Format(time.RFC3339))
}

func plainBody(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nSeverity: %s\nRisk Score: %.2f\nSupplier: %s\nMaterial: %s\n\n%s\n",
		alert.Title,
		strings.ToUpper(string(alert.SeverityBand)),
		alert.RiskScore,
		alert.AffectedSupplier,
		alert.AffectedMaterial,
		alert.Description)
	if alert.RecommendationText != "" {
		fmt.Fprintf(&b, "\nRecommendation: %s\n", alert.RecommendationText)
	}
	return b.String()
}
