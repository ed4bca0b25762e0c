package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
)

// TextGenerator produces free-form text. Satisfied by the LLM client.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, usePro bool, temperature float64) (string, error)
}

// RecommendationText writes the 3-4 sentence advisory attached to an
// alert. LLM failures fall back to a deterministic template so alerts are
// never blocked on the vendor.
func RecommendationText(ctx context.Context, gen TextGenerator, alert *models.Alert, alternates []models.AlternateRec, company *models.CompanyProfile) string {
	if gen != nil {
		text, err := gen.GenerateText(ctx, recommendationPrompt(alert, alternates, company), false, 0.5)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		log.Warn().Err(err).Str("alert_id", alert.ID).Msg("recommendation generation failed, using template")
	}
	return TemplateRecommendation(alert, alternates)
}

// TemplateRecommendation is the deterministic fallback advisory.
func TemplateRecommendation(alert *models.Alert, alternates []models.AlternateRec) string {
	if len(alternates) == 0 {
		return fmt.Sprintf(
			"This %s priority risk requires immediate attention. "+
				"No pre-qualified alternates are available. "+
				"Recommend emergency supplier sourcing and increasing inventory buffer.",
			alert.SeverityBand)
	}
	top := alternates[0]
	return fmt.Sprintf(
		"This %s priority risk requires immediate attention. "+
			"We recommend engaging %s as an alternate supplier, "+
			"with a score of %.2f/10 and %d-week lead time. "+
			"Begin qualification process immediately to mitigate supply disruption risk.",
		alert.SeverityBand, top.Name, top.Score, top.LeadTimeWeeks)
}

func recommendationPrompt(alert *models.Alert, alternates []models.AlternateRec, company *models.CompanyProfile) string {
	var alts strings.Builder
	for i, alt := range alternates {
		if i == 3 {
			break
		}
		approved := "No"
		if alt.ApprovedVendor {
			approved = "Yes"
		}
		fmt.Fprintf(&alts, "  %d. %s (%s) - Score: %.2f/10, Lead time: %d weeks, Approved: %s\n",
			i+1, alt.Name, alt.Country, alt.Score, alt.LeadTimeWeeks, approved)
	}

	return fmt.Sprintf(`You are a supply chain advisor for %s.

ALERT DETAILS:
- Title: %s
- Risk Score: %.2f (%s)
- Affected Supplier: %s
- Affected Material: %s

TOP ALTERNATE SUPPLIERS:
%s
Write a concise (3-4 sentences) recommendation for the supply chain manager.
Include:
1. Urgency level and immediate action needed
2. Top recommended supplier and why
3. Risk mitigation strategy

Use professional but direct language. No bullet points - write flowing sentences.`,
		company.CompanyName,
		alert.Title,
		alert.RiskScore, strings.ToUpper(string(alert.SeverityBand)),
		alert.AffectedSupplier,
		alert.AffectedMaterial,
		alts.String())
}
