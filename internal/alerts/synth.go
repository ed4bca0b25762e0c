// Package alerts composes alert documents from scored risk events.
package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/chainwatch/chainwatch/internal/models"
)

// DefaultThreshold is the minimum risk score that produces an alert.
const DefaultThreshold = 3.0

// maxDescriptionEntities caps the entity list appended to descriptions.
const maxDescriptionEntities = 5

// ShouldAlert applies the alert gate: score at or above threshold and at
// least one affected supply chain node.
func ShouldAlert(ev *models.RiskEvent, threshold float64) bool {
	return ev.RiskScore >= threshold && len(ev.AffectedSupplyChainNodes) > 0
}

// Title renders "<Risk Type> Risk: <supplier>".
func Title(ev *models.RiskEvent) string {
	riskType := titleCase(strings.ReplaceAll(string(ev.RiskType), "_", " "))
	affected := "Supply Chain"
	if len(ev.AffectedSupplyChainNodes) > 0 {
		affected = ev.AffectedSupplyChainNodes[0]
	}
	return fmt.Sprintf("%s Risk: %s", riskType, affected)
}

// Description joins the LLM reasoning with the leading affected entities.
func Description(ev *models.RiskEvent) string {
	desc := ev.Reasoning
	if desc == "" {
		desc = "Supply chain disruption detected"
	}
	if len(ev.AffectedEntities) > 0 {
		entities := ev.AffectedEntities
		if len(entities) > maxDescriptionEntities {
			entities = entities[:maxDescriptionEntities]
		}
		desc += fmt.Sprintf(" Affected entities: %s.", strings.Join(entities, ", "))
	}
	return desc
}

// Build assembles an alert document for a risk event that passed the gate.
// The id is derived from the risk event so retried deliveries upsert the
// same alert.
func Build(ev *models.RiskEvent, supplier *models.Supplier, alternates []models.AlternateRec) *models.Alert {
	material := "unknown"
	affectedSupplier := "Unknown"
	if len(ev.AffectedSupplyChainNodes) > 0 {
		affectedSupplier = ev.AffectedSupplyChainNodes[0]
	}
	if supplier != nil {
		affectedSupplier = supplier.Name
		material = supplier.PrimaryMaterial()
	}

	return &models.Alert{
		ID:               AlertID(ev.ID),
		RiskEventID:      ev.ID,
		CompanyID:        ev.CompanyID,
		SeverityBand:     ev.SeverityBand,
		RiskScore:        ev.RiskScore,
		Title:            Title(ev),
		Description:      Description(ev),
		AffectedSupplier: affectedSupplier,
		AffectedMaterial: material,
		Recommendations:  alternates,
		CreatedAt:        time.Now().UTC(),
	}
}

// AlertID derives the deterministic alert id for a risk event.
func AlertID(riskEventID string) string {
	return "alert_" + riskEventID
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
