// Package scoring computes the multi-factor risk score:
// (probability × impact × urgency) / mitigation.
package scoring

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
)

// Thresholds are the band cut-offs applied to the final score.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// DefaultThresholds returns the standard bands: >=10 critical, >=6 high,
// >=3 medium, else low.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 10.0, High: 6.0, Medium: 3.0}
}

// Band maps a numeric score to its severity band.
func (t Thresholds) Band(score float64) models.Severity {
	switch {
	case score >= t.Critical:
		return models.SeverityCritical
	case score >= t.High:
		return models.SeverityHigh
	case score >= t.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Result is the outcome of scoring one risk event against one supplier.
type Result struct {
	Score      float64
	Band       models.Severity
	Components models.ScoreComponents
}

var probabilityBySeverity = map[models.Severity]float64{
	models.SeverityCritical: 0.95,
	models.SeverityHigh:     0.80,
	models.SeverityMedium:   0.55,
	models.SeverityLow:      0.25,
}

var urgencyByHorizon = map[models.TimeHorizon]float64{
	models.HorizonImmediate: 2.0,
	models.HorizonDays:      1.5,
	models.HorizonWeeks:     1.0,
	models.HorizonMonths:    0.5,
}

// Score computes the risk score for an event attributed to the given
// supplier. The catalog is used to count alternate sources for the
// supplier's primary material. Pure: no I/O, same inputs same outputs.
func Score(ev *models.RiskEvent, supplier *models.Supplier, company *models.CompanyProfile, catalog []models.Supplier, t Thresholds) Result {
	probability := probabilityBySeverity[ev.Severity]
	if probability == 0 {
		probability = probabilityBySeverity[models.SeverityMedium]
	}
	switch ev.IsConfirmed {
	case models.ConfirmedUncertain:
		probability *= 0.7
	case models.ConfirmedFalse:
		probability *= 0.3
	}

	material := supplier.PrimaryMaterial()
	impact := impactFor(supplier, company, material)

	urgency, ok := urgencyByHorizon[ev.TimeHorizon]
	if !ok {
		urgency = 1.0
	}

	mitigation := mitigationFor(supplier, material, catalog)

	score := round2(probability * impact * urgency / mitigation)
	band := t.Band(score)

	log.Debug().
		Float64("probability", probability).
		Float64("impact", impact).
		Float64("urgency", urgency).
		Float64("mitigation", mitigation).
		Float64("score", score).
		Str("band", string(band)).
		Str("supplier", supplier.Name).
		Msg("risk scored")

	return Result{
		Score: score,
		Band:  band,
		Components: models.ScoreComponents{
			Probability: round3(probability),
			Impact:      round2(impact),
			Urgency:     urgency,
			Mitigation:  mitigation,
		},
	}
}

// impactFor combines dependency ratio, material criticality and inventory
// buffer into a 1-10 impact.
func impactFor(supplier *models.Supplier, company *models.CompanyProfile, material string) float64 {
	dependency := supplier.SupplyVolumePct / 100.0

	criticality := 5.0
	if c, ok := company.MaterialCriticality[material]; ok {
		criticality = float64(c)
	}

	inventoryDays := 0.0
	if d, ok := company.InventoryDays[material]; ok {
		inventoryDays = float64(d)
	}
	buffer := 1.0 / (1.0 + inventoryDays/30.0)

	impact := dependency * (criticality / 10.0) * buffer * 10.0
	return clamp(impact, 1.0, 10.0)
}

// mitigationFor rewards available alternate sources: 1.0 + 0.2 per
// alternate, capped at 2.0. Single-source suppliers force the worst-case
// 0.5 divisor.
func mitigationFor(supplier *models.Supplier, material string, catalog []models.Supplier) float64 {
	if supplier.IsSingleSource {
		return 0.5
	}
	n := CountAlternates(material, catalog)
	return 1.0 + math.Min(float64(n)*0.2, 1.0)
}

// CountAlternates counts available suppliers offering the material, minus
// one for the disrupted source. The subtraction is unconditional even when
// the disrupted supplier is itself unavailable or lists other materials.
func CountAlternates(material string, catalog []models.Supplier) int {
	count := 0
	for i := range catalog {
		s := &catalog[i]
		if !s.Status.Available() {
			continue
		}
		for _, m := range s.Supplies {
			if strings.EqualFold(m, material) {
				count++
				break
			}
		}
	}
	if count == 0 {
		return 0
	}
	return count - 1
}

// ClampComponents forces score components back into their documented
// ranges. Returns true when anything was out of band, which callers treat
// as an invariant violation (panic in development, log-and-clamp in
// production).
func ClampComponents(c *models.ScoreComponents) bool {
	violated := false
	if c.Mitigation < 0.5 || c.Mitigation > 2.0 {
		c.Mitigation = clamp(c.Mitigation, 0.5, 2.0)
		violated = true
	}
	if c.Probability < 0.0 || c.Probability > 1.0 {
		c.Probability = clamp(c.Probability, 0.0, 1.0)
		violated = true
	}
	if c.Impact < 1.0 || c.Impact > 10.0 {
		c.Impact = clamp(c.Impact, 1.0, 10.0)
		violated = true
	}
	if c.Urgency < 0.5 || c.Urgency > 2.0 {
		c.Urgency = clamp(c.Urgency, 0.5, 2.0)
		violated = true
	}
	return violated
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
