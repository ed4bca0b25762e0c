// Package recommend ranks alternate suppliers for a disrupted one and
// writes the human-readable recommendation attached to alerts.
package recommend

import (
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
)

// MaxAlternates caps the list attached to an alert.
const MaxAlternates = 5

// Factor weights. They sum to 1.0; the final score is scaled to 0-10.
const (
	weightGeo       = 0.20
	weightCapacity  = 0.25
	weightRelation  = 0.20
	weightESG       = 0.10
	weightFinancial = 0.10
	weightSwitching = 0.05
	weightLeadTime  = 0.10
)

// ScoreCandidate rates one candidate as a replacement for the disrupted
// supplier, with a per-factor breakdown.
func ScoreCandidate(candidate, disrupted *models.Supplier, requiredVolume float64) models.AlternateRec {
	geo := 0.3
	if candidate.Country != disrupted.Country {
		geo = 1.0
	}

	capacity := 0.5
	if candidate.MaxCapacity > 0 && requiredVolume > 0 {
		capacity = math.Min(candidate.MaxCapacity/requiredVolume, 1.0)
	}

	relationship := 0.4
	switch {
	case candidate.ApprovedVendor:
		relationship = 1.0
	case candidate.PreQualified:
		relationship = 0.8
	}

	esg := 0.5
	if candidate.ESGScore > 0 {
		esg = candidate.ESGScore / 100.0
	}

	financial := 0.5
	if candidate.FinancialHealthScore > 0 {
		financial = candidate.FinancialHealthScore / 10.0
	}

	switching := 1.0 - candidate.SwitchingCostEstimate/10.0

	leadTime := 1.0 / (1.0 + float64(candidate.LeadTimeWeeks)/4.0)

	score := (geo*weightGeo +
		capacity*weightCapacity +
		relationship*weightRelation +
		esg*weightESG +
		financial*weightFinancial +
		switching*weightSwitching +
		leadTime*weightLeadTime) * 10

	return models.AlternateRec{
		SupplierID:     candidate.ID,
		Name:           candidate.Name,
		Score:          round2(score),
		LeadTimeWeeks:  candidate.LeadTimeWeeks,
		ApprovedVendor: candidate.ApprovedVendor,
		Country:        candidate.Country,
		ScoreBreakdown: map[string]float64{
			"geographic_diversity": round2(geo),
			"capacity":             round2(capacity),
			"relationship":         round2(relationship),
			"esg":                  round2(esg),
			"financial":            round2(financial),
			"switching_cost":       round2(switching),
			"lead_time":            round2(leadTime),
		},
	}
}

// FindAlternates ranks catalog suppliers that can replace the disrupted
// one: same material, available status, not the disrupted supplier itself.
// Sorted by score descending; ties break on lead time ascending, then
// approved vendors first, then name.
func FindAlternates(disrupted *models.Supplier, catalog []models.Supplier, maxResults int) []models.AlternateRec {
	if maxResults <= 0 {
		maxResults = MaxAlternates
	}
	material := disrupted.PrimaryMaterial()
	requiredVolume := disrupted.SupplyVolumePct
	if requiredVolume <= 0 {
		requiredVolume = 50
	}

	var ranked []models.AlternateRec
	for i := range catalog {
		c := &catalog[i]
		if c.ID == disrupted.ID || c.CompanyID != disrupted.CompanyID || !c.Status.Available() {
			continue
		}
		if !supplies(c, material) {
			continue
		}
		ranked = append(ranked, ScoreCandidate(c, disrupted, requiredVolume))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LeadTimeWeeks != b.LeadTimeWeeks {
			return a.LeadTimeWeeks < b.LeadTimeWeeks
		}
		if a.ApprovedVendor != b.ApprovedVendor {
			return a.ApprovedVendor
		}
		return a.Name < b.Name
	})

	if len(ranked) == 0 {
		log.Warn().Str("material", material).Str("supplier", disrupted.Name).Msg("no alternate suppliers found")
		return nil
	}
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked
}

func supplies(s *models.Supplier, material string) bool {
	for _, m := range s.Supplies {
		if strings.EqualFold(m, material) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
