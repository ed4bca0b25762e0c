package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/chainwatch/internal/models"
)

func company() *models.CompanyProfile {
	return &models.CompanyProfile{
		ID:          "company_nayara_energy",
		CompanyName: "Nayara Energy",
		MaterialCriticality: map[string]int{
			"LPG":       5,
			"crude oil": 10,
		},
		InventoryDays: map[string]int{
			"LPG":       10,
			"crude oil": 15,
		},
	}
}

func TestBandBoundaries(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score float64
		want  models.Severity
	}{
		{14.25, models.SeverityCritical},
		{10.0, models.SeverityCritical},
		{9.99, models.SeverityHigh},
		{6.0, models.SeverityHigh},
		{5.99, models.SeverityMedium},
		{3.0, models.SeverityMedium},
		{2.99, models.SeverityLow},
		{0.0, models.SeverityLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.Band(tc.score), "score %.2f", tc.score)
	}
}

func TestCriticalPipelineDisruption(t *testing.T) {
	// Single-source supplier delivering 100% of LPG; confirmed critical
	// event with immediate horizon.
	supplier := &models.Supplier{
		ID:              "sup-1",
		Name:            "Gulf Gas Logistics",
		Supplies:        []string{"LPG"},
		SupplyVolumePct: 100,
		IsSingleSource:  true,
		Status:          models.StatusActive,
	}
	ev := &models.RiskEvent{
		Severity:    models.SeverityCritical,
		IsConfirmed: models.ConfirmedTrue,
		TimeHorizon: models.HorizonImmediate,
	}

	res := Score(ev, supplier, company(), nil, DefaultThresholds())

	require.InDelta(t, 0.95, res.Components.Probability, 1e-9)
	require.InDelta(t, 3.75, res.Components.Impact, 1e-9)
	require.InDelta(t, 2.0, res.Components.Urgency, 1e-9)
	require.InDelta(t, 0.5, res.Components.Mitigation, 1e-9)
	assert.InDelta(t, 14.25, res.Score, 1e-9)
	assert.Equal(t, models.SeverityCritical, res.Band)
}

func TestLowSeverityAbundantAlternates(t *testing.T) {
	supplier := &models.Supplier{
		ID:              "sup-1",
		Name:            "Desert Crude Traders",
		Supplies:        []string{"crude oil"},
		SupplyVolumePct: 35,
		Status:          models.StatusActive,
	}
	catalog := []models.Supplier{*supplier}
	for i := 0; i < 3; i++ {
		catalog = append(catalog, models.Supplier{
			ID:       fmt.Sprintf("alt-%d", i),
			Supplies: []string{"Crude Oil"}, // material match is case-insensitive
			Status:   models.StatusAlternate,
		})
	}
	ev := &models.RiskEvent{
		Severity:    models.SeverityLow,
		IsConfirmed: models.ConfirmedTrue,
		TimeHorizon: models.HorizonMonths,
	}

	res := Score(ev, supplier, company(), catalog, DefaultThresholds())

	require.InDelta(t, 0.25, res.Components.Probability, 1e-9)
	require.InDelta(t, 2.33, res.Components.Impact, 1e-9)
	require.InDelta(t, 0.5, res.Components.Urgency, 1e-9)
	require.InDelta(t, 1.6, res.Components.Mitigation, 1e-9)
	assert.InDelta(t, 0.18, res.Score, 1e-9)
	assert.Equal(t, models.SeverityLow, res.Band)
}

func TestConfirmationDiscountsProbability(t *testing.T) {
	supplier := &models.Supplier{ID: "s", Supplies: []string{"LPG"}, SupplyVolumePct: 50, Status: models.StatusActive}
	base := &models.RiskEvent{Severity: models.SeverityHigh, TimeHorizon: models.HorizonWeeks}

	for _, tc := range []struct {
		confirmed models.Confirmation
		want      float64
	}{
		{models.ConfirmedTrue, 0.80},
		{models.ConfirmedUncertain, 0.56},
		{models.ConfirmedFalse, 0.24},
	} {
		ev := *base
		ev.IsConfirmed = tc.confirmed
		res := Score(&ev, supplier, company(), nil, DefaultThresholds())
		assert.InDelta(t, tc.want, res.Components.Probability, 1e-9, "confirmed=%s", tc.confirmed)
	}
}

func TestComponentRangesHold(t *testing.T) {
	// Sweep severities, horizons, confirmations and supplier shapes; the
	// documented component ranges must hold everywhere.
	severities := []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow}
	horizons := []models.TimeHorizon{models.HorizonImmediate, models.HorizonDays, models.HorizonWeeks, models.HorizonMonths}
	confirmations := []models.Confirmation{models.ConfirmedTrue, models.ConfirmedFalse, models.ConfirmedUncertain}
	volumes := []float64{0, 1, 35, 50, 100}
	alternates := []int{0, 1, 3, 7, 12}

	for _, sev := range severities {
		for _, hor := range horizons {
			for _, conf := range confirmations {
				for _, vol := range volumes {
					for _, alts := range alternates {
						supplier := &models.Supplier{
							ID:              "s",
							Supplies:        []string{"LPG"},
							SupplyVolumePct: vol,
							Status:          models.StatusActive,
						}
						catalog := []models.Supplier{*supplier}
						for i := 0; i < alts; i++ {
							catalog = append(catalog, models.Supplier{
								ID:       fmt.Sprintf("a%d", i),
								Supplies: []string{"LPG"},
								Status:   models.StatusActive,
							})
						}
						ev := &models.RiskEvent{Severity: sev, IsConfirmed: conf, TimeHorizon: hor}
						res := Score(ev, supplier, company(), catalog, DefaultThresholds())

						c := res.Components
						assert.GreaterOrEqual(t, c.Probability, 0.0)
						assert.LessOrEqual(t, c.Probability, 1.0)
						assert.GreaterOrEqual(t, c.Impact, 1.0)
						assert.LessOrEqual(t, c.Impact, 10.0)
						assert.GreaterOrEqual(t, c.Mitigation, 0.5)
						assert.LessOrEqual(t, c.Mitigation, 2.0)
						assert.GreaterOrEqual(t, c.Urgency, 0.5)
						assert.LessOrEqual(t, c.Urgency, 2.0)
						assert.GreaterOrEqual(t, res.Score, 0.0)
					}
				}
			}
		}
	}
}

func TestCountAlternatesSubtractsDisruptedSource(t *testing.T) {
	catalog := []models.Supplier{
		{ID: "disrupted", Supplies: []string{"LPG"}, Status: models.StatusActive},
		{ID: "a", Supplies: []string{"LPG"}, Status: models.StatusActive},
		{ID: "b", Supplies: []string{"lpg"}, Status: models.StatusPreQualified},
		{ID: "c", Supplies: []string{"LPG"}, Status: models.StatusInactive},
		{ID: "d", Supplies: []string{"LPG"}, Status: models.StatusAtRisk},
		{ID: "e", Supplies: []string{"naphtha"}, Status: models.StatusActive},
	}
	assert.Equal(t, 2, CountAlternates("LPG", catalog))
	assert.Equal(t, 0, CountAlternates("missing", catalog))
}

func TestMitigationWhenDisruptedSupplierUnavailable(t *testing.T) {
	// An at_risk supplier no longer counts as an available source, but the
	// one-source subtraction still applies: 3 available - 1 = 2 alternates.
	supplier := &models.Supplier{
		ID:              "sup-1",
		Name:            "Gulf Gas Logistics",
		Supplies:        []string{"LPG"},
		SupplyVolumePct: 40,
		Status:          models.StatusAtRisk,
	}
	catalog := []models.Supplier{*supplier}
	for i := 0; i < 3; i++ {
		catalog = append(catalog, models.Supplier{
			ID:       fmt.Sprintf("alt-%d", i),
			Supplies: []string{"LPG"},
			Status:   models.StatusActive,
		})
	}
	ev := &models.RiskEvent{
		Severity:    models.SeverityMedium,
		IsConfirmed: models.ConfirmedTrue,
		TimeHorizon: models.HorizonWeeks,
	}

	res := Score(ev, supplier, company(), catalog, DefaultThresholds())

	assert.InDelta(t, 1.4, res.Components.Mitigation, 1e-9)
}

func TestClampComponents(t *testing.T) {
	c := models.ScoreComponents{Probability: 1.4, Impact: 0.2, Urgency: 3.0, Mitigation: 0.1}
	assert.True(t, ClampComponents(&c))
	assert.InDelta(t, 1.0, c.Probability, 1e-9)
	assert.InDelta(t, 1.0, c.Impact, 1e-9)
	assert.InDelta(t, 2.0, c.Urgency, 1e-9)
	assert.InDelta(t, 0.5, c.Mitigation, 1e-9)

	ok := models.ScoreComponents{Probability: 0.5, Impact: 5, Urgency: 1.0, Mitigation: 1.2}
	assert.False(t, ClampComponents(&ok))
}
