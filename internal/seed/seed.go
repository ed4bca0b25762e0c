// Package seed loads the demo tenant: the Nayara Energy company profile,
// its supplier catalog, and optional sample risk events and alerts for
// dashboard demos.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
)

// CompanyID is the demo tenant id.
const CompanyID = "company_nayara_energy"

// Store is the write surface seeding needs.
type Store interface {
	UpsertCompany(ctx context.Context, c *models.CompanyProfile) error
	UpsertSupplier(ctx context.Context, sup *models.Supplier) error
	UpsertRiskEvent(ctx context.Context, ev *models.RiskEvent) error
	UpsertAlert(ctx context.Context, a *models.Alert) error
}

// Company returns the demo company profile.
func Company() *models.CompanyProfile {
	now := time.Now().UTC()
	return &models.CompanyProfile{
		ID:             CompanyID,
		CompanyName:    "Nayara Energy",
		Industry:       "Oil Refining",
		RawMaterials:   []string{"crude oil", "naphtha", "LPG"},
		KeyGeographies: []string{"Russia", "UAE", "India", "USA"},
		InventoryDays: map[string]int{
			"crude oil": 15,
			"naphtha":   7,
			"LPG":       10,
		},
		MaterialCriticality: map[string]int{
			"crude oil": 10,
			"naphtha":   6,
			"LPG":       5,
		},
		AlertContacts: []models.AlertContact{
			{Name: "Rajesh Kumar", Email: "rajesh.kumar@nayaraenergy.com", Role: "Supply Chain Manager"},
			{Name: "Priya Sharma", Email: "priya.sharma@nayaraenergy.com", Role: "VP Operations"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Suppliers returns the demo catalog: two active tier-1 crude suppliers
// and four alternates in varying qualification states.
func Suppliers() []models.Supplier {
	return []models.Supplier{
		{
			ID: "supplier_rosneft", CompanyID: CompanyID,
			Name: "Rosneft", Country: "Russia", Region: "Eastern Europe",
			Tier: 1, Supplies: []string{"crude oil"}, SupplyVolumePct: 65.0,
			Status: models.StatusActive, ApprovedVendor: true, PreQualified: true,
			ESGScore: 42, FinancialHealthScore: 5.8,
			MaxCapacity: 50000, LeadTimeWeeks: 3, SwitchingCostEstimate: 7.5,
			UpstreamSuppliers: []models.UpstreamSupplier{
				{Name: "Siberian Oil Fields", Country: "Russia", SupplyVolumePct: 100},
			},
		},
		{
			ID: "supplier_adnoc", CompanyID: CompanyID,
			Name: "ADNOC", Country: "UAE", Region: "Middle East",
			Tier: 1, Supplies: []string{"crude oil"}, SupplyVolumePct: 35.0,
			Status: models.StatusActive, ApprovedVendor: true, PreQualified: true,
			ESGScore: 68, FinancialHealthScore: 8.2,
			MaxCapacity: 30000, LeadTimeWeeks: 2, SwitchingCostEstimate: 4.0,
		},
		{
			ID: "supplier_saudi_aramco", CompanyID: CompanyID,
			Name: "Saudi Aramco", Country: "Saudi Arabia", Region: "Middle East",
			Tier: 1, Supplies: []string{"crude oil"},
			Status: models.StatusAlternate, ApprovedVendor: true,
			ESGScore: 65, FinancialHealthScore: 8.9,
			MaxCapacity: 60000, LeadTimeWeeks: 3, SwitchingCostEstimate: 5.5,
		},
		{
			ID: "supplier_ongc", CompanyID: CompanyID,
			Name: "ONGC", Country: "India", Region: "South Asia",
			Tier: 1, Supplies: []string{"crude oil"},
			Status: models.StatusAlternate, ApprovedVendor: true, PreQualified: true,
			ESGScore: 72, FinancialHealthScore: 7.1,
			MaxCapacity: 20000, LeadTimeWeeks: 1, SwitchingCostEstimate: 3.0,
		},
		{
			ID: "supplier_bp", CompanyID: CompanyID,
			Name: "BP", Country: "United Kingdom", Region: "Western Europe",
			Tier: 1, Supplies: []string{"crude oil", "naphtha"},
			Status: models.StatusPreQualified, PreQualified: true,
			ESGScore: 78, FinancialHealthScore: 7.8,
			MaxCapacity: 40000, LeadTimeWeeks: 4, SwitchingCostEstimate: 6.0,
		},
		{
			ID: "supplier_shell", CompanyID: CompanyID,
			Name: "Shell", Country: "Netherlands", Region: "Western Europe",
			Tier: 1, Supplies: []string{"crude oil", "LPG"},
			Status: models.StatusPreQualified, PreQualified: true,
			ESGScore: 76, FinancialHealthScore: 8.3,
			MaxCapacity: 45000, LeadTimeWeeks: 4, SwitchingCostEstimate: 5.8,
		},
	}
}

// Seed writes the company profile and supplier catalog. Re-running
// overwrites the previous demo data.
func Seed(ctx context.Context, docs Store) error {
	if err := docs.UpsertCompany(ctx, Company()); err != nil {
		return fmt.Errorf("seed company: %w", err)
	}
	suppliers := Suppliers()
	for i := range suppliers {
		if err := docs.UpsertSupplier(ctx, &suppliers[i]); err != nil {
			return fmt.Errorf("seed supplier %s: %w", suppliers[i].ID, err)
		}
	}
	log.Info().Int("suppliers", len(suppliers)).Str("company", "Nayara Energy").Msg("database seeded")
	return nil
}

type sampleRisk struct {
	id       string
	riskType models.RiskType
	severity models.Severity
	horizon  models.TimeHorizon
	node     string
	entities []string
	reason   string
	action   string
	score    float64
}

var sampleRisks = []sampleRisk{
	{
		id: "sample_risk_export_restrictions", riskType: models.RiskGeopolitical,
		severity: models.SeverityHigh, horizon: models.HorizonDays,
		node:     "Rosneft",
		entities: []string{"Rosneft", "Russia", "crude oil"},
		reason:   "Russian export restrictions directly cut crude oil volumes from the primary supplier.",
		action:   "Activate alternate supplier agreements with Middle Eastern producers.",
		score:    8.5,
	},
	{
		id: "sample_risk_price_surge", riskType: models.RiskFinancial,
		severity: models.SeverityMedium, horizon: models.HorizonDays,
		node:     "ADNOC",
		entities: []string{"crude oil", "Saudi Arabia", "Iran"},
		reason:   "Gulf tensions pushed crude to $92 per barrel, pressuring procurement costs.",
		action:   "Review hedging strategies and consider locking in next quarter supplies.",
		score:    6.5,
	},
	{
		id: "sample_risk_emission_rules", riskType: models.RiskRegulatory,
		severity: models.SeverityMedium, horizon: models.HorizonMonths,
		node:     "ONGC",
		entities: []string{"India", "Nayara Energy"},
		reason:   "Stricter emission standards require refinery equipment upgrades by year-end.",
		action:   "Initiate compliance assessment and budget the upgrade program.",
		score:    5.0,
	},
	{
		id: "sample_risk_pipeline_halt", riskType: models.RiskOperational,
		severity: models.SeverityCritical, horizon: models.HorizonImmediate,
		node:     "Shell",
		entities: []string{"LPG", "pipeline", "transportation"},
		reason:   "Pipeline failure halted LPG shipments from the primary source.",
		action:   "Activate the emergency supply protocol and contact alternate LPG suppliers.",
		score:    9.2,
	},
	{
		id: "sample_risk_ruble_volatility", riskType: models.RiskFinancial,
		severity: models.SeverityLow, horizon: models.HorizonWeeks,
		node:     "Rosneft",
		entities: []string{"Russia", "Rosneft", "currency"},
		reason:   "Ruble volatility creates pricing uncertainty in existing supply contracts.",
		action:   "Monitor currency trends and review hedging positions monthly.",
		score:    3.5,
	},
}

// SampleData fabricates demo risk events and alerts so a fresh deployment
// has something on the dashboard. Events above the alert threshold get a
// matching alert.
func SampleData(ctx context.Context, docs Store, alertThreshold float64) error {
	now := time.Now().UTC()
	alerts := 0

	for i, sample := range sampleRisks {
		ev := &models.RiskEvent{
			ID:                       "risk_" + sample.id,
			ArticleID:                "article_" + sample.id,
			CompanyID:                CompanyID,
			Timestamp:                now.Add(-time.Duration(i+1) * 4 * time.Hour),
			RiskType:                 sample.riskType,
			AffectedEntities:         sample.entities,
			AffectedSupplyChainNodes: []string{sample.node},
			Severity:                 sample.severity,
			IsConfirmed:              models.ConfirmedTrue,
			TimeHorizon:              sample.horizon,
			Reasoning:                sample.reason,
			RecommendedAction:        sample.action,
			RiskScore:                sample.score,
			SeverityBand:             sample.severity,
			CreatedAt:                now,
		}
		if err := docs.UpsertRiskEvent(ctx, ev); err != nil {
			return fmt.Errorf("sample risk event %s: %w", ev.ID, err)
		}

		if sample.score < alertThreshold {
			continue
		}
		alert := &models.Alert{
			ID:               "alert_" + ev.ID,
			RiskEventID:      ev.ID,
			CompanyID:        CompanyID,
			SeverityBand:     sample.severity,
			RiskScore:        sample.score,
			Title:            fmt.Sprintf("%s risk affecting %s", sample.riskType, sample.node),
			Description:      sample.reason,
			AffectedSupplier: sample.node,
			AffectedMaterial: "crude oil",
			CreatedAt:        now,
		}
		if err := docs.UpsertAlert(ctx, alert); err != nil {
			return fmt.Errorf("sample alert %s: %w", alert.ID, err)
		}
		alerts++
	}

	log.Info().Int("risk_events", len(sampleRisks)).Int("alerts", alerts).Msg("sample data created")
	return nil
}
