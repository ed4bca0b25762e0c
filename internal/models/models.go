// Package models defines the canonical documents flowing through the risk
// pipeline: company profile, supplier catalog, articles, risk events, alerts
// and reports.
package models

import "time"

// RiskType classifies a risk event.
type RiskType string

const (
	RiskGeopolitical    RiskType = "geopolitical"
	RiskNaturalDisaster RiskType = "natural_disaster"
	RiskFinancial       RiskType = "financial"
	RiskRegulatory      RiskType = "regulatory"
	RiskOperational     RiskType = "operational"
	RiskCybersecurity   RiskType = "cybersecurity"
	RiskESG             RiskType = "esg"
	RiskOther           RiskType = "other"
)

// ParseRiskType maps an LLM-provided label to a known risk type.
// Unknown labels collapse to RiskOther rather than failing the record.
func ParseRiskType(s string) RiskType {
	switch RiskType(s) {
	case RiskGeopolitical, RiskNaturalDisaster, RiskFinancial, RiskRegulatory,
		RiskOperational, RiskCybersecurity, RiskESG:
		return RiskType(s)
	default:
		return RiskOther
	}
}

// Severity is both the LLM's original label and the scorer-derived band.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity defaults unknown labels to medium, the scorer's neutral row.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(s)
	default:
		return SeverityMedium
	}
}

// Confirmation is the LLM's assessment of whether the event is confirmed.
type Confirmation string

const (
	ConfirmedTrue      Confirmation = "true"
	ConfirmedFalse     Confirmation = "false"
	ConfirmedUncertain Confirmation = "uncertain"
)

// ParseConfirmation defaults unknown labels to uncertain.
func ParseConfirmation(s string) Confirmation {
	switch Confirmation(s) {
	case ConfirmedTrue, ConfirmedFalse:
		return Confirmation(s)
	default:
		return ConfirmedUncertain
	}
}

// TimeHorizon is the expected window before a risk materializes.
type TimeHorizon string

const (
	HorizonImmediate TimeHorizon = "immediate"
	HorizonDays      TimeHorizon = "days"
	HorizonWeeks     TimeHorizon = "weeks"
	HorizonMonths    TimeHorizon = "months"
)

// ParseTimeHorizon defaults unknown labels to weeks (urgency 1.0).
func ParseTimeHorizon(s string) TimeHorizon {
	switch TimeHorizon(s) {
	case HorizonImmediate, HorizonDays, HorizonWeeks, HorizonMonths:
		return TimeHorizon(s)
	default:
		return HorizonWeeks
	}
}

// SupplierStatus is the operational status of a supplier.
type SupplierStatus string

const (
	StatusActive       SupplierStatus = "active"
	StatusAlternate    SupplierStatus = "alternate"
	StatusPreQualified SupplierStatus = "pre_qualified"
	StatusInactive     SupplierStatus = "inactive"
	StatusAtRisk       SupplierStatus = "at_risk"
)

// Available reports whether a supplier in this status can be used as an
// alternate source.
func (s SupplierStatus) Available() bool {
	return s == StatusActive || s == StatusAlternate || s == StatusPreQualified
}

// AlertContact is a person notified when alerts fire.
type AlertContact struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	Role  string `json:"role" bson:"role"`
}

// CompanyProfile drives all risk analysis. One per deployment tenant.
type CompanyProfile struct {
	ID                  string         `json:"id" bson:"_id"`
	CompanyName         string         `json:"company_name" bson:"company_name"`
	Industry            string         `json:"industry" bson:"industry"`
	RawMaterials        []string       `json:"raw_materials" bson:"raw_materials"`
	KeyGeographies      []string       `json:"key_geographies" bson:"key_geographies"`
	InventoryDays       map[string]int `json:"inventory_days" bson:"inventory_days"`
	MaterialCriticality map[string]int `json:"material_criticality" bson:"material_criticality"`
	AlertContacts       []AlertContact `json:"alert_contacts" bson:"alert_contacts"`
	CreatedAt           time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" bson:"updated_at"`
}

// UpstreamSupplier is a tier-2+ supplier declared inline on its tier-1
// dependent. Upstreams become graph nodes but are not catalog suppliers.
type UpstreamSupplier struct {
	Name            string  `json:"name" bson:"name"`
	Country         string  `json:"country" bson:"country"`
	SupplyVolumePct float64 `json:"supply_volume_pct" bson:"supply_volume_pct"`
}

// Supplier is one node of the supplier catalog.
type Supplier struct {
	ID              string         `json:"id" bson:"_id"`
	CompanyID       string         `json:"company_id" bson:"company_id"`
	Name            string         `json:"name" bson:"name"`
	Country         string         `json:"country" bson:"country"`
	Region          string         `json:"region" bson:"region"`
	Tier            int            `json:"tier" bson:"tier"`
	Supplies        []string       `json:"supplies" bson:"supplies"`
	SupplyVolumePct float64        `json:"supply_volume_pct" bson:"supply_volume_pct"`
	Status          SupplierStatus `json:"status" bson:"status"`
	ApprovedVendor  bool           `json:"approved_vendor" bson:"approved_vendor"`
	PreQualified    bool           `json:"pre_qualified" bson:"pre_qualified"`
	IsSingleSource  bool           `json:"is_single_source" bson:"is_single_source"`

	ESGScore              float64 `json:"esg_score" bson:"esg_score"`
	FinancialHealthScore  float64 `json:"financial_health_score" bson:"financial_health_score"`
	SwitchingCostEstimate float64 `json:"switching_cost_estimate" bson:"switching_cost_estimate"`
	MaxCapacity           float64 `json:"max_capacity" bson:"max_capacity"`
	LeadTimeWeeks         int     `json:"lead_time_weeks" bson:"lead_time_weeks"`
	RiskScoreCurrent      float64 `json:"risk_score_current" bson:"risk_score_current"`

	UpstreamSuppliers []UpstreamSupplier `json:"upstream_suppliers,omitempty" bson:"upstream_suppliers,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// PrimaryMaterial returns the first material this supplier provides, or
// "unknown" when the catalog entry declares none.
func (s *Supplier) PrimaryMaterial() string {
	if len(s.Supplies) == 0 {
		return "unknown"
	}
	return s.Supplies[0]
}

// Article is one normalized news item entering the pipeline.
type Article struct {
	ID                string    `json:"id" bson:"_id"`
	EventID           string    `json:"event_id" bson:"event_id"`
	Timestamp         time.Time `json:"timestamp" bson:"timestamp"`
	Source            string    `json:"source" bson:"source"`
	Headline          string    `json:"headline" bson:"headline"`
	Body              string    `json:"body" bson:"body"`
	URL               string    `json:"url" bson:"url"`
	EntitiesMentioned []string  `json:"entities_mentioned" bson:"entities_mentioned"`
	RawRelevanceScore float64   `json:"raw_relevance_score" bson:"raw_relevance_score"`
	Processed         bool      `json:"processed" bson:"processed"`
	RiskExtracted     bool      `json:"risk_extracted" bson:"risk_extracted"`
	RiskEventID       string    `json:"risk_event_id,omitempty" bson:"risk_event_id,omitempty"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// ScoreComponents is the breakdown of the risk score formula.
type ScoreComponents struct {
	Probability float64 `json:"probability" bson:"probability"`
	Impact      float64 `json:"impact" bson:"impact"`
	Urgency     float64 `json:"urgency" bson:"urgency"`
	Mitigation  float64 `json:"mitigation" bson:"mitigation"`
}

// RiskEvent is the structured, scored artifact produced from an Article.
// Severity is the LLM's original label; SeverityBand is derived from the
// numeric score by the scorer. Both are persisted.
type RiskEvent struct {
	ID        string    `json:"id" bson:"_id"`
	ArticleID string    `json:"article_id" bson:"article_id"`
	CompanyID string    `json:"company_id" bson:"company_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	RiskType                 RiskType `json:"risk_type" bson:"risk_type"`
	AffectedEntities         []string `json:"affected_entities" bson:"affected_entities"`
	AffectedSupplyChainNodes []string `json:"affected_supply_chain_nodes" bson:"affected_supply_chain_nodes"`

	Severity    Severity     `json:"severity" bson:"severity"`
	IsConfirmed Confirmation `json:"is_confirmed" bson:"is_confirmed"`
	TimeHorizon TimeHorizon  `json:"time_horizon" bson:"time_horizon"`

	Reasoning         string `json:"reasoning" bson:"reasoning"`
	RecommendedAction string `json:"recommended_action,omitempty" bson:"recommended_action,omitempty"`

	RiskScoreComponents ScoreComponents `json:"risk_score_components" bson:"risk_score_components"`
	RiskScore           float64         `json:"risk_score" bson:"risk_score"`
	SeverityBand        Severity        `json:"severity_band" bson:"severity_band"`

	Propagation map[string]float64 `json:"propagation" bson:"propagation"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// AlternateRec is one ranked alternate-supplier recommendation on an alert.
type AlternateRec struct {
	SupplierID     string             `json:"supplier_id" bson:"supplier_id"`
	Name           string             `json:"name" bson:"name"`
	Score          float64            `json:"score" bson:"score"`
	LeadTimeWeeks  int                `json:"lead_time_weeks" bson:"lead_time_weeks"`
	ApprovedVendor bool               `json:"approved_vendor" bson:"approved_vendor"`
	Country        string             `json:"country" bson:"country"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown" bson:"score_breakdown"`
}

// Alert is the actionable artifact surfaced to decision makers.
type Alert struct {
	ID          string `json:"id" bson:"_id"`
	RiskEventID string `json:"risk_event_id" bson:"risk_event_id"`
	CompanyID   string `json:"company_id" bson:"company_id"`

	SeverityBand Severity `json:"severity_band" bson:"severity_band"`
	RiskScore    float64  `json:"risk_score" bson:"risk_score"`
	Title        string   `json:"title" bson:"title"`
	Description  string   `json:"description" bson:"description"`

	AffectedSupplier string `json:"affected_supplier" bson:"affected_supplier"`
	AffectedMaterial string `json:"affected_material" bson:"affected_material"`

	Recommendations    []AlternateRec `json:"recommendations" bson:"recommendations"`
	RecommendationText string         `json:"recommendation_text,omitempty" bson:"recommendation_text,omitempty"`

	IsAcknowledged bool       `json:"is_acknowledged" bson:"is_acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty" bson:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" bson:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`

	NotificationSent   bool       `json:"notification_sent" bson:"notification_sent"`
	NotificationSentAt *time.Time `json:"notification_sent_at,omitempty" bson:"notification_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// ReportType distinguishes scheduled from on-demand reports.
type ReportType string

const (
	ReportDaily    ReportType = "daily"
	ReportWeekly   ReportType = "weekly"
	ReportOnDemand ReportType = "on_demand"
)

// Report is a generated summary persisted for the dashboard.
type Report struct {
	ID            string     `json:"id" bson:"_id"`
	Type          ReportType `json:"type" bson:"type"`
	Content       string     `json:"content" bson:"content"`
	GeneratedAt   time.Time  `json:"generated_at" bson:"generated_at"`
	PeriodStart   time.Time  `json:"period_start" bson:"period_start"`
	PeriodEnd     time.Time  `json:"period_end" bson:"period_end"`
	AlertCount    int        `json:"alert_count" bson:"alert_count"`
	CriticalCount int        `json:"critical_count" bson:"critical_count"`
}
