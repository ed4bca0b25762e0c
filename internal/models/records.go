package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Stream names joining the pipeline stages.
const (
	StreamRawEvents        = "raw_events"
	StreamNormalizedEvents = "normalized_events"
	StreamRiskEntities     = "risk_entities"
	StreamRiskScores       = "risk_scores"
	StreamNewAlerts        = "new_alerts"
)

// Consumer group names are fixed across deployments.
const (
	GroupRiskExtraction  = "risk_extraction_group"
	GroupRiskScoring     = "risk_scoring_group"
	GroupAlertGeneration = "alert_generation_group"
)

// Stream records are flat key->string maps on the wire; complex values are
// JSON-encoded strings. Each record type below has a fixed schema.

// NormalizedEventRecord carries a validated, deduplicated article to the
// extraction stage.
type NormalizedEventRecord struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Headline  string    `json:"headline"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
}

// Fields flattens the record for the stream bus.
func (r NormalizedEventRecord) Fields() map[string]string {
	return map[string]string{
		"event_id":  r.EventID,
		"timestamp": r.Timestamp.UTC().Format(time.RFC3339),
		"source":    r.Source,
		"headline":  r.Headline,
		"body":      r.Body,
		"url":       r.URL,
	}
}

// NormalizedEventFromFields rebuilds the record from stream fields.
func NormalizedEventFromFields(f map[string]string) NormalizedEventRecord {
	ts, err := time.Parse(time.RFC3339, f["timestamp"])
	if err != nil {
		ts = time.Now().UTC()
	}
	return NormalizedEventRecord{
		EventID:   f["event_id"],
		Timestamp: ts,
		Source:    f["source"],
		Headline:  f["headline"],
		Body:      f["body"],
		URL:       f["url"],
	}
}

// Article converts the record back to its canonical document form.
func (r NormalizedEventRecord) Article() Article {
	return Article{
		EventID:   r.EventID,
		Timestamp: r.Timestamp,
		Source:    r.Source,
		Headline:  r.Headline,
		Body:      r.Body,
		URL:       r.URL,
	}
}

// RiskEntityRecord hands a freshly extracted risk event to the scoring stage.
type RiskEntityRecord struct {
	RiskEventID   string   `json:"risk_event_id"`
	RiskType      RiskType `json:"risk_type"`
	Severity      Severity `json:"severity"`
	AffectedNodes []string `json:"affected_nodes"`
}

func (r RiskEntityRecord) Fields() map[string]string {
	nodes, _ := json.Marshal(r.AffectedNodes)
	return map[string]string{
		"risk_event_id":  r.RiskEventID,
		"risk_type":      string(r.RiskType),
		"severity":       string(r.Severity),
		"affected_nodes": string(nodes),
	}
}

func RiskEntityFromFields(f map[string]string) RiskEntityRecord {
	var nodes []string
	_ = json.Unmarshal([]byte(f["affected_nodes"]), &nodes)
	return RiskEntityRecord{
		RiskEventID:   f["risk_event_id"],
		RiskType:      ParseRiskType(f["risk_type"]),
		Severity:      ParseSeverity(f["severity"]),
		AffectedNodes: nodes,
	}
}

// RiskScoreRecord hands a scored risk event to the alert stage.
type RiskScoreRecord struct {
	RiskEventID      string   `json:"risk_event_id"`
	RiskScore        float64  `json:"risk_score"`
	SeverityBand     Severity `json:"severity_band"`
	AffectedSupplier string   `json:"affected_supplier"`
}

func (r RiskScoreRecord) Fields() map[string]string {
	return map[string]string{
		"risk_event_id":     r.RiskEventID,
		"risk_score":        strconv.FormatFloat(r.RiskScore, 'f', 2, 64),
		"severity_band":     string(r.SeverityBand),
		"affected_supplier": r.AffectedSupplier,
	}
}

func RiskScoreFromFields(f map[string]string) RiskScoreRecord {
	score, _ := strconv.ParseFloat(f["risk_score"], 64)
	return RiskScoreRecord{
		RiskEventID:      f["risk_event_id"],
		RiskScore:        score,
		SeverityBand:     ParseSeverity(f["severity_band"]),
		AffectedSupplier: f["affected_supplier"],
	}
}

// NewAlertRecord announces a persisted alert for live consumers (dashboard
// websocket, notifier).
type NewAlertRecord struct {
	AlertID      string   `json:"alert_id"`
	SeverityBand Severity `json:"severity_band"`
	RiskScore    float64  `json:"risk_score"`
	Title        string   `json:"title"`
}

func (r NewAlertRecord) Fields() map[string]string {
	return map[string]string{
		"alert_id":      r.AlertID,
		"severity_band": string(r.SeverityBand),
		"risk_score":    strconv.FormatFloat(r.RiskScore, 'f', 2, 64),
		"title":         r.Title,
	}
}

func NewAlertFromFields(f map[string]string) NewAlertRecord {
	score, _ := strconv.ParseFloat(f["risk_score"], 64)
	return NewAlertRecord{
		AlertID:      f["alert_id"],
		SeverityBand: ParseSeverity(f["severity_band"]),
		RiskScore:    score,
		Title:        f["title"],
	}
}
