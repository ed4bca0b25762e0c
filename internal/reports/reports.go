// Package reports generates the daily, weekly and custom risk reports.
// Each report pairs a deterministic digest built from store queries with an
// optional LLM narrative; when the LLM is unavailable the digest alone is
// the report body.
package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/graph"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/store"
)

const (
	maxDigestEvents = 200
	topRiskCount    = 5
)

// Store is the query surface the generator needs.
type Store interface {
	RiskEventsSince(ctx context.Context, companyID string, since time.Time, limit int64) ([]models.RiskEvent, error)
	Alerts(ctx context.Context, f store.AlertFilter) ([]models.Alert, error)
	UpsertReport(ctx context.Context, r *models.Report) error
}

// TextGenerator produces the narrative sections. Satisfied by the LLM
// client; nil disables narratives.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, usePro bool, temperature float64) (string, error)
}

// SnapshotProvider supplies the catalog for the weekly structure section.
// Nil skips the section.
type SnapshotProvider interface {
	Snapshot() *store.Snapshot
}

// Generator builds and persists reports.
type Generator struct {
	store     Store
	generator TextGenerator
	catalog   SnapshotProvider
	companyID string
	company   string
	now       func() time.Time
}

// New wires the report generator.
func New(docs Store, gen TextGenerator, catalog SnapshotProvider, companyID, companyName string) *Generator {
	return &Generator{store: docs, generator: gen, catalog: catalog, companyID: companyID, company: companyName, now: time.Now}
}

// Daily builds the 24-hour report. The report id is derived from the date
// so a re-run replaces that day's report instead of duplicating it.
func (g *Generator) Daily(ctx context.Context) (*models.Report, error) {
	now := g.now().UTC()
	since := now.Add(-24 * time.Hour)

	events, alerts, err := g.window(ctx, since)
	if err != nil {
		return nil, err
	}

	digest := g.digest("Daily Supply Chain Risk Report", since, now, events, alerts)
	content := g.narrate(ctx, digest, false)

	report := &models.Report{
		ID:            fmt.Sprintf("report_daily_%s", now.Format("20060102")),
		Type:          models.ReportDaily,
		Content:       content,
		GeneratedAt:   now,
		PeriodStart:   since,
		PeriodEnd:     now,
		AlertCount:    len(alerts),
		CriticalCount: countBand(alerts, models.SeverityCritical),
	}
	return report, g.save(ctx, report)
}

// Weekly builds the 7-day report with a per-risk-type trend section.
func (g *Generator) Weekly(ctx context.Context) (*models.Report, error) {
	now := g.now().UTC()
	since := now.Add(-7 * 24 * time.Hour)

	events, alerts, err := g.window(ctx, since)
	if err != nil {
		return nil, err
	}

	digest := g.digest("Weekly Supply Chain Risk Report", since, now, events, alerts) +
		"\n" + trendSection(events)
	if g.catalog != nil {
		digest += "\n" + structureSection(g.catalog.Snapshot())
	}
	content := g.narrate(ctx, digest, true)

	year, week := now.ISOWeek()
	report := &models.Report{
		ID:            fmt.Sprintf("report_weekly_%d_%02d", year, week),
		Type:          models.ReportWeekly,
		Content:       content,
		GeneratedAt:   now,
		PeriodStart:   since,
		PeriodEnd:     now,
		AlertCount:    len(alerts),
		CriticalCount: countBand(alerts, models.SeverityCritical),
	}
	return report, g.save(ctx, report)
}

// Custom answers each free-form query as its own section. Queries are
// answered by the LLM against the current 7-day digest.
func (g *Generator) Custom(ctx context.Context, queries []string) (*models.Report, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("custom report needs at least one query")
	}
	now := g.now().UTC()
	since := now.Add(-7 * 24 * time.Hour)

	events, alerts, err := g.window(ctx, since)
	if err != nil {
		return nil, err
	}
	digest := g.digest("Custom Supply Chain Report", since, now, events, alerts)

	var b strings.Builder
	fmt.Fprintf(&b, "# Custom Supply Chain Report - %s\n", now.Format("January 2, 2006 at 15:04 UTC"))
	for i, query := range queries {
		fmt.Fprintf(&b, "\n## Section %d: %s\n\n", i+1, query)
		answer := g.answer(ctx, digest, query)
		b.WriteString(answer)
		b.WriteString("\n")
	}

	report := &models.Report{
		ID:            "report_custom_" + uuid.NewString(),
		Type:          models.ReportOnDemand,
		Content:       b.String(),
		GeneratedAt:   now,
		PeriodStart:   since,
		PeriodEnd:     now,
		AlertCount:    len(alerts),
		CriticalCount: countBand(alerts, models.SeverityCritical),
	}
	return report, g.save(ctx, report)
}

func (g *Generator) window(ctx context.Context, since time.Time) ([]models.RiskEvent, []models.Alert, error) {
	events, err := g.store.RiskEventsSince(ctx, g.companyID, since, maxDigestEvents)
	if err != nil {
		return nil, nil, fmt.Errorf("load risk events: %w", err)
	}
	alerts, err := g.store.Alerts(ctx, store.AlertFilter{CompanyID: g.companyID, Since: since, Limit: maxDigestEvents})
	if err != nil {
		return nil, nil, fmt.Errorf("load alerts: %w", err)
	}
	return events, alerts, nil
}

func (g *Generator) save(ctx context.Context, report *models.Report) error {
	if err := g.store.UpsertReport(ctx, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	log.Info().Str("report_id", report.ID).Str("type", string(report.Type)).
		Int("alerts", report.AlertCount).Msg("report generated")
	return nil
}

// digest is the deterministic report skeleton: headline counts, top risks
// by score and unacknowledged alerts.
func (g *Generator) digest(title string, since, until time.Time, events []models.RiskEvent, alerts []models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s - %s\n\n", title, until.Format("January 2, 2006"))
	fmt.Fprintf(&b, "Company: %s\nPeriod: %s to %s\n\n",
		g.company, since.Format("2006-01-02 15:04"), until.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "## Summary\n\n- Risk events: %d\n- Alerts raised: %d\n- Critical alerts: %d\n\n",
		len(events), len(alerts), countBand(alerts, models.SeverityCritical))

	if len(events) > 0 {
		sorted := make([]models.RiskEvent, len(events))
		copy(sorted, events)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].RiskScore > sorted[j].RiskScore })

		b.WriteString("## Top Risks\n\n")
		for i, ev := range sorted {
			if i == topRiskCount {
				break
			}
			fmt.Fprintf(&b, "%d. [%s] %s (score %.2f) affecting %s\n",
				i+1, strings.ToUpper(string(ev.SeverityBand)), ev.RiskType, ev.RiskScore,
				strings.Join(ev.AffectedSupplyChainNodes, ", "))
		}
		b.WriteString("\n")
	}

	open := 0
	for _, a := range alerts {
		if !a.IsAcknowledged {
			open++
		}
	}
	fmt.Fprintf(&b, "## Alerts\n\n- Unacknowledged: %d of %d\n", open, len(alerts))
	return b.String()
}

// trendSection groups the week's events by risk type, busiest first.
func trendSection(events []models.RiskEvent) string {
	if len(events) == 0 {
		return "## Risk Trend\n\nNo risk events this period.\n"
	}
	counts := make(map[models.RiskType]int)
	for _, ev := range events {
		counts[ev.RiskType]++
	}
	types := make([]models.RiskType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})

	var b strings.Builder
	b.WriteString("## Risk Trend\n\n")
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d events\n", t, counts[t])
	}
	return b.String()
}

// structureSection summarizes the supply chain shape: supplier counts by
// tier and any single points of failure.
func structureSection(snap *store.Snapshot) string {
	sg := graph.Build(snap.Company, snap.Suppliers)

	tiers := sg.TierCounts()
	levels := make([]int, 0, len(tiers))
	for tier := range tiers {
		levels = append(levels, tier)
	}
	sort.Ints(levels)

	singles := sg.SingleSourceNodes()
	names := make([]string, 0, len(singles))
	for _, n := range singles {
		names = append(names, n.Name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("## Supply Chain Structure\n\n")
	for _, tier := range levels {
		fmt.Fprintf(&b, "- Tier %d suppliers: %d\n", tier, tiers[tier])
	}
	if len(names) == 0 {
		b.WriteString("- Single-source dependencies: none\n")
	} else {
		fmt.Fprintf(&b, "- Single-source dependencies: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

// narrate asks the LLM to turn the digest into prose. Failures keep the
// digest as the report body.
func (g *Generator) narrate(ctx context.Context, digest string, usePro bool) string {
	if g.generator == nil {
		return digest
	}
	prompt := fmt.Sprintf(`You are a supply chain risk analyst for %s.
Rewrite the following report digest as a clear narrative report for supply
chain managers. Keep the section structure, expand each section into short
paragraphs, and end with concrete recommendations.

%s`, g.company, digest)

	text, err := g.generator.GenerateText(ctx, prompt, usePro, 0.5)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn().Err(err).Msg("report narration failed, keeping digest")
		return digest
	}
	return strings.TrimSpace(text)
}

// answer resolves one custom query against the digest.
func (g *Generator) answer(ctx context.Context, digest, query string) string {
	if g.generator == nil {
		return "LLM not configured; raw data follows.\n\n" + digest
	}
	prompt := fmt.Sprintf(`You are a supply chain risk analyst for %s.
Answer the question using only the data below. Be specific and concise.

DATA:
%s

QUESTION: %s`, g.company, digest, query)

	text, err := g.generator.GenerateText(ctx, prompt, false, 0.3)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn().Err(err).Str("query", query).Msg("custom report query failed")
		return "No answer available for this query."
	}
	return strings.TrimSpace(text)
}

func countBand(alerts []models.Alert, band models.Severity) int {
	n := 0
	for _, a := range alerts {
		if a.SeverityBand == band {
			n++
		}
	}
	return n
}
