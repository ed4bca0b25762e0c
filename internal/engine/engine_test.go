package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/chainwatch/internal/llm"
	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/scoring"
	"github.com/chainwatch/chainwatch/internal/store"
	"github.com/chainwatch/chainwatch/internal/stream"
)

// memStore is an in-memory DocStore for handler tests.
type memStore struct {
	articles       map[string]*models.Article
	events         map[string]*models.RiskEvent
	alerts         map[string]*models.Alert
	supplierScores map[string]float64
	notified       map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		articles:       make(map[string]*models.Article),
		events:         make(map[string]*models.RiskEvent),
		alerts:         make(map[string]*models.Alert),
		supplierScores: make(map[string]float64),
		notified:       make(map[string]bool),
	}
}

func (m *memStore) UpsertArticle(_ context.Context, a *models.Article) error {
	cp := *a
	m.articles[a.ID] = &cp
	return nil
}

func (m *memStore) UpsertRiskEvent(_ context.Context, ev *models.RiskEvent) error {
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memStore) RiskEvent(_ context.Context, id string) (*models.RiskEvent, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("risk event %s: %w", id, store.ErrNotFound)
	}
	cp := *ev
	return &cp, nil
}

func (m *memStore) UpsertAlert(_ context.Context, a *models.Alert) error {
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *memStore) UpdateSupplierRiskScore(_ context.Context, id string, score float64) error {
	m.supplierScores[id] = score
	return nil
}

func (m *memStore) MarkNotificationSent(_ context.Context, alertID string) error {
	m.notified[alertID] = true
	return nil
}

type fakePublisher struct {
	appends []struct {
		stream string
		fields map[string]string
	}
}

func (p *fakePublisher) Append(_ context.Context, stream string, fields map[string]string) (string, error) {
	p.appends = append(p.appends, struct {
		stream string
		fields map[string]string
	}{stream, fields})
	return fmt.Sprintf("%d-0", len(p.appends)), nil
}

type staticCatalog struct{ snap *store.Snapshot }

func (s staticCatalog) Snapshot() *store.Snapshot { return s.snap }

type fakeLLM struct {
	flash    *llm.RiskExtraction
	pro      *llm.RiskExtraction
	err      error
	proCalls int
}

func (f *fakeLLM) ExtractRisk(_ context.Context, _ *models.Article, _ *models.CompanyProfile, _ []string, usePro bool) (*llm.RiskExtraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if usePro {
		f.proCalls++
		return f.pro, nil
	}
	return f.flash, nil
}

type fakeGate struct {
	admit bool
	score float64
}

func (f fakeGate) Admit(context.Context, *models.Article) (bool, float64) {
	return f.admit, f.score
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, a *models.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, a.ID)
	return nil
}

type fakeGen struct{ text string }

func (f fakeGen) GenerateText(context.Context, string, bool, float64) (string, error) {
	return f.text, nil
}

func pipelineSnapshot() *store.Snapshot {
	return store.NewStaticSnapshot(
		&models.CompanyProfile{
			ID:                  "co-1",
			CompanyName:         "Nayara Energy",
			RawMaterials:        []string{"LPG"},
			MaterialCriticality: map[string]int{"LPG": 5},
			InventoryDays:       map[string]int{"LPG": 10},
		},
		[]models.Supplier{
			{
				ID: "sup-1", CompanyID: "co-1", Name: "Gulf Gas Logistics", Country: "UAE",
				Tier: 1, Supplies: []string{"LPG"}, SupplyVolumePct: 100,
				IsSingleSource: true, Status: models.StatusActive,
			},
			{
				ID: "alt-1", CompanyID: "co-1", Name: "Muscat Gas", Country: "Oman",
				Tier: 1, Supplies: []string{"LPG"}, Status: models.StatusAlternate,
				MaxCapacity: 80, LeadTimeWeeks: 4, ApprovedVendor: true,
				ESGScore: 70, FinancialHealthScore: 7, SwitchingCostEstimate: 3,
			},
		},
	)
}

func normalizedRecord() stream.Record {
	rec := models.NormalizedEventRecord{
		EventID:  "ev-1",
		Source:   "NewsAPI",
		Headline: "Major pipeline disruption halts LPG shipments",
		Body:     "Flows from the key LPG supplier stopped overnight.",
		URL:      "https://news.example.com/lpg",
	}
	return stream.Record{ID: "1-0", Fields: rec.Fields()}
}

func riskyExtraction() *llm.RiskExtraction {
	return &llm.RiskExtraction{
		IsRisk:                   true,
		RiskType:                 models.RiskOperational,
		AffectedEntities:         []string{"LPG", "UAE"},
		AffectedSupplyChainNodes: []string{"gulf gas logistics"},
		Severity:                 models.SeverityCritical,
		IsConfirmed:              models.ConfirmedTrue,
		TimeHorizon:              models.HorizonImmediate,
		Reasoning:                "Pipeline halt cuts the sole LPG route.",
		RecommendedAction:        "Activate alternate sourcing.",
	}
}

func TestExtractorSkipsIrrelevant(t *testing.T) {
	docs := newMemStore()
	pub := &fakePublisher{}
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()}, &fakeLLM{}, fakeGate{admit: false, score: 0.1}, pub, metrics.NewRegistry())

	require.NoError(t, ex.Handle(context.Background(), normalizedRecord()))
	assert.Empty(t, docs.articles)
	assert.Empty(t, pub.appends)
}

func TestExtractorNotARisk(t *testing.T) {
	docs := newMemStore()
	pub := &fakePublisher{}
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()},
		&fakeLLM{flash: &llm.RiskExtraction{IsRisk: false}},
		fakeGate{admit: true, score: 0.7}, pub, metrics.NewRegistry())

	require.NoError(t, ex.Handle(context.Background(), normalizedRecord()))

	a, ok := docs.articles["article_ev-1"]
	require.True(t, ok)
	assert.True(t, a.Processed)
	assert.False(t, a.RiskExtracted)
	assert.Empty(t, docs.events)
	assert.Empty(t, pub.appends)
}

func TestExtractorCreatesRiskEvent(t *testing.T) {
	docs := newMemStore()
	pub := &fakePublisher{}
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()},
		&fakeLLM{flash: riskyExtraction()},
		fakeGate{admit: true, score: 0.82}, pub, metrics.NewRegistry())

	require.NoError(t, ex.Handle(context.Background(), normalizedRecord()))

	a := docs.articles["article_ev-1"]
	require.NotNil(t, a)
	assert.True(t, a.Processed)
	assert.True(t, a.RiskExtracted)
	assert.Equal(t, "risk_ev-1", a.RiskEventID)
	assert.InDelta(t, 0.82, a.RawRelevanceScore, 1e-9)

	ev := docs.events["risk_ev-1"]
	require.NotNil(t, ev)
	assert.Equal(t, "article_ev-1", ev.ArticleID)
	// catalog spelling, not the LLM's lowercase
	assert.Equal(t, []string{"Gulf Gas Logistics"}, ev.AffectedSupplyChainNodes)
	assert.Zero(t, ev.RiskScore)
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	assert.Equal(t, models.SeverityLow, ev.SeverityBand)

	require.Len(t, pub.appends, 1)
	assert.Equal(t, models.StreamRiskEntities, pub.appends[0].stream)
	assert.Equal(t, "risk_ev-1", pub.appends[0].fields["risk_event_id"])
}

func TestExtractorRedeliveryConverges(t *testing.T) {
	docs := newMemStore()
	pub := &fakePublisher{}
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()},
		&fakeLLM{flash: riskyExtraction()},
		fakeGate{admit: true, score: 0.82}, pub, metrics.NewRegistry())

	require.NoError(t, ex.Handle(context.Background(), normalizedRecord()))
	require.NoError(t, ex.Handle(context.Background(), normalizedRecord()))

	assert.Len(t, docs.articles, 1)
	assert.Len(t, docs.events, 1)
}

func TestExtractorUnresolvableNodes(t *testing.T) {
	docs := newMemStore()
	pub := &fakePublisher{}
	extraction := riskyExtraction()
	extraction.AffectedSupplyChainNodes = []string{"Nobody We Know"}
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()},
		&fakeLLM{flash: extraction},
		fakeGate{admit: true, score: 0.7}, pub, metrics.NewRegistry())

	require.NoError(t, ex.Handle(context.Background(), normalizedRecord()))

	a := docs.articles["article_ev-1"]
	require.NotNil(t, a)
	assert.True(t, a.Processed)
	assert.False(t, a.RiskExtracted)
	assert.Empty(t, docs.events)
	assert.Empty(t, pub.appends)
}

func TestExtractorMalformedResponseAcked(t *testing.T) {
	docs := newMemStore()
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()},
		&fakeLLM{err: fmt.Errorf("%w: bad json", llm.ErrMalformed)},
		fakeGate{admit: true, score: 0.7}, &fakePublisher{}, metrics.NewRegistry())

	assert.NoError(t, ex.Handle(context.Background(), normalizedRecord()))
}

func TestExtractorTransientErrorRetried(t *testing.T) {
	docs := newMemStore()
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()},
		&fakeLLM{err: errors.New("gemini HTTP 503")},
		fakeGate{admit: true, score: 0.7}, &fakePublisher{}, metrics.NewRegistry())

	assert.Error(t, ex.Handle(context.Background(), normalizedRecord()))
}

func TestExtractorEscalatesUncertainCritical(t *testing.T) {
	uncertain := riskyExtraction()
	uncertain.IsConfirmed = models.ConfirmedUncertain
	confirmed := riskyExtraction()

	mock := &fakeLLM{flash: uncertain, pro: confirmed}
	docs := newMemStore()
	ex := NewExtractor(docs, staticCatalog{pipelineSnapshot()},
		mock, fakeGate{admit: true, score: 0.9}, &fakePublisher{}, metrics.NewRegistry())

	require.NoError(t, ex.Handle(context.Background(), normalizedRecord()))
	assert.Equal(t, 1, mock.proCalls)
	assert.Equal(t, models.ConfirmedTrue, docs.events["risk_ev-1"].IsConfirmed)
}

func seedScoredEvent(docs *memStore, score float64) *models.RiskEvent {
	ev := &models.RiskEvent{
		ID:                       "risk_ev-1",
		ArticleID:                "article_ev-1",
		CompanyID:                "co-1",
		RiskType:                 models.RiskOperational,
		AffectedEntities:         []string{"LPG"},
		AffectedSupplyChainNodes: []string{"Gulf Gas Logistics"},
		Severity:                 models.SeverityCritical,
		IsConfirmed:              models.ConfirmedTrue,
		TimeHorizon:              models.HorizonImmediate,
		Reasoning:                "Pipeline halt cuts the sole LPG route.",
		RiskScore:                score,
		SeverityBand:             models.SeverityCritical,
	}
	docs.events[ev.ID] = ev
	return ev
}

func TestScorerCriticalDisruption(t *testing.T) {
	docs := newMemStore()
	seeded := seedScoredEvent(docs, 0)
	seeded.RiskScore = 0
	seeded.SeverityBand = models.SeverityLow
	pub := &fakePublisher{}
	sc := NewScorer(docs, staticCatalog{pipelineSnapshot()}, pub, metrics.NewRegistry(), scoring.DefaultThresholds(), false)

	rec := models.RiskEntityRecord{RiskEventID: "risk_ev-1", RiskType: models.RiskOperational, Severity: models.SeverityCritical, AffectedNodes: []string{"Gulf Gas Logistics"}}
	require.NoError(t, sc.Handle(context.Background(), stream.Record{ID: "1-0", Fields: rec.Fields()}))

	ev := docs.events["risk_ev-1"]
	assert.InDelta(t, 14.25, ev.RiskScore, 1e-9)
	assert.Equal(t, models.SeverityCritical, ev.SeverityBand)
	assert.InDelta(t, 0.95, ev.RiskScoreComponents.Probability, 1e-9)
	assert.InDelta(t, 0.5, ev.RiskScoreComponents.Mitigation, 1e-9)

	require.Len(t, pub.appends, 1)
	assert.Equal(t, models.StreamRiskScores, pub.appends[0].stream)
	assert.Equal(t, "14.25", pub.appends[0].fields["risk_score"])
	assert.Equal(t, "Gulf Gas Logistics", pub.appends[0].fields["affected_supplier"])
}

func TestScorerUnknownSupplierDropped(t *testing.T) {
	docs := newMemStore()
	ev := seedScoredEvent(docs, 0)
	ev.AffectedSupplyChainNodes = []string{"Nobody We Know"}
	pub := &fakePublisher{}
	sc := NewScorer(docs, staticCatalog{pipelineSnapshot()}, pub, metrics.NewRegistry(), scoring.DefaultThresholds(), false)

	rec := models.RiskEntityRecord{RiskEventID: "risk_ev-1"}
	require.NoError(t, sc.Handle(context.Background(), stream.Record{ID: "1-0", Fields: rec.Fields()}))
	assert.Empty(t, pub.appends)
}

func TestScorerMissingEventDropped(t *testing.T) {
	sc := NewScorer(newMemStore(), staticCatalog{pipelineSnapshot()}, &fakePublisher{}, metrics.NewRegistry(), scoring.DefaultThresholds(), false)
	rec := models.RiskEntityRecord{RiskEventID: "nope"}
	assert.NoError(t, sc.Handle(context.Background(), stream.Record{ID: "1-0", Fields: rec.Fields()}))
}

func scoredRecord(score float64) stream.Record {
	rec := models.RiskScoreRecord{
		RiskEventID:      "risk_ev-1",
		RiskScore:        score,
		SeverityBand:     models.SeverityCritical,
		AffectedSupplier: "Gulf Gas Logistics",
	}
	return stream.Record{ID: "1-0", Fields: rec.Fields()}
}

func TestAlerterCreatesAlert(t *testing.T) {
	docs := newMemStore()
	seedScoredEvent(docs, 14.25)
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}
	al := NewAlerter(docs, staticCatalog{pipelineSnapshot()}, pub, metrics.NewRegistry(),
		fakeGen{text: "Engage Muscat Gas immediately."}, notifier, 3.0)

	require.NoError(t, al.Handle(context.Background(), scoredRecord(14.25)))

	alert, ok := docs.alerts["alert_risk_ev-1"]
	require.True(t, ok)
	assert.Equal(t, "risk_ev-1", alert.RiskEventID)
	assert.Equal(t, models.SeverityCritical, alert.SeverityBand)
	assert.InDelta(t, 14.25, alert.RiskScore, 1e-9)
	require.Len(t, alert.Recommendations, 1)
	assert.Equal(t, "Muscat Gas", alert.Recommendations[0].Name)
	assert.Equal(t, "Engage Muscat Gas immediately.", alert.RecommendationText)

	// propagation reached the company through the 100% volume edge
	ev := docs.events["risk_ev-1"]
	assert.InDelta(t, 14.25, ev.Propagation["sup-1"], 1e-9)
	assert.InDelta(t, 14.25, ev.Propagation["co-1"], 1e-9)
	assert.InDelta(t, 14.25, docs.supplierScores["sup-1"], 1e-9)
	_, companyScored := docs.supplierScores["co-1"]
	assert.False(t, companyScored)

	assert.Equal(t, []string{"alert_risk_ev-1"}, notifier.sent)
	assert.True(t, docs.notified["alert_risk_ev-1"])

	require.Len(t, pub.appends, 1)
	assert.Equal(t, models.StreamNewAlerts, pub.appends[0].stream)
	assert.Equal(t, "alert_risk_ev-1", pub.appends[0].fields["alert_id"])
}

func TestAlerterGateBelowThreshold(t *testing.T) {
	docs := newMemStore()
	ev := seedScoredEvent(docs, 0.18)
	ev.SeverityBand = models.SeverityLow
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}
	al := NewAlerter(docs, staticCatalog{pipelineSnapshot()}, pub, metrics.NewRegistry(),
		fakeGen{text: "unused"}, notifier, 3.0)

	require.NoError(t, al.Handle(context.Background(), scoredRecord(0.18)))
	assert.Empty(t, docs.alerts)
	assert.Empty(t, notifier.sent)
	assert.Empty(t, pub.appends)
}

func TestAlerterNotificationFailureStillPersists(t *testing.T) {
	docs := newMemStore()
	seedScoredEvent(docs, 14.25)
	notifier := &fakeNotifier{err: errors.New("slack webhook 500")}
	al := NewAlerter(docs, staticCatalog{pipelineSnapshot()}, &fakePublisher{}, metrics.NewRegistry(),
		fakeGen{text: "text"}, notifier, 3.0)

	require.NoError(t, al.Handle(context.Background(), scoredRecord(14.25)))
	assert.Contains(t, docs.alerts, "alert_risk_ev-1")
	assert.False(t, docs.notified["alert_risk_ev-1"])
}

func TestAlerterRedeliveryIsIdempotent(t *testing.T) {
	docs := newMemStore()
	seedScoredEvent(docs, 14.25)
	al := NewAlerter(docs, staticCatalog{pipelineSnapshot()}, &fakePublisher{}, metrics.NewRegistry(),
		fakeGen{text: "text"}, &fakeNotifier{}, 3.0)

	require.NoError(t, al.Handle(context.Background(), scoredRecord(14.25)))
	require.NoError(t, al.Handle(context.Background(), scoredRecord(14.25)))
	assert.Len(t, docs.alerts, 1)
}

func TestAlerterMissingEventDropped(t *testing.T) {
	al := NewAlerter(newMemStore(), staticCatalog{pipelineSnapshot()}, &fakePublisher{}, metrics.NewRegistry(),
		fakeGen{text: "text"}, &fakeNotifier{}, 3.0)
	assert.NoError(t, al.Handle(context.Background(), scoredRecord(14.25)))
}
