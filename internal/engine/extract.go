package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/llm"
	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/store"
	"github.com/chainwatch/chainwatch/internal/stream"
)

// Extractor consumes normalized_events: it gates articles on relevance,
// asks the LLM for a risk classification and persists article + risk event
// when one is found.
type Extractor struct {
	store     DocStore
	catalog   SnapshotProvider
	llm       RiskExtractor
	relevance RelevanceGate
	bus       Publisher
	metrics   *metrics.Registry
}

// NewExtractor wires the extraction stage.
func NewExtractor(docs DocStore, catalog SnapshotProvider, extractor RiskExtractor, gate RelevanceGate, bus Publisher, reg *metrics.Registry) *Extractor {
	return &Extractor{store: docs, catalog: catalog, llm: extractor, relevance: gate, bus: bus, metrics: reg}
}

// Handle processes one normalized event. A nil return acks the record;
// only transient failures propagate so the bus redelivers.
func (e *Extractor) Handle(ctx context.Context, rec stream.Record) error {
	timer := e.metrics.StartStage(metrics.StageExtract)
	err := e.handle(ctx, rec)
	timer.Done(err)
	return err
}

func (e *Extractor) handle(ctx context.Context, rec stream.Record) error {
	record := models.NormalizedEventFromFields(rec.Fields)
	article := record.Article()
	article.ID = "article_" + record.EventID
	snap := e.catalog.Snapshot()

	admitted, score := e.relevance.Admit(ctx, &article)
	article.RawRelevanceScore = score
	if !admitted {
		log.Info().Float64("score", score).Str("headline", headlinePrefix(article.Headline)).Msg("article not relevant, skipping")
		e.metrics.ArticlesIrrelevant.Inc()
		return nil
	}

	extraction, err := e.extract(ctx, &article, snap)
	if err != nil {
		if errors.Is(err, llm.ErrMalformed) {
			log.Warn().Err(err).Str("event_id", record.EventID).Msg("dropping article with unparseable extraction")
			return nil
		}
		return err
	}

	if !extraction.IsRisk {
		log.Info().Str("headline", headlinePrefix(article.Headline)).Msg("not identified as a risk")
		article.Processed = true
		article.RiskExtracted = false
		return e.store.UpsertArticle(ctx, &article)
	}

	nodes := resolveNodes(extraction.AffectedSupplyChainNodes, snap)
	if len(nodes) == 0 {
		log.Warn().
			Strs("llm_nodes", extraction.AffectedSupplyChainNodes).
			Str("event_id", record.EventID).
			Msg("no affected node resolves to a catalog supplier, discarding risk")
		article.Processed = true
		article.RiskExtracted = false
		return e.store.UpsertArticle(ctx, &article)
	}

	riskEventID := "risk_" + record.EventID
	article.Processed = true
	article.RiskExtracted = true
	article.RiskEventID = riskEventID
	article.EntitiesMentioned = extraction.AffectedEntities
	if err := e.store.UpsertArticle(ctx, &article); err != nil {
		return err
	}

	ev := &models.RiskEvent{
		ID:                       riskEventID,
		ArticleID:                article.ID,
		CompanyID:                snap.Company.ID,
		Timestamp:                article.Timestamp,
		RiskType:                 extraction.RiskType,
		AffectedEntities:         extraction.AffectedEntities,
		AffectedSupplyChainNodes: nodes,
		Severity:                 extraction.Severity,
		IsConfirmed:              extraction.IsConfirmed,
		TimeHorizon:              extraction.TimeHorizon,
		Reasoning:                extraction.Reasoning,
		RecommendedAction:        extraction.RecommendedAction,
		SeverityBand:             models.SeverityLow,
		CreatedAt:                article.Timestamp,
	}
	if err := e.store.UpsertRiskEvent(ctx, ev); err != nil {
		return err
	}
	log.Info().
		Str("risk_event_id", riskEventID).
		Str("risk_type", string(ev.RiskType)).
		Strs("affected", nodes).
		Msg("risk event created")

	entity := models.RiskEntityRecord{
		RiskEventID:   riskEventID,
		RiskType:      ev.RiskType,
		Severity:      ev.Severity,
		AffectedNodes: nodes,
	}
	_, err = e.bus.Append(ctx, models.StreamRiskEntities, entity.Fields())
	return err
}

// extract runs the Flash tier first and escalates critical-but-uncertain
// findings to the Pro tier for a second opinion.
func (e *Extractor) extract(ctx context.Context, article *models.Article, snap *store.Snapshot) (*llm.RiskExtraction, error) {
	names := snap.SupplierNames()

	e.metrics.LLMCalls.WithLabelValues(llm.ModelFlash).Inc()
	extraction, err := e.llm.ExtractRisk(ctx, article, snap.Company, names, false)
	if err != nil {
		e.metrics.LLMFailures.WithLabelValues(llm.ModelFlash).Inc()
		return nil, err
	}

	if extraction.IsRisk && extraction.Severity == models.SeverityCritical && extraction.IsConfirmed == models.ConfirmedUncertain {
		log.Info().Str("article_id", article.ID).Msg("escalating uncertain critical finding to pro tier")
		e.metrics.LLMCalls.WithLabelValues(llm.ModelPro).Inc()
		proExtraction, proErr := e.llm.ExtractRisk(ctx, article, snap.Company, names, true)
		if proErr != nil {
			e.metrics.LLMFailures.WithLabelValues(llm.ModelPro).Inc()
			return extraction, nil
		}
		return proExtraction, nil
	}
	return extraction, nil
}

// resolveNodes keeps only LLM-provided node names that match a catalog
// supplier, normalized to the catalog spelling.
func resolveNodes(names []string, snap *store.Snapshot) []string {
	var resolved []string
	seen := make(map[string]bool)
	for _, name := range names {
		sup, ok := snap.SupplierByName(name)
		if !ok {
			log.Warn().Str("name", name).Msg("supplier name from extraction not in catalog")
			continue
		}
		if !seen[sup.Name] {
			seen[sup.Name] = true
			resolved = append(resolved, sup.Name)
		}
	}
	return resolved
}

func headlinePrefix(h string) string {
	if len(h) > 80 {
		return h[:80]
	}
	return h
}
