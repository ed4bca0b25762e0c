package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/scoring"
	"github.com/chainwatch/chainwatch/internal/store"
	"github.com/chainwatch/chainwatch/internal/stream"
)

// Scorer consumes risk_entities: it loads the risk event, applies the
// scoring formula against the primary affected supplier and hands the
// scored event to the alert stage.
type Scorer struct {
	store      DocStore
	catalog    SnapshotProvider
	bus        Publisher
	metrics    *metrics.Registry
	thresholds scoring.Thresholds
	production bool
}

// NewScorer wires the scoring stage. In production invariant violations
// clamp and count; elsewhere they panic.
func NewScorer(docs DocStore, catalog SnapshotProvider, bus Publisher, reg *metrics.Registry, thresholds scoring.Thresholds, production bool) *Scorer {
	return &Scorer{store: docs, catalog: catalog, bus: bus, metrics: reg, thresholds: thresholds, production: production}
}

// Handle scores one risk event.
func (s *Scorer) Handle(ctx context.Context, rec stream.Record) error {
	timer := s.metrics.StartStage(metrics.StageScore)
	err := s.handle(ctx, rec)
	timer.Done(err)
	return err
}

func (s *Scorer) handle(ctx context.Context, rec stream.Record) error {
	record := models.RiskEntityFromFields(rec.Fields)

	ev, err := s.store.RiskEvent(ctx, record.RiskEventID)
	if errors.Is(err, store.ErrNotFound) {
		log.Error().Str("risk_event_id", record.RiskEventID).Msg("risk event not found, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	if len(ev.AffectedSupplyChainNodes) == 0 {
		log.Warn().Str("risk_event_id", ev.ID).Msg("no affected suppliers, cannot score")
		return nil
	}
	snap := s.catalog.Snapshot()
	supplierName := ev.AffectedSupplyChainNodes[0]
	supplier, ok := snap.SupplierByName(supplierName)
	if !ok {
		log.Error().Str("supplier", supplierName).Str("risk_event_id", ev.ID).Msg("supplier not in catalog, dropping")
		return nil
	}

	result := scoring.Score(ev, supplier, snap.Company, snap.Suppliers, s.thresholds)
	if scoring.ClampComponents(&result.Components) {
		s.metrics.InvariantViolations.Inc()
		if !s.production {
			panic(fmt.Sprintf("score components out of range for risk event %s: %+v", ev.ID, result.Components))
		}
		log.Error().Str("risk_event_id", ev.ID).Msg("score components clamped into range")
	}

	ev.RiskScore = result.Score
	ev.SeverityBand = result.Band
	ev.RiskScoreComponents = result.Components
	if err := s.store.UpsertRiskEvent(ctx, ev); err != nil {
		return err
	}
	log.Info().
		Str("risk_event_id", ev.ID).
		Float64("score", result.Score).
		Str("band", string(result.Band)).
		Msg("risk event scored")

	scored := models.RiskScoreRecord{
		RiskEventID:      ev.ID,
		RiskScore:        result.Score,
		SeverityBand:     result.Band,
		AffectedSupplier: supplier.Name,
	}
	_, err = s.bus.Append(ctx, models.StreamRiskScores, scored.Fields())
	return err
}
