package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/alerts"
	"github.com/chainwatch/chainwatch/internal/graph"
	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/recommend"
	"github.com/chainwatch/chainwatch/internal/store"
	"github.com/chainwatch/chainwatch/internal/stream"
)

// Alerter consumes risk_scores: it propagates the score through the
// supply graph, applies the alert gate and persists the alert with ranked
// alternate suppliers.
type Alerter struct {
	store     DocStore
	catalog   SnapshotProvider
	bus       Publisher
	metrics   *metrics.Registry
	generator recommend.TextGenerator
	notifier  Notifier
	threshold float64

	graph atomic.Pointer[graph.SupplyGraph]
}

// NewAlerter wires the alert stage and builds the initial supply graph.
// The notifier and generator may be nil; both degrade gracefully.
func NewAlerter(docs DocStore, catalog SnapshotProvider, bus Publisher, reg *metrics.Registry, gen recommend.TextGenerator, notifier Notifier, threshold float64) *Alerter {
	a := &Alerter{
		store:     docs,
		catalog:   catalog,
		bus:       bus,
		metrics:   reg,
		generator: gen,
		notifier:  notifier,
		threshold: threshold,
	}
	a.RebuildGraph()
	return a
}

// RebuildGraph swaps in a fresh graph from the current catalog snapshot.
// Called at startup and on catalog change notifications.
func (a *Alerter) RebuildGraph() {
	snap := a.catalog.Snapshot()
	a.graph.Store(graph.Build(snap.Company, snap.Suppliers))
}

// Handle turns one scored risk event into an alert when it passes the gate.
func (a *Alerter) Handle(ctx context.Context, rec stream.Record) error {
	timer := a.metrics.StartStage(metrics.StageAlert)
	err := a.handle(ctx, rec)
	timer.Done(err)
	return err
}

func (a *Alerter) handle(ctx context.Context, rec stream.Record) error {
	record := models.RiskScoreFromFields(rec.Fields)

	ev, err := a.store.RiskEvent(ctx, record.RiskEventID)
	if errors.Is(err, store.ErrNotFound) {
		log.Error().Str("risk_event_id", record.RiskEventID).Msg("risk event not found, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	snap := a.catalog.Snapshot()
	var supplier *models.Supplier
	if record.AffectedSupplier != "" {
		supplier, _ = snap.SupplierByName(record.AffectedSupplier)
	}

	if len(ev.Propagation) == 0 && supplier != nil {
		if err := a.propagate(ctx, ev, supplier); err != nil {
			return err
		}
	}

	if !alerts.ShouldAlert(ev, a.threshold) {
		log.Debug().
			Str("risk_event_id", ev.ID).
			Float64("score", ev.RiskScore).
			Msg("alert gate not passed")
		return nil
	}

	var alternates []models.AlternateRec
	if supplier != nil {
		alternates = recommend.FindAlternates(supplier, snap.Suppliers, recommend.MaxAlternates)
	}

	alert := alerts.Build(ev, supplier, alternates)
	alert.RecommendationText = recommend.RecommendationText(ctx, a.generator, alert, alternates, snap.Company)
	if err := a.store.UpsertAlert(ctx, alert); err != nil {
		return err
	}
	a.metrics.AlertsCreated.WithLabelValues(string(alert.SeverityBand)).Inc()
	log.Info().
		Str("alert_id", alert.ID).
		Str("band", string(alert.SeverityBand)).
		Float64("score", alert.RiskScore).
		Msg("alert created")

	if a.notifier != nil && !alert.NotificationSent {
		if err := a.notifier.Notify(ctx, alert); err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID).Msg("notification delivery failed")
		} else if err := a.store.MarkNotificationSent(ctx, alert.ID); err != nil {
			return err
		}
	}

	announce := models.NewAlertRecord{
		AlertID:      alert.ID,
		SeverityBand: alert.SeverityBand,
		RiskScore:    alert.RiskScore,
		Title:        alert.Title,
	}
	_, err = a.bus.Append(ctx, models.StreamNewAlerts, announce.Fields())
	return err
}

// propagate runs BFS attenuation from the affected supplier and records
// the per-node scores on the risk event and the supplier documents.
func (a *Alerter) propagate(ctx context.Context, ev *models.RiskEvent, supplier *models.Supplier) error {
	g := a.graph.Load()
	scores := g.Propagate(supplier.ID, ev.RiskScore, graph.DefaultPropagationThreshold)
	if scores == nil {
		return nil
	}

	ev.Propagation = scores
	if err := a.store.UpsertRiskEvent(ctx, ev); err != nil {
		return err
	}
	for nodeID, score := range scores {
		if n, ok := g.Node(nodeID); !ok || n.Type != graph.NodeSupplier || n.IsUpstream {
			continue
		}
		if err := a.store.UpdateSupplierRiskScore(ctx, nodeID, score); err != nil {
			return err
		}
	}
	return nil
}
