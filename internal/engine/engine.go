// Package engine implements the pipeline stage handlers: risk extraction,
// scoring and alert synthesis. Each handler consumes one stream record and
// hands off to the next stage; all writes are idempotent upserts so
// redelivered records converge instead of duplicating.
package engine

import (
	"context"

	"github.com/chainwatch/chainwatch/internal/llm"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/store"
)

// DocStore is the subset of the document store the stage handlers need.
type DocStore interface {
	UpsertArticle(ctx context.Context, a *models.Article) error
	UpsertRiskEvent(ctx context.Context, ev *models.RiskEvent) error
	RiskEvent(ctx context.Context, id string) (*models.RiskEvent, error)
	UpsertAlert(ctx context.Context, a *models.Alert) error
	UpdateSupplierRiskScore(ctx context.Context, supplierID string, score float64) error
	MarkNotificationSent(ctx context.Context, alertID string) error
}

// Publisher appends records to a named stream.
type Publisher interface {
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
}

// SnapshotProvider yields the current catalog view.
type SnapshotProvider interface {
	Snapshot() *store.Snapshot
}

// RiskExtractor classifies an article. Satisfied by the LLM client.
type RiskExtractor interface {
	ExtractRisk(ctx context.Context, article *models.Article, company *models.CompanyProfile, supplierNames []string, usePro bool) (*llm.RiskExtraction, error)
}

// RelevanceGate admits or rejects an article before LLM extraction.
type RelevanceGate interface {
	Admit(ctx context.Context, article *models.Article) (bool, float64)
}

// Notifier fans an alert out to the configured channels.
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert) error
}
