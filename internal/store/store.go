// Package store persists pipeline documents in MongoDB and serves the
// read-side queries used by the API, reports and notifier.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/chainwatch/chainwatch/internal/models"
)

// Collection names.
const (
	CollCompanies  = "companies"
	CollSuppliers  = "suppliers"
	CollArticles   = "articles"
	CollRiskEvents = "risk_events"
	CollAlerts     = "alerts"
	CollReports    = "reports"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("document not found")

// Store is a long-lived handle on the document database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects, pings and returns a store. Fails fast when the database is
// unreachable so workers exit non-zero at startup instead of spinning.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	log.Info().Str("db", dbName).Msg("connected to mongodb")
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close releases the underlying connections.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the query indexes. Safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	type target struct {
		coll   string
		models []mongo.IndexModel
	}
	unique := options.Index().SetUnique(true)
	targets := []target{
		{CollArticles, []mongo.IndexModel{
			{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "processed", Value: 1}, {Key: "timestamp", Value: -1}}},
		}},
		{CollRiskEvents, []mongo.IndexModel{
			{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "affected_supply_chain_nodes", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "risk_type", Value: 1}, {Key: "severity_band", Value: 1}}},
		}},
		{CollAlerts, []mongo.IndexModel{
			{Keys: bson.D{{Key: "is_acknowledged", Value: 1}, {Key: "severity_band", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "affected_supplier", Value: 1}}},
		}},
		{CollSuppliers, []mongo.IndexModel{
			{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "tier", Value: 1}}},
			{Keys: bson.D{{Key: "supplies", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "name", Value: 1}}},
		}},
		{CollReports, []mongo.IndexModel{
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "generated_at", Value: -1}}},
		}},
		{CollCompanies, []mongo.IndexModel{
			{Keys: bson.D{{Key: "company_name", Value: 1}}},
		}},
	}
	for _, t := range targets {
		if _, err := s.db.Collection(t.coll).Indexes().CreateMany(ctx, t.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", t.coll, err)
		}
	}
	log.Info().Msg("mongodb indexes ensured")
	return nil
}

func (s *Store) upsert(ctx context.Context, coll, id string, doc interface{}) error {
	_, err := s.db.Collection(coll).ReplaceOne(ctx,
		bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", coll, id, err)
	}
	return nil
}

// Company loads the active tenant's profile.
func (s *Store) Company(ctx context.Context, id string) (*models.CompanyProfile, error) {
	var c models.CompanyProfile
	err := s.db.Collection(CollCompanies).FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("company %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCompany writes the company profile keyed by its id.
func (s *Store) UpsertCompany(ctx context.Context, c *models.CompanyProfile) error {
	c.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, CollCompanies, c.ID, c)
}

// Suppliers returns the full catalog for a company.
func (s *Store) Suppliers(ctx context.Context, companyID string) ([]models.Supplier, error) {
	cur, err := s.db.Collection(CollSuppliers).Find(ctx, bson.M{"company_id": companyID})
	if err != nil {
		return nil, err
	}
	var out []models.Supplier
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Supplier loads one catalog entry.
func (s *Store) Supplier(ctx context.Context, id string) (*models.Supplier, error) {
	var sup models.Supplier
	err := s.db.Collection(CollSuppliers).FindOne(ctx, bson.M{"_id": id}).Decode(&sup)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("supplier %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

// UpsertSupplier writes one catalog entry keyed by its id.
func (s *Store) UpsertSupplier(ctx context.Context, sup *models.Supplier) error {
	sup.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, CollSuppliers, sup.ID, sup)
}

// UpdateSupplierRiskScore records the current propagated risk on a supplier.
func (s *Store) UpdateSupplierRiskScore(ctx context.Context, supplierID string, score float64) error {
	_, err := s.db.Collection(CollSuppliers).UpdateOne(ctx,
		bson.M{"_id": supplierID},
		bson.M{"$set": bson.M{"risk_score_current": score, "updated_at": time.Now().UTC()}})
	return err
}

// UpsertArticle writes an article keyed by its id. Retried deliveries of
// the same record overwrite rather than duplicate.
func (s *Store) UpsertArticle(ctx context.Context, a *models.Article) error {
	return s.upsert(ctx, CollArticles, a.ID, a)
}

// UpsertRiskEvent writes a risk event keyed by its id.
func (s *Store) UpsertRiskEvent(ctx context.Context, ev *models.RiskEvent) error {
	return s.upsert(ctx, CollRiskEvents, ev.ID, ev)
}

// RiskEvent loads one risk event.
func (s *Store) RiskEvent(ctx context.Context, id string) (*models.RiskEvent, error) {
	var ev models.RiskEvent
	err := s.db.Collection(CollRiskEvents).FindOne(ctx, bson.M{"_id": id}).Decode(&ev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("risk event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// RiskEventsSince lists a company's risk events newer than the cutoff,
// newest first.
func (s *Store) RiskEventsSince(ctx context.Context, companyID string, since time.Time, limit int64) ([]models.RiskEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)
	cur, err := s.db.Collection(CollRiskEvents).Find(ctx,
		bson.M{"company_id": companyID, "timestamp": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, err
	}
	var out []models.RiskEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertAlert writes an alert keyed by its id.
func (s *Store) UpsertAlert(ctx context.Context, a *models.Alert) error {
	a.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, CollAlerts, a.ID, a)
}

// Alert loads one alert.
func (s *Store) Alert(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	err := s.db.Collection(CollAlerts).FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	CompanyID      string
	SeverityBand   models.Severity
	Unacknowledged bool
	Since          time.Time
	Limit          int64
}

// Alerts lists alerts newest first.
func (s *Store) Alerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	q := bson.M{}
	if f.CompanyID != "" {
		q["company_id"] = f.CompanyID
	}
	if f.SeverityBand != "" {
		q["severity_band"] = f.SeverityBand
	}
	if f.Unacknowledged {
		q["is_acknowledged"] = false
	}
	if !f.Since.IsZero() {
		q["created_at"] = bson.M{"$gte": f.Since}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := s.db.Collection(CollAlerts).Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	var out []models.Alert
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcknowledgeAlert marks an alert acknowledged by a user.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID, by string) error {
	now := time.Now().UTC()
	res, err := s.db.Collection(CollAlerts).UpdateOne(ctx,
		bson.M{"_id": alertID},
		bson.M{"$set": bson.M{
			"is_acknowledged": true,
			"acknowledged_by": by,
			"acknowledged_at": now,
			"updated_at":      now,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

// MarkNotificationSent records that fan-out completed for an alert.
func (s *Store) MarkNotificationSent(ctx context.Context, alertID string) error {
	now := time.Now().UTC()
	_, err := s.db.Collection(CollAlerts).UpdateOne(ctx,
		bson.M{"_id": alertID},
		bson.M{"$set": bson.M{
			"notification_sent":    true,
			"notification_sent_at": now,
			"updated_at":           now,
		}})
	return err
}

// UpsertReport writes a generated report keyed by its id.
func (s *Store) UpsertReport(ctx context.Context, r *models.Report) error {
	return s.upsert(ctx, CollReports, r.ID, r)
}

// Report loads one report.
func (s *Store) Report(ctx context.Context, id string) (*models.Report, error) {
	var r models.Report
	err := s.db.Collection(CollReports).FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Reports lists reports of one type, newest first.
func (s *Store) Reports(ctx context.Context, typ models.ReportType, limit int64) ([]models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "generated_at", Value: -1}}).
		SetLimit(limit)
	cur, err := s.db.Collection(CollReports).Find(ctx, bson.M{"type": typ}, opts)
	if err != nil {
		return nil, err
	}
	var out []models.Report
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DashboardSummary aggregates the headline numbers for the dashboard.
type DashboardSummary struct {
	TotalAlerts          int64                     `json:"total_alerts"`
	UnacknowledgedAlerts int64                     `json:"unacknowledged_alerts"`
	AlertsByBand         map[models.Severity]int64 `json:"alerts_by_band"`
	RiskEvents24h        int64                     `json:"risk_events_24h"`
	SuppliersAtRisk      int64                     `json:"suppliers_at_risk"`
}

// Dashboard computes the summary counters in one pass per collection.
func (s *Store) Dashboard(ctx context.Context, companyID string) (*DashboardSummary, error) {
	alerts := s.db.Collection(CollAlerts)
	sum := &DashboardSummary{AlertsByBand: make(map[models.Severity]int64)}

	var err error
	if sum.TotalAlerts, err = alerts.CountDocuments(ctx, bson.M{"company_id": companyID}); err != nil {
		return nil, err
	}
	if sum.UnacknowledgedAlerts, err = alerts.CountDocuments(ctx,
		bson.M{"company_id": companyID, "is_acknowledged": false}); err != nil {
		return nil, err
	}
	for _, band := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		n, err := alerts.CountDocuments(ctx, bson.M{"company_id": companyID, "severity_band": band})
		if err != nil {
			return nil, err
		}
		sum.AlertsByBand[band] = n
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	if sum.RiskEvents24h, err = s.db.Collection(CollRiskEvents).CountDocuments(ctx,
		bson.M{"company_id": companyID, "timestamp": bson.M{"$gte": cutoff}}); err != nil {
		return nil, err
	}
	if sum.SuppliersAtRisk, err = s.db.Collection(CollSuppliers).CountDocuments(ctx,
		bson.M{"company_id": companyID, "status": models.StatusAtRisk}); err != nil {
		return nil, err
	}
	return sum, nil
}
