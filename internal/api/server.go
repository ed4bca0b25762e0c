// Package api serves the dashboard HTTP surface: health, metrics, alerts,
// suppliers, risk events, reports and the live alert websocket. It is a
// thin read layer over the store; all writes happen in the pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/metrics"
	"github.com/chainwatch/chainwatch/internal/models"
	"github.com/chainwatch/chainwatch/internal/store"
)

const (
	defaultListLimit = 50
	defaultRiskHours = 24
)

// Store is the query surface the API serves from.
type Store interface {
	Dashboard(ctx context.Context, companyID string) (*store.DashboardSummary, error)
	Alerts(ctx context.Context, f store.AlertFilter) ([]models.Alert, error)
	Alert(ctx context.Context, id string) (*models.Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID, by string) error
	Suppliers(ctx context.Context, companyID string) ([]models.Supplier, error)
	Supplier(ctx context.Context, id string) (*models.Supplier, error)
	RiskEventsSince(ctx context.Context, companyID string, since time.Time, limit int64) ([]models.RiskEvent, error)
	Reports(ctx context.Context, typ models.ReportType, limit int64) ([]models.Report, error)
	Report(ctx context.Context, id string) (*models.Report, error)
}

// ReportRunner generates reports on demand.
type ReportRunner interface {
	Daily(ctx context.Context) (*models.Report, error)
	Weekly(ctx context.Context) (*models.Report, error)
	Custom(ctx context.Context, queries []string) (*models.Report, error)
}

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server routes dashboard requests.
type Server struct {
	store     Store
	reports   ReportRunner
	metrics   *metrics.Registry
	hub       *Hub
	companyID string
	checks    []HealthCheck
	router    *mux.Router
}

// New wires the router. reports may be nil; report generation then returns
// 503.
func New(docs Store, reports ReportRunner, reg *metrics.Registry, companyID string, checks ...HealthCheck) *Server {
	s := &Server{
		store:     docs,
		reports:   reports,
		metrics:   reg,
		hub:       NewHub(),
		companyID: companyID,
		checks:    checks,
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// Hub exposes the websocket hub for the alert bridge.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dashboard/summary", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", s.handleAlert).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}/acknowledge", s.handleAcknowledge).Methods(http.MethodPost)
	api.HandleFunc("/suppliers", s.handleSuppliers).Methods(http.MethodGet)
	api.HandleFunc("/suppliers/{id}", s.handleSupplier).Methods(http.MethodGet)
	api.HandleFunc("/risks", s.handleRisks).Methods(http.MethodGet)
	api.HandleFunc("/reports", s.handleReports).Methods(http.MethodGet)
	api.HandleFunc("/reports/generate", s.handleGenerateReport).Methods(http.MethodPost)
	api.HandleFunc("/reports/{id}", s.handleReport).Methods(http.MethodGet)

	s.router.HandleFunc("/ws/alerts", s.hub.Handle)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"service": "chainwatch",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			results[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[check.Name] = "ok"
		}
	}

	body := map[string]interface{}{
		"status": "healthy",
		"checks": results,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	respond(w, status, body)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.Dashboard(r.Context(), s.companyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, sum)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AlertFilter{
		CompanyID:      s.companyID,
		Unacknowledged: q.Get("unacknowledged") == "true",
		Limit:          queryInt(q.Get("limit"), defaultListLimit),
	}
	if band := q.Get("severity"); band != "" {
		f.SeverityBand = models.ParseSeverity(band)
	}

	alerts, err := s.store.Alerts(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.store.Alert(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, alert)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.AcknowledgedBy == "" {
		body.AcknowledgedBy = "user"
	}

	id := mux.Vars(r)["id"]
	err := s.store.AcknowledgeAlert(r.Context(), id, body.AcknowledgedBy)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{
		"alert_id":        id,
		"status":          "acknowledged",
		"acknowledged_by": body.AcknowledgedBy,
	})
}

func (s *Server) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := s.store.Suppliers(r.Context(), s.companyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"suppliers": suppliers,
		"count":     len(suppliers),
	})
}

func (s *Server) handleSupplier(w http.ResponseWriter, r *http.Request) {
	sup, err := s.store.Supplier(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, sup)
}

func (s *Server) handleRisks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hours := queryInt(q.Get("hours"), defaultRiskHours)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	events, err := s.store.RiskEventsSince(r.Context(), s.companyID, since, queryInt(q.Get("limit"), defaultListLimit))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"risk_events": events,
		"count":       len(events),
		"since":       since,
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := models.ReportType(q.Get("type"))
	if typ == "" {
		typ = models.ReportDaily
	}
	reports, err := s.store.Reports(r.Context(), typ, queryInt(q.Get("limit"), 10))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.Report(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusOK, report)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("report generation not configured"))
		return
	}
	var body struct {
		Type    string   `json:"type"`
		Queries []string `json:"queries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var (
		report *models.Report
		err    error
	)
	switch body.Type {
	case "daily":
		report, err = s.reports.Daily(r.Context())
	case "weekly":
		report, err = s.reports.Weekly(r.Context())
	case "custom":
		report, err = s.reports.Custom(r.Context(), body.Queries)
	default:
		respondError(w, http.StatusBadRequest, errors.New("type must be daily, weekly or custom"))
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respond(w, http.StatusCreated, report)
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respond(w, status, map[string]string{"error": err.Error()})
}

func queryInt(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
