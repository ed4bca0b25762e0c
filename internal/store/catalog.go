package store

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chainwatch/chainwatch/internal/models"
)

// Snapshot is an immutable view of the company profile and supplier
// catalog. Workers dereference one snapshot per record and never hold a
// lock across I/O.
type Snapshot struct {
	Company   *models.CompanyProfile
	Suppliers []models.Supplier

	byName map[string]*models.Supplier
}

// SupplierByName resolves a catalog supplier case-insensitively.
func (s *Snapshot) SupplierByName(name string) (*models.Supplier, bool) {
	sup, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return sup, ok
}

// SupplierNames lists catalog names in catalog order.
func (s *Snapshot) SupplierNames() []string {
	names := make([]string, len(s.Suppliers))
	for i := range s.Suppliers {
		names[i] = s.Suppliers[i].Name
	}
	return names
}

// Catalog caches the profile and suppliers, refreshed by atomic pointer
// swap so readers always see a consistent pair.
type Catalog struct {
	store     *Store
	companyID string
	current   atomic.Pointer[Snapshot]
}

// NewCatalog loads the initial snapshot.
func NewCatalog(ctx context.Context, store *Store, companyID string) (*Catalog, error) {
	c := &Catalog{store: store, companyID: companyID}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Snapshot returns the current view. Never nil after NewCatalog succeeds.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Refresh re-reads the profile and catalog and swaps in a new snapshot.
func (c *Catalog) Refresh(ctx context.Context) error {
	company, err := c.store.Company(ctx, c.companyID)
	if err != nil {
		return err
	}
	suppliers, err := c.store.Suppliers(ctx, c.companyID)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Company:   company,
		Suppliers: suppliers,
		byName:    make(map[string]*models.Supplier, len(suppliers)),
	}
	for i := range suppliers {
		snap.byName[strings.ToLower(suppliers[i].Name)] = &suppliers[i]
	}
	c.current.Store(snap)

	log.Debug().
		Str("company", company.CompanyName).
		Int("suppliers", len(suppliers)).
		Msg("catalog snapshot refreshed")
	return nil
}

// RefreshLoop refreshes on the interval until the context is cancelled.
// Refresh failures keep the previous snapshot.
func (c *Catalog) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("catalog refresh failed, keeping previous snapshot")
			}
		}
	}
}

// NewStaticSnapshot builds a snapshot from in-memory data, used by tests
// and the seed command.
func NewStaticSnapshot(company *models.CompanyProfile, suppliers []models.Supplier) *Snapshot {
	snap := &Snapshot{
		Company:   company,
		Suppliers: suppliers,
		byName:    make(map[string]*models.Supplier, len(suppliers)),
	}
	for i := range suppliers {
		snap.byName[strings.ToLower(suppliers[i].Name)] = &suppliers[i]
	}
	return snap
}
