package matching

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pharmdata/remisia_backend/models"
)

// CatalogSnapshot holds the derived indexes over the active catalogs.
// It is immutable once built; a new snapshot replaces it wholesale.
type CatalogSnapshot struct {
	ByCode  map[string][]models.CatalogProduct
	ByGroup map[int][]models.CatalogProduct
	ByLab   map[int][]models.CatalogProduct
	Labs    map[int]models.Laboratory
}

// Indexes caches a CatalogSnapshot with a time-based expiry. There is
// no implicit invalidation: the surrounding system must call
// Invalidate after any catalog or reference-table change.
type Indexes struct {
	catalog CatalogProvider
	ttl     time.Duration

	mu      sync.RWMutex
	current *CatalogSnapshot
	builtAt time.Time
}

const DefaultIndexTTL = 5 * time.Minute

func NewIndexes(catalog CatalogProvider, ttl time.Duration) *Indexes {
	if ttl <= 0 {
		ttl = DefaultIndexTTL
	}
	return &Indexes{catalog: catalog, ttl: ttl}
}

// Snapshot returns the cached snapshot, rebuilding it when expired.
func (ix *Indexes) Snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	ix.mu.RLock()
	snap, fresh := ix.current, time.Since(ix.builtAt) < ix.ttl
	ix.mu.RUnlock()
	if snap != nil && fresh {
		return snap, nil
	}
	return ix.rebuild(ctx)
}

func (ix *Indexes) rebuild(ctx context.Context) (*CatalogSnapshot, error) {
	labs, err := ix.catalog.ActiveLaboratories(ctx)
	if err != nil {
		return nil, err
	}
	products, err := ix.catalog.ActiveProducts(ctx)
	if err != nil {
		return nil, err
	}

	snap := &CatalogSnapshot{
		ByCode:  make(map[string][]models.CatalogProduct),
		ByGroup: make(map[int][]models.CatalogProduct),
		ByLab:   make(map[int][]models.CatalogProduct),
		Labs:    make(map[int]models.Laboratory, len(labs)),
	}
	for _, lab := range labs {
		snap.Labs[lab.ID] = lab
	}
	for _, p := range products {
		if code := strings.TrimSpace(p.ProductCode); code != "" {
			snap.ByCode[code] = append(snap.ByCode[code], p)
		}
		if p.GenericGroupId != 0 {
			snap.ByGroup[p.GenericGroupId] = append(snap.ByGroup[p.GenericGroupId], p)
		}
		snap.ByLab[p.LaboratoryId] = append(snap.ByLab[p.LaboratoryId], p)
	}

	ix.mu.Lock()
	ix.current = snap
	ix.builtAt = time.Now()
	ix.mu.Unlock()
	return snap, nil
}

// Invalidate drops the cached snapshot. The next Snapshot call rebuilds
// from the catalog provider.
func (ix *Indexes) Invalidate() {
	ix.mu.Lock()
	ix.current = nil
	ix.builtAt = time.Time{}
	ix.mu.Unlock()
}

// LabName resolves a laboratory name from the snapshot, "?" when the
// laboratory is unknown.
func (snap *CatalogSnapshot) LabName(id int) string {
	if lab, ok := snap.Labs[id]; ok {
		return lab.Name
	}
	return "?"
}
