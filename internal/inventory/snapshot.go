package inventory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultSnapshotTTL bounds how stale a snapshot may be.
const DefaultSnapshotTTL = 60 * time.Second

// Snapshot is a point-in-time copy of items and locations.
type Snapshot struct {
	Items     []models.Item
	Locations []models.Location
	FetchedAt time.Time
}

// SnapshotCache is a read-through cache of the inventory. It is an
// optimisation only; writes always go to the store.
type SnapshotCache struct {
	db  store.Store
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	snap *Snapshot
}

// NewSnapshotCache creates a cache. ttl of zero selects DefaultSnapshotTTL.
func NewSnapshotCache(db store.Store, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{db: db, ttl: ttl, now: time.Now}
}

// Get returns the current snapshot, refetching when stale.
func (c *SnapshotCache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil && c.now().Sub(c.snap.FetchedAt) < c.ttl {
		return c.snap, nil
	}

	var items []models.Item
	var locations []models.Location
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		items, err = c.db.ListItems(gctx)
		return err
	})
	g.Go(func() (err error) {
		locations, err = c.db.ListLocations(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.snap = &Snapshot{Items: items, Locations: locations, FetchedAt: c.now()}
	return c.snap, nil
}

// Invalidate drops the snapshot so the next Get refetches.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

// Search finds items by exact name, then by name substring, then by notes
// substring, all case-insensitive. The first tier with results wins.
func (c *SnapshotCache) Search(ctx context.Context, query string) ([]models.Item, error) {
	snap, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return searchItems(snap.Items, query), nil
}

func searchItems(items []models.Item, query string) []models.Item {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	tiers := []func(models.Item) bool{
		func(it models.Item) bool { return strings.ToLower(it.Name) == q },
		func(it models.Item) bool { return strings.Contains(strings.ToLower(it.Name), q) },
		func(it models.Item) bool { return it.Notes != "" && strings.Contains(strings.ToLower(it.Notes), q) },
	}
	for _, match := range tiers {
		var out []models.Item
		for _, it := range items {
			if match(it) {
				out = append(out, it)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
