package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
)

// newTestStore creates a fresh in-memory store with no persistence.
func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureLocations(context.Background(), []string{"A1", "N2"}); err != nil {
		t.Fatalf("EnsureLocations() error = %v", err)
	}
	return s
}

func location(t *testing.T, s store.Store, name string) *models.Location {
	t.Helper()
	loc, err := s.GetLocationByName(context.Background(), name)
	if err != nil {
		t.Fatalf("GetLocationByName(%q) error = %v", name, err)
	}
	return loc
}

// ─── Items ───────────────────────────────────────────────────

func TestInsertAndGetItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n2 := location(t, s, "n2")

	item := &models.Item{Name: "Bananas", LocationID: n2.ID, Quantity: 5}
	if err := s.InsertItem(ctx, item); err != nil {
		t.Fatalf("InsertItem() error = %v", err)
	}
	if item.ID == 0 {
		t.Fatal("InsertItem() did not assign an ID")
	}

	got, err := s.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got.LocationName != "N2" {
		t.Errorf("GetItem().LocationName = %q, want %q", got.LocationName, "N2")
	}
	if got.Quantity != 5 {
		t.Errorf("GetItem().Quantity = %d, want 5", got.Quantity)
	}
}

func TestInsertItem_UnknownLocation(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertItem(context.Background(), &models.Item{Name: "x", LocationID: 999, Quantity: 1})
	if !store.IsNotFound(err) {
		t.Fatalf("InsertItem() error = %v, want not found", err)
	}
}

func TestDeleteItem_RemovesTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a1 := location(t, s, "A1")

	item := &models.Item{Name: "Rice", LocationID: a1.ID, Quantity: 1}
	s.InsertItem(ctx, item)
	tag := &models.Tag{Name: "grain", Category: models.TagCategoryFoodType}
	s.CreateTag(ctx, tag)
	s.AttachTags(ctx, item.ID, []int64{tag.ID}, models.TagSourceAuto)

	if err := s.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	counts, _ := s.TagCounts(ctx)
	if len(counts) != 0 {
		t.Errorf("TagCounts() after delete = %v, want empty", counts)
	}
	if err := s.DeleteItem(ctx, item.ID); !store.IsNotFound(err) {
		t.Errorf("second DeleteItem() error = %v, want not found", err)
	}
}

// ─── Tags ────────────────────────────────────────────────────

func TestAttachTags_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a1 := location(t, s, "A1")

	item := &models.Item{Name: "Pan", LocationID: a1.ID, Quantity: 1}
	s.InsertItem(ctx, item)
	tag := &models.Tag{Name: "cookware", Category: models.TagCategoryHousehold}
	s.CreateTag(ctx, tag)

	s.AttachTags(ctx, item.ID, []int64{tag.ID}, models.TagSourceAuto)
	s.AttachTags(ctx, item.ID, []int64{tag.ID}, models.TagSourceManual)

	tags, err := s.TagsForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("TagsForItem() error = %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("TagsForItem() = %v, want one tag", tags)
	}
	if tags[0].Source != models.TagSourceAuto {
		t.Errorf("source = %q, want first writer %q", tags[0].Source, models.TagSourceAuto)
	}
}

func TestCreateTag_ExistingNameReturnsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Tag{Name: "Spicy", Category: models.TagCategorySection, IsCustom: true}
	s.CreateTag(ctx, first)
	second := &models.Tag{Name: "spicy", Category: models.TagCategorySection, IsCustom: true}
	s.CreateTag(ctx, second)

	if first.ID != second.ID {
		t.Errorf("CreateTag() ids = %d, %d; want equal", first.ID, second.ID)
	}
}

// ─── Utterances ──────────────────────────────────────────────

func TestUpsertUtterance_PreservesEarnedState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	u := &models.LearnedUtterance{
		Pattern:      "put the {item} in {zone}",
		Regex:        `^put\s+the\s+(.+?)\s+in\s+([A-Za-z]\d+)$`,
		CommandType:  models.CommandMove,
		ParamMapping: map[string]int{"itemName": 1, "zone": 2},
		ExpiresAt:    now.Add(24 * time.Hour),
	}
	if err := s.UpsertUtterance(ctx, u); err != nil {
		t.Fatalf("UpsertUtterance() error = %v", err)
	}
	promoted := now.Add(30 * 24 * time.Hour)
	s.UpdateUtteranceStats(ctx, u.ID, 9, 2, promoted)

	again := &models.LearnedUtterance{
		Pattern:      u.Pattern,
		Regex:        u.Regex,
		CommandType:  models.CommandAdd,
		ParamMapping: map[string]int{"itemName": 1},
		ExpiresAt:    now.Add(24 * time.Hour),
	}
	if err := s.UpsertUtterance(ctx, again); err != nil {
		t.Fatalf("UpsertUtterance() second call error = %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("upsert ID = %d, want %d", again.ID, u.ID)
	}

	got, _ := s.GetUtterance(ctx, u.ID)
	if got.CommandType != models.CommandAdd {
		t.Errorf("CommandType = %q, want %q", got.CommandType, models.CommandAdd)
	}
	if got.HitCount != 9 || got.TTLLevel != 2 || !got.ExpiresAt.Equal(promoted) {
		t.Errorf("earned state = (%d, %d, %v), want (9, 2, %v)", got.HitCount, got.TTLLevel, got.ExpiresAt, promoted)
	}
}

func TestPruneUtterances_DropsWeakestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	add := func(pattern string, level int, expires time.Duration) int64 {
		u := &models.LearnedUtterance{Pattern: pattern, Regex: "^x$", CommandType: models.CommandList, ExpiresAt: now.Add(expires)}
		s.UpsertUtterance(ctx, u)
		s.UpdateUtteranceStats(ctx, u.ID, 0, level, now.Add(expires))
		return u.ID
	}
	strong := add("strong one here", 3, time.Hour)
	weakLate := add("weak late one", 0, 10*time.Hour)
	weakSoon := add("weak soon one", 0, time.Hour)

	n, err := s.PruneUtterances(ctx, 2)
	if err != nil {
		t.Fatalf("PruneUtterances() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PruneUtterances() = %d, want 1", n)
	}
	if _, err := s.GetUtterance(ctx, weakSoon); !store.IsNotFound(err) {
		t.Errorf("weakest utterance survived prune")
	}
	for _, id := range []int64{strong, weakLate} {
		if _, err := s.GetUtterance(ctx, id); err != nil {
			t.Errorf("GetUtterance(%d) error = %v", id, err)
		}
	}
}

func TestListActiveUtterances_SkipsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	live := &models.LearnedUtterance{Pattern: "live one here", Regex: "^a$", CommandType: models.CommandList, ExpiresAt: now.Add(time.Hour)}
	dead := &models.LearnedUtterance{Pattern: "dead one here", Regex: "^b$", CommandType: models.CommandList, ExpiresAt: now.Add(-time.Hour)}
	s.UpsertUtterance(ctx, live)
	s.UpsertUtterance(ctx, dead)

	got, err := s.ListActiveUtterances(ctx, now, 200)
	if err != nil {
		t.Fatalf("ListActiveUtterances() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != live.ID {
		t.Errorf("ListActiveUtterances() = %v, want only the live utterance", got)
	}

	n, _ := s.DeleteExpiredUtterances(ctx, now)
	if n != 1 {
		t.Errorf("DeleteExpiredUtterances() = %d, want 1", n)
	}
}

// ─── Pipelines ───────────────────────────────────────────────

func TestUpsertPipeline_ReplacesAndResetsHits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Pipeline{Name: "zone_report", SQLTemplate: "SELECT 1"}
	s.UpsertPipeline(ctx, p)
	s.IncrementPipelineHits(ctx, p.ID)

	replacement := &models.Pipeline{Name: "zone_report", SQLTemplate: "SELECT 2"}
	if err := s.UpsertPipeline(ctx, replacement); err != nil {
		t.Fatalf("UpsertPipeline() error = %v", err)
	}
	got, err := s.GetPipelineByName(ctx, "zone_report")
	if err != nil {
		t.Fatalf("GetPipelineByName() error = %v", err)
	}
	if got.ID != p.ID || got.HitCount != 0 || got.SQLTemplate != "SELECT 2" {
		t.Errorf("pipeline = %+v, want same id, 0 hits, new SQL", got)
	}
}

// ─── Query runner ────────────────────────────────────────────

func TestExecReadOnly_NeedsQueryFunc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ExecReadOnly(ctx, "SELECT 1", nil); !errors.Is(err, store.ErrRawSQLUnsupported) {
		t.Fatalf("ExecReadOnly() error = %v, want ErrRawSQLUnsupported", err)
	}

	var sawReadOnly bool
	s.SetQueryFunc(func(_ context.Context, _ string, params []string, readOnly bool) (*models.QueryResult, error) {
		sawReadOnly = readOnly
		return &models.QueryResult{Rows: []map[string]any{{"p": params[0]}}}, nil
	})
	res, err := s.ExecReadOnly(ctx, "SELECT $1 AS p", []string{"x"})
	if err != nil {
		t.Fatalf("ExecReadOnly() error = %v", err)
	}
	if !sawReadOnly || res.Rows[0]["p"] != "x" {
		t.Errorf("ExecReadOnly() rows = %v readOnly = %v", res.Rows, sawReadOnly)
	}
}

// ─── Persistence ─────────────────────────────────────────────

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "larder.json")
	ctx := context.Background()

	s := store.NewMemoryStore(path)
	s.EnsureLocations(ctx, []string{"B1"})
	b1, _ := s.GetLocationByName(ctx, "B1")
	s.InsertItem(ctx, &models.Item{Name: "Flour", LocationID: b1.ID, Quantity: 2})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := store.NewMemoryStore(path)
	defer reopened.Close()
	items, err := reopened.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(items) != 1 || items[0].Name != "Flour" || items[0].LocationName != "B1" {
		t.Errorf("ListItems() after reload = %+v", items)
	}

	// New rows must not collide with reloaded IDs.
	next := &models.Item{Name: "Sugar", LocationID: b1.ID, Quantity: 1}
	reopened.InsertItem(ctx, next)
	if next.ID == items[0].ID {
		t.Errorf("InsertItem() reused id %d", next.ID)
	}
}
