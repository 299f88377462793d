// In-memory Store.
// Used when DATABASE_URL is not set (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.

package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentoven/larder/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrRawSQLUnsupported is returned by the memory store's query runner when
// no QueryFunc is installed.
var ErrRawSQLUnsupported = errors.New("raw SQL requires the PostgreSQL store")

// QueryFunc stands in for a SQL engine in the memory store. readOnly is true
// for ExecReadOnly calls.
type QueryFunc func(ctx context.Context, sql string, params []string, readOnly bool) (*models.QueryResult, error)

type itemTag struct {
	ItemID int64            `json:"item_id"`
	TagID  int64            `json:"tag_id"`
	Source models.TagSource `json:"source"`
}

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	NextID     int64                              `json:"next_id"`
	Items      map[int64]*models.Item             `json:"items"`
	Locations  map[int64]*models.Location         `json:"locations"`
	Tags       map[int64]*models.Tag              `json:"tags"`
	ItemTags   []itemTag                          `json:"item_tags"`
	Dictionary map[string]*models.DictionaryEntry `json:"dictionary"` // key: lower(item_name)
	Utterances map[int64]*models.LearnedUtterance `json:"utterances"`
	Pipelines  map[int64]*models.Pipeline         `json:"pipelines"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	items      map[int64]*models.Item
	locations  map[int64]*models.Location
	tags       map[int64]*models.Tag
	itemTags   []itemTag
	dictionary map[string]*models.DictionaryEntry
	utterances map[int64]*models.LearnedUtterance
	pipelines  map[int64]*models.Pipeline

	query QueryFunc

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store. When snapshotPath is not
// empty, data is loaded from and persisted to that JSON file.
func NewMemoryStore(snapshotPath string) *MemoryStore {
	m := &MemoryStore{
		items:        make(map[int64]*models.Item),
		locations:    make(map[int64]*models.Location),
		tags:         make(map[int64]*models.Tag),
		dictionary:   make(map[string]*models.DictionaryEntry),
		utterances:   make(map[int64]*models.LearnedUtterance),
		pipelines:    make(map[int64]*models.Pipeline),
		snapshotPath: snapshotPath,
		saveCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}

	if m.snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0o755); err != nil {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}
	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// SetQueryFunc installs the function that serves ExecReadOnly and
// ExecMutation.
func (m *MemoryStore) SetQueryFunc(fn QueryFunc) {
	m.mu.Lock()
	m.query = fn
	m.mu.Unlock()
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		NextID:     m.nextID,
		Items:      m.items,
		Locations:  m.locations,
		Tags:       m.tags,
		ItemTags:   m.itemTags,
		Dictionary: m.dictionary,
		Utterances: m.utterances,
		Pipelines:  m.pipelines,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}
	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = snap.NextID
	if snap.Items != nil {
		m.items = snap.Items
	}
	if snap.Locations != nil {
		m.locations = snap.Locations
	}
	if snap.Tags != nil {
		m.tags = snap.Tags
	}
	m.itemTags = snap.ItemTags
	if snap.Dictionary != nil {
		m.dictionary = snap.Dictionary
	}
	if snap.Utterances != nil {
		m.utterances = snap.Utterances
	}
	if snap.Pipelines != nil {
		m.pipelines = snap.Pipelines
	}

	log.Info().
		Int("items", len(m.items)).
		Int("utterances", len(m.utterances)).
		Int("pipelines", len(m.pipelines)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save loop and forces a final snapshot write.
// Safe to call multiple times.
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}
	if m.snapshotPath != "" {
		m.saveSnapshot()
	}
	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// id returns the next identifier. Callers hold m.mu.
func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

// ── Item Store ──────────────────────────────────────────────

func (m *MemoryStore) withLocation(it models.Item) models.Item {
	if loc, ok := m.locations[it.LocationID]; ok {
		it.LocationName = loc.Name
	}
	return it
}

func (m *MemoryStore) ListItems(_ context.Context) ([]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Item, 0, len(m.items))
	for _, it := range m.items {
		result = append(result, m.withLocation(*it))
	}
	slices.SortFunc(result, func(a, b models.Item) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

func (m *MemoryStore) GetItem(_ context.Context, id int64) (*models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "item", Key: idKey(id)}
	}
	copy := m.withLocation(*it)
	return &copy, nil
}

func (m *MemoryStore) InsertItem(_ context.Context, item *models.Item) error {
	m.mu.Lock()
	if _, ok := m.locations[item.LocationID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "location", Key: idKey(item.LocationID)}
	}
	item.ID = m.id()
	copy := *item
	copy.LocationName = ""
	m.items[item.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteItem(_ context.Context, id int64) error {
	m.mu.Lock()
	if _, ok := m.items[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "item", Key: idKey(id)}
	}
	delete(m.items, id)
	m.itemTags = slices.DeleteFunc(m.itemTags, func(t itemTag) bool { return t.ItemID == id })
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateItemQuantity(_ context.Context, id int64, quantity int) error {
	m.mu.Lock()
	it, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "item", Key: idKey(id)}
	}
	it.Quantity = quantity
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateItemLocation(_ context.Context, id int64, locationID int64) error {
	m.mu.Lock()
	it, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "item", Key: idKey(id)}
	}
	if _, ok := m.locations[locationID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "location", Key: idKey(locationID)}
	}
	it.LocationID = locationID
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) CountItems(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

// ── Location Store ──────────────────────────────────────────

func (m *MemoryStore) ListLocations(_ context.Context) ([]models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Location, 0, len(m.locations))
	for _, l := range m.locations {
		result = append(result, *l)
	}
	slices.SortFunc(result, func(a, b models.Location) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (m *MemoryStore) GetLocationByName(_ context.Context, name string) (*models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.locations {
		if strings.EqualFold(l.Name, name) {
			copy := *l
			return &copy, nil
		}
	}
	return nil, &ErrNotFound{Entity: "location", Key: name}
}

func (m *MemoryStore) EnsureLocations(_ context.Context, names []string) error {
	m.mu.Lock()
	existing := make(map[string]bool, len(m.locations))
	for _, l := range m.locations {
		existing[strings.ToUpper(l.Name)] = true
	}
	for _, n := range names {
		if existing[strings.ToUpper(n)] {
			continue
		}
		id := m.id()
		m.locations[id] = &models.Location{ID: id, Name: n}
		existing[strings.ToUpper(n)] = true
	}
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Tag Store ───────────────────────────────────────────────

func (m *MemoryStore) ListTags(_ context.Context) ([]models.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Tag, 0, len(m.tags))
	for _, t := range m.tags {
		result = append(result, *t)
	}
	slices.SortFunc(result, func(a, b models.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (m *MemoryStore) GetTagByName(_ context.Context, name string) (*models.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t := m.tagByName(name); t != nil {
		copy := *t
		return &copy, nil
	}
	return nil, &ErrNotFound{Entity: "tag", Key: name}
}

func (m *MemoryStore) tagByName(name string) *models.Tag {
	for _, t := range m.tags {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

func (m *MemoryStore) CreateTag(_ context.Context, tag *models.Tag) error {
	m.mu.Lock()
	if existing := m.tagByName(tag.Name); existing != nil {
		tag.ID = existing.ID
		m.mu.Unlock()
		return nil
	}
	tag.ID = m.id()
	copy := *tag
	m.tags[tag.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) AttachTags(_ context.Context, itemID int64, tagIDs []int64, source models.TagSource) error {
	m.mu.Lock()
	for _, tid := range tagIDs {
		exists := slices.ContainsFunc(m.itemTags, func(t itemTag) bool {
			return t.ItemID == itemID && t.TagID == tid
		})
		if !exists {
			m.itemTags = append(m.itemTags, itemTag{ItemID: itemID, TagID: tid, Source: source})
		}
	}
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DetachTag(_ context.Context, itemID, tagID int64) error {
	m.mu.Lock()
	before := len(m.itemTags)
	m.itemTags = slices.DeleteFunc(m.itemTags, func(t itemTag) bool {
		return t.ItemID == itemID && t.TagID == tagID
	})
	removed := before != len(m.itemTags)
	m.mu.Unlock()
	if !removed {
		return &ErrNotFound{Entity: "item tag", Key: idKey(itemID) + ":" + idKey(tagID)}
	}
	m.requestSave()
	return nil
}

func (m *MemoryStore) TagsForItem(_ context.Context, itemID int64) ([]models.TagInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.TagInfo
	for _, it := range m.itemTags {
		if it.ItemID != itemID {
			continue
		}
		if t, ok := m.tags[it.TagID]; ok {
			result = append(result, models.TagInfo{Name: t.Name, Category: t.Category, Source: it.Source})
		}
	}
	slices.SortFunc(result, func(a, b models.TagInfo) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return result, nil
}

func (m *MemoryStore) ItemsByTag(_ context.Context, tagID int64) ([]models.TaggedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.TaggedItem
	for _, it := range m.itemTags {
		if it.TagID != tagID {
			continue
		}
		item, ok := m.items[it.ItemID]
		if !ok {
			continue
		}
		withLoc := m.withLocation(*item)
		result = append(result, models.TaggedItem{
			ID:           item.ID,
			Name:         item.Name,
			Quantity:     item.Quantity,
			LocationName: withLoc.LocationName,
		})
	}
	slices.SortFunc(result, func(a, b models.TaggedItem) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (m *MemoryStore) TagCounts(_ context.Context) ([]models.TagCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[int64]int)
	for _, it := range m.itemTags {
		if _, ok := m.items[it.ItemID]; ok {
			counts[it.TagID]++
		}
	}
	var result []models.TagCount
	for tid, n := range counts {
		if t, ok := m.tags[tid]; ok {
			result = append(result, models.TagCount{Name: t.Name, Category: t.Category, Count: n})
		}
	}
	slices.SortFunc(result, func(a, b models.TagCount) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return result, nil
}

// ── Dictionary Store ────────────────────────────────────────

func (m *MemoryStore) GetDictionaryEntry(_ context.Context, itemName string) (*models.DictionaryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.dictionary[strings.ToLower(itemName)]
	if !ok {
		return nil, &ErrNotFound{Entity: "dictionary entry", Key: itemName}
	}
	copy := *e
	copy.DefaultTags = slices.Clone(e.DefaultTags)
	return &copy, nil
}

func (m *MemoryStore) UpsertDictionaryEntry(_ context.Context, entry *models.DictionaryEntry) error {
	m.mu.Lock()
	k := strings.ToLower(entry.ItemName)
	if existing, ok := m.dictionary[k]; ok {
		entry.ID = existing.ID
	} else {
		entry.ID = m.id()
	}
	copy := *entry
	copy.DefaultTags = slices.Clone(entry.DefaultTags)
	m.dictionary[k] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListDictionary(_ context.Context) ([]models.DictionaryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.DictionaryEntry, 0, len(m.dictionary))
	for _, e := range m.dictionary {
		result = append(result, *e)
	}
	slices.SortFunc(result, func(a, b models.DictionaryEntry) int { return cmp.Compare(a.ItemName, b.ItemName) })
	return result, nil
}

func (m *MemoryStore) DeleteDictionaryEntry(_ context.Context, itemName string) error {
	m.mu.Lock()
	k := strings.ToLower(itemName)
	if _, ok := m.dictionary[k]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "dictionary entry", Key: itemName}
	}
	delete(m.dictionary, k)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Utterance Store ─────────────────────────────────────────

func cloneUtterance(u *models.LearnedUtterance) models.LearnedUtterance {
	copy := *u
	copy.ParamMapping = make(map[string]int, len(u.ParamMapping))
	for k, v := range u.ParamMapping {
		copy.ParamMapping[k] = v
	}
	if u.ExampleExtraction != nil {
		copy.ExampleExtraction = make(map[string]string, len(u.ExampleExtraction))
		for k, v := range u.ExampleExtraction {
			copy.ExampleExtraction[k] = v
		}
	}
	return copy
}

func (m *MemoryStore) ListActiveUtterances(_ context.Context, now time.Time, limit int) ([]models.LearnedUtterance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.LearnedUtterance
	for _, u := range m.utterances {
		if u.ExpiresAt.After(now) {
			result = append(result, cloneUtterance(u))
		}
	}
	slices.SortFunc(result, func(a, b models.LearnedUtterance) int {
		return cmp.Or(cmp.Compare(b.HitCount, a.HitCount), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListUtterances(_ context.Context) ([]models.LearnedUtterance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.LearnedUtterance, 0, len(m.utterances))
	for _, u := range m.utterances {
		result = append(result, cloneUtterance(u))
	}
	slices.SortFunc(result, func(a, b models.LearnedUtterance) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

func (m *MemoryStore) GetUtterance(_ context.Context, id int64) (*models.LearnedUtterance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.utterances[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "utterance", Key: idKey(id)}
	}
	copy := cloneUtterance(u)
	return &copy, nil
}

func (m *MemoryStore) UpsertUtterance(_ context.Context, u *models.LearnedUtterance) error {
	now := time.Now().UTC()
	m.mu.Lock()
	for _, existing := range m.utterances {
		if existing.Pattern != u.Pattern {
			continue
		}
		existing.Regex = u.Regex
		existing.CommandType = u.CommandType
		existing.PipelineID = u.PipelineID
		existing.ExampleInput = u.ExampleInput
		updated := cloneUtterance(u)
		existing.ParamMapping = updated.ParamMapping
		existing.ExampleExtraction = updated.ExampleExtraction
		existing.UpdatedAt = now
		*u = cloneUtterance(existing)
		m.mu.Unlock()
		m.requestSave()
		return nil
	}
	u.ID = m.id()
	u.CreatedAt = now
	u.UpdatedAt = now
	copy := cloneUtterance(u)
	m.utterances[u.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateUtteranceStats(_ context.Context, id int64, hitCount, ttlLevel int, expiresAt time.Time) error {
	m.mu.Lock()
	u, ok := m.utterances[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "utterance", Key: idKey(id)}
	}
	u.HitCount = hitCount
	u.TTLLevel = ttlLevel
	u.ExpiresAt = expiresAt
	u.UpdatedAt = time.Now().UTC()
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteExpiredUtterances(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	var n int
	for id, u := range m.utterances {
		if u.ExpiresAt.Before(now) {
			delete(m.utterances, id)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		m.requestSave()
	}
	return n, nil
}

func (m *MemoryStore) PruneUtterances(_ context.Context, keep int) (int, error) {
	m.mu.Lock()
	excess := len(m.utterances) - keep
	if excess <= 0 {
		m.mu.Unlock()
		return 0, nil
	}
	all := make([]*models.LearnedUtterance, 0, len(m.utterances))
	for _, u := range m.utterances {
		all = append(all, u)
	}
	slices.SortFunc(all, func(a, b *models.LearnedUtterance) int {
		return cmp.Or(
			cmp.Compare(a.TTLLevel, b.TTLLevel),
			a.ExpiresAt.Compare(b.ExpiresAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	for _, u := range all[:excess] {
		delete(m.utterances, u.ID)
	}
	m.mu.Unlock()
	m.requestSave()
	return excess, nil
}

// ── Pipeline Store ──────────────────────────────────────────

func clonePipeline(p *models.Pipeline) models.Pipeline {
	copy := *p
	copy.Params = slices.Clone(p.Params)
	return copy
}

func (m *MemoryStore) ListPipelines(_ context.Context) ([]models.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		result = append(result, clonePipeline(p))
	}
	slices.SortFunc(result, func(a, b models.Pipeline) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (m *MemoryStore) GetPipeline(_ context.Context, id int64) (*models.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "pipeline", Key: idKey(id)}
	}
	copy := clonePipeline(p)
	return &copy, nil
}

func (m *MemoryStore) GetPipelineByName(_ context.Context, name string) (*models.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pipelines {
		if p.Name == name {
			copy := clonePipeline(p)
			return &copy, nil
		}
	}
	return nil, &ErrNotFound{Entity: "pipeline", Key: name}
}

func (m *MemoryStore) UpsertPipeline(_ context.Context, p *models.Pipeline) error {
	now := time.Now().UTC()
	m.mu.Lock()
	for _, existing := range m.pipelines {
		if existing.Name != p.Name {
			continue
		}
		p.ID = existing.ID
		p.HitCount = 0
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = now
		copy := clonePipeline(p)
		m.pipelines[p.ID] = &copy
		m.mu.Unlock()
		m.requestSave()
		return nil
	}
	p.ID = m.id()
	p.CreatedAt = now
	p.UpdatedAt = now
	copy := clonePipeline(p)
	m.pipelines[p.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) IncrementPipelineHits(_ context.Context, id int64) error {
	m.mu.Lock()
	p, ok := m.pipelines[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "pipeline", Key: idKey(id)}
	}
	p.HitCount++
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Query Runner ────────────────────────────────────────────

func (m *MemoryStore) queryFunc() QueryFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.query
}

func (m *MemoryStore) ExecReadOnly(ctx context.Context, sql string, params []string) (*models.QueryResult, error) {
	fn := m.queryFunc()
	if fn == nil {
		return nil, ErrRawSQLUnsupported
	}
	return fn(ctx, sql, params, true)
}

func (m *MemoryStore) ExecMutation(ctx context.Context, sql string, params []string) (*models.QueryResult, error) {
	fn := m.queryFunc()
	if fn == nil {
		return nil, ErrRawSQLUnsupported
	}
	return fn(ctx, sql, params, false)
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
