// Package inventory implements the kitchen inventory operations shared by
// the fast-path dispatcher and the reasoning tools: zone resolution, item
// lookup, auto-tagging, dictionary defaults and single-level undo.
package inventory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"
)

const maxSuggestions = 3

// Service performs inventory operations against the backing store and keeps
// the snapshot cache and undo stack consistent with them.
type Service struct {
	db       store.Store
	snapshot *SnapshotCache
	tagger   *Tagger
	undo     *UndoStack
}

// NewService wires a Service. A nil tagger selects DefaultTagger and a nil
// undo stack gets a fresh one.
func NewService(db store.Store, snapshot *SnapshotCache, tagger *Tagger, undo *UndoStack) *Service {
	if snapshot == nil {
		snapshot = NewSnapshotCache(db, 0)
	}
	if tagger == nil {
		tagger = DefaultTagger()
	}
	if undo == nil {
		undo = NewUndoStack()
	}
	return &Service{db: db, snapshot: snapshot, tagger: tagger, undo: undo}
}

// Snapshot exposes the cache so other writers can invalidate it.
func (s *Service) Snapshot() *SnapshotCache { return s.snapshot }

// UndoStack exposes the per-chat undo stack.
func (s *Service) UndoStack() *UndoStack { return s.undo }

// Bootstrap creates a location for every zone and the tags the auto-tagger
// can emit.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.db.EnsureLocations(ctx, Zones); err != nil {
		return fmt.Errorf("ensure locations: %w", err)
	}
	for _, name := range s.tagger.Known() {
		tag := models.Tag{Name: name, Category: s.tagger.Category(name)}
		if err := s.db.CreateTag(ctx, &tag); err != nil {
			return fmt.Errorf("ensure tag %s: %w", name, err)
		}
	}
	return nil
}

// ── Lookup ──────────────────────────────────────────────────

// ResolveZone maps a zone ID (or grouped alias) to its location.
func (s *Service) ResolveZone(ctx context.Context, zone string) (*models.Location, error) {
	canonical, ok := CanonicalZone(zone)
	if !ok {
		return nil, errs.NotFound(ValidZonesHint(), "Unknown zone %q.", strings.ToUpper(strings.TrimSpace(zone)))
	}
	loc, err := s.db.GetLocationByName(ctx, canonical)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errs.NotFound(ValidZonesHint(), "Unknown zone %q.", canonical)
		}
		return nil, err
	}
	return loc, nil
}

// Search finds items by exact name, partial name, then notes.
func (s *Service) Search(ctx context.Context, query string) ([]models.Item, error) {
	return s.snapshot.Search(ctx, query)
}

// Check is Search that reports an empty result as not found.
func (s *Service) Check(ctx context.Context, name string) ([]models.Item, error) {
	items, err := s.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errs.NotFound(s.suggest(ctx, name), "No %q found in inventory.", name)
	}
	return items, nil
}

// ListZone returns the items stored in zone and the canonical zone name.
func (s *Service) ListZone(ctx context.Context, zone string) (string, []models.Item, error) {
	loc, err := s.ResolveZone(ctx, zone)
	if err != nil {
		return "", nil, err
	}
	snap, err := s.snapshot.Get(ctx)
	if err != nil {
		return "", nil, err
	}
	var out []models.Item
	for _, it := range snap.Items {
		if it.LocationID == loc.ID {
			out = append(out, it)
		}
	}
	return loc.Name, out, nil
}

// All returns every item, ordered by name.
func (s *Service) All(ctx context.Context) ([]models.Item, error) {
	snap, err := s.snapshot.Get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Items, nil
}

// ItemNames returns the distinct item names, sorted.
func (s *Service) ItemNames(ctx context.Context) ([]string, error) {
	items, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	slices.SortFunc(names, func(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) })
	return slices.CompactFunc(names, strings.EqualFold), nil
}

// find resolves name (and optionally zone) to exactly one item.
func (s *Service) find(ctx context.Context, name, zone, verb string) (*models.Item, error) {
	items, err := s.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errs.NotFound(s.suggest(ctx, name), "Could not find %q in inventory.", name)
	}

	if strings.TrimSpace(zone) != "" {
		loc, err := s.ResolveZone(ctx, zone)
		if err != nil {
			return nil, err
		}
		items = slices.DeleteFunc(items, func(it models.Item) bool { return it.LocationID != loc.ID })
		if len(items) == 0 {
			return nil, errs.NotFound("", "No %q found in %s.", name, loc.Name)
		}
	}

	if len(items) > 1 {
		candidates := make([]string, len(items))
		for i, it := range items {
			candidates[i] = fmt.Sprintf("%s (x%d) in %s", it.Name, it.Quantity, locationName(it))
		}
		hint := fmt.Sprintf("Please be more specific (e.g. %q).", fmt.Sprintf("%s %s from %s", verb, name, locationName(items[0])))
		return nil, errs.Ambiguous(candidates, hint, "Multiple matches for %q:", name)
	}
	return &items[0], nil
}

// suggest builds a "Did you mean" hint from fuzzy matches on item names.
func (s *Service) suggest(ctx context.Context, name string) string {
	names, err := s.ItemNames(ctx)
	if err != nil || len(names) == 0 {
		return ""
	}
	lower := make([]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(n)
	}
	matches := fuzzy.Find(strings.ToLower(strings.TrimSpace(name)), lower)
	if len(matches) == 0 {
		return ""
	}
	var picks []string
	for _, m := range matches[:min(len(matches), maxSuggestions)] {
		picks = append(picks, names[m.Index])
	}
	return "Did you mean: " + strings.Join(picks, ", ") + "?"
}

func locationName(it models.Item) string {
	if it.LocationName == "" {
		return "unknown location"
	}
	return it.LocationName
}

// ── Mutations ───────────────────────────────────────────────

// AddRequest describes an item being put away. Quantity zero means one.
// Zone may be empty when the dictionary has a default zone for Name.
type AddRequest struct {
	Name     string
	Quantity int
	Zone     string
	Notes    string
}

// AddResult reports what Add did.
type AddResult struct {
	Item models.Item
	// Updated is true when an existing row in the same zone was topped up.
	Updated          bool
	PreviousQuantity int
	Tags             []string
}

// Add inserts an item, or increments the quantity of a same-named item
// already in that zone.
func (s *Service) Add(ctx context.Context, chatID int64, req AddRequest) (*AddResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.Validation("Item name is required.")
	}
	qty := req.Quantity
	if qty < 0 {
		return nil, errs.Validation("Quantity must be positive, got %d.", qty)
	}
	if qty == 0 {
		qty = 1
	}

	dict, err := s.db.GetDictionaryEntry(ctx, name)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}

	zone := req.Zone
	if strings.TrimSpace(zone) == "" && dict != nil {
		zone = dict.DefaultZone
	}
	if strings.TrimSpace(zone) == "" {
		return nil, errs.Validation("Which zone should %s go in? %s", name, ValidZonesHint())
	}
	loc, err := s.ResolveZone(ctx, zone)
	if err != nil {
		return nil, err
	}

	existing, err := s.itemInLocation(ctx, name, loc.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		newQty := existing.Quantity + qty
		if err := s.db.UpdateItemQuantity(ctx, existing.ID, newQty); err != nil {
			return nil, err
		}
		tags := s.applyAutoTags(ctx, *existing)
		s.snapshot.Invalidate()
		s.undo.Push(chatID, UndoAction{
			Kind:             UndoRevertQuantity,
			ItemID:           existing.ID,
			PreviousQuantity: existing.Quantity,
			Description:      fmt.Sprintf("%s quantity reverted to %d in %s", existing.Name, existing.Quantity, loc.Name),
		})
		prev := existing.Quantity
		existing.Quantity = newQty
		log.Info().Int64("chat_id", chatID).Str("item", existing.Name).Str("zone", loc.Name).Int("quantity", newQty).Msg("Item quantity increased")
		return &AddResult{Item: *existing, Updated: true, PreviousQuantity: prev, Tags: tags}, nil
	}

	item := models.Item{Name: name, LocationID: loc.ID, LocationName: loc.Name, Quantity: qty, Notes: strings.TrimSpace(req.Notes)}
	if item.Notes == "" && dict != nil {
		item.Notes = dict.DefaultNotes
	}
	if err := s.db.InsertItem(ctx, &item); err != nil {
		return nil, err
	}
	item.LocationName = loc.Name

	tags := s.applyAutoTags(ctx, item)
	if dict != nil && len(dict.DefaultTags) > 0 {
		applied, err := s.attachNamedTags(ctx, item.ID, dict.DefaultTags, models.TagSourceDictionary)
		if err != nil {
			log.Warn().Err(err).Str("item", item.Name).Msg("Failed to apply dictionary tags")
		}
		tags = union(tags, applied)
	}

	s.snapshot.Invalidate()
	s.undo.Push(chatID, UndoAction{
		Kind:        UndoDelete,
		ItemID:      item.ID,
		Description: fmt.Sprintf("%s removed from %s", item.Name, loc.Name),
	})
	log.Info().Int64("chat_id", chatID).Str("item", item.Name).Str("zone", loc.Name).Int("quantity", qty).Msg("Item added")
	return &AddResult{Item: item, Tags: tags}, nil
}

func (s *Service) itemInLocation(ctx context.Context, name string, locationID int64) (*models.Item, error) {
	items, err := s.db.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.LocationID == locationID && strings.EqualFold(it.Name, name) {
			return &it, nil
		}
	}
	return nil, nil
}

// Remove deletes the single item matching name, narrowed by zone when
// given.
func (s *Service) Remove(ctx context.Context, chatID int64, name, zone string) (*models.Item, error) {
	item, err := s.find(ctx, name, zone, "remove")
	if err != nil {
		return nil, err
	}
	tags, err := s.db.TagsForItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if err := s.db.DeleteItem(ctx, item.ID); err != nil {
		return nil, err
	}
	s.snapshot.Invalidate()
	s.undo.Push(chatID, UndoAction{
		Kind:        UndoRestore,
		Item:        *item,
		Tags:        tags,
		Description: fmt.Sprintf("%s restored to %s", item.Name, locationName(*item)),
	})
	log.Info().Int64("chat_id", chatID).Str("item", item.Name).Str("zone", item.LocationName).Msg("Item removed")
	return item, nil
}

// MoveResult reports a relocation.
type MoveResult struct {
	Item models.Item
	From string
	To   string
}

// Move relocates the single item matching name to toZone. fromZone narrows
// the lookup when the item is stored in several places.
func (s *Service) Move(ctx context.Context, chatID int64, name, fromZone, toZone string) (*MoveResult, error) {
	to, err := s.ResolveZone(ctx, toZone)
	if err != nil {
		return nil, err
	}
	item, err := s.find(ctx, name, fromZone, "move")
	if err != nil {
		return nil, err
	}
	if item.LocationID == to.ID {
		return nil, errs.Validation("%s is already in %s.", item.Name, to.Name)
	}
	if err := s.db.UpdateItemLocation(ctx, item.ID, to.ID); err != nil {
		return nil, err
	}
	s.snapshot.Invalidate()
	from := locationName(*item)
	s.undo.Push(chatID, UndoAction{
		Kind:               UndoRevertLocation,
		ItemID:             item.ID,
		PreviousLocationID: item.LocationID,
		Description:        fmt.Sprintf("%s moved back to %s", item.Name, from),
	})

	moved := *item
	moved.LocationID, moved.LocationName = to.ID, to.Name
	log.Info().Int64("chat_id", chatID).Str("item", item.Name).Str("from", from).Str("to", to.Name).Msg("Item moved")
	return &MoveResult{Item: moved, From: from, To: to.Name}, nil
}

// QuantityResult reports a quantity change.
type QuantityResult struct {
	Item     models.Item
	Previous int
}

// SetQuantity overwrites the quantity of the single item matching name.
func (s *Service) SetQuantity(ctx context.Context, chatID int64, name string, quantity int) (*QuantityResult, error) {
	if quantity < 0 {
		return nil, errs.Validation("Quantity must not be negative, got %d.", quantity)
	}
	item, err := s.find(ctx, name, "", "set")
	if err != nil {
		return nil, err
	}
	if err := s.db.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
		return nil, err
	}
	s.snapshot.Invalidate()
	s.undo.Push(chatID, UndoAction{
		Kind:             UndoRevertQuantity,
		ItemID:           item.ID,
		PreviousQuantity: item.Quantity,
		Description:      fmt.Sprintf("%s quantity reverted to %d in %s", item.Name, item.Quantity, locationName(*item)),
	})

	updated := *item
	updated.Quantity = quantity
	return &QuantityResult{Item: updated, Previous: item.Quantity}, nil
}

// Undo pops and reverses the pending action for chatID. It returns nil
// when there is nothing to undo.
func (s *Service) Undo(ctx context.Context, chatID int64) (*UndoAction, error) {
	action, ok := s.undo.Pop(chatID)
	if !ok {
		return nil, nil
	}
	defer s.snapshot.Invalidate()

	var err error
	switch action.Kind {
	case UndoRestore:
		item := action.Item
		item.ID = 0
		if err = s.db.InsertItem(ctx, &item); err == nil {
			s.restoreTags(ctx, item.ID, action.Tags)
		}
	case UndoDelete:
		err = s.db.DeleteItem(ctx, action.ItemID)
	case UndoRevertQuantity:
		err = s.db.UpdateItemQuantity(ctx, action.ItemID, action.PreviousQuantity)
	case UndoRevertLocation:
		err = s.db.UpdateItemLocation(ctx, action.ItemID, action.PreviousLocationID)
	default:
		err = fmt.Errorf("unknown undo kind %q", action.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("undo %s: %w", action.Kind, err)
	}
	log.Info().Int64("chat_id", chatID).Str("kind", string(action.Kind)).Msg("Undo applied")
	return &action, nil
}

func (s *Service) restoreTags(ctx context.Context, itemID int64, tags []models.TagInfo) {
	bySource := make(map[models.TagSource][]string)
	for _, t := range tags {
		bySource[t.Source] = append(bySource[t.Source], t.Name)
	}
	for source, names := range bySource {
		if _, err := s.attachNamedTags(ctx, itemID, names, source); err != nil {
			log.Warn().Err(err).Int64("item_id", itemID).Msg("Failed to restore tags")
		}
	}
}

// ── Tags ────────────────────────────────────────────────────

// TagItem attaches tags to the single item matching name, creating custom
// tags as needed.
func (s *Service) TagItem(ctx context.Context, name string, tags []string) (*models.Item, []string, error) {
	item, err := s.find(ctx, name, "", "tag")
	if err != nil {
		return nil, nil, err
	}
	applied, err := s.attachNamedTags(ctx, item.ID, tags, models.TagSourceManual)
	if err != nil {
		return nil, nil, err
	}
	if len(applied) == 0 {
		return nil, nil, errs.Validation("No tag names given.")
	}
	return item, applied, nil
}

// UntagItem detaches one tag from the single item matching name.
func (s *Service) UntagItem(ctx context.Context, name, tagName string) (*models.Item, error) {
	item, err := s.find(ctx, name, "", "untag")
	if err != nil {
		return nil, err
	}
	tag, err := s.db.GetTagByName(ctx, strings.TrimSpace(tagName))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errs.NotFound("", "Tag %q not found.", tagName)
		}
		return nil, err
	}
	if err := s.db.DetachTag(ctx, item.ID, tag.ID); err != nil {
		if store.IsNotFound(err) {
			return nil, errs.NotFound("", "%s is not tagged %q.", item.Name, tag.Name)
		}
		return nil, err
	}
	return item, nil
}

// ItemTags returns the tags of the single item matching name.
func (s *Service) ItemTags(ctx context.Context, name string) (*models.Item, []models.TagInfo, error) {
	item, err := s.find(ctx, name, "", "show tags of")
	if err != nil {
		return nil, nil, err
	}
	tags, err := s.db.TagsForItem(ctx, item.ID)
	if err != nil {
		return nil, nil, err
	}
	return item, tags, nil
}

// TagsForItemID returns the tags attached to an item.
func (s *Service) TagsForItemID(ctx context.Context, itemID int64) ([]models.TagInfo, error) {
	return s.db.TagsForItem(ctx, itemID)
}

// ItemsByTag returns items carrying tagName. An unknown tag yields no items.
func (s *Service) ItemsByTag(ctx context.Context, tagName string) ([]models.TaggedItem, error) {
	tag, err := s.db.GetTagByName(ctx, strings.TrimSpace(tagName))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.db.ItemsByTag(ctx, tag.ID)
}

// TagCounts returns every tag in use with its item count.
func (s *Service) TagCounts(ctx context.Context) ([]models.TagCount, error) {
	return s.db.TagCounts(ctx)
}

// applyAutoTags attaches the rule-derived tags of item. Failures are
// logged; tagging never fails the surrounding mutation.
func (s *Service) applyAutoTags(ctx context.Context, item models.Item) []string {
	names := s.tagger.Compute(item.Name, item.Notes)
	if len(names) == 0 {
		return nil
	}
	applied, err := s.attachNamedTags(ctx, item.ID, names, models.TagSourceAuto)
	if err != nil {
		log.Warn().Err(err).Str("item", item.Name).Msg("Failed to apply auto tags")
	}
	return applied
}

// attachNamedTags resolves tag names to IDs, creating missing tags, and
// links them to itemID. Names are trimmed and lower-cased.
func (s *Service) attachNamedTags(ctx context.Context, itemID int64, names []string, source models.TagSource) ([]string, error) {
	var ids []int64
	var applied []string
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || slices.Contains(applied, name) {
			continue
		}
		tag, err := s.db.GetTagByName(ctx, name)
		if err != nil {
			if !store.IsNotFound(err) {
				return applied, err
			}
			_, known := s.tagger.categories[name]
			tag = &models.Tag{Name: name, Category: s.tagger.Category(name), IsCustom: !known}
			if err := s.db.CreateTag(ctx, tag); err != nil {
				return applied, err
			}
		}
		ids = append(ids, tag.ID)
		applied = append(applied, name)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.db.AttachTags(ctx, itemID, ids, source); err != nil {
		return nil, err
	}
	return applied, nil
}

// ── Dictionary ──────────────────────────────────────────────

// Dictionary lists the per-item defaults.
func (s *Service) Dictionary(ctx context.Context) ([]models.DictionaryEntry, error) {
	return s.db.ListDictionary(ctx)
}

// SaveDictionaryEntry validates and upserts a dictionary entry.
func (s *Service) SaveDictionaryEntry(ctx context.Context, e *models.DictionaryEntry) error {
	e.ItemName = strings.TrimSpace(e.ItemName)
	if e.ItemName == "" {
		return errs.Validation("Item name is required.")
	}
	if e.DefaultZone != "" {
		zone, ok := CanonicalZone(e.DefaultZone)
		if !ok {
			return errs.NotFound(ValidZonesHint(), "Unknown zone %q.", e.DefaultZone)
		}
		e.DefaultZone = zone
	}
	return s.db.UpsertDictionaryEntry(ctx, e)
}

// DeleteDictionaryEntry removes the defaults for itemName.
func (s *Service) DeleteDictionaryEntry(ctx context.Context, itemName string) error {
	if err := s.db.DeleteDictionaryEntry(ctx, itemName); err != nil {
		if store.IsNotFound(err) {
			return errs.NotFound("", "No dictionary entry for %q.", itemName)
		}
		return err
	}
	return nil
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
