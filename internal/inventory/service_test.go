package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/inventory"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
)

const chat int64 = 42

func newService(t *testing.T) (*inventory.Service, *store.MemoryStore) {
	t.Helper()
	db := store.NewMemoryStore("")
	t.Cleanup(func() { db.Close() })
	svc := inventory.NewService(db, nil, nil, nil)
	require.NoError(t, svc.Bootstrap(context.Background()))
	return svc, db
}

func tagNames(t *testing.T, db *store.MemoryStore, itemID int64) []string {
	t.Helper()
	tags, err := db.TagsForItem(context.Background(), itemID)
	require.NoError(t, err)
	var names []string
	for _, tg := range tags {
		names = append(names, tg.Name)
	}
	return names
}

func TestAdd_InsertsAndUndoDeletes(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	res, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Bananas", Quantity: 5, Zone: "n2"})
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, "N2", res.Item.LocationName)
	assert.ElementsMatch(t, []string{"produce", "fresh"}, res.Tags)

	items, _ := db.ListItems(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	pending, ok := svc.UndoStack().Peek(chat)
	require.True(t, ok)
	assert.Equal(t, inventory.UndoDelete, pending.Kind)

	action, err := svc.Undo(ctx, chat)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, "Bananas removed from N2", action.Description)

	n, _ := db.CountItems(ctx)
	assert.Zero(t, n)

	again, err := svc.Undo(ctx, chat)
	require.NoError(t, err)
	assert.Nil(t, again, "undo is single-level")
}

func TestAdd_TopsUpExistingRow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Eggs", Quantity: 6, Zone: "A2"})
	require.NoError(t, err)
	res, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "eggs", Quantity: 6, Zone: "A2"})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 6, res.PreviousQuantity)
	assert.Equal(t, 12, res.Item.Quantity)

	_, err = svc.Undo(ctx, chat)
	require.NoError(t, err)
	items, err := svc.Check(ctx, "eggs")
	require.NoError(t, err)
	assert.Equal(t, 6, items[0].Quantity)
}

func TestAdd_ZoneAlias(t *testing.T) {
	svc, _ := newService(t)
	res, err := svc.Add(context.Background(), chat, inventory.AddRequest{Name: "Rice", Zone: "C1"})
	require.NoError(t, err)
	assert.Equal(t, "B1", res.Item.LocationName)
	assert.Equal(t, 1, res.Item.Quantity)
}

func TestAdd_UnknownZoneListsValidZones(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Add(context.Background(), chat, inventory.AddRequest{Name: "Rice", Zone: "Z9"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
	assert.Contains(t, err.Error(), `Unknown zone "Z9".`)
	assert.Contains(t, err.Error(), "Valid zones: A1, A2")
}

func TestAdd_DictionaryDefaults(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveDictionaryEntry(ctx, &models.DictionaryEntry{
		ItemName:     "Dumpling Sauce",
		DefaultNotes: "glass bottle",
		DefaultZone:  "e2",
		DefaultTags:  []string{"Asian"},
	}))

	res, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "dumpling sauce"})
	require.NoError(t, err)
	assert.Equal(t, "D2", res.Item.LocationName)
	assert.Equal(t, "glass bottle", res.Item.Notes)
	assert.ElementsMatch(t, []string{"condiments", "glass", "asian"}, tagNames(t, db, res.Item.ID))

	asian, err := db.GetTagByName(ctx, "asian")
	require.NoError(t, err)
	assert.True(t, asian.IsCustom)
}

func TestAdd_RequiresZone(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Add(context.Background(), chat, inventory.AddRequest{Name: "Salt"})
	assert.True(t, errs.Is(err, errs.KindValidation), "Add() error = %v", err)
}

func TestRemove_UndoRestoresRowAndTags(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	added, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Milk", Quantity: 2, Zone: "F1"})
	require.NoError(t, err)
	_, _, err = svc.TagItem(ctx, "milk", []string{"breakfast"})
	require.NoError(t, err)

	removed, err := svc.Remove(ctx, chat, "milk", "")
	require.NoError(t, err)
	assert.Equal(t, added.Item.ID, removed.ID)

	action, err := svc.Undo(ctx, chat)
	require.NoError(t, err)
	assert.Equal(t, "Milk restored to F1", action.Description)

	items, err := svc.Check(ctx, "milk")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.ElementsMatch(t, []string{"dairy", "fresh", "breakfast"}, tagNames(t, db, items[0].ID))
}

func TestRemove_AmbiguousAcrossZones(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, zone := range []string{"A1", "B2"} {
		_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Flour", Zone: zone})
		require.NoError(t, err)
	}

	_, err := svc.Remove(ctx, chat, "flour", "")
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.KindAmbiguity, e.Kind)
	assert.Equal(t, []string{"Flour (x1) in A1", "Flour (x1) in B2"}, e.Candidates)

	removed, err := svc.Remove(ctx, chat, "flour", "b2")
	require.NoError(t, err)
	assert.Equal(t, "B2", removed.LocationName)
}

func TestRemove_NotFoundSuggests(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Peanut Butter", Zone: "A1"})
	require.NoError(t, err)

	_, err = svc.Remove(ctx, chat, "pnut bttr", "")
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.KindNotFound, e.Kind)
	assert.Equal(t, "Did you mean: Peanut Butter?", e.Hint)
}

func TestMove_AndUndo(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Honey", Zone: "A1"})
	require.NoError(t, err)

	res, err := svc.Move(ctx, chat, "honey", "", "N3")
	require.NoError(t, err)
	assert.Equal(t, "A1", res.From)
	assert.Equal(t, "N3", res.To)

	_, err = svc.Move(ctx, chat, "honey", "", "N3")
	assert.True(t, errs.Is(err, errs.KindValidation))

	action, err := svc.Undo(ctx, chat)
	require.NoError(t, err)
	assert.Equal(t, inventory.UndoRevertLocation, action.Kind)

	_, items, err := svc.ListZone(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Honey", items[0].Name)
}

func TestSetQuantity_AndUndo(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Yogurt", Quantity: 4, Zone: "F1"})
	require.NoError(t, err)

	res, err := svc.SetQuantity(ctx, chat, "yogurt", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Previous)
	assert.Equal(t, 1, res.Item.Quantity)

	_, err = svc.Undo(ctx, chat)
	require.NoError(t, err)
	items, _ := svc.Check(ctx, "yogurt")
	assert.Equal(t, 4, items[0].Quantity)
}

func TestUndo_IsPerChat(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Tea", Zone: "I1"})
	require.NoError(t, err)

	action, err := svc.Undo(ctx, chat+1)
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestTags(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Cheese", Zone: "F1"})
	require.NoError(t, err)

	items, err := svc.ItemsByTag(ctx, "DAIRY")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "F1", items[0].LocationName)

	_, err = svc.UntagItem(ctx, "cheese", "dairy")
	require.NoError(t, err)
	_, err = svc.UntagItem(ctx, "cheese", "dairy")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	none, err := svc.ItemsByTag(ctx, "no-such-tag")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestItemNames_Distinct(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, zone := range []string{"A1", "A2"} {
		_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "Salt", Zone: zone})
		require.NoError(t, err)
	}
	_, err := svc.Add(ctx, chat, inventory.AddRequest{Name: "pepper", Zone: "A1"})
	require.NoError(t, err)

	names, err := svc.ItemNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pepper", "Salt"}, names)
}
