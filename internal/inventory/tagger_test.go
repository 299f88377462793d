package inventory_test

import (
	"slices"
	"testing"

	"github.com/agentoven/larder/internal/inventory"
	"github.com/agentoven/larder/pkg/models"
)

func TestTagger_Compute(t *testing.T) {
	tagger := inventory.DefaultTagger()

	tests := []struct {
		name, item, notes string
		want              []string
	}{
		{"exact name", "Milk", "", []string{"dairy", "fresh"}},
		{"exact is whole-name only", "Milk Chocolate", "", []string{"dairy"}},
		{"keyword catches custom names", "TJ's Canned Corn", "", []string{"canned goods"}},
		{"exact and keyword union", "Hot Sauce", "", []string{"condiments"}},
		{"canned tuna combo", "canned tuna", "", []string{"seafood", "canned goods", "pantry"}},
		{"notes rules", "Casserole Dish", "glass, oven safe", []string{"oven-safe", "glass"}},
		{"stainless counts as metal", "Pot", "stainless steel", []string{"metal"}},
		{"nothing matches", "Mystery Box", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tagger.Compute(tt.item, tt.notes)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Compute(%q, %q) = %v, want %v", tt.item, tt.notes, got, tt.want)
			}
		})
	}
}

func TestTagger_Category(t *testing.T) {
	tagger := inventory.DefaultTagger()
	if got := tagger.Category("glass"); got != models.TagCategoryMaterial {
		t.Errorf("Category(glass) = %q", got)
	}
	if got := tagger.Category("weeknight"); got != models.TagCategorySection {
		t.Errorf("Category(unknown) = %q, want section", got)
	}
}

func TestNewTagger_RejectsBadPattern(t *testing.T) {
	_, err := inventory.NewTagger([]byte("keywords:\n  - {pattern: '(', tags: [x]}\n"))
	if err == nil {
		t.Fatal("NewTagger() expected error for invalid regex")
	}
}

func TestCanonicalZone(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"a1", "A1", true},
		{" C1 ", "B1", true},
		{"k4", "J4", true},
		{"Z9", "", false},
		{"Fridge", "", false},
	}
	for _, tt := range tests {
		got, ok := inventory.CanonicalZone(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalZone(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
