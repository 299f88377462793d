package pipelines_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agentoven/larder/internal/pipelines"
)

const itemsTemplate = "{{_header}}Found {{_count}} items:\n{{_row}}- {{name}} (x{{quantity}})\n{{_empty}}Nothing found."

func TestRenderTemplate_Empty(t *testing.T) {
	got := pipelines.RenderTemplate(itemsTemplate, pipelines.Result{Affected: -1})
	if got != "Nothing found." {
		t.Errorf("RenderTemplate() = %q, want %q", got, "Nothing found.")
	}
}

func TestRenderTemplate_Rows(t *testing.T) {
	r := pipelines.Result{
		Rows: []map[string]any{
			{"name": "Milk", "quantity": int32(2)},
			{"name": "Eggs", "quantity": int64(12)},
		},
		Affected: -1,
	}
	want := "Found 2 items:\n- Milk (x2)\n- Eggs (x12)"
	if got := pipelines.RenderTemplate(itemsTemplate, r); got != want {
		t.Errorf("RenderTemplate() = %q, want %q", got, want)
	}
}

func TestRenderTemplate_CapsRows(t *testing.T) {
	var rows []map[string]any
	for i := range 35 {
		rows = append(rows, map[string]any{"name": fmt.Sprintf("item%d", i), "quantity": 1})
	}
	got := pipelines.RenderTemplate(itemsTemplate, pipelines.Result{Rows: rows, Affected: -1})
	lines := strings.Split(got, "\n")
	if len(lines) != 1+pipelines.MaxTemplateRows+1 {
		t.Fatalf("RenderTemplate() produced %d lines, want %d", len(lines), pipelines.MaxTemplateRows+2)
	}
	if lines[0] != "Found 35 items:" {
		t.Errorf("header = %q", lines[0])
	}
	if last := lines[len(lines)-1]; last != "...and 5 more" {
		t.Errorf("footer = %q, want %q", last, "...and 5 more")
	}
}

func TestRenderTemplate_Mutation(t *testing.T) {
	tmpl := "{{_header}}Moved {{_affected}} items.\n{{_empty}}Nothing moved."

	if got := pipelines.RenderTemplate(tmpl, pipelines.Result{Affected: 3}); got != "Moved 3 items." {
		t.Errorf("RenderTemplate() affected = %q", got)
	}
	if got := pipelines.RenderTemplate(tmpl, pipelines.Result{Affected: 0}); got != "Nothing moved." {
		t.Errorf("RenderTemplate() none affected = %q", got)
	}
	if got := pipelines.RenderTemplate("{{_row}}{{name}}", pipelines.Result{Affected: 2}); got != "Done. 2 row(s) affected." {
		t.Errorf("RenderTemplate() without header = %q", got)
	}
	if got := pipelines.RenderTemplate("{{_row}}{{name}}", pipelines.Result{Affected: -1}); got != "No results." {
		t.Errorf("RenderTemplate() without empty line = %q", got)
	}
}

func TestRenderBullets(t *testing.T) {
	r := pipelines.Result{
		Columns: []string{"name", "location", "notes"},
		Rows: []map[string]any{
			{"name": "Flour", "location": "B1", "notes": nil},
		},
		Affected: -1,
	}
	want := "Items in B1 (1 result):\n• name: Flour, location: B1"
	if got := pipelines.RenderBullets("Items in B1", r); got != want {
		t.Errorf("RenderBullets() = %q, want %q", got, want)
	}

	if got := pipelines.RenderBullets("Items in B1", pipelines.Result{Affected: -1}); got != "No results for: Items in B1" {
		t.Errorf("RenderBullets() empty = %q", got)
	}
	if got := pipelines.RenderBullets("Clear B1", pipelines.Result{Affected: 4}); got != "Done. 4 row(s) affected." {
		t.Errorf("RenderBullets() mutation = %q", got)
	}
}

func TestRenderBullets_SortsKeysWithoutColumns(t *testing.T) {
	r := pipelines.Result{
		Rows: []map[string]any{
			{"zone": "A1", "count": int64(3), "since": time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
			{"zone": "B1", "count": int64(1), "since": nil},
		},
		Affected: -1,
	}
	want := "Zones (2 results):\n• count: 3, since: 2026-01-02, zone: A1\n• count: 1, zone: B1"
	if got := pipelines.RenderBullets("Zones", r); got != want {
		t.Errorf("RenderBullets() = %q, want %q", got, want)
	}
}

func TestRender_PicksFormat(t *testing.T) {
	r := pipelines.Result{Affected: -1}
	if got := pipelines.Render("", "Low stock", r); got != "No results for: Low stock" {
		t.Errorf("Render() without template = %q", got)
	}
	if got := pipelines.Render(itemsTemplate, "Low stock", r); got != "Nothing found." {
		t.Errorf("Render() with template = %q", got)
	}
}
