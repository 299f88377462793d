package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/inventory"
	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/internal/sqlguard"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/internal/websearch"
	"github.com/agentoven/larder/pkg/models"
)

const maxSearchResults = 15

// Searcher looks things up on the web.
type Searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// Deps are the components the inventory tools call into.
type Deps struct {
	Inventory *inventory.Service
	Queries   store.QueryRunner
	Pipelines *pipelines.Store
	Engrams   *engrams.Store
	// Search may be nil, in which case web_search reports it is not
	// configured.
	Search Searcher
}

// InventoryTools returns the full tool set bound to d.
func InventoryTools(d Deps) []Tool {
	return []Tool{
		Define("search_items",
			"Search the kitchen inventory by item name or notes. Returns matching items with quantity, location, notes, and tags.",
			`{"type":"object","properties":{"query":{"type":"string","description":"Search term (item name or keyword in notes)"}},"required":["query"]}`,
			d.searchItems),
		Define("list_items",
			"List all items in a specific zone, or get the total item count if no zone is given.",
			`{"type":"object","properties":{"zone":{"type":"string","description":"Zone ID (e.g. \"A1\", \"N2\"). Omit to get the full inventory count."}}}`,
			d.listItems),
		Define("add_item",
			"Add an item to the inventory. If the item already exists in that zone, increments its quantity.",
			`{"type":"object","properties":{"name":{"type":"string","description":"Item name"},"quantity":{"type":"number","description":"Quantity to add (default 1)"},"zone":{"type":"string","description":"Zone ID (e.g. \"A1\", \"F1\")"},"notes":{"type":"string","description":"Optional notes about the item"}},"required":["name","zone"]}`,
			d.addItem),
		Define("remove_item",
			"Remove an item from the inventory entirely.",
			`{"type":"object","properties":{"name":{"type":"string","description":"Item name to remove"},"zone":{"type":"string","description":"Optional zone to narrow down if the item exists in multiple locations"}},"required":["name"]}`,
			d.removeItem),
		Define("move_item",
			"Move an item from its current location to a different zone.",
			`{"type":"object","properties":{"name":{"type":"string","description":"Item name to move"},"from_zone":{"type":"string","description":"Current zone (optional, helps disambiguate)"},"to_zone":{"type":"string","description":"Destination zone ID"}},"required":["name","to_zone"]}`,
			d.moveItem),
		Define("update_quantity",
			"Set the quantity of an existing item to a specific number.",
			`{"type":"object","properties":{"name":{"type":"string","description":"Item name"},"quantity":{"type":"number","description":"New quantity to set"}},"required":["name","quantity"]}`,
			d.updateQuantity),
		Define("tag_item",
			"Add one or more tags to an item.",
			`{"type":"object","properties":{"name":{"type":"string","description":"Item name to tag"},"tags":{"type":"array","items":{"type":"string"},"description":"Tag names to add"}},"required":["name","tags"]}`,
			d.tagItem),
		Define("search_by_tag",
			"Find all items that have a specific tag.",
			`{"type":"object","properties":{"tag":{"type":"string","description":"Tag name to search for"}},"required":["tag"]}`,
			d.searchByTag),
		Define("web_search",
			"Search the web for information about a food item, product, or storage suggestion. Use when you encounter something unfamiliar.",
			`{"type":"object","properties":{"query":{"type":"string","description":"Web search query"}},"required":["query"]}`,
			d.webSearch),
		Define("run_query",
			"Execute a SQL query against the inventory database. Use $1, $2, ... for parameters. SELECT/WITH queries are read-only. INSERT/UPDATE/DELETE are allowed for mutations. DDL (DROP, ALTER, CREATE, TRUNCATE) is forbidden. "+schemaSummary,
			`{"type":"object","properties":{"sql":{"type":"string","description":"SQL query with $1, $2, ... for parameters. Must start with SELECT, WITH, INSERT, UPDATE, or DELETE."},"params":{"type":"array","items":{"type":"string"},"description":"Parameter values in order, matching $1, $2, ... in the query"}},"required":["sql"]}`,
			d.runQuery),
		Define("create_pipeline",
			"Save a reusable SQL query as a named pipeline. Once saved, link it to an utterance pattern via learn_utterance so similar questions are answered instantly without AI. Include a format_template for chat output formatting.",
			`{"type":"object","properties":{"name":{"type":"string","description":"Unique pipeline name in snake_case, e.g. \"items_by_tag_in_zone\""},"description":{"type":"string","description":"What this pipeline does, in plain English"},"sql_template":{"type":"string","description":"Parameterized SQL using $1, $2, ... for parameters"},"params":{"type":"array","items":{"type":"string"},"description":"Named parameters in order matching $1, $2, ..."},"is_mutation":{"type":"boolean","description":"true if this pipeline modifies data (INSERT/UPDATE/DELETE), false for SELECT"},"format_template":{"type":"string","description":"Line template: \"{{_header}}...\" once at the top with {{_count}}/{{_affected}}, \"{{_row}}...\" per row with {{column}} substitutions, \"{{_empty}}...\" when there are no rows."}},"required":["name","description","sql_template","params","is_mutation","format_template"]}`,
			d.createPipeline),
		Define("learn_utterance",
			"Teach the regex bot a new pattern so it can handle similar messages without AI next time. Link it to a command_type (simple inventory actions) OR a pipeline_name (queries saved with create_pipeline). Placeholders: {item}, {zone}, {quantity}, {tag}. The pattern must have at least 3 words.",
			`{"type":"object","properties":{"pattern":{"type":"string","description":"Generalized pattern with placeholders, e.g. \"got any {item} left\""},"command_type":{"type":"string","description":"One of: `+learnableTypes()+`. Use this OR pipeline_name."},"pipeline_name":{"type":"string","description":"Name of a saved pipeline. Use this OR command_type."},"param_mapping":{"type":"object","description":"Maps parameter names to placeholders, e.g. {\"itemName\": \"{item}\"}. For pipelines the keys must match the pipeline params."},"example_input":{"type":"string","description":"The actual user message that triggered this learning"},"example_extraction":{"type":"object","description":"Expected extracted values keyed by placeholder name without braces, e.g. {\"item\": \"cheese\"}"}},"required":["pattern","param_mapping","example_input","example_extraction"]}`,
			d.learnUtterance),
	}
}

func learnableTypes() string {
	names := make([]string, len(models.LearnableCommandTypes))
	for i, t := range models.LearnableCommandTypes {
		names[i] = `\"` + string(t) + `\"`
	}
	return strings.Join(names, ", ")
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.Validation("%s is required", field)
	}
	return nil
}

// ── Inventory ───────────────────────────────────────────────

type searchInput struct {
	Query string `json:"query"`
}

func (in *searchInput) validate() error { return required("query", in.Query) }

type itemResult struct {
	Name     string   `json:"name"`
	Quantity int      `json:"quantity"`
	Location string   `json:"location,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func (d Deps) searchItems(ctx context.Context, _ int64, in searchInput) (any, error) {
	items, err := d.Inventory.Search(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return map[string]any{"results": []itemResult{}, "message": "No items found"}, nil
	}
	if len(items) > maxSearchResults {
		items = items[:maxSearchResults]
	}
	results := make([]itemResult, len(items))
	for i, it := range items {
		tags, err := d.Inventory.TagsForItemID(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		r := itemResult{Name: it.Name, Quantity: it.Quantity, Location: it.LocationName, Notes: it.Notes}
		for _, tg := range tags {
			r.Tags = append(r.Tags, tg.Name)
		}
		results[i] = r
	}
	return map[string]any{"results": results}, nil
}

type listInput struct {
	Zone string `json:"zone"`
}

func (d Deps) listItems(ctx context.Context, _ int64, in listInput) (any, error) {
	if strings.TrimSpace(in.Zone) == "" {
		items, err := d.Inventory.All(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"total_items": len(items),
			"message":     "Use zone parameter to see items in a specific zone",
		}, nil
	}

	zone, items, err := d.Inventory.ListZone(ctx, in.Zone)
	if err != nil {
		return nil, err
	}
	results := make([]itemResult, len(items))
	for i, it := range items {
		results[i] = itemResult{Name: it.Name, Quantity: it.Quantity, Notes: it.Notes}
	}
	return map[string]any{"zone": zone, "items": results}, nil
}

type addInput struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
	Zone     string `json:"zone"`
	Notes    string `json:"notes"`
}

func (in *addInput) validate() error {
	if err := required("name", in.Name); err != nil {
		return err
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		return errs.Validation("quantity must be at least 1")
	}
	return required("zone", in.Zone)
}

func (d Deps) addItem(ctx context.Context, chatID int64, in addInput) (any, error) {
	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	res, err := d.Inventory.Add(ctx, chatID, inventory.AddRequest{Name: in.Name, Quantity: qty, Zone: in.Zone, Notes: in.Notes})
	if err != nil {
		return nil, err
	}
	if res.Updated {
		return map[string]any{
			"success":           true,
			"action":            "updated_quantity",
			"name":              res.Item.Name,
			"previous_quantity": res.PreviousQuantity,
			"new_quantity":      res.Item.Quantity,
			"zone":              res.Item.LocationName,
		}, nil
	}
	return map[string]any{
		"success":      true,
		"action":       "added",
		"name":         res.Item.Name,
		"quantity":     res.Item.Quantity,
		"zone":         res.Item.LocationName,
		"notes":        res.Item.Notes,
		"tags_applied": res.Tags,
	}, nil
}

type removeInput struct {
	Name string `json:"name"`
	Zone string `json:"zone"`
}

func (in *removeInput) validate() error { return required("name", in.Name) }

func (d Deps) removeItem(ctx context.Context, chatID int64, in removeInput) (any, error) {
	item, err := d.Inventory.Remove(ctx, chatID, in.Name, in.Zone)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "removed": item.Name, "quantity": item.Quantity, "from": item.LocationName}, nil
}

type moveInput struct {
	Name     string `json:"name"`
	FromZone string `json:"from_zone"`
	ToZone   string `json:"to_zone"`
}

func (in *moveInput) validate() error {
	if err := required("name", in.Name); err != nil {
		return err
	}
	return required("to_zone", in.ToZone)
}

func (d Deps) moveItem(ctx context.Context, chatID int64, in moveInput) (any, error) {
	res, err := d.Inventory.Move(ctx, chatID, in.Name, in.FromZone, in.ToZone)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "moved": res.Item.Name, "from": res.From, "to": res.To}, nil
}

type quantityInput struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
}

func (in *quantityInput) validate() error {
	if err := required("name", in.Name); err != nil {
		return err
	}
	if in.Quantity == nil {
		return errs.Validation("quantity is required")
	}
	if *in.Quantity < 0 {
		return errs.Validation("quantity cannot be negative")
	}
	return nil
}

func (d Deps) updateQuantity(ctx context.Context, chatID int64, in quantityInput) (any, error) {
	res, err := d.Inventory.SetQuantity(ctx, chatID, in.Name, *in.Quantity)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":           true,
		"name":              res.Item.Name,
		"previous_quantity": res.Previous,
		"new_quantity":      res.Item.Quantity,
		"location":          res.Item.LocationName,
	}, nil
}

type tagInput struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (in *tagInput) validate() error {
	if err := required("name", in.Name); err != nil {
		return err
	}
	if len(in.Tags) == 0 {
		return errs.Validation("tags must not be empty")
	}
	return nil
}

func (d Deps) tagItem(ctx context.Context, _ int64, in tagInput) (any, error) {
	item, applied, err := d.Inventory.TagItem(ctx, in.Name, in.Tags)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "tagged": item.Name, "tags_added": applied}, nil
}

type tagSearchInput struct {
	Tag string `json:"tag"`
}

func (in *tagSearchInput) validate() error { return required("tag", in.Tag) }

func (d Deps) searchByTag(ctx context.Context, _ int64, in tagSearchInput) (any, error) {
	items, err := d.Inventory.ItemsByTag(ctx, in.Tag)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return map[string]any{"results": []models.TaggedItem{}, "message": fmt.Sprintf("No items tagged %q", in.Tag)}, nil
	}
	return map[string]any{"results": items}, nil
}

// ── Web ─────────────────────────────────────────────────────

func (d Deps) webSearch(ctx context.Context, _ int64, in searchInput) (any, error) {
	if d.Search == nil {
		return nil, websearch.ErrNotConfigured
	}
	results, err := d.Search.Search(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results}, nil
}

// ── SQL, pipelines and learning ─────────────────────────────

type queryInput struct {
	SQL    string   `json:"sql"`
	Params []string `json:"params"`
}

func (in *queryInput) validate() error { return required("sql", in.SQL) }

func (d Deps) runQuery(ctx context.Context, _ int64, in queryInput) (any, error) {
	qt, err := sqlguard.Validate(in.SQL)
	if err != nil {
		return nil, errs.Validation("SQL rejected: %s", errs.ReplyText(err))
	}
	params := in.Params
	if params == nil {
		params = []string{}
	}

	if !qt.IsMutation() {
		res, err := d.Queries.ExecReadOnly(ctx, in.SQL, params)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return map[string]any{"results": rowsOrEmpty(res.Rows)}, nil
	}

	res, err := d.Queries.ExecMutation(ctx, in.SQL, params)
	if err != nil {
		return nil, fmt.Errorf("mutation failed: %w", err)
	}
	d.Inventory.Snapshot().Invalidate()
	out := map[string]any{"success": true, "affected_rows": res.AffectedRows}
	if len(res.Rows) > 0 {
		out["rows"] = res.Rows
	}
	return out, nil
}

func rowsOrEmpty(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}

type pipelineInput struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	SQLTemplate    string   `json:"sql_template"`
	Params         []string `json:"params"`
	IsMutation     bool     `json:"is_mutation"`
	FormatTemplate string   `json:"format_template"`
}

func (in *pipelineInput) validate() error {
	if err := required("name", in.Name); err != nil {
		return err
	}
	return required("sql_template", in.SQLTemplate)
}

func (d Deps) createPipeline(ctx context.Context, _ int64, in pipelineInput) (any, error) {
	p := &models.Pipeline{
		Name:           in.Name,
		Description:    in.Description,
		SQLTemplate:    in.SQLTemplate,
		Params:         in.Params,
		IsMutation:     in.IsMutation,
		FormatTemplate: in.FormatTemplate,
	}
	if err := d.Pipelines.Save(ctx, p); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":       true,
		"pipeline_name": p.Name,
		"pipeline_id":   p.ID,
		"message":       "Pipeline saved. Now link it to an utterance pattern with learn_utterance.",
	}, nil
}

type learnInput struct {
	Pattern           string            `json:"pattern"`
	CommandType       string            `json:"command_type"`
	PipelineName      string            `json:"pipeline_name"`
	ParamMapping      map[string]string `json:"param_mapping"`
	ExampleInput      string            `json:"example_input"`
	ExampleExtraction map[string]string `json:"example_extraction"`
}

func (in *learnInput) validate() error {
	if err := required("pattern", in.Pattern); err != nil {
		return err
	}
	return required("example_input", in.ExampleInput)
}

func (d Deps) learnUtterance(ctx context.Context, _ int64, in learnInput) (any, error) {
	u, err := d.Engrams.Learn(ctx, engrams.LearnRequest{
		Pattern:           in.Pattern,
		CommandType:       models.CommandType(in.CommandType),
		PipelineName:      in.PipelineName,
		ParamMapping:      in.ParamMapping,
		ExampleInput:      in.ExampleInput,
		ExampleExtraction: in.ExampleExtraction,
	}, d.Pipelines)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Kind == errs.KindValidation {
			return nil, errs.Validation("Validation failed: %s", e.Error())
		}
		return nil, err
	}

	linked := "command: " + string(u.CommandType)
	if u.PipelineID != 0 {
		linked = "pipeline: " + models.NormalizePipelineName(in.PipelineName)
	}
	return map[string]any{
		"success":   true,
		"pattern":   u.Pattern,
		"linked_to": linked,
		"message":   "Pattern learned! The regex bot will handle similar messages next time.",
	}, nil
}
