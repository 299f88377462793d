package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/inventory"
	"github.com/agentoven/larder/internal/metrics"
	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/pkg/models"
	"github.com/rs/zerolog/log"
)

// HelpText lists example phrasings.
const HelpText = `Kitchen Inventory Bot commands:

Add items:
• "Bought 5 Bananas in N2"
• "I put the rice in A1"
• "Added milk to F1"

Remove items:
• "Finished the Dumpling Sauce"
• "Used up the milk"
• "Remove eggs from A2"
• "Take out bread from B1"

Move items:
• "Move the rice to B2"

Check items:
• "How many eggs do I have"
• "Where is the milk"
• "Find rice"

Update quantity:
• "Set eggs to 5"
• "I have 3 milk"

List:
• "List N2" or "What's in A1"
• "List all items" or "Show everything"
• "List tags"

• "u" to undo last action`

// UnknownText is the reply when nothing, including the reasoning service,
// could handle a message.
const UnknownText = `I didn't understand that. Try:
• "Bought 5 Bananas in N2"
• "Finished the Dumpling Sauce"
• "How many eggs do I have"
• "List N2"
• "help" for all commands`

const undoSuffix = ", type u to undo"

// Resolution is a reply produced without the reasoning service.
type Resolution struct {
	// Path is one of the metrics.Path* values.
	Path  string
	Reply string
}

// Dispatcher resolves messages through the fast path and learned
// utterances and executes commands against the inventory.
type Dispatcher struct {
	inv       *inventory.Service
	engrams   *engrams.Store
	pipelines *pipelines.Executor
}

// New creates a Dispatcher. engrams and pipelines may be nil, which
// disables learned-utterance resolution.
func New(inv *inventory.Service, engramStore *engrams.Store, exec *pipelines.Executor) *Dispatcher {
	return &Dispatcher{inv: inv, engrams: engramStore, pipelines: exec}
}

// Resolve tries the fast-path rules, then the learned utterances. ok is
// false when the message needs the reasoning service.
func (d *Dispatcher) Resolve(ctx context.Context, chatID int64, text string) (Resolution, bool) {
	if res, ok := d.ResolveFastPath(ctx, chatID, text); ok {
		return res, true
	}
	return d.ResolveLearned(ctx, chatID, text)
}

// ResolveFastPath runs the built-in regex rules.
func (d *Dispatcher) ResolveFastPath(ctx context.Context, chatID int64, text string) (Resolution, bool) {
	cmd := Parse(text)
	if cmd.Type == models.CommandUnknown {
		return Resolution{}, false
	}
	return Resolution{Path: metrics.PathFastPath, Reply: d.Reply(ctx, chatID, cmd)}, true
}

// ResolveLearned matches text against the cached engrams. A hit bumps the
// engram in the background.
func (d *Dispatcher) ResolveLearned(ctx context.Context, chatID int64, text string) (Resolution, bool) {
	if d.engrams == nil {
		return Resolution{}, false
	}
	entries, err := d.engrams.Cached(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Engram cache unavailable, skipping learned match")
		return Resolution{}, false
	}
	m := engrams.FindMatch(text, entries)
	if m == nil {
		return Resolution{}, false
	}

	logger := log.With().Int64("chat_id", chatID).Int64("utterance_id", m.Entry.ID).Logger()
	var res Resolution
	switch {
	case m.Command != nil:
		logger.Debug().Str("command", string(m.Command.Type)).Msg("Learned utterance matched")
		res = Resolution{Path: metrics.PathEngram, Reply: d.Reply(ctx, chatID, *m.Command)}
	case d.pipelines != nil:
		logger.Debug().Int64("pipeline_id", m.PipelineID).Msg("Learned utterance matched pipeline")
		reply, err := d.pipelines.Execute(ctx, m.PipelineID, m.Params)
		if err != nil {
			reply = errs.ReplyText(err)
		}
		res = Resolution{Path: metrics.PathPipeline, Reply: reply}
	default:
		return Resolution{}, false
	}

	d.engrams.BumpInBackground(m.Entry.ID)
	return res, true
}

// Reply executes cmd and renders any failure as chat text.
func (d *Dispatcher) Reply(ctx context.Context, chatID int64, cmd models.Command) string {
	reply, err := d.Execute(ctx, chatID, cmd)
	if err != nil {
		return errs.ReplyText(err)
	}
	return reply
}

// Execute runs cmd and returns the reply text.
func (d *Dispatcher) Execute(ctx context.Context, chatID int64, cmd models.Command) (string, error) {
	switch cmd.Type {
	case models.CommandHelp:
		return HelpText, nil
	case models.CommandUnknown:
		return UnknownText, nil
	case models.CommandUndo:
		return d.undo(ctx, chatID), nil
	case models.CommandAdd:
		return d.add(ctx, chatID, cmd)
	case models.CommandRemove:
		return d.remove(ctx, chatID, cmd)
	case models.CommandMove:
		return d.move(ctx, chatID, cmd)
	case models.CommandUpdateQty:
		return d.updateQuantity(ctx, chatID, cmd)
	case models.CommandCheck:
		return d.check(ctx, cmd)
	case models.CommandList:
		return d.list(ctx, cmd)
	case models.CommandListAll:
		return d.listAll(ctx)
	case models.CommandTagSearch:
		return d.tagSearch(ctx, cmd)
	case models.CommandListTags:
		return d.listTags(ctx)
	case models.CommandListTagsItem:
		return d.itemTags(ctx, cmd)
	case models.CommandTagItem:
		return d.tagItem(ctx, cmd)
	case models.CommandUntagItem:
		return d.untagItem(ctx, cmd)
	case models.CommandSearchNames:
		return d.searchNames(ctx)
	case models.CommandListDict:
		return d.listDictionary(ctx)
	}
	return "", errs.Validation("Unsupported command %q.", cmd.Type)
}

// ── Handlers ────────────────────────────────────────────────

func (d *Dispatcher) undo(ctx context.Context, chatID int64) string {
	action, err := d.inv.Undo(ctx, chatID)
	if err != nil {
		return "Undo failed: " + err.Error()
	}
	if action == nil {
		return "Nothing to undo."
	}
	return "Undone: " + action.Description
}

func (d *Dispatcher) add(ctx context.Context, chatID int64, cmd models.Command) (string, error) {
	res, err := d.inv.Add(ctx, chatID, inventory.AddRequest{Name: cmd.ItemName, Quantity: cmd.Quantity, Zone: cmd.Zone})
	if err != nil {
		return "", err
	}
	if res.Updated {
		return fmt.Sprintf("Updated %s in %s: %d → %d%s", res.Item.Name, res.Item.LocationName, res.PreviousQuantity, res.Item.Quantity, undoSuffix), nil
	}
	return fmt.Sprintf("Added %d %s to %s%s", res.Item.Quantity, res.Item.Name, res.Item.LocationName, undoSuffix), nil
}

func (d *Dispatcher) remove(ctx context.Context, chatID int64, cmd models.Command) (string, error) {
	item, err := d.inv.Remove(ctx, chatID, cmd.ItemName, cmd.Zone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s removed from %s%s", item.Name, item.LocationName, undoSuffix), nil
}

func (d *Dispatcher) move(ctx context.Context, chatID int64, cmd models.Command) (string, error) {
	res, err := d.inv.Move(ctx, chatID, cmd.ItemName, cmd.FromZone, cmd.Zone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %s from %s to %s%s", res.Item.Name, res.From, res.To, undoSuffix), nil
}

func (d *Dispatcher) updateQuantity(ctx context.Context, chatID int64, cmd models.Command) (string, error) {
	res, err := d.inv.SetQuantity(ctx, chatID, cmd.ItemName, cmd.Quantity)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %s in %s: %d → %d%s", res.Item.Name, res.Item.LocationName, res.Previous, res.Item.Quantity, undoSuffix), nil
}

func (d *Dispatcher) check(ctx context.Context, cmd models.Command) (string, error) {
	items, err := d.inv.Check(ctx, cmd.ItemName)
	if err != nil {
		return "", err
	}
	if len(items) == 1 {
		it := items[0]
		return fmt.Sprintf("You have %d %s in %s.", it.Quantity, it.Name, it.LocationName), nil
	}
	total := 0
	lines := make([]string, len(items))
	for i, it := range items {
		total += it.Quantity
		lines[i] = fmt.Sprintf("- %d %s in %s", it.Quantity, it.Name, it.LocationName)
	}
	return fmt.Sprintf("You have %d %s total:\n%s", total, cmd.ItemName, strings.Join(lines, "\n")), nil
}

func (d *Dispatcher) list(ctx context.Context, cmd models.Command) (string, error) {
	if cmd.Zone == "" {
		items, err := d.inv.All(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Total items in inventory: %d. Send \"list <zone>\" to see a specific zone (e.g. \"list N2\").", len(items)), nil
	}

	zone, items, err := d.inv.ListZone(ctx, cmd.Zone)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return fmt.Sprintf("No items in %s.", zone), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("- %s (x%d)", it.Name, it.Quantity)
	}
	return fmt.Sprintf("Items in %s:\n%s", zone, strings.Join(lines, "\n")), nil
}

func (d *Dispatcher) listAll(ctx context.Context) (string, error) {
	items, err := d.inv.All(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "Inventory is empty.", nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("- %s (x%d) in %s", it.Name, it.Quantity, it.LocationName)
	}
	return fmt.Sprintf("Full inventory (%d items):\n%s", len(items), strings.Join(lines, "\n")), nil
}

func (d *Dispatcher) tagSearch(ctx context.Context, cmd models.Command) (string, error) {
	items, err := d.inv.ItemsByTag(ctx, cmd.TagName)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return fmt.Sprintf("No items tagged %q.", cmd.TagName), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("- %s (x%d) in %s", it.Name, it.Quantity, it.LocationName)
	}
	return fmt.Sprintf("Items tagged %q:\n%s", cmd.TagName, strings.Join(lines, "\n")), nil
}

func (d *Dispatcher) listTags(ctx context.Context) (string, error) {
	counts, err := d.inv.TagCounts(ctx)
	if err != nil {
		return "", err
	}
	if len(counts) == 0 {
		return "No tags in use.", nil
	}
	var b strings.Builder
	b.WriteString("Tags:")
	var category models.TagCategory
	for _, c := range counts {
		if c.Category != category {
			category = c.Category
			fmt.Fprintf(&b, "\n[%s]", category)
		}
		fmt.Fprintf(&b, "\n- %s (%d)", c.Name, c.Count)
	}
	return b.String(), nil
}

func (d *Dispatcher) itemTags(ctx context.Context, cmd models.Command) (string, error) {
	item, tags, err := d.inv.ItemTags(ctx, cmd.ItemName)
	if err != nil {
		return "", err
	}
	if len(tags) == 0 {
		return fmt.Sprintf("%s has no tags.", item.Name), nil
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("%s (%s)", t.Name, t.Source)
	}
	return fmt.Sprintf("Tags for %s: %s", item.Name, strings.Join(parts, ", ")), nil
}

func (d *Dispatcher) tagItem(ctx context.Context, cmd models.Command) (string, error) {
	item, applied, err := d.inv.TagItem(ctx, cmd.ItemName, cmd.TagNames)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Tagged %s: %s", item.Name, strings.Join(applied, ", ")), nil
}

func (d *Dispatcher) untagItem(ctx context.Context, cmd models.Command) (string, error) {
	item, err := d.inv.UntagItem(ctx, cmd.ItemName, cmd.TagName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed tag %q from %s.", strings.ToLower(cmd.TagName), item.Name), nil
}

func (d *Dispatcher) searchNames(ctx context.Context) (string, error) {
	names, err := d.inv.ItemNames(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "Inventory is empty.", nil
	}
	return fmt.Sprintf("Item names (%d):\n- %s", len(names), strings.Join(names, "\n- ")), nil
}

func (d *Dispatcher) listDictionary(ctx context.Context) (string, error) {
	entries, err := d.inv.Dictionary(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "Dictionary is empty.", nil
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		var details []string
		if e.DefaultZone != "" {
			details = append(details, "zone "+e.DefaultZone)
		}
		if e.DefaultNotes != "" {
			details = append(details, "notes: "+e.DefaultNotes)
		}
		if len(e.DefaultTags) > 0 {
			details = append(details, "tags: "+strings.Join(e.DefaultTags, ", "))
		}
		line := "- " + e.ItemName
		if len(details) > 0 {
			line += " (" + strings.Join(details, "; ") + ")"
		}
		lines[i] = line
	}
	return fmt.Sprintf("Dictionary (%d entries):\n%s", len(entries), strings.Join(lines, "\n")), nil
}
