package engrams

import (
	"strconv"
	"strings"

	"github.com/agentoven/larder/pkg/models"
)

// Match is a learned utterance that accepted a message. Exactly one of
// Command or PipelineID is set.
type Match struct {
	Entry      *Entry
	Command    *models.Command
	PipelineID int64
	// Params holds named pipeline parameters.
	Params map[string]string
}

// FindMatch returns the first entry whose regex matches text, in the given
// (popularity) order. Command-linked entries whose required parameters were
// not captured are skipped.
func FindMatch(text string, entries []*Entry) *Match {
	trimmed := strings.TrimSpace(text)
	for _, e := range entries {
		groups := e.Re.FindStringSubmatch(trimmed)
		if groups == nil {
			continue
		}

		if e.IsPipelineLinked() {
			return &Match{Entry: e, PipelineID: e.PipelineID, Params: pipelineParams(e.ParamMapping, groups)}
		}
		if cmd := BuildCommand(e.CommandType, e.ParamMapping, groups); cmd != nil {
			return &Match{Entry: e, Command: cmd}
		}
	}
	return nil
}

func pipelineParams(mapping map[string]int, groups []string) map[string]string {
	params := make(map[string]string, len(mapping))
	for name, idx := range mapping {
		if idx > 0 && idx < len(groups) {
			params[name] = strings.TrimSpace(groups[idx])
		} else {
			params[name] = ""
		}
	}
	return params
}

// BuildCommand turns captured groups into a command of type t. It returns
// nil when a parameter the type requires is missing or t is not learnable.
func BuildCommand(t models.CommandType, mapping map[string]int, groups []string) *models.Command {
	get := func(param string) string {
		idx, ok := mapping[param]
		if !ok || idx < 1 || idx >= len(groups) {
			return ""
		}
		return strings.TrimSpace(groups[idx])
	}
	// first returns the first non-empty param among names.
	first := func(names ...string) string {
		for _, n := range names {
			if v := get(n); v != "" {
				return v
			}
		}
		return ""
	}
	quantity := func() (int, bool) {
		n, err := strconv.Atoi(get("quantity"))
		return n, err == nil
	}

	item := get("itemName")
	zone := strings.ToUpper(get("zone"))

	switch t {
	case models.CommandCheck, models.CommandListTagsItem:
		if item == "" {
			return nil
		}
		return &models.Command{Type: t, ItemName: item}

	case models.CommandTagSearch:
		tag := first("tagName", "tag")
		if tag == "" {
			return nil
		}
		return &models.Command{Type: t, TagName: tag}

	case models.CommandRemove:
		if item == "" {
			return nil
		}
		return &models.Command{Type: t, ItemName: item, Zone: zone}

	case models.CommandAdd:
		if item == "" || zone == "" {
			return nil
		}
		qty := 1
		if get("quantity") != "" {
			n, ok := quantity()
			if !ok {
				return nil
			}
			qty = n
		}
		return &models.Command{Type: t, ItemName: item, Quantity: qty, Zone: zone}

	case models.CommandUpdateQty:
		n, ok := quantity()
		if item == "" || !ok {
			return nil
		}
		return &models.Command{Type: t, ItemName: item, Quantity: n}

	case models.CommandMove:
		if item == "" || zone == "" {
			return nil
		}
		return &models.Command{Type: t, ItemName: item, Zone: zone, FromZone: strings.ToUpper(get("fromZone"))}

	case models.CommandList:
		return &models.Command{Type: t, Zone: zone}

	case models.CommandTagItem:
		raw := first("tag", "tagName")
		if item == "" || raw == "" {
			return nil
		}
		var tags []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				tags = append(tags, s)
			}
		}
		if len(tags) == 0 {
			return nil
		}
		return &models.Command{Type: t, ItemName: item, TagNames: tags}

	case models.CommandUntagItem:
		tag := first("tagName", "tag")
		if item == "" || tag == "" {
			return nil
		}
		return &models.Command{Type: t, ItemName: item, TagName: tag}

	case models.CommandListAll, models.CommandListTags, models.CommandSearchNames, models.CommandListDict:
		return &models.Command{Type: t}
	}
	return nil
}
