// Package dispatch turns chat messages into inventory commands without the
// reasoning service: a fixed stack of regex rules first, then the learned
// utterances, and runs the resulting command.
package dispatch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agentoven/larder/pkg/models"
)

// rule recognises one phrasing. build turns the submatches into a command;
// returning nil lets the next rule try.
type rule struct {
	re    *regexp.Regexp
	build func(m []string) *models.Command
}

func re(expr string) *regexp.Regexp { return regexp.MustCompile(`(?i)` + expr) }

func fixed(t models.CommandType) func([]string) *models.Command {
	return func([]string) *models.Command { return &models.Command{Type: t} }
}

func listZone(m []string) *models.Command {
	return &models.Command{Type: models.CommandList, Zone: strings.ToUpper(m[1])}
}

func check(m []string) *models.Command {
	return &models.Command{Type: models.CommandCheck, ItemName: strings.TrimSpace(m[1])}
}

// rules are ordered specific to general. The first match wins.
var rules = []rule{
	{re(`^u(?:ndo)?$`), fixed(models.CommandUndo)},
	{re(`^(?:help|commands|\?)$`), fixed(models.CommandHelp)},
	{re(`^(?:list\s+all(?:\s+items)?|show\s+(?:everything|all(?:\s+items)?)|what\s+do\s+I\s+have|(?:full\s+)?inventory(?:\s+report)?|list\s+everything)$`), fixed(models.CommandListAll)},

	{re(`^(?:list|show)\s+(?:all\s+)?tags$`), fixed(models.CommandListTags)},
	{re(`^(?:list|show)\s+(?:the\s+)?dictionary$`), fixed(models.CommandListDict)},
	{re(`^list\s+items\s+in\s+(\w+)$`), listZone},
	{re(`^list\s+(\w+)$`), listZone},
	{re(`^what(?:'s|\s+is)\s+in\s+(\w+)$`), listZone},
	{re(`^(?:show\s+me|open|tell\s+me\s+what'?s?\s+in)\s+(\w+)$`), listZone},
	{re(`^list$`), fixed(models.CommandList)},

	{re(`^how\s+(?:many|much)\s+(.+?)\s+do\s+I\s+have$`), check},
	{re(`^(?:check|find)\s+(?:the\s+)?(.+)$`), check},
	{re(`^where\s+(?:is|are)\s+(?:the\s+)?(.+)$`), check},
	{re(`^do\s+I\s+have\s+(?:any\s+)?(.+)$`), check},

	{re(`^(?:set|update|change)\s+(.+?)\s+to\s+(\d+)$`), func(m []string) *models.Command {
		return quantityCommand(m[1], m[2])
	}},
	{re(`^I\s+have\s+(\d+)\s+(.+)$`), func(m []string) *models.Command {
		return quantityCommand(m[2], m[1])
	}},

	{re(`^move\s+(?:the\s+)?(.+?)\s+from\s+(\w+)\s+to\s+(\w+)$`), func(m []string) *models.Command {
		return &models.Command{Type: models.CommandMove, ItemName: strings.TrimSpace(m[1]), FromZone: strings.ToUpper(m[2]), Zone: strings.ToUpper(m[3])}
	}},
	{re(`^move\s+(?:the\s+)?(.+?)\s+(?:to|into)\s+(\w+)$`), func(m []string) *models.Command {
		return &models.Command{Type: models.CommandMove, ItemName: strings.TrimSpace(m[1]), Zone: strings.ToUpper(m[2])}
	}},

	{re(`^(?:remove|delete)\s+(?:the\s+)?(.+?)\s+from\s+(\w+)$`), removeFrom},
	{re(`^take\s+out\s+(?:the\s+)?(.+?)\s+from\s+(\w+)$`), removeFrom},
	{re(`^take\s+(?:the\s+)?(.+?)\s+out\s+of\s+(\w+)$`), removeFrom},
	{re(`^(?:finished\s+(?:the\s+)?|used\s+(?:up\s+)?(?:the\s+)?|out\s+of\s+(?:the\s+)?|no\s+more\s+|remove\s+(?:the\s+)?|delete\s+(?:the\s+)?)(.+)$`), func(m []string) *models.Command {
		return &models.Command{Type: models.CommandRemove, ItemName: strings.TrimSpace(m[1])}
	}},

	{re(`^(?:bought|added|got|put|store|stored|place|placed)\s+(?:(\d+)\s+)?(?:the\s+)?(.+?)\s+(?:in|to|at)\s+(\w+)$`), addCommand},
	{re(`^I\s+(?:bought|added|got|put|stored|placed)\s+(?:(\d+)\s+)?(?:the\s+)?(.+?)\s+(?:in|to|at)\s+(\w+)$`), addCommand},
	{re(`^add\s+(?:(\d+)\s+)?(.+?)\s+(?:in|to|at)\s+(\w+)$`), addCommand},
}

func quantityCommand(item, qty string) *models.Command {
	n, err := strconv.Atoi(qty)
	if err != nil {
		return nil
	}
	return &models.Command{Type: models.CommandUpdateQty, ItemName: strings.TrimSpace(item), Quantity: n}
}

func removeFrom(m []string) *models.Command {
	return &models.Command{Type: models.CommandRemove, ItemName: strings.TrimSpace(m[1]), Zone: strings.ToUpper(m[2])}
}

func addCommand(m []string) *models.Command {
	qty := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		qty = n
	}
	return &models.Command{Type: models.CommandAdd, ItemName: strings.TrimSpace(m[2]), Quantity: qty, Zone: strings.ToUpper(m[3])}
}

// Parse runs the fast-path rules over text. It returns a command of type
// CommandUnknown when nothing matches.
func Parse(text string) models.Command {
	t := strings.TrimSpace(text)
	for _, r := range rules {
		m := r.re.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		if cmd := r.build(m); cmd != nil {
			return *cmd
		}
	}
	return models.Command{Type: models.CommandUnknown}
}
