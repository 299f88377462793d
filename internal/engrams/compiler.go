// Package engrams implements learned utterances: a compiler that turns a
// human pattern such as "put the {item} in {zone}" into an anchored regex,
// the spaced-repetition TTL ladder, a cached store over the backing table,
// and the matcher that turns a hit into a command or pipeline call.
package engrams

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/pkg/models"
)

// MinPatternWords bounds how broad a learned pattern may be.
const MinPatternWords = 3

// placeholderFragments maps each placeholder name to its capture group.
var placeholderFragments = map[string]string{
	"item":     `(.+?)`,
	"zone":     `([A-Za-z]\d+)`,
	"quantity": `(\d+)`,
	"tag":      `(.+?)`,
}

var (
	placeholderRe = regexp.MustCompile(`\{(item|zone|quantity|tag)\}`)
	mappingRefRe  = regexp.MustCompile(`^\{(\w+)\}$`)
)

// Compiled is the output of Compile.
type Compiled struct {
	Regex string
	// CaptureGroups lists placeholder names in left-to-right order;
	// position i is capture group i+1.
	CaptureGroups []string
}

// Compile converts pattern into an anchored regex. The pattern is lower-cased
// and must contain at least MinPatternWords words.
func Compile(pattern string) (*Compiled, error) {
	trimmed := strings.ToLower(strings.TrimSpace(pattern))
	if trimmed == "" {
		return nil, errs.Validation("Pattern is empty")
	}
	if n := len(strings.Fields(trimmed)); n < MinPatternWords {
		return nil, errs.Validation("Pattern must have at least %d words, got %d", MinPatternWords, n)
	}

	var (
		b      strings.Builder
		groups []string
		last   int
	)
	b.WriteString("^")
	appendPart := func(part string) {
		if b.Len() > 1 {
			b.WriteString(`\s+`)
		}
		b.WriteString(part)
	}

	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(trimmed, -1) {
		if lit := literal(trimmed[last:loc[0]]); lit != "" {
			appendPart(lit)
		}
		name := trimmed[loc[2]:loc[3]]
		appendPart(placeholderFragments[name])
		groups = append(groups, name)
		last = loc[1]
	}
	if lit := literal(trimmed[last:]); lit != "" {
		appendPart(lit)
	}
	b.WriteString("$")

	regex := b.String()
	if _, err := regexp.Compile("(?i)" + regex); err != nil {
		return nil, errs.Validation("Pattern produced an invalid regex: %v", err)
	}
	return &Compiled{Regex: regex, CaptureGroups: groups}, nil
}

// literal escapes a run of literal words and joins them with \s+.
func literal(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// CompileRegex compiles a stored regex string for case-insensitive matching.
func CompileRegex(regex string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + regex)
}

// ResolveParamMapping converts {"itemName": "{item}"} into {"itemName": 1}
// using captureGroups. It fails when a reference is malformed or names a
// placeholder the pattern does not contain.
func ResolveParamMapping(mapping map[string]string, captureGroups []string) (map[string]int, error) {
	resolved := make(map[string]int, len(mapping))
	for param, ref := range mapping {
		m := mappingRefRe.FindStringSubmatch(strings.TrimSpace(ref))
		if m == nil {
			return nil, errs.Validation("Param %q must reference a placeholder like {item}, got %q", param, ref)
		}
		idx := slices.Index(captureGroups, m[1])
		if idx < 0 {
			return nil, errs.Validation("Param %q references {%s}, which is not in the pattern", param, m[1])
		}
		resolved[param] = idx + 1
	}
	return resolved, nil
}

// ValidationInput is what ValidatePattern checks.
type ValidationInput struct {
	Regex         string
	CaptureGroups []string
	// CommandType is empty for pipeline-linked utterances.
	CommandType       models.CommandType
	ExampleInput      string
	ExampleExtraction map[string]string
}

// ValidatePattern proves a compiled pattern against its worked example:
// the regex must match the example and every claimed extraction must equal
// the captured text, compared trimmed and case-folded.
func ValidatePattern(in ValidationInput) error {
	if in.CommandType != "" && !in.CommandType.IsLearnable() {
		return errs.Validation("Invalid command type: %s", in.CommandType)
	}

	re, err := CompileRegex(in.Regex)
	if err != nil {
		return errs.Validation("Regex failed to compile")
	}

	match := re.FindStringSubmatch(strings.TrimSpace(in.ExampleInput))
	if match == nil {
		return errs.Validation("Pattern does not match the example input")
	}

	for name, expected := range in.ExampleExtraction {
		name = strings.Trim(strings.TrimSpace(name), "{}")
		idx := slices.Index(in.CaptureGroups, name)
		if idx < 0 {
			return errs.Validation("Placeholder %q not found in pattern", name)
		}
		actual := match[idx+1]
		if !strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected)) {
			return errs.Validation("Expected %q for {%s}, got %q", expected, name, actual)
		}
	}
	return nil
}

// CheckMapping verifies that every index in mapping addresses a group of re.
func CheckMapping(mapping map[string]int, groups int) error {
	for param, idx := range mapping {
		if idx < 1 || idx > groups {
			return fmt.Errorf("param %q maps to group %d, pattern has %d", param, idx, groups)
		}
	}
	return nil
}
