package inventory

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentoven/larder/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

type ruleField int

const (
	fieldName ruleField = iota
	fieldNotes
)

type tagRule struct {
	re    *regexp.Regexp
	field ruleField
	tags  []string
}

type rulesFile struct {
	Tags  map[string]models.TagCategory `yaml:"tags"`
	Exact []struct {
		Names []string `yaml:"names"`
		Tags  []string `yaml:"tags"`
	} `yaml:"exact"`
	Keywords []keywordRule `yaml:"keywords"`
	Notes    []keywordRule `yaml:"notes"`
}

type keywordRule struct {
	Pattern string   `yaml:"pattern"`
	Tags    []string `yaml:"tags"`
}

// Tagger computes automatic tags from an item's name and notes.
type Tagger struct {
	rules      []tagRule
	categories map[string]models.TagCategory
}

// NewTagger parses a rules document. See rules.yaml for the format.
func NewTagger(data []byte) (*Tagger, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tag rules: %w", err)
	}

	t := &Tagger{categories: f.Tags}
	if t.categories == nil {
		t.categories = map[string]models.TagCategory{}
	}

	for _, group := range f.Exact {
		for _, name := range group.Names {
			t.rules = append(t.rules, tagRule{
				re:    regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(strings.TrimSpace(name)) + `$`),
				field: fieldName,
				tags:  group.Tags,
			})
		}
	}
	for _, set := range []struct {
		rules []keywordRule
		field ruleField
	}{{f.Keywords, fieldName}, {f.Notes, fieldNotes}} {
		for _, kw := range set.rules {
			re, err := regexp.Compile(`(?i)` + kw.Pattern)
			if err != nil {
				return nil, fmt.Errorf("tag rule %q: %w", kw.Pattern, err)
			}
			t.rules = append(t.rules, tagRule{re: re, field: set.field, tags: kw.Tags})
		}
	}
	return t, nil
}

// DefaultTagger returns the tagger built from the embedded rule set.
func DefaultTagger() *Tagger {
	t, err := NewTagger(defaultRulesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Compute evaluates every rule and returns the union of matching tags in
// first-match order.
func (t *Tagger) Compute(name, notes string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range t.rules {
		text := name
		if r.field == fieldNotes {
			text = notes
		}
		if text == "" || !r.re.MatchString(text) {
			continue
		}
		for _, tag := range r.tags {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	return out
}

// Category returns the category of a built-in tag, or section for
// anything the rule set does not know.
func (t *Tagger) Category(tag string) models.TagCategory {
	if c, ok := t.categories[tag]; ok {
		return c
	}
	return models.TagCategorySection
}

// Known lists the tags the rule set declares.
func (t *Tagger) Known() []string {
	out := make([]string, 0, len(t.categories))
	for name := range t.categories {
		out = append(out, name)
	}
	return out
}
