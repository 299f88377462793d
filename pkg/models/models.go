// Package models holds the data types shared by the larder store, the
// fast-path dispatcher, the engram/pipeline learning layer and the
// reasoning tool loop.
package models

import (
	"strings"
	"time"
)

// ── Inventory ────────────────────────────────────────────────

// Item is a single inventory row. LocationName is denormalised from the
// locations table on read and ignored on write.
type Item struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	LocationID   int64  `json:"location_id"`
	LocationName string `json:"location,omitempty"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes,omitempty"`
}

// Location is a storage location. Location names match kitchen zone IDs.
type Location struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

// TagSource records how a tag got attached to an item.
type TagSource string

const (
	TagSourceAuto       TagSource = "auto"
	TagSourceManual     TagSource = "manual"
	TagSourceDictionary TagSource = "dictionary"
)

// TagCategory mirrors the tag_category enum in the backing store.
type TagCategory string

const (
	TagCategorySection     TagCategory = "section"
	TagCategoryMaterial    TagCategory = "material"
	TagCategoryKitchenSafe TagCategory = "kitchen_safe"
	TagCategoryFoodType    TagCategory = "food_type"
	TagCategoryHousehold   TagCategory = "household"
)

// Tag is a named label that can be attached to items.
type Tag struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Category TagCategory `json:"category"`
	IsCustom bool        `json:"is_custom"`
}

// TagInfo is a tag as attached to a specific item.
type TagInfo struct {
	Name     string      `json:"name"`
	Category TagCategory `json:"category"`
	Source   TagSource   `json:"source"`
}

// TagCount is a tag with the number of items carrying it.
type TagCount struct {
	Name     string      `json:"name"`
	Category TagCategory `json:"category"`
	Count    int         `json:"count"`
}

// TaggedItem is an item found through a tag lookup.
type TaggedItem struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	LocationName string `json:"location"`
}

// DictionaryEntry holds defaults applied when an item is first inserted.
type DictionaryEntry struct {
	ID           int64    `json:"id"`
	ItemName     string   `json:"item_name"`
	DefaultNotes string   `json:"default_notes,omitempty"`
	DefaultZone  string   `json:"default_zone,omitempty"`
	DefaultTags  []string `json:"default_tags"`
}

// ── Learned utterances (engrams) ─────────────────────────────

// LearnedUtterance is a persisted engram: a phrasing pattern compiled to a
// regex and linked to either a command type or a pipeline.
type LearnedUtterance struct {
	ID                int64             `json:"id"`
	Pattern           string            `json:"pattern"`
	Regex             string            `json:"regex"`
	CommandType       CommandType       `json:"command_type,omitempty"`
	PipelineID        int64             `json:"pipeline_id,omitempty"`
	ParamMapping      map[string]int    `json:"param_mapping"`
	ExampleInput      string            `json:"example_input,omitempty"`
	ExampleExtraction map[string]string `json:"example_extraction,omitempty"`
	TTLLevel          int               `json:"ttl_level"`
	ExpiresAt         time.Time         `json:"expires_at"`
	HitCount          int               `json:"hit_count"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsPipelineLinked reports whether the utterance dispatches to a pipeline.
func (u *LearnedUtterance) IsPipelineLinked() bool {
	return u.PipelineID != 0
}

// ── Pipelines ────────────────────────────────────────────────

// Pipeline is a named, parameterised SQL statement with an output template.
type Pipeline struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	SQLTemplate    string    `json:"sql_template"`
	Params         []string  `json:"params"`
	IsMutation     bool      `json:"is_mutation"`
	FormatTemplate string    `json:"format_template,omitempty"`
	HitCount       int       `json:"hit_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizePipelineName lower-cases a name and replaces whitespace runs
// with underscores.
func NormalizePipelineName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// QueryResult is the outcome of a raw query. For mutations Rows is only
// populated when the statement has a RETURNING clause. Columns keeps the
// select-list order, which the row maps lose.
type QueryResult struct {
	AffectedRows int64            `json:"affected_rows"`
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows"`
}

// ── Commands ─────────────────────────────────────────────────

// CommandType identifies a structured inventory command.
type CommandType string

const (
	CommandCheck        CommandType = "check"
	CommandTagSearch    CommandType = "tag-search"
	CommandRemove       CommandType = "remove"
	CommandAdd          CommandType = "add"
	CommandUpdateQty    CommandType = "update-qty"
	CommandMove         CommandType = "move"
	CommandList         CommandType = "list"
	CommandListAll      CommandType = "list-all"
	CommandListTags     CommandType = "list-tags"
	CommandListTagsItem CommandType = "list-tags-item"
	CommandTagItem      CommandType = "tag-item"
	CommandUntagItem    CommandType = "untag-item"
	CommandSearchNames  CommandType = "search-names"
	CommandListDict     CommandType = "list-dict"
	CommandUndo         CommandType = "undo"
	CommandHelp         CommandType = "help"
	CommandUnknown      CommandType = "unknown"
)

// LearnableCommandTypes is the closed set an engram may link to.
var LearnableCommandTypes = []CommandType{
	CommandCheck, CommandTagSearch, CommandRemove, CommandAdd, CommandUpdateQty,
	CommandMove, CommandList, CommandListAll, CommandListTags, CommandListTagsItem,
	CommandTagItem, CommandUntagItem, CommandSearchNames, CommandListDict,
}

// IsLearnable reports whether t belongs to LearnableCommandTypes.
func (t CommandType) IsLearnable() bool {
	for _, c := range LearnableCommandTypes {
		if c == t {
			return true
		}
	}
	return false
}

// Command is the structured form of a chat message. Only the fields
// relevant to Type are set.
type Command struct {
	Type     CommandType `json:"type"`
	ItemName string      `json:"item_name,omitempty"`
	Quantity int         `json:"quantity,omitempty"`
	Zone     string      `json:"zone,omitempty"`
	FromZone string      `json:"from_zone,omitempty"`
	TagName  string      `json:"tag_name,omitempty"`
	TagNames []string    `json:"tag_names,omitempty"`
}
