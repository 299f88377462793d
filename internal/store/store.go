// Package store provides the backing-store interface and its implementations.
// PostgreSQL (pgx) is the production store; the in-memory store backs tests
// and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agentoven/larder/pkg/models"
)

// Store is the primary storage interface. Everything above the store
// (inventory service, engram and pipeline caches, tools) depends on this
// interface only.
type Store interface {
	ItemStore
	LocationStore
	TagStore
	DictionaryStore
	UtteranceStore
	PipelineStore
	QueryRunner

	// Ping checks if the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate creates the tables the bot needs if they are missing.
	Migrate(ctx context.Context) error
}

// ── Item Store ──────────────────────────────────────────────

type ItemStore interface {
	// ListItems returns every item with its location name, ordered by name.
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	// InsertItem stores item and sets item.ID.
	InsertItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, id int64) error
	UpdateItemQuantity(ctx context.Context, id int64, quantity int) error
	UpdateItemLocation(ctx context.Context, id int64, locationID int64) error
	CountItems(ctx context.Context) (int, error)
}

// ── Location Store ──────────────────────────────────────────

type LocationStore interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
	GetLocationByName(ctx context.Context, name string) (*models.Location, error)
	// EnsureLocations creates any of names that do not exist yet.
	EnsureLocations(ctx context.Context, names []string) error
}

// ── Tag Store ───────────────────────────────────────────────

type TagStore interface {
	ListTags(ctx context.Context) ([]models.Tag, error)
	// GetTagByName matches case-insensitively.
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	// CreateTag stores tag and sets tag.ID.
	CreateTag(ctx context.Context, tag *models.Tag) error
	// AttachTags links tags to an item; existing links are left untouched.
	AttachTags(ctx context.Context, itemID int64, tagIDs []int64, source models.TagSource) error
	DetachTag(ctx context.Context, itemID, tagID int64) error
	TagsForItem(ctx context.Context, itemID int64) ([]models.TagInfo, error)
	ItemsByTag(ctx context.Context, tagID int64) ([]models.TaggedItem, error)
	TagCounts(ctx context.Context) ([]models.TagCount, error)
}

// ── Dictionary Store ────────────────────────────────────────

type DictionaryStore interface {
	// GetDictionaryEntry matches item names case-insensitively.
	GetDictionaryEntry(ctx context.Context, itemName string) (*models.DictionaryEntry, error)
	UpsertDictionaryEntry(ctx context.Context, entry *models.DictionaryEntry) error
	ListDictionary(ctx context.Context) ([]models.DictionaryEntry, error)
	DeleteDictionaryEntry(ctx context.Context, itemName string) error
}

// ── Utterance Store ─────────────────────────────────────────

type UtteranceStore interface {
	// ListActiveUtterances returns utterances expiring after now, most hit
	// first, at most limit rows.
	ListActiveUtterances(ctx context.Context, now time.Time, limit int) ([]models.LearnedUtterance, error)
	// ListUtterances returns every stored utterance, including expired ones.
	ListUtterances(ctx context.Context) ([]models.LearnedUtterance, error)
	GetUtterance(ctx context.Context, id int64) (*models.LearnedUtterance, error)
	// UpsertUtterance inserts u, or on a pattern conflict replaces only the
	// content fields (regex, target, mapping, example) and keeps the earned
	// ttl_level, expires_at and hit_count. u.ID is set either way.
	UpsertUtterance(ctx context.Context, u *models.LearnedUtterance) error
	// UpdateUtteranceStats persists hit count and TTL state.
	UpdateUtteranceStats(ctx context.Context, id int64, hitCount, ttlLevel int, expiresAt time.Time) error
	// DeleteExpiredUtterances removes rows with expires_at before now.
	DeleteExpiredUtterances(ctx context.Context, now time.Time) (int, error)
	// PruneUtterances deletes rows beyond keep, lowest ttl_level and
	// soonest expiry first, and returns how many were removed.
	PruneUtterances(ctx context.Context, keep int) (int, error)
}

// ── Pipeline Store ──────────────────────────────────────────

type PipelineStore interface {
	ListPipelines(ctx context.Context) ([]models.Pipeline, error)
	GetPipeline(ctx context.Context, id int64) (*models.Pipeline, error)
	GetPipelineByName(ctx context.Context, name string) (*models.Pipeline, error)
	// UpsertPipeline inserts or replaces by name and sets p.ID. A replaced
	// pipeline starts again from zero hits.
	UpsertPipeline(ctx context.Context, p *models.Pipeline) error
	IncrementPipelineHits(ctx context.Context, id int64) error
}

// ── Query Runner ────────────────────────────────────────────

// QueryRunner executes caller-supplied SQL with positional parameters.
// Callers must run the text through sqlguard first.
type QueryRunner interface {
	// ExecReadOnly runs sql in a read-only transaction and returns its rows.
	ExecReadOnly(ctx context.Context, sql string, params []string) (*models.QueryResult, error)
	// ExecMutation runs sql in a read-write transaction.
	ExecMutation(ctx context.Context, sql string, params []string) (*models.QueryResult, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err wraps an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
