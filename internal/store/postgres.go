package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentoven/larder/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and migrates. maxConns of zero keeps the
// pgx default.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Int32("max_conns", cfg.MaxConns).Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS locations (
			id    BIGSERIAL PRIMARY KEY,
			name  TEXT NOT NULL UNIQUE,
			notes TEXT
		);

		CREATE TABLE IF NOT EXISTS items (
			id          BIGSERIAL PRIMARY KEY,
			name        TEXT NOT NULL,
			location_id BIGINT NOT NULL REFERENCES locations(id),
			quantity    INTEGER NOT NULL DEFAULT 1,
			notes       TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_items_name ON items (lower(name));

		CREATE TABLE IF NOT EXISTS tags (
			id        BIGSERIAL PRIMARY KEY,
			name      TEXT NOT NULL UNIQUE,
			category  TEXT NOT NULL CHECK (category IN ('section','material','kitchen_safe','food_type','household')),
			is_custom BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS item_tags (
			item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			tag_id  BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			source  TEXT NOT NULL CHECK (source IN ('auto','manual','dictionary')),
			PRIMARY KEY (item_id, tag_id)
		);

		CREATE TABLE IF NOT EXISTS item_dictionary (
			id            BIGSERIAL PRIMARY KEY,
			item_name     TEXT NOT NULL,
			default_notes TEXT,
			default_zone  TEXT,
			default_tags  TEXT[] NOT NULL DEFAULT '{}'
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_item_dictionary_name ON item_dictionary (lower(item_name));

		CREATE TABLE IF NOT EXISTS pipelines (
			id              BIGSERIAL PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE,
			description     TEXT NOT NULL DEFAULT '',
			sql_template    TEXT NOT NULL,
			params          TEXT[] NOT NULL DEFAULT '{}',
			is_mutation     BOOLEAN NOT NULL DEFAULT FALSE,
			format_template TEXT,
			hit_count       INTEGER NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS learned_utterances (
			id                 BIGSERIAL PRIMARY KEY,
			pattern            TEXT NOT NULL UNIQUE,
			regex              TEXT NOT NULL,
			command_type       TEXT,
			pipeline_id        BIGINT REFERENCES pipelines(id) ON DELETE CASCADE,
			param_mapping      JSONB NOT NULL DEFAULT '{}',
			example_input      TEXT,
			example_extraction JSONB,
			ttl_level          INTEGER NOT NULL DEFAULT 0,
			expires_at         TIMESTAMPTZ NOT NULL,
			hit_count          INTEGER NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((command_type IS NULL) <> (pipeline_id IS NULL))
		);
		CREATE INDEX IF NOT EXISTS idx_learned_utterances_expires ON learned_utterances (expires_at);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func notFound(err error, entity, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &ErrNotFound{Entity: entity, Key: key}
	}
	return err
}

func expectOne(tagRows int64, entity, key string) error {
	if tagRows == 0 {
		return &ErrNotFound{Entity: entity, Key: key}
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ── Item Store ──────────────────────────────────────────────

const itemSelect = `SELECT i.id, i.name, i.location_id, l.name, i.quantity, COALESCE(i.notes, '')
	FROM items i JOIN locations l ON l.id = i.location_id`

func scanItem(row pgx.Row) (models.Item, error) {
	var it models.Item
	err := row.Scan(&it.ID, &it.Name, &it.LocationID, &it.LocationName, &it.Quantity, &it.Notes)
	return it, err
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := s.pool.Query(ctx, itemSelect+` ORDER BY i.name, i.id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var result []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, itemSelect+` WHERE i.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "item", idKey(id))
	}
	return &it, nil
}

func (s *PostgresStore) InsertItem(ctx context.Context, item *models.Item) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO items (name, location_id, quantity, notes) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.Name, item.LocationID, item.Quantity, nullIfEmpty(item.Notes),
	).Scan(&item.ID)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), "item", idKey(id))
}

func (s *PostgresStore) UpdateItemQuantity(ctx context.Context, id int64, quantity int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE items SET quantity = $1, updated_at = NOW() WHERE id = $2`, quantity, id)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), "item", idKey(id))
}

func (s *PostgresStore) UpdateItemLocation(ctx context.Context, id int64, locationID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE items SET location_id = $1, updated_at = NOW() WHERE id = $2`, locationID, id)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), "item", idKey(id))
}

func (s *PostgresStore) CountItems(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

// ── Location Store ──────────────────────────────────────────

func (s *PostgresStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, COALESCE(notes, '') FROM locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Location, error) {
		var l models.Location
		err := row.Scan(&l.ID, &l.Name, &l.Notes)
		return l, err
	})
}

func (s *PostgresStore) GetLocationByName(ctx context.Context, name string) (*models.Location, error) {
	var l models.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(notes, '') FROM locations WHERE upper(name) = upper($1)`, name,
	).Scan(&l.ID, &l.Name, &l.Notes)
	if err != nil {
		return nil, notFound(err, "location", name)
	}
	return &l, nil
}

func (s *PostgresStore) EnsureLocations(ctx context.Context, names []string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO locations (name) SELECT unnest($1::text[]) ON CONFLICT (name) DO NOTHING`, names)
	return err
}

// ── Tag Store ───────────────────────────────────────────────

func (s *PostgresStore) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, category, is_custom FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Tag, error) {
		var t models.Tag
		err := row.Scan(&t.ID, &t.Name, &t.Category, &t.IsCustom)
		return t, err
	})
}

func (s *PostgresStore) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	var t models.Tag
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, category, is_custom FROM tags WHERE lower(name) = lower($1)`, name,
	).Scan(&t.ID, &t.Name, &t.Category, &t.IsCustom)
	if err != nil {
		return nil, notFound(err, "tag", name)
	}
	return &t, nil
}

func (s *PostgresStore) CreateTag(ctx context.Context, tag *models.Tag) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO tags (name, category, is_custom) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		tag.Name, tag.Category, tag.IsCustom,
	).Scan(&tag.ID)
}

func (s *PostgresStore) AttachTags(ctx context.Context, itemID int64, tagIDs []int64, source models.TagSource) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO item_tags (item_id, tag_id, source)
		 SELECT $1, unnest($2::bigint[]), $3
		 ON CONFLICT DO NOTHING`,
		itemID, tagIDs, string(source))
	return err
}

func (s *PostgresStore) DetachTag(ctx context.Context, itemID, tagID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM item_tags WHERE item_id = $1 AND tag_id = $2`, itemID, tagID)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), "item tag", idKey(itemID)+":"+idKey(tagID))
}

func (s *PostgresStore) TagsForItem(ctx context.Context, itemID int64) ([]models.TagInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.name, t.category, it.source FROM item_tags it
		 JOIN tags t ON t.id = it.tag_id
		 WHERE it.item_id = $1 ORDER BY t.category, t.name`, itemID)
	if err != nil {
		return nil, fmt.Errorf("tags for item: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TagInfo, error) {
		var t models.TagInfo
		err := row.Scan(&t.Name, &t.Category, &t.Source)
		return t, err
	})
}

func (s *PostgresStore) ItemsByTag(ctx context.Context, tagID int64) ([]models.TaggedItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.name, i.quantity, l.name FROM item_tags it
		 JOIN items i ON i.id = it.item_id
		 JOIN locations l ON l.id = i.location_id
		 WHERE it.tag_id = $1 ORDER BY i.name`, tagID)
	if err != nil {
		return nil, fmt.Errorf("items by tag: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TaggedItem, error) {
		var t models.TaggedItem
		err := row.Scan(&t.ID, &t.Name, &t.Quantity, &t.LocationName)
		return t, err
	})
}

func (s *PostgresStore) TagCounts(ctx context.Context) ([]models.TagCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.name, t.category, COUNT(it.item_id)::int FROM tags t
		 JOIN item_tags it ON it.tag_id = t.id
		 GROUP BY t.id ORDER BY t.category, t.name`)
	if err != nil {
		return nil, fmt.Errorf("tag counts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TagCount, error) {
		var t models.TagCount
		err := row.Scan(&t.Name, &t.Category, &t.Count)
		return t, err
	})
}

// ── Dictionary Store ────────────────────────────────────────

const dictSelect = `SELECT id, item_name, COALESCE(default_notes, ''), COALESCE(default_zone, ''), default_tags FROM item_dictionary`

func scanDict(row pgx.Row) (models.DictionaryEntry, error) {
	var e models.DictionaryEntry
	err := row.Scan(&e.ID, &e.ItemName, &e.DefaultNotes, &e.DefaultZone, &e.DefaultTags)
	return e, err
}

func (s *PostgresStore) GetDictionaryEntry(ctx context.Context, itemName string) (*models.DictionaryEntry, error) {
	e, err := scanDict(s.pool.QueryRow(ctx, dictSelect+` WHERE lower(item_name) = lower($1)`, itemName))
	if err != nil {
		return nil, notFound(err, "dictionary entry", itemName)
	}
	return &e, nil
}

func (s *PostgresStore) UpsertDictionaryEntry(ctx context.Context, entry *models.DictionaryEntry) error {
	tags := entry.DefaultTags
	if tags == nil {
		tags = []string{}
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO item_dictionary (item_name, default_notes, default_zone, default_tags)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT ((lower(item_name))) DO UPDATE SET
			default_notes = EXCLUDED.default_notes,
			default_zone = EXCLUDED.default_zone,
			default_tags = EXCLUDED.default_tags
		 RETURNING id`,
		entry.ItemName, nullIfEmpty(entry.DefaultNotes), nullIfEmpty(entry.DefaultZone), tags,
	).Scan(&entry.ID)
}

func (s *PostgresStore) ListDictionary(ctx context.Context) ([]models.DictionaryEntry, error) {
	rows, err := s.pool.Query(ctx, dictSelect+` ORDER BY item_name`)
	if err != nil {
		return nil, fmt.Errorf("list dictionary: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DictionaryEntry, error) {
		return scanDict(row)
	})
}

func (s *PostgresStore) DeleteDictionaryEntry(ctx context.Context, itemName string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM item_dictionary WHERE lower(item_name) = lower($1)`, itemName)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), "dictionary entry", itemName)
}

// ── Utterance Store ─────────────────────────────────────────

const utteranceSelect = `SELECT id, pattern, regex, command_type, pipeline_id, param_mapping,
	COALESCE(example_input, ''), example_extraction, ttl_level, expires_at, hit_count, created_at, updated_at
	FROM learned_utterances`

func scanUtterance(row pgx.Row) (models.LearnedUtterance, error) {
	var (
		u          models.LearnedUtterance
		cmdType    *string
		pipelineID *int64
	)
	err := row.Scan(&u.ID, &u.Pattern, &u.Regex, &cmdType, &pipelineID, &u.ParamMapping,
		&u.ExampleInput, &u.ExampleExtraction, &u.TTLLevel, &u.ExpiresAt, &u.HitCount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	u.CommandType = models.CommandType(deref(cmdType))
	if pipelineID != nil {
		u.PipelineID = *pipelineID
	}
	return u, nil
}

func (s *PostgresStore) queryUtterances(ctx context.Context, sql string, args ...any) ([]models.LearnedUtterance, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query utterances: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LearnedUtterance, error) {
		return scanUtterance(row)
	})
}

func (s *PostgresStore) ListActiveUtterances(ctx context.Context, now time.Time, limit int) ([]models.LearnedUtterance, error) {
	return s.queryUtterances(ctx,
		utteranceSelect+` WHERE expires_at > $1 ORDER BY hit_count DESC, id LIMIT $2`, now, limit)
}

func (s *PostgresStore) ListUtterances(ctx context.Context) ([]models.LearnedUtterance, error) {
	return s.queryUtterances(ctx, utteranceSelect+` ORDER BY id`)
}

func (s *PostgresStore) GetUtterance(ctx context.Context, id int64) (*models.LearnedUtterance, error) {
	u, err := scanUtterance(s.pool.QueryRow(ctx, utteranceSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "utterance", idKey(id))
	}
	return &u, nil
}

func (s *PostgresStore) UpsertUtterance(ctx context.Context, u *models.LearnedUtterance) error {
	var pipelineID *int64
	if u.PipelineID != 0 {
		pipelineID = &u.PipelineID
	}
	mapping := u.ParamMapping
	if mapping == nil {
		mapping = map[string]int{}
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO learned_utterances
			(pattern, regex, command_type, pipeline_id, param_mapping, example_input, example_extraction, ttl_level, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (pattern) DO UPDATE SET
			regex = EXCLUDED.regex,
			command_type = EXCLUDED.command_type,
			pipeline_id = EXCLUDED.pipeline_id,
			param_mapping = EXCLUDED.param_mapping,
			example_input = EXCLUDED.example_input,
			example_extraction = EXCLUDED.example_extraction,
			updated_at = NOW()
		 RETURNING id, ttl_level, expires_at, hit_count, created_at, updated_at`,
		u.Pattern, u.Regex, nullIfEmpty(string(u.CommandType)), pipelineID, mapping,
		nullIfEmpty(u.ExampleInput), u.ExampleExtraction, u.TTLLevel, u.ExpiresAt,
	).Scan(&u.ID, &u.TTLLevel, &u.ExpiresAt, &u.HitCount, &u.CreatedAt, &u.UpdatedAt)
}

func (s *PostgresStore) UpdateUtteranceStats(ctx context.Context, id int64, hitCount, ttlLevel int, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE learned_utterances SET hit_count = $1, ttl_level = $2, expires_at = $3, updated_at = NOW() WHERE id = $4`,
		hitCount, ttlLevel, expiresAt, id)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), "utterance", idKey(id))
}

func (s *PostgresStore) DeleteExpiredUtterances(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM learned_utterances WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) PruneUtterances(ctx context.Context, keep int) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM learned_utterances WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (ORDER BY ttl_level DESC, expires_at DESC, id DESC) AS rn
				FROM learned_utterances
			) ranked WHERE rn > $1
		)`, keep)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ── Pipeline Store ──────────────────────────────────────────

const pipelineSelect = `SELECT id, name, description, sql_template, params, is_mutation,
	COALESCE(format_template, ''), hit_count, created_at, updated_at FROM pipelines`

func scanPipeline(row pgx.Row) (models.Pipeline, error) {
	var p models.Pipeline
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SQLTemplate, &p.Params, &p.IsMutation,
		&p.FormatTemplate, &p.HitCount, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) ListPipelines(ctx context.Context) ([]models.Pipeline, error) {
	rows, err := s.pool.Query(ctx, pipelineSelect+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Pipeline, error) {
		return scanPipeline(row)
	})
}

func (s *PostgresStore) GetPipeline(ctx context.Context, id int64) (*models.Pipeline, error) {
	p, err := scanPipeline(s.pool.QueryRow(ctx, pipelineSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "pipeline", idKey(id))
	}
	return &p, nil
}

func (s *PostgresStore) GetPipelineByName(ctx context.Context, name string) (*models.Pipeline, error) {
	p, err := scanPipeline(s.pool.QueryRow(ctx, pipelineSelect+` WHERE name = $1`, name))
	if err != nil {
		return nil, notFound(err, "pipeline", name)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertPipeline(ctx context.Context, p *models.Pipeline) error {
	params := p.Params
	if params == nil {
		params = []string{}
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO pipelines (name, description, sql_template, params, is_mutation, format_template)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			sql_template = EXCLUDED.sql_template,
			params = EXCLUDED.params,
			is_mutation = EXCLUDED.is_mutation,
			format_template = EXCLUDED.format_template,
			hit_count = 0,
			updated_at = NOW()
		 RETURNING id, hit_count, created_at, updated_at`,
		p.Name, p.Description, p.SQLTemplate, params, p.IsMutation, nullIfEmpty(p.FormatTemplate),
	).Scan(&p.ID, &p.HitCount, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) IncrementPipelineHits(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE pipelines SET hit_count = hit_count + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), "pipeline", idKey(id))
}

// ── Query Runner ────────────────────────────────────────────

func toArgs(params []string) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}
	return args
}

func (s *PostgresStore) ExecReadOnly(ctx context.Context, sql string, params []string) (*models.QueryResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	res, err := collect(ctx, tx, sql, params)
	if err != nil {
		return nil, err
	}
	res.AffectedRows = 0
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PostgresStore) ExecMutation(ctx context.Context, sql string, params []string) (*models.QueryResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	res, err := collect(ctx, tx, sql, params)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// collect runs sql inside tx and gathers rows, column order and the
// command tag's row count.
func collect(ctx context.Context, tx pgx.Tx, sql string, params []string) (*models.QueryResult, error) {
	rows, err := tx.Query(ctx, sql, toArgs(params)...)
	if err != nil {
		return nil, err
	}
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	return &models.QueryResult{
		AffectedRows: rows.CommandTag().RowsAffected(),
		Columns:      columns,
		Rows:         result,
	}, nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
