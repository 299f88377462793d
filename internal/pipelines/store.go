// Package pipelines stores named, parameterised SQL statements and runs
// them with positional arguments, rendering rows through a small line
// template language.
package pipelines

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/sqlguard"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL bounds how long a fetched pipeline is served from memory.
const DefaultCacheTTL = 5 * time.Minute

type cached struct {
	pipeline  models.Pipeline
	fetchedAt time.Time
}

// Store is a per-id read-through cache over the pipelines table.
type Store struct {
	db  store.PipelineStore
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	cache map[int64]cached
}

// NewStore creates a pipeline store. ttl of zero selects DefaultCacheTTL.
func NewStore(db store.PipelineStore, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{db: db, ttl: ttl, now: time.Now, cache: make(map[int64]cached)}
}

// Get returns pipeline id, from cache when fresh.
func (s *Store) Get(ctx context.Context, id int64) (*models.Pipeline, error) {
	s.mu.RLock()
	c, ok := s.cache[id]
	s.mu.RUnlock()
	if ok && s.now().Sub(c.fetchedAt) < s.ttl {
		p := c.pipeline
		return &p, nil
	}

	p, err := s.db.GetPipeline(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errs.NotFound("", "Pipeline %d not found.", id)
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[id] = cached{pipeline: *p, fetchedAt: s.now()}
	s.mu.Unlock()
	return p, nil
}

// GetByName looks a pipeline up by its normalised name, bypassing the cache.
func (s *Store) GetByName(ctx context.Context, name string) (*models.Pipeline, error) {
	p, err := s.db.GetPipelineByName(ctx, models.NormalizePipelineName(name))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errs.NotFound("", "Pipeline %q not found.", name)
		}
		return nil, err
	}
	return p, nil
}

// List returns every stored pipeline.
func (s *Store) List(ctx context.Context) ([]models.Pipeline, error) {
	return s.db.ListPipelines(ctx)
}

// Save validates p and upserts it by name. The SQL must pass sqlguard and
// the declared IsMutation flag must agree with the statement's verb.
func (s *Store) Save(ctx context.Context, p *models.Pipeline) error {
	p.Name = models.NormalizePipelineName(p.Name)
	if p.Name == "" {
		return errs.Validation("Pipeline name is required")
	}
	p.SQLTemplate = strings.TrimSpace(p.SQLTemplate)

	qt, err := sqlguard.Validate(p.SQLTemplate)
	if err != nil {
		return err
	}
	if qt.IsMutation() != p.IsMutation {
		return errs.Validation("is_mutation=%t does not match the %s statement", p.IsMutation, strings.ToUpper(string(qt)))
	}
	if err := checkParams(p.SQLTemplate, p.Params); err != nil {
		return err
	}

	if err := s.db.UpsertPipeline(ctx, p); err != nil {
		return err
	}
	s.Invalidate()
	log.Info().Int64("pipeline_id", p.ID).Str("name", p.Name).Bool("mutation", p.IsMutation).Msg("Pipeline saved")
	return nil
}

// Invalidate drops every cached pipeline.
func (s *Store) Invalidate() {
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
}

// checkParams rejects duplicate or blank parameter names and SQL that
// references a placeholder beyond the declared parameter list.
func checkParams(sql string, params []string) error {
	seen := make(map[string]bool, len(params))
	for _, name := range params {
		if strings.TrimSpace(name) == "" {
			return errs.Validation("Pipeline params must not be blank")
		}
		if seen[name] {
			return errs.Validation("Duplicate pipeline param: %s", name)
		}
		seen[name] = true
	}
	if n := maxPlaceholder(sql); n > len(params) {
		return errs.Validation("SQL references $%d but only %d params are declared", n, len(params))
	}
	return nil
}

// maxPlaceholder returns the highest $n referenced in sql.
func maxPlaceholder(sql string) int {
	highest := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] != '$' {
			continue
		}
		n, j := 0, i+1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			n = n*10 + int(sql[j]-'0')
			j++
		}
		highest = max(highest, n)
		i = j - 1
	}
	return highest
}
