package pipelines

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentoven/larder/internal/store"
	"github.com/rs/zerolog/log"
)

const hitTimeout = 10 * time.Second

// Invalidator is implemented by caches that shadow inventory rows.
type Invalidator interface {
	Invalidate()
}

// Executor runs stored pipelines.
type Executor struct {
	pipelines *Store
	db        store.Store
	snapshot  Invalidator

	bg sync.WaitGroup
}

// NewExecutor wires an executor. snapshot may be nil.
func NewExecutor(pipelines *Store, db store.Store, snapshot Invalidator) *Executor {
	return &Executor{pipelines: pipelines, db: db, snapshot: snapshot}
}

// Execute runs pipeline id with named params and returns formatted text.
// Params missing from the map are passed as empty strings.
func (e *Executor) Execute(ctx context.Context, id int64, params map[string]string) (string, error) {
	p, err := e.pipelines.Get(ctx, id)
	if err != nil {
		return "", err
	}

	positional := make([]string, len(p.Params))
	for i, name := range p.Params {
		positional[i] = params[name]
	}

	logger := log.With().Int64("pipeline_id", p.ID).Str("pipeline", p.Name).Logger()

	var res Result
	if p.IsMutation {
		qr, err := e.db.ExecMutation(ctx, p.SQLTemplate, positional)
		if err != nil {
			logger.Warn().Err(err).Msg("Pipeline mutation failed")
			return "", fmt.Errorf("pipeline %s: %w", p.Name, err)
		}
		if e.snapshot != nil {
			e.snapshot.Invalidate()
		}
		res = Result{Columns: qr.Columns, Rows: qr.Rows, Affected: qr.AffectedRows}
	} else {
		qr, err := e.db.ExecReadOnly(ctx, p.SQLTemplate, positional)
		if err != nil {
			logger.Warn().Err(err).Msg("Pipeline query failed")
			return "", fmt.Errorf("pipeline %s: %w", p.Name, err)
		}
		res = Result{Columns: qr.Columns, Rows: qr.Rows, Affected: -1}
	}

	e.recordHit(p.ID)
	logger.Debug().Int("rows", len(res.Rows)).Int64("affected", res.Affected).Msg("Pipeline executed")
	return Render(p.FormatTemplate, p.Description, res), nil
}

// recordHit increments the hit counter without blocking the reply.
func (e *Executor) recordHit(id int64) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), hitTimeout)
		defer cancel()
		if err := e.db.IncrementPipelineHits(ctx, id); err != nil {
			log.Warn().Err(err).Int64("pipeline_id", id).Msg("Failed to bump pipeline hits")
		}
	}()
}

// Wait blocks until background hit updates have finished.
func (e *Executor) Wait() { e.bg.Wait() }
