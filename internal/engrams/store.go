package engrams

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/agentoven/larder/internal/metrics"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	DefaultCapacity = 200

	bumpTimeout = 10 * time.Second
)

// Entry is a learned utterance with its regex compiled.
type Entry struct {
	models.LearnedUtterance
	Re *regexp.Regexp
}

// NewEntry compiles u. It fails when the regex does not compile or the
// mapping addresses a group the regex does not have.
func NewEntry(u models.LearnedUtterance) (*Entry, error) {
	re, err := CompileRegex(u.Regex)
	if err != nil {
		return nil, fmt.Errorf("compile regex: %w", err)
	}
	if err := CheckMapping(u.ParamMapping, re.NumSubexp()); err != nil {
		return nil, err
	}
	return &Entry{LearnedUtterance: u, Re: re}, nil
}

// Store caches compiled utterances over the backing table and applies the
// TTL ladder on every hit.
type Store struct {
	db       store.UtteranceStore
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu        sync.Mutex
	entries   []*Entry
	fetchedAt time.Time

	bg sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithCacheTTL sets how long a loaded snapshot is served before refresh.
func WithCacheTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

// WithCapacity sets the maximum number of stored utterances.
func WithCapacity(n int) Option { return func(s *Store) { s.capacity = n } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore creates an engram store over db.
func NewStore(db store.UtteranceStore, opts ...Option) *Store {
	s := &Store{
		db:       db,
		ttl:      DefaultCacheTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Cached returns the compiled, non-expired utterances, most hit first. The
// snapshot is reloaded when older than the cache TTL; a reload first deletes
// expired rows. Entries that fail to compile are skipped and logged.
func (s *Store) Cached(ctx context.Context) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.entries != nil && now.Sub(s.fetchedAt) < s.ttl {
		return s.entries, nil
	}

	if n, err := s.db.DeleteExpiredUtterances(ctx, now); err != nil {
		log.Warn().Err(err).Msg("Failed to delete expired utterances")
	} else if n > 0 {
		log.Debug().Int("deleted", n).Msg("Expired utterances removed")
	}

	rows, err := s.db.ListActiveUtterances(ctx, now, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("load utterances: %w", err)
	}

	entries := make([]*Entry, 0, len(rows))
	for _, u := range rows {
		e, err := NewEntry(u)
		if err != nil {
			metrics.EngramsQuarantined.Inc()
			log.Warn().Err(err).Int64("utterance_id", u.ID).Str("pattern", u.Pattern).
				Msg("Learned utterance quarantined")
			continue
		}
		entries = append(entries, e)
	}

	s.entries = entries
	s.fetchedAt = now
	metrics.EngramCacheSize.Set(float64(len(entries)))
	return entries, nil
}

// Invalidate drops the cached snapshot so the next Cached call reloads.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Save upserts u by pattern, then prunes the table to capacity. A fresh
// utterance starts at level 0 with a one-day expiry; an existing pattern
// keeps the TTL state it has earned.
func (s *Store) Save(ctx context.Context, u *models.LearnedUtterance) error {
	if (u.CommandType == "") == (u.PipelineID == 0) {
		return fmt.Errorf("utterance %q must target exactly one of a command type or a pipeline", u.Pattern)
	}
	if _, err := NewEntry(*u); err != nil {
		return err
	}
	if u.ExpiresAt.IsZero() {
		u.TTLLevel = 0
		u.ExpiresAt = NewExpiry(0, s.now())
	}

	if err := s.db.UpsertUtterance(ctx, u); err != nil {
		return fmt.Errorf("save utterance: %w", err)
	}

	pruned, err := s.db.PruneUtterances(ctx, s.capacity)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune learned utterances")
	} else if pruned > 0 {
		log.Info().Int("pruned", pruned).Int("capacity", s.capacity).Msg("Learned utterances pruned")
	}

	s.Invalidate()
	log.Info().Int64("utterance_id", u.ID).Str("pattern", u.Pattern).Msg("Learned utterance saved")
	return nil
}

// Bump records a hit on the utterance and promotes it when the match falls
// inside its level's promotion window.
func (s *Store) Bump(ctx context.Context, id int64) error {
	u, err := s.db.GetUtterance(ctx, id)
	if err != nil {
		return err
	}

	level, expiresAt, promoted := Promote(u.TTLLevel, u.ExpiresAt, s.now())
	if err := s.db.UpdateUtteranceStats(ctx, id, u.HitCount+1, level, expiresAt); err != nil {
		return fmt.Errorf("bump utterance: %w", err)
	}
	if promoted {
		metrics.EngramPromotions.Inc()
		log.Debug().Int64("utterance_id", id).Int("level", level).Time("expires_at", expiresAt).
			Msg("Learned utterance promoted")
	}
	return nil
}

// BumpInBackground runs Bump without blocking the caller. Failures are
// logged and never reach the reply path.
func (s *Store) BumpInBackground(id int64) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), bumpTimeout)
		defer cancel()
		if err := s.Bump(ctx, id); err != nil {
			log.Warn().Err(err).Int64("utterance_id", id).Msg("Failed to bump learned utterance")
		}
	}()
}

// Wait blocks until background bumps have finished.
func (s *Store) Wait() { s.bg.Wait() }

// Sweep deletes expired rows and drops the cached snapshot.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	n, err := s.db.DeleteExpiredUtterances(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Invalidate()
	}
	return n, nil
}
