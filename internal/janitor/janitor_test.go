package janitor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agentoven/larder/internal/conversation"
	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/janitor"
	"github.com/agentoven/larder/internal/reasoning"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
)

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := janitor.New("every tuesday-ish", janitor.Job{Name: "x", Run: func(context.Context) (int, error) { return 0, nil }})
	assert.Error(t, err)
}

func TestRunOnce_SweepsExpiredState(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	db := store.NewMemoryStore("")
	defer db.Close()
	require.NoError(t, db.UpsertUtterance(ctx, &models.LearnedUtterance{
		Pattern: "stale phrase {item}", Regex: `^stale phrase (.+)$`, CommandType: models.CommandCheck,
		ParamMapping: map[string]int{"itemName": 1}, ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, db.UpsertUtterance(ctx, &models.LearnedUtterance{
		Pattern: "fresh phrase {item}", Regex: `^fresh phrase (.+)$`, CommandType: models.CommandCheck,
		ParamMapping: map[string]int{"itemName": 1}, ExpiresAt: now.Add(time.Hour),
	}))
	es := engrams.NewStore(db, engrams.WithClock(clock))

	history := conversation.NewMemoryStore(0, time.Minute)
	history.SetClock(func() time.Time { return now.Add(-2 * time.Minute) })
	require.NoError(t, history.Append(ctx, 1, reasoning.Message{Role: reasoning.RoleUser, Content: []reasoning.Block{reasoning.TextBlock("hi")}}))
	history.SetClock(clock)

	j, err := janitor.New("", janitor.Job{Name: "engrams", Run: es.Sweep}, janitor.Job{Name: "conversations", Run: history.Sweep})
	require.NoError(t, err)

	stats := j.RunOnce(ctx)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, map[string]int{"engrams": 1, "conversations": 1}, stats.Removed)

	left, err := db.ListUtterances(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh phrase {item}", left[0].Pattern)
}

func TestRunOnce_ReportsFailuresAndContinues(t *testing.T) {
	var ran atomic.Int32
	j, err := janitor.New("@every 1h",
		janitor.Job{Name: "broken", Run: func(context.Context) (int, error) { return 0, errors.New("db down") }},
		janitor.Job{Name: "ok", Run: func(context.Context) (int, error) { ran.Add(1); return 2, nil }},
	)
	require.NoError(t, err)

	stats := j.RunOnce(context.Background())
	assert.EqualError(t, stats.Errors["broken"], "db down")
	assert.Equal(t, 2, stats.Removed["ok"])
	assert.Equal(t, int32(1), ran.Load())
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	var ran atomic.Int32
	j, err := janitor.New("@every 1s", janitor.Job{Name: "tick", Run: func(context.Context) (int, error) {
		ran.Add(1)
		return 0, nil
	}})
	require.NoError(t, err)

	j.Start()
	require.Eventually(t, func() bool { return ran.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	j.Stop()
}
