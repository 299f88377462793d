// Package janitor periodically removes expired state: learned utterances
// past their expiry and idle conversation histories. Each job runs on the
// same cron schedule; a job still running when its next tick fires is
// skipped.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/larder/internal/metrics"
)

// DefaultSchedule runs the sweeps every ten minutes.
const DefaultSchedule = "@every 10m"

// jobTimeout bounds a single sweep.
const jobTimeout = time.Minute

// Job is one sweep. Run returns how many entries it removed.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// CycleStats is the outcome of one RunOnce.
type CycleStats struct {
	Removed map[string]int
	Errors  map[string]error
}

// Janitor schedules the jobs with cron.
type Janitor struct {
	cron *cron.Cron
	jobs []Job
}

// New registers jobs under schedule, a cron spec or descriptor such as
// "@every 5m". An empty schedule selects DefaultSchedule.
func New(schedule string, jobs ...Job) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	logger := cronLogger{log.With().Str("component", "janitor").Logger()}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	j := &Janitor{cron: c, jobs: jobs}
	for _, job := range jobs {
		if _, err := c.AddFunc(schedule, func() { j.run(context.Background(), job) }); err != nil {
			return nil, fmt.Errorf("janitor schedule %q: %w", schedule, err)
		}
	}
	return j, nil
}

// Start begins running the jobs in the background.
func (j *Janitor) Start() {
	names := make([]string, len(j.jobs))
	for i, job := range j.jobs {
		names[i] = job.Name
	}
	log.Info().Strs("jobs", names).Msg("Janitor started")
	j.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	log.Info().Msg("Janitor stopped")
}

// RunOnce runs every job immediately, in order.
func (j *Janitor) RunOnce(ctx context.Context) CycleStats {
	stats := CycleStats{Removed: map[string]int{}, Errors: map[string]error{}}
	for _, job := range j.jobs {
		n, err := j.run(ctx, job)
		if err != nil {
			stats.Errors[job.Name] = err
			continue
		}
		stats.Removed[job.Name] = n
	}
	return stats
}

func (j *Janitor) run(ctx context.Context, job Job) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		log.Warn().Err(err).Str("job", job.Name).Msg("Janitor job failed")
		return 0, err
	}
	metrics.JanitorSweeps.WithLabelValues(job.Name).Add(float64(n))
	event := log.Debug()
	if n > 0 {
		event = log.Info()
	}
	event.Str("job", job.Name).Int("removed", n).Dur("duration", time.Since(start)).Msg("Janitor job finished")
	return n, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
