// Package scheduler enqueues sync jobs on each entity's cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/logger"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Trigger fires callbacks on cron schedules.
type Trigger interface {
	// Schedule registers fire to run on spec.
	Schedule(spec string, fire func()) error
	// Start begins firing in the background.
	Start()
	// Stop halts firing; the returned context is done once running callbacks return.
	Stop() context.Context
}

// CronTrigger is a Trigger backed by robfig/cron using standard five-field specs.
type CronTrigger struct {
	c *cron.Cron
}

// NewCronTrigger creates a trigger evaluating specs in loc. A nil loc means time.Local.
func NewCronTrigger(log zerolog.Logger, loc *time.Location) *CronTrigger {
	if loc == nil {
		loc = time.Local
	}
	return &CronTrigger{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{log: log}),
			cron.WithChain(cron.Recover(cronLogger{log: log})),
		),
	}
}

// Schedule implements Trigger.
func (t *CronTrigger) Schedule(spec string, fire func()) error {
	if _, err := t.c.AddFunc(spec, fire); err != nil {
		return fmt.Errorf("Schedule: invalid spec %q: %w", spec, err)
	}
	return nil
}

// Start implements Trigger.
func (t *CronTrigger) Start() { t.c.Start() }

// Stop implements Trigger.
func (t *CronTrigger) Stop() context.Context { return t.c.Stop() }

// Next returns the next activation time of every registered schedule.
func (t *CronTrigger) Next() []time.Time {
	var out []time.Time
	for _, e := range t.c.Entries() {
		out = append(out, e.Next)
	}
	return out
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// upcoming is implemented by triggers that know their next activations.
type upcoming interface {
	Next() []time.Time
}

// Entry is one entity and its schedule.
type Entry struct {
	Entity   string
	Schedule string
}

// Scheduler publishes a sync job per entity at startup and on every
// activation of its schedule.
type Scheduler struct {
	publisher jobs.Publisher
	trigger   Trigger
	entries   []Entry
	// RunOnStart publishes one immediate job per entity when Start is called.
	RunOnStart bool
}

// New creates a scheduler. Entries with an empty schedule only run at startup.
func New(publisher jobs.Publisher, trigger Trigger, entries []Entry) *Scheduler {
	return &Scheduler{
		publisher:  publisher,
		trigger:    trigger,
		entries:    entries,
		RunOnStart: true,
	}
}

// Start registers every schedule, publishes the startup jobs and blocks
// until ctx is cancelled. It returns an error only if a schedule is invalid.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logger.FromContext(ctx)

	for _, e := range s.entries {
		if e.Schedule == "" {
			continue
		}
		entity := e.Entity
		if err := s.trigger.Schedule(e.Schedule, func() {
			s.publish(ctx, entity, jobs.TriggerSchedule)
		}); err != nil {
			return fmt.Errorf("Start: entity %s: %w", entity, err)
		}
		log.Info().Str("entity", entity).Str("schedule", e.Schedule).Msg("Scheduled entity")
	}

	if s.RunOnStart {
		for _, e := range s.entries {
			s.publish(ctx, e.Entity, jobs.TriggerStartup)
		}
	}

	s.trigger.Start()
	if u, ok := s.trigger.(upcoming); ok {
		log.Info().Times("next_runs", u.Next()).Msg("Scheduler started")
	}
	<-ctx.Done()
	<-s.trigger.Stop().Done()
	log.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Scheduler) publish(ctx context.Context, entity string, trigger jobs.Trigger) {
	log := logger.FromContext(ctx)
	job := &jobs.SyncJob{Entity: entity, Trigger: trigger}
	if err := s.publisher.PublishSync(ctx, job); err != nil {
		log.Error().Err(err).Str("entity", entity).Str("trigger", string(trigger)).Msg("Failed to enqueue sync job")
		return
	}
	log.Info().Str("entity", entity).Str("job_id", job.JobID).Str("trigger", string(trigger)).Msg("Sync job enqueued")
}
