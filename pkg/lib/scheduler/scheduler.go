// Package scheduler delivers delayed and periodic messages to a mailbox,
// keyed by name. Scheduling under a key replaces whatever that key held.
//
// Delivery only posts the message; the owner processes it from its own inbox.
// Cancel is best-effort: a message posted just before cancellation still
// arrives, so handlers must tolerate a late delivery.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// Scheduler is a keyed timer facility backed by a cron engine.
type Scheduler struct {
	cron *cron.Cron
	log  *zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler. Timers added before Start begin counting
// when Start is called.
func New() *Scheduler {
	log := logging.For("scheduler")
	cronLog := cron.PrintfLogger(log)

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Start runs the timer loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the timer loop and waits for running deliveries to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Serve runs the scheduler until ctx is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func (s *Scheduler) String() string { return "scheduler" }

// ScheduleOnce posts msg to to after delay.
func (s *Scheduler) ScheduleOnce(key string, delay time.Duration, to lib.Mailbox, msg any) {
	s.schedule(key, &delaySchedule{first: time.Now().Add(delay)}, to, msg, true)
}

// SchedulePeriodic posts msg to to after initialDelay and then every period.
func (s *Scheduler) SchedulePeriodic(key string, initialDelay, period time.Duration, to lib.Mailbox, msg any) {
	s.schedule(key, &delaySchedule{first: time.Now().Add(initialDelay), period: period}, to, msg, false)
}

// Cancel removes the timer under key, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

// Scheduled reports whether a timer is registered under key.
func (s *Scheduler) Scheduled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *Scheduler) schedule(key string, sched cron.Schedule, to lib.Mailbox, msg any, once bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)

	j := &job{owner: s, key: key, to: to, msg: msg, once: once}
	// j.id is written before the lock is released, and Run takes the lock
	// before reading it.
	j.id = s.cron.Schedule(sched, j)
	s.entries[key] = j.id

	s.log.Debug().Str("key", key).Bool("once", once).Msg("timer scheduled")
}

func (s *Scheduler) removeLocked(key string) {
	id, ok := s.entries[key]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, key)
	s.log.Debug().Str("key", key).Msg("timer canceled")
}

type job struct {
	owner *Scheduler
	key   string
	to    lib.Mailbox
	msg   any
	once  bool
	id    cron.EntryID
}

func (j *job) Run() {
	j.owner.mu.Lock()
	id, ok := j.owner.entries[j.key]
	current := ok && id == j.id
	if current && j.once {
		j.owner.cron.Remove(id)
		delete(j.owner.entries, j.key)
	}
	j.owner.mu.Unlock()

	// Superseded between dispatch and run.
	if !current {
		return
	}

	if !j.to.Post(j.msg) {
		j.owner.log.Debug().Str("key", j.key).Msg("mailbox closed, message dropped")
	}
}

// delaySchedule fires first at a fixed instant, then every period.
// A zero period makes it fire exactly once.
type delaySchedule struct {
	first   time.Time
	period  time.Duration
	started bool
}

func (d *delaySchedule) Next(t time.Time) time.Time {
	if !d.started {
		d.started = true
		return d.first
	}
	if d.period <= 0 {
		return time.Time{}
	}
	return t.Add(d.period)
}
