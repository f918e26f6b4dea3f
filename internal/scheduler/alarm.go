// Package scheduler runs the periodic idle check on a durable alarm.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/storage"
)

const (
	// AlarmName is the name of the idle-check alarm, shared with the extension.
	AlarmName = "idle-check"
	// DefaultPeriod is how often the idle check runs.
	DefaultPeriod = time.Minute
	// DefaultPoll is how often the wall clock is compared with the next fire time.
	DefaultPoll = 5 * time.Second
)

// Store persists the alarm's next fire time.
type Store interface {
	SaveAlarm(ctx context.Context, a storage.Alarm) error
	LoadAlarm(ctx context.Context, name string) (storage.Alarm, error)
}

// Job is the work run on every fire.
type Job func(ctx context.Context) error

// Config holds the alarm configuration.
type Config struct {
	Name   string
	Period time.Duration
	Poll   time.Duration
}

// Alarm fires Job once per period. The next fire time is stored and checked
// against the wall clock, so time spent suspended or stopped counts toward the
// period; any number of missed periods collapse into a single fire. At most one
// job runs at a time and a fire that arrives while one is running is dropped.
type Alarm struct {
	store  Store
	job    Job
	name   string
	period time.Duration
	poll   time.Duration
	now    func() time.Time

	mu   sync.Mutex
	next time.Time
	ctx  context.Context

	busy atomic.Bool
	wg   sync.WaitGroup
}

// New creates an alarm. Zero config values take the defaults.
func New(store Store, job Job, cfg Config) *Alarm {
	if cfg.Name == "" {
		cfg.Name = AlarmName
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	return &Alarm{
		store:  store,
		job:    job,
		name:   cfg.Name,
		period: cfg.Period,
		poll:   cfg.Poll,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock.
func (a *Alarm) WithClock(now func() time.Time) *Alarm {
	a.now = now
	return a
}

// Run fires once immediately, then polls until ctx is done. It waits for an
// in-flight job before returning.
func (a *Alarm) Run(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	defer a.wg.Wait()

	now := a.now()
	saved, err := a.store.LoadAlarm(ctx, a.name)
	switch {
	case err == nil && saved.NextFire.Before(now):
		applog.Info("alarm.missed", "name", a.name, "due", saved.NextFire.Format(time.RFC3339))
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("load alarm: %w", err)
	}

	applog.Info("alarm.start", "name", a.name, "period", a.period.String())
	if err := a.advance(ctx, now); err != nil {
		applog.Error("alarm.save", err, "name", a.name)
	}
	a.Trigger("start")

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			applog.Info("alarm.stop", "name", a.name)
			return nil
		case <-ticker.C:
			a.Check()
		}
	}
}

// Check fires the job if the next fire time has passed.
func (a *Alarm) Check() bool {
	ctx := a.context()
	now := a.now()
	a.mu.Lock()
	due := !now.Before(a.next)
	a.mu.Unlock()
	if !due {
		return false
	}
	if err := a.advance(ctx, now); err != nil {
		applog.Error("alarm.save", err, "name", a.name)
	}
	return a.Trigger("alarm")
}

// Trigger runs the job now unless one is already running. It reports
// whether the job was started. reason is logged.
func (a *Alarm) Trigger(reason string) bool {
	if !a.busy.CompareAndSwap(false, true) {
		applog.Info("alarm.skipped", "name", a.name, "reason", reason)
		return false
	}
	ctx := a.context()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy.Store(false)
		start := time.Now()
		if err := a.job(ctx); err != nil {
			applog.Error("alarm.job", err, "name", a.name, "reason", reason)
			return
		}
		applog.Debug("alarm.done", "name", a.name, "reason", reason, "took", time.Since(start).String())
	}()
	return true
}

// Busy reports whether a job is running.
func (a *Alarm) Busy() bool {
	return a.busy.Load()
}

// Next returns the next scheduled fire time.
func (a *Alarm) Next() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// advance schedules the next fire one period after now and persists it.
func (a *Alarm) advance(ctx context.Context, now time.Time) error {
	next := now.Add(a.period)
	a.mu.Lock()
	a.next = next
	a.mu.Unlock()
	return a.store.SaveAlarm(context.WithoutCancel(ctx), storage.Alarm{Name: a.name, NextFire: next, Period: a.period})
}

func (a *Alarm) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}
