package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lotas/tabecho/internal/storage"
)

type memStore struct {
	mu     sync.Mutex
	alarms map[string]storage.Alarm
}

func newMemStore() *memStore {
	return &memStore{alarms: make(map[string]storage.Alarm)}
}

func (m *memStore) SaveAlarm(ctx context.Context, a storage.Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms[a.Name] = a
	return nil
}

func (m *memStore) LoadAlarm(ctx context.Context, name string) (storage.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[name]
	if !ok {
		return storage.Alarm{}, storage.ErrNotFound
	}
	return a, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var start = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunFiresAtStartAndPersists(t *testing.T) {
	store := newMemStore()
	c := &clock{now: start}
	var runs atomic.Int32
	a := New(store, func(context.Context) error { runs.Add(1); return nil }, Config{Poll: time.Hour}).WithClock(c.Now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, func() bool { return runs.Load() == 1 })
	saved, err := store.LoadAlarm(ctx, AlarmName)
	if err != nil {
		t.Fatalf("alarm not saved: %v", err)
	}
	if !saved.NextFire.Equal(start.Add(DefaultPeriod)) || saved.Period != DefaultPeriod {
		t.Errorf("saved alarm = %+v", saved)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestCheckCollapsesMissedPeriods(t *testing.T) {
	store := newMemStore()
	c := &clock{now: start}
	var runs atomic.Int32
	a := New(store, func(context.Context) error { runs.Add(1); return nil }, Config{Period: time.Minute}).WithClock(c.Now)
	if err := a.advance(context.Background(), start); err != nil {
		t.Fatal(err)
	}

	c.Advance(30 * time.Second)
	if a.Check() {
		t.Fatal("fired before the period elapsed")
	}

	// Suspended for ten periods: one fire, next scheduled from now.
	c.Advance(10 * time.Minute)
	if !a.Check() {
		t.Fatal("did not fire after the period elapsed")
	}
	waitFor(t, func() bool { return !a.Busy() })
	if a.Check() {
		t.Error("fired twice for collapsed periods")
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
	if want := c.Now().Add(time.Minute); !a.Next().Equal(want) {
		t.Errorf("Next = %v, want %v", a.Next(), want)
	}
	saved, _ := store.LoadAlarm(context.Background(), AlarmName)
	if !saved.NextFire.Equal(a.Next()) {
		t.Errorf("persisted next = %v, want %v", saved.NextFire, a.Next())
	}
}

func TestTriggerDropsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	a := New(newMemStore(), func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}, Config{})

	if !a.Trigger("first") {
		t.Fatal("first trigger not started")
	}
	if a.Trigger("second") {
		t.Error("second trigger started while busy")
	}
	close(release)
	waitFor(t, func() bool { return !a.Busy() })
	if !a.Trigger("third") {
		t.Error("trigger after completion not started")
	}
	waitFor(t, func() bool { return !a.Busy() })
	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}
}

func TestRunWaitsForInFlightJob(t *testing.T) {
	var finished atomic.Bool
	started := make(chan struct{})
	a := New(newMemStore(), func(context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	}, Config{Poll: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	<-started
	cancel()
	<-done
	if !finished.Load() {
		t.Error("Run returned before the job finished")
	}
}
