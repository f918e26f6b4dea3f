package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Alarm is a persisted periodic schedule. NextFire survives restarts and
// suspension, so a missed period is noticed on the next poll.
type Alarm struct {
	Name     string
	NextFire time.Time
	Period   time.Duration
}

// SaveAlarm creates or replaces an alarm.
func (s *Store) SaveAlarm(ctx context.Context, a Alarm) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alarms (name, next_fire_ms, period_ms) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET next_fire_ms = excluded.next_fire_ms, period_ms = excluded.period_ms`,
		a.Name, a.NextFire.UnixMilli(), a.Period.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save alarm %s: %w", a.Name, err)
	}
	return nil
}

// LoadAlarm returns the named alarm, or ErrNotFound.
func (s *Store) LoadAlarm(ctx context.Context, name string) (Alarm, error) {
	var nextMs, periodMs int64
	err := s.db.QueryRowContext(ctx,
		"SELECT next_fire_ms, period_ms FROM alarms WHERE name = ?", name,
	).Scan(&nextMs, &periodMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Alarm{}, fmt.Errorf("load alarm %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Alarm{}, fmt.Errorf("load alarm %s: %w", name, err)
	}
	return Alarm{
		Name:     name,
		NextFire: time.UnixMilli(nextMs),
		Period:   time.Duration(periodMs) * time.Millisecond,
	}, nil
}
