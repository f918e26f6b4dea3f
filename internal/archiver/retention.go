package archiver

import (
	"context"
	"fmt"
	"time"

	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/settings"
)

// RetentionResult counts records removed by each bound.
type RetentionResult struct {
	ByAge   int
	ByCount int
}

// Retention bounds the archive for free-tier accounts.
type Retention struct {
	store Store
	now   func() time.Time
}

// NewRetention returns an enforcer over store.
func NewRetention(store Store) *Retention {
	return &Retention{store: store, now: time.Now}
}

// WithClock overrides the clock used to compute the age cutoff.
func (r *Retention) WithClock(now func() time.Time) *Retention {
	r.now = now
	return r
}

// Enforce applies the age bound (retentionDays > 0) and then the count bound
// (retentionLimit > 0), keeping the newest records. Pro accounts are left alone.
func (r *Retention) Enforce(ctx context.Context, s settings.Settings) (RetentionResult, error) {
	var res RetentionResult
	if s.IsPro {
		return res, nil
	}
	if s.RetentionDays > 0 {
		cutoff := r.now().Add(-time.Duration(s.RetentionDays) * 24 * time.Hour)
		n, err := r.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("apply retention days: %w", err)
		}
		res.ByAge = n
	}
	if s.RetentionLimit > 0 {
		n, err := r.store.TrimToNewest(ctx, s.RetentionLimit)
		if err != nil {
			return res, fmt.Errorf("apply retention limit: %w", err)
		}
		res.ByCount = n
	}
	if res.ByAge > 0 || res.ByCount > 0 {
		applog.Info("retention.trimmed", "by_age", res.ByAge, "by_count", res.ByCount,
			"days", s.RetentionDays, "limit", s.RetentionLimit)
	}
	return res, nil
}
