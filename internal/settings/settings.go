// Package settings holds the user-facing configuration record and the
// providers that persist it.
package settings

import (
	"context"
	"fmt"
	"time"
)

// StorageKey is the key the settings record is stored under in key/value backends.
const StorageKey = "tabecho_settings"

// Free-tier retention limits.
const (
	FreeRetentionLimit = 100
	FreeRetentionDays  = 7
	Unlimited          = -1
)

// Settings is the persisted configuration record.
type Settings struct {
	IdleThreshold         int      `yaml:"idleThreshold" json:"idleThreshold"` // minutes
	EnableScreenshots     bool     `yaml:"enableScreenshots" json:"enableScreenshots"`
	IsPro                 bool     `yaml:"isPro" json:"isPro"`
	RetentionLimit        int      `yaml:"retentionLimit" json:"retentionLimit"` // -1 = unlimited
	RetentionDays         int      `yaml:"retentionDays" json:"retentionDays"`   // -1 = unlimited
	AutoArchive           bool     `yaml:"autoArchive" json:"autoArchive"`
	AutoCloseArchivedTabs bool     `yaml:"autoCloseArchivedTabs" json:"autoCloseArchivedTabs"`
	ExcludedDomains       []string `yaml:"excludedDomains" json:"excludedDomains"`

	// LegacyDomains is the extension's original key for ExcludedDomains.
	LegacyDomains []string `yaml:"domains,omitempty" json:"domains,omitempty"`
}

// Defaults returns the free-tier defaults.
func Defaults() Settings {
	return Settings{
		IdleThreshold:   30,
		RetentionLimit:  FreeRetentionLimit,
		RetentionDays:   FreeRetentionDays,
		AutoArchive:     true,
		ExcludedDomains: []string{},
	}
}

// Threshold returns the idle threshold as a duration.
func (s Settings) Threshold() time.Duration {
	return time.Duration(s.IdleThreshold) * time.Minute
}

// ScreenshotsEnabled reports whether archival should capture a screenshot.
func (s Settings) ScreenshotsEnabled() bool {
	return s.IsPro && s.EnableScreenshots
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	if s.IdleThreshold < 1 {
		return fmt.Errorf("idleThreshold must be at least 1 minute, got %d", s.IdleThreshold)
	}
	if s.RetentionLimit < Unlimited {
		return fmt.Errorf("retentionLimit must be -1 or non-negative, got %d", s.RetentionLimit)
	}
	if s.RetentionDays < Unlimited {
		return fmt.Errorf("retentionDays must be -1 or non-negative, got %d", s.RetentionDays)
	}
	return nil
}

// normalize folds the legacy domains key into ExcludedDomains.
func (s Settings) normalize() Settings {
	if len(s.LegacyDomains) > 0 {
		seen := make(map[string]bool, len(s.ExcludedDomains))
		for _, d := range s.ExcludedDomains {
			seen[d] = true
		}
		for _, d := range s.LegacyDomains {
			if !seen[d] {
				s.ExcludedDomains = append(s.ExcludedDomains, d)
				seen[d] = true
			}
		}
		s.LegacyDomains = nil
	}
	if s.ExcludedDomains == nil {
		s.ExcludedDomains = []string{}
	}
	return s
}

// Patch is a partial settings update. Nil fields are left unchanged.
type Patch struct {
	IdleThreshold         *int      `json:"idleThreshold,omitempty"`
	EnableScreenshots     *bool     `json:"enableScreenshots,omitempty"`
	IsPro                 *bool     `json:"isPro,omitempty"`
	RetentionLimit        *int      `json:"retentionLimit,omitempty"`
	RetentionDays         *int      `json:"retentionDays,omitempty"`
	AutoArchive           *bool     `json:"autoArchive,omitempty"`
	AutoCloseArchivedTabs *bool     `json:"autoCloseArchivedTabs,omitempty"`
	ExcludedDomains       *[]string `json:"excludedDomains,omitempty"`
}

// Apply returns s with the patch merged over it.
func (s Settings) Apply(p Patch) Settings {
	if p.IdleThreshold != nil {
		s.IdleThreshold = *p.IdleThreshold
	}
	if p.EnableScreenshots != nil {
		s.EnableScreenshots = *p.EnableScreenshots
	}
	if p.IsPro != nil {
		s.IsPro = *p.IsPro
	}
	if p.RetentionLimit != nil {
		s.RetentionLimit = *p.RetentionLimit
	}
	if p.RetentionDays != nil {
		s.RetentionDays = *p.RetentionDays
	}
	if p.AutoArchive != nil {
		s.AutoArchive = *p.AutoArchive
	}
	if p.AutoCloseArchivedTabs != nil {
		s.AutoCloseArchivedTabs = *p.AutoCloseArchivedTabs
	}
	if p.ExcludedDomains != nil {
		s.ExcludedDomains = append([]string{}, (*p.ExcludedDomains)...)
	}
	return s
}

// ProPatch unlocks screenshots and unlimited retention.
func ProPatch() Patch {
	return Patch{
		IsPro:             ptr(true),
		EnableScreenshots: ptr(true),
		RetentionLimit:    ptr(Unlimited),
		RetentionDays:     ptr(Unlimited),
	}
}

// FreePatch restores free-tier limits.
func FreePatch() Patch {
	return Patch{
		IsPro:             ptr(false),
		EnableScreenshots: ptr(false),
		RetentionLimit:    ptr(FreeRetentionLimit),
		RetentionDays:     ptr(FreeRetentionDays),
	}
}

// Provider reads and updates the settings record.
type Provider interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, p Patch) error
}

// Reset overwrites every field with the defaults.
func Reset(ctx context.Context, p Provider) error {
	d := Defaults()
	domains := d.ExcludedDomains
	return p.Update(ctx, Patch{
		IdleThreshold:         &d.IdleThreshold,
		EnableScreenshots:     &d.EnableScreenshots,
		IsPro:                 &d.IsPro,
		RetentionLimit:        &d.RetentionLimit,
		RetentionDays:         &d.RetentionDays,
		AutoArchive:           &d.AutoArchive,
		AutoCloseArchivedTabs: &d.AutoCloseArchivedTabs,
		ExcludedDomains:       &domains,
	})
}

func ptr[T any](v T) *T { return &v }
