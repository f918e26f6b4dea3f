package settings

import (
	"context"
	"sync"
)

// MemoryProvider keeps settings in process memory.
type MemoryProvider struct {
	mu sync.RWMutex
	s  Settings
}

// NewMemoryProvider starts from the given record.
func NewMemoryProvider(s Settings) *MemoryProvider {
	return &MemoryProvider{s: s.normalize()}
}

func (p *MemoryProvider) Get(ctx context.Context) (Settings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.s
	s.ExcludedDomains = append([]string{}, p.s.ExcludedDomains...)
	return s, nil
}

func (p *MemoryProvider) Update(ctx context.Context, patch Patch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.s.Apply(patch)
	if err := next.Validate(); err != nil {
		return err
	}
	p.s = next
	return nil
}
