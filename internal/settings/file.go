package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lotas/tabecho/internal/applog"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 100 * time.Millisecond

// FileProvider stores settings as YAML on disk and caches the last good read.
type FileProvider struct {
	path string

	mu     sync.RWMutex
	cached *Settings
}

// NewFileProvider returns a provider backed by path. The file need not exist.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// ConfigDir returns the XDG config directory for tabecho.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "tabecho")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tabecho")
}

// DefaultPath returns ~/.config/tabecho/settings.yaml.
func DefaultPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "settings.yaml")
}

// Path returns the backing file path.
func (p *FileProvider) Path() string {
	return p.path
}

func (p *FileProvider) Get(ctx context.Context) (Settings, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != nil {
		s := *cached
		s.ExcludedDomains = append([]string{}, cached.ExcludedDomains...)
		return s, nil
	}
	if err := p.Reload(); err != nil {
		return Defaults(), err
	}
	return p.Get(ctx)
}

func (p *FileProvider) Update(ctx context.Context, patch Patch) error {
	current, err := p.Get(ctx)
	if err != nil {
		return err
	}
	next := current.Apply(patch)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := p.write(next); err != nil {
		return err
	}
	p.mu.Lock()
	p.cached = &next
	p.mu.Unlock()
	return nil
}

// Reload rereads the file. A missing file yields the defaults; a file that
// fails to parse leaves the cached record untouched.
func (p *FileProvider) Reload() error {
	s, err := readFile(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cached = &s
	p.mu.Unlock()
	return nil
}

func readFile(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Defaults(), fmt.Errorf("parsing settings: %w", err)
	}
	s = s.normalize()
	if err := s.Validate(); err != nil {
		return Defaults(), fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return s, nil
}

// write replaces the file atomically.
func (p *FileProvider) write(s Settings) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}

// Watch reloads the cached record whenever the file changes on disk, until
// ctx is done. onChange, if non-nil, runs after each successful reload.
func (p *FileProvider) Watch(ctx context.Context, onChange func(Settings)) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	// Watch the directory: editors and our own atomic writes replace the file.
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	applog.Info("settings.watch", "path", p.path)

	name := filepath.Clean(p.path)
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := p.Reload(); err != nil {
				applog.Error("settings.reload", err, "path", p.path)
				continue
			}
			s, _ := p.Get(ctx)
			applog.Info("settings.reloaded", "idleThreshold", s.IdleThreshold, "autoArchive", s.AutoArchive, "isPro", s.IsPro)
			if onChange != nil {
				onChange(s)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			applog.Error("settings.watch", err)
		}
	}
}
