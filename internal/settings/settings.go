// Package settings exposes user-facing detection preferences.
package settings

import (
	"sync"

	"github.com/veristream/callshield/internal/config"
)

// Settings is the snapshot of preferences the monitor consults. The enable
// flag is read once at session start; the threshold is re-read on every
// scoring pass, so changing it affects sessions already running.
type Settings struct {
	DetectionEnabled bool
	AlertThreshold   float32
}

// Provider yields the current preference snapshot
type Provider interface {
	Current() Settings
}

// Static is a mutable in-process provider backed by a mutex. It serves both
// the CLI (values fixed from config) and tests (toggled between calls).
type Static struct {
	mu sync.RWMutex
	s  Settings
}

// NewStatic creates a provider with the given initial snapshot
func NewStatic(s Settings) *Static {
	return &Static{s: s}
}

// FromConfig seeds a provider from loaded configuration
func FromConfig(cfg *config.Config) *Static {
	return NewStatic(Settings{
		DetectionEnabled: cfg.DetectionEnabled,
		AlertThreshold:   float32(cfg.DetectionThreshold),
	})
}

func (p *Static) Current() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

// Set replaces the snapshot served to future calls
func (p *Static) Set(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s = s
}
