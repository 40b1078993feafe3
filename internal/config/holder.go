package config

import (
	"sync"
	"sync/atomic"
)

// Holder publishes the process-wide configuration snapshot. Readers take the
// current pointer without locking; Reload builds a fresh Config and swaps it in.
type Holder struct {
	path    string
	load    func(string) (*Config, error)
	mu      sync.Mutex
	current atomic.Pointer[Config]
}

// NewHolder loads the initial snapshot from path.
func NewHolder(path string) (*Holder, error) {
	h := &Holder{path: path, load: Load}
	if _, err := h.Reload(); err != nil {
		return nil, err
	}
	return h, nil
}

// NewStaticHolder wraps an already built snapshot. Reload re-publishes it unchanged.
func NewStaticHolder(cfg *Config) *Holder {
	h := &Holder{load: func(string) (*Config, error) { return cfg, nil }}
	h.current.Store(cfg)
	return h
}

// Current returns the active snapshot. Callers must not mutate it.
func (h *Holder) Current() *Config {
	return h.current.Load()
}

// Reload re-reads configuration and publishes it. On failure the previous
// snapshot stays active.
func (h *Holder) Reload() (*Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, err := h.load(h.path)
	if err != nil {
		return nil, err
	}
	h.current.Store(cfg)
	return cfg, nil
}
