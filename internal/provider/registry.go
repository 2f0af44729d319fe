package provider

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderPriority is the order backends are tried in "auto" mode.
var ProviderPriority = []string{"anthropic", "openai", "google"}

// Registry holds the known backends and picks one.
type Registry struct {
	mu        sync.RWMutex
	backends  map[string]Backend
	preferred string
}

// NewRegistry returns an empty registry. An empty preference means "auto".
func NewRegistry(preferred string) *Registry {
	if preferred == "" {
		preferred = "auto"
	}
	return &Registry{backends: make(map[string]Backend), preferred: preferred}
}

// NewDefaultRegistry registers the Claude CLI, OpenAI and Gemini backends.
func NewDefaultRegistry(cfg Config) *Registry {
	r := NewRegistry(cfg.Provider)
	// The model override only makes sense for the backend it was written for.
	model := func(name string) string {
		if cfg.Provider == name {
			return cfg.Model
		}
		return ""
	}
	r.Register(NewClaudeCLI(cfg.ClaudeBinary, model("anthropic")))
	r.Register(NewOpenAI(cfg.OpenAIBaseURL, model("openai")))
	r.Register(NewGemini(model("google")))
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Preferred returns the configured preference.
func (r *Registry) Preferred() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preferred
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Best returns the preferred backend if set, otherwise the first available
// backend in ProviderPriority order.
func (r *Registry) Best() (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.preferred != "auto" {
		b, ok := r.backends[r.preferred]
		if !ok {
			return nil, fmt.Errorf("%w: backend %q not registered", ErrUnavailable, r.preferred)
		}
		if !b.Available() {
			return nil, fmt.Errorf("%w: backend %q is not configured", ErrUnavailable, r.preferred)
		}
		return b, nil
	}

	for _, name := range ProviderPriority {
		if b, ok := r.backends[name]; ok && b.Available() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no backend configured", ErrUnavailable)
}

// ListAvailable returns the names of available backends, sorted.
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, b := range r.backends {
		if b.Available() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ListAll maps every registered backend to its availability.
func (r *Registry) ListAll() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := make(map[string]bool, len(r.backends))
	for name, b := range r.backends {
		status[name] = b.Available()
	}
	return status
}
