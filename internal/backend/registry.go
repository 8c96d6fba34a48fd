package backend

import (
	"errors"
	"sort"
	"sync"
)

// LlamaName selects the in-process llama.cpp backend. Real support requires
// the 'llama' build tag; the default build registers a failing stub factory.
const LlamaName = "llama"

// Registry errors.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
)

// Registry maps backend names to factories. The backend is selected once at
// startup by name; call sites never branch on the name again.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named factory. Duplicate names are rejected.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return ErrAlreadyRegistered
	}
	r.factories[name] = f
	return nil
}

// Get retrieves a factory by name.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

// Names lists registered backend names, sorted for stable help output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Builtin returns a registry with all compiled-in backends registered.
func Builtin() *Registry {
	r := NewRegistry()
	// Names are unique by construction; Register cannot fail here.
	_ = r.Register(SimName, simFactory)
	_ = r.Register(VLLMName, vllmFactory)
	_ = r.Register(LlamaName, llamaFactory)
	return r
}
