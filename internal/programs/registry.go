package programs

import "sync"

// Registry maps program names to implementations.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]Program
}

// NewRegistry creates a registry preloaded with the built-in programs.
func NewRegistry() *Registry {
	r := &Registry{programs: make(map[string]Program)}
	r.Register(FinanceReport{})
	r.Register(InvestingDraft{})
	return r
}

// Register adds or replaces a program under its name.
func (r *Registry) Register(p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[p.Name()] = p
}

// Lookup returns the program registered under name.
func (r *Registry) Lookup(name string) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[name]
	return p, ok
}
