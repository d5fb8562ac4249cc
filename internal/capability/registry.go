package capability

import (
	"sort"
	"sync"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
)

// Registration couples a capability with its registry metadata.
type Registration struct {
	// Name is the unique identifier blueprints reference.
	Name string

	// Description is a one-line summary shown by the CLI.
	Description string

	// Fn is the capability implementation.
	Fn Func
}

// Registry holds the capabilities available to pipeline runs. Lookups are
// safe for concurrent use; registration usually happens once at startup.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		caps: make(map[string]Registration),
	}
}

// Register adds a capability under the given name. Registering a name
// twice is an error; replace semantics are intentionally absent so that
// blueprint validation stays meaningful.
func (r *Registry) Register(name, description string, fn Func) error {
	if name == "" {
		return errors.NewValidationError("capability name is required").WithField("name")
	}
	if fn == nil {
		return errors.NewValidationError("capability func is required").WithField("fn").WithValue(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[name]; exists {
		return errors.NewCapabilityError("duplicate registration", errors.ErrCapabilityExists).
			WithCapability(name)
	}
	r.caps[name] = Registration{Name: name, Description: description, Fn: fn}
	return nil
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.caps[name]
	if !ok {
		return nil, false
	}
	return reg.Fn, true
}

// Describe returns the full registration for name.
func (r *Registry) Describe(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.caps[name]
	return reg, ok
}

// Names returns all registered capability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

// Ensure verifies that every given name is registered. It returns a
// capability error naming the first missing capability, allowing engine
// construction to reject blueprints that reference unknown capabilities
// before any run starts.
func (r *Registry) Ensure(names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range names {
		if _, ok := r.caps[name]; !ok {
			return errors.NewCapabilityError("blueprint references unknown capability", errors.ErrUnknownCapability).
				WithCapability(name)
		}
	}
	return nil
}
