// Package registry lets a process hold multiple named *recordb.Database
// instances behind one thread-safe lookup, the way a single recordb CLI
// process might serve several schemas at once. It implies nothing about
// cross-instance transactional isolation — each Database remains its
// own single-task-owned world.
package registry

import (
	"fmt"
	"sync"

	"github.com/leengari/recordb"
)

// OpenFunc constructs a fresh Database for a name not yet in the
// registry, e.g. by reading name's schema file and wiring extractors.
type OpenFunc func(name string) (*recordb.Database, error)

// Registry is a thread-safe map from name to an already-open Database,
// opening lazily on first Get via the configured OpenFunc.
type Registry struct {
	mu     sync.RWMutex
	open   OpenFunc
	loaded map[string]*recordb.Database
}

// New creates a registry that calls open to construct a Database the
// first time a given name is requested.
func New(open OpenFunc) *Registry {
	return &Registry{open: open, loaded: make(map[string]*recordb.Database)}
}

// Get returns the Database registered under name, opening it via the
// configured OpenFunc on first use.
func (r *Registry) Get(name string) (*recordb.Database, error) {
	r.mu.RLock()
	if db, ok := r.loaded[name]; ok {
		r.mu.RUnlock()
		return db, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.loaded[name]; ok {
		return db, nil
	}
	db, err := r.open(name)
	if err != nil {
		return nil, fmt.Errorf("registry: opening %q: %w", name, err)
	}
	r.loaded[name] = db
	return db, nil
}

// Names returns every currently-loaded database name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	return names
}

// Close closes every loaded Database and clears the registry, returning
// the first error encountered (if any) after attempting every close.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for name, db := range r.loaded {
		if err := db.Close(); err != nil && first == nil {
			first = fmt.Errorf("registry: closing %q: %w", name, err)
		}
	}
	r.loaded = make(map[string]*recordb.Database)
	return first
}
