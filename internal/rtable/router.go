package rtable

import (
	"sync"

	"github.com/leengari/recordb/internal/recordlog"
)

// SourceBinding pairs a registered source name with the physical
// Store that holds that source's records for one table.
type SourceBinding struct {
	SourceName string
	Store      *Store
}

// ViewRegistrar is how the Router asks a query bridge to expose a
// unified, UNION-ALL view over a table's per-source siblings. rtable
// has no dependency on the query layer; the bridge implements this.
type ViewRegistrar interface {
	RegisterUnifiedView(tableName string, bindings []SourceBinding) error
}

// Router maps incoming frames to the Store that should index them.
// In single-source mode that's a plain file-identifier lookup; once
// any source has been registered, every table additionally gets one
// physical sibling per source, keyed by (source name, file
// identifier).
type Router struct {
	mu sync.RWMutex

	baseStores map[string]*Store // table name -> base Store

	bySingleFileID map[recordlog.FileID]*Store

	sourceOrder  []string
	sourceStores map[string]map[string]*Store          // source -> table name -> Store
	bySourceFile map[string]map[recordlog.FileID]*Store // source -> file id -> Store
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		baseStores:     make(map[string]*Store),
		bySingleFileID: make(map[recordlog.FileID]*Store),
		sourceStores:   make(map[string]map[string]*Store),
		bySourceFile:   make(map[string]map[recordlog.FileID]*Store),
	}
}

// AddTable registers a base table's Store under its name. The
// store's file identifier, if any, must already be set for
// single-source ingest to route to it; RegisterFileID can also set
// it afterward.
func (r *Router) AddTable(store *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := store.Def().Name
	if _, exists := r.baseStores[name]; exists {
		return &SchemaConflictError{Reason: "table \"" + name + "\" already registered"}
	}
	r.baseStores[name] = store
	if store.FileID() != (recordlog.FileID{}) {
		r.bySingleFileID[store.FileID()] = store
	}
	return nil
}

// RegisterFileID (re)binds a base table's file identifier, updating
// the single-source routing table. Call this before RegisterSource
// if the Store wasn't constructed with its file identifier set.
func (r *Router) RegisterFileID(tableName string, fileID recordlog.FileID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.baseStores[tableName]
	if !ok {
		return &UnknownTableError{Table: tableName}
	}
	store.SetFileID(fileID)
	r.bySingleFileID[fileID] = store
	return nil
}

// Table returns the base Store for name.
func (r *Router) Table(name string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.baseStores[name]
	return s, ok
}

// Tables returns every registered base table name.
func (r *Router) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.baseStores))
	for name := range r.baseStores {
		out = append(out, name)
	}
	return out
}

// RegisterSource creates one T@source sibling Store per existing
// base table, snapshotting each base table's current file
// identifier and extractors. A base table whose file identifier or
// extractors are set AFTER this call gets no routing and no indexes
// for this source — the base table's setup must precede
// RegisterSource.
func (r *Router) RegisterSource(sourceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sourceStores[sourceName]; exists {
		return &SchemaConflictError{Reason: "source \"" + sourceName + "\" already registered"}
	}

	tables := make(map[string]*Store, len(r.baseStores))
	byFile := make(map[recordlog.FileID]*Store, len(r.baseStores))
	for name, base := range r.baseStores {
		sibling := base.cloneForSource(sourceName)
		tables[name] = sibling
		if fid := sibling.FileID(); fid != (recordlog.FileID{}) {
			byFile[fid] = sibling
		}
	}

	r.sourceOrder = append(r.sourceOrder, sourceName)
	r.sourceStores[sourceName] = tables
	r.bySourceFile[sourceName] = byFile
	return nil
}

// Sources returns every registered source name, in registration
// order.
func (r *Router) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.sourceOrder))
	copy(out, r.sourceOrder)
	return out
}

// SourceTable returns the T@source sibling Store for tableName.
func (r *Router) SourceTable(sourceName, tableName string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables, ok := r.sourceStores[sourceName]
	if !ok {
		return nil, false
	}
	s, ok := tables[tableName]
	return s, ok
}

// RouteSingleSource dispatches a record ingested with no source
// context to the Store registered for fileID, if any. Unmapped
// frames are a silent no-op at the routing layer — the Record Log
// has already durably stored the frame regardless.
func (r *Router) RouteSingleSource(fileID recordlog.FileID, body []byte, sequence, offset uint64) {
	r.mu.RLock()
	store, ok := r.bySingleFileID[fileID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	store.OnIngest(body, sequence, offset)
}

// RouteSource dispatches a record ingested under sourceName to that
// source's (fileID) sibling Store, if one exists.
func (r *Router) RouteSource(sourceName string, fileID recordlog.FileID, body []byte, sequence, offset uint64) {
	r.mu.RLock()
	byFile, ok := r.bySourceFile[sourceName]
	if !ok {
		r.mu.RUnlock()
		return
	}
	store, ok := byFile[fileID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	store.OnIngest(body, sequence, offset)
}

// CreateUnifiedViews asks reg to expose one UNION-ALL view per base
// table that has at least one source sibling. Tables with no
// registered sources are left as-is.
func (r *Router) CreateUnifiedViews(reg ViewRegistrar) error {
	r.mu.RLock()
	tableNames := make([]string, 0, len(r.baseStores))
	for name := range r.baseStores {
		tableNames = append(tableNames, name)
	}
	sources := make([]string, len(r.sourceOrder))
	copy(sources, r.sourceOrder)
	sourceStores := r.sourceStores
	r.mu.RUnlock()

	for _, tableName := range tableNames {
		var bindings []SourceBinding
		for _, sourceName := range sources {
			if store, ok := sourceStores[sourceName][tableName]; ok {
				bindings = append(bindings, SourceBinding{SourceName: sourceName, Store: store})
			}
		}
		if len(bindings) == 0 {
			continue
		}
		if err := reg.RegisterUnifiedView(tableName, bindings); err != nil {
			return err
		}
	}
	return nil
}
