// Package recordb wires the record log, per-table stores, the
// multi-source router, tombstone sets, and the query bridge into one
// database instance.
package recordb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/leengari/recordb/internal/durability"
	"github.com/leengari/recordb/internal/ingestsession"
	"github.com/leengari/recordb/internal/metrics"
	"github.com/leengari/recordb/internal/mmapexport"
	"github.com/leengari/recordb/internal/observability"
	"github.com/leengari/recordb/internal/recordlog"
	"github.com/leengari/recordb/internal/rindex"
	"github.com/leengari/recordb/internal/rquery"
	"github.com/leengari/recordb/internal/rtable"
	"github.com/leengari/recordb/internal/rtomb"
	"github.com/leengari/recordb/internal/schemaidl"
	"github.com/leengari/recordb/internal/tracing"
)

// Row and QueryResult are the bridge's result shape, re-exported so
// callers never import internal/rquery directly.
type Row = rquery.Row
type QueryResult = rquery.QueryResult

// defaultPreparedStmtLimit bounds the prepared-statement cache when a
// caller doesn't override it via WithStatementCacheSize; the cache
// evicts by clearing entirely once full rather than tracking per-entry
// recency.
const defaultPreparedStmtLimit = 100

// Database is a schema bound to one record log, one Table Store per
// table, and one Query Bridge. It is owned by one task at a time; the
// mutex below only protects the statement cache against reentrant use
// within that task, not against concurrent callers from other tasks.
type Database struct {
	mu sync.Mutex

	schema schemaidl.DatabaseSchema
	log    *recordlog.Log
	router *rtable.Router
	bridge *rquery.Bridge

	tombs map[string]*rtomb.Set // physical table name (lowercased) -> tombstone set

	stmtCache      map[string]*sql.Stmt
	stmtCacheLimit int

	observers *observability.Dispatcher

	durabilityPath string
	durability     *durability.Log

	metrics        *metrics.Collector
	ingestCounters tracing.IngestCounters
}

// Option configures a Database at construction time.
type Option func(*Database)

// WithObserver registers o to receive every lifecycle event the
// database fires.
func WithObserver(o observability.Observer) Option {
	return func(db *Database) { db.observers.Register(o) }
}

// WithLogOptions forwards options to the record log constructor, e.g.
// WithInitialCapacity.
func WithLogOptions(opts ...recordlog.Option) Option {
	return func(db *Database) { db.log = recordlog.New(opts...) }
}

// WithDurabilityLog backs the record log with a durability.Log at
// path: every Ingest/IngestOne/IngestWithSource/IngestOneWithSource
// call durably appends its consumed bytes there, and NewDatabase
// replays any existing log at path before returning. Without this
// option the record log lives in memory only.
func WithDurabilityLog(path string) Option {
	return func(db *Database) { db.durabilityPath = path }
}

// WithMetrics registers a Prometheus collector that observes every
// lifecycle event the database fires. The collector is returned by
// Database.Metrics so the caller can register it with their own
// prometheus.Registry.
func WithMetrics() Option {
	return func(db *Database) {
		db.metrics = metrics.New()
		db.observers.Register(db.metrics)
	}
}

// WithStatementCacheSize overrides defaultPreparedStmtLimit.
func WithStatementCacheSize(n int) Option {
	return func(db *Database) { db.stmtCacheLimit = n }
}

// Metrics returns the Prometheus collector registered via WithMetrics,
// or nil if that option was not used.
func (db *Database) Metrics() *metrics.Collector {
	return db.metrics
}

// NewDatabase creates a database for schema, with one Table Store and
// one tombstone set per table already registered with the query
// bridge as a base table.
func NewDatabase(schema schemaidl.DatabaseSchema, opts ...Option) (*Database, error) {
	db := &Database{
		schema:         schema,
		log:            recordlog.New(),
		router:         rtable.NewRouter(),
		bridge:         rquery.NewBridge(),
		tombs:          make(map[string]*rtomb.Set),
		stmtCache:      make(map[string]*sql.Stmt),
		stmtCacheLimit: defaultPreparedStmtLimit,
		observers:      observability.NewDispatcher(),
		ingestCounters: tracing.NewIngestCounters(),
	}
	for _, opt := range opts {
		opt(db)
	}

	for _, def := range schema.Tables {
		store := rtable.NewStore(def, db.log)
		if err := db.router.AddTable(store); err != nil {
			return nil, err
		}
		tomb := rtomb.New()
		db.tombs[strings.ToLower(def.Name)] = tomb
		if err := db.bridge.RegisterTable(def.Name, store, tomb, db.log, ""); err != nil {
			return nil, err
		}
	}

	if db.durabilityPath != "" {
		if err := durability.Recover(db.durabilityPath, func(batch []byte) error {
			_, _, err := db.log.Ingest(batch, db.router.RouteSingleSource)
			return err
		}); err != nil {
			return nil, fmt.Errorf("recordb: replaying durability log %q: %w", db.durabilityPath, err)
		}
		dlog, err := durability.Open(db.durabilityPath)
		if err != nil {
			return nil, fmt.Errorf("recordb: opening durability log %q: %w", db.durabilityPath, err)
		}
		db.durability = dlog
	}
	return db, nil
}

// RegisterFileID binds the file identifier frames for tableName carry.
// Must be called before RegisterSource for that table to route into
// any later-registered source, per the router's timing contract.
func (db *Database) RegisterFileID(fileID recordlog.FileID, tableName string) error {
	return db.router.RegisterFileID(tableName, fileID)
}

// ConfigureExtractors wires field/fast-field/batch extractors for
// tableName. Required before indexed queries or generic column reads
// against that table will return anything; ingest silently no-ops
// without one.
func (db *Database) ConfigureExtractors(tableName string, field rtable.FieldExtractor, fast rtable.FastFieldExtractor, batch rtable.BatchExtractor) error {
	store, ok := db.router.Table(tableName)
	if !ok {
		return &UnknownTableError{Table: tableName}
	}
	store.SetExtractors(field, fast, batch)
	return nil
}

// ConfigureDecryptor wires the field decryptor used to reverse every
// encrypted column on tableName during materialization. Tables with
// no EncryptedFieldID-bearing columns never call it; tables that have
// one but no decryptor configured return the still-encrypted value
// extracted from the body, since the cryptographic primitive itself is
// an external collaborator this package never implements.
func (db *Database) ConfigureDecryptor(tableName string, decrypt rtable.FieldDecryptor) error {
	store, ok := db.router.Table(tableName)
	if !ok {
		return &UnknownTableError{Table: tableName}
	}
	store.SetDecryptor(decrypt)
	return nil
}

// Ingest parses as many complete frames as fit from data, routing
// each to its single-source destination by file identifier. Unmapped
// identifiers are dropped, not failed.
func (db *Database) Ingest(data []byte) (consumed int, records int, err error) {
	ctx, span := tracing.StartIngest(context.Background(), len(data), "")
	defer span.End()

	db.observers.Notify(observability.Event{Type: observability.EventIngestStart, Data: len(data)})
	consumed, records, err = db.log.Ingest(data, db.router.RouteSingleSource)
	db.observers.Notify(observability.Event{Type: observability.EventIngestEnd, Data: records})
	if err == nil && consumed > 0 {
		db.ingestCounters.Add(ctx, records, consumed)
		err = db.appendDurable(data[:consumed])
	}
	return consumed, records, err
}

// IngestOne requires framed to hold exactly one complete frame.
func (db *Database) IngestOne(framed []byte) (uint64, error) {
	seq, err := db.log.IngestOne(framed, db.router.RouteSingleSource)
	if err != nil {
		return 0, err
	}
	if err := db.appendDurable(framed); err != nil {
		return seq, err
	}
	return seq, nil
}

// IngestWithSource is Ingest routed through sourceName's T@S siblings
// instead of the single-source map.
func (db *Database) IngestWithSource(data []byte, sourceName string) (consumed int, records int, err error) {
	ctx, span := tracing.StartIngest(context.Background(), len(data), sourceName)
	defer span.End()

	db.observers.Notify(observability.Event{Type: observability.EventIngestStart, Data: sourceName})
	onRecord := func(fileID recordlog.FileID, body []byte, sequence, offset uint64) {
		db.router.RouteSource(sourceName, fileID, body, sequence, offset)
	}
	consumed, records, err = db.log.Ingest(data, onRecord)
	db.observers.Notify(observability.Event{Type: observability.EventIngestEnd, Data: records})
	if err == nil && consumed > 0 {
		db.ingestCounters.Add(ctx, records, consumed)
		err = db.appendDurable(data[:consumed])
	}
	return consumed, records, err
}

// IngestOneWithSource is IngestOne routed through sourceName.
func (db *Database) IngestOneWithSource(framed []byte, sourceName string) (uint64, error) {
	onRecord := func(fileID recordlog.FileID, body []byte, sequence, offset uint64) {
		db.router.RouteSource(sourceName, fileID, body, sequence, offset)
	}
	seq, err := db.log.IngestOne(framed, onRecord)
	if err != nil {
		return 0, err
	}
	if err := db.appendDurable(framed); err != nil {
		return seq, err
	}
	return seq, nil
}

// IngestInSession is Ingest, additionally attributing its outcome to
// session for later correlation via session.Close().
func (db *Database) IngestInSession(session *ingestsession.Session, data []byte) (consumed int, records int, err error) {
	consumed, records, err = db.Ingest(data)
	if err == nil {
		session.RecordBatch("", records)
	}
	return consumed, records, err
}

// IngestWithSourceInSession is IngestWithSource, additionally
// attributing its outcome to session.
func (db *Database) IngestWithSourceInSession(session *ingestsession.Session, data []byte, sourceName string) (consumed int, records int, err error) {
	consumed, records, err = db.IngestWithSource(data, sourceName)
	if err == nil {
		session.RecordBatch(sourceName, records)
	}
	return consumed, records, err
}

// appendDurable is a no-op unless WithDurabilityLog was used to open
// a durability.Log for this instance.
func (db *Database) appendDurable(batch []byte) error {
	if db.durability == nil {
		return nil
	}
	return db.durability.Append(batch)
}

// LoadAndRebuild restores log contents from a previously exported
// blob. It is meant for a freshly constructed Database with the same
// schema and file-id mappings as the instance that produced the
// export; it does not reset any Table Store or tombstone set that
// already holds data from prior ingests on this instance.
func (db *Database) LoadAndRebuild(data []byte) error {
	return db.log.LoadAndRebuild(data, db.router.RouteSingleSource)
}

// RegisterSource creates a T@source sibling of every base table,
// snapshotting each base table's current file identifier and
// extractors, and registers those siblings with the query bridge.
func (db *Database) RegisterSource(sourceName string) error {
	if err := db.router.RegisterSource(sourceName); err != nil {
		return err
	}
	for _, tableName := range db.router.Tables() {
		sibling, ok := db.router.SourceTable(sourceName, tableName)
		if !ok {
			continue
		}
		tomb := rtomb.New()
		db.tombs[physicalKey(tableName, sourceName)] = tomb
		if err := db.bridge.RegisterTable(tableName, sibling, tomb, db.log, sourceName); err != nil {
			return err
		}
	}
	return nil
}

// CreateUnifiedViews exposes every base table with at least one
// registered source as the UNION ALL of its T@S siblings.
func (db *Database) CreateUnifiedViews() error {
	return db.router.CreateUnifiedViews(db.bridge)
}

// Query runs sqlText with no bound parameters.
func (db *Database) Query(sqlText string) (*QueryResult, error) {
	return db.QueryWithParams(sqlText, nil)
}

// QueryWithParams binds params in declared order. It tries the fast
// path first; on a miss it falls back to a cached prepared statement
// against the embedded engine.
func (db *Database) QueryWithParams(sqlText string, params []rindex.Value) (*QueryResult, error) {
	_, span := tracing.StartQuery(context.Background(), sqlText)
	defer span.End()

	db.observers.Notify(observability.Event{Type: observability.EventQueryStart, Data: sqlText})

	result, handled, err := db.bridge.FastPath(sqlText, params)
	if handled {
		db.observers.Notify(observability.Event{Type: observability.EventFastPathHit, Data: sqlText})
		db.observers.Notify(observability.Event{Type: observability.EventQueryEnd, Data: sqlText})
		if err != nil {
			return nil, &QueryExecError{SQL: sqlText, Err: err}
		}
		return result, nil
	}
	db.observers.Notify(observability.Event{Type: observability.EventFastPathMiss, Data: sqlText})

	stmt, err := db.preparedStmt(sqlText)
	if err != nil {
		return nil, &QueryParseError{SQL: sqlText, Err: err}
	}
	result, err = db.bridge.ExecPrepared(stmt, params)
	db.observers.Notify(observability.Event{Type: observability.EventQueryEnd, Data: sqlText})
	if err != nil {
		return nil, &QueryExecError{SQL: sqlText, Err: err}
	}
	return result, nil
}

// QueryInt64 is the bound-parameter fast path for the single most
// common case: one int64 parameter.
func (db *Database) QueryInt64(sqlText string, v int64) (*QueryResult, error) {
	return db.QueryWithParams(sqlText, []rindex.Value{rindex.Int64(v)})
}

// QueryCount returns the row count sqlText with params bound would
// produce, without the caller materializing the rows itself.
func (db *Database) QueryCount(sqlText string, params []rindex.Value) (int, error) {
	result, err := db.QueryWithParams(sqlText, params)
	if err != nil {
		return 0, err
	}
	return len(result.Rows), nil
}

// preparedStmt returns a cached *sql.Stmt for sqlText, preparing and
// caching a new one on a miss. The cache evicts by clearing entirely
// once it reaches stmtCacheLimit entries.
func (db *Database) preparedStmt(sqlText string) (*sql.Stmt, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if stmt, ok := db.stmtCache[sqlText]; ok {
		return stmt, nil
	}
	if len(db.stmtCache) >= db.stmtCacheLimit {
		for _, stmt := range db.stmtCache {
			_ = stmt.Close()
		}
		db.stmtCache = make(map[string]*sql.Stmt)
	}
	stmt, err := db.bridge.PrepareEngine(sqlText)
	if err != nil {
		return nil, err
	}
	db.stmtCache[sqlText] = stmt
	return stmt, nil
}

// FindByIndex returns the materialized row for an equality lookup on
// an indexed column, or a RecordNotFoundError if no live entry
// matches.
func (db *Database) FindByIndex(table, column string, value rindex.Value) (Row, error) {
	row, found, err := db.FindOneByIndex(table, column, value)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &RecordNotFoundError{Table: table, Column: column}
	}
	return row, nil
}

// FindOneByIndex is FindByIndex's boolean-ok variant: found is false,
// with no error, when the key is absent or tombstoned.
func (db *Database) FindOneByIndex(table, column string, value rindex.Value) (row Row, found bool, err error) {
	store, ok := db.router.Table(table)
	if !ok {
		return nil, false, &UnknownTableError{Table: table}
	}
	entry, found, err := store.FindByIndex(column, value)
	if err != nil || !found {
		return nil, false, err
	}
	if tomb, ok := db.tombs[strings.ToLower(table)]; ok && tomb.IsDeleted(entry.Sequence) {
		return nil, false, nil
	}
	row, err = materializeRow(store, db.log, entry.Sequence, entry.DataOffset)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// FindRawByIndex returns the raw record body for an equality lookup,
// with zero copy: the returned slice aliases the record log and is
// valid only until the next mutating call on it.
func (db *Database) FindRawByIndex(table, column string, value rindex.Value) (body []byte, sequence uint64, err error) {
	store, ok := db.router.Table(table)
	if !ok {
		return nil, 0, &UnknownTableError{Table: table}
	}
	entry, found, err := store.FindByIndex(column, value)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, &RecordNotFoundError{Table: table, Column: column}
	}
	if tomb, ok := db.tombs[strings.ToLower(table)]; ok && tomb.IsDeleted(entry.Sequence) {
		return nil, 0, &RecordNotFoundError{Table: table, Column: column}
	}
	body, err = db.log.DataAt(entry.DataOffset)
	if err != nil {
		return nil, 0, err
	}
	return body, entry.Sequence, nil
}

// MarkDeleted tombstones sequence on table, hiding it from future
// query results without touching the log or its index entries.
func (db *Database) MarkDeleted(table string, sequence uint64) error {
	tomb, ok := db.tombs[strings.ToLower(table)]
	if !ok {
		return &UnknownTableError{Table: table}
	}
	tomb.MarkDeleted(sequence)
	db.observers.Notify(observability.Event{Type: observability.EventTombstoneMark, Table: table, Data: sequence})
	return nil
}

// DeletedCount returns the number of tombstoned sequences on table.
func (db *Database) DeletedCount(table string) (int, error) {
	tomb, ok := db.tombs[strings.ToLower(table)]
	if !ok {
		return 0, &UnknownTableError{Table: table}
	}
	return tomb.DeletedCount(), nil
}

// ClearTombstones un-hides every tombstoned row on table.
func (db *Database) ClearTombstones(table string) error {
	tomb, ok := db.tombs[strings.ToLower(table)]
	if !ok {
		return &UnknownTableError{Table: table}
	}
	tomb.ClearTombstones()
	return nil
}

// Export copies the live prefix of the record log.
func (db *Database) Export() []byte {
	return db.log.Export()
}

// ExportCompressed is Export with a zstd pass over the result.
func (db *Database) ExportCompressed() ([]byte, error) {
	return db.log.ExportCompressed()
}

// ExportToFile writes Export's result to path through an mmap'd file.
// It still builds the full in-memory copy Export returns before
// writing it out, so the export is held twice (once in the log, once
// in that copy) while it runs. unix-only; see internal/mmapexport.
func (db *Database) ExportToFile(path string) error {
	return mmapexport.WriteFile(path, db.Export())
}

// LoadAndRebuildFromFile is LoadAndRebuild reading its input through
// an mmap'd file rather than a caller-supplied []byte. unix-only.
func (db *Database) LoadAndRebuildFromFile(path string) error {
	data, err := mmapexport.ReadFile(path)
	if err != nil {
		return err
	}
	return db.LoadAndRebuild(data)
}

// Close releases the embedded query engine's connection pool and
// every cached prepared statement.
func (db *Database) Close() error {
	db.mu.Lock()
	for _, stmt := range db.stmtCache {
		_ = stmt.Close()
	}
	db.stmtCache = make(map[string]*sql.Stmt)
	db.mu.Unlock()
	if db.durability != nil {
		if err := db.durability.Close(); err != nil {
			return err
		}
	}
	return db.bridge.Close()
}

func physicalKey(table, sourceName string) string {
	return strings.ToLower(table) + "@" + sourceName
}

// materializeRow builds a Row for one record the same way the query
// bridge's fast path does, using whichever extractor store has
// configured, except that a store with neither a batch nor a field
// extractor yields NoExtractorError here, where the fast path leaves
// the columns NULL.
func materializeRow(store *rtable.Store, log *recordlog.Log, sequence, offset uint64) (Row, error) {
	body, err := log.DataAt(offset)
	if err != nil {
		return nil, err
	}

	def := store.Def()
	row := make(Row, len(def.Columns)+4)
	values := make([]rindex.Value, len(def.Columns))

	if batch := store.BatchExtractor(); batch != nil {
		batch(body, values)
	} else if extractor := store.FieldExtractor(); extractor != nil {
		for i, col := range def.Columns {
			values[i] = extractor(body, col.Name)
		}
	} else {
		return nil, &NoExtractorError{Table: def.Name}
	}

	if store.HasEncryptedColumns() {
		if decrypt := store.Decryptor(); decrypt != nil {
			for i, col := range def.Columns {
				if col.Encrypted() {
					values[i] = decrypt(*col.EncryptedFieldID, values[i])
				}
			}
		}
	}
	for i, col := range def.Columns {
		row[col.Name] = valueToAny(values[i])
	}

	row["_source"] = store.SourceName()
	row["_rowid"] = int64(sequence)
	row["_offset"] = int64(offset)
	row["_data"] = body
	return row, nil
}

func valueToAny(v rindex.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case rindex.KindFloat32, rindex.KindFloat64:
		return v.Float()
	case rindex.KindString:
		return v.Str()
	case rindex.KindBytes:
		return v.Raw()
	case rindex.KindUint8, rindex.KindUint16, rindex.KindUint32, rindex.KindUint64:
		return v.Uint()
	default:
		return v.Int()
	}
}
