package rquery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/leengari/recordb/internal/recordlog"
	"github.com/leengari/recordb/internal/rindex"
	"github.com/leengari/recordb/internal/rtable"
	"github.com/leengari/recordb/internal/rtomb"
	"github.com/leengari/recordb/internal/schemaidl"
)

// Row is one result row keyed by column name, including the virtual
// columns (_source, _rowid, _offset, _data) when they were selected.
type Row map[string]any

// QueryResult is the bridge's uniform return shape for both the fast
// path and the generic engine path.
type QueryResult struct {
	Columns []string
	Rows    []Row
}

// Bridge registers every table store as an embedded-engine virtual
// table, drives the cursor protocol for anything the fast path can't
// serve, and owns the fast-path caches. Each Bridge gets its own
// driver name so multiple Database instances never collide in
// database/sql's global driver registry.
type Bridge struct {
	driverName string
	db         *sql.DB

	modules map[string]*storeModule

	baseTables map[string]*rtable.Store
	baseTombs  map[string]*rtomb.Set
	baseLogs   map[string]*recordlog.Log

	queryCache  *QueryCache
	handleCache *TableHandleCache
}

// NewBridge creates an unopened bridge. The embedded connection opens
// lazily on first table registration or query.
func NewBridge() *Bridge {
	b := &Bridge{
		driverName:  "recordb-sqlite3-" + uuid.NewString(),
		modules:     make(map[string]*storeModule),
		baseTables:  make(map[string]*rtable.Store),
		baseTombs:   make(map[string]*rtomb.Set),
		baseLogs:    make(map[string]*recordlog.Log),
		queryCache:  NewQueryCache(),
		handleCache: NewTableHandleCache(),
	}
	sql.Register(b.driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) error {
			for name, mod := range b.modules {
				if err := c.CreateModule(name, mod); err != nil {
					return fmt.Errorf("rquery: registering module %q: %w", name, err)
				}
				stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING %s()`, quoteIdent(name), quoteIdent(name))
				if _, err := c.Exec(stmt, nil); err != nil {
					return fmt.Errorf("rquery: declaring virtual table %q: %w", name, err)
				}
			}
			return nil
		},
	})
	return b
}

// physicalTableName is the SQL identifier a table store is declared
// under: the bare table name for a base table, "table@source" for a
// T@S sibling.
func physicalTableName(table, sourceName string) string {
	if sourceName == "" {
		return table
	}
	return table + "@" + sourceName
}

// ensureOpen opens the single pinned connection backing this bridge.
// A bridge serves one task at a time, so the pool is capped at one
// connection; in-memory schema objects (virtual tables, views) then
// survive across calls instead of vanishing with a transient
// :memory: connection.
func (b *Bridge) ensureOpen() error {
	if b.db != nil {
		return nil
	}
	db, err := sql.Open(b.driverName, "file::memory:?cache=shared&mode=memory")
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	b.db = db
	return nil
}

// RegisterTable registers store as a virtual table. sourceName is the
// empty string for a base table, or the literal source name for a
// T@S sibling created by the router's RegisterSource.
func (b *Bridge) RegisterTable(tableName string, store *rtable.Store, tomb *rtomb.Set, log *recordlog.Log, sourceName string) error {
	physical := physicalTableName(tableName, sourceName)
	module := &storeModule{store: store, tomb: tomb, log: log, sourceName: sourceName}

	wasOpen := b.db != nil
	b.modules[physical] = module
	if sourceName == "" {
		key := strings.ToLower(tableName)
		b.baseTables[key] = store
		b.baseTombs[key] = tomb
		b.baseLogs[key] = log
	}

	b.queryCache.Invalidate()
	b.handleCache.Invalidate()

	if !wasOpen {
		// The connection hasn't opened yet; ConnectHook will install
		// every module, including this one, on first connect.
		return nil
	}
	return b.registerLiveModule(physical, module)
}

// registerLiveModule installs module on the already-open connection
// and declares its virtual table, for a table registered after the
// bridge's first query.
func (b *Bridge) registerLiveModule(physical string, module *storeModule) error {
	ctx := context.Background()
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Raw(func(driverConn any) error {
		sqliteConn, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("rquery: unexpected driver connection type %T", driverConn)
		}
		return sqliteConn.CreateModule(physical, module)
	}); err != nil {
		return err
	}

	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING %s()`, quoteIdent(physical), quoteIdent(physical))
	_, err = b.db.ExecContext(ctx, stmt)
	return err
}

// RegisterUnifiedView implements rtable.ViewRegistrar: it exposes
// tableName as the UNION ALL of its T@S sibling virtual tables. Each
// sibling already carries its own literal _source column, so the view
// itself needs no extra projection.
//
// The bare table name was already declared as the (empty, unrouted)
// base virtual table at registration time; a view can't share that
// name, so it is dropped here to free it up. The base Store stays
// alive in Go — only its SQL-visible handle goes away.
func (b *Bridge) RegisterUnifiedView(tableName string, bindings []rtable.SourceBinding) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}

	if _, err := b.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(tableName))); err != nil {
		return fmt.Errorf("rquery: dropping base virtual table %q before unifying: %w", tableName, err)
	}
	key := strings.ToLower(tableName)
	delete(b.baseTables, key)
	delete(b.baseTombs, key)
	delete(b.baseLogs, key)

	parts := make([]string, 0, len(bindings))
	for _, bd := range bindings {
		physical := physicalTableName(tableName, bd.SourceName)
		parts = append(parts, "SELECT * FROM "+quoteIdent(physical))
	}
	stmt := fmt.Sprintf(`CREATE VIEW IF NOT EXISTS %s AS %s`, quoteIdent(tableName), strings.Join(parts, " UNION ALL "))

	if _, err := b.db.Exec(stmt); err != nil {
		return err
	}
	b.queryCache.Invalidate()
	b.handleCache.Invalidate()
	return nil
}

// Query runs sql with no bound parameters.
func (b *Bridge) Query(sqlText string) (*QueryResult, error) {
	return b.QueryWithParams(sqlText, nil)
}

// QueryWithParams attempts the fast-path interception first; on any
// deviation it falls back to the embedded engine.
func (b *Bridge) QueryWithParams(sqlText string, params []rindex.Value) (*QueryResult, error) {
	if fq, ok := b.queryCache.Lookup(sqlText); ok {
		if result, handled, err := b.tryFastPath(fq, params); handled {
			return result, err
		}
	}
	return b.queryEngine(sqlText, params)
}

// tryFastPath serves fq directly against the table store, bypassing
// the embedded engine entirely. handled is false when fq's table
// isn't a plain base table (e.g. a unified view) or the requested
// equality column has no index — both fall back to the engine.
func (b *Bridge) tryFastPath(fq FastQuery, params []rindex.Value) (*QueryResult, bool, error) {
	key := strings.ToLower(fq.Table)
	store, ok := b.baseTables[key]
	if !ok {
		return nil, false, nil
	}
	tomb := b.baseTombs[key]

	def := store.Def()
	columns := columnNamesWithVirtual(def)

	if !fq.HasEquality {
		rows := make([]Row, 0, store.RecordCount())
		for _, rec := range store.Records() {
			if tomb != nil && tomb.IsDeleted(rec.Sequence) {
				continue
			}
			row, err := b.materializeRow(store, rec.Sequence, rec.Offset, "")
			if err != nil {
				return nil, true, err
			}
			rows = append(rows, row)
		}
		return &QueryResult{Columns: columns, Rows: rows}, true, nil
	}

	if _, indexed := store.Index(fq.EqualityCol); !indexed {
		return nil, false, nil
	}
	if len(params) != 1 {
		return nil, false, nil
	}

	entry, found, err := store.FindByIndex(fq.EqualityCol, params[0])
	if err != nil {
		return nil, false, nil
	}
	if !found || (tomb != nil && tomb.IsDeleted(entry.Sequence)) {
		return &QueryResult{Columns: columns}, true, nil
	}

	row, err := b.materializeRow(store, entry.Sequence, entry.DataOffset, "")
	if err != nil {
		return nil, true, err
	}
	return &QueryResult{Columns: columns, Rows: []Row{row}}, true, nil
}

func columnNamesWithVirtual(def schemaidl.TableDef) []string {
	names := make([]string, 0, len(def.Columns)+4)
	for _, col := range def.Columns {
		names = append(names, col.Name)
	}
	return append(names, "_source", "_rowid", "_offset", "_data")
}

// materializeRow builds one Row for sequence/offset, preferring the
// batch extractor, else falling back to the field extractor per
// column, then filling the four virtual columns.
func (b *Bridge) materializeRow(store *rtable.Store, sequence, offset uint64, sourceName string) (Row, error) {
	log := b.baseLogs[strings.ToLower(store.Def().Name)]
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

	row["_source"] = sourceName
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

func argsFromValues(params []rindex.Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = valueToAny(p)
	}
	return args
}

// queryEngine hands sqlText to the embedded SQL engine for full
// parsing, planning, and execution via the registered virtual tables,
// with no statement caching — used for one-off queries.
func (b *Bridge) queryEngine(sqlText string, params []rindex.Value) (*QueryResult, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	rows, err := b.db.Query(sqlText, argsFromValues(params)...)
	if err != nil {
		return nil, fmt.Errorf("rquery: engine query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// PrepareEngine compiles sqlText once against the embedded engine.
// Callers (the facade's bounded statement cache) own the returned
// *sql.Stmt's lifetime and must Close it on eviction.
func (b *Bridge) PrepareEngine(sqlText string) (*sql.Stmt, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	return b.db.Prepare(sqlText)
}

// ExecPrepared runs an already-compiled statement with params bound in
// order.
func (b *Bridge) ExecPrepared(stmt *sql.Stmt, params []rindex.Value) (*QueryResult, error) {
	rows, err := stmt.Query(argsFromValues(params)...)
	if err != nil {
		return nil, fmt.Errorf("rquery: prepared statement exec failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		scanPtrs := make([]any, len(cols))
		for i := range scanTargets {
			scanPtrs[i] = &scanTargets[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, name := range cols {
			row[name] = scanTargets[i]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// FastPath attempts the cached fast-path parse and, if sqlText
// matched one of the two intercepted shapes last time it was seen,
// tries to serve it directly against the table store. handled is
// false whenever the caller should fall back to the embedded engine.
func (b *Bridge) FastPath(sqlText string, params []rindex.Value) (result *QueryResult, handled bool, err error) {
	fq, ok := b.queryCache.Lookup(sqlText)
	if !ok {
		return nil, false, nil
	}
	return b.tryFastPath(fq, params)
}

// Close releases the embedded connection pool, if one was opened.
func (b *Bridge) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
