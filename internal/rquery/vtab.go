package rquery

import (
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/leengari/recordb/internal/recordlog"
	"github.com/leengari/recordb/internal/rindex"
	"github.com/leengari/recordb/internal/rtable"
	"github.com/leengari/recordb/internal/rtomb"
	"github.com/leengari/recordb/internal/schemaidl"
)

// sqliteResultSink adapts a *sqlite3.SQLiteContext to rtable.ResultSink
// so column extractors never need to know which embedded engine they
// are feeding.
type sqliteResultSink struct {
	ctx *sqlite3.SQLiteContext
}

func (s sqliteResultSink) SetNull()             { s.ctx.ResultNull() }
func (s sqliteResultSink) SetInt64(v int64)     { s.ctx.ResultInt64(v) }
func (s sqliteResultSink) SetFloat64(v float64) { s.ctx.ResultDouble(v) }
func (s sqliteResultSink) SetText(v string)     { s.ctx.ResultText(v) }
func (s sqliteResultSink) SetBlob(v []byte)     { s.ctx.ResultBlob(v) }

// storeModule is one github.com/mattn/go-sqlite3 virtual-table module
// bound to a single rtable.Store. One module is registered per base
// table and per T@source sibling.
type storeModule struct {
	store      *rtable.Store
	tomb       *rtomb.Set
	log        *recordlog.Log
	sourceName string
}

func (m *storeModule) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c)
}

func (m *storeModule) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c)
}

func (m *storeModule) DestroyModule() {}

func (m *storeModule) connect(c *sqlite3.SQLiteConn) (sqlite3.VTab, error) {
	if err := c.DeclareVTab(m.declareSQL()); err != nil {
		return nil, err
	}
	return &storeVTab{module: m}, nil
}

// declareSQL builds the CREATE TABLE fragment the engine parses to
// learn the virtual relation's shape: TableDef columns in order,
// followed by the four virtual columns every table exposes.
func (m *storeModule) declareSQL() string {
	def := m.store.Def()
	var b strings.Builder
	b.WriteString("CREATE TABLE x(")
	for i, col := range def.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", quoteIdent(col.Name), sqlTypeFor(col.Type))
	}
	if len(def.Columns) > 0 {
		b.WriteString(", ")
	}
	b.WriteString("_source TEXT, _rowid INTEGER, _offset INTEGER, _data BLOB)")
	return b.String()
}

func sqlTypeFor(t schemaidl.ValueType) string {
	switch t {
	case schemaidl.TypeFloat32, schemaidl.TypeFloat64:
		return "REAL"
	case schemaidl.TypeString:
		return "TEXT"
	case schemaidl.TypeBytes:
		return "BLOB"
	default:
		return "INTEGER"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// storeVTab is the per-connection virtual table handle.
type storeVTab struct {
	module *storeModule
}

// BestIndex delegates to the planner, translating between SQLite's
// constraint array and the planner's own Constraint type. The order-by
// terms are ignored: AlreadyOrdered stays false, so the engine sorts.
func (v *storeVTab) BestIndex(cst []sqlite3.InfoConstraint, ob []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	def := v.module.store.Def()
	nReal := len(def.Columns)

	constraints := make([]Constraint, len(cst))
	for i, ic := range cst {
		constraints[i] = constraintFromSQLite(ic, def, nReal, v.module.store)
	}

	plan := BestIndex(constraints, int64(v.module.store.RecordCount()))

	used := make([]bool, len(cst))
	if plan.ConstraintIndex >= 0 && plan.ConstraintIndex < len(used) {
		used[plan.ConstraintIndex] = true
	}
	if plan.RangeLowerIndex >= 0 && plan.RangeLowerIndex < len(used) {
		used[plan.RangeLowerIndex] = true
	}
	if plan.RangeUpperIndex >= 0 && plan.RangeUpperIndex < len(used) {
		used[plan.RangeUpperIndex] = true
	}
	// The _source constraint is left unused so Filter's vals hold only
	// the equality or range values it reads by position; the engine
	// checks _source itself.

	idxStr := ""
	switch {
	case plan.ConstraintIndex >= 0:
		idxStr = constraintColumnName(cst[plan.ConstraintIndex], def, nReal)
	case plan.RangeLowerIndex >= 0 && plan.RangeUpperIndex >= 0:
		// go-sqlite3 delivers Filter's vals in ascending original
		// constraint-index order, not the order Used bits were set in,
		// so encode which of the two used slots is the lower bound.
		idxStr = encodeRangeIdxStr(constraintColumnName(cst[plan.RangeLowerIndex], def, nReal), plan.RangeLowerIndex, plan.RangeUpperIndex)
	}

	return &sqlite3.IndexResult{
		Used:           used,
		IdxNum:         int(plan.ScanType),
		IdxStr:         idxStr,
		AlreadyOrdered: false,
		EstimatedCost:  plan.Cost,
		EstimatedRows:  float64(plan.Rows),
	}, nil
}

func constraintFromSQLite(ic sqlite3.InfoConstraint, def schemaidl.TableDef, nReal int, store *rtable.Store) Constraint {
	ref := ColumnRef{}
	switch {
	case int(ic.Column) < 0:
		ref.IsRowid = true
	case int(ic.Column) == nReal:
		ref.IsSource = true
	case int(ic.Column) < nReal:
		ref.Column = def.Columns[ic.Column].Name
	}

	c := Constraint{Ref: ref, Op: opFromSQLite(ic.Op), Usable: ic.Usable}
	if ref.Column != "" {
		if col, ok := def.Column(ref.Column); ok {
			c.PrimaryKey = col.PrimaryKey
		}
		_, c.Indexed = store.Index(ref.Column)
	}
	return c
}

// encodeRangeIdxStr packs the range column name with a marker for
// which of the two used constraints (by ascending original index)
// supplies the lower bound, so Filter can tell vals[0] from vals[1]
// apart without relying on op-specific replay.
func encodeRangeIdxStr(column string, lowerIdx, upperIdx int) string {
	if lowerIdx < upperIdx {
		return column + "|LU"
	}
	return column + "|UL"
}

func constraintColumnName(ic sqlite3.InfoConstraint, def schemaidl.TableDef, nReal int) string {
	if int(ic.Column) >= 0 && int(ic.Column) < nReal {
		return def.Columns[ic.Column].Name
	}
	return ""
}

func opFromSQLite(op sqlite3.Op) ConstraintOp {
	switch op {
	case sqlite3.OpEQ:
		return OpEqual
	case sqlite3.OpLT:
		return OpLess
	case sqlite3.OpLE:
		return OpLessEqual
	case sqlite3.OpGT:
		return OpGreater
	case sqlite3.OpGE:
		return OpGreaterEqual
	default:
		return OpEqual
	}
}

func (v *storeVTab) Open() (sqlite3.VTabCursor, error) {
	return &storeVTabCursor{
		cursor: NewCursor(v.module.store, v.module.tomb, v.module.log, v.module.sourceName),
	}, nil
}

func (v *storeVTab) Disconnect() error { return nil }
func (v *storeVTab) Destroy() error    { return nil }

// storeVTabCursor adapts Cursor to sqlite3.VTabCursor.
type storeVTabCursor struct {
	cursor *Cursor
}

func (c *storeVTabCursor) Filter(idxNum int, idxStr string, vals []interface{}) error {
	scanType := ScanType(idxNum)
	args := FilterArgs{Column: idxStr}

	switch scanType {
	case RowidLookup:
		if len(vals) > 0 {
			args.RowidSequence = uint64(toInt64(vals[0]))
		}
	case IndexEquality, IndexSingleLookup:
		if len(vals) > 0 {
			args.Equality = valueFromSQLiteParam(vals[0])
		}
	case IndexRange:
		column, order := decodeRangeIdxStr(idxStr)
		args.Column = column
		if len(vals) >= 2 {
			if order == "LU" {
				args.RangeMin = valueFromSQLiteParam(vals[0])
				args.RangeMax = valueFromSQLiteParam(vals[1])
			} else {
				args.RangeMin = valueFromSQLiteParam(vals[1])
				args.RangeMax = valueFromSQLiteParam(vals[0])
			}
		}
	}

	return c.cursor.Filter(scanType, args)
}

func decodeRangeIdxStr(idxStr string) (column, order string) {
	i := strings.LastIndex(idxStr, "|")
	if i < 0 {
		return idxStr, "LU"
	}
	return idxStr[:i], idxStr[i+1:]
}

func (c *storeVTabCursor) Next() error { return c.cursor.Next() }
func (c *storeVTabCursor) EOF() bool   { return c.cursor.EOF() }

func (c *storeVTabCursor) Column(ctx *sqlite3.SQLiteContext, col int) error {
	return c.cursor.Column(col, sqliteResultSink{ctx: ctx})
}

func (c *storeVTabCursor) Rowid() (int64, error) { return c.cursor.Rowid() }
func (c *storeVTabCursor) Close() error          { return c.cursor.Close() }

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func valueFromSQLiteParam(v interface{}) rindex.Value {
	switch n := v.(type) {
	case nil:
		return rindex.Null()
	case int64:
		return rindex.Int64(n)
	case int:
		return rindex.Int64(int64(n))
	case float64:
		return rindex.Float64(n)
	case string:
		return rindex.String(n)
	case []byte:
		return rindex.Bytes(n)
	case bool:
		return rindex.Bool(n)
	default:
		return rindex.Null()
	}
}
