// Package rquery is the query bridge: it registers each table store
// as a virtual relation, drives the generic cursor protocol over it,
// and intercepts the handful of trivial SELECT shapes that never need
// to touch the embedded SQL engine at all.
package rquery

import (
	"fmt"

	"github.com/leengari/recordb/internal/recordlog"
	"github.com/leengari/recordb/internal/rindex"
	"github.com/leengari/recordb/internal/rtable"
	"github.com/leengari/recordb/internal/rtomb"
)

// ScanType is the strategy the planner picked for one Filter call.
type ScanType int

const (
	FullScan ScanType = iota
	RowidLookup
	IndexEquality
	IndexSingleLookup
	IndexRange
)

func (s ScanType) String() string {
	switch s {
	case FullScan:
		return "FullScan"
	case RowidLookup:
		return "RowidLookup"
	case IndexEquality:
		return "IndexEquality"
	case IndexSingleLookup:
		return "IndexSingleLookup"
	case IndexRange:
		return "IndexRange"
	default:
		return "Unknown"
	}
}

// CursorState is the cursor's observable lifecycle stage.
type CursorState int

const (
	StateInit CursorState = iota
	StateFiltered
	StateRow
	StateEof
)

// FilterArgs carries whatever a given ScanType needs to start
// iterating; only the fields relevant to the chosen ScanType are
// read.
type FilterArgs struct {
	Column   string
	Equality rindex.Value

	RangeMin, RangeMax rindex.Value

	RowidSequence uint64
}

// Cursor is the per-row iteration state the query bridge hands to
// the embedded SQL engine. It never panics across the engine
// boundary: every method reports errors through its return value.
type Cursor struct {
	store      *rtable.Store
	tomb       *rtomb.Set
	log        *recordlog.Log
	sourceName string

	state    CursorState
	scanType ScanType

	records []recordlog.RecordInfo
	entries []rindex.Entry
	pos     int

	rowidSeq  uint64
	rowidDone bool

	curValid    bool
	curSequence uint64
	curOffset   uint64
	curBody     []byte

	rowCacheValid bool
	rowCache      []rindex.Value
}

// NewCursor creates a cursor bound to one table store. sourceName is
// the literal value served for the virtual `_source` column; pass
// the empty string for a single-source (non-federated) table.
func NewCursor(store *rtable.Store, tomb *rtomb.Set, log *recordlog.Log, sourceName string) *Cursor {
	return &Cursor{
		store:      store,
		tomb:       tomb,
		log:        log,
		sourceName: sourceName,
		state:      StateInit,
	}
}

// Filter begins a scan using scanType, discarding any prior iteration
// state, and positions the cursor on the first non-tombstoned row (or
// Eof if there is none).
func (c *Cursor) Filter(scanType ScanType, args FilterArgs) error {
	c.scanType = scanType
	c.records = nil
	c.entries = nil
	c.pos = -1
	c.rowidDone = false
	c.curValid = false
	c.rowCacheValid = false

	switch scanType {
	case FullScan:
		c.records = c.store.Records()

	case RowidLookup:
		c.rowidSeq = args.RowidSequence

	case IndexEquality:
		idx, ok := c.store.Index(args.Column)
		if !ok {
			return &rtable.NotIndexedError{Table: c.store.Def().Name, Column: args.Column}
		}
		c.entries = idx.Search(args.Equality)

	case IndexSingleLookup:
		idx, ok := c.store.Index(args.Column)
		if !ok {
			return &rtable.NotIndexedError{Table: c.store.Def().Name, Column: args.Column}
		}
		if e, found := idx.SearchFirst(args.Equality); found {
			c.entries = []rindex.Entry{e}
		}

	case IndexRange:
		idx, ok := c.store.Index(args.Column)
		if !ok {
			return &rtable.NotIndexedError{Table: c.store.Def().Name, Column: args.Column}
		}
		c.entries = idx.Range(args.RangeMin, args.RangeMax)

	default:
		return fmt.Errorf("rquery: unknown scan type %d", scanType)
	}

	c.state = StateFiltered
	return c.advance()
}

// Next advances to the next non-tombstoned row.
func (c *Cursor) Next() error {
	if c.state == StateEof {
		return nil
	}
	return c.advance()
}

// advance walks the current scan's remaining positions, skipping
// tombstoned sequences, and lands on the next visible row or Eof.
func (c *Cursor) advance() error {
	for {
		offset, sequence, ok := c.step()
		if !ok {
			c.state = StateEof
			c.curValid = false
			return nil
		}
		if c.tomb != nil && c.tomb.IsDeleted(sequence) {
			continue
		}
		body, err := c.log.DataAt(offset)
		if err != nil {
			return err
		}
		c.curOffset = offset
		c.curSequence = sequence
		c.curBody = body
		c.curValid = true
		c.rowCacheValid = false
		c.state = StateRow
		return nil
	}
}

// step returns the next candidate (offset, sequence) for the active
// scan type, or ok=false when the scan is exhausted.
func (c *Cursor) step() (offset uint64, sequence uint64, ok bool) {
	switch c.scanType {
	case RowidLookup:
		if c.rowidDone {
			return 0, 0, false
		}
		c.rowidDone = true
		rec, err := c.log.ReadRecord(c.rowidSeq)
		if err != nil {
			return 0, 0, false
		}
		return rec.Offset, rec.Header.Sequence, true

	case FullScan:
		c.pos++
		if c.pos >= len(c.records) {
			return 0, 0, false
		}
		r := c.records[c.pos]
		return r.Offset, r.Sequence, true

	default: // IndexEquality, IndexSingleLookup, IndexRange
		c.pos++
		if c.pos >= len(c.entries) {
			return 0, 0, false
		}
		e := c.entries[c.pos]
		return e.DataOffset, e.Sequence, true
	}
}

// EOF reports whether the cursor has no more rows.
func (c *Cursor) EOF() bool {
	return c.state == StateEof
}

// Rowid returns the current row's sequence number, the engine's
// rowid surrogate.
func (c *Cursor) Rowid() (int64, error) {
	if !c.curValid {
		return 0, fmt.Errorf("rquery: Rowid called with no current row")
	}
	return int64(c.curSequence), nil
}

// Close releases the cursor. It is legal from any state.
func (c *Cursor) Close() error {
	c.state = StateEof
	c.curValid = false
	c.records = nil
	c.entries = nil
	return nil
}

// Column materializes column index col (real columns in TableDef
// order, then the virtual columns _source, _rowid, _offset, _data) into
// sink.
func (c *Cursor) Column(col int, sink rtable.ResultSink) error {
	if !c.curValid {
		return fmt.Errorf("rquery: Column called with no current row")
	}
	def := c.store.Def()
	nReal := len(def.Columns)

	switch {
	case col < nReal:
		return c.columnReal(col, sink)
	case col == nReal:
		sink.SetText(c.sourceName)
		return nil
	case col == nReal+1:
		sink.SetInt64(int64(c.curSequence))
		return nil
	case col == nReal+2:
		sink.SetInt64(int64(c.curOffset))
		return nil
	case col == nReal+3:
		sink.SetBlob(c.curBody)
		return nil
	default:
		return fmt.Errorf("rquery: column index %d out of range for table %q", col, def.Name)
	}
}

func (c *Cursor) columnReal(col int, sink rtable.ResultSink) error {
	def := c.store.Def()
	encrypted := c.store.HasEncryptedColumns()

	if !encrypted {
		if fast := c.store.FastFieldExtractor(); fast != nil {
			if fast(c.curBody, col, sink) {
				return nil
			}
		}
	}

	if !c.rowCacheValid {
		extractor := c.store.FieldExtractor()
		if extractor == nil {
			// No extractor configured: column reads yield NULL rather
			// than an error, same as the empty-index read paths.
			sink.SetNull()
			return nil
		}
		cache := make([]rindex.Value, len(def.Columns))
		for i, colDef := range def.Columns {
			cache[i] = extractor(c.curBody, colDef.Name)
		}
		if encrypted {
			if decrypt := c.store.Decryptor(); decrypt != nil {
				for i, colDef := range def.Columns {
					if colDef.Encrypted() {
						cache[i] = decrypt(*colDef.EncryptedFieldID, cache[i])
					}
				}
			}
		}
		c.rowCache = cache
		c.rowCacheValid = true
	}

	writeValue(sink, c.rowCache[col])
	return nil
}

func writeValue(sink rtable.ResultSink, v rindex.Value) {
	if v.IsNull() {
		sink.SetNull()
		return
	}
	switch v.Kind() {
	case rindex.KindFloat32, rindex.KindFloat64:
		sink.SetFloat64(v.Float())
	case rindex.KindString:
		sink.SetText(v.Str())
	case rindex.KindBytes:
		sink.SetBlob(v.Raw())
	case rindex.KindUint8, rindex.KindUint16, rindex.KindUint32, rindex.KindUint64:
		sink.SetInt64(int64(v.Uint()))
	default:
		sink.SetInt64(v.Int())
	}
}
