// Package rtable owns the per-table secondary indexes and drives
// key extraction on ingest. It also implements the multi-source
// router: mapping (source, file identifier) pairs to the physical
// table that should index a given frame.
package rtable

import (
	"sync"

	"github.com/leengari/recordb/internal/recordlog"
	"github.com/leengari/recordb/internal/rindex"
	"github.com/leengari/recordb/internal/schemaidl"
)

// ResultSink is the narrow interface FastFieldExtractor writes
// through, modeled on a SQL engine's result-column setter so the
// query bridge can hand it the engine's native result slot without
// rtable depending on any particular driver.
type ResultSink interface {
	SetNull()
	SetInt64(int64)
	SetFloat64(float64)
	SetText(string)
	SetBlob([]byte)
}

// FieldExtractor pulls one column's value out of a record body.
// Required for indexing and for generic column reads.
type FieldExtractor func(body []byte, columnName string) rindex.Value

// FastFieldExtractor writes a column's value directly into the
// result sink and reports success; returning false signals the
// caller to fall back to FieldExtractor.
type FastFieldExtractor func(body []byte, columnIndex int, sink ResultSink) bool

// BatchExtractor fills a full row of values in one call, used by
// full-scan fast paths that would otherwise call FieldExtractor once
// per column per row.
type BatchExtractor func(body []byte, out []rindex.Value)

// FieldDecryptor reverses whatever an encrypted column's field
// extractor returned for fieldID, given the raw encrypted value
// pulled from the record body. The cryptographic primitive itself is
// the caller's concern; rtable only owns the hook that calls it
// per-column during materialization.
type FieldDecryptor func(fieldID uint32, encrypted rindex.Value) rindex.Value

// Store owns one TableDef, the table's per-column indexes, a
// reference to the shared Record Log, and a per-table file
// identifier. It is the unit the multi-source router creates one
// physical sibling of per registered source.
type Store struct {
	mu sync.RWMutex

	def        schemaidl.TableDef
	log        *recordlog.Log
	fileID     recordlog.FileID
	sourceName string // "" for the base table; the literal source name for a T@S sibling

	indexes map[string]*rindex.Index
	records []recordlog.RecordInfo

	fieldExtractor     FieldExtractor
	fastFieldExtractor FastFieldExtractor
	batchExtractor     BatchExtractor
	decryptor          FieldDecryptor

	hasEncryptedColumns bool
}

// NewStore creates a Store for def backed by log. Indexes are
// created for every column with Indexed or PrimaryKey set.
func NewStore(def schemaidl.TableDef, log *recordlog.Log) *Store {
	s := &Store{
		def:     def,
		log:     log,
		indexes: make(map[string]*rindex.Index),
	}
	for _, col := range def.Columns {
		if col.Indexed || col.PrimaryKey {
			s.indexes[col.Name] = rindex.New()
		}
		if col.Encrypted() {
			s.hasEncryptedColumns = true
		}
	}
	return s
}

// Def returns the table definition this store was built from.
func (s *Store) Def() schemaidl.TableDef { return s.def }

// FileID returns the file identifier this store's records are
// filed under.
func (s *Store) FileID() recordlog.FileID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileID
}

// SetFileID binds the file identifier a store's frames carry. Must
// be called (together with extractors) before RegisterSource for a
// source table to inherit routing, per the router's timing contract.
func (s *Store) SetFileID(id recordlog.FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileID = id
}

// SourceName returns the literal source name for a T@S sibling, or
// the empty string for a base table.
func (s *Store) SourceName() string { return s.sourceName }

// SetExtractors wires the optional extractor callbacks.
func (s *Store) SetExtractors(field FieldExtractor, fast FastFieldExtractor, batch BatchExtractor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldExtractor = field
	s.fastFieldExtractor = fast
	s.batchExtractor = batch
}

// FieldExtractor returns the configured field extractor, if any.
func (s *Store) FieldExtractor() FieldExtractor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fieldExtractor
}

// FastFieldExtractor returns the configured fast extractor, if any.
func (s *Store) FastFieldExtractor() FastFieldExtractor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fastFieldExtractor
}

// BatchExtractor returns the configured batch extractor, if any.
func (s *Store) BatchExtractor() BatchExtractor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchExtractor
}

// SetDecryptor wires the field decryptor called during column
// materialization for every column carrying an EncryptedFieldID.
func (s *Store) SetDecryptor(d FieldDecryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decryptor = d
}

// Decryptor returns the configured field decryptor, if any.
func (s *Store) Decryptor() FieldDecryptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decryptor
}

// HasEncryptedColumns reports whether this table's definition carries
// at least one column with an EncryptedFieldID. The query bridge skips
// the fast-extractor path entirely for such tables: a fast extractor
// writes straight into the result sink and would bypass decryption.
func (s *Store) HasEncryptedColumns() bool {
	return s.hasEncryptedColumns
}

// cloneForSource builds a T@source sibling sharing this store's
// TableDef and extractors, as a new, independently-indexed Store.
// The sibling inherits the base store's file identifier as it stood
// at clone time; a file identifier set on the base AFTER cloning is
// not retroactively applied, per the router's timing contract.
func (s *Store) cloneForSource(sourceName string) *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := NewStore(s.def, s.log)
	clone.sourceName = sourceName
	clone.fileID = s.fileID
	clone.fieldExtractor = s.fieldExtractor
	clone.fastFieldExtractor = s.fastFieldExtractor
	clone.batchExtractor = s.batchExtractor
	clone.decryptor = s.decryptor
	return clone
}

// OnIngest is the ingest callback: it appends (offset, sequence) to
// the per-table record vector and, for each indexed column, extracts
// a key and inserts it into that column's index. If no field
// extractor is configured, indexes stay empty — a silent no-op, not
// an error.
func (s *Store) OnIngest(body []byte, sequence uint64, offset uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, recordlog.RecordInfo{Offset: offset, Sequence: sequence})

	if s.fieldExtractor == nil || len(s.indexes) == 0 {
		return
	}
	for colName, idx := range s.indexes {
		key := s.fieldExtractor(body, colName)
		// Index.Insert only fails on NaN keys, which a well-behaved
		// extractor should never produce for a numeric column; ingest
		// treats that as a silent drop of the single offending index
		// entry rather than failing the whole record.
		_ = idx.Insert(key, offset, uint32(len(body)), sequence)
	}
}

// Records returns a snapshot of the per-table RecordInfo vector in
// insertion order.
func (s *Store) Records() []recordlog.RecordInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]recordlog.RecordInfo, len(s.records))
	copy(out, s.records)
	return out
}

// RecordCount returns the number of records ingested into this
// store.
func (s *Store) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Index returns the index for column, if one was built for it.
func (s *Store) Index(column string) (*rindex.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[column]
	return idx, ok
}

// FindByIndex returns at most a single entry for an equality lookup:
// the fast path, no data copy. Returns NotIndexedError if the column
// has no index.
func (s *Store) FindByIndex(column string, value rindex.Value) (rindex.Entry, bool, error) {
	idx, ok := s.Index(column)
	if !ok {
		return rindex.Entry{}, false, &NotIndexedError{Table: s.def.Name, Column: column}
	}
	e, found := idx.SearchFirst(value)
	return e, found, nil
}

// FindByRange materializes the full entry set for min <= key <= max
// on an indexed column.
func (s *Store) FindByRange(column string, min, max rindex.Value) ([]rindex.Entry, error) {
	idx, ok := s.Index(column)
	if !ok {
		return nil, &NotIndexedError{Table: s.def.Name, Column: column}
	}
	return idx.Range(min, max), nil
}
