// Package recordlog implements the append-only, length-prefixed byte
// arena that every table in recordb indexes in place. It never
// rewrites or transforms a record once ingested: callers get back
// slices that alias the arena, valid until the next mutating call.
package recordlog

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// frameHeaderSize is the width of the little-endian length prefix in
// front of every frame. It is part of the wire format and never
// changes.
const frameHeaderSize = 4

// fileIDOffset and fileIDLen locate the 4-byte ASCII file identifier
// inside a record body. Bodies shorter than fileIDOffset+fileIDLen
// carry an empty file identifier.
const (
	fileIDOffset = 4
	fileIDLen    = 4
)

// FileID is the 4-byte ASCII tag at a fixed offset inside every
// record body, used by the router to choose a table.
type FileID [4]byte

// String renders the file identifier as text; a zero FileID renders
// as the empty string, matching "empty file identifier" bodies.
func (f FileID) String() string {
	n := 0
	for n < len(f) && f[n] != 0 {
		n++
	}
	return string(f[:n])
}

// IsZero reports whether the identifier was never set (the empty
// file-identifier case for short bodies).
func (f FileID) IsZero() bool {
	return f == FileID{}
}

// RecordCallback is invoked once per fully-ingested frame, in the
// order frames appear in the stream.
type RecordCallback func(fileID FileID, body []byte, sequence uint64, offset uint64)

// RecordInfo is the iteration unit for full scans: one entry per
// record for a given file identifier, in insertion order.
type RecordInfo struct {
	Offset   uint64
	Sequence uint64
}

// RecordHeader is reconstructed on read from the log's own
// bookkeeping; it is never stored verbatim.
type RecordHeader struct {
	Sequence uint64
	FileID   FileID
	Length   uint32
}

// StoredRecord is the result of resolving a sequence number back to
// its bytes.
type StoredRecord struct {
	Header RecordHeader
	Offset uint64
	Body   []byte
}

// Log is the exclusive owner of a single growing byte buffer holding
// every frame ever ingested. It is not safe to share across
// goroutines without external synchronization beyond what Log itself
// provides for read/write separation.
type Log struct {
	mu sync.RWMutex

	buf         []byte
	writeOffset uint64

	nextSequence uint64
	seqToOffset  map[uint64]uint64
	offsetToSeq  map[uint64]uint64
	byFileID     map[FileID][]RecordInfo

	logger *slog.Logger
}

// Option configures a Log at construction time.
type Option func(*Log)

// WithLogger attaches a structured logger; ingest and rebuild events
// are logged at Debug. Corruption is reported through the returned
// *CorruptError and is not logged.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Log) { lg.logger = l }
}

// WithInitialCapacity preallocates the backing buffer, avoiding early
// geometric-growth reallocations for callers that know roughly how
// much they will ingest.
func WithInitialCapacity(n int) Option {
	return func(lg *Log) {
		if n > 0 {
			lg.buf = make([]byte, 0, n)
		}
	}
}

// New creates an empty record log. Sequences are assigned
// monotonically starting at 1 and never reused.
func New(opts ...Option) *Log {
	lg := &Log{
		nextSequence: 1,
		seqToOffset:  make(map[uint64]uint64),
		offsetToSeq:  make(map[uint64]uint64),
		byFileID:     make(map[FileID][]RecordInfo),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(lg)
	}
	return lg
}

// fileIDOf extracts the 4-byte file identifier from a body, per the
// wire-format rule: bodies shorter than 8 bytes have an empty
// identifier.
func fileIDOf(body []byte) FileID {
	var id FileID
	if len(body) >= fileIDOffset+fileIDLen {
		copy(id[:], body[fileIDOffset:fileIDOffset+fileIDLen])
	}
	return id
}

// growTo ensures the backing buffer has at least n bytes of
// capacity, growing geometrically (at least 2x). Must be called with
// mu held.
func (l *Log) growTo(n int) {
	if cap(l.buf) >= n {
		return
	}
	newCap := cap(l.buf)
	if newCap == 0 {
		newCap = 4096
	}
	for newCap < n {
		newCap *= 2
	}
	grown := make([]byte, len(l.buf), newCap)
	copy(grown, l.buf)
	l.buf = grown
}

// appendFrame writes one [length][body] frame at the current write
// offset, advances it, and returns the offset the frame was written
// at. Must be called with mu held.
func (l *Log) appendFrame(body []byte) uint64 {
	frameLen := frameHeaderSize + len(body)
	offset := l.writeOffset
	needed := int(offset) + frameLen
	l.growTo(needed)
	l.buf = l.buf[:needed]
	binary.LittleEndian.PutUint32(l.buf[offset:offset+frameHeaderSize], uint32(len(body)))
	copy(l.buf[offset+frameHeaderSize:], body)
	l.writeOffset = uint64(needed)
	return offset
}

// recordOne assigns the next sequence to a just-written frame at
// offset and updates every bookkeeping map. Must be called with mu
// held.
func (l *Log) recordOne(fileID FileID, offset uint64) uint64 {
	seq := l.nextSequence
	l.nextSequence++
	l.seqToOffset[seq] = offset
	l.offsetToSeq[offset] = seq
	l.byFileID[fileID] = append(l.byFileID[fileID], RecordInfo{Offset: offset, Sequence: seq})
	return seq
}

// Ingest parses as many complete frames as fit from data, storing
// each and invoking onRecord for it. It stops at the first truncated
// frame and returns the number of bytes actually consumed (the
// caller keeps the tail for retry) plus the number of records
// processed.
func (l *Log) Ingest(data []byte, onRecord RecordCallback) (consumed int, records int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := 0
	for {
		if pos+frameHeaderSize > len(data) {
			break
		}
		bodyLen := int(binary.LittleEndian.Uint32(data[pos : pos+frameHeaderSize]))
		frameEnd := pos + frameHeaderSize + bodyLen
		if frameEnd > len(data) {
			break // truncated tail, left unconsumed
		}

		body := data[pos+frameHeaderSize : frameEnd]
		fileID := fileIDOf(body)
		offset := l.appendFrame(body)
		seq := l.recordOne(fileID, offset)

		if l.logger != nil {
			l.logger.Debug("recordlog: ingested frame", "file_id", fileID.String(), "sequence", seq, "offset", offset, "length", bodyLen)
		}

		if onRecord != nil {
			// body handed to the callback aliases l.buf; callers must
			// not retain it past the next mutating call.
			onRecord(fileID, l.buf[offset+frameHeaderSize:offset+frameHeaderSize+uint64(bodyLen)], seq, offset)
		}

		pos = frameEnd
		records++
	}

	return pos, records, nil
}

// IngestOne requires framed to hold exactly one complete frame and
// fails otherwise.
func (l *Log) IngestOne(framed []byte, onRecord RecordCallback) (uint64, error) {
	if len(framed) < frameHeaderSize {
		return 0, &TruncatedFrameError{Have: len(framed), Want: frameHeaderSize}
	}
	bodyLen := int(binary.LittleEndian.Uint32(framed[:frameHeaderSize]))
	want := frameHeaderSize + bodyLen
	if len(framed) != want {
		return 0, &TruncatedFrameError{Have: len(framed), Want: want}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	body := framed[frameHeaderSize:]
	fileID := fileIDOf(body)
	offset := l.appendFrame(body)
	seq := l.recordOne(fileID, offset)

	if l.logger != nil {
		l.logger.Debug("recordlog: ingested single frame", "file_id", fileID.String(), "sequence", seq, "offset", offset)
	}
	if onRecord != nil {
		onRecord(fileID, l.buf[offset+frameHeaderSize:offset+frameHeaderSize+uint64(bodyLen)], seq, offset)
	}

	return seq, nil
}

// IngestBody is a convenience for pre-stripped bodies: it prepends a
// length prefix internally before storing the frame.
func (l *Log) IngestBody(body []byte, onRecord RecordCallback) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fileID := fileIDOf(body)
	offset := l.appendFrame(body)
	seq := l.recordOne(fileID, offset)

	if l.logger != nil {
		l.logger.Debug("recordlog: ingested body", "file_id", fileID.String(), "sequence", seq, "offset", offset)
	}
	if onRecord != nil {
		onRecord(fileID, l.buf[offset+frameHeaderSize:offset+frameHeaderSize+uint64(len(body))], seq, offset)
	}

	return seq, nil
}

// LoadAndRebuild copies the whole byte blob as the new log contents
// and rescans it from offset 0, replaying the frame parser and
// invoking onRecord exactly as a live ingest would. It is used to
// restore state from an export. Existing log contents are discarded.
func (l *Log) LoadAndRebuild(data []byte, onRecord RecordCallback) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate the framing before touching any state, so a corrupt blob
	// leaves the log as it was.
	for pos := 0; pos+frameHeaderSize <= len(data); {
		frameEnd := pos + frameHeaderSize + int(binary.LittleEndian.Uint32(data[pos:pos+frameHeaderSize]))
		if frameEnd > len(data) {
			return &CorruptError{Offset: uint64(pos), Reason: "frame length escapes rebuilt buffer"}
		}
		pos = frameEnd
	}

	l.buf = append([]byte(nil), data...)
	l.writeOffset = uint64(len(l.buf))
	l.nextSequence = 1
	l.seqToOffset = make(map[uint64]uint64)
	l.offsetToSeq = make(map[uint64]uint64)
	l.byFileID = make(map[FileID][]RecordInfo)

	pos := 0
	for {
		if pos+frameHeaderSize > len(l.buf) {
			break
		}
		bodyLen := int(binary.LittleEndian.Uint32(l.buf[pos : pos+frameHeaderSize]))
		frameEnd := pos + frameHeaderSize + bodyLen
		if frameEnd > len(l.buf) {
			return &CorruptError{Offset: uint64(pos), Reason: "frame length escapes rebuilt buffer"}
		}

		offset := uint64(pos)
		body := l.buf[pos+frameHeaderSize : frameEnd]
		fileID := fileIDOf(body)
		seq := l.recordOne(fileID, offset)

		if onRecord != nil {
			onRecord(fileID, body, seq, offset)
		}

		pos = frameEnd
	}

	if l.logger != nil {
		l.logger.Debug("recordlog: rebuilt from export", "bytes", len(l.buf), "records", len(l.offsetToSeq))
	}

	return nil
}

// DataAt returns the body bytes of the frame starting at offset. The
// returned slice aliases the log and is valid only until the next
// mutating call (Ingest, IngestOne, IngestBody, LoadAndRebuild).
func (l *Log) DataAt(offset uint64) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dataAtLocked(offset)
}

func (l *Log) dataAtLocked(offset uint64) ([]byte, error) {
	if offset+frameHeaderSize > l.writeOffset {
		return nil, &CorruptError{Offset: offset, Reason: "offset out of range"}
	}
	bodyLen := binary.LittleEndian.Uint32(l.buf[offset : offset+frameHeaderSize])
	bodyStart := offset + frameHeaderSize
	bodyEnd := bodyStart + uint64(bodyLen)
	if bodyEnd > l.writeOffset {
		return nil, &CorruptError{Offset: offset, Reason: "framed length would escape written region"}
	}
	return l.buf[bodyStart:bodyEnd], nil
}

// ReadRecord resolves sequence via the sequence-to-offset map and
// returns the full reconstructed header plus body.
func (l *Log) ReadRecord(sequence uint64) (StoredRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	offset, ok := l.seqToOffset[sequence]
	if !ok {
		return StoredRecord{}, &OutOfRangeError{Kind: "sequence", Value: sequence}
	}
	body, err := l.dataAtLocked(offset)
	if err != nil {
		return StoredRecord{}, err
	}
	return StoredRecord{
		Header: RecordHeader{
			Sequence: sequence,
			FileID:   fileIDOf(body),
			Length:   uint32(len(body)),
		},
		Offset: offset,
		Body:   body,
	}, nil
}

// SequenceAt returns the sequence assigned to the frame at offset,
// the mutual inverse of ReadRecord's offset lookup.
func (l *Log) SequenceAt(offset uint64) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seq, ok := l.offsetToSeq[offset]
	return seq, ok
}

// IterateByFileID walks the per-file-id record vector in insertion
// order, calling visit for each entry. Iteration stops early if visit
// returns false.
func (l *Log) IterateByFileID(fileID FileID, visit func(RecordInfo) bool) {
	l.mu.RLock()
	infos := l.byFileID[fileID]
	// copy the slice header under the lock; RecordInfo is a value type
	// so this is a cheap, safe snapshot of the insertion-ordered vector.
	snapshot := make([]RecordInfo, len(infos))
	copy(snapshot, infos)
	l.mu.RUnlock()

	for _, info := range snapshot {
		if !visit(info) {
			return
		}
	}
}

// RecordCount returns the number of records recorded for a given
// file identifier.
func (l *Log) RecordCount(fileID FileID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byFileID[fileID])
}

// Export copies the live prefix of the buffer: offsets 0..write
// offset. The result is a strict superset reproduction input for
// LoadAndRebuild.
func (l *Log) Export() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]byte, l.writeOffset)
	copy(out, l.buf[:l.writeOffset])
	return out
}

// ExportCompressed zstd-compresses the exported byte blob, for
// callers willing to trade CPU for a smaller blob on disk or over the
// wire. It does not change the wire format of the blob itself; the
// caller must decompress before calling LoadAndRebuild.
func (l *Log) ExportCompressed() ([]byte, error) {
	raw := l.Export()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("recordlog: creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

// DecompressExport reverses ExportCompressed.
func DecompressExport(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("recordlog: creating zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}
