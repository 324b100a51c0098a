// Package durability gives recordb a much smaller REDO-only analogue of
// a write-ahead log: it durably records ingest batches (the raw,
// already-framed record-log bytes) to disk so a process crash doesn't
// lose data the facade acknowledged, without taking on transactions,
// checkpoints, or index persistence. On restart, Recover hands every
// batch, in order, to a caller-supplied apply function; the recordb
// facade re-ingests each batch through recordlog.Log.Ingest.
package durability

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
)

// Magic identifies a durability log file; fileVersion is written after
// it in the file header (Recover checks only Magic).
var Magic = [4]byte{'R', 'D', 'B', 'L'}

const fileVersion = 1

// recordHeaderSize is Length(4) + Checksum(8, xxhash64) per batch
// record, written ahead of the batch payload itself.
const recordHeaderSize = 4 + 8

// Log is an append-only file of ingest batches, fsynced on every
// Append so a caller's "ingest succeeded" answer implies durability.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates or appends to the durability log at path.
func Open(path string) (*Log, error) {
	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("durability: opening log: %w", err)
	}

	lg := &Log{file: f}
	if !existed {
		if err := lg.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("durability: seeking to end: %w", err)
	}
	return lg, nil
}

func (l *Log) writeHeader() error {
	buf := make([]byte, 8)
	copy(buf[:4], Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], fileVersion)
	if _, err := l.file.Write(buf); err != nil {
		return fmt.Errorf("durability: writing header: %w", err)
	}
	return l.file.Sync()
}

// Append durably records one ingest batch (already-framed recordlog
// bytes) and fsyncs before returning.
func (l *Log) Append(batch []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	checksum := xxhash.Sum64(batch)
	header := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(header[:4], uint32(len(batch)))
	binary.LittleEndian.PutUint64(header[4:12], checksum)

	if _, err := l.file.Write(header); err != nil {
		return fmt.Errorf("durability: writing record header: %w", err)
	}
	if _, err := l.file.Write(batch); err != nil {
		return fmt.Errorf("durability: writing record payload: %w", err)
	}
	return l.file.Sync()
}

// Close closes the underlying file. It does not sync again; every
// Append has already synced its batch.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Recover replays every batch in path, in order, calling apply once
// per batch. A batch that fails its checksum is skipped (REDO-only: we
// never had proof it was fully fsynced) and its error is collected
// rather than aborting the whole recovery, so one torn tail record
// doesn't cost every earlier good batch. The combined error, if any, is
// returned for the caller to log; replay still runs to completion.
func Recover(path string, apply func(batch []byte) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("durability: reading log: %w", err)
	}
	if len(data) < 8 || [4]byte(data[:4]) != Magic {
		return fmt.Errorf("durability: %s is not a durability log", path)
	}

	var errs error
	pos := 8
	for pos+recordHeaderSize <= len(data) {
		length := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		wantChecksum := binary.LittleEndian.Uint64(data[pos+4 : pos+12])
		bodyStart := pos + recordHeaderSize
		bodyEnd := bodyStart + length
		if bodyEnd > len(data) {
			errs = multierr.Append(errs, fmt.Errorf("durability: truncated batch at offset %d", pos))
			break
		}

		batch := data[bodyStart:bodyEnd]
		if xxhash.Sum64(batch) != wantChecksum {
			errs = multierr.Append(errs, fmt.Errorf("durability: checksum mismatch at offset %d", pos))
			pos = bodyEnd
			continue
		}
		if err := apply(batch); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("durability: replaying batch at offset %d: %w", pos, err))
		}
		pos = bodyEnd
	}
	return errs
}
