// Package ingestsession gives a caller a correlation handle across a
// multi-call ingest workflow — think "everything from this file drop"
// or "everything from this replication batch" — without taking on any
// commit/rollback semantics. recordb has no transactions: every Ingest
// call is immediately and permanently visible, so a Session is purely
// bookkeeping for the caller's own observability, not an isolation
// boundary.
package ingestsession

import (
	"time"

	"github.com/google/uuid"
)

// Session accumulates batch counts across however many Ingest calls a
// caller chooses to attribute to it.
type Session struct {
	ID        string
	StartedAt time.Time

	batches  int
	records  int
	bySource map[string]int
}

// New starts a session with a fresh identity.
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		bySource:  make(map[string]int),
	}
}

// RecordBatch attributes one ingest call's outcome to the session.
// sourceName is empty for single-source ingest.
func (s *Session) RecordBatch(sourceName string, records int) {
	s.batches++
	s.records += records
	s.bySource[sourceName] += records
}

// Summary is a snapshot of a session's accumulated totals.
type Summary struct {
	ID       string
	Duration time.Duration
	Batches  int
	Records  int
	BySource map[string]int
}

// Close returns a Summary of everything recorded so far. The session
// remains usable afterward; Close takes no action beyond snapshotting.
func (s *Session) Close() Summary {
	bySource := make(map[string]int, len(s.bySource))
	for k, v := range s.bySource {
		bySource[k] = v
	}
	return Summary{
		ID:       s.ID,
		Duration: time.Since(s.StartedAt),
		Batches:  s.batches,
		Records:  s.records,
		BySource: bySource,
	}
}
