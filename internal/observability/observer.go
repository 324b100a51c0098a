// Package observability carries the database facade's lifecycle
// event stream: ingest, fast-path hit/miss, tombstone, and query
// start/end events, fanned out to registered observers.
// EventIndexInsert is part of the vocabulary, but the facade does not
// emit it.
package observability

import "time"

// EventType names one phase of the facade's lifecycle that observers
// can subscribe to.
type EventType string

const (
	EventIngestStart   EventType = "ingest_start"
	EventIngestEnd     EventType = "ingest_end"
	EventIndexInsert   EventType = "index_insert"
	EventFastPathHit   EventType = "fast_path_hit"
	EventFastPathMiss  EventType = "fast_path_miss"
	EventTombstoneMark EventType = "tombstone_mark"
	EventQueryStart    EventType = "query_start"
	EventQueryEnd      EventType = "query_end"
)

// Event is one lifecycle occurrence. Data carries phase-specific
// payload: the SQL string, a record count, a column name, and so on.
type Event struct {
	Type      EventType
	Table     string
	Timestamp time.Time
	Data      any
}

// Observer receives events as the facade's operations progress.
type Observer interface {
	OnEvent(event Event)
}

// Dispatcher fans one Event out to every registered Observer.
type Dispatcher struct {
	observers []Observer
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds an observer to the fan-out list.
func (d *Dispatcher) Register(o Observer) {
	d.observers = append(d.observers, o)
}

// Notify delivers event to every registered observer, stamping the
// timestamp if the caller left it zero.
func (d *Dispatcher) Notify(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, o := range d.observers {
		o.OnEvent(event)
	}
}
