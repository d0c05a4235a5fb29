// Package evstream implements the lazy, polymorphic event-stream algebra:
// fixed-event lists, recurrence-rule-driven streams, exception filters,
// mover rules, and a merging multiplexer, all composing under one
// capability set (next, pop, clone, serialize, set-valid, valid).
//
// Go has no vtable-of-function-pointers idiom; the Stream interface plays
// that role directly, with each concrete type implementing it (§9 Design
// Notes: "variant dispatch on event streams" becomes ordinary interface
// dispatch rather than a tagged union, since Go methods already provide
// that polymorphism without a hand-rolled tag-switch).
package evstream

import (
	"echse/internal/instant"
	"echse/internal/intern"
)

// Event is an occurrence at an instant or across a range, annotated with
// an interned task handle and a state-set.
type Event struct {
	From, Till instant.Instant
	Task       intern.Handle
	States     intern.StateMask
}

// Null is the null event: From is the null instant.
var Null Event

// IsNull reports whether e is the null event.
func (e Event) IsNull() bool {
	return e.From.IsNull()
}

// Range returns the event's occupied half-open range.
func (e Event) Range() instant.Range {
	return instant.Range{Begin: e.From, End: e.Till}
}

// Before orders two events by (from, task) lexicographic order, the tie-
// break the mux and the stream invariants rely on.
func Before(a, b Event) bool {
	if c := instant.Compare(a.From, b.From); c != 0 {
		return c < 0
	}
	return a.Task < b.Task
}

// Equal reports whether a and b share the same (from, task) — the mux's
// deduplication key.
func Equal(a, b Event) bool {
	return instant.Compare(a.From, b.From) == 0 && a.Task == b.Task
}

// Stream is the capability set every event-stream variant implements.
// Next peeks without consuming; Pop consumes and advances. A null event
// from Next signals end-of-stream. Serialize flattens the stream back to
// the RRULE/RDATE/XRULE/XDATE terms a VEVENT is written from, the
// capability a checkpoint write or a GET /queue reply needs to round-trip
// a task's schedule (§4.3 vtable: "next, clone, free, serialize, set_valid,
// valid").
type Stream interface {
	Next() Event
	Pop()
	Clone() Stream
	Serialize() Fields
	SetValid(r instant.Range)
	Valid() instant.Range
}
