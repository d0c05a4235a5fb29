package evstream

import "echse/internal/instant"

// Fixed is a sorted array of events plus an iterator index — the stream
// variant behind RDATE-only VEVENTs and VTODOs with no RRULE at all.
type Fixed struct {
	events []Event
	idx    int
	valid  instant.Range
}

// NewFixed returns a Fixed stream over events, which must already be
// sorted by (From, Task) ascending; the caller owns events before the
// call and must not mutate it afterward.
func NewFixed(events []Event) *Fixed {
	return &Fixed{events: events, valid: instant.Max}
}

func (f *Fixed) Next() Event {
	for f.idx < len(f.events) {
		e := f.events[f.idx]
		if f.valid.Contains(e.From) {
			return e
		}
		f.idx++
	}
	return Null
}

func (f *Fixed) Pop() {
	if f.idx < len(f.events) {
		f.idx++
	}
}

func (f *Fixed) Clone() Stream {
	cp := make([]Event, len(f.events))
	copy(cp, f.events)
	return &Fixed{events: cp, idx: f.idx, valid: f.valid}
}

func (f *Fixed) SetValid(r instant.Range) { f.valid = r }
func (f *Fixed) Valid() instant.Range     { return f.valid }

// Serialize renders every event's start as an RDATE. DTStart is left null:
// a non-null DTStart is an implied occurrence in its own right (§4.1), and
// Fixed already lists every occurrence explicitly, so setting it would
// double one up on reparse.
func (f *Fixed) Serialize() Fields {
	var out Fields
	for _, e := range f.events {
		out.RDates = append(out.RDates, e.From)
	}
	return out
}
