package evstream

import (
	"echse/internal/instant"
	"echse/internal/intern"
)

// Direction selects which way a Mover displaces a blocked event.
type Direction int

const (
	// Past relocates a blocked event earlier, just before the blocker.
	Past Direction = iota
	// Future relocates a blocked event later, just after the blocker.
	Future
	// PastThenFuture tries Past first; if no gap is found it falls back
	// to Future.
	PastThenFuture
	// FutureThenPast tries Future first; if no gap is found it falls
	// back to Past.
	FutureThenPast
)

// maxGapSearch bounds how many successive blockers a Mover will step past
// while hunting for a free slot, guarding against a pathological auxiliary
// stream (e.g. one that blocks every instant) spinning forever.
const maxGapSearch = 1000

// Mover ("evmrul") relocates events from movers that overlap a blocking
// state in aux to the nearest slot clear of that state, in the direction
// dir demands. With no aux attached it passes movers through unchanged.
//
// A placed event is considered clear as soon as it no longer overlaps any
// occurrence whose state intersects from; this is a deliberate
// simplification of "the slot's state must intersect into" (see
// DESIGN.md), exact when into is from's complement, which is the
// common case (e.g. moving off a holiday onto any non-holiday day).
type Mover struct {
	movers Stream
	aux    Stream
	dir    Direction
	from   intern.StateMask
	into   intern.StateMask
	valid  instant.Range
}

// NewMover returns a Mover over movers, relocating events blocked by a
// from-state into a slot clear of it, per dir.
func NewMover(movers Stream, dir Direction, from, into intern.StateMask) *Mover {
	return &Mover{movers: movers, dir: dir, from: from, into: into, valid: instant.Max}
}

// Attach supplies the auxiliary blocking/allowing stream. Until attached,
// the mover is a pure pass-through.
func (m *Mover) Attach(aux Stream) {
	m.aux = aux
}

func (m *Mover) Next() Event {
	e := m.movers.Next()
	if e.IsNull() || m.aux == nil {
		return e
	}
	placed := m.place(e)
	if !m.valid.Contains(placed.From) {
		return Null
	}
	return placed
}

func (m *Mover) Pop() {
	m.movers.Pop()
}

func (m *Mover) place(e Event) Event {
	duration := instant.Sub(e.Till, e.From)
	primary := m.dir
	switch primary {
	case PastThenFuture:
		primary = Past
	case FutureThenPast:
		primary = Future
	}
	placed, ok := m.searchDirection(e, duration, primary)
	if ok {
		return placed
	}
	switch m.dir {
	case PastThenFuture:
		if alt, ok := m.searchDirection(e, duration, Future); ok {
			return alt
		}
	case FutureThenPast:
		if alt, ok := m.searchDirection(e, duration, Past); ok {
			return alt
		}
	}
	return placed
}

// searchDirection repeatedly steps cur away from each blocker it finds,
// in dir, until it lands on a slot with no overlapping from-state blocker
// or the search is given up as exhausted.
func (m *Mover) searchDirection(e Event, duration instant.Duration, dir Direction) (Event, bool) {
	cur := e
	for i := 0; i < maxGapSearch; i++ {
		blocker, ok := m.firstBlocker(cur.Range())
		if !ok {
			return cur, true
		}
		switch dir {
		case Past:
			cur.Till = blocker.Begin
			cur.From = instant.Add(blocker.Begin, duration.Negate())
		case Future:
			cur.From = blocker.End
			cur.Till = instant.Add(blocker.End, duration)
		}
	}
	return cur, false
}

// firstBlocker scans a clone of aux for the first occurrence whose state
// intersects from and whose range overlaps probe.
func (m *Mover) firstBlocker(probe instant.Range) (instant.Range, bool) {
	scan := m.aux.Clone()
	for i := 0; i < maxGapSearch; i++ {
		e := scan.Next()
		if e.IsNull() {
			return instant.Range{}, false
		}
		if e.States&m.from != 0 && e.Range().Overlaps(probe) {
			return e.Range(), true
		}
		scan.Pop()
	}
	return instant.Range{}, false
}

func (m *Mover) Clone() Stream {
	cp := &Mover{movers: m.movers.Clone(), dir: m.dir, from: m.from, into: m.into, valid: m.valid}
	if m.aux != nil {
		cp.aux = m.aux.Clone()
	}
	return cp
}

func (m *Mover) SetValid(r instant.Range) { m.valid = r }
func (m *Mover) Valid() instant.Range     { return m.valid }

// Serialize passes through to the underlying movers stream. The MRULE term
// itself (direction, from/into states, and the auxiliary stream's own
// definition) is not reconstructed here: Mover only holds state masks, not
// the interned names needed to write them back out as MRULE text, so a
// round-tripped task loses its mover wiring and keeps its plain schedule.
// See DESIGN.md.
func (m *Mover) Serialize() Fields {
	return m.movers.Serialize()
}
