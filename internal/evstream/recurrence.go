package evstream

import (
	"echse/internal/instant"
	"echse/internal/intern"
	"echse/internal/rrule"
)

// refillBatch is the recurrence cache's refill size (§4.3: "cache buffer
// of up to 64 refills at a time via §4.2").
const refillBatch = 64

// Recurrence is a stream driven by a recurrence rule: it refills a cache
// buffer from the expander in batches, mapping each occurrence instant
// onto a copy of the prototype event. XDATE/XRULE subtraction removes
// matching occurrences before they ever reach the cache.
//
// The spec's "reference counter guards the underlying rule" detail (so
// multiple mux'd streams from one VEVENT can share an immutable Rule) is
// unnecessary in Go: the garbage collector already keeps the bitset
// pointers embedded in rrule.Rule alive for as long as any clone
// references them, and those bitsets are never mutated after construction
// (each rrule.State decrements only its own copy of Count).
type Recurrence struct {
	protoTask   intern.Handle
	protoStates intern.StateMask
	duration    instant.Duration

	gen *rrule.State

	xdates []instant.Instant
	xrules []*rrule.State

	cache    []Event
	cacheIdx int
	valid    instant.Range
}

// NewRecurrence creates a Recurrence stream for rule anchored at proto,
// producing events of the given duration, task handle and state-set.
func NewRecurrence(rule rrule.Rule, proto instant.Instant, duration instant.Duration, task intern.Handle, states intern.StateMask) *Recurrence {
	return &Recurrence{
		protoTask:   task,
		protoStates: states,
		duration:    duration,
		gen:         rrule.NewState(rule, proto),
		valid:       instant.Max,
	}
}

// Exclude attaches XDATE instants (subtracted by exact instant match) and
// XRULE generators (subtracted by rule membership), per the parser's
// "RRULE+RDATE minus XRULE+XDATE" construction (§4.1). Must be called
// before the first Next.
func (r *Recurrence) Exclude(xdates []instant.Instant, xrules []rrule.Rule, proto instant.Instant) {
	r.xdates = append(r.xdates, xdates...)
	for _, xr := range xrules {
		r.xrules = append(r.xrules, rrule.NewState(xr, proto))
	}
}

func (r *Recurrence) excluded(i instant.Instant) bool {
	for _, xd := range r.xdates {
		if instant.Compare(xd, i) == 0 {
			return true
		}
	}
	for _, xs := range r.xrules {
		if xruleMatches(xs, i) {
			return true
		}
	}
	return false
}

// xruleMatches drains xs until it reaches or passes i, reporting whether
// one of its occurrences lands exactly on i.
func xruleMatches(xs *rrule.State, i instant.Instant) bool {
	for {
		batch := xs.Fill(1)
		if len(batch) == 0 {
			return false
		}
		c := instant.Compare(batch[0], i)
		if c == 0 {
			return true
		}
		if c > 0 {
			return false
		}
	}
}

// ensureCache refills the cache whenever it has been fully consumed,
// skipping batches that are entirely excluded until one yields a surviving
// occurrence or the generator is exhausted.
func (r *Recurrence) ensureCache() {
	for r.cacheIdx >= len(r.cache) {
		if r.gen.Done() {
			return
		}
		batch := r.gen.Fill(refillBatch)
		if len(batch) == 0 {
			return
		}
		next := r.cache[:0]
		for _, occ := range batch {
			if r.excluded(occ) {
				continue
			}
			next = append(next, Event{
				From:   occ,
				Till:   instant.Add(occ, r.duration),
				Task:   r.protoTask,
				States: r.protoStates,
			})
		}
		r.cache = next
		r.cacheIdx = 0
		if len(r.cache) > 0 {
			return
		}
	}
}

func (r *Recurrence) Next() Event {
	for {
		r.ensureCache()
		if r.cacheIdx >= len(r.cache) {
			return Null
		}
		e := r.cache[r.cacheIdx]
		if !r.valid.Contains(e.From) {
			r.cacheIdx++
			continue
		}
		return e
	}
}

func (r *Recurrence) Pop() {
	if !r.Next().IsNull() {
		r.cacheIdx++
	}
}

func (r *Recurrence) Clone() Stream {
	cp := &Recurrence{
		protoTask:   r.protoTask,
		protoStates: r.protoStates,
		duration:    r.duration,
		gen:         r.gen.Clone(),
		valid:       r.valid,
		xdates:      append([]instant.Instant{}, r.xdates...),
		cache:       append([]Event{}, r.cache...),
		cacheIdx:    r.cacheIdx,
	}
	for _, xs := range r.xrules {
		cp.xrules = append(cp.xrules, xs.Clone())
	}
	return cp
}

func (r *Recurrence) SetValid(v instant.Range) { r.valid = v }
func (r *Recurrence) Valid() instant.Range     { return r.valid }

// Serialize renders the generator's rule as RRULE, anchored at its
// prototype instant as DTStart, plus any attached XDATE/XRULE exclusions.
func (r *Recurrence) Serialize() Fields {
	out := Fields{
		DTStart:  r.gen.Proto(),
		Duration: r.duration,
		RRules:   []rrule.Rule{r.gen.Rule()},
		XDates:   append([]instant.Instant{}, r.xdates...),
	}
	for _, xs := range r.xrules {
		out.XRules = append(out.XRules, xs.Rule())
	}
	return out
}
