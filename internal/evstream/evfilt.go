package evstream

import "echse/internal/instant"

// ExceptionFilter ("evfilt") is the normal-event stream minus an exception
// stream: events whose range overlaps a current exception are dropped, and
// the exception head advances once the normal cursor has moved past it.
// Extra exception ranges added past the underlying exceptions stream via
// AddRange grow by ordinary slice append; Go's exponential slice growth
// already gives the "inline array grown past 16 entries" behaviour the
// original describes, so no manual realloc logic is needed here.
type ExceptionFilter struct {
	normal     Stream
	exceptions Stream
	extra      []instant.Range
	extraIdx   int
	valid      instant.Range
}

// NewExceptionFilter returns normal filtered against exceptions.
func NewExceptionFilter(normal, exceptions Stream) *ExceptionFilter {
	return &ExceptionFilter{normal: normal, exceptions: exceptions, valid: instant.Max}
}

// AddRange appends a further exception range, consulted after the
// exceptions stream is exhausted.
func (f *ExceptionFilter) AddRange(r instant.Range) {
	f.extra = append(f.extra, r)
}

func (f *ExceptionFilter) currentException() (instant.Range, bool) {
	if e := f.exceptions.Next(); !e.IsNull() {
		return e.Range(), true
	}
	if f.extraIdx < len(f.extra) {
		return f.extra[f.extraIdx], true
	}
	return instant.Range{}, false
}

func (f *ExceptionFilter) advanceException() {
	if e := f.exceptions.Next(); !e.IsNull() {
		f.exceptions.Pop()
		return
	}
	if f.extraIdx < len(f.extra) {
		f.extraIdx++
	}
}

func (f *ExceptionFilter) Next() Event {
	for {
		e := f.normal.Next()
		if e.IsNull() {
			return Null
		}
		if exc, ok := f.currentException(); ok {
			if e.Range().Overlaps(exc) {
				f.normal.Pop()
				continue
			}
			if !instant.Before(e.From, exc.End) {
				f.advanceException()
				continue
			}
		}
		if !f.valid.Contains(e.From) {
			f.normal.Pop()
			continue
		}
		return e
	}
}

func (f *ExceptionFilter) Pop() {
	if !f.Next().IsNull() {
		f.normal.Pop()
	}
}

func (f *ExceptionFilter) Clone() Stream {
	return &ExceptionFilter{
		normal:     f.normal.Clone(),
		exceptions: f.exceptions.Clone(),
		extra:      append([]instant.Range{}, f.extra...),
		extraIdx:   f.extraIdx,
		valid:      f.valid,
	}
}

func (f *ExceptionFilter) SetValid(r instant.Range) { f.valid = r }
func (f *ExceptionFilter) Valid() instant.Range     { return f.valid }

// Serialize renders the normal stream's terms as-is and folds the
// exceptions stream's own RRULE/RDATE terms in as this stream's
// XRULE/XDATE terms — the inverse of how buildStream composes the two.
// Extra ranges added via AddRange are rendered as XDATEs at their start.
func (f *ExceptionFilter) Serialize() Fields {
	out := f.normal.Serialize()
	exc := f.exceptions.Serialize()
	if !exc.DTStart.IsNull() {
		out.XDates = append(out.XDates, exc.DTStart)
	}
	out.XDates = append(out.XDates, exc.RDates...)
	out.XRules = append(out.XRules, exc.RRules...)
	for _, r := range f.extra {
		out.XDates = append(out.XDates, r.Begin)
	}
	return out
}
