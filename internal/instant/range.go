package instant

// Range is the half-open interval [Begin, End).
type Range struct {
	Begin, End Instant
}

// Max is the widest representable range, spanning the null instant up to
// the maximum encodable instant.
var Max = Range{Begin: Null, End: Instant{Year: 1<<15 - 1, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 59, Milli: 999}}

// Empty reports whether r contains no instants.
func (r Range) Empty() bool {
	return !Before(r.Begin, r.End)
}

// Contains reports whether i falls within [Begin, End).
func (r Range) Contains(i Instant) bool {
	return !Before(i, r.Begin) && Before(i, r.End)
}

// Overlaps reports whether r and o share any instant.
func (r Range) Overlaps(o Range) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return Before(r.Begin, o.End) && Before(o.Begin, r.End)
}
