// Package bitset implements the fixed-width bit-integer sets the recurrence
// rule expander uses to encode by-filters: by-month, by-weekday-with-count,
// by-yearday, and the rest of §3's rrule by-filter fields. Each filter gets
// a width sized to its largest magnitude (31 for day-of-month, 63 for
// ISO week, 383 for day-of-year/Easter-offset/add, 447 for the
// count·8+weekday packing) and an iterator over set bits in ascending
// index order, as the expander's candidate-expansion step requires.
//
// RFC 5545 by-filters are signed (a negative day-of-month counts from the
// end of the month, a negative by-setpos counts from the end of the
// candidate set). Signed encodes this as two parallel Unsigned halves, one
// for positive magnitudes and one for negative, since the exact historical
// bit-packing of sign into a single word is not reproducible without the
// original source and a two-half representation satisfies the same
// contract.
package bitset

// Unsigned is a fixed-width set of non-negative integers in [0, width).
type Unsigned struct {
	width int
	words []uint64
}

// NewUnsigned creates an empty Unsigned set of the given bit width.
func NewUnsigned(width int) *Unsigned {
	return &Unsigned{width: width, words: make([]uint64, (width+63)/64)}
}

// Width returns the set's declared bit width.
func (u *Unsigned) Width() int { return u.width }

// Add sets bit i. Out-of-range i is ignored.
func (u *Unsigned) Add(i int) {
	if i < 0 || i >= u.width {
		return
	}
	u.words[i/64] |= 1 << uint(i%64)
}

// Has reports whether bit i is set.
func (u *Unsigned) Has(i int) bool {
	if i < 0 || i >= u.width {
		return false
	}
	return u.words[i/64]&(1<<uint(i%64)) != 0
}

// IsEmpty reports whether no bits are set.
func (u *Unsigned) IsEmpty() bool {
	if u == nil {
		return true
	}
	for _, w := range u.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of set bits.
func (u *Unsigned) Count() int {
	if u == nil {
		return 0
	}
	n := 0
	for _, w := range u.words {
		for w != 0 {
			w &= w - 1
			n++
		}
	}
	return n
}

// Bits returns the set bits in ascending index order ("natural bit order"
// per the expander's sorting contract).
func (u *Unsigned) Bits() []int {
	if u == nil {
		return nil
	}
	out := make([]int, 0, u.Count())
	for wi, w := range u.words {
		for w != 0 {
			tz := trailingZeros64(w)
			out = append(out, wi*64+tz)
			w &= w - 1
		}
	}
	return out
}

func trailingZeros64(w uint64) int {
	n := 0
	for w&1 == 0 {
		w >>= 1
		n++
	}
	return n
}

// Signed is a fixed-width set of integers in [-width, -1] ∪ [1, width],
// i.e. zero is never a member (RFC 5545 by-filters never accept 0 except
// as the dow "any weekday" count sentinel, handled separately by callers).
type Signed struct {
	width    int
	Positive *Unsigned // bit i represents value i+1
	Negative *Unsigned // bit i represents value -(i+1)
}

// NewSigned creates an empty Signed set covering magnitudes [1, width].
func NewSigned(width int) *Signed {
	return &Signed{width: width, Positive: NewUnsigned(width), Negative: NewUnsigned(width)}
}

// Width returns the set's declared magnitude width.
func (s *Signed) Width() int { return s.width }

// Add adds signed value v (v != 0; v == 0 is ignored).
func (s *Signed) Add(v int) {
	switch {
	case v > 0:
		s.Positive.Add(v - 1)
	case v < 0:
		s.Negative.Add(-v - 1)
	}
}

// Has reports whether v is a member.
func (s *Signed) Has(v int) bool {
	switch {
	case v > 0:
		return s.Positive.Has(v - 1)
	case v < 0:
		return s.Negative.Has(-v - 1)
	default:
		return false
	}
}

// IsEmpty reports whether no values are set.
func (s *Signed) IsEmpty() bool {
	return s == nil || (s.Positive.IsEmpty() && s.Negative.IsEmpty())
}

// PositiveValues returns the positive members in ascending order.
func (s *Signed) PositiveValues() []int {
	bits := s.Positive.Bits()
	out := make([]int, len(bits))
	for i, b := range bits {
		out[i] = b + 1
	}
	return out
}

// NegativeValues returns the negative members in ascending magnitude order
// (-1, -2, -3, ...).
func (s *Signed) NegativeValues() []int {
	bits := s.Negative.Bits()
	out := make([]int, len(bits))
	for i, b := range bits {
		out[i] = -(b + 1)
	}
	return out
}

// Resolve returns every member of s converted to a positive day-of-month
// (or day-of-year, etc.) index against a concrete size, e.g. the number of
// days in a specific month for BYMONTHDAY, or the candidate-set size for
// BYSETPOS. Negative values count from the end (size+v+1); values that
// fall outside [1, size] after resolution are dropped, matching "positions
// beyond the set size are ignored" (§4.2).
func (s *Signed) Resolve(size int) []int {
	out := make([]int, 0, s.Positive.Count()+s.Negative.Count())
	for _, v := range s.PositiveValues() {
		if v <= size {
			out = append(out, v)
		}
	}
	for _, v := range s.NegativeValues() {
		r := size + v + 1
		if r >= 1 && r <= size {
			out = append(out, r)
		}
	}
	return out
}

// Widths matching the data model's by-filter fields.
const (
	WidthDOM    = 31  // day-of-month, ±1..31
	WidthDOY    = 383 // day-of-year, ±1..366
	WidthDOW    = 447 // weekday-with-count, count·8+weekday
	WidthWeek   = 63  // ISO week, ±1..53
	WidthPos    = 383 // by-setpos
	WidthEaster = 383 // Easter day offset
	WidthAdd    = 383 // additive day offsets
)
