// Package rrule implements the RFC-5545 recurrence-rule expander (§4.2):
// given a rule and a prototype instant, it produces, in ascending order,
// the instants that satisfy the rule, honoring every by-filter, set-pos
// clipping, Easter offset, count and until bound.
package rrule

import (
	"echse/internal/bitset"
	"echse/internal/instant"
)

// Frequency is the rule's recurrence granularity.
type Frequency int

const (
	None Frequency = iota
	Secondly
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

// Unbounded is the Count sentinel meaning the rule never exhausts on its
// own (bounded only by Until, or never).
const Unbounded int64 = -1

// WeekdayEntry is one BYDAY term: an ISO weekday (1=Monday..7=Sunday) with
// an optional ordinal count (e.g. "2MO" is {Count: 2, Weekday: Monday}).
// Count == 0 means "every occurrence of this weekday in the period".
type WeekdayEntry struct {
	Count   int
	Weekday int
}

// Rule is a single recurrence rule, corresponding to one RRULE or XRULE
// line plus any MRULE mover terms layered on top by the event-stream
// algebra.
type Rule struct {
	Freq     Frequency
	Interval int

	// Count is the number of occurrences remaining: Unbounded (-1) means
	// never exhausted by count; 0 means already exhausted. A freshly
	// parsed COUNT=N rule starts at N.
	Count int64

	// Until is the null instant when the rule has no end bound.
	Until instant.Instant

	ByMonth    *bitset.Unsigned // bit i represents month i+1, i.e. 1..12
	ByMonthDay *bitset.Signed   // ±1..31
	ByYearDay  *bitset.Signed   // ±1..366
	ByWeekNo   *bitset.Signed   // ±1..53
	ByDay      []WeekdayEntry
	ByHour     *bitset.Unsigned // 0..23
	ByMinute   *bitset.Unsigned // 0..59
	BySecond   *bitset.Unsigned // 0..60
	BySetPos   *bitset.Signed   // by-setpos, ±1..N
	ByEaster   *bitset.Signed   // days offset from Easter Sunday
	ByAdd      *bitset.Signed   // extension: additive day offsets

	// WeekStart is the ISO weekday (1..7) that begins a week for
	// BYWEEKNO/WEEKLY purposes. Defaults to Monday (1) when zero.
	WeekStart int
}

// New returns a Rule with Interval 1, Count Unbounded, and every by-filter
// set allocated empty, ready for a caller to populate selectively.
func New(freq Frequency) Rule {
	return Rule{
		Freq:       freq,
		Interval:   1,
		Count:      Unbounded,
		ByMonth:    bitset.NewUnsigned(12),
		ByMonthDay: bitset.NewSigned(bitset.WidthDOM),
		ByYearDay:  bitset.NewSigned(bitset.WidthDOY),
		ByWeekNo:   bitset.NewSigned(bitset.WidthWeek),
		ByHour:     bitset.NewUnsigned(24),
		ByMinute:   bitset.NewUnsigned(60),
		BySecond:   bitset.NewUnsigned(61),
		BySetPos:   bitset.NewSigned(bitset.WidthPos),
		ByEaster:   bitset.NewSigned(bitset.WidthEaster),
		ByAdd:      bitset.NewSigned(bitset.WidthAdd),
		WeekStart:  1,
	}
}

// Illegal reports whether the rule can never produce an occurrence:
// frequency None, non-positive interval, or an exhausted count.
func (r Rule) Illegal() bool {
	return r.Freq == None || r.Interval <= 0 || r.Count == 0
}
