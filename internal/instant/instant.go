// Package instant implements the calendar instant and duration arithmetic
// that every other echse component is built on: a single 64-bit timestamp
// with year/month/day/hour/minute/second/millisecond fields, addition,
// subtraction, comparison, and normalization ("fixup") of overflowed
// components.
//
// Instant deliberately stays a plain value type — no pointers, no
// allocation — since recurrence expansion and event-stream composition
// create and compare enormous numbers of them.
package instant

import (
	"fmt"
	"time"
)

// Sentinel field values, per the data model.
const (
	allDayHour    = 0xFF
	wholeSecondMs = 0x3FF
)

// Instant is a calendar date-time down to millisecond precision, or an
// all-day instant when Hour == allDayHour. Zone and Scale are handles into
// the interning tables (see internal/intern); they participate in equality
// but not in Compare, which only orders instants known to share a zone and
// scale (the spec's monotonicity guarantee is scoped the same way).
type Instant struct {
	Year   int16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
	Milli  uint16
	Zone   uint8
	Scale  uint8
}

// Null is the zero Instant: all bits zero, meaning "no instant".
var Null Instant

// IsNull reports whether i is the null instant.
func (i Instant) IsNull() bool {
	return i == Null
}

// AllDay constructs an all-day instant for the given date.
func AllDay(year int16, month, day uint8) Instant {
	return Instant{Year: year, Month: month, Day: day, Hour: allDayHour}
}

// New constructs a full date-time instant at whole-second precision.
func New(year int16, month, day, hour, minute, second uint8) Instant {
	return Instant{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: second, Milli: wholeSecondMs}
}

// NewMilli constructs a date-time instant with explicit milliseconds.
func NewMilli(year int16, month, day, hour, minute, second uint8, milli uint16) Instant {
	return Instant{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: second, Milli: milli}
}

// IsAllDay reports whether i has no meaningful time-of-day component.
func (i Instant) IsAllDay() bool { return i.Hour == allDayHour }

// IsWholeSecond reports whether i carries no sub-second precision.
func (i Instant) IsWholeSecond() bool { return i.Milli == wholeSecondMs }

// Valid reports whether i satisfies the data-model invariant: either
// all-day, or Hour <= 23.
func (i Instant) Valid() bool {
	return i.IsAllDay() || i.Hour <= 23
}

// Encode packs the date-time fields into a 64-bit value whose ordering is
// monotone in lexicographic (year, month, day, hour, minute, second,
// milli) for instants sharing a zone and scale, per the data model. The
// all-day and whole-second sentinels sort as their literal field values
// (0xFF, 0x3FF), i.e. after any concrete time-of-day — the opposite of RFC
// 5545's convention that an all-day VEVENT's DTSTART is taken to occur at
// the start of that day when compared against timed instants sharing the
// same date (the ordering Compare uses), so callers that need that
// ordering should special-case IsAllDay() before calling Encode.
func (i Instant) Encode() uint64 {
	u := uint64(uint16(i.Year))
	u = u<<8 | uint64(i.Month)
	u = u<<8 | uint64(i.Day)
	u = u<<8 | uint64(i.Hour)
	u = u<<8 | uint64(i.Minute)
	u = u<<6 | uint64(i.Second&0x3F)
	u = u<<10 | uint64(i.Milli&0x3FF)
	return u
}

// Compare orders a and b. It returns a negative number, zero, or a positive
// number as a is before, equal to, or after b. All-day instants compare by
// date only; a date-time and an all-day instant on the same date compare
// with the all-day instant first (start of day).
func Compare(a, b Instant) int {
	if c := cmp(int(a.Year), int(b.Year)); c != 0 {
		return c
	}
	if c := cmp(int(a.Month), int(b.Month)); c != 0 {
		return c
	}
	if c := cmp(int(a.Day), int(b.Day)); c != 0 {
		return c
	}
	aAllDay, bAllDay := a.IsAllDay(), b.IsAllDay()
	if aAllDay != bAllDay {
		if aAllDay {
			return -1
		}
		return 1
	}
	if aAllDay {
		return 0
	}
	if c := cmp(int(a.Hour), int(b.Hour)); c != 0 {
		return c
	}
	if c := cmp(int(a.Minute), int(b.Minute)); c != 0 {
		return c
	}
	if c := cmp(int(a.Second), int(b.Second)); c != 0 {
		return c
	}
	aMilli, bMilli := a.Milli, b.Milli
	if aMilli == wholeSecondMs {
		aMilli = 0
	}
	if bMilli == wholeSecondMs {
		bMilli = 0
	}
	return cmp(int(aMilli), int(bMilli))
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether a strictly precedes b.
func Before(a, b Instant) bool { return Compare(a, b) < 0 }

// After reports whether a strictly follows b.
func After(a, b Instant) bool { return Compare(a, b) > 0 }

// daysInMonth returns the number of days in the given month of the given
// year, accounting for leap years.
func daysInMonth(year int16, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeap(year) {
			return 29
		}
		return 28
	default:
		return 30
	}
}

func isLeap(year int16) bool {
	y := int(year)
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// Fixup normalizes an out-of-range (year, month, day) triple by carrying
// overflow into higher components: fixup(y, 2, 30) collapses to March 2 (or
// March 1 in a leap year, since February 29 already exists); fixup(y, 13, 1)
// collapses to (y+1, 1, 1). Hour/minute/second/milli are assumed already
// in range and passed through unchanged.
func Fixup(year int16, month, day int) (int16, uint8, uint8) {
	// Normalize month into [1,12], carrying into year.
	for month < 1 {
		month += 12
		year--
	}
	for month > 12 {
		month -= 12
		year++
	}
	// Normalize day by walking month-by-month; day may be arbitrarily out
	// of range (BYADD offsets can push it far past a single month).
	for day < 1 {
		month--
		if month < 1 {
			month = 12
			year--
		}
		day += daysInMonth(year, month)
	}
	for {
		dim := daysInMonth(year, month)
		if day <= dim {
			break
		}
		day -= dim
		month++
		if month > 12 {
			month = 1
			year++
		}
	}
	return year, uint8(month), uint8(day)
}

// AddDays returns i with n days added to its date component, normalizing
// via Fixup. Time-of-day fields are unchanged.
func (i Instant) AddDays(n int) Instant {
	y, m, d := Fixup(i.Year, int(i.Month), int(i.Day)+n)
	i.Year, i.Month, i.Day = y, m, d
	return i
}

// Add returns i advanced by d, a signed count of milliseconds, carrying
// overflow through seconds, minutes, hours and into the date via Fixup.
// All-day instants ignore time-of-day components and only carry whole-day
// offsets (d rounded toward zero to whole days).
func Add(i Instant, d Duration) Instant {
	if i.IsAllDay() {
		days := int(d.Millis / int64(millisPerDay))
		return i.AddDays(days)
	}
	total := int64(i.Hour)*int64(millisPerHour) +
		int64(i.Minute)*int64(millisPerMinute) +
		int64(i.Second)*int64(millisPerSecond) +
		int64(milliOf(i)) + d.Millis

	days := 0
	for total < 0 {
		total += int64(millisPerDay)
		days--
	}
	for total >= int64(millisPerDay) {
		total -= int64(millisPerDay)
		days++
	}

	hour := total / int64(millisPerHour)
	total -= hour * int64(millisPerHour)
	minute := total / int64(millisPerMinute)
	total -= minute * int64(millisPerMinute)
	second := total / int64(millisPerSecond)
	milli := total - second*int64(millisPerSecond)

	out := i.AddDays(days)
	out.Hour = uint8(hour)
	out.Minute = uint8(minute)
	out.Second = uint8(second)
	if i.IsWholeSecond() && milli == 0 {
		out.Milli = wholeSecondMs
	} else {
		out.Milli = uint16(milli)
	}
	return out
}

func milliOf(i Instant) uint16 {
	if i.IsWholeSecond() {
		return 0
	}
	return i.Milli
}

// Sub returns the signed duration from b to a (a - b), i.e. Add(b, Sub(a,
// b)) == a for instants sharing a zone and scale. Dates are converted via
// a proleptic day count so multi-year spans are handled without iterating
// day by day.
func Sub(a, b Instant) Duration {
	aDays := dayNumber(a.Year, int(a.Month), int(a.Day))
	bDays := dayNumber(b.Year, int(b.Month), int(b.Day))
	millisA := timeOfDayMillis(a)
	millisB := timeOfDayMillis(b)
	return Duration{Millis: int64(aDays-bDays)*int64(millisPerDay) + millisA - millisB}
}

func timeOfDayMillis(i Instant) int64 {
	if i.IsAllDay() {
		return 0
	}
	return int64(i.Hour)*int64(millisPerHour) +
		int64(i.Minute)*int64(millisPerMinute) +
		int64(i.Second)*int64(millisPerSecond) +
		int64(milliOf(i))
}

// dayNumber returns a proleptic Gregorian day count (not tied to any epoch)
// suitable only for differencing.
func dayNumber(year int16, month, day int) int {
	y, m := int(year), month
	if m <= 2 {
		y--
		m += 12
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := y - era*400
	doy := (153*(m-3)+2)/5 + day - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe
}

// Time converts i to a time.Time in UTC, the form the daemon's timer
// library wants (§4.4: "returns its UTC-epoch time to the timer
// library"). An all-day instant converts to its midnight.
func (i Instant) Time() time.Time {
	hour, min, sec, ms := 0, 0, 0, 0
	if !i.IsAllDay() {
		hour, min, sec = int(i.Hour), int(i.Minute), int(i.Second)
		if !i.IsWholeSecond() {
			ms = int(i.Milli)
		}
	}
	return time.Date(int(i.Year), time.Month(i.Month), int(i.Day), hour, min, sec, ms*1e6, time.UTC)
}

// FromTime converts t (in UTC) to an Instant at millisecond precision.
func FromTime(t time.Time) Instant {
	t = t.UTC()
	return NewMilli(int16(t.Year()), uint8(t.Month()), uint8(t.Day()),
		uint8(t.Hour()), uint8(t.Minute()), uint8(t.Second()), uint16(t.Nanosecond()/1e6))
}

// Now returns the current instant in UTC, the clock source for VJOURNAL
// completion timestamps and helper bookkeeping.
func Now() Instant {
	return FromTime(time.Now())
}

func (i Instant) String() string {
	if i.IsAllDay() {
		return fmt.Sprintf("%04d%02d%02d", i.Year, i.Month, i.Day)
	}
	if i.IsWholeSecond() {
		return fmt.Sprintf("%04d%02d%02dT%02d%02d%02d", i.Year, i.Month, i.Day, i.Hour, i.Minute, i.Second)
	}
	return fmt.Sprintf("%04d%02d%02dT%02d%02d%02d.%03d", i.Year, i.Month, i.Day, i.Hour, i.Minute, i.Second, i.Milli)
}

// Weekday returns the ISO weekday (1=Monday .. 7=Sunday) of i's date.
func (i Instant) Weekday() int {
	d := dayNumber(i.Year, int(i.Month), int(i.Day))
	// dayNumber(0000-03-01) is a Wednesday epoch origin; derive via mod 7
	// against a known fixed point instead of trusting the origin's weekday.
	// 1970-01-01 is a Thursday (ISO weekday 4) and has a known dayNumber.
	epoch := dayNumber(1970, 1, 1)
	diff := d - epoch
	wd := ((diff+3)%7 + 7) % 7 // 0=Monday
	return wd + 1
}
