package ical

import (
	"fmt"
	"strconv"
	"strings"

	"echse/internal/bitset"
	"echse/internal/instant"
	"echse/internal/rrule"
)

// FormatRule renders r as an RRULE/XRULE term value, the inverse of
// parseRule. Only filters actually set are emitted, in the same order
// parseRule reads them.
func FormatRule(r rrule.Rule) string {
	var terms []string
	if freq := formatFreq(r.Freq); freq != "" {
		terms = append(terms, "FREQ="+freq)
	}
	if r.Interval != 0 && r.Interval != 1 {
		terms = append(terms, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if r.Count != rrule.Unbounded && r.Count != 0 {
		terms = append(terms, "COUNT="+strconv.FormatInt(r.Count, 10))
	}
	if !r.Until.IsNull() {
		terms = append(terms, "UNTIL="+r.Until.String())
	}
	if r.WeekStart != 0 && r.WeekStart != 1 {
		terms = append(terms, "WKST="+weekdayName(r.WeekStart))
	}
	if !r.ByMonth.IsEmpty() {
		terms = append(terms, "BYMONTH="+joinInts(shiftUp(r.ByMonth.Bits(), 1)))
	}
	if !r.ByMonthDay.IsEmpty() {
		terms = append(terms, "BYMONTHDAY="+joinInts(signedValues(r.ByMonthDay)))
	}
	if !r.ByYearDay.IsEmpty() {
		terms = append(terms, "BYYEARDAY="+joinInts(signedValues(r.ByYearDay)))
	}
	if !r.ByWeekNo.IsEmpty() {
		terms = append(terms, "BYWEEKNO="+joinInts(signedValues(r.ByWeekNo)))
	}
	if !r.BySetPos.IsEmpty() {
		terms = append(terms, "BYSETPOS="+joinInts(signedValues(r.BySetPos)))
	}
	if !r.ByEaster.IsEmpty() {
		terms = append(terms, "BYEASTER="+joinInts(signedValues(r.ByEaster)))
	}
	if !r.ByAdd.IsEmpty() {
		terms = append(terms, "BYADD="+joinInts(signedValues(r.ByAdd)))
	}
	if !r.ByHour.IsEmpty() {
		terms = append(terms, "BYHOUR="+joinInts(r.ByHour.Bits()))
	}
	if !r.ByMinute.IsEmpty() {
		terms = append(terms, "BYMINUTE="+joinInts(r.ByMinute.Bits()))
	}
	if !r.BySecond.IsEmpty() {
		terms = append(terms, "BYSECOND="+joinInts(r.BySecond.Bits()))
	}
	if len(r.ByDay) > 0 {
		entries := make([]string, len(r.ByDay))
		for i, e := range r.ByDay {
			entries[i] = formatWeekdayEntry(e)
		}
		terms = append(terms, "BYDAY="+strings.Join(entries, ","))
	}
	return strings.Join(terms, ";")
}

func formatFreq(f rrule.Frequency) string {
	switch f {
	case rrule.Yearly:
		return "YEARLY"
	case rrule.Monthly:
		return "MONTHLY"
	case rrule.Weekly:
		return "WEEKLY"
	case rrule.Daily:
		return "DAILY"
	case rrule.Hourly:
		return "HOURLY"
	case rrule.Minutely:
		return "MINUTELY"
	case rrule.Secondly:
		return "SECONDLY"
	default:
		return ""
	}
}

var weekdayNames = map[int]string{
	1: "MO", 2: "TU", 3: "WE", 4: "TH", 5: "FR", 6: "SA", 7: "SU",
}

func weekdayName(w int) string {
	if n, ok := weekdayNames[w]; ok {
		return n
	}
	return "MO"
}

func formatWeekdayEntry(e rrule.WeekdayEntry) string {
	if e.Count == 0 {
		return weekdayName(e.Weekday)
	}
	return strconv.Itoa(e.Count) + weekdayName(e.Weekday)
}

// shiftUp converts ascending zero-based bit indices back to their
// one-based term values (BYMONTH's bit i represents month i+1).
func shiftUp(bits []int, by int) []int {
	out := make([]int, len(bits))
	for i, b := range bits {
		out[i] = b + by
	}
	return out
}

func signedValues(s *bitset.Signed) []int {
	out := append([]int{}, s.PositiveValues()...)
	out = append(out, s.NegativeValues()...)
	return out
}

// FormatDuration renders d as an RFC-5545 DURATION value, whole seconds
// only — the precision the data model's instant stores besides
// milliseconds, which a scheduled task's duration never carries.
func FormatDuration(d instant.Duration) string {
	secs := d.Seconds()
	if secs < 0 {
		return fmt.Sprintf("-PT%dS", -secs)
	}
	return fmt.Sprintf("PT%dS", secs)
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}
