package rrule

import (
	"sort"

	"echse/internal/bitset"
	"echse/internal/instant"
)

func daysInMonthLocal(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeapLocal(year) {
			return 29
		}
		return 28
	default:
		return 30
	}
}

func isLeapLocal(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// weekdayOf returns the ISO weekday (1=Mon..7=Sun) of year-month-day.
func weekdayOf(year, month, day int) int {
	return instant.AllDay(int16(year), uint8(month), uint8(day)).Weekday()
}

// expandByYearDay resolves BYYEARDAY against a concrete year, filtered by
// the weekday mask when BYDAY terms (without counts) are also present.
func expandByYearDay(year int, doy *bitset.Signed, byday []WeekdayEntry) []candidate {
	size := 365
	if isLeapLocal(year) {
		size = 366
	}
	days := doy.Resolve(size)
	out := make([]candidate, 0, len(days))
	for _, d := range days {
		m, day := monthDayFromYearDay(year, d)
		if m == 0 {
			continue
		}
		if len(byday) > 0 && !weekdayMatches(byday, weekdayOf(year, m, day)) {
			continue
		}
		out = append(out, candidate{year: year, month: m, day: day})
	}
	sortCandidates(out)
	return out
}

func monthDayFromYearDay(year, yday int) (month, day int) {
	remaining := yday
	for m := 1; m <= 12; m++ {
		dim := daysInMonthLocal(year, m)
		if remaining <= dim {
			return m, remaining
		}
		remaining -= dim
	}
	return 0, 0
}

// expandByEaster resolves BYEASTER offsets against Easter Sunday for the
// year, then filters by BYMONTH/BYMONTHDAY when present.
func expandByEaster(year int, offsets *bitset.Signed, byMonth *bitset.Unsigned, byMonthDay *bitset.Signed) []candidate {
	em, ed := EasterSunday(year)
	easter := instant.AllDay(int16(year), uint8(em), uint8(ed))

	all := append(append([]int{}, offsets.PositiveValues()...), offsets.NegativeValues()...)
	out := make([]candidate, 0, len(all))
	for _, off := range all {
		occ := easter.AddDays(off)
		if int(occ.Year) != year {
			continue
		}
		if !byMonth.IsEmpty() && !byMonth.Has(int(occ.Month)-1) {
			continue
		}
		if !byMonthDay.IsEmpty() {
			dim := daysInMonthLocal(int(occ.Year), int(occ.Month))
			matched := false
			for _, d := range byMonthDay.Resolve(dim) {
				if d == int(occ.Day) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, candidate{year: year, month: int(occ.Month), day: int(occ.Day)})
	}
	sortCandidates(out)
	return out
}

// nthWeekdayInMonths resolves BYDAY entries that carry an ordinal count
// (e.g. "2MO", "-1FR") against each named month of year.
func nthWeekdayInMonths(year int, months []int, byday []WeekdayEntry) []candidate {
	out := []candidate{}
	for _, m := range months {
		dim := daysInMonthLocal(year, m)
		for _, e := range byday {
			if e.Count == 0 {
				continue
			}
			d := nthWeekdayOfMonth(year, m, dim, e.Weekday, e.Count)
			if d > 0 {
				out = append(out, candidate{year: year, month: m, day: d})
			}
		}
	}
	sortCandidates(out)
	return out
}

// nthWeekdayOfMonth returns the day-of-month of the count'th occurrence of
// weekday in (year, month), or 0 if it does not exist (e.g. a 5th Monday
// that month lacks, per §4.2's tie-break policy).
func nthWeekdayOfMonth(year, month, dim, weekday, count int) int {
	if count > 0 {
		n := 0
		for d := 1; d <= dim; d++ {
			if weekdayOf(year, month, d) == weekday {
				n++
				if n == count {
					return d
				}
			}
		}
		return 0
	}
	n := 0
	for d := dim; d >= 1; d-- {
		if weekdayOf(year, month, d) == weekday {
			n--
			if n == count {
				return d
			}
		}
	}
	return 0
}

// allWeekdaysInMonths resolves every matching weekday (BYDAY without
// counts) across the named months.
func allWeekdaysInMonths(year int, months []int, byday []WeekdayEntry) []candidate {
	out := []candidate{}
	for _, m := range months {
		dim := daysInMonthLocal(year, m)
		for d := 1; d <= dim; d++ {
			if weekdayMatches(byday, weekdayOf(year, m, d)) {
				out = append(out, candidate{year: year, month: m, day: d})
			}
		}
	}
	sortCandidates(out)
	return out
}

// weekNoWeekdays resolves BYDAY (without counts) against ISO weeks named
// by BYWEEKNO.
func weekNoWeekdays(year int, weeks *bitset.Signed, byday []WeekdayEntry, weekStart int) []candidate {
	isoWeeksInYear := isoWeekCount(year)
	weekNums := weeks.Resolve(isoWeeksInYear)
	out := []candidate{}
	for _, wn := range weekNums {
		for d := 1; d <= 7; d++ {
			y, m, day := dateFromISOWeek(year, wn, d)
			if y != year {
				continue
			}
			if weekdayMatches(byday, weekdayOf(y, m, day)) {
				out = append(out, candidate{year: y, month: m, day: day})
			}
		}
	}
	sortCandidates(out)
	return out
}

func isoWeekCount(year int) int {
	// A year has 53 ISO weeks iff Jan 1 or Dec 31 falls on a Thursday
	// (i.e. the year starts on a Thursday, or is a leap year starting on
	// a Wednesday).
	jan1 := weekdayOf(year, 1, 1)
	if jan1 == 4 {
		return 53
	}
	if jan1 == 3 && isLeapLocal(year) {
		return 53
	}
	return 52
}

// dateFromISOWeek returns the Gregorian date of ISO weekday wd (1..7) in
// ISO week wn of isoYear.
func dateFromISOWeek(isoYear, wn, wd int) (year, month, day int) {
	jan4 := instant.AllDay(int16(isoYear), 1, 4)
	jan4Weekday := jan4.Weekday()
	weekOneMonday := jan4.AddDays(-(jan4Weekday - 1))
	target := weekOneMonday.AddDays((wn-1)*7 + (wd - 1))
	return int(target.Year), int(target.Month), int(target.Day)
}

func sortCandidates(c []candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].year != c[j].year {
			return c[i].year < c[j].year
		}
		if c[i].month != c[j].month {
			return c[i].month < c[j].month
		}
		return c[i].day < c[j].day
	})
}

// applySetPos clips days by ordinal position within the expanded set, per
// §4.2 step 3. The full set must be materialized first since negative
// positions count from the end.
func applySetPos(days []candidate, pos *bitset.Signed) []candidate {
	if pos == nil || pos.IsEmpty() {
		return days
	}
	idx := pos.Resolve(len(days))
	sort.Ints(idx)
	out := make([]candidate, 0, len(idx))
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, days[i-1])
	}
	sortCandidates(out)
	return out
}

// applyAdd adds the BYADD day offsets to each candidate, re-normalizing
// month/year boundaries via instant.Fixup, per §4.2 step 4. BYADD runs
// after BYSETPOS per the precedence decision recorded in DESIGN.md.
func applyAdd(days []candidate, add *bitset.Signed) []candidate {
	if add == nil || add.IsEmpty() {
		return days
	}
	offsets := append(append([]int{}, add.PositiveValues()...), add.NegativeValues()...)
	out := make([]candidate, 0, len(days)*len(offsets))
	for _, c := range days {
		for _, off := range offsets {
			y, m, d := instant.Fixup(int16(c.year), c.month, c.day+off)
			out = append(out, candidate{year: int(y), month: int(m), day: int(d)})
		}
	}
	sortCandidates(out)
	return out
}
