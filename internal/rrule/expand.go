package rrule

import (
	"sort"

	"echse/internal/bitset"
	"echse/internal/instant"
)

// candidate is a (year, month, day) triple, prior to time multiplication.
type candidate struct {
	year, month, day int
}

// State is the expander's generator state: a rule, a prototype instant,
// and a cursor over the current generator period (year, month, week, or
// tick depending on frequency). Fill produces batches on demand, exactly
// as a coroutine-based generator would (§9 Design Notes).
type State struct {
	rule    Rule
	proto   instant.Instant
	cursor  instant.Instant // period anchor; advances by Interval each round
	started bool
	done    bool
}

// NewState creates expander state for rule anchored at proto. The caller
// owns the returned State; it is not safe for concurrent use (matching the
// event stream's single-owner contract).
func NewState(rule Rule, proto instant.Instant) *State {
	return &State{rule: rule, proto: proto, cursor: proto}
}

// Done reports whether the rule is exhausted (by count, by illegality, or
// because every remaining period is past Until).
func (s *State) Done() bool {
	return s.done || s.rule.Illegal()
}

// Proto returns the anchor instant the rule was constructed against.
func (s *State) Proto() instant.Instant { return s.proto }

// Rule returns the state's current rule. Once Fill has run, Count
// reflects occurrences remaining rather than the originally parsed
// COUNT, which is the correct thing for a caller re-serializing a
// partially-consumed stream: it resumes the remaining schedule, not the
// original one.
func (s *State) Rule() Rule { return s.rule }

// Clone returns an independent copy of s. The copy shares the by-filter
// bitsets embedded in rule (never mutated after construction) but advances
// its own cursor and remaining Count independently of s.
func (s *State) Clone() *State {
	cp := *s
	return &cp
}

// Fill produces up to n further occurrences in strictly ascending order.
// It returns fewer than n (possibly zero) exactly when the rule becomes
// exhausted partway through. Safe to call repeatedly; batches are
// contiguous and non-overlapping (idempotence, §8).
func (s *State) Fill(n int) []instant.Instant {
	if s.Done() || n <= 0 {
		return nil
	}
	out := make([]instant.Instant, 0, n)
	for len(out) < n {
		if s.done {
			break
		}
		period := s.nextPeriod()
		if period == nil && s.done {
			break
		}
		for _, occ := range period {
			if instant.Before(occ, s.proto) {
				continue
			}
			if !s.rule.Until.IsNull() && instant.After(occ, s.rule.Until) {
				s.done = true
				break
			}
			if s.rule.Count == 0 {
				s.done = true
				break
			}
			out = append(out, occ)
			if s.rule.Count > 0 {
				s.rule.Count--
			}
			if s.rule.Count == 0 {
				s.done = true
				break
			}
			if len(out) == n {
				break
			}
		}
	}
	return out
}

// nextPeriod produces the sorted, time-multiplied occurrences for the
// current period and advances the cursor to the next one. It returns nil
// once no further periods exist (practically unreachable since Until/Count
// are the only bounds; guarded defensively against runaway loops on
// pathological rules with no matches for many consecutive periods).
func (s *State) nextPeriod() []instant.Instant {
	const giveUpAfterEmptyPeriods = 4000
	empty := 0
	for {
		if s.rule.Freq == Hourly || s.rule.Freq == Minutely || s.rule.Freq == Secondly {
			occs := s.subDailyTick()
			if occs != nil {
				return occs
			}
			empty++
			if empty > giveUpAfterEmptyPeriods {
				s.done = true
				return nil
			}
			continue
		}

		var days []candidate
		switch s.rule.Freq {
		case Yearly:
			days = s.yearCandidates(int(s.cursor.Year))
			s.advanceYear()
		case Monthly:
			days = s.monthCandidates(int(s.cursor.Year), int(s.cursor.Month))
			s.advanceMonth()
		case Weekly:
			days = s.weekCandidates()
			s.advanceWeek()
		case Daily:
			days = s.dayCandidates()
			s.advanceDay()
		default:
			s.done = true
			return nil
		}

		days = applySetPos(days, s.rule.BySetPos)
		days = applyAdd(days, s.rule.ByAdd)
		occs := s.multiplyTime(days)
		if len(occs) > 0 {
			return occs
		}
		empty++
		if empty > giveUpAfterEmptyPeriods {
			s.done = true
			return nil
		}
	}
}

func (s *State) advanceYear() {
	s.cursor.Year += int16(s.rule.Interval)
}

func (s *State) advanceMonth() {
	m := int(s.cursor.Month) + s.rule.Interval
	y := s.cursor.Year
	for m > 12 {
		m -= 12
		y++
	}
	s.cursor.Year, s.cursor.Month = y, uint8(m)
}

func (s *State) advanceWeek() {
	s.cursor = s.cursor.AddDays(7 * s.rule.Interval)
}

func (s *State) advanceDay() {
	s.cursor = s.cursor.AddDays(s.rule.Interval)
}

// weekCandidates resolves the days of the ISO week anchored at the cursor
// that satisfy BYDAY (defaulting to the prototype's own weekday, per RFC
// 5545 §3.3.10) and, if present, BYMONTH.
func (s *State) weekCandidates() []candidate {
	r := s.rule
	start := startOfWeek(s.cursor, r.WeekStart)
	out := []candidate{}
	for d := 0; d < 7; d++ {
		day := start.AddDays(d)
		wd := day.Weekday()
		if len(r.ByDay) > 0 {
			if !weekdayMatches(r.ByDay, wd) {
				continue
			}
		} else if wd != s.proto.Weekday() {
			continue
		}
		if !r.ByMonth.IsEmpty() && !r.ByMonth.Has(int(day.Month)-1) {
			continue
		}
		out = append(out, candidate{year: int(day.Year), month: int(day.Month), day: int(day.Day)})
	}
	sortCandidates(out)
	return out
}

func startOfWeek(i instant.Instant, weekStart int) instant.Instant {
	if weekStart == 0 {
		weekStart = 1
	}
	offset := (i.Weekday() - weekStart + 7) % 7
	return i.AddDays(-offset)
}

// dayCandidates resolves the single day at the cursor against BYMONTH,
// BYMONTHDAY and BYDAY, returning nil when it fails to match (the caller
// treats a nil result as an empty period and advances again).
func (s *State) dayCandidates() []candidate {
	r := s.rule
	day := s.cursor
	if !r.ByMonth.IsEmpty() && !r.ByMonth.Has(int(day.Month)-1) {
		return nil
	}
	if !r.ByMonthDay.IsEmpty() {
		dim := daysInMonthLocal(int(day.Year), int(day.Month))
		if !containsInt(r.ByMonthDay.Resolve(dim), int(day.Day)) {
			return nil
		}
	}
	if len(r.ByDay) > 0 && !weekdayMatches(r.ByDay, day.Weekday()) {
		return nil
	}
	return []candidate{{year: int(day.Year), month: int(day.Month), day: int(day.Day)}}
}

// subDailyTick advances the cursor by one Interval-sized tick of an
// hourly/minutely/secondly rule and reports the resulting instant, or nil
// if the tick fails BYMONTH/BYMONTHDAY/BYDAY/BYHOUR/BYMINUTE/BYSECOND —
// the caller treats a nil result as an empty period and ticks again.
func (s *State) subDailyTick() []instant.Instant {
	if !s.started {
		s.started = true
	} else {
		var step instant.Duration
		switch s.rule.Freq {
		case Hourly:
			step = instant.FromHours(int64(s.rule.Interval))
		case Minutely:
			step = instant.FromMinutes(int64(s.rule.Interval))
		case Secondly:
			step = instant.FromSeconds(int64(s.rule.Interval))
		}
		s.cursor = instant.Add(s.cursor, step)
	}

	r := s.rule
	if !r.ByMonth.IsEmpty() && !r.ByMonth.Has(int(s.cursor.Month)-1) {
		return nil
	}
	if !r.ByMonthDay.IsEmpty() {
		dim := daysInMonthLocal(int(s.cursor.Year), int(s.cursor.Month))
		if !containsInt(r.ByMonthDay.Resolve(dim), int(s.cursor.Day)) {
			return nil
		}
	}
	if len(r.ByDay) > 0 && !weekdayMatches(r.ByDay, s.cursor.Weekday()) {
		return nil
	}
	if !r.ByHour.IsEmpty() && !r.ByHour.Has(int(s.cursor.Hour)) {
		return nil
	}
	if !r.ByMinute.IsEmpty() && !r.ByMinute.Has(int(s.cursor.Minute)) {
		return nil
	}
	if !r.BySecond.IsEmpty() && !r.BySecond.Has(int(s.cursor.Second)) {
		return nil
	}
	return []instant.Instant{s.cursor}
}

func containsInt(haystack []int, v int) bool {
	for _, h := range haystack {
		if h == v {
			return true
		}
	}
	return false
}

// multiplyTime crosses each candidate day with BYHOUR×BYMINUTE×BYSECOND
// (falling back to the prototype's own time-of-day when unset), per §4.2's
// final expansion step. An all-day prototype produces all-day instants and
// ignores time-of-day filters entirely.
func (s *State) multiplyTime(days []candidate) []instant.Instant {
	if s.proto.IsAllDay() {
		out := make([]instant.Instant, 0, len(days))
		for _, c := range days {
			out = append(out, instant.AllDay(int16(c.year), uint8(c.month), uint8(c.day)))
		}
		return out
	}

	hours := s.rule.ByHour.Bits()
	if len(hours) == 0 {
		hours = []int{int(s.proto.Hour)}
	}
	minutes := s.rule.ByMinute.Bits()
	if len(minutes) == 0 {
		minutes = []int{int(s.proto.Minute)}
	}
	seconds := s.rule.BySecond.Bits()
	if len(seconds) == 0 {
		seconds = []int{int(s.proto.Second)}
	}

	out := make([]instant.Instant, 0, len(days)*len(hours)*len(minutes)*len(seconds))
	for _, c := range days {
		for _, h := range hours {
			for _, m := range minutes {
				for _, sec := range seconds {
					out = append(out, instant.New(int16(c.year), uint8(c.month), uint8(c.day), uint8(h), uint8(m), uint8(sec)))
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return instant.Before(out[i], out[j]) })
	return out
}

// byDayHasCounts reports whether any BYDAY term carries a non-zero
// ordinal count.
func byDayHasCounts(entries []WeekdayEntry) bool {
	for _, e := range entries {
		if e.Count != 0 {
			return true
		}
	}
	return false
}

func weekdayMatches(entries []WeekdayEntry, weekday int) bool {
	if len(entries) == 0 {
		return true
	}
	for _, e := range entries {
		if e.Weekday == weekday {
			return true
		}
	}
	return false
}

// yearCandidates implements the candidate-expansion precedence table for
// FREQ=YEARLY (§4.2 item 1).
func (s *State) yearCandidates(year int) []candidate {
	r := s.rule
	switch {
	case !r.ByYearDay.IsEmpty():
		return expandByYearDay(year, r.ByYearDay, r.ByDay)
	case !r.ByEaster.IsEmpty():
		return expandByEaster(year, r.ByEaster, r.ByMonth, r.ByMonthDay)
	case byDayHasCounts(r.ByDay) && !r.ByMonth.IsEmpty():
		return nthWeekdayInMonths(year, monthNumbers(r.ByMonth), r.ByDay)
	case len(r.ByDay) > 0 && !byDayHasCounts(r.ByDay) && !r.ByWeekNo.IsEmpty():
		return weekNoWeekdays(year, r.ByWeekNo, r.ByDay, s.proto.Weekday())
	case len(r.ByDay) > 0 && !byDayHasCounts(r.ByDay) && !r.ByMonth.IsEmpty():
		return allWeekdaysInMonths(year, monthNumbers(r.ByMonth), r.ByDay)
	case len(r.ByDay) > 0 && !byDayHasCounts(r.ByDay):
		return allWeekdaysInMonths(year, monthsRange(1, 12), r.ByDay)
	default:
		months := monthNumbers(r.ByMonth)
		if len(months) == 0 {
			months = []int{int(s.proto.Month)}
		}
		return monthdayCrossProduct(year, months, r.ByMonthDay, int(s.proto.Day), true)
	}
}

// monthCandidates implements the (smaller) candidate-expansion table for
// FREQ=MONTHLY.
func (s *State) monthCandidates(year, month int) []candidate {
	r := s.rule
	switch {
	case byDayHasCounts(r.ByDay):
		return nthWeekdayInMonths(year, []int{month}, r.ByDay)
	case len(r.ByDay) > 0:
		return allWeekdaysInMonths(year, []int{month}, r.ByDay)
	default:
		return monthdayCrossProduct(year, []int{month}, r.ByMonthDay, int(s.proto.Day), false)
	}
}

// monthNumbers converts a ByMonth set (bit i = month i+1) to plain month
// numbers in [1, 12], ascending.
func monthNumbers(byMonth *bitset.Unsigned) []int {
	bits := byMonth.Bits()
	out := make([]int, len(bits))
	for i, b := range bits {
		out[i] = b + 1
	}
	return out
}

func monthsRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for m := lo; m <= hi; m++ {
		out = append(out, m)
	}
	return out
}

// monthdayCrossProduct resolves BYMONTHDAY against each candidate month,
// falling back to defaultDay (the prototype's day) when no BYMONTHDAY is
// set. yearly controls the out-of-range policy (§4.2 tie-break rules):
// yearly expansion discards an out-of-range day for that month; monthly
// expansion skips the entire month's emission.
func monthdayCrossProduct(year int, months []int, dom *bitset.Signed, defaultDay int, yearly bool) []candidate {
	out := []candidate{}
	for _, m := range months {
		dim := daysInMonthLocal(year, m)
		var mdays []int
		if dom == nil || dom.IsEmpty() {
			mdays = []int{defaultDay}
		} else {
			mdays = dom.Resolve(dim)
		}
		if dom != nil && !dom.IsEmpty() && !yearly {
			// Monthly: if the resolved set dropped any requested day
			// because it exceeded the month length, skip the month
			// entirely rather than emitting a partial set.
			if len(mdays) < dom.Positive.Count()+dom.Negative.Count() {
				continue
			}
		}
		for _, d := range mdays {
			if d >= 1 && d <= dim {
				out = append(out, candidate{year: year, month: m, day: d})
			}
		}
	}
	sortCandidates(out)
	return out
}
