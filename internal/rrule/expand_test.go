package rrule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"echse/internal/bitset"
	"echse/internal/instant"
)

func allDayStrings(in []instant.Instant) []string {
	out := make([]string, len(in))
	for i, o := range in {
		out[i] = o.String()
	}
	return out
}

func TestYearlyByMonthByMonthDay(t *testing.T) {
	r := New(Yearly)
	r.ByMonth.Add(6 - 1)
	r.ByMonthDay.Add(15)
	r.Count = 3
	proto := instant.AllDay(2024, 1, 1)

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20240615", "20250615", "20260615"}, allDayStrings(occs))
	require.True(t, s.Done())
}

func TestYearlyLeapFeb29(t *testing.T) {
	r := New(Yearly)
	r.ByMonth.Add(2 - 1)
	r.ByMonthDay.Add(29)
	r.Count = 3
	proto := instant.AllDay(2020, 1, 1)

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20200229", "20240229", "20280229"}, allDayStrings(occs))
}

func TestMonthlySecondMonday(t *testing.T) {
	r := New(Monthly)
	r.ByDay = []WeekdayEntry{{Count: 2, Weekday: 1}} // 2MO
	r.Count = 3
	proto := instant.AllDay(2024, 1, 1)

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20240108", "20240212", "20240311"}, allDayStrings(occs))
}

func TestYearlyByEaster(t *testing.T) {
	r := New(Yearly)
	r.ByEaster.Add(-2)
	r.Count = 3
	proto := instant.AllDay(2024, 1, 1)

	s := NewState(r, proto)
	occs := s.Fill(10)

	// Easter 2024 is 2024-03-31, so -2 days is Good Friday, 2024-03-29.
	require.Equal(t, []string{"20240329", "20250418", "20260403"}, allDayStrings(occs))
}

func TestDailyWeekdaysOnly(t *testing.T) {
	r := New(Daily)
	r.ByDay = []WeekdayEntry{
		{Weekday: 1}, {Weekday: 2}, {Weekday: 3}, {Weekday: 4}, {Weekday: 5},
	}
	r.Count = 5
	proto := instant.AllDay(2024, 3, 1) // a Friday

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20240301", "20240304", "20240305", "20240306", "20240307"}, allDayStrings(occs))
}

func TestMonthlyLastDay(t *testing.T) {
	r := New(Monthly)
	r.ByMonthDay.Add(-1)
	r.Count = 3
	proto := instant.AllDay(2024, 1, 1)

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20240131", "20240229", "20240331"}, allDayStrings(occs))
}

func TestCountExhaustsExactlyN(t *testing.T) {
	r := New(Daily)
	r.Count = 7
	proto := instant.AllDay(2024, 1, 1)
	s := NewState(r, proto)

	occs := s.Fill(100)
	require.Len(t, occs, 7)
	require.True(t, s.Done())
	require.Empty(t, s.Fill(5))
}

func TestUntilBoundsOutput(t *testing.T) {
	r := New(Daily)
	r.Until = instant.AllDay(2024, 1, 5)
	proto := instant.AllDay(2024, 1, 1)
	s := NewState(r, proto)

	occs := s.Fill(100)
	require.Equal(t, []string{"20240101", "20240102", "20240103", "20240104", "20240105"}, allDayStrings(occs))
	for _, o := range occs {
		require.False(t, instant.After(o, r.Until))
	}
}

func TestFillIsContiguousAcrossBatches(t *testing.T) {
	r := New(Daily)
	r.Interval = 3
	r.Count = 12
	proto := instant.AllDay(2024, 1, 1)
	s := NewState(r, proto)

	var inBatches []instant.Instant
	for !s.Done() {
		inBatches = append(inBatches, s.Fill(4)...)
	}

	s2 := NewState(r, proto)
	inOneShot := s2.Fill(100)

	require.Equal(t, allDayStrings(inOneShot), allDayStrings(inBatches))
	for i := 1; i < len(inBatches); i++ {
		require.True(t, instant.Before(inBatches[i-1], inBatches[i]))
	}
}

func TestBySetPosLastWeekdayOfMonth(t *testing.T) {
	r := New(Monthly)
	r.ByDay = []WeekdayEntry{
		{Weekday: 1}, {Weekday: 2}, {Weekday: 3}, {Weekday: 4}, {Weekday: 5},
	}
	r.BySetPos.Add(-1)
	r.Count = 2
	proto := instant.AllDay(2024, 1, 1)

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20240131", "20240229"}, allDayStrings(occs))
}

func TestByAddShiftsCandidates(t *testing.T) {
	r := New(Monthly)
	r.ByMonthDay.Add(1)
	r.ByAdd.Add(2)
	r.Count = 2
	proto := instant.AllDay(2024, 1, 1)

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20240103", "20240203"}, allDayStrings(occs))
}

func TestWeeklyByDayDefaultsToPrototypeWeekday(t *testing.T) {
	r := New(Weekly)
	r.Count = 3
	proto := instant.AllDay(2024, 1, 1) // Monday

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{"20240101", "20240108", "20240115"}, allDayStrings(occs))
}

func TestHourlyByHourFilter(t *testing.T) {
	r := New(Hourly)
	r.ByHour = bitset.NewUnsigned(24)
	r.ByHour.Add(9)
	r.ByHour.Add(17)
	r.Count = 4
	proto := instant.New(2024, 1, 1, 0, 0, 0)

	s := NewState(r, proto)
	occs := s.Fill(10)

	require.Equal(t, []string{
		"20240101T090000", "20240101T170000",
		"20240102T090000", "20240102T170000",
	}, allDayStrings(occs))
}

func TestIllegalRuleProducesNothing(t *testing.T) {
	r := New(Daily)
	r.Interval = 0
	s := NewState(r, instant.AllDay(2024, 1, 1))
	require.True(t, s.Done())
	require.Empty(t, s.Fill(5))
}

func TestRuleReflectsRemainingCountAfterFill(t *testing.T) {
	r := New(Daily)
	r.Count = 5
	proto := instant.AllDay(2024, 1, 1)
	s := NewState(r, proto)

	s.Fill(2)

	require.Equal(t, int64(3), s.Rule().Count)
	require.Equal(t, proto, s.Proto())
}
