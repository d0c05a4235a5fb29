package instant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixup(t *testing.T) {
	cases := []struct {
		name                   string
		y                      int16
		m, d                   int
		wantY                  int16
		wantM, wantD           uint8
	}{
		{"feb-30-non-leap", 2021, 2, 30, 2021, 3, 2},
		{"feb-30-leap", 2020, 2, 30, 2020, 3, 1},
		{"month-13", 2020, 13, 1, 2021, 1, 1},
		{"in-range", 2020, 6, 15, 2020, 6, 15},
		{"day-zero", 2020, 3, 0, 2020, 2, 29},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			y, m, d := Fixup(tc.y, tc.m, tc.d)
			require.Equal(t, tc.wantY, y)
			require.Equal(t, tc.wantM, m)
			require.Equal(t, tc.wantD, d)
		})
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	a := New(2020, 1, 1, 0, 0, 0)
	b := New(2021, 3, 15, 12, 30, 45)
	diff := Sub(b, a)
	require.Equal(t, b, Add(a, diff))

	diffBack := Sub(a, b)
	require.Equal(t, a, Add(b, diffBack))
}

func TestCompareOrdering(t *testing.T) {
	instants := []Instant{
		New(2020, 1, 1, 0, 0, 0),
		New(2020, 1, 1, 0, 0, 1),
		New(2020, 1, 2, 0, 0, 0),
		New(2021, 1, 1, 0, 0, 0),
	}
	for i := 0; i < len(instants)-1; i++ {
		require.True(t, Before(instants[i], instants[i+1]), "index %d", i)
	}
}

func TestAllDayOrdersBeforeTimed(t *testing.T) {
	day := AllDay(2020, 6, 1)
	timed := New(2020, 6, 1, 0, 0, 1)
	require.True(t, Before(day, timed))
}

func TestWeekday(t *testing.T) {
	// 2020-01-01 was a Wednesday.
	require.Equal(t, 3, New(2020, 1, 1, 0, 0, 0).Weekday())
	// 2020-01-06 was a Monday.
	require.Equal(t, 1, New(2020, 1, 6, 0, 0, 0).Weekday())
}
