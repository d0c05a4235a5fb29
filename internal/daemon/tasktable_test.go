package daemon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"echse/internal/intern"
	"echse/internal/task"
)

func TestTablePutGetDelete(t *testing.T) {
	tb := NewTable()
	tk := &task.Task{Summary: "nightly backup"}
	tb.Put(intern.Handle(7), tk)

	got, ok := tb.Get(intern.Handle(7))
	require.True(t, ok)
	require.Equal(t, "nightly backup", got.Summary)

	tb.Delete(intern.Handle(7))
	_, ok = tb.Get(intern.Handle(7))
	require.False(t, ok)
}

func TestTableGrowsPastInitialCapacity(t *testing.T) {
	tb := NewTable()
	for i := 0; i < initialTableSize*3; i++ {
		tb.Put(intern.Handle(i), &task.Task{Summary: "t"})
	}
	require.Equal(t, initialTableSize*3, tb.Len())
	for i := 0; i < initialTableSize*3; i++ {
		_, ok := tb.Get(intern.Handle(i))
		require.True(t, ok, "handle %d should still be present after growth", i)
	}
}

func TestTableDeleteLeavesTombstoneNotHidingCongruentHandle(t *testing.T) {
	tb := NewTable()
	// 0 and initialTableSize both hash to slot 0; deleting the first must
	// not break the probe chain that finds the second.
	tb.Put(intern.Handle(0), &task.Task{Summary: "a"})
	tb.Put(intern.Handle(initialTableSize), &task.Task{Summary: "b"})

	tb.Delete(intern.Handle(0))

	got, ok := tb.Get(intern.Handle(initialTableSize))
	require.True(t, ok, "congruent handle must still be reachable after deleting its probe-chain predecessor")
	require.Equal(t, "b", got.Summary)
	require.Equal(t, 1, tb.Len())
}

func TestTablePutReusesTombstoneSlot(t *testing.T) {
	tb := NewTable()
	tb.Put(intern.Handle(1), &task.Task{Summary: "a"})
	tb.Delete(intern.Handle(1))
	tb.Put(intern.Handle(1), &task.Task{Summary: "a2"})

	got, ok := tb.Get(intern.Handle(1))
	require.True(t, ok)
	require.Equal(t, "a2", got.Summary)
	require.Equal(t, 1, tb.Len())
}

func TestTableEachVisitsEveryEntry(t *testing.T) {
	tb := NewTable()
	tb.Put(intern.Handle(1), &task.Task{Summary: "a"})
	tb.Put(intern.Handle(2), &task.Task{Summary: "b"})

	seen := make(map[intern.Handle]string)
	tb.Each(func(oid intern.Handle, tk *task.Task) {
		seen[oid] = tk.Summary
	})
	require.Equal(t, map[intern.Handle]string{1: "a", 2: "b"}, seen)
}
