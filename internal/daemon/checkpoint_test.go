package daemon

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"echse/internal/ical"
	"echse/internal/intern"
	"echse/internal/task"
)

type fakeQueueDir struct {
	root string
}

func (f fakeQueueDir) QueuePath(uid int) string   { return filepath.Join(f.root, "q", itoa(uid)+".ics") }
func (f fakeQueueDir) JournalPath(uid int) string { return filepath.Join(f.root, "j", itoa(uid)+".ics") }
func (f fakeQueueDir) Root() string               { return f.root }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func TestCheckpointIncrementalWritesDirtyUsers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "q"), 0o755))

	qd := fakeQueueDir{root: dir}
	ck := newCheckpointer(qd)

	tb := NewTable()
	tb.Put(intern.Handle(1), &task.Task{Summary: "job", Owner: task.FromNum(1000)})
	ck.markDirty(1000)

	require.NoError(t, ck.Flush(tb))
	data, err := os.ReadFile(qd.QueuePath(1000))
	require.NoError(t, err)
	require.Contains(t, string(data), "BEGIN:VCALENDAR")
	require.Contains(t, string(data), "job")
	require.Empty(t, ck.dirty)
}

func TestCheckpointFullFallsBackAboveIncrementalLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "q"), 0o755))

	qd := fakeQueueDir{root: dir}
	ck := newCheckpointer(qd)

	tb := NewTable()
	for i := 0; i < incrementalLimit+1; i++ {
		tb.Put(intern.Handle(i), &task.Task{Summary: "t", Owner: task.FromNum(2000 + i)})
		ck.markDirty(2000 + i)
	}

	require.NoError(t, ck.Flush(tb))
	data, err := os.ReadFile(qd.QueuePath(2000))
	require.NoError(t, err)
	require.Contains(t, string(data), "BEGIN:VCALENDAR")
}

func TestWriteTaskVEventRoundTripsSchedule(t *testing.T) {
	tasks := intern.New()
	states := intern.NewStateTable()
	p := ical.New(tasks, states)

	doc := "BEGIN:VCALENDAR\r\n" +
		"METHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:backup-1\r\n" +
		"SUMMARY:Nightly backup\r\n" +
		"DTSTART:20260101T020000\r\n" +
		"RRULE:FREQ=DAILY;COUNT=3\r\n" +
		"X-ECHS-COMMAND:/usr/bin/backup\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	ins, err := p.Feed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ins, 1)

	var buf bytes.Buffer
	require.NoError(t, writeTaskVEvent(&buf, ins[0].Task))
	out := buf.String()
	require.Contains(t, out, "UID:"+itoa(int(ins[0].Task.OID)))
	require.Contains(t, out, "DTSTART:20260101T020000")
	require.Contains(t, out, "RRULE:FREQ=DAILY;COUNT=3")
	require.Contains(t, out, "X-ECHS-COMMAND:/usr/bin/backup")

	p2 := ical.New(intern.New(), intern.NewStateTable())
	reparsed, err := p2.Feed([]byte("BEGIN:VCALENDAR\r\nMETHOD:PUBLISH\r\n" + out + "END:VCALENDAR\r\n"))
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
	got := reparsed[0].Task.Stream.Next()
	require.False(t, got.IsNull())
	require.Equal(t, "20260101T020000", got.From.String())
}
