package vjournal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"echse/internal/instant"
)

func TestWriteCompletedRecord(t *testing.T) {
	var b strings.Builder
	err := Write(&b, Record{
		UID:        "task-1",
		DTStart:    instant.New(2026, 7, 30, 9, 0, 0),
		Completed:  instant.New(2026, 7, 30, 9, 0, 3),
		Summary:    "backup",
		Outcome:    Completed,
		ExitStatus: 0,
		UserTime:   250 * time.Millisecond,
		SystemTime: 10 * time.Millisecond,
		MaxRSSKB:   4096,
	})
	require.NoError(t, err)
	out := b.String()
	require.True(t, strings.HasPrefix(out, "BEGIN:VJOURNAL\r\n"))
	require.Contains(t, out, "UID:task-1\r\n")
	require.Contains(t, out, "STATUS:COMPLETED\r\n")
	require.Contains(t, out, "X-EXIT-STATUS:0\r\n")
	require.True(t, strings.HasSuffix(out, "END:VJOURNAL\r\n"))
}

func TestWriteSkippedRecordMarksCancelled(t *testing.T) {
	var b strings.Builder
	err := Write(&b, Record{
		UID:       "task-2",
		DTStart:   instant.New(2026, 7, 30, 9, 0, 0),
		Completed: instant.New(2026, 7, 30, 9, 0, 0),
		Outcome:   Skipped,
	})
	require.NoError(t, err)
	require.Contains(t, b.String(), "STATUS:CANCELLED\r\n")
	require.Contains(t, b.String(), "X-ECHS-SKIPPED:1\r\n")
}

func TestWriteSignaledRecord(t *testing.T) {
	var b strings.Builder
	err := Write(&b, Record{
		UID:        "task-3",
		DTStart:    instant.New(2026, 7, 30, 9, 0, 0),
		Completed:  instant.New(2026, 7, 30, 9, 5, 0),
		Outcome:    TimedOut,
		Signaled:   true,
		SignalName: "XCPU",
	})
	require.NoError(t, err)
	require.Contains(t, b.String(), "X-EXIT-STATUS:signal:XCPU\r\n")
	require.Contains(t, b.String(), "STATUS:FAILED\r\n")
}

func TestEscapeHandlesReservedCharacters(t *testing.T) {
	require.Equal(t, `a\,b\;c\\d\ne`, escape("a,b;c\\d\ne"))
}
