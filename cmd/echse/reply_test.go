package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitReplyVEventsParsesMultipleRecords(t *testing.T) {
	reply := "BEGIN:VEVENT\r\nUID:42\r\nREQUEST-STATUS:2.0\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:43\r\nREQUEST-STATUS:5.1;permission denied\r\nEND:VEVENT\r\n"

	recs := splitReplyVEvents(reply)
	require.Len(t, recs, 2)
	require.Equal(t, "42", recs[0].uid)
	require.Equal(t, "2.0", recs[0].status)
	require.Equal(t, "43", recs[1].uid)
	require.True(t, strings.HasPrefix(recs[1].status, "5.1"))
}

func TestCancelCalendarEmitsOneVEventPerTUID(t *testing.T) {
	cal := cancelCalendar([]string{"7", "9"})
	require.Contains(t, cal, "METHOD:CANCEL")
	require.Contains(t, cal, "UID:7")
	require.Contains(t, cal, "UID:9")
}
