package ical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"echse/internal/intern"
)

func newTestParser() *Parser {
	return New(intern.New(), intern.NewStateTable())
}

func TestParseScheduleWithDailyRule(t *testing.T) {
	p := newTestParser()
	doc := "BEGIN:VCALENDAR\r\n" +
		"METHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:backup-1\r\n" +
		"SUMMARY:Nightly backup\r\n" +
		"DTSTART:20260101T020000\r\n" +
		"RRULE:FREQ=DAILY;COUNT=3\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ins, err := p.Feed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ins, 1)
	require.Equal(t, VerbSchedule, ins[0].Verb)
	require.Equal(t, "backup-1", ins[0].OID)
	require.NotNil(t, ins[0].Task)
	require.Equal(t, "Nightly backup", ins[0].Task.Summary)

	got := ins[0].Task.Stream.Next()
	require.False(t, got.IsNull())
	require.Equal(t, "20260101T020000", got.From.String())
}

func TestParseUnscheduleFromCancelMethod(t *testing.T) {
	p := newTestParser()
	doc := "BEGIN:VCALENDAR\r\n" +
		"METHOD:CANCEL\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:backup-1\r\n" +
		"DTSTART:20260101T020000\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ins, err := p.Feed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ins, 1)
	require.Equal(t, VerbUnschedule, ins[0].Verb)
	require.Equal(t, "backup-1", ins[0].OID)
	require.Nil(t, ins[0].Task)
}

func TestFoldedLineIsUnfolded(t *testing.T) {
	p := newTestParser()
	doc := "BEGIN:VCALENDAR\r\n" +
		"METHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:backup-2\r\n" +
		"SUMMARY:a very long\r\n" +
		" summary continues here\r\n" +
		"DTSTART:20260101T020000\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ins, err := p.Feed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ins, 1)
	require.Equal(t, "a very longsummary continues here", ins[0].Task.Summary)
}

func TestEscapeSequencesAreDecoded(t *testing.T) {
	p := newTestParser()
	doc := "BEGIN:VCALENDAR\r\n" +
		"METHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:backup-3\r\n" +
		"SUMMARY:comma\\, semi\\; back\\\\slash\\nnewline\r\n" +
		"DTSTART:20260101T020000\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ins, err := p.Feed([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "comma, semi; back\\slash\nnewline", ins[0].Task.Summary)
}

func TestFeedAcrossMultipleChunks(t *testing.T) {
	p := newTestParser()
	part1 := "BEGIN:VCALENDAR\r\nMETHOD:PUBLISH\r\nBEGIN:VEVENT\r\nUID:chunked\r\n"
	part2 := "DTSTART:20260101T020000\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

	ins1, err := p.Feed([]byte(part1))
	require.NoError(t, err)
	require.Len(t, ins1, 0)

	ins2, err := p.Feed([]byte(part2))
	require.NoError(t, err)
	require.Len(t, ins2, 1)
	require.Equal(t, "chunked", ins2[0].OID)
}

func TestMalformedDateTimeYieldsNullInstant(t *testing.T) {
	require.True(t, parseDateTime("not-a-date").IsNull())
}

func TestParseDuration(t *testing.T) {
	d := parseDuration("P1DT2H30M")
	require.Equal(t, int64(26*3600+30*60)*1000, d.Millis)
}

func TestMRuleRelocatesEventOffBlockedState(t *testing.T) {
	p := newTestParser()
	doc := "BEGIN:VCALENDAR\r\n" +
		"METHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:job-1\r\n" +
		"SUMMARY:weekday job\r\n" +
		"DTSTART:20260102\r\n" +
		"DURATION:P1D\r\n" +
		"RRULE:FREQ=DAILY;COUNT=1\r\n" +
		"MRULE:DIR=PAST;FROM=holiday;INTO=workday;AUXDTSTART=20260102;AUXRULE=FREQ=DAILY;COUNT=1\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ins, err := p.Feed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ins, 1)

	got := ins[0].Task.Stream.Next()
	require.False(t, got.IsNull())
	require.Equal(t, "20260101", got.From.String())
}

func TestMRuleWithMissingTermIsDropped(t *testing.T) {
	p := newTestParser()
	doc := "BEGIN:VCALENDAR\r\n" +
		"METHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:job-2\r\n" +
		"DTSTART:20260102\r\n" +
		"RRULE:FREQ=DAILY;COUNT=1\r\n" +
		"MRULE:DIR=PAST;FROM=holiday\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ins, err := p.Feed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ins, 1)

	got := ins[0].Task.Stream.Next()
	require.False(t, got.IsNull())
	require.Equal(t, "20260102", got.From.String())
}

func TestFormatRuleInvertsParseRule(t *testing.T) {
	r := parseRule("FREQ=WEEKLY;INTERVAL=2;COUNT=5;BYDAY=MO,2FR")
	out := FormatRule(r)
	back := parseRule(out)
	require.Equal(t, r.Freq, back.Freq)
	require.Equal(t, r.Interval, back.Interval)
	require.Equal(t, r.Count, back.Count)
	require.Equal(t, r.ByDay, back.ByDay)
}
