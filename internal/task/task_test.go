package task

import (
	"testing"

	"github.com/stretchr/testify/require"

	"echse/internal/evstream"
	"echse/internal/instant"
)

func TestParseNumMapStr(t *testing.T) {
	require.Equal(t, NumMapStr{Num: 1000}, ParseNumMapStr("1000"))
	require.Equal(t, NumMapStr{Named: true, Name: "alice"}, ParseNumMapStr("alice"))
}

func TestNumMapStrEqualNumeric(t *testing.T) {
	require.True(t, FromNum(1000).Equal(FromNum(1000)))
	require.False(t, FromNum(1000).Equal(FromNum(1001)))
}

func TestNumMapStrEqualNamed(t *testing.T) {
	require.True(t, FromName("alice").Equal(FromName("alice")))
	require.False(t, FromName("alice").Equal(FromName("bob")))
}

func TestUmaskSentinels(t *testing.T) {
	def := &Task{Umask: 0}
	require.True(t, def.UsesDefaultUmask())
	require.False(t, def.UmaskUntouched())

	untouched := &Task{Umask: 0o1000}
	require.False(t, untouched.UsesDefaultUmask())
	require.True(t, untouched.UmaskUntouched())
}

func TestHasMailRecipients(t *testing.T) {
	none := &Task{}
	require.False(t, none.HasMailRecipients())

	withOrg := &Task{Organizer: "mailto:boss@example.com"}
	require.False(t, withOrg.HasMailRecipients())

	full := &Task{
		Organizer: "mailto:boss@example.com",
		Attendees: []Attendee{{Mailto: "mailto:worker@example.com"}},
	}
	require.True(t, full.HasMailRecipients())
}

func TestCloneIsIndependent(t *testing.T) {
	from := instant.AllDay(2026, 7, 30)
	stream := evstream.NewFixed([]evstream.Event{{From: from, Till: from.AddDays(1)}})
	orig := &Task{OID: 7, Env: []string{"A=1"}, Stream: stream}

	cp := orig.Clone()
	cp.Env[0] = "A=2"
	require.Equal(t, "A=1", orig.Env[0])

	cp.Stream.Pop()
	require.False(t, orig.Stream.Next().IsNull())
	require.True(t, cp.Stream.Next().IsNull())
}
