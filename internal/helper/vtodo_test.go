package helper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadVTODORoundTripsBasicFields(t *testing.T) {
	src := "BEGIN:VTODO\r\n" +
		"UID:42\r\n" +
		"SUMMARY:backup job\r\n" +
		"X-ECHS-COMMAND:/usr/bin/backup.sh\r\n" +
		"X-ECHS-ENV:PATH=/usr/bin\r\n" +
		"X-ECHS-OWNER:1000\r\n" +
		"X-ECHS-RUNAS:backup\r\n" +
		"X-ECHS-WORKDIR:/var/backup\r\n" +
		"X-ECHS-MAIL-OUT:true\r\n" +
		"ATTENDEE:mailto:ops@example.com\r\n" +
		"END:VTODO\r\n"

	tk, err := ReadVTODO(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, "backup job", tk.Summary)
	require.Equal(t, "/usr/bin/backup.sh", tk.Command)
	require.Equal(t, []string{"PATH=/usr/bin"}, tk.Env)
	require.Equal(t, "/var/backup", tk.WorkDir)
	require.True(t, tk.Mail.Out)
	require.Len(t, tk.Attendees, 1)
	require.Equal(t, "ops@example.com", tk.Attendees[0].Mailto)
}

func TestReadVTODORejectsMissingBegin(t *testing.T) {
	_, err := ReadVTODO(strings.NewReader("SUMMARY:x\r\nEND:VTODO\r\n"))
	require.Error(t, err)
}
