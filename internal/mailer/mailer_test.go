package mailer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	sent []Message
}

func (r *recordingMailer) Send(m Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func TestRenderIncludesHeadersAndBody(t *testing.T) {
	msg := Message{
		From:    "echsd@example.com",
		To:      []string{"alice@example.com", "bob@example.com"},
		Subject: "task failed",
		Body:    "exit status 1",
	}
	out := render(msg)
	require.True(t, strings.Contains(out, "From: echsd@example.com\r\n"))
	require.True(t, strings.Contains(out, "To: alice@example.com, bob@example.com\r\n"))
	require.True(t, strings.Contains(out, "Subject: task failed\r\n"))
	require.True(t, strings.HasSuffix(out, "exit status 1\n"))
}

func TestSendmailRejectsNoRecipients(t *testing.T) {
	s := NewSendmail("")
	err := s.Send(Message{Subject: "x", Body: "y"})
	require.Error(t, err)
}

func TestRecordingMailerCapturesMessage(t *testing.T) {
	var m Mailer = &recordingMailer{}
	require.NoError(t, m.Send(Message{To: []string{"a@example.com"}, Subject: "s", Body: "b"}))
	require.Len(t, m.(*recordingMailer).sent, 1)
}
