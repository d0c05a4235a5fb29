// Package mailer delivers task-completion notifications by handing an
// RFC 5322 message to a local mailer command, the way the execution
// helper's mail phase does it (§4.5).
package mailer

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Message is a plain-text mail, headers and body assembled separately so
// callers don't have to hand-fold RFC 5322 themselves.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer delivers a Message. The default implementation shells out to a
// local sendmail-compatible command; tests substitute a fake.
type Mailer interface {
	Send(m Message) error
}

// Sendmail invokes a local sendmail-compatible binary with the recipient
// list as arguments and the RFC 5322 message on stdin, the traditional
// local-delivery contract every MTA speaks.
type Sendmail struct {
	Path string // defaults to "sendmail" resolved via PATH
}

// NewSendmail returns a Sendmail mailer using path, or the default
// "sendmail" lookup when path is empty.
func NewSendmail(path string) *Sendmail {
	if path == "" {
		path = "sendmail"
	}
	return &Sendmail{Path: path}
}

func (s *Sendmail) Send(m Message) error {
	if len(m.To) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}

	args := append([]string{"-t"}, m.To...)
	cmd := exec.Command(s.Path, args...)
	cmd.Stdin = strings.NewReader(render(m))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mailer: sendmail failed: %w: %s", err, stderr.String())
	}
	return nil
}

func render(m Message) string {
	var b strings.Builder
	if m.From != "" {
		fmt.Fprintf(&b, "From: %s\r\n", m.From)
	}
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	if !strings.HasSuffix(m.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
