package task

import (
	"echse/internal/evstream"
	"echse/internal/instant"
	"echse/internal/intern"
)

// MailPolicy controls whether the helper mails stdout/stderr capture to
// the task's attendees.
type MailPolicy struct {
	Run bool // mail even a skipped/not-run fire
	Out bool // mail captured stdout
	Err bool // mail captured stderr
}

// Attendee is one RFC 5545 ATTENDEE entry: a mailto URI plus any role
// parameters the parser preserved verbatim.
type Attendee struct {
	Mailto string
	Params map[string]string
}

// Task is one scheduled unit of work: everything the helper needs to
// supervise one run, plus the event stream the daemon's periodic timer
// consumes to decide when the next run is due.
type Task struct {
	OID     intern.Handle // interned task identifier
	Summary string
	Command string
	Env     []string // argv-style "KEY=VALUE" environment

	Owner NumMapStr
	RunAs NumMapStr
	Group NumMapStr

	WorkDir string
	Shell   string
	Umask   int // 0 means "use the daemon default"; values >0777 mean "untouched"

	Stdin, Stdout, Stderr string // file paths, empty meaning /dev/null or a pipe per helper policy

	Mail MailPolicy

	Organizer string
	Attendees []Attendee

	MaxSimultaneous int

	Stream evstream.Stream // owned; nil until constructed by the parser (§4.1)

	Scheduled instant.Range // current scheduled range, maintained by the daemon
}

// UsesDefaultUmask reports whether Umask is the "use the daemon default"
// sentinel.
func (t *Task) UsesDefaultUmask() bool {
	return t.Umask == 0
}

// UmaskUntouched reports whether Umask asks the helper to leave the
// process umask alone (>0777 is not representable as an octal mode).
func (t *Task) UmaskUntouched() bool {
	return t.Umask > 0o777
}

// HasMailRecipients reports whether the task has both an organizer and at
// least one attendee, the precondition for the helper dispatching mail
// (§4.5 step 8).
func (t *Task) HasMailRecipients() bool {
	return t.Organizer != "" && len(t.Attendees) > 0
}

// Clone returns a copy of t with an independent event-stream snapshot,
// matching the "event stream is owned by exactly one task; cloning
// produces an independent snapshot" lifecycle rule.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Stream != nil {
		cp.Stream = t.Stream.Clone()
	}
	cp.Env = append([]string{}, t.Env...)
	cp.Attendees = append([]Attendee{}, t.Attendees...)
	return &cp
}
