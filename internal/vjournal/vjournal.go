// Package vjournal writes the helper's per-run completion records: one
// VJOURNAL component per task invocation, appended to the user's journal
// file (§4.5 step 7, §6 persisted state layout).
package vjournal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"echse/internal/instant"
)

// Outcome is the helper's verdict for one invocation.
type Outcome int

const (
	// Completed means the supervised command ran to exit or signal.
	Completed Outcome = iota
	// Skipped means max-simultaneous was already at capacity, or --no-run
	// was requested: no command ever executed.
	Skipped
	// TimedOut means the ALRM handler fired and SIGXCPU was sent.
	TimedOut
)

// Record is one completion record: the fields the spec calls out by name
// (UID, DTSTART, COMPLETED, SUMMARY, X-EXIT-STATUS, timing/memory stats).
type Record struct {
	UID       string
	DTStart   instant.Instant
	Completed instant.Instant
	Summary   string
	Outcome   Outcome

	ExitStatus   int
	Signaled     bool
	SignalName   string
	UserTime     time.Duration
	SystemTime   time.Duration
	MaxRSSKB     int64
}

// Write serializes r as a VJOURNAL component and appends it to w.
func Write(w io.Writer, r Record) error {
	var b strings.Builder
	b.WriteString("BEGIN:VJOURNAL\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", escape(r.UID))
	fmt.Fprintf(&b, "DTSTART:%s\r\n", r.DTStart.String())
	fmt.Fprintf(&b, "COMPLETED:%s\r\n", r.Completed.String())
	if r.Summary != "" {
		fmt.Fprintf(&b, "SUMMARY:%s\r\n", escape(r.Summary))
	}
	fmt.Fprintf(&b, "STATUS:%s\r\n", statusText(r.Outcome))

	switch r.Outcome {
	case Skipped:
		b.WriteString("X-ECHS-SKIPPED:1\r\n")
	case TimedOut:
		b.WriteString("X-ECHS-TIMED-OUT:1\r\n")
	}

	if r.Signaled {
		fmt.Fprintf(&b, "X-EXIT-STATUS:signal:%s\r\n", r.SignalName)
	} else {
		fmt.Fprintf(&b, "X-EXIT-STATUS:%d\r\n", r.ExitStatus)
	}
	fmt.Fprintf(&b, "X-ECHS-UTIME:%.3f\r\n", r.UserTime.Seconds())
	fmt.Fprintf(&b, "X-ECHS-STIME:%.3f\r\n", r.SystemTime.Seconds())
	fmt.Fprintf(&b, "X-ECHS-MAXRSS:%d\r\n", r.MaxRSSKB)
	b.WriteString("END:VJOURNAL\r\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// AppendLocked opens path for append (creating it if needed), takes an
// exclusive whole-file flock lock for the duration of the write so
// concurrent helpers never interleave records, and serializes r to it.
func AppendLocked(path string, r Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", path, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock journal %s: %w", path, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return Write(f, r)
}

func statusText(o Outcome) string {
	switch o {
	case Skipped:
		return "CANCELLED"
	case TimedOut:
		return "FAILED"
	default:
		return "COMPLETED"
	}
}

func escape(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		"\n", `\n`,
	)
	return r.Replace(s)
}
