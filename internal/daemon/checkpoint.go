package daemon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"echse/internal/ical"
	"echse/internal/intern"
	"echse/internal/task"
)

// fullWalkConcurrency bounds how many users' checkpoint files the full
// walk writes at once (§4.4 "full" strategy).
const fullWalkConcurrency = 4

// incrementalLimit bounds the dirty-uid set kept for incremental
// checkpointing before falling back to a full walk (§4.4).
const incrementalLimit = 16

// checkpointer tracks which uids have scheduling changes since the last
// checkpoint and serializes each user's current schedule to their
// echsq_<uid>.ics file.
type checkpointer struct {
	dir   queueDirer
	dirty map[int]bool
}

// queueDirer is the subset of queuedir.Dir the checkpointer needs,
// narrowed to a local interface so this package doesn't import queuedir
// just for two path helpers.
type queueDirer interface {
	QueuePath(uid int) string
	JournalPath(uid int) string
	Root() string
}

func newCheckpointer(dir queueDirer) *checkpointer {
	return &checkpointer{dir: dir, dirty: make(map[int]bool)}
}

func (c *checkpointer) markDirty(uid int) {
	c.dirty[uid] = true
}

// Flush checkpoints every dirty uid, using the incremental per-uid path
// while the dirty set stays small and falling back to a full walk of
// every owner in the table once it overflows.
func (c *checkpointer) Flush(t *Table) error {
	if len(c.dirty) == 0 {
		return nil
	}
	if len(c.dirty) <= incrementalLimit {
		if err := c.incremental(t); err != nil {
			return c.full(t)
		}
		return nil
	}
	return c.full(t)
}

func (c *checkpointer) incremental(t *Table) error {
	var result *multierror.Error
	for uid := range c.dirty {
		if err := c.writeUser(t, uid); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		delete(c.dirty, uid)
	}
	return result.ErrorOrNil()
}

// full rewrites every owner present in the table in one pass, used once
// more users are dirty than the incremental path wants to carry. Writes
// run with bounded parallelism via errgroup; a single user's I/O failure
// doesn't block the others, and every user that failed there (e.g. on
// descriptor exhaustion) is retried one at a time afterwards.
func (c *checkpointer) full(t *Table) error {
	owners := make(map[int]bool)
	t.Each(func(_ intern.Handle, tk *task.Task) {
		if uid, err := tk.Owner.ResolveUID(); err == nil {
			owners[uid] = true
		}
	})

	var g errgroup.Group
	g.SetLimit(fullWalkConcurrency)
	var mu sync.Mutex
	var failed []int
	for uid := range owners {
		uid := uid
		g.Go(func() error {
			if err := c.writeUser(t, uid); err != nil {
				mu.Lock()
				failed = append(failed, uid)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	var result *multierror.Error
	for _, uid := range failed {
		if err := c.writeUser(t, uid); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.dirty = make(map[int]bool)
	return result.ErrorOrNil()
}

func (c *checkpointer) writeUser(t *Table, uid int) error {
	path := c.dir.QueuePath(uid)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open checkpoint tmp for uid %d: %w", uid, err)
	}

	serializeErr := func() error {
		defer f.Close()
		if _, err := f.WriteString("BEGIN:VCALENDAR\r\nMETHOD:PUBLISH\r\n"); err != nil {
			return err
		}
		var werr error
		t.Each(func(_ intern.Handle, tk *task.Task) {
			if werr != nil {
				return
			}
			ownerUID, err := tk.Owner.ResolveUID()
			if err != nil || ownerUID != uid {
				return
			}
			werr = writeTaskVEvent(f, tk)
		})
		if werr != nil {
			return werr
		}
		_, err := f.WriteString("END:VCALENDAR\r\n")
		return err
	}()
	if serializeErr != nil {
		os.Remove(tmp)
		return serializeErr
	}

	return os.Rename(tmp, path)
}

// writeTaskVEvent renders tk as a full VEVENT: its schedule (DTSTART plus
// RRULE/RDATE/XRULE/XDATE, read back out of its stream via Serialize) and
// its X-ECHS-* command/credential fields, mirroring writeVTODO's field set
// so a checkpoint round-trips through ScanQueueDir/injectQueueFile and a
// GET /queue reply carries the same schedule back to the client (§8).
func writeTaskVEvent(f io.Writer, tk *task.Task) error {
	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "BEGIN:VEVENT\r\n")
	fmt.Fprintf(bw, "UID:%d\r\n", tk.OID)
	fmt.Fprintf(bw, "SUMMARY:%s\r\n", escapeText(tk.Summary))

	if tk.Stream != nil {
		fields := tk.Stream.Serialize()
		if !fields.DTStart.IsNull() {
			fmt.Fprintf(bw, "DTSTART:%s\r\n", fields.DTStart.String())
		}
		if !fields.Duration.IsZero() {
			fmt.Fprintf(bw, "DURATION:%s\r\n", ical.FormatDuration(fields.Duration))
		}
		for _, d := range fields.RDates {
			fmt.Fprintf(bw, "RDATE:%s\r\n", d.String())
		}
		for _, r := range fields.RRules {
			fmt.Fprintf(bw, "RRULE:%s\r\n", ical.FormatRule(r))
		}
		for _, d := range fields.XDates {
			fmt.Fprintf(bw, "XDATE:%s\r\n", d.String())
		}
		for _, r := range fields.XRules {
			fmt.Fprintf(bw, "XRULE:%s\r\n", ical.FormatRule(r))
		}
	}

	fmt.Fprintf(bw, "X-ECHS-COMMAND:%s\r\n", escapeText(tk.Command))
	for _, e := range tk.Env {
		fmt.Fprintf(bw, "X-ECHS-ENV:%s\r\n", escapeText(e))
	}
	fmt.Fprintf(bw, "X-ECHS-OWNER:%s\r\n", tk.Owner.String())
	fmt.Fprintf(bw, "X-ECHS-RUNAS:%s\r\n", tk.RunAs.String())
	fmt.Fprintf(bw, "X-ECHS-GROUP:%s\r\n", tk.Group.String())
	if tk.WorkDir != "" {
		fmt.Fprintf(bw, "LOCATION:%s\r\n", escapeText(tk.WorkDir))
	}
	if tk.Shell != "" {
		fmt.Fprintf(bw, "X-ECHS-SHELL:%s\r\n", escapeText(tk.Shell))
	}
	if !tk.UmaskUntouched() {
		fmt.Fprintf(bw, "X-ECHS-UMASK:%04o\r\n", tk.Umask)
	}
	fmt.Fprintf(bw, "X-ECHS-IFILE:%s\r\n", escapeText(tk.Stdin))
	fmt.Fprintf(bw, "X-ECHS-OFILE:%s\r\n", escapeText(tk.Stdout))
	fmt.Fprintf(bw, "X-ECHS-EFILE:%s\r\n", escapeText(tk.Stderr))
	fmt.Fprintf(bw, "X-ECHS-MAIL-RUN:%t\r\n", tk.Mail.Run)
	fmt.Fprintf(bw, "X-ECHS-MAIL-OUT:%t\r\n", tk.Mail.Out)
	fmt.Fprintf(bw, "X-ECHS-MAIL-ERR:%t\r\n", tk.Mail.Err)
	if tk.Organizer != "" {
		fmt.Fprintf(bw, "ORGANIZER:%s\r\n", escapeText(tk.Organizer))
	}
	for _, a := range tk.Attendees {
		fmt.Fprintf(bw, "ATTENDEE:mailto:%s\r\n", escapeText(a.Mailto))
	}
	fmt.Fprintf(bw, "END:VEVENT\r\n")
	return bw.Flush()
}

func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, "\n", `\n`)
	return r.Replace(s)
}
