package daemon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"echse/internal/ical"
	"echse/internal/intern"
	"echse/internal/logging"
	"echse/internal/notify"
	"echse/internal/queuedir"
	"echse/internal/task"
)

// Config configures a Daemon.
type Config struct {
	QueueDir        queuedir.Dir
	HelperPath      string // path to the echswd binary, spawned per fire
	Logger          *slog.Logger
	CheckpointEvery time.Duration
}

// Daemon is the scheduler process: a task table, one timer per scheduled
// task, and periodic checkpointing of the queue directory (§4.4).
type Daemon struct {
	tasks  *intern.Table
	states *intern.StateTable

	table    *Table
	tl       *timeline
	ckpt     *checkpointer
	queueDir queuedir.Dir

	helperPath string
	logger     *slog.Logger

	mu      sync.Mutex
	running map[intern.Handle]int // live child count per task
	maxlive map[intern.Handle]int

	// changed wakes the checkpoint loop as soon as a schedule/unschedule
	// lands, instead of leaving it stale until the next fixed tick.
	changed *notify.Signal

	checkpointEvery time.Duration

	stopWatch chan struct{}

	limiterMu sync.Mutex
	limiters  map[int]*rate.Limiter

	startedAt time.Time
}

// New creates a Daemon ready to have tasks injected into it.
func New(cfg Config) (*Daemon, error) {
	logger := logging.Default(cfg.Logger).With("component", "daemon")
	d := &Daemon{
		tasks:           intern.New(),
		states:          intern.NewStateTable(),
		table:           NewTable(),
		helperPath:      cfg.HelperPath,
		logger:          logger,
		running:         make(map[intern.Handle]int),
		maxlive:         make(map[intern.Handle]int),
		changed:         notify.NewSignal(),
		checkpointEvery: cfg.CheckpointEvery,
		stopWatch:       make(chan struct{}),
		limiters:        make(map[int]*rate.Limiter),
		startedAt:       time.Now(),
	}
	d.queueDir = cfg.QueueDir
	d.ckpt = newCheckpointer(cfg.QueueDir)
	if d.checkpointEvery <= 0 {
		d.checkpointEvery = 60 * time.Second
	}

	tl, err := newTimeline(logger, d.table, d.fire)
	if err != nil {
		return nil, err
	}
	d.tl = tl
	return d, nil
}

// Parser returns a fresh iCalendar parser sharing the daemon's interning
// tables, for use by the connection handler and startup scan.
func (d *Daemon) Parser() *ical.Parser {
	return ical.New(d.tasks, d.states)
}

// Schedule injects or replaces a task under oid, per an incoming
// schedule/reschedule instruction. peerUID is the authenticated caller;
// ownership is enforced unless bypass is set (startup spool scan trusts
// itself, per §4.4).
func (d *Daemon) Schedule(oid string, tk *task.Task, peerUID int, bypass bool) error {
	handle := d.tasks.Intern(oid)
	tk.OID = handle

	if existing, ok := d.table.Get(handle); ok && !bypass {
		ownerUID, err := existing.Owner.ResolveUID()
		if err == nil && ownerUID != peerUID && peerUID != 0 {
			return fmt.Errorf("permission denied: oid %s owned by a different user", oid)
		}
	}

	if tk.Owner == (task.NumMapStr{}) {
		tk.Owner = task.FromNum(peerUID)
	}
	tk.MaxSimultaneous = maxInt(tk.MaxSimultaneous, 1)

	d.table.Put(handle, tk)
	d.maxlive[handle] = tk.MaxSimultaneous
	d.tl.Arm(handle, tk)

	if uid, err := tk.Owner.ResolveUID(); err == nil {
		d.ckpt.markDirty(uid)
	}
	d.changed.Notify()
	return nil
}

// Unschedule removes oid, per an incoming unschedule instruction, subject
// to the same ownership check as Schedule.
func (d *Daemon) Unschedule(oid string, peerUID int, bypass bool) error {
	handle, ok := d.tasks.Lookup(oid)
	if !ok {
		return nil
	}
	tk, ok := d.table.Get(handle)
	if !ok {
		return nil
	}
	if !bypass {
		ownerUID, err := tk.Owner.ResolveUID()
		if err == nil && ownerUID != peerUID && peerUID != 0 {
			return fmt.Errorf("permission denied: oid %s owned by a different user", oid)
		}
	}
	d.tl.Remove(handle)
	d.table.Delete(handle)
	if uid, err := tk.Owner.ResolveUID(); err == nil {
		d.ckpt.markDirty(uid)
	}
	d.changed.Notify()
	return nil
}

// flushCheckpoint runs one checkpoint pass tagged with a fresh correlation
// id, so a slow or failing pass can be followed across its log lines
// (§2 domain stack: connection/checkpoint correlation via uuid).
func (d *Daemon) flushCheckpoint() error {
	passID := uuid.NewString()
	d.logger.Debug("checkpoint pass starting", "pass", passID, "dirty", len(d.ckpt.dirty))
	err := d.ckpt.Flush(d.table)
	d.logger.Debug("checkpoint pass finished", "pass", passID, "error", err)
	return err
}

// limiterFor returns the per-uid accept-rate limiter, creating one on
// first use (§2 domain stack: rate.Limiter on the listening socket).
func (d *Daemon) limiterFor(uid int) *rate.Limiter {
	d.limiterMu.Lock()
	defer d.limiterMu.Unlock()
	l, ok := d.limiters[uid]
	if !ok {
		l = rate.NewLimiter(rate.Limit(acceptRateLimit), acceptRateLimit)
		d.limiters[uid] = l
	}
	return l
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fire is the periodic-timer callback (§4.4 "Task fire"): it either
// records a skip when at the concurrency cap, or spawns the helper with
// the task piped in over stdin.
func (d *Daemon) fire(oid intern.Handle, tk *task.Task) {
	d.mu.Lock()
	live := d.running[oid]
	limit := d.maxlive[oid]
	d.mu.Unlock()

	if limit > 0 && live >= limit {
		d.spawnHelper(tk, true)
		return
	}

	d.mu.Lock()
	d.running[oid]++
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			d.running[oid]--
			d.mu.Unlock()
		}()
		d.spawnHelper(tk, false)
	}()
}

// spawnHelper runs the echswd helper binary, piping a VTODO serialization
// of tk to its stdin. skip asks the helper to write a "not run" VJOURNAL
// record without executing the command (§4.4 step 1).
func (d *Daemon) spawnHelper(tk *task.Task, skip bool) {
	args := []string{"--daemon"}
	if skip {
		args = append(args, "--no-run")
	}
	cmd := exec.Command(d.helperPath, args...)

	journalPath := d.journalPathFor(tk)
	if err := rotateJournalIfNeeded(journalPath); err != nil {
		d.logger.Error("journal rotation failed", "oid", tk.OID, "error", err)
	}
	journal, err := os.OpenFile(journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		d.logger.Error("open journal for fire", "oid", tk.OID, "error", err)
		return
	}
	defer journal.Close()
	cmd.Stdout = journal

	stdin, err := cmd.StdinPipe()
	if err != nil {
		d.logger.Error("open helper stdin pipe", "oid", tk.OID, "error", err)
		return
	}
	if err := cmd.Start(); err != nil {
		d.logger.Error("spawn helper failed", "oid", tk.OID, "error", err)
		return
	}
	if err := writeVTODO(stdin, tk); err != nil {
		d.logger.Warn("write task to helper stdin failed", "oid", tk.OID, "error", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		d.logger.Info("helper exited non-zero", "oid", tk.OID, "error", err)
	}
}

func (d *Daemon) journalPathFor(tk *task.Task) string {
	uid, err := tk.Owner.ResolveUID()
	if err != nil {
		uid = 0
	}
	return d.ckpt.dir.JournalPath(uid)
}

// writeVTODO serializes tk as the VTODO record the helper reads on stdin
// (§4.5): enough fields to reconstruct the command, credentials, and I/O
// policy without re-parsing the original schedule source.
func writeVTODO(w io.Writer, tk *task.Task) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "BEGIN:VTODO\r\n")
	fmt.Fprintf(bw, "UID:%d\r\n", tk.OID)
	fmt.Fprintf(bw, "SUMMARY:%s\r\n", escapeText(tk.Summary))
	fmt.Fprintf(bw, "X-ECHS-COMMAND:%s\r\n", escapeText(tk.Command))
	for _, e := range tk.Env {
		fmt.Fprintf(bw, "X-ECHS-ENV:%s\r\n", escapeText(e))
	}
	fmt.Fprintf(bw, "X-ECHS-OWNER:%s\r\n", tk.Owner.String())
	fmt.Fprintf(bw, "X-ECHS-RUNAS:%s\r\n", tk.RunAs.String())
	fmt.Fprintf(bw, "X-ECHS-GROUP:%s\r\n", tk.Group.String())
	if tk.WorkDir != "" {
		fmt.Fprintf(bw, "X-ECHS-WORKDIR:%s\r\n", escapeText(tk.WorkDir))
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
	for _, a := range tk.Attendees {
		fmt.Fprintf(bw, "ATTENDEE:mailto:%s\r\n", escapeText(a.Mailto))
	}
	fmt.Fprintf(bw, "END:VTODO\r\n")
	return bw.Flush()
}

// ScanQueueDir injects every pending instruction already sitting in the
// queue directory's echsq_<uid>.ics files, bypassing the ownership check
// since these files are only writable by their owning uid or root
// (§4.4 startup behavior). Called once before ListenAndServe's accept
// loop starts.
func (d *Daemon) ScanQueueDir() error {
	uids, err := d.queueDir.PendingUIDs()
	if err != nil {
		return fmt.Errorf("scan queue directory: %w", err)
	}
	for _, uid := range uids {
		if err := d.injectQueueFile(uid); err != nil {
			d.logger.Error("inject pending queue file failed", "uid", uid, "error", err)
		}
	}
	return nil
}

func (d *Daemon) injectQueueFile(uid int) error {
	path := d.queueDir.QueuePath(uid)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	parser := d.Parser()
	parser.SetIncludeResolver(ical.DoublestarResolver(d.queueDir.Root()))
	instructions, err := parser.Feed(data)
	if err != nil {
		return err
	}
	final, err := parser.Close()
	if err != nil {
		return err
	}
	instructions = append(instructions, final...)

	for _, in := range instructions {
		switch in.Verb {
		case ical.VerbSchedule, ical.VerbReschedule:
			if err := d.Schedule(in.OID, in.Task, uid, true); err != nil {
				d.logger.Warn("startup schedule failed", "oid", in.OID, "error", err)
			}
		case ical.VerbUnschedule:
			if err := d.Unschedule(in.OID, uid, true); err != nil {
				d.logger.Warn("startup unschedule failed", "oid", in.OID, "error", err)
			}
		}
	}
	return nil
}

// Run starts the daemon's event loop: it arms nothing itself (tasks are
// armed as they're scheduled) and blocks until ctx is cancelled or a
// terminating signal arrives, checkpointing on a fixed interval.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(d.checkpointEvery)
	defer ticker.Stop()

	go d.watchQueueDir()

	d.logger.Info("daemon started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			close(d.stopWatch)
			if err := d.ckpt.Flush(d.table); err != nil {
				d.logger.Error("final checkpoint failed", "error", err)
			}
			return d.tl.Stop()
		case <-hup:
			d.logger.Info("SIGHUP received (reload stub, no-op)")
		case <-d.changed.C():
			if err := d.flushCheckpoint(); err != nil {
				d.logger.Error("checkpoint after change failed", "error", err)
			}
		case <-ticker.C:
			if err := d.flushCheckpoint(); err != nil {
				d.logger.Error("checkpoint failed", "error", err)
			}
		}
	}
}
