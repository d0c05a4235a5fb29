// Package helper implements the per-fire execution supervisor (§4.5):
// it reads one task off stdin, wires up stdout/stderr/mail capture,
// spawns the command under the requested credentials with an optional
// timeout, and writes the resulting VJOURNAL record.
package helper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"echse/internal/instant"
	"echse/internal/mailer"
	"echse/internal/task"
	"echse/internal/vjournal"
)

// Options configures one supervised run.
type Options struct {
	// NoRun skips spawning the command entirely (the daemon's
	// max-simultaneous throttling asks for a "not run" record).
	NoRun bool
	// JournalPath receives the VJOURNAL record; append-locked so
	// concurrent helper instances for the same user don't interleave.
	JournalPath string
	Mailer      mailer.Mailer
}

// Result is what the caller (cmd/echswd's main) needs to decide its own
// exit status.
type Result struct {
	ExitCode int
	Err      error
}

// Run supervises tk for one fire: timeout selection, descriptor setup,
// spawn, completion recording, and mail dispatch.
func Run(ctx context.Context, tk *task.Task, opts Options) Result {
	now := instant.Now()
	if opts.NoRun {
		rec := vjournal.Record{
			UID:       tk.Summary,
			DTStart:   now,
			Completed: now,
			Summary:   tk.Summary,
			Outcome:   vjournal.Skipped,
		}
		writeJournal(opts.JournalPath, rec)
		return Result{ExitCode: 0}
	}

	plan := planDescriptors(tk)
	defer plan.closeAll()

	shell := tk.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", tk.Command)
	cmd.Dir = tk.WorkDir
	cmd.Env = append(os.Environ(), tk.Env...)
	cmd.Stdin = plan.stdin
	cmd.Stdout = plan.stdoutWriter()
	cmd.Stderr = plan.stderrWriter()

	if cred, err := credentialFor(tk); err == nil && cred != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}
	}

	restoreUmask := applyUmask(tk)
	defer restoreUmask()

	if err := cmd.Start(); err != nil {
		rec := vjournal.Record{
			DTStart:   now,
			Completed: instant.Now(),
			Summary:   tk.Summary,
			Outcome:   vjournal.Completed,
			ExitStatus: 127,
		}
		writeJournal(opts.JournalPath, rec)
		dispatchMail(tk, opts.Mailer, plan, rec, fmt.Sprintf("spawn failed: %v", err))
		return Result{ExitCode: 127, Err: err}
	}

	timer, timedOut := armTimeout(cmd, tk)

	waitErr := cmd.Wait()
	if timer != nil {
		timer.Stop()
	}

	rec := vjournal.Record{
		DTStart:   now,
		Completed: instant.Now(),
		Summary:   tk.Summary,
		Outcome:   vjournal.Completed,
	}
	if timedOut() {
		rec.Outcome = vjournal.TimedOut
		rec.Signaled = true
		rec.SignalName = "SIGXCPU"
	}
	if ps := cmd.ProcessState; ps != nil {
		rec.ExitStatus = ps.ExitCode()
		rec.UserTime = ps.UserTime()
		rec.SystemTime = ps.SystemTime()
		if ru, ok := ps.SysUsage().(*syscall.Rusage); ok {
			rec.MaxRSSKB = ru.Maxrss
		}
	} else if waitErr != nil {
		rec.ExitStatus = 1
	}

	writeJournal(opts.JournalPath, rec)
	dispatchMail(tk, opts.Mailer, plan, rec, "")

	return Result{ExitCode: rec.ExitStatus, Err: waitErr}
}

func writeJournal(path string, rec vjournal.Record) {
	if path == "" {
		_ = vjournal.Write(os.Stdout, rec)
		return
	}
	_ = vjournal.AppendLocked(path, rec)
}

// armTimeout starts an alarm-equivalent timer for tk's scheduled
// duration, if any, sending SIGXCPU to the child on expiry (§4.5
// "Timeouts"). The caller stops the returned timer once the child has
// been waited on; the returned closure then reports whether it fired
// first.
func armTimeout(cmd *exec.Cmd, tk *task.Task) (*time.Timer, func() bool) {
	dur := instant.Sub(tk.Scheduled.End, tk.Scheduled.Begin)
	if dur.IsZero() || tk.Scheduled.Begin.IsNull() {
		return nil, func() bool { return false }
	}
	var fired int32
	timer := time.AfterFunc(time.Duration(dur.Millis)*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGXCPU)
		}
	})
	return timer, func() bool { return atomic.LoadInt32(&fired) == 1 }
}

func credentialFor(tk *task.Task) (*syscall.Credential, error) {
	if tk.RunAs == (task.NumMapStr{}) {
		return nil, nil
	}
	uid, err := tk.RunAs.ResolveUID()
	if err != nil {
		return nil, err
	}
	cred := &syscall.Credential{Uid: uint32(uid)}
	if tk.Group != (task.NumMapStr{}) {
		gid, err := tk.Group.ResolveGID()
		if err == nil {
			cred.Gid = uint32(gid)
			cred.Groups = []uint32{uint32(gid)}
		}
	}
	return cred, nil
}

func applyUmask(tk *task.Task) func() {
	if tk.UmaskUntouched() {
		return func() {}
	}
	mode := tk.Umask
	old := syscall.Umask(mode)
	return func() { syscall.Umask(old) }
}

// descriptorPlan resolves the 20-case stdout/stderr/mail combination
// table (§4.5 step 4) with one general rule instead of enumerating every
// case by hand: each stream writes to its file (or /dev/null when
// unset), and additionally tees into a shared mail buffer whenever that
// stream's mail flag is set. "Combined" and "tee to pipe" collapse into
// the same io.MultiWriter construction the file and mail-flag cases
// already use.
type descriptorPlan struct {
	stdin      io.Reader
	stdinFile  *os.File
	stdoutFile *os.File
	stderrFile *os.File
	mailBuf    *bytes.Buffer
	mailOut    bool
	mailErr    bool
}

func planDescriptors(tk *task.Task) *descriptorPlan {
	p := &descriptorPlan{mailBuf: &bytes.Buffer{}, mailOut: tk.Mail.Out, mailErr: tk.Mail.Err}

	if tk.Stdin != "" {
		if f, err := os.Open(tk.Stdin); err == nil {
			p.stdin = f
			p.stdinFile = f
		}
	}
	if p.stdin == nil {
		p.stdin = strings.NewReader("")
	}

	if tk.Stdout != "" {
		if f, err := os.OpenFile(tk.Stdout, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			p.stdoutFile = f
		}
	}
	if tk.Stderr != "" {
		if tk.Stderr == tk.Stdout && p.stdoutFile != nil {
			p.stderrFile = p.stdoutFile
		} else if f, err := os.OpenFile(tk.Stderr, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			p.stderrFile = f
		}
	}
	return p
}

func (p *descriptorPlan) stdoutWriter() io.Writer {
	return p.streamWriter(p.stdoutFile, p.mailOut)
}

func (p *descriptorPlan) stderrWriter() io.Writer {
	return p.streamWriter(p.stderrFile, p.mailErr)
}

func (p *descriptorPlan) streamWriter(file *os.File, mail bool) io.Writer {
	var writers []io.Writer
	if file != nil {
		writers = append(writers, file)
	}
	if mail {
		writers = append(writers, p.mailBuf)
	}
	switch len(writers) {
	case 0:
		return io.Discard
	case 1:
		return writers[0]
	default:
		return io.MultiWriter(writers...)
	}
}

func (p *descriptorPlan) closeAll() {
	if p.stdinFile != nil {
		p.stdinFile.Close()
	}
	if p.stdoutFile != nil {
		p.stdoutFile.Close()
	}
	if p.stderrFile != nil && p.stderrFile != p.stdoutFile {
		p.stderrFile.Close()
	}
}

// dispatchMail sends captured output to the task's attendees when mail
// is configured and there's something to report (§4.5 step 8).
func dispatchMail(tk *task.Task, m mailer.Mailer, plan *descriptorPlan, rec vjournal.Record, failureMsg string) {
	if m == nil || !tk.HasMailRecipients() {
		return
	}
	if !tk.Mail.Run && !tk.Mail.Out && !tk.Mail.Err {
		return
	}

	var to []string
	for _, a := range tk.Attendees {
		to = append(to, a.Mailto)
	}

	body := plan.mailBuf.String()
	if failureMsg != "" {
		body = failureMsg + "\n" + body
	}
	if body == "" {
		body = fmt.Sprintf("task %q completed with exit status %d\n", tk.Summary, rec.ExitStatus)
	}

	_ = m.Send(mailer.Message{
		From:    tk.Organizer,
		To:      to,
		Subject: fmt.Sprintf("echse: %s (exit %d)", tk.Summary, rec.ExitStatus),
		Body:    body,
	})
}
