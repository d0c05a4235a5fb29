package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"echse/internal/intern"
	"echse/internal/task"
)

// timeline drives each task's periodic timer: a gocron one-time job that
// re-arms itself at the stream's next occurrence after every fire, the
// idiomatic-Go rendering of "a reschedule callback that advances the
// task's stream ... returns its UTC-epoch time to the timer library"
// (§4.4). When the stream is exhausted the task is evicted from the
// table instead of re-arming.
type timeline struct {
	sched  gocron.Scheduler
	logger *slog.Logger
	table  *Table
	onFire func(oid intern.Handle, tk *task.Task)
	jobs   map[intern.Handle]gocron.Job
}

func newTimeline(logger *slog.Logger, table *Table, onFire func(intern.Handle, *task.Task)) (*timeline, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create timer scheduler: %w", err)
	}
	s.Start()
	return &timeline{sched: s, logger: logger, table: table, onFire: onFire, jobs: make(map[intern.Handle]gocron.Job)}, nil
}

// Arm schedules (or re-schedules) oid's next timer fire by popping past
// events whose from is already due and peeking the next one. If the
// stream is exhausted, oid is removed from the table and no timer is
// armed (the "unschedule callback that fires once" from §4.4, collapsed
// here since Go doesn't need a second timer type to express "deregister").
func (tl *timeline) Arm(oid intern.Handle, tk *task.Task) {
	tl.cancel(oid)

	now := time.Now().UTC()
	for {
		e := tk.Stream.Next()
		if e.IsNull() {
			tl.table.Delete(oid)
			return
		}
		fire := e.From.Time()
		if !fire.Before(now) {
			tk.Scheduled = e.Range()
			tl.scheduleAt(oid, tk, fire)
			return
		}
		tk.Stream.Pop()
	}
}

func (tl *timeline) scheduleAt(oid intern.Handle, tk *task.Task, at time.Time) {
	j, err := tl.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() {
			tk.Stream.Pop()
			tl.onFire(oid, tk)
			tl.Arm(oid, tk)
		}),
	)
	if err != nil {
		tl.logger.Error("arm task timer failed", "error", err)
		return
	}
	tl.jobs[oid] = j
}

func (tl *timeline) cancel(oid intern.Handle) {
	if j, ok := tl.jobs[oid]; ok {
		_ = tl.sched.RemoveJob(j.ID())
		delete(tl.jobs, oid)
	}
}

// Remove cancels oid's timer without re-arming (used by unschedule).
func (tl *timeline) Remove(oid intern.Handle) {
	tl.cancel(oid)
}

func (tl *timeline) Stop() error {
	return tl.sched.Shutdown()
}
