// Package queuedir resolves the on-disk layout the daemon and client use to
// exchange iCalendar traffic: a root spool for privileged operation and a
// per-user, per-host directory tree for unprivileged clients.
//
// Layout:
//
//	/var/spool/echse/                         (root daemon spool)
//	  echsq_<uid>.ics                          (pending schedule/reschedule/unschedule queue)
//	  echsj_<uid>.ics                          (completion journal, VJOURNAL records)
//
//	<home>/.echse/<host>/                      (per-user, per-host directory)
//	  echsq_<uid>.ics
//	  echsj_<uid>.ics
package queuedir

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const spoolRoot = "/var/spool/echse"

// Dir represents one queue directory: the root spool (uid 0) or a user's
// per-host directory under their home.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path, bypassing uid/hostname
// resolution (used by tests and the --queuedir override flag).
func New(root string) Dir {
	return Dir{root: root}
}

// ForUser returns the queue directory for uid on host. Uid 0 always
// resolves to the shared root spool; any other uid resolves to
// <home>/.echse/<host> under that uid's home directory.
func ForUser(uid int, host string) (Dir, error) {
	if uid == 0 {
		return Dir{root: spoolRoot}, nil
	}
	u, err := user.LookupId(fmt.Sprintf("%d", uid))
	if err != nil {
		return Dir{}, fmt.Errorf("look up uid %d: %w", uid, err)
	}
	return Dir{root: filepath.Join(u.HomeDir, ".echse", host)}, nil
}

// Default resolves the queue directory for the current process: root spool
// when running as uid 0, otherwise the calling user's per-host directory on
// the local hostname.
func Default() (Dir, error) {
	if os.Geteuid() == 0 {
		return Dir{root: spoolRoot}, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return Dir{}, fmt.Errorf("determine hostname: %w", err)
	}
	return ForUser(os.Getuid(), host)
}

// Root returns the queue directory path.
func (d Dir) Root() string {
	return d.root
}

// QueuePath returns the path to uid's pending-instruction queue file.
func (d Dir) QueuePath(uid int) string {
	return filepath.Join(d.root, fmt.Sprintf("echsq_%d.ics", uid))
}

// JournalPath returns the path to uid's completion journal.
func (d Dir) JournalPath(uid int) string {
	return filepath.Join(d.root, fmt.Sprintf("echsj_%d.ics", uid))
}

// PendingUIDs lists the uids with a queue file present under the root
// spool, for the daemon's startup scan (§4.4): it injects every pending
// echsq_<uid>.ics it finds before accepting new connections.
func (d Dir) PendingUIDs() ([]int, error) {
	fsys := os.DirFS(d.root)
	matches, err := doublestar.Glob(fsys, "echsq_*.ics")
	if err != nil {
		return nil, fmt.Errorf("scan queue directory %s: %w", d.root, err)
	}
	uids := make([]int, 0, len(matches))
	for _, m := range matches {
		base := strings.TrimSuffix(strings.TrimPrefix(m, "echsq_"), ".ics")
		uid, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

// EnsureExists creates the queue directory (and parents) if it doesn't
// exist, with permissions restrictive enough for per-user secrets: 0700 for
// a per-user directory, 0755 for the shared root spool (group-readable so
// echswd, running under the target uid, can still traverse it).
func (d Dir) EnsureExists() error {
	mode := os.FileMode(0o700)
	if d.root == spoolRoot {
		mode = 0o755
	}
	if err := os.MkdirAll(d.root, mode); err != nil {
		return fmt.Errorf("create queue directory %s: %w", d.root, err)
	}
	return nil
}
