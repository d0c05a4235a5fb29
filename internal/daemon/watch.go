package daemon

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watchQueueDir follows external writes to echsq_<uid>.ics files (e.g. a
// config-management run dropping a spool file directly on disk) and
// hot-injects them the same way the startup scan does, trusting the
// queue directory exactly as ScanQueueDir does (§4.4). Grounded on the
// teacher's log-tailing use of fsnotify: watch a directory, react to
// writes.
func (d *Daemon) watchQueueDir() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Error("queue directory watcher unavailable", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(d.queueDir.Root()); err != nil {
		d.logger.Error("watch queue directory failed", "path", d.queueDir.Root(), "error", err)
		return
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			uid, ok := uidFromQueuePath(ev.Name)
			if !ok {
				continue
			}
			if err := d.injectQueueFile(uid); err != nil {
				d.logger.Error("hot-reload queue file failed", "uid", uid, "error", err)
			} else {
				d.logger.Info("hot-reloaded externally written queue file", "uid", uid)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("queue directory watch error", "error", err)
		case <-d.stopWatch:
			return
		}
	}
}

func uidFromQueuePath(path string) (int, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "echsq_") || !strings.HasSuffix(base, ".ics") {
		return 0, false
	}
	uidStr := strings.TrimSuffix(strings.TrimPrefix(base, "echsq_"), ".ics")
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return 0, false
	}
	return uid, true
}
