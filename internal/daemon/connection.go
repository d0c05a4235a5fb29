package daemon

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"echse/internal/ical"
	"echse/internal/intern"
	"echse/internal/task"
)

// acceptRateLimit bounds how many connections a single peer uid may open
// per second before the accept loop starts delaying it (§2 domain stack:
// rate.Limiter on the listening socket).
const acceptRateLimit = 20

// ListenAndServe binds sockPath as an AF_UNIX stream socket and accepts
// connections until ctx is cancelled (§4.4 "Listening socket"). Each
// connection is handled on its own goroutine rather than folded into a
// single-threaded reactor loop — Go's scheduler already gives cooperative
// multiplexing over a much larger number of blocking readers than a
// hand-rolled event loop would, so the per-connection goroutine is the
// idiomatic rendering of "each accepted connection becomes a short-lived
// connection object".
func (d *Daemon) ListenAndServe(ctx context.Context, sockPath string) error {
	_ = os.Remove(sockPath)
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sockPath, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	d.logger.Info("listening", "socket", sockPath)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				d.logger.Error("accept failed", "error", err)
				continue
			}
		}
		uid, err := readPeerUID(conn)
		if err != nil {
			d.logger.Warn("reject connection: peer credentials unavailable", "error", err)
			conn.Close()
			continue
		}

		connID := uuid.NewString()
		nickname := petname.Generate(2, "-")
		limiter := d.limiterFor(uid)
		d.logger.Info("connection accepted", "conn", connID, "nickname", nickname, "uid", uid)

		go func() {
			if err := limiter.Wait(ctx); err != nil {
				conn.Close()
				return
			}
			d.handleConn(conn, uid, nickname)
		}()
	}
}

func (d *Daemon) handleConn(conn net.Conn, peerUID int, nickname string) {
	defer conn.Close()
	defer d.logger.Debug("connection closed", "nickname", nickname)

	r := bufio.NewReader(conn)
	peek, err := r.Peek(4)
	if err != nil {
		return
	}

	if string(peek) == "GET " {
		d.handleQuery(conn, r, peerUID)
		return
	}
	d.handlePush(conn, r, peerUID)
}

// handleQuery answers the GET-style routes: the per-user queue dump, the
// tab-separated schedule listing, and the /health counters line.
func (d *Daemon) handleQuery(conn net.Conn, r *bufio.Reader, peerUID int) {
	line, err := r.ReadString('\n')
	if err != nil {
		return
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		writeStatus(conn, 400, "bad request")
		return
	}
	target := parts[1]

	u, err := url.Parse(target)
	if err != nil {
		writeStatus(conn, 400, "bad request")
		return
	}

	switch {
	case strings.HasPrefix(u.Path, "/u/") && strings.HasSuffix(u.Path, "/queue"):
		d.serveQueue(conn, u, peerUID)
	case u.Path == "/sched":
		d.serveSched(conn, peerUID)
	case u.Path == "/health":
		d.serveHealth(conn)
	default:
		writeStatus(conn, 404, "not found")
	}
}

// serveHealth reports uptime, task count, and live-child count as a
// plain-text line, a natural complement to /sched and /u/<uid>/queue over
// the same connection-handling path.
func (d *Daemon) serveHealth(conn net.Conn) {
	d.mu.Lock()
	live := 0
	for _, n := range d.running {
		live += n
	}
	d.mu.Unlock()

	fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\n\r\n")
	fmt.Fprintf(conn, "uptime=%s\ttasks=%d\tlive=%d\n", time.Since(d.startedAt).Round(time.Second), d.table.Len(), live)
}

func (d *Daemon) serveQueue(conn net.Conn, u *url.URL, peerUID int) {
	rest := strings.TrimPrefix(u.Path, "/u/")
	uidStr := strings.TrimSuffix(rest, "/queue")
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		writeStatus(conn, 400, "bad request")
		return
	}
	if uid != peerUID && peerUID != 0 {
		writeStatus(conn, 403, "forbidden")
		return
	}

	filter := make(map[string]bool)
	for _, tuid := range u.Query()["tuid"] {
		filter[tuid] = true
	}

	fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\n\r\n")
	fmt.Fprintf(conn, "BEGIN:VCALENDAR\r\nMETHOD:PUBLISH\r\n")
	d.table.Each(func(_ intern.Handle, tk *task.Task) {
		ownerUID, err := tk.Owner.ResolveUID()
		if err != nil || ownerUID != uid {
			return
		}
		tuid := strconv.Itoa(int(tk.OID))
		if len(filter) > 0 && !filter[tuid] {
			return
		}
		writeTaskVEvent(conn, tk)
	})
	fmt.Fprintf(conn, "END:VCALENDAR\r\n")
}

func (d *Daemon) serveSched(conn net.Conn, peerUID int) {
	fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\n\r\n")
	d.table.Each(func(_ intern.Handle, tk *task.Task) {
		ownerUID, err := tk.Owner.ResolveUID()
		if err != nil || (ownerUID != peerUID && peerUID != 0) {
			return
		}
		fmt.Fprintf(conn, "%d\t%s/%s\n", tk.OID, tk.Scheduled.Begin.String(), tk.Scheduled.End.String())
	})
}

// handlePush parses a pushed iCalendar stream and enacts each
// instruction, replying with a REPLY VEVENT per instruction (§4.4,
// "An iCalendar stream pushed by the client").
func (d *Daemon) handlePush(conn net.Conn, r *bufio.Reader, peerUID int) {
	parser := d.Parser()
	parser.SetIncludeResolver(ical.DoublestarResolver(d.queueDir.Root()))

	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			instructions, ferr := parser.Feed(buf[:n])
			if ferr != nil {
				writeReply(conn, "", false, ferr.Error())
				return
			}
			d.enactAndReply(conn, instructions, peerUID)
		}
		if err != nil {
			break
		}
	}
	final, err := parser.Close()
	if err != nil {
		writeReply(conn, "", false, err.Error())
		return
	}
	d.enactAndReply(conn, final, peerUID)
}

func (d *Daemon) enactAndReply(conn net.Conn, instructions []ical.Instruction, peerUID int) {
	for _, in := range instructions {
		var err error
		switch in.Verb {
		case ical.VerbSchedule, ical.VerbReschedule:
			err = d.Schedule(in.OID, in.Task, peerUID, false)
		case ical.VerbUnschedule:
			err = d.Unschedule(in.OID, peerUID, false)
		default:
			continue
		}
		writeReply(conn, in.OID, err == nil, errString(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// writeReply emits the REQUEST-STATUS acknowledgement: 2.0 on success,
// 5.1 on failure (§4.4).
func writeReply(conn net.Conn, oid string, ok bool, detail string) {
	status := "2.0"
	if !ok {
		status = "5.1"
	}
	fmt.Fprintf(conn, "BEGIN:VEVENT\r\nUID:%s\r\nREQUEST-STATUS:%s", oid, status)
	if detail != "" {
		fmt.Fprintf(conn, ";%s", escapeText(detail))
	}
	fmt.Fprintf(conn, "\r\nEND:VEVENT\r\n")
}

func writeStatus(conn net.Conn, code int, reason string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n\r\n", code, reason)
}
