package helper

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"echse/internal/intern"
	"echse/internal/task"
)

// ReadVTODO decodes the single VTODO record the daemon's helper-spawn
// path writes to stdin (see internal/daemon's writeVTODO), reconstructing
// enough of the task for one supervised run. It isn't a general
// iCalendar reader — line folding and every keyword internal/ical knows
// about aren't needed here, since the daemon controls both ends of this
// particular wire format.
func ReadVTODO(r io.Reader) (*task.Task, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tk := &task.Task{}
	seenBegin := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if line == "BEGIN:VTODO" {
			seenBegin = true
			continue
		}
		if line == "END:VTODO" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = unescape(value)
		switch name {
		case "UID":
			n, _ := strconv.Atoi(value)
			tk.OID = intern.Handle(n)
		case "SUMMARY":
			tk.Summary = value
		case "X-ECHS-COMMAND":
			tk.Command = value
		case "X-ECHS-ENV":
			tk.Env = append(tk.Env, value)
		case "X-ECHS-OWNER":
			tk.Owner = task.ParseNumMapStr(value)
		case "X-ECHS-RUNAS":
			tk.RunAs = task.ParseNumMapStr(value)
		case "X-ECHS-GROUP":
			tk.Group = task.ParseNumMapStr(value)
		case "X-ECHS-WORKDIR":
			tk.WorkDir = value
		case "X-ECHS-SHELL":
			tk.Shell = value
		case "X-ECHS-UMASK":
			n, err := strconv.ParseInt(value, 8, 32)
			if err == nil {
				tk.Umask = int(n)
			}
		case "X-ECHS-IFILE":
			tk.Stdin = value
		case "X-ECHS-OFILE":
			tk.Stdout = value
		case "X-ECHS-EFILE":
			tk.Stderr = value
		case "X-ECHS-MAIL-RUN":
			tk.Mail.Run = value == "true"
		case "X-ECHS-MAIL-OUT":
			tk.Mail.Out = value == "true"
		case "X-ECHS-MAIL-ERR":
			tk.Mail.Err = value == "true"
		case "ATTENDEE":
			tk.Attendees = append(tk.Attendees, task.Attendee{Mailto: strings.TrimPrefix(value, "mailto:")})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vtodo: %w", err)
	}
	if !seenBegin {
		return nil, fmt.Errorf("read vtodo: missing BEGIN:VTODO")
	}
	return tk, nil
}

func unescape(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}
