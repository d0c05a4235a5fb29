package ical

import (
	"fmt"
	"strconv"
	"strings"

	"echse/internal/evstream"
	"echse/internal/instant"
	"echse/internal/intern"
	"echse/internal/rrule"
	"echse/internal/task"
)

// accumulator gathers the fields of one VEVENT/VTODO while its BEGIN/END
// markers are open.
type accumulator struct {
	isVTodo bool

	oid         string
	summary     string
	description string
	location    string

	dtstart  instant.Instant
	duration instant.Duration
	hasDtend bool
	dtend    instant.Instant

	rdates []instant.Instant
	xdates []instant.Instant
	rrules []rrule.Rule
	xrules []rrule.Rule
	movers []moverSpec

	organizer string
	attendees []task.Attendee

	setUID NumMapStrField
	setGID NumMapStrField
	shell  string
	umask  string // raw octal text, parsed at finish
	mailRun, mailOut, mailErr bool
	ifile, ofile, efile string

	status string
}

// NumMapStrField wraps a parsed task.NumMapStr with whether its field was
// present at all; finish copies the value into the task only when set.
type NumMapStrField struct {
	set   bool
	value task.NumMapStr
}

func newAccumulator(isVTodo bool) *accumulator {
	return &accumulator{isVTodo: isVTodo, mailRun: true}
}

func (p *Parser) applyField(name string, params map[string]string, value string) {
	a := p.cur
	switch name {
	case "UID":
		a.oid = value
	case "SUMMARY":
		a.summary = value
	case "DESCRIPTION":
		a.description = value
	case "LOCATION":
		a.location = value
	case "DTSTART":
		a.dtstart = parseDateTime(value)
	case "DTEND":
		a.dtend = parseDateTime(value)
		a.hasDtend = true
	case "DURATION":
		a.duration = parseDuration(value)
	case "RDATE":
		for _, v := range strings.Split(value, ",") {
			if i := parseDateTime(v); !i.IsNull() {
				a.rdates = append(a.rdates, i)
			}
		}
	case "XDATE":
		for _, v := range strings.Split(value, ",") {
			if i := parseDateTime(v); !i.IsNull() {
				a.xdates = append(a.xdates, i)
			}
		}
	case "RRULE":
		a.rrules = append(a.rrules, parseRule(value))
	case "XRULE":
		a.xrules = append(a.xrules, parseRule(value))
	case "MRULE":
		if ms, ok := p.parseMoverRule(value); ok {
			a.movers = append(a.movers, ms)
		}
	case "MFILE":
		p.expandInclude(value)
	case "ORGANIZER":
		a.organizer = value
	case "ATTENDEE":
		a.attendees = append(a.attendees, task.Attendee{Mailto: value, Params: params})
	case "STATUS":
		a.status = value
	case "X-ECHS-SETUID":
		a.setUID = NumMapStrField{set: true, value: task.ParseNumMapStr(value)}
	case "X-ECHS-SETGID":
		a.setGID = NumMapStrField{set: true, value: task.ParseNumMapStr(value)}
	case "X-ECHS-SHELL":
		a.shell = value
	case "X-ECHS-UMASK":
		a.umask = value
	case "X-ECHS-MAIL-RUN":
		a.mailRun = parseBool01(value)
	case "X-ECHS-MAIL-OUT":
		a.mailOut = parseBool01(value)
	case "X-ECHS-MAIL-ERR":
		a.mailErr = parseBool01(value)
	case "X-ECHS-IFILE":
		a.ifile = value
	case "X-ECHS-OFILE":
		a.ofile = value
	case "X-ECHS-EFILE":
		a.efile = value
	}
}

// expandInclude resolves an MFILE glob pattern and feeds the matched
// files' contents back through the parser, guarding against runaway
// recursion (§7: "stack-depth>4 resource-exhaustion guard").
func (p *Parser) expandInclude(pattern string) {
	if p.resolveInclude == nil || p.includeDepth >= maxIncludeDepth {
		return
	}
	files, err := p.resolveInclude(pattern)
	if err != nil {
		return
	}
	p.includeDepth++
	defer func() { p.includeDepth-- }()
	for _, contents := range files {
		sub := New(p.Tasks, p.States)
		sub.includeDepth = p.includeDepth
		sub.resolveInclude = p.resolveInclude
		_, _ = sub.Feed(contents)
		_, _ = sub.Close()
	}
}

// finishAccumulator builds the Instruction for a completed component.
func (p *Parser) finishAccumulator(a *accumulator) (*Instruction, error) {
	verb := p.verbFor()
	if a.oid == "" {
		return nil, fmt.Errorf("component missing UID")
	}

	if verb == VerbUnschedule {
		return &Instruction{Verb: verb, OID: a.oid}, nil
	}

	oid := p.Tasks.Intern(a.oid)

	duration := a.duration
	if a.hasDtend && duration.IsZero() {
		duration = instant.Sub(a.dtend, a.dtstart)
	}

	t := &task.Task{
		OID:       oid,
		Summary:   a.summary,
		Command:   a.description,
		WorkDir:   a.location,
		Shell:     a.shell,
		Organizer: a.organizer,
		Attendees: a.attendees,
		Mail: task.MailPolicy{
			Run: a.mailRun,
			Out: a.mailOut,
			Err: a.mailErr,
		},
		Stdin:  a.ifile,
		Stdout: a.ofile,
		Stderr: a.efile,
	}
	if a.setUID.set {
		t.RunAs = a.setUID.value
	}
	if a.setGID.set {
		t.Group = a.setGID.value
	}
	if a.umask != "" {
		if n, err := strconv.ParseInt(a.umask, 8, 32); err == nil {
			t.Umask = int(n)
		}
	}

	t.Stream = buildStream(a, duration, oid)

	return &Instruction{Verb: verb, OID: a.oid, Task: t}, nil
}

// buildStream composes the task's event stream as RRULE+RDATE minus
// XRULE+XDATE, per §4.1.
func buildStream(a *accumulator, duration instant.Duration, oid intern.Handle) evstream.Stream {
	var fixed []evstream.Event
	for _, d := range a.rdates {
		fixed = append(fixed, evstream.Event{From: d, Till: instant.Add(d, duration), Task: oid})
	}
	if !a.dtstart.IsNull() {
		fixed = append(fixed, evstream.Event{From: a.dtstart, Till: instant.Add(a.dtstart, duration), Task: oid})
	}

	var children []evstream.Stream
	if len(fixed) > 0 {
		children = append(children, evstream.NewFixed(fixed))
	}
	for _, r := range a.rrules {
		children = append(children, evstream.NewRecurrence(r, a.dtstart, duration, oid, 0))
	}

	var base evstream.Stream
	switch len(children) {
	case 0:
		base = evstream.NewFixed(nil)
	case 1:
		base = children[0]
	default:
		base = evstream.NewMux(children...)
	}

	if len(a.xrules) > 0 || len(a.xdates) > 0 {
		var excChildren []evstream.Stream
		if len(a.xdates) > 0 {
			var xfixed []evstream.Event
			for _, d := range a.xdates {
				xfixed = append(xfixed, evstream.Event{From: d, Till: instant.Add(d, duration), Task: oid})
			}
			excChildren = append(excChildren, evstream.NewFixed(xfixed))
		}
		for _, r := range a.xrules {
			excChildren = append(excChildren, evstream.NewRecurrence(r, a.dtstart, duration, oid, 0))
		}
		var exceptions evstream.Stream
		if len(excChildren) == 1 {
			exceptions = excChildren[0]
		} else {
			exceptions = evstream.NewMux(excChildren...)
		}
		base = evstream.NewExceptionFilter(base, exceptions)
	}

	return wireMovers(base, a.movers, duration, oid)
}

// wireMovers wraps stream with a Mover per entry in movers, each relocating
// events blocked by its own auxiliary recurrence (§4.3 "evmrul").
func wireMovers(stream evstream.Stream, movers []moverSpec, duration instant.Duration, oid intern.Handle) evstream.Stream {
	for _, ms := range movers {
		aux := evstream.NewRecurrence(ms.auxRule, ms.auxAnchor, duration, oid, ms.from)
		mv := evstream.NewMover(stream, ms.dir, ms.from, ms.into)
		mv.Attach(aux)
		stream = mv
	}
	return stream
}

// moverSpec is one parsed MRULE term: a direction, the state a mover
// relocates away from and into, and the auxiliary rule that marks which
// instants carry the from-state.
type moverSpec struct {
	dir       evstream.Direction
	from      intern.StateMask
	into      intern.StateMask
	auxRule   rrule.Rule
	auxAnchor instant.Instant
}

// parseMoverRule parses one MRULE value. The grammar is this parser's own
// (§4.1 leaves MRULE's wire form unspecified beyond naming it a mover
// rule): semicolon-separated KEY=VALUE terms —
//
//	DIR=PAST|FUTURE|PASTTHENFUTURE|FUTURETHENPAST
//	FROM=<state name>        state a blocked event is relocated away from
//	INTO=<state name>        state a relocated event is placed into
//	AUXDTSTART=<date-time>   anchor for the auxiliary rule below
//	AUXRULE=<RRULE term>     marks which instants carry FROM's state
//
// ok is false when DIR, FROM, AUXDTSTART or AUXRULE is missing or
// unparseable; such a term is dropped rather than producing a half-wired
// mover.
func (p *Parser) parseMoverRule(value string) (moverSpec, bool) {
	var ms moverSpec
	var haveDir, haveFrom, haveAnchor, haveRule bool
	for _, term := range strings.Split(value, ";") {
		eq := strings.IndexByte(term, '=')
		if eq < 0 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(term[:eq]))
		val := term[eq+1:]
		switch key {
		case "DIR":
			d, ok := parseMoverDirection(val)
			if !ok {
				return moverSpec{}, false
			}
			ms.dir = d
			haveDir = true
		case "FROM":
			ms.from = p.States.Bit(val)
			haveFrom = true
		case "INTO":
			ms.into = p.States.Bit(val)
		case "AUXDTSTART":
			ms.auxAnchor = parseDateTime(val)
			haveAnchor = !ms.auxAnchor.IsNull()
		case "AUXRULE":
			ms.auxRule = parseRule(val)
			haveRule = true
		}
	}
	if !haveDir || !haveFrom || !haveAnchor || !haveRule {
		return moverSpec{}, false
	}
	return ms, true
}

func parseMoverDirection(s string) (evstream.Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PAST":
		return evstream.Past, true
	case "FUTURE":
		return evstream.Future, true
	case "PASTTHENFUTURE":
		return evstream.PastThenFuture, true
	case "FUTURETHENPAST":
		return evstream.FutureThenPast, true
	default:
		return 0, false
	}
}

// parseRule parses an RRULE/XRULE value string into a Rule.
func parseRule(value string) rrule.Rule {
	r := rrule.New(rrule.None)
	for _, term := range strings.Split(value, ";") {
		eq := strings.IndexByte(term, '=')
		if eq < 0 {
			continue
		}
		key := strings.ToUpper(term[:eq])
		val := term[eq+1:]
		switch key {
		case "FREQ":
			r.Freq = parseFreq(val)
		case "INTERVAL":
			r.Interval = parseInt(val, 1)
		case "COUNT":
			r.Count = int64(parseInt(val, int(rrule.Unbounded)))
		case "UNTIL":
			r.Until = parseDateTime(val)
		case "WKST":
			r.WeekStart = weekdayCode(val)
		case "BYMONTH":
			for _, n := range splitInts(val) {
				if n >= 1 && n <= 12 {
					r.ByMonth.Add(n - 1)
				}
			}
		case "BYMONTHDAY":
			for _, n := range splitInts(val) {
				r.ByMonthDay.Add(n)
			}
		case "BYYEARDAY":
			for _, n := range splitInts(val) {
				r.ByYearDay.Add(n)
			}
		case "BYWEEKNO":
			for _, n := range splitInts(val) {
				r.ByWeekNo.Add(n)
			}
		case "BYSETPOS":
			for _, n := range splitInts(val) {
				r.BySetPos.Add(n)
			}
		case "BYEASTER":
			for _, n := range splitInts(val) {
				r.ByEaster.Add(n)
			}
		case "BYADD":
			for _, n := range splitInts(val) {
				r.ByAdd.Add(n)
			}
		case "BYHOUR":
			for _, n := range splitInts(val) {
				r.ByHour.Add(n)
			}
		case "BYMINUTE":
			for _, n := range splitInts(val) {
				r.ByMinute.Add(n)
			}
		case "BYSECOND":
			for _, n := range splitInts(val) {
				r.BySecond.Add(n)
			}
		case "BYDAY":
			for _, tok := range strings.Split(val, ",") {
				if we, ok := parseWeekdayEntry(tok); ok {
					r.ByDay = append(r.ByDay, we)
				}
			}
		}
	}
	return r
}

func parseFreq(s string) rrule.Frequency {
	switch strings.ToUpper(s) {
	case "YEARLY":
		return rrule.Yearly
	case "MONTHLY":
		return rrule.Monthly
	case "WEEKLY":
		return rrule.Weekly
	case "DAILY":
		return rrule.Daily
	case "HOURLY":
		return rrule.Hourly
	case "MINUTELY":
		return rrule.Minutely
	case "SECONDLY":
		return rrule.Secondly
	default:
		return rrule.None
	}
}

func splitInts(s string) []int {
	var out []int
	for _, tok := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

var weekdayCodes = map[string]int{
	"MO": 1, "TU": 2, "WE": 3, "TH": 4, "FR": 5, "SA": 6, "SU": 7,
}

func weekdayCode(s string) int {
	if w, ok := weekdayCodes[strings.ToUpper(s)]; ok {
		return w
	}
	return 1
}

// parseWeekdayEntry parses one BYDAY token, e.g. "2MO", "-1FR", "WE".
func parseWeekdayEntry(tok string) (rrule.WeekdayEntry, bool) {
	tok = strings.TrimSpace(tok)
	if len(tok) < 2 {
		return rrule.WeekdayEntry{}, false
	}
	code := strings.ToUpper(tok[len(tok)-2:])
	w, ok := weekdayCodes[code]
	if !ok {
		return rrule.WeekdayEntry{}, false
	}
	countStr := tok[:len(tok)-2]
	count := 0
	if countStr != "" {
		if n, err := strconv.Atoi(countStr); err == nil {
			count = n
		}
	}
	return rrule.WeekdayEntry{Count: count, Weekday: w}, true
}
