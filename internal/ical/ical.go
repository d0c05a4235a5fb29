// Package ical implements the line-folded iCalendar pull-parser (§4.1):
// it consumes bytes in arbitrary-sized chunks and yields scheduling
// instructions as soon as each VEVENT/VTODO component completes.
package ical

import (
	"bytes"
	"strconv"
	"strings"

	"echse/internal/instant"
	"echse/internal/intern"
	"echse/internal/task"
)

// defaultMaxLine bounds the stash buffer: a folded logical line longer
// than this is silently dropped rather than grown without limit.
const defaultMaxLine = 64 * 1024

// maxIncludeDepth bounds MFILE include-directive recursion (§7).
const maxIncludeDepth = 4

// Verb classifies a parsed instruction.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbSchedule
	VerbReschedule
	VerbUnschedule
	VerbReplySuccess
	VerbReplyFailure
)

func (v Verb) String() string {
	switch v {
	case VerbSchedule:
		return "schedule"
	case VerbReschedule:
		return "reschedule"
	case VerbUnschedule:
		return "unschedule"
	case VerbReplySuccess:
		return "reply-success"
	case VerbReplyFailure:
		return "reply-failure"
	default:
		return "unknown"
	}
}

// Instruction is one yielded parser output: a verb, the oid it applies
// to, and (for schedule/reschedule) the constructed task.
type Instruction struct {
	Verb Verb
	OID  string
	Task *task.Task
}

type parseState int

const (
	stUnknown parseState = iota
	stBody
	stVEvent
)

// Parser is a streaming, chunked iCalendar parser. The zero value is not
// usable; use New.
type Parser struct {
	Tasks  *intern.Table
	States *intern.StateTable

	maxLine int

	raw     []byte
	logical []byte
	overflow bool

	state  parseState
	method string // VCALENDAR METHOD, drives the default verb

	cur *accumulator

	includeDepth int
	resolveInclude func(pattern string) ([][]byte, error) // MFILE expansion, nil disables it
}

// New creates a Parser. tasks and states are the process-wide interning
// tables (§3 "interned strings ... outlive all objects").
func New(tasks *intern.Table, states *intern.StateTable) *Parser {
	return &Parser{
		Tasks:   tasks,
		States:  states,
		maxLine: defaultMaxLine,
		method:  "PUBLISH",
	}
}

// SetIncludeResolver installs the callback used to expand MFILE glob
// patterns into file contents. Without one, MFILE lines are ignored.
func (p *Parser) SetIncludeResolver(f func(pattern string) ([][]byte, error)) {
	p.resolveInclude = f
}

// Feed appends chunk to the parser's internal buffer and returns every
// instruction completed as a result.
func (p *Parser) Feed(chunk []byte) ([]Instruction, error) {
	p.raw = append(p.raw, chunk...)
	var out []Instruction
	for {
		idx := bytes.IndexByte(p.raw, '\n')
		if idx < 0 {
			return out, nil
		}
		line := p.raw[:idx]
		p.raw = p.raw[idx+1:]
		line = bytes.TrimSuffix(line, []byte("\r"))

		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			p.foldContinuation(line[1:])
			continue
		}

		if ins, err := p.flushLogical(); err != nil {
			return out, err
		} else if ins != nil {
			out = append(out, *ins)
		}
		p.startLogical(line)
	}
}

// Close flushes any trailing logical line that never received a newline.
func (p *Parser) Close() ([]Instruction, error) {
	var out []Instruction
	ins, err := p.flushLogical()
	if err != nil {
		return out, err
	}
	if ins != nil {
		out = append(out, *ins)
	}
	return out, nil
}

func (p *Parser) startLogical(line []byte) {
	p.logical = append(p.logical[:0], line...)
	p.overflow = len(p.logical) > p.maxLine
}

func (p *Parser) foldContinuation(cont []byte) {
	if p.overflow || len(p.logical)+len(cont) > p.maxLine {
		p.overflow = true
		return
	}
	p.logical = append(p.logical, cont...)
}

// flushLogical classifies the currently accumulated logical line, if any,
// and applies it. It returns a non-nil Instruction exactly when an
// END:VEVENT/END:VTODO completed a component.
func (p *Parser) flushLogical() (*Instruction, error) {
	if len(p.logical) == 0 {
		return nil, nil
	}
	defer func() { p.logical = p.logical[:0] }()
	if p.overflow {
		p.overflow = false
		return nil, nil
	}
	return p.classify(string(p.logical))
}

func (p *Parser) classify(line string) (*Instruction, error) {
	name, params, value := splitProperty(line)
	name = strings.ToUpper(name)

	switch name {
	case "BEGIN":
		switch strings.ToUpper(value) {
		case "VCALENDAR":
			p.state = stBody
		case "VEVENT", "VTODO":
			p.cur = newAccumulator(strings.ToUpper(value) == "VTODO")
			p.state = stVEvent
		}
		return nil, nil
	case "END":
		switch strings.ToUpper(value) {
		case "VCALENDAR":
			p.state = stUnknown
		case "VEVENT", "VTODO":
			if p.cur == nil {
				return nil, nil
			}
			ins, err := p.finishAccumulator(p.cur)
			p.cur = nil
			p.state = stBody
			return ins, err
		}
		return nil, nil
	}

	if p.state == stBody && name == "METHOD" {
		p.method = strings.ToUpper(value)
		return nil, nil
	}

	if p.state != stVEvent || p.cur == nil {
		return nil, nil
	}

	p.applyField(name, params, value)
	return nil, nil
}

// splitProperty splits a logical line into PROPERTY;PARAM=V;...:VALUE,
// decoding backslash escapes in the value portion.
func splitProperty(line string) (name string, params map[string]string, value string) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return line, nil, ""
	}
	head := line[:colon]
	value = unescape(line[colon+1:])

	parts := strings.Split(head, ";")
	name = parts[0]
	if len(parts) > 1 {
		params = make(map[string]string, len(parts)-1)
		for _, p := range parts[1:] {
			if eq := strings.IndexByte(p, '='); eq >= 0 {
				params[strings.ToUpper(p[:eq])] = p[eq+1:]
			}
		}
	}
	return name, params, value
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',':
			b.WriteByte(',')
		case ';':
			b.WriteByte(';')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func parseBool01(s string) bool {
	return strings.TrimSpace(s) == "1"
}

// parseDateTime parses an RFC-5545 DATE or DATE-TIME value. A malformed
// value yields the null instant (§4.1 failure policy).
func parseDateTime(s string) instant.Instant {
	s = strings.TrimSuffix(s, "Z")
	switch len(s) {
	case 8:
		y, m, d, ok := digits3(s[0:4], s[4:6], s[6:8])
		if !ok {
			return instant.Instant{}
		}
		return instant.AllDay(int16(y), uint8(m), uint8(d))
	case 15:
		if s[8] != 'T' {
			return instant.Instant{}
		}
		y, m, d, ok := digits3(s[0:4], s[4:6], s[6:8])
		if !ok {
			return instant.Instant{}
		}
		hh, mm, ss, ok2 := digits3(s[9:11], s[11:13], s[13:15])
		if !ok2 {
			return instant.Instant{}
		}
		return instant.New(int16(y), uint8(m), uint8(d), uint8(hh), uint8(mm), uint8(ss))
	default:
		return instant.Instant{}
	}
}

func digits3(a, b, c string) (int, int, int, bool) {
	x, err1 := strconv.Atoi(a)
	y, err2 := strconv.Atoi(b)
	z, err3 := strconv.Atoi(c)
	return x, y, z, err1 == nil && err2 == nil && err3 == nil
}

// parseDuration parses an RFC-5545 DURATION value (e.g. "PT1H30M",
// "P1DT2H"). A malformed value yields the zero duration.
func parseDuration(s string) instant.Duration {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if !strings.HasPrefix(s, "P") {
		return instant.Duration{}
	}
	s = s[1:]
	var days, hours, mins, secs int64
	datePart, timePart, hasTime := strings.Cut(s, "T")
	days = scanUnit(datePart, 'D')
	if w := scanUnit(datePart, 'W'); w != 0 {
		days += w * 7
	}
	if hasTime {
		hours = scanUnit(timePart, 'H')
		mins = scanUnit(timePart, 'M')
		secs = scanUnit(timePart, 'S')
	}
	total := instant.AddDuration(instant.FromDays(days), instant.AddDuration(instant.FromHours(hours), instant.AddDuration(instant.FromMinutes(mins), instant.FromSeconds(secs))))
	if neg {
		return total.Negate()
	}
	return total
}

func scanUnit(s string, unit byte) int64 {
	idx := strings.IndexByte(s, unit)
	if idx < 0 {
		return 0
	}
	start := idx
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	n, err := strconv.ParseInt(s[start:idx], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// verbFor resolves the instruction verb for a completed component from
// the enclosing VCALENDAR's METHOD.
func (p *Parser) verbFor() Verb {
	switch p.method {
	case "CANCEL":
		return VerbUnschedule
	case "REQUEST":
		return VerbReschedule
	case "REPLY":
		return VerbReplySuccess
	default:
		return VerbSchedule
	}
}
