package evstream

import (
	"echse/internal/instant"
	"echse/internal/rrule"
)

// Fields is the flattened RRULE/RDATE/XRULE/XDATE description a stream
// serializes itself to — the inverse of the parser's buildStream, and
// what a checkpoint write or a GET /queue reply renders back out as
// VEVENT lines for the parser to read back in (§4.1, §8 "replay" and
// "socket round-trip" testable properties).
type Fields struct {
	DTStart  instant.Instant
	Duration instant.Duration
	RDates   []instant.Instant
	RRules   []rrule.Rule
	XDates   []instant.Instant
	XRules   []rrule.Rule
}

// merge folds b's terms into a, keeping a's DTStart/Duration unless a
// hasn't settled on one yet.
func merge(a, b Fields) Fields {
	if a.DTStart.IsNull() {
		a.DTStart = b.DTStart
	}
	if a.Duration.IsZero() {
		a.Duration = b.Duration
	}
	a.RDates = append(a.RDates, b.RDates...)
	a.RRules = append(a.RRules, b.RRules...)
	a.XDates = append(a.XDates, b.XDates...)
	a.XRules = append(a.XRules, b.XRules...)
	return a
}
