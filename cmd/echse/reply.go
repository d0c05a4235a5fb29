package main

import "strings"

type replyRecord struct {
	uid    string
	status string
}

// splitReplyVEvents scans raw BEGIN:VEVENT/END:VEVENT REPLY blocks out of
// a daemon acknowledgement stream (§4.4).
func splitReplyVEvents(reply string) []replyRecord {
	var out []replyRecord
	var cur *replyRecord

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "BEGIN:VEVENT":
			cur = &replyRecord{}
		case line == "END:VEVENT":
			if cur != nil {
				out = append(out, *cur)
				cur = nil
			}
		case strings.HasPrefix(line, "UID:") && cur != nil:
			cur.uid = strings.TrimPrefix(line, "UID:")
		case strings.HasPrefix(line, "REQUEST-STATUS:") && cur != nil:
			cur.status = strings.TrimPrefix(line, "REQUEST-STATUS:")
		}
	}
	return out
}
