package webhook

import (
	"strings"

	"github.com/tidwall/gjson"
)

// trackerEvent is the subset of an inbound tracker webhook payload this
// ingestor cares about, pulled out of whatever producer-specific JSON
// shape arrives. Tracker payloads vary per integration (issue-commented,
// issue-created, mention-added, ...); rather than bind a strict struct
// per event type, the fields actually needed are read with gjson using
// a short list of candidate paths per field.
type trackerEvent struct {
	Text       string
	TicketRef  string
	TicketURL  string
	Author     string
	RawPayload []byte
}

var textPaths = []string{"comment.body", "issue.description", "text", "body"}
var refPaths = []string{"issue.key", "issue.id", "ticket.id", "ticket.key"}
var urlPaths = []string{"issue.self", "issue.url", "ticket.url"}
var authorPaths = []string{"comment.author.name", "user.login", "actor.name"}

// parseTrackerEvent extracts a trackerEvent from the raw JSON body of an
// inbound webhook call, trying each candidate field path in order and
// taking the first non-empty match.
func parseTrackerEvent(body []byte) trackerEvent {
	ev := trackerEvent{RawPayload: body}
	ev.Text = firstNonEmpty(body, textPaths)
	ev.TicketRef = firstNonEmpty(body, refPaths)
	ev.TicketURL = firstNonEmpty(body, urlPaths)
	ev.Author = firstNonEmpty(body, authorPaths)
	return ev
}

func firstNonEmpty(body []byte, paths []string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// mentionsToken reports whether text contains token, case-insensitively.
func mentionsToken(text, token string) bool {
	if token == "" || text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(token))
}
