package cot

import "time"

// formatTime renders a time in the RFC3339 form TAK clients expect on
// the wire, in UTC with no sub-second precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "1970-01-01T00:00:00Z"
	}
	return t.UTC().Format(time.RFC3339)
}

// timeLayouts are tried in order: RFC3339 covers the common case, the
// other two cover the sub-second and space-separated variants some
// older ATAK builds still emit.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05",
}

// parseTime attempts each of timeLayouts in turn and falls back to the
// zero time if none match, rather than failing the whole event: a
// malformed timestamp on one field shouldn't drop an otherwise valid
// position report.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
