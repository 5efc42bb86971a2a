package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relDateRe = regexp.MustCompile(`^(\d+)\s*(month|months|week|weeks|day|days|hour|hours)\s*ago$`)

// convertRelativeDate turns "2 weeks ago" style strings into an absolute
// timestamp relative to now. Months count as 30 days. Unparseable strings
// return the zero time.
func convertRelativeDate(raw string, now time.Time) time.Time {
	m := relDateRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if m == nil {
		return time.Time{}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}
	}
	var delta time.Duration
	switch {
	case strings.HasPrefix(m[2], "month"):
		delta = time.Duration(n) * 30 * 24 * time.Hour
	case strings.HasPrefix(m[2], "week"):
		delta = time.Duration(n) * 7 * 24 * time.Hour
	case strings.HasPrefix(m[2], "day"):
		delta = time.Duration(n) * 24 * time.Hour
	case strings.HasPrefix(m[2], "hour"):
		delta = time.Duration(n) * time.Hour
	}
	return now.Add(-delta)
}

// isRecent drops anything dated in months or years.
func isRecent(raw string) bool {
	s := strings.ToLower(raw)
	for _, term := range []string{"month", "year"} {
		if strings.Contains(s, term) {
			return false
		}
	}
	return true
}
