package reconcile

import (
	"regexp"
	"strings"
	"time"
)

var dayFirstDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

// NormalizeDate rewrites DD/MM/YYYY as YYYY-MM-DD. Any other value is
// returned unchanged.
func NormalizeDate(value string) string {
	trimmed := strings.TrimSpace(value)
	match := dayFirstDate.FindStringSubmatch(trimmed)
	if match == nil {
		return value
	}
	return match[3] + "-" + pad2(match[2]) + "-" + pad2(match[1])
}

func pad2(value string) string {
	if len(value) == 1 {
		return "0" + value
	}
	return value
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate accepts ISO dates, ISO timestamps and DD/MM/YYYY.
func ParseDate(value string) (time.Time, bool) {
	normalized := NormalizeDate(strings.TrimSpace(value))
	if normalized == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, normalized); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
