package models

import (
	"fmt"
	"regexp"
	"time"
)

var daysPrefix = regexp.MustCompile(`^(\d+)d(.*)$`)

// ParseDuration parses workflow duration strings. It accepts everything
// time.ParseDuration does plus a leading day component, since user task
// timeouts are routinely written as "7d" or "2d12h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if m := daysPrefix.FindStringSubmatch(s); m != nil {
		var days int64
		if _, err := fmt.Sscanf(m[1], "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		rest := time.Duration(0)
		if m[2] != "" {
			var err error
			rest, err = time.ParseDuration(m[2])
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", s, err)
			}
		}
		return time.Duration(days)*24*time.Hour + rest, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
