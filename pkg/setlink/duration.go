package setlink

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
)

// ParseISODuration converts an ISO-8601 duration such as "PT1H2M3S" into whole seconds.
// Missing components count as zero; a string with no component at all is rejected.
func ParseISODuration(iso string) (int, bool) {
	if !strings.HasPrefix(iso, "P") || !strings.ContainsAny(iso, "0123456789") {
		return 0, false
	}

	parsed, err := duration.Parse(iso)
	if err != nil {
		return 0, false
	}

	d := parsed.ToTimeDuration()
	if d < 0 {
		return 0, false
	}
	return int(d / time.Second), true
}

// FormatDuration renders seconds as "h:mm:ss", or "m:ss" under an hour.
func FormatDuration(sec int) string {
	h := sec / secondsPerHour
	m := (sec % secondsPerHour) / secondsPerMinute
	s := sec % secondsPerMinute
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
