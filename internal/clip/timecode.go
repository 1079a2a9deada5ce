package clip

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var timecodePattern = regexp.MustCompile(`^(\d{1,3}):([0-5]?\d):([0-5]?\d)(?:\.(\d{1,3}))?$`)

// ParseTimecode parses HH:MM:SS with an optional .fff millisecond part.
func ParseTimecode(raw string) (time.Duration, error) {
	m := timecodePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM:SS[.fff]", raw)
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	var millis int
	if m[4] != "" {
		frac := m[4] + strings.Repeat("0", 3-len(m[4]))
		millis, _ = strconv.Atoi(frac)
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

// FormatSeconds renders d as fractional seconds for ffmpeg arguments.
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// FormatTimecode renders d as HH:MM:SS, adding .fff when non-zero.
func FormatTimecode(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	if ms == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
