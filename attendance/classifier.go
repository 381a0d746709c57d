package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/balibad/payroll-engine/hr"
)

// =============================================================================
// CUTOFF
// =============================================================================

// Manila is the console's business timezone (UTC+8, no DST).
var Manila = time.FixedZone("PHT", 8*60*60)

// Cutoff is the wall-clock time in Location after which a clock-in is late.
type Cutoff struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// DefaultCutoff is 09:00 Manila time.
var DefaultCutoff = Cutoff{Hour: 9, Minute: 0, Location: Manila}

// ParseCutoff parses "HH:MM" in loc.
func ParseCutoff(s string, loc *time.Location) (Cutoff, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Cutoff{}, fmt.Errorf("%w: cutoff %q is not HH:MM", hr.ErrInvalidTimestamp, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	c := Cutoff{Hour: h, Minute: m, Location: loc}
	if err1 != nil || err2 != nil || !c.valid() {
		return Cutoff{}, fmt.Errorf("%w: cutoff %q is not HH:MM", hr.ErrInvalidTimestamp, s)
	}
	return c, nil
}

func (c Cutoff) valid() bool {
	return c.Location != nil && c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

func (c Cutoff) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ClassifyClockIn returns StatusLate when ts is strictly after the cutoff on
// ts's calendar day in the cutoff's location, and StatusPresent otherwise.
// Seconds are ignored: 09:00:59 is still on time for a 09:00 cutoff.
func ClassifyClockIn(ts time.Time, cutoff Cutoff) (Status, error) {
	if ts.IsZero() {
		return "", fmt.Errorf("%w: clock-in time is missing", hr.ErrInvalidTimestamp)
	}
	if !cutoff.valid() {
		return "", fmt.Errorf("%w: cutoff %s is invalid", hr.ErrInvalidTimestamp, cutoff)
	}

	local := ts.In(cutoff.Location)
	if local.Hour()*60+local.Minute() > cutoff.Hour*60+cutoff.Minute {
		return StatusLate, nil
	}
	return StatusPresent, nil
}

// =============================================================================
// TIMESTAMP PARSING
// =============================================================================

var consoleLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 03:04 PM",
	"2006-01-02 03:04:05 PM",
	"2006-01-02 3:04 PM",
}

// ParseTimestamp accepts RFC3339 or the console's local layouts, which are
// interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", hr.ErrInvalidTimestamp)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = Manila
	}
	for _, layout := range consoleLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", hr.ErrInvalidTimestamp, s)
}
