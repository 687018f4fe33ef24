package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scheduling defaults. A request with no explicit time is booked for
// tomorrow at 14:00 in the configured zone and lasts 30 minutes.
const (
	DefaultTimezone = "Asia/Kuala_Lumpur"
	DefaultDuration = 30 * time.Minute
	defaultHour     = 14

	// ISOLayout always renders the numeric offset, never "Z".
	ISOLayout = "2006-01-02T15:04:05-07:00"
)

// LoadZone loads name, falling back to a fixed UTC+8 zone when the tz
// database is unavailable.
func LoadZone(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("UTC+08:00", 8*60*60)
}

// Clock pins "now" and the target zone for time normalization.
type Clock struct {
	Loc *time.Location
	Now func() time.Time
}

// NewClock returns a wall clock in loc.
func NewClock(loc *time.Location) Clock {
	return Clock{Loc: loc, Now: time.Now}
}

func (c Clock) now() time.Time {
	loc := c.Loc
	if loc == nil {
		loc = time.UTC
	}
	if c.Now == nil {
		return time.Now().In(loc)
	}
	return c.Now().In(loc)
}

func (c Clock) loc() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// DefaultWindow returns tomorrow 14:00 plus the default duration.
func (c Clock) DefaultWindow() (time.Time, time.Time) {
	start := atHour(c.now().AddDate(0, 0, 1), defaultHour, 0)
	return start, start.Add(DefaultDuration)
}

// Format renders t in the target zone using ISOLayout.
func (c Clock) Format(t time.Time) string {
	return t.In(c.loc()).Format(ISOLayout)
}

var timestampLayouts = []struct {
	layout   string
	zoned    bool
	dateOnly bool
}{
	{time.RFC3339Nano, true, false},
	{time.RFC3339, true, false},
	{"2006-01-02T15:04-07:00", true, false},
	{"2006-01-02T15:04:05", false, false},
	{"2006-01-02T15:04", false, false},
	{"2006-01-02 15:04:05", false, false},
	{"2006-01-02 15:04", false, false},
	{"2006-01-02", false, true},
}

// ParseTimestamp accepts the shapes models commonly emit. Zoned values are
// converted into the target zone; naive values are read as target-zone wall
// time; a bare date means 14:00 on that day.
func (c Clock) ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, c.loc())
		}
		if err != nil {
			continue
		}
		if l.dateOnly {
			t = atHour(t, defaultHour, 0)
		}
		return t.In(c.loc()), true
	}
	return time.Time{}, false
}

var (
	ampmRe     = regexp.MustCompile(`\b(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*(am|pm|a\.m\.|p\.m\.)(?:[^a-z]|$)`)
	clockRe    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonRe     = regexp.MustCompile(`\bnoon\b`)
	durationRe = regexp.MustCompile(`\bfor\s+(an?|\d+(?:\.\d+)?)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
	weekdays   = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
		"saturday": time.Saturday,
	}
	weekdayRe = regexp.MustCompile(`\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
)

// HintWindow reads day, time of day, and duration cues from free text.
// found is false when the text names neither a day nor a time, in which
// case the default window is returned.
func (c Clock) HintWindow(text string) (start, end time.Time, found bool) {
	lower := strings.ToLower(text)
	now := c.now()

	day, hasDay := c.hintDay(lower, now)
	hour, minute, hasTime := hintTimeOfDay(lower)

	if !hasDay && !hasTime {
		s, e := c.DefaultWindow()
		return s, e, false
	}

	switch {
	case hasDay && !hasTime:
		start = atHour(day, defaultHour, 0)
	case hasTime && !hasDay:
		start = atHour(now, hour, minute)
		if !start.After(now) {
			start = start.AddDate(0, 0, 1)
		}
	default:
		start = atHour(day, hour, minute)
	}

	return start, start.Add(hintDuration(lower)), true
}

func (c Clock) hintDay(lower string, now time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(lower, "day after tomorrow"):
		return now.AddDate(0, 0, 2), true
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(lower, "today"), strings.Contains(lower, "tonight"):
		return now, true
	}
	if m := weekdayRe.FindStringSubmatch(lower); m != nil {
		ahead := (int(weekdays[m[1]]) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return now.AddDate(0, 0, ahead), true
	}
	return time.Time{}, false
}

func hintTimeOfDay(lower string) (int, int, bool) {
	if m := ampmRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi := 0
		if m[2] != "" {
			mi, _ = strconv.Atoi(m[2])
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && h != 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		return h, mi, true
	}
	if m := clockRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		return h, mi, true
	}
	if noonRe.MatchString(lower) {
		return 12, 0, true
	}
	return 0, 0, false
}

func hintDuration(lower string) time.Duration {
	m := durationRe.FindStringSubmatch(lower)
	if m == nil {
		return DefaultDuration
	}
	qty := 1.0
	if m[1] != "a" && m[1] != "an" {
		qty, _ = strconv.ParseFloat(m[1], 64)
	}
	unit := time.Minute
	if strings.HasPrefix(m[2], "h") {
		unit = time.Hour
	}
	d := time.Duration(qty * float64(unit))
	if d <= 0 {
		return DefaultDuration
	}
	return d
}

func atHour(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
