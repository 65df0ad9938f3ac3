package rules

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall clock time with an optional fixed UTC offset. Without a
// zone it is read in the zone of the instant it is compared against.
type TimeOfDay struct {
	Seconds int
	Offset  int
	HasZone bool
}

var timeOfDayLayouts = []struct {
	layout string
	zoned  bool
	named  bool
}{
	{"15:04", false, false},
	{"15:04:05", false, false},
	{"3:04PM", false, false},
	{"3:04 PM", false, false},
	{"15:04Z07:00", true, false},
	{"15:04:05Z07:00", true, false},
	{"3:04PMZ07:00", true, false},
	{"15:04 MST", true, true},
	{"3:04PM MST", true, true},
	{"3:04 PM MST", true, true},
}

// ParseTimeOfDay accepts forms such as "17:00", "9:00am", "09:00+04:00" and
// "5:00pm EST".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	value := strings.ToUpper(strings.TrimSpace(s))
	if value == "" {
		return TimeOfDay{}, fmt.Errorf("%w: empty time of day", ErrInvalidConfig)
	}
	for _, candidate := range timeOfDayLayouts {
		t, err := time.Parse(candidate.layout, value)
		if err != nil {
			continue
		}
		tod := TimeOfDay{Seconds: t.Hour()*3600 + t.Minute()*60 + t.Second(), HasZone: candidate.zoned}
		if candidate.zoned {
			_, tod.Offset = t.Zone()
		}
		if candidate.named {
			offset, err := namedZoneOffset(t)
			if err != nil {
				return TimeOfDay{}, err
			}
			tod.Offset = offset
		}
		return tod, nil
	}
	return TimeOfDay{}, fmt.Errorf("%w: unrecognized time of day %q", ErrInvalidConfig, s)
}

// namedZoneOffset resolves an abbreviation time.Parse did not know. Parse
// gives such zones a zero offset, so they are looked up in the tz database.
func namedZoneOffset(t time.Time) (int, error) {
	name, offset := t.Zone()
	if offset != 0 || name == "UTC" || name == "GMT" {
		return offset, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown time zone %q", ErrInvalidConfig, name)
	}
	_, offset = time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, loc).Zone()
	return offset, nil
}

// utcSeconds returns the time as seconds from UTC midnight, using fallback
// for a zoneless value. The result may be negative or exceed a day.
func (t TimeOfDay) utcSeconds(fallbackOffset int) int {
	offset := fallbackOffset
	if t.HasZone {
		offset = t.Offset
	}
	return t.Seconds - offset
}

func (t TimeOfDay) String() string {
	out := fmt.Sprintf("%02d:%02d", t.Seconds/3600, t.Seconds%3600/60)
	if t.Seconds%60 != 0 {
		out += fmt.Sprintf(":%02d", t.Seconds%60)
	}
	if t.HasZone {
		sign, off := '+', t.Offset
		if off < 0 {
			sign, off = '-', -off
		}
		out += fmt.Sprintf("%c%02d:%02d", sign, off/3600, off%3600/60)
	}
	return out
}

// instantSeconds returns now as seconds from UTC midnight of its local date
// along with its zone offset.
func instantSeconds(now time.Time) (int, int) {
	_, offset := now.Zone()
	local := now.Hour()*3600 + now.Minute()*60 + now.Second()
	return local - offset, offset
}
