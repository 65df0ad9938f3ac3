package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const TimeRangeRuleName = "time-range-policy"

const dateLayout = "2006-01-02"

type timeRangeConfig struct {
	Days      []int    `mapstructure:"days"`
	Include   []string `mapstructure:"include"`
	Exclude   []string `mapstructure:"exclude"`
	TimeStart string   `mapstructure:"time_start"`
	TimeEnd   string   `mapstructure:"time_end"`
}

// TimeRangeRule approves requests made on allowed days within an optional
// time of day window.
//
//	- rule: time-range-policy
//	  time_start: 9:00am
//	  time_end: 5:00pm
//	  days: [0, 1, 2, 3, 4]   # Monday is 0
//	  exclude: [2022-06-01]
//
// An excluded date always denies. An included date is allowed whatever its
// weekday.
type TimeRangeRule struct {
	id       string
	days     map[int]bool
	include  map[string]bool
	exclude  map[string]bool
	start    *TimeOfDay
	end      *TimeOfDay
	now      func() time.Time
	location *time.Location
}

func NewTimeRangeRule(_ context.Context, env Env) (Rule, error) {
	cfg := timeRangeConfig{Days: []int{0, 1, 2, 3, 4, 5, 6}}
	if err := env.Decode(&cfg); err != nil {
		return nil, err
	}

	r := &TimeRangeRule{
		id:       env.RuleID,
		days:     make(map[int]bool),
		include:  make(map[string]bool),
		exclude:  make(map[string]bool),
		now:      env.now,
		location: env.location(),
	}

	for _, d := range cfg.Days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: invalid day of week %d", ErrInvalidConfig, d)
		}
		r.days[d] = true
	}

	var err error
	if r.include, err = parseDates(cfg.Include); err != nil {
		return nil, err
	}
	if r.exclude, err = parseDates(cfg.Exclude); err != nil {
		return nil, err
	}
	for date := range r.include {
		if r.exclude[date] {
			return nil, fmt.Errorf("%w: %s is both included and excluded", ErrInvalidConfig, date)
		}
	}

	if (cfg.TimeStart == "") != (cfg.TimeEnd == "") {
		return nil, fmt.Errorf("%w: time_start and time_end must be given together", ErrInvalidConfig)
	}
	if cfg.TimeStart != "" {
		start, err := ParseTimeOfDay(cfg.TimeStart)
		if err != nil {
			return nil, err
		}
		end, err := ParseTimeOfDay(cfg.TimeEnd)
		if err != nil {
			return nil, err
		}
		_, fallback := r.now().In(r.location).Zone()
		if start.utcSeconds(fallback) > end.utcSeconds(fallback) {
			return nil, fmt.Errorf("%w: time_start %s is after time_end %s", ErrInvalidConfig, start, end)
		}
		r.start, r.end = &start, &end
	}

	return r, nil
}

// parseDates accepts any common date form ("2022-03-07", "03/07/2022",
// "March 7, 2022"). Slashed dates are month first. A time component is
// ignored; the calendar date as written is kept.
func parseDates(values []string) (map[string]bool, error) {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		d, err := dateparse.ParseIn(strings.TrimSpace(v), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date %q: %v", ErrInvalidConfig, v, err)
		}
		out[d.Format(dateLayout)] = true
	}
	return out, nil
}

func (r *TimeRangeRule) Name() string { return TimeRangeRuleName }

func (r *TimeRangeRule) ID() string { return r.id }

func (r *TimeRangeRule) ApproveRequest(_ context.Context, _ Request) (bool, error) {
	return r.InRange(r.now().In(r.location)), nil
}

// InRange reports whether now, read in its own zone, falls inside the range.
func (r *TimeRangeRule) InRange(now time.Time) bool {
	date := now.Format(dateLayout)
	if r.exclude[date] {
		return false
	}
	if !r.include[date] && !r.days[mondayFirst(now.Weekday())] {
		return false
	}
	if r.start == nil {
		return true
	}

	secs, offset := instantSeconds(now)
	return r.start.utcSeconds(offset) <= secs && secs <= r.end.utcSeconds(offset)
}

// mondayFirst numbers weekdays from Monday = 0.
func mondayFirst(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
