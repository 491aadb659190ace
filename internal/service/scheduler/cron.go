package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field bounds, in cron order
var bounds = [5]struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// Schedule is a parsed 5-field cron expression. Each field is a bitset of the
// values it allows.
type Schedule struct {
	fields [5]uint64
	// day-of-month and day-of-week combine with OR when both are restricted
	domStar, dowStar bool
}

// ParseSchedule accepts `*`, `*/n`, `n`, `n-m`, `n-m/s` and comma lists.
// Day-of-week 7 is Sunday, same as 0.
func ParseSchedule(expr string) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron expression %q: want 5 fields, got %d", expr, len(parts))
	}

	s := &Schedule{
		domStar: strings.HasPrefix(parts[2], "*"),
		dowStar: strings.HasPrefix(parts[4], "*"),
	}
	for i, part := range parts {
		b := bounds[i]
		set, err := parseField(part, b.min, b.max)
		if err != nil {
			return nil, fmt.Errorf("cron expression %q: %s field: %w", expr, b.name, err)
		}
		s.fields[i] = set
	}
	if s.fields[4]&(1<<7) != 0 {
		s.fields[4] |= 1
	}
	return s, nil
}

// Matches reports whether t, truncated to the minute, fires the schedule.
func (s *Schedule) Matches(t time.Time) bool {
	if !has(s.fields[0], t.Minute()) || !has(s.fields[1], t.Hour()) || !has(s.fields[3], int(t.Month())) {
		return false
	}

	dom := has(s.fields[2], t.Day())
	dow := has(s.fields[4], int(t.Weekday()))
	if s.domStar || s.dowStar {
		return dom && dow
	}
	return dom || dow
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

func parseField(field string, min, max int) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(field, ",") {
		bits, err := parseItem(item, min, max)
		if err != nil {
			return 0, err
		}
		set |= bits
	}
	return set, nil
}

func parseItem(item string, min, max int) (uint64, error) {
	rng, stepStr, stepped := strings.Cut(item, "/")

	step := 1
	if stepped {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", item)
		}
		step = n
	}

	lo, hi := min, max
	switch {
	case rng == "*":
	case strings.Contains(rng, "-"):
		from, to, _ := strings.Cut(rng, "-")
		var err error
		if lo, err = atoiIn(from, min, max); err != nil {
			return 0, err
		}
		if hi, err = atoiIn(to, min, max); err != nil {
			return 0, err
		}
		if lo > hi {
			return 0, fmt.Errorf("range %q runs backwards", rng)
		}
	default:
		v, err := atoiIn(rng, min, max)
		if err != nil {
			return 0, err
		}
		lo = v
		if !stepped {
			hi = v
		}
	}

	var set uint64
	for v := lo; v <= hi; v += step {
		set |= 1 << uint(v)
	}
	return set, nil
}

func atoiIn(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, min, max)
	}
	return v, nil
}
