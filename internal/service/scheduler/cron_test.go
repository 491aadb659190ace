package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseSchedule_Matches(t *testing.T) {
	cases := []struct {
		expr string
		when string
		want bool
	}{
		{"* * * * *", "2026-03-04 10:17", true},
		{"*/15 * * * *", "2026-03-04 10:45", true},
		{"*/15 * * * *", "2026-03-04 10:46", false},
		{"5 4 * * *", "2026-03-04 04:05", true},
		{"5 4 * * *", "2026-03-04 05:05", false},
		{"0 9-17/4 * * *", "2026-03-04 13:00", true},
		{"0 9-17/4 * * *", "2026-03-04 15:00", false},
		{"0 0 1,15 * *", "2026-03-15 00:00", true},
		{"0 0 * * 7", "2026-03-08 00:00", true}, // Sunday
		{"0 0 * 2 *", "2026-03-01 00:00", false},
		// day-of-month OR day-of-week when both are restricted
		{"0 0 13 * 5", "2026-03-06 00:00", true},
		{"0 0 13 * 5", "2026-03-13 00:00", true},
		{"0 0 13 * 5", "2026-03-12 00:00", false},
	}

	for _, tc := range cases {
		t.Run(tc.expr+"@"+tc.when, func(t *testing.T) {
			s, err := ParseSchedule(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, s.Matches(at(tc.when)))
		})
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, expr := range []string{
		"* * * *",
		"60 * * * *",
		"*/0 * * * *",
		"5-2 * * * *",
		"a * * * *",
		"* 24 * * *",
		"* * 0 * *",
	} {
		_, err := ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
}
