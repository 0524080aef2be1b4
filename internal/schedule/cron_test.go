package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsCommonForms(t *testing.T) {
	cases := []string{
		"* * * * *",
		"*/5 * * * *",
		"0 2 * * *",
		"0,15,30,45 9-17 * * 1-5",
		"@daily",
		"@every 1h",
	}

	for _, expr := range cases {
		if _, err := Parse(Spec{Expr: expr}); err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", expr, err)
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []string{
		"",
		"61 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"* * * *",
		"bad * * * *",
		"TZ=UTC 0 2 * * *",
	}

	for _, expr := range cases {
		_, err := Parse(Spec{Expr: expr})
		require.Error(t, err, "Parse(%q)", expr)

		var serr *ScheduleError
		assert.True(t, errors.As(err, &serr), "Parse(%q) should return ScheduleError", expr)
	}
}

func TestParseRejectsUnknownTimezone(t *testing.T) {
	_, err := Parse(Spec{Expr: "0 2 * * *", Timezone: "Mars/Olympus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestParsedNextHonoursTimezone(t *testing.T) {
	p, err := Parse(Spec{Expr: "0 2 * * *", Timezone: "Asia/Kolkata"})
	require.NoError(t, err)

	// 2026-02-20 00:00 UTC is 05:30 IST, so the next 02:00 IST is the following day
	now := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	next := p.Next(now)

	assert.Equal(t, time.Date(2026, 2, 20, 20, 30, 0, 0, time.UTC), next.UTC())
}

func TestParsedNextWeekdays(t *testing.T) {
	p, err := Parse(Spec{Expr: "15 2 * * 1-5"})
	require.NoError(t, err)

	friday := time.Date(2026, 2, 20, 2, 15, 0, 0, time.UTC)
	// after Friday's run the next one is Monday
	assert.Equal(t, time.Date(2026, 2, 23, 2, 15, 0, 0, time.UTC), p.Next(friday))
	assert.Equal(t, friday, p.Next(friday.Add(-time.Minute)))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Daily at 2:00 AM", Describe("0 2 * * *"))
	assert.Equal(t, "Every 6 hours", Describe("0  */6 * * *"))
	assert.Equal(t, "Weekly on Sunday at midnight", Describe("0 0 * * 0"))
	assert.Equal(t, "Custom schedule: 30 3 * * 1", Describe("30 3 * * 1"))
}
