package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Spec is a recurrence expression plus the timezone it is evaluated in.
type Spec struct {
	Expr     string
	Timezone string
}

// Parsed is a validated Spec.
type Parsed struct {
	Spec     Spec
	Location *time.Location
	schedule cron.Schedule
}

// Next returns the first activation strictly after t, in the schedule's timezone.
func (p Parsed) Next(t time.Time) time.Time {
	return p.schedule.Next(t.In(p.Location))
}

// ScheduleError means the recurrence expression or timezone is unusable.
type ScheduleError struct {
	Spec Spec
	Err  error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %q (timezone %q): %v", e.Spec.Expr, e.Spec.Timezone, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

// Parse accepts standard 5-field cron expressions (minute hour dom month dow)
// and the @hourly/@daily/@weekly/@monthly/@every descriptors.
func Parse(spec Spec) (Parsed, error) {
	expr := strings.TrimSpace(spec.Expr)
	if expr == "" {
		return Parsed{}, &ScheduleError{Spec: spec, Err: fmt.Errorf("empty expression")}
	}
	// the timezone comes from Spec.Timezone only
	if strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=") {
		return Parsed{}, &ScheduleError{Spec: spec, Err: fmt.Errorf("inline timezone prefix is not supported")}
	}

	tz := strings.TrimSpace(spec.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Parsed{}, &ScheduleError{Spec: spec, Err: fmt.Errorf("timezone: %w", err)}
	}

	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Parsed{}, &ScheduleError{Spec: spec, Err: err}
	}

	return Parsed{
		Spec:     Spec{Expr: expr, Timezone: tz},
		Location: loc,
		schedule: sched,
	}, nil
}

var descriptions = map[string]string{
	"0 2 * * *":    "Daily at 2:00 AM",
	"0 0 * * *":    "Daily at midnight",
	"0 */6 * * *":  "Every 6 hours",
	"0 */12 * * *": "Every 12 hours",
	"0 0 * * 0":    "Weekly on Sunday at midnight",
	"*/5 * * * *":  "Every 5 minutes (testing)",
	"@hourly":      "Every hour",
	"@daily":       "Daily at midnight",
	"@midnight":    "Daily at midnight",
	"@weekly":      "Weekly on Sunday at midnight",
	"@monthly":     "Monthly on the 1st at midnight",
}

// Describe returns a human-readable cadence for common expressions and echoes
// anything else.
func Describe(expr string) string {
	expr = strings.Join(strings.Fields(expr), " ")
	if d, ok := descriptions[expr]; ok {
		return d
	}
	return "Custom schedule: " + expr
}
