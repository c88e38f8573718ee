package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// ParseCron parses a standard five-field expression or a descriptor such as
// "@hourly" or "@every 5m".
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nebulaerrors.ValidationError("cron expression is empty")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, nebulaerrors.ValidationError("invalid cron expression %q: %v", expr, err)
	}
	return sched, nil
}

// NextRun returns the first activation of expr strictly after now.
func NextRun(expr string, now time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now)
	if next.IsZero() || !next.After(now) {
		return time.Time{}, fmt.Errorf("cron expression %q has no activation after %s", expr, now.Format(time.RFC3339))
	}
	return next, nil
}
