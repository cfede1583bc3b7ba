// Package scheduler provides recurrence rules for periodic tasks.
//
// A Schedule turns "when did this last run" into "when must it run next".
// Specs are plain cron expressions (5-field) or the @every/@hourly style
// descriptors understood by robfig/cron, so they round-trip losslessly
// through task snapshots as strings.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next occurrence of a recurring task.
type Schedule interface {
	// Next returns the first occurrence strictly after the given time.
	Next(after time.Time) time.Time

	// Spec returns the string the schedule was parsed from. Specs are
	// the serialized form persisted in task snapshots.
	Spec() string
}

// parser accepts standard 5-field cron expressions plus descriptors
// such as "@hourly" and "@every 30m".
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// cronSchedule adapts a parsed cron expression to the Schedule interface.
type cronSchedule struct {
	spec  string
	sched cron.Schedule
}

// Parse builds a Schedule from a cron expression or descriptor.
func Parse(spec string) (Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}
	return &cronSchedule{spec: spec, sched: sched}, nil
}

// Every returns a fixed-interval Schedule. The interval is rounded down
// to whole seconds, with a one second minimum, matching cron's resolution.
func Every(interval time.Duration) Schedule {
	if interval < time.Second {
		interval = time.Second
	}
	interval = interval.Truncate(time.Second)
	return &cronSchedule{
		spec:  fmt.Sprintf("@every %s", interval),
		sched: cron.Every(interval),
	}
}

func (s *cronSchedule) Next(after time.Time) time.Time {
	return s.sched.Next(after)
}

func (s *cronSchedule) Spec() string {
	return s.spec
}
