// Package cron submits recurring jobs to the queue.
//
// Two schedule forms are supported:
//   - cron:  standard cron expression (5-field, parsed by gronx)
//   - every: fixed interval in seconds
package cron

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Schedule submits Prompt as a job each time it fires.
type Schedule struct {
	Name     string `json:"name"`
	Cron     string `json:"cron,omitempty"`     // cron expression
	EverySec int    `json:"everySec,omitempty"` // interval, used when Cron is empty
	Prompt   string `json:"prompt"`
	Session  string `json:"session,omitempty"` // empty = a fresh session per run
	Disabled bool   `json:"disabled,omitempty"`
}

// Validate checks that the schedule has a name, a prompt and exactly one trigger.
func (s Schedule) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("schedule name is required")
	}
	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("schedule %s: prompt is required", s.Name)
	}
	switch {
	case s.Cron != "" && s.EverySec > 0:
		return fmt.Errorf("schedule %s: set either cron or everySec, not both", s.Name)
	case s.Cron != "":
		if !gronx.New().IsValid(s.Cron) {
			return fmt.Errorf("schedule %s: invalid cron expression %q", s.Name, s.Cron)
		}
	case s.EverySec > 0:
	default:
		return fmt.Errorf("schedule %s: cron or everySec is required", s.Name)
	}
	return nil
}

// NextAfter returns the first fire time strictly after ref.
func (s Schedule) NextAfter(ref time.Time) (time.Time, error) {
	if s.Cron != "" {
		return gronx.NextTickAfter(s.Cron, ref, false)
	}
	every := time.Duration(s.EverySec) * time.Second
	// Align to multiples of the interval so every instance computes the same ticks.
	return ref.Truncate(every).Add(every), nil
}
