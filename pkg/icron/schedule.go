package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// GetTriggerInfo describes a standard five-field (or descriptor) cron
// expression relative to refTime. Last is zero when no trigger happened in
// the preceding year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	if last := previous(schedule, refTime); !last.IsZero() {
		info.Last = last
		info.TimeSinceLast = refTime.Sub(last)
	}
	return info, nil
}

// previous finds the latest activation at or before refTime by widening the
// search window backwards, then walking forward.
func previous(schedule cron.Schedule, refTime time.Time) time.Time {
	for window := time.Hour; window <= 366*24*time.Hour; window *= 2 {
		t := schedule.Next(refTime.Add(-window))
		if t.After(refTime) {
			continue
		}
		for {
			next := schedule.Next(t)
			if next.After(refTime) || next.IsZero() {
				return t
			}
			t = next
		}
	}
	return time.Time{}
}
