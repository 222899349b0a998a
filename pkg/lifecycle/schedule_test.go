package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deskhive/deskhive/pkg/types"
)

func TestEvaluateSchedule(t *testing.T) {
	// 2026-08-31 is a Monday.
	monday := func(hour, minute int) time.Time {
		return time.Date(2026, 8, 31, hour, minute, 0, 0, time.UTC)
	}
	workingHours := func(day types.DayOfWeek) *types.Schedule {
		return &types.Schedule{
			Type:         types.ScheduleWorkingHours,
			DayOfWeek:    day,
			StartUpTime:  "09:00",
			ShutDownTime: "17:30",
		}
	}

	tests := []struct {
		name     string
		schedule *types.Schedule
		now      time.Time
		expected ScheduleAction
	}{
		{"nil schedule", nil, monday(10, 0), ActionNone},
		{"no schedule type", &types.Schedule{Type: types.ScheduleNoSchedule, DayOfWeek: types.Monday}, monday(10, 0), ActionNone},
		{"wrong day", workingHours(types.Tuesday), monday(10, 0), ActionNone},
		{"start all day", &types.Schedule{Type: types.ScheduleStartAllDay, DayOfWeek: types.Monday}, monday(3, 0), ActionResume},
		{"stop all day", &types.Schedule{Type: types.ScheduleStopAllDay, DayOfWeek: types.Monday}, monday(12, 0), ActionStop},
		{"inside working hours", workingHours(types.Monday), monday(10, 0), ActionResume},
		{"before working hours", workingHours(types.Monday), monday(8, 59), ActionStop},
		{"at start boundary", workingHours(types.Monday), monday(9, 0), ActionResume},
		{"at shutdown boundary", workingHours(types.Monday), monday(17, 30), ActionStop},
		{"after working hours", workingHours(types.Monday), monday(22, 0), ActionStop},
		{"custom window", &types.Schedule{
			Type: types.ScheduleCustom, DayOfWeek: types.Monday,
			StartUpTime: "06:00", ShutDownTime: "08:00",
		}, monday(7, 0), ActionResume},
		{"unparseable start time is inert", &types.Schedule{
			Type: types.ScheduleWorkingHours, DayOfWeek: types.Monday,
			StartUpTime: "9am", ShutDownTime: "17:30",
		}, monday(10, 0), ActionNone},
		{"unparseable shutdown time is inert", &types.Schedule{
			Type: types.ScheduleWorkingHours, DayOfWeek: types.Monday,
			StartUpTime: "09:00", ShutDownTime: "half past five",
		}, monday(10, 0), ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EvaluateSchedule(tt.schedule, tt.now))
		})
	}
}
