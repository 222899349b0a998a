package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/types"
)

// ScheduleAction is what a schedule wants for its session right now.
type ScheduleAction int

const (
	ActionNone ScheduleAction = iota
	ActionResume
	ActionStop
)

// EvaluateSchedule decides the action a schedule implies at the given
// local time. Working-hours and custom schedules resume inside the
// [start, shutdown) window and stop outside it; schedules with
// unparseable times are inert.
func EvaluateSchedule(schedule *types.Schedule, now time.Time) ScheduleAction {
	if schedule == nil || schedule.DayOfWeek != types.DayOfWeekFor(now) {
		return ActionNone
	}

	switch schedule.Type {
	case types.ScheduleNoSchedule:
		return ActionNone
	case types.ScheduleStartAllDay:
		return ActionResume
	case types.ScheduleStopAllDay:
		return ActionStop
	case types.ScheduleWorkingHours, types.ScheduleCustom:
		start, err := minutesOfDay(schedule.StartUpTime)
		if err != nil {
			return ActionNone
		}
		stop, err := minutesOfDay(schedule.ShutDownTime)
		if err != nil {
			return ActionNone
		}
		current := now.Hour()*60 + now.Minute()
		if current >= start && current < stop {
			return ActionResume
		}
		return ActionStop
	}
	return ActionNone
}

// minutesOfDay parses "HH:MM" into minutes since midnight.
func minutesOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// TriggerSchedules evaluates every stored schedule at the given time
// and publishes scheduled resume/stop events for sessions whose state
// disagrees with their schedule. The actual transitions happen in the
// handlers consuming those events, so one slow session cannot stall the
// sweep.
func (m *Manager) TriggerSchedules(ctx context.Context, now time.Time) error {
	schedules, err := m.store.ListSchedules()
	if err != nil {
		return err
	}

	for _, schedule := range schedules {
		action := EvaluateSchedule(schedule, now)
		if action == ActionNone {
			continue
		}

		session, err := m.store.GetSession(schedule.SessionOwner, schedule.SessionID)
		if err != nil {
			m.logger.Warn().Err(err).Str("session_id", schedule.SessionID).
				Msg("Schedule points at missing session, skipping")
			continue
		}

		switch action {
		case ActionResume:
			if session.State.OneOf(types.SessionStateStopped, types.SessionStateStoppedIdle) {
				if err := m.publisher.Publish(ctx, events.NewScheduledResume(session.SessionID, session.Owner)); err != nil {
					return err
				}
			}
		case ActionStop:
			if session.State == types.SessionStateReady {
				if err := m.publisher.Publish(ctx, events.NewScheduledStop(session.SessionID, session.Owner)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// SweepExpiredPermissions deletes permissions past their expiry date
// and queues a broker enforcement for each affected session so revoked
// actors lose access remotely as well.
func (m *Manager) SweepExpiredPermissions(ctx context.Context, now time.Time) error {
	perms, err := m.store.ListSessionPermissions()
	if err != nil {
		return err
	}

	affected := make(map[string]string) // session id -> owner
	for _, perm := range perms {
		// Expiry is inclusive: a permission dated exactly now is gone.
		if perm.ExpiryDate.IsZero() || perm.ExpiryDate.After(now) {
			continue
		}
		if err := m.store.DeleteSessionPermission(perm.SessionID, perm.ActorName); err != nil {
			return err
		}
		affected[perm.SessionID] = perm.SessionOwner
		m.logger.Info().Str("session_id", perm.SessionID).
			Str("actor", perm.ActorName).
			Time("expired", perm.ExpiryDate).
			Msg("Deleted expired session permission")
	}

	for sessionID, owner := range affected {
		if err := m.publisher.Publish(ctx, events.NewPermissionsEnforce(sessionID, owner)); err != nil {
			return err
		}
	}
	return nil
}
