package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/deskhive/deskhive/pkg/cloud"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// pollCommand fetches the tracked command behind a progress event and
// its current output. It consumes the message when the command record
// is gone (already resolved), retries while the command runs, and
// resolves failed commands by dropping the record: the bounded
// validation counters upstream catch a session that never converges.
func (h *Handlers) pollCommand(ctx context.Context, d events.Delivery) (*types.RemoteCommand, *cloud.CommandOutput, events.Outcome) {
	commandID := d.Event.DetailString(detailCommandID)
	instanceID := d.Event.DetailString(detailInstanceID)
	if commandID == "" || instanceID == "" {
		return nil, nil, events.Fatalf("command progress event missing command_id or instance_id")
	}

	cmd, err := h.store.GetCommand(commandID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil, events.Success()
		}
		return nil, nil, events.Retryf("failed to load command %s: %v", commandID, err)
	}

	out, err := h.commands.GetCommandOutput(ctx, commandID, instanceID)
	if err != nil {
		return nil, nil, events.Retryf("failed to fetch output of command %s: %v", commandID, err)
	}

	switch out.Status {
	case cloud.CommandInProgress:
		return nil, nil, events.Retryf("command %s still running", commandID)
	case cloud.CommandFailed:
		logger := log.WithMessage(h.logger, d.MessageID)
		logger.Error().
			Str("command_id", commandID).
			Str("instance_id", instanceID).
			Str("output", out.Output).
			Msg("Remote command failed")
		if err := h.store.DeleteCommand(commandID); err != nil {
			return nil, nil, events.Retryf("failed to delete command %s: %v", commandID, err)
		}
		return nil, nil, events.Success()
	}
	return cmd, out, events.Outcome{}
}

// finishCommand removes the tracked command record.
func (h *Handlers) finishCommand(commandID string) events.Outcome {
	if err := h.store.DeleteCommand(commandID); err != nil {
		return events.Retryf("failed to delete command %s: %v", commandID, err)
	}
	return events.Success()
}

// ResumeCommandProgress completes the in-place resume of a Windows
// session: once the host-side resume script succeeds, the broker
// session is resumed and readiness validation starts.
func (h *Handlers) ResumeCommandProgress(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	cmd, _, outcome := h.pollCommand(ctx, d)
	if cmd == nil {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}

	if session.State == types.SessionStateResuming {
		if err := h.broker.ResumeSession(ctx, session); err != nil {
			return events.Retryf("broker resume for session %s failed: %v", session.SessionID, err)
		}
		if err := h.store.DeleteCounter(session.SessionID, types.CounterSessionResumed); err != nil {
			return events.Retryf("failed to clear resume counter: %v", err)
		}
		if err := h.lifecycle.SendDisableUserdataCommand(ctx, session); err != nil {
			return events.Retryf("failed to send disable userdata command: %v", err)
		}
		if err := h.publisher.Publish(ctx, events.NewValidateSessionCreation(session.SessionID, session.Owner)); err != nil {
			return events.Retryf("failed to publish creation validation: %v", err)
		}
		logger := log.WithMessage(h.logger, d.MessageID)
		logger.Info().
			Str("session_id", session.SessionID).
			Msg("Windows session resumed, validating readiness")
	}
	return h.finishCommand(cmd.CommandID)
}

// CPUUtilizationProgress decides a pending scheduled stop: a host below
// the utilization threshold stops as idle, an active one gets a
// reprieve until the next sweep.
func (h *Handlers) CPUUtilizationProgress(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	cmd, out, outcome := h.pollCommand(ctx, d)
	if cmd == nil {
		return outcome
	}
	logger := log.WithMessage(h.logger, d.MessageID)

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}

	utilization, err := strconv.ParseFloat(strings.TrimSpace(out.Output), 64)
	if err != nil {
		logger.Error().Str("output", out.Output).
			Msg("Unparseable cpu utilization sample, skipping stop")
		return h.finishCommand(cmd.CommandID)
	}

	if utilization < h.cfg.Scheduler.CPUUtilizationThreshold {
		if err := h.lifecycle.StopSession(ctx, session, true); err != nil {
			return events.Retryf("failed to stop idle session %s: %v", session.SessionID, err)
		}
		logger.Info().Str("session_id", session.SessionID).
			Float64("cpu", utilization).
			Msg("Stopping idle session")
	} else {
		logger.Info().Str("session_id", session.SessionID).
			Float64("cpu", utilization).
			Msg("Session active, deferring scheduled stop")
	}
	return h.finishCommand(cmd.CommandID)
}

// EnableUserdataProgress confirms the pre-stop userdata re-enable on a
// Windows host completed.
func (h *Handlers) EnableUserdataProgress(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}
	cmd, _, outcome := h.pollCommand(ctx, d)
	if cmd == nil {
		return outcome
	}
	return h.finishCommand(cmd.CommandID)
}

// DisableUserdataProgress confirms the userdata disable on a Windows
// host completed, after a resume or an image capture. A session still
// locked from image capture is released here, once the host is back in
// its steady state.
func (h *Handlers) DisableUserdataProgress(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}
	cmd, _, outcome := h.pollCommand(ctx, d)
	if cmd == nil {
		return outcome
	}
	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}
	if err := h.lifecycle.UnlockSession(ctx, session); err != nil {
		return events.Retryf("failed to unlock session %s: %v", session.SessionID, err)
	}
	return h.finishCommand(cmd.CommandID)
}
