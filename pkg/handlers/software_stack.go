package handlers

import (
	"context"
	"time"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// ValidateSoftwareStack polls the compute provider until the machine
// image behind a newly registered software stack is available, then
// enables the stack for session launches. When the stack was captured
// from a running session, the image going available also releases that
// session: Windows hosts get their userdata disabled again, other
// hosts are simply unlocked.
func (h *Handlers) ValidateSoftwareStack(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	stackID := d.Event.DetailString(detailStackID)
	baseOS := types.BaseOS(d.Event.DetailString(detailBaseOS))
	if stackID == "" || baseOS == "" {
		return events.Fatalf("software stack event missing stack_id or base_os")
	}

	stack, err := h.store.GetSoftwareStack(baseOS, stackID)
	if err != nil {
		if storage.IsNotFound(err) {
			return events.Retryf("software stack %s not found yet", stackID)
		}
		return events.Retryf("failed to load software stack %s: %v", stackID, err)
	}
	if stack.Enabled {
		return events.Success()
	}

	image, err := h.compute.DescribeImage(ctx, stack.ImageID)
	if err != nil {
		return events.Retryf("failed to describe image %s: %v", stack.ImageID, err)
	}
	if image.State != "available" {
		return events.Retryf("image %s in state %s", stack.ImageID, image.State)
	}

	stack.Enabled = true
	stack.UpdatedAt = time.Now()
	if err := h.store.UpdateSoftwareStack(stack); err != nil {
		return events.Retryf("failed to enable software stack %s: %v", stackID, err)
	}
	logger := log.WithMessage(h.logger, d.MessageID)
	logger.Info().
		Str("stack_id", stackID).
		Str("image_id", stack.ImageID).
		Msg("Software stack enabled")

	return h.releaseSourceSession(ctx, d, baseOS)
}

// releaseSourceSession hands the session an image was captured from
// back to its owner. Image capture from a Windows host re-enables
// userdata, so it must be disabled again; on other hosts the lock
// placed during capture is simply lifted.
func (h *Handlers) releaseSourceSession(ctx context.Context, d events.Delivery, baseOS types.BaseOS) events.Outcome {
	sessionID := d.Event.DetailString(detailSessionID)
	owner := d.Event.DetailString(detailOwner)
	if sessionID == "" || owner == "" {
		return events.Success()
	}

	session, err := h.store.GetSession(owner, sessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			return events.Success()
		}
		return events.Retryf("failed to load session %s: %v", sessionID, err)
	}

	if baseOS == types.BaseOSWindows {
		if err := h.lifecycle.SendDisableUserdataCommand(ctx, session); err != nil {
			return events.Retryf("failed to send disable userdata command: %v", err)
		}
		return events.Success()
	}
	if err := h.lifecycle.UnlockSession(ctx, session); err != nil {
		return events.Retryf("failed to unlock session %s: %v", sessionID, err)
	}
	return events.Success()
}

// SessionStackUpdated refreshes the software stack copy embedded in
// every session launched from an updated stack. The update is
// idempotent: sessions already carrying the new revision are skipped.
func (h *Handlers) SessionStackUpdated(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	stackID := d.Event.DetailString(detailStackID)
	baseOS := types.BaseOS(d.Event.DetailString(detailBaseOS))
	if stackID == "" || baseOS == "" {
		return events.Fatalf("software stack event missing stack_id or base_os")
	}

	stack, err := h.store.GetSoftwareStack(baseOS, stackID)
	if err != nil {
		if storage.IsNotFound(err) {
			return events.Retryf("software stack %s not found yet", stackID)
		}
		return events.Retryf("failed to load software stack %s: %v", stackID, err)
	}

	sessions, err := h.store.ListSessions()
	if err != nil {
		return events.Retryf("failed to list sessions: %v", err)
	}

	updated := 0
	for _, session := range sessions {
		if session.SoftwareStack == nil || session.SoftwareStack.StackID != stackID {
			continue
		}
		if session.SoftwareStack.UpdatedAt.Equal(stack.UpdatedAt) {
			continue
		}
		session.SoftwareStack = stack
		session.UpdatedAt = time.Now()
		if err := h.store.UpdateSession(session); err != nil {
			return events.Retryf("failed to update session %s: %v", session.SessionID, err)
		}
		updated++
	}

	logger := log.WithMessage(h.logger, d.MessageID)
	logger.Info().
		Str("stack_id", stackID).
		Int("sessions", updated).
		Msg("Propagated software stack update")
	return events.Success()
}
