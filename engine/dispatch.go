package engine

import (
	"context"
	"fmt"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/timer"
)

// HandleCommand decodes and routes one received wire frame (spec.md
// §4.1, §4.5 "Command dispatch"). A command whose session id does not
// match the active session is dropped silently, per spec.md §4.5
// Failure semantics; START is the only command evaluated before a
// session exists.
func (e *Engine) HandleCommand(ctx context.Context, raw []byte) {
	if len(raw) < 1 {
		return
	}
	cmdID := ota.CmdID(raw[0])

	opts := ota.DecodeOptions{}
	if e.session != nil {
		opts.FragmentByteCount = e.session.FWFragmentByteCount
	}

	cmd, err := ota.DecodeCommand(raw, opts)
	if err != nil {
		e.notifyError(ota.CodeParameterFail, "decode command", err)
		return
	}

	if cmdID != ota.CmdStart {
		if e.session == nil || cmd.SessionID != e.session.SessionID {
			e.log.WithField("cmd", cmdID.String()).Debug("dropping command for unknown or mismatched session")
			return
		}
	}

	switch p := cmd.Payload.(type) {
	case *ota.StartPayload:
		e.handleStart(ctx, cmd.SessionID, p)
	case *ota.FragmentPayload:
		e.handleFragment(ctx, p)
	case *ota.EndFragmentsPayload:
		e.handleEndFragments(ctx)
	case *ota.FragmentsRequestPayload:
		e.handleFragmentsRequest(ctx, p)
	case *ota.AbortPayload:
		e.handleAbort(ctx)
	case *ota.ActivatePayload:
		e.handleActivate(ctx, p)
	case *ota.ManifestPayload:
		e.handleManifest(ctx, p)
	default:
		e.notifyError(ota.CodeParameterFail, "unsupported command", fmt.Errorf("cmd %s has no handler", cmdID))
	}
}

// HandleTimerExpiry is the single entry point timer callbacks invoke
// (spec.md §4.4: "Expiry delivers a single callback carrying the timer
// id to the dispatcher; the dispatcher executes timer-expiry logic
// synchronously").
func (e *Engine) HandleTimerExpiry(ctx context.Context, id timer.ID) {
	switch id {
	case timer.Activate:
		e.onActivateTimer(ctx)
	case timer.EndFragments:
		e.onEndFragmentsTimer(ctx)
	case timer.MissingFragmentsRequesting:
		e.onMissingFragmentsRequestingTimer(ctx)
	case timer.FragmentsDelivering:
		e.onFragmentsDeliveringTimer(ctx)
	case timer.FragmentsRequestService:
		e.onFragmentsRequestServiceTimer(ctx)
	case timer.Fallback:
		e.onFallbackTimer(ctx)
	case timer.ChecksumCalculating:
		e.onChecksumTimer(ctx)
	case timer.MulticastMessageSent:
		e.onMulticastMessageSentTimer(ctx)
	case timer.FirmwareReady:
		e.onFirmwareReadyTimer(ctx)
	default:
		e.log.WithField("timer", id.String()).Warn("unsupported timer id")
	}
}
