package engine

import (
	"context"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/store"
	"github.com/sixlowan/otafw/timer"
)

// TriggerFirmware is the router-only local equivalent of the source's
// FIRMWARE command delivered over its CoAP resource: it creates the
// router's own session for sessionID, announces it with a multicast
// START, and arms the FRAGMENTS_DELIVERING cadence. Router callers are
// expected to already have fragment bytes in Storage before calling
// this (e.g. after a direct pull via pullURL).
func (e *Engine) TriggerFirmware(ctx context.Context, sessionID ota.SessionID, totalBytes uint32, fragmentByteCount uint16, checksum [ota.WholeFWChecksumLength]byte, pullURL string) error {
	if e.device != ota.DeviceTypeBorderRouter {
		return ota.NewError(ota.CodeParameterFail, "TriggerFirmware is router-only")
	}
	if e.session != nil {
		return ota.NewError(ota.CodeParameterFail, "a session is already active")
	}

	session := ota.NewSessionParameters(sessionID, ota.DeviceTypeNode, totalBytes, fragmentByteCount, checksum)
	session.PullURL = pullURL

	if err := e.store.StoreNew(ctx, store.FromParameters(session)); err != nil {
		return err
	}
	e.session = session

	if e.collab.Notifier != nil {
		e.collab.Notifier.StartReceived(session)
	}

	startPayload := &ota.StartPayload{
		DeviceType:      ota.DeviceTypeNode,
		FragmentCount:   session.FragmentCount(),
		FragmentSize:    session.FWFragmentByteCount,
		TotalByteCount:  session.FWTotalByteCount,
		WholeFWChecksum: session.WholeFWChecksum,
	}
	cmd := ota.Command{CmdID: ota.CmdStart, SessionID: sessionID, Payload: startPayload}
	data, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}
	if err := e.collab.Transport.SendMulticast(data); err != nil {
		return err
	}

	e.delivering = true
	e.nextFragmentID = 1
	e.timers.Start(timer.FragmentsDelivering, MulticastIntervalSeconds, 0)
	e.updateStatus()
	return nil
}

// onFragmentsDeliveringTimer emits the next sequential fragment of the
// router's own push, or arms END_FRAGMENTS once fw_fragment_count have
// gone out.
func (e *Engine) onFragmentsDeliveringTimer(ctx context.Context) {
	if !e.delivering || e.session == nil {
		return
	}

	total := e.session.FragmentCount()
	if e.nextFragmentID > total {
		e.delivering = false
		e.timers.Start(timer.EndFragments, NotificationTimerDelaySeconds, TimerRandomWindowSeconds)
		return
	}

	cmd, err := e.buildFragment(e.nextFragmentID)
	e.nextFragmentID++
	if err != nil {
		e.log.WithError(err).Warn("build delivered fragment")
	} else if data, err := cmd.MarshalBinary(); err != nil {
		e.log.WithError(err).Warn("encode delivered fragment")
	} else if err := e.collab.Transport.SendMulticast(data); err != nil {
		e.log.WithError(err).Warn("send delivered fragment")
	}

	e.timers.Start(timer.FragmentsDelivering, MulticastIntervalSeconds, 0)
}

// RelayManifest multicasts an opaque manifest blob under the active
// session and, since a manifest relay is a one-shot announcement rather
// than part of the fragment push, arms MULTICAST_MESSAGE_SENT to clean
// the session row up once it has had one interval to propagate.
func (e *Engine) RelayManifest(ctx context.Context, data []byte) error {
	if e.device != ota.DeviceTypeBorderRouter || e.session == nil {
		return ota.NewError(ota.CodeParameterFail, "RelayManifest requires an active router session")
	}

	cmd := ota.Command{CmdID: ota.CmdManifest, SessionID: e.session.SessionID, Payload: &ota.ManifestPayload{Bytes: data}}
	raw, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}
	if err := e.collab.Transport.SendMulticast(raw); err != nil {
		return err
	}

	e.timers.Start(timer.MulticastMessageSent, MulticastIntervalSeconds, 0)
	return nil
}

// RelayActivate multicasts an ACTIVATE targeting every node in the
// active session, after delaySeconds.
func (e *Engine) RelayActivate(ctx context.Context, delaySeconds uint32) error {
	if e.device != ota.DeviceTypeBorderRouter || e.session == nil {
		return ota.NewError(ota.CodeParameterFail, "RelayActivate requires an active router session")
	}

	cmd := ota.Command{
		CmdID:     ota.CmdActivate,
		SessionID: e.session.SessionID,
		Payload:   &ota.ActivatePayload{DeviceType: ota.DeviceTypeNode, DelaySeconds: delaySeconds},
	}
	raw, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}
	return e.collab.Transport.SendMulticast(raw)
}

// FirmwarePulled marks every fragment as present (the image arrived via
// a direct out-of-band pull rather than fragment-by-fragment multicast)
// and jumps straight to CHECKSUM_CALCULATING.
func (e *Engine) FirmwarePulled(ctx context.Context) {
	if e.session == nil {
		return
	}
	e.session.Tracker().MarkAllReceived()
	e.enterChecksumCalculating(ctx)
}
