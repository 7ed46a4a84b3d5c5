package engine

import (
	"context"
	"fmt"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/bitmask"
	"github.com/sixlowan/otafw/hasher"
	"github.com/sixlowan/otafw/store"
	"github.com/sixlowan/otafw/timer"
)

// handleStart processes an accepted START announce. A session may only
// be created from IDLE (spec.md §4.5): if one is already active, the
// command is rejected and the current session is left untouched,
// whether or not the incoming session_id matches it.
func (e *Engine) handleStart(ctx context.Context, sessionID ota.SessionID, p *ota.StartPayload) {
	if p.DeviceType != e.device {
		return
	}
	if e.session != nil {
		e.notifyError(ota.CodeParameterFail, "START received while a session is already active", store.ErrSessionExists)
		return
	}

	session := ota.NewSessionParameters(sessionID, p.DeviceType, p.TotalByteCount, p.FragmentSize, p.WholeFWChecksum)
	if err := e.store.StoreNew(ctx, store.FromParameters(session)); err != nil {
		e.notifyError(ota.CodeParameterFail, "store new session", err)
		return
	}

	e.session = session
	e.activateReceived = false
	e.timers.Start(timer.Fallback, MissingFragmentFallbackTimeoutSeconds, 0)

	if e.collab.Notifier != nil {
		e.collab.Notifier.StartReceived(session)
	}
	e.updateStatus()
}

// handleFragment applies one received FRAGMENT, either toward this
// device's own bitmask or, while a serve loop is armed, toward the
// serve scratch bitmask so concurrently serving peers converge without
// re-sending what another peer already delivered on the shared
// link-local multicast channel.
func (e *Engine) handleFragment(ctx context.Context, p *ota.FragmentPayload) {
	if e.session == nil {
		return
	}

	if e.serving {
		e.noteServedByPeer(p.FragmentID)
		return
	}

	if e.session.State != ota.StateStarted && e.session.State != ota.StateMissingFragmentsRequesting {
		return
	}

	if p.FragmentID == 0 || p.FragmentID > e.session.FragmentCount() {
		e.notifyError(ota.CodeParameterFail, "fragment id out of range", fmt.Errorf("fragment id %d", p.FragmentID))
		return
	}

	if ota.FragmentCRC(p.Bytes) != p.CRC {
		e.log.WithField("fragment", p.FragmentID).Warn("fragment CRC mismatch, dropping")
		return
	}

	if e.session.Tracker().IsReceived(p.FragmentID) {
		return
	}

	offset := uint32(p.FragmentID-1) * uint32(e.session.FWFragmentByteCount)
	written, err := e.collab.Storage.WriteFW(e.session.SessionID, offset, p.Bytes)
	if err != nil || written != uint32(len(p.Bytes)) {
		e.notifyError(ota.CodeStorageError, "write fragment", err)
		return
	}

	e.session.Tracker().MarkReceived(p.FragmentID)
	if err := e.persist(ctx); err != nil {
		e.log.WithError(err).Warn("persist session after fragment")
	}

	if e.session.MissingTotal() == 0 {
		e.enterChecksumCalculating(ctx)
	} else {
		e.timers.Start(timer.Fallback, MissingFragmentFallbackTimeoutSeconds, 0)
		if e.session.State == ota.StateMissingFragmentsRequesting {
			e.timers.Start(timer.MissingFragmentsRequesting, MissingFragmentsRequestingTimeoutStart, TimerRandomWindowSeconds)
		}
	}

	e.updateStatus()
}

// noteServedByPeer marks a fragment off the serve scratch bitmask when
// it arrives over the wire while this device is itself serving the same
// segment, mirroring the source's dual handling of FRAGMENT in
// ota_manage_fragment_command.
func (e *Engine) noteServedByPeer(fragmentID uint16) {
	if bitmask.Segment(fragmentID) != e.serve.segmentID {
		return
	}
	local := ((fragmentID - 1) % bitmask.SegmentSize) + 1
	bitmask.MarkLocal(&e.serve.want, local)
}

// handleEndFragments closes the router's initial push from the node's
// perspective: if nothing is missing, proceed straight to checksum
// verification; otherwise start the recovery cadence.
func (e *Engine) handleEndFragments(ctx context.Context) {
	if e.session == nil || e.session.State != ota.StateStarted {
		return
	}

	if e.session.MissingTotal() == 0 {
		e.enterChecksumCalculating(ctx)
		return
	}

	e.session.State = ota.StateMissingFragmentsRequesting
	if err := e.persist(ctx); err != nil {
		e.log.WithError(err).Warn("persist session after end-fragments")
	}
	e.timers.Start(timer.MissingFragmentsRequesting, MissingFragmentsRequestingTimeoutStart, TimerRandomWindowSeconds)
	e.updateStatus()
}

// handleAbort is the global cancel (spec.md §5): every timer is
// canceled, the hasher is freed, state moves to ABORTED, and the
// session row is kept so upstream can still query it.
func (e *Engine) handleAbort(ctx context.Context) {
	if e.session == nil {
		return
	}

	for _, id := range []timer.ID{
		timer.Activate, timer.EndFragments, timer.MissingFragmentsRequesting,
		timer.FragmentsDelivering, timer.FragmentsRequestService, timer.Fallback,
		timer.ChecksumCalculating, timer.MulticastMessageSent, timer.FirmwareReady,
	} {
		e.timers.Cancel(id)
	}

	e.pipeline = nil
	e.serving = false
	e.serve = serveScratch{}
	e.delivering = false

	e.session.State = ota.StateAborted
	if err := e.persist(ctx); err != nil {
		e.log.WithError(err).Warn("persist session after abort")
	}
	e.updateStatus()
}

// handleActivate accepts an ACTIVATE for this device's own type,
// canceling the recovery timers (no further point in chasing missing
// fragments once activation is requested) and arming a jittered
// notification timer. A duplicate ACTIVATE for the same session does
// not re-arm the timer, matching the source's ota_fw_update_received
// guard.
func (e *Engine) handleActivate(ctx context.Context, p *ota.ActivatePayload) {
	if e.session == nil {
		return
	}

	e.timers.Cancel(timer.MissingFragmentsRequesting)
	e.timers.Cancel(timer.Fallback)

	if e.session.State != ota.StateProcessCompleted && e.session.State != ota.StateUpdateFW {
		e.log.Warn("ACTIVATE received outside PROCESS_COMPLETED/UPDATE_FW, ignoring")
		return
	}

	if p.DeviceType != e.device {
		if e.device == ota.DeviceTypeBorderRouter && e.collab.Notifier != nil {
			e.collab.Notifier.ProcessFinished(e.session.SessionID)
		}
		return
	}

	if !e.activateReceived {
		e.activateDelay = p.DelaySeconds
		e.activateReceived = true
		e.timers.Start(timer.Activate, NotificationTimerDelaySeconds, TimerRandomWindowSeconds)
	}

	if e.session.State != ota.StateUpdateFW {
		e.session.State = ota.StateUpdateFW
		if err := e.persist(ctx); err != nil {
			e.log.WithError(err).Warn("persist session after activate")
		}
	}
	e.updateStatus()
}

// handleManifest passes an opaque manifest blob straight through to the
// application; the core never parses it (spec.md §1 Non-goals).
func (e *Engine) handleManifest(ctx context.Context, p *ota.ManifestPayload) {
	if e.session == nil {
		return
	}
	if e.session.State == ota.StateStarted {
		e.session.State = ota.StateManifestReceived
		if err := e.persist(ctx); err != nil {
			e.log.WithError(err).Warn("persist session after manifest")
		}
	}
	if e.collab.Notifier != nil {
		e.collab.Notifier.ManifestReceived(p.Bytes)
	}
	e.updateStatus()
}

// handleFragmentsRequest arms a serve loop on behalf of a peer, unless
// one is already running, or (border-router only) this device is itself
// mid-delivery of the initial push.
func (e *Engine) handleFragmentsRequest(ctx context.Context, p *ota.FragmentsRequestPayload) {
	if e.session == nil {
		return
	}

	if e.session.State != ota.StateProcessCompleted && e.session.State != ota.StateUpdateFW {
		if e.session.State == ota.StateMissingFragmentsRequesting {
			e.timers.Start(timer.MissingFragmentsRequesting, MissingFragmentsRequestingTimeoutStart, TimerRandomWindowSeconds)
		}
		return
	}

	if e.serving {
		e.log.Debug("fragments request service already ongoing, ignoring")
		return
	}
	if e.device == ota.DeviceTypeBorderRouter && e.delivering {
		e.log.Debug("firmware delivering ongoing, ignoring fragments request")
		return
	}

	e.serve = serveScratch{segmentID: p.SegmentID, want: p.Bitmask}
	if _, ok := e.nextServeGlobal(); !ok {
		e.log.Debug("no missing fragments in request")
		return
	}

	e.serving = true
	e.timers.Start(timer.FragmentsRequestService, FragmentsRequestServiceTimeoutStart, TimerRandomWindowSeconds)
}

// nextServeGlobal picks the next fragment id a serve loop should send,
// skipping any local position beyond this session's fragment count
// (the padding bits of a partial final segment), mirroring
// ota_get_next_missing_fragment_id_for_requester.
func (e *Engine) nextServeGlobal() (uint16, bool) {
	for {
		local := bitmask.FirstZeroBit(e.serve.want)
		if local == 0 {
			return 0, false
		}
		global := (e.serve.segmentID-1)*bitmask.SegmentSize + local
		if e.session != nil && global > e.session.FragmentCount() {
			bitmask.MarkLocal(&e.serve.want, local)
			continue
		}
		return global, true
	}
}

// buildFragment reads fragment fragID from storage and assembles its
// wire command, clamping the read length for a partial final fragment
// and computing the CRC over the payload bytes only.
func (e *Engine) buildFragment(fragID uint16) (ota.Command, error) {
	offset := uint32(fragID-1) * uint32(e.session.FWFragmentByteCount)
	length := uint32(e.session.FWFragmentByteCount)
	if offset+length > e.session.FWTotalByteCount {
		length = e.session.FWTotalByteCount - offset
	}

	buf := make([]byte, length)
	n, err := e.collab.Storage.ReadFW(e.session.SessionID, offset, buf)
	if err != nil || n != length {
		if err == nil {
			err = fmt.Errorf("short read: got %d want %d bytes", n, length)
		}
		return ota.Command{}, ota.WithCode(ota.CodeStorageError, err, "read fragment bytes")
	}

	payload := &ota.FragmentPayload{FragmentID: fragID, Bytes: buf, CRC: ota.FragmentCRC(buf)}
	return ota.Command{CmdID: ota.CmdFragment, SessionID: e.session.SessionID, Payload: payload}, nil
}

// enterChecksumCalculating allocates the hasher pipeline and starts its
// first 10ms step, canceling the recovery timers (the image is
// complete, there is nothing left to request).
func (e *Engine) enterChecksumCalculating(ctx context.Context) {
	e.timers.Cancel(timer.Fallback)
	e.timers.Cancel(timer.MissingFragmentsRequesting)

	e.session.State = ota.StateChecksumCalculating
	if err := e.persist(ctx); err != nil {
		e.log.WithError(err).Warn("persist session entering checksum calculating")
	}

	sessionID := e.session.SessionID
	e.pipeline = hasher.New(e.session.FWTotalByteCount, e.session.WholeFWChecksum, func(offset, length uint32, out []byte) (uint32, error) {
		return e.collab.Storage.ReadFW(sessionID, offset, out)
	})
	e.timers.StartMS(timer.ChecksumCalculating, ChecksumCalculatingIntervalMS)
	e.updateStatus()
}

// onChecksumTimer drives one Step of the hasher pipeline, transitioning
// to PROCESS_COMPLETED or CHECKSUM_FAILED once the image has been fully
// consumed.
func (e *Engine) onChecksumTimer(ctx context.Context) {
	if e.session == nil || e.pipeline == nil {
		return
	}

	result, err := e.pipeline.Step()
	if err != nil {
		e.notifyError(ota.CodeStorageError, "hasher step", err)
		e.timers.StartMS(timer.ChecksumCalculating, ChecksumCalculatingIntervalMS)
		return
	}
	if result == nil {
		e.timers.StartMS(timer.ChecksumCalculating, ChecksumCalculatingIntervalMS)
		return
	}

	e.pipeline = nil
	if result.Match {
		e.session.State = ota.StateProcessCompleted
		if err := e.persist(ctx); err != nil {
			e.log.WithError(err).Warn("persist session on checksum match")
		}
		e.timers.Start(timer.EndFragments, NotificationTimerDelaySeconds, TimerRandomWindowSeconds)
		e.timers.Start(timer.FirmwareReady, NotificationTimerDelaySeconds, 0)
		if e.collab.Notifier != nil {
			e.collab.Notifier.ProcessFinished(e.session.SessionID)
		}
	} else {
		e.notifyError(ota.CodeChecksumFail, "whole image checksum mismatch", nil)
		e.session.State = ota.StateChecksumFailed
		if err := e.persist(ctx); err != nil {
			e.log.WithError(err).Warn("persist session on checksum mismatch")
		}
		if e.collab.Notifier != nil {
			e.collab.Notifier.ProcessFinished(e.session.SessionID)
		}
	}
	e.updateStatus()
}

// onFallbackTimer is the autonomous recovery trigger for a lost
// END_FRAGMENTS: whenever it fires with any fragment still missing, the
// node unconditionally switches to MISSING_FRAGMENTS_REQUESTING and
// re-arms itself so a second loss cannot strand the session forever.
func (e *Engine) onFallbackTimer(ctx context.Context) {
	if e.session == nil || e.session.State == ota.StateAborted {
		return
	}
	if e.session.MissingTotal() == 0 {
		return
	}

	e.session.State = ota.StateMissingFragmentsRequesting
	if err := e.persist(ctx); err != nil {
		e.log.WithError(err).Warn("persist session on fallback")
	}
	e.timers.Start(timer.MissingFragmentsRequesting, MissingFragmentsRequestingTimeoutStart, TimerRandomWindowSeconds)
	e.timers.Start(timer.Fallback, MissingFragmentFallbackTimeoutSeconds, 0)
	e.updateStatus()
}

// onMissingFragmentsRequestingTimer builds and sends one FRAGMENTS_REQUEST.
// spec.md §4.6 names get_parent_addr as resolving "the mesh parent
// discovery for unicast REQUEST upstream", and the source unconditionally
// unicasts to ota_lib_config_data.unicast_socket_addr; when no parent is
// currently known this falls back to link-local multicast so the request
// still reaches any peer, rather than being silently dropped.
func (e *Engine) onMissingFragmentsRequestingTimer(ctx context.Context) {
	if e.session == nil || e.session.State != ota.StateMissingFragmentsRequesting {
		return
	}
	if e.session.MissingTotal() == 0 {
		return
	}

	var window [bitmask.WindowLength]byte
	segID := e.session.Tracker().FirstMissingSegment(&window)
	if segID == 0 {
		return
	}

	payload := &ota.FragmentsRequestPayload{SegmentID: segID, Bitmask: window}
	cmd := ota.Command{CmdID: ota.CmdFragmentsRequest, SessionID: e.session.SessionID, Payload: payload}
	data, err := cmd.MarshalBinary()
	if err != nil {
		e.log.WithError(err).Warn("encode FRAGMENTS_REQUEST")
		return
	}

	if addr, ok := e.collab.Transport.ParentAddr(); ok {
		if err := e.collab.Transport.SendUnicast(addr, data); err != nil {
			e.log.WithError(err).Warn("send FRAGMENTS_REQUEST to parent")
		}
	} else {
		e.log.Warn("no parent address known, falling back to link-local multicast for FRAGMENTS_REQUEST")
		if err := e.collab.Transport.SendLinkLocal(data); err != nil {
			e.log.WithError(err).Warn("send FRAGMENTS_REQUEST link-local")
		}
	}

	e.timers.Start(timer.MissingFragmentsRequesting, MissingFragmentsRequestingTimeoutStart, TimerRandomWindowSeconds)
}

// onFragmentsRequestServiceTimer sends the next fragment a serve loop
// owes its requester, then either reschedules itself or ends the loop.
func (e *Engine) onFragmentsRequestServiceTimer(ctx context.Context) {
	if !e.serving || e.session == nil {
		return
	}

	global, ok := e.nextServeGlobal()
	if !ok {
		e.log.Debug("all requested fragments sent")
		e.serving = false
		return
	}

	cmd, err := e.buildFragment(global)
	if err != nil {
		e.log.WithError(err).Warn("build served fragment")
	} else if data, err := cmd.MarshalBinary(); err != nil {
		e.log.WithError(err).Warn("encode served fragment")
	} else if err := e.collab.Transport.SendLinkLocal(data); err != nil {
		e.log.WithError(err).Warn("send served fragment")
	}

	local := global - (e.serve.segmentID-1)*bitmask.SegmentSize
	bitmask.MarkLocal(&e.serve.want, local)

	if _, ok := e.nextServeGlobal(); ok {
		e.timers.Start(timer.FragmentsRequestService, MulticastIntervalSeconds+FragmentsRequestServiceFollowupOffset, 0)
	} else {
		e.log.Debug("all requested fragments sent")
		e.serving = false
	}
}

// onActivateTimer fires once per accepted ACTIVATE, after the
// notification jitter window, and tells the application the delay it
// requested (spec.md §8 scenario 6: "invoking
// send_update_fw_cmd_received_info(10) exactly once").
func (e *Engine) onActivateTimer(ctx context.Context) {
	if e.session == nil {
		return
	}
	if e.session.State != ota.StateProcessCompleted && e.session.State != ota.StateUpdateFW {
		return
	}
	if e.collab.Notifier != nil {
		e.collab.Notifier.ActivateReceived(e.session.SessionID, e.activateDelay)
	}
}

// onEndFragmentsTimer announces END_FRAGMENTS: the border router sends it
// on the site-scope multicast that carried its initial push, and also
// reports the estimated resend window and flips READY back to available;
// a node re-announces it on link-local multicast.
func (e *Engine) onEndFragmentsTimer(ctx context.Context) {
	if e.session == nil {
		return
	}

	send := e.collab.Transport.SendLinkLocal
	if e.device == ota.DeviceTypeBorderRouter {
		send = e.collab.Transport.SendMulticast
	}

	cmd := ota.Command{CmdID: ota.CmdEndFragments, SessionID: e.session.SessionID, Payload: &ota.EndFragmentsPayload{}}
	if data, err := cmd.MarshalBinary(); err != nil {
		e.log.WithError(err).Warn("encode END_FRAGMENTS")
	} else if err := send(data); err != nil {
		e.log.WithError(err).Warn("send END_FRAGMENTS")
	}

	if e.device == ota.DeviceTypeBorderRouter && e.collab.Notifier != nil {
		e.collab.Notifier.UpdateResource(ResourceEstimatedResendTime, e.EstimatedResendHours())
		e.collab.Notifier.UpdateResource(ResourceReady, []byte("1"))
	}
}

// onFirmwareReadyTimer fires once, shortly after PROCESS_COMPLETED, to
// tell the application the image is fully verified and ready to be
// applied.
func (e *Engine) onFirmwareReadyTimer(ctx context.Context) {
	if e.collab.Notifier != nil {
		e.collab.Notifier.FirmwareReady()
	}
}

// onMulticastMessageSentTimer removes the session row once a
// standalone, one-shot relay (currently only MANIFEST) has had one full
// multicast interval to propagate, mirroring the source's
// ota_delete_process cleanup after such a relay.
func (e *Engine) onMulticastMessageSentTimer(ctx context.Context) {
	if e.session == nil {
		return
	}
	sessionID := e.session.SessionID
	if err := e.store.Remove(ctx, sessionID); err != nil {
		e.log.WithError(err).Warn("remove session after multicast relay")
	}
	e.session = nil
}

// EstimatedResendHours formats MISSING_FRAGMENT_WAITTIME_HOURS as the
// 4-byte big-endian seconds value the ESTIMATED_RESEND_TIME resource
// carries (spec.md §9 supplemented feature: ota_send_estimated_resend_time).
func (e *Engine) EstimatedResendHours() []byte {
	seconds := uint32(MissingFragmentWaittimeHours) * 3600
	b := make([]byte, 4)
	b[0] = byte(seconds >> 24)
	b[1] = byte(seconds >> 16)
	b[2] = byte(seconds >> 8)
	b[3] = byte(seconds)
	return b
}
