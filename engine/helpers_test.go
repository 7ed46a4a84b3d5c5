package engine

import (
	"context"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/timer"
)

var testCtx = context.Background()

func mustMarshal(cmd ota.Command) []byte {
	data, err := cmd.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return data
}

func startFrame(sid ota.SessionID, device ota.DeviceType, totalBytes uint32, fragmentSize uint16, checksum [ota.WholeFWChecksumLength]byte) []byte {
	return mustMarshal(ota.Command{
		CmdID:     ota.CmdStart,
		SessionID: sid,
		Payload: &ota.StartPayload{
			DeviceType:      device,
			FragmentCount:   ota.FragmentCount(totalBytes, fragmentSize),
			FragmentSize:    fragmentSize,
			TotalByteCount:  totalBytes,
			WholeFWChecksum: checksum,
		},
	})
}

func fragmentFrame(sid ota.SessionID, fragID uint16, bytes []byte) []byte {
	return mustMarshal(ota.Command{
		CmdID:     ota.CmdFragment,
		SessionID: sid,
		Payload:   &ota.FragmentPayload{FragmentID: fragID, Bytes: bytes, CRC: ota.FragmentCRC(bytes)},
	})
}

func endFragmentsFrame(sid ota.SessionID) []byte {
	return mustMarshal(ota.Command{CmdID: ota.CmdEndFragments, SessionID: sid, Payload: &ota.EndFragmentsPayload{}})
}

func abortFrame(sid ota.SessionID) []byte {
	return mustMarshal(ota.Command{CmdID: ota.CmdAbort, SessionID: sid, Payload: &ota.AbortPayload{}})
}

func activateFrame(sid ota.SessionID, device ota.DeviceType, delay uint32) []byte {
	return mustMarshal(ota.Command{
		CmdID:     ota.CmdActivate,
		SessionID: sid,
		Payload:   &ota.ActivatePayload{DeviceType: device, DelaySeconds: delay},
	})
}

func manifestFrame(sid ota.SessionID, data []byte) []byte {
	return mustMarshal(ota.Command{CmdID: ota.CmdManifest, SessionID: sid, Payload: &ota.ManifestPayload{Bytes: data}})
}

// testImage returns a deterministic byte slice of n bytes, filled with a
// repeating, non-constant pattern so per-fragment CRCs differ.
func testImage(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

// driveChecksum steps the active hasher pipeline to completion by firing
// the CHECKSUM_CALCULATING timer repeatedly, as the real scheduler would.
func driveChecksum(e *Engine, maxSteps int) {
	for i := 0; i < maxSteps && e.pipeline != nil; i++ {
		e.HandleTimerExpiry(testCtx, timer.ChecksumCalculating)
	}
}
