package ota

import (
	"encoding/binary"
	"fmt"
)

// CmdID identifies one of the eight wire commands (spec.md §4.1).
type CmdID byte

// Wire command identifiers. Values are internal to this implementation;
// the spec only fixes ordering and field layout, not numeric ids.
const (
	CmdStart            CmdID = 0x01
	CmdFragment         CmdID = 0x02
	CmdEndFragments     CmdID = 0x03
	CmdFragmentsRequest CmdID = 0x04
	CmdAbort            CmdID = 0x05
	CmdActivate         CmdID = 0x06
	CmdManifest         CmdID = 0x07
	CmdFirmware         CmdID = 0x08
)

func (c CmdID) String() string {
	switch c {
	case CmdStart:
		return "START"
	case CmdFragment:
		return "FRAGMENT"
	case CmdEndFragments:
		return "END_FRAGMENTS"
	case CmdFragmentsRequest:
		return "FRAGMENTS_REQUEST"
	case CmdAbort:
		return "ABORT"
	case CmdActivate:
		return "ACTIVATE"
	case CmdManifest:
		return "MANIFEST"
	case CmdFirmware:
		return "FIRMWARE"
	default:
		return fmt.Sprintf("CMD(0x%02x)", byte(c))
	}
}

// headerLength is len(cmd_id) + len(session_id).
const headerLength = 1 + 16

// CommandPayload is implemented by every command's payload type. The
// interface carries no length: FRAGMENT, whose payload length depends on
// the session's fragment size, gets that size from DecodeOptions.
type CommandPayload interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// payloadFactory builds a new, zero-valued payload for a CmdID.
var payloadFactory = map[CmdID]func() CommandPayload{
	CmdStart:            func() CommandPayload { return &StartPayload{} },
	CmdFragment:         func() CommandPayload { return &FragmentPayload{} },
	CmdEndFragments:     func() CommandPayload { return &EndFragmentsPayload{} },
	CmdFragmentsRequest: func() CommandPayload { return &FragmentsRequestPayload{} },
	CmdAbort:            func() CommandPayload { return &AbortPayload{} },
	CmdActivate:         func() CommandPayload { return &ActivatePayload{} },
	CmdManifest:         func() CommandPayload { return &ManifestPayload{} },
	CmdFirmware:         func() CommandPayload { return &FirmwarePayload{} },
}

// GetPayload returns a new, empty payload for the given CmdID, or an
// error if the id is unknown. Unknown ids must be rejected, never
// silently ignored (spec.md §9 "Command dispatch").
func GetPayload(id CmdID) (CommandPayload, error) {
	f, ok := payloadFactory[id]
	if !ok {
		return nil, NewError(CodeParameterFail, fmt.Sprintf("unknown command id 0x%02x", byte(id)))
	}
	return f(), nil
}

// Command is a single decoded (or to-be-encoded) wire message:
// cmd_id(1) || session_id(16) || payload.
type Command struct {
	CmdID     CmdID
	SessionID SessionID
	Payload   CommandPayload
}

// MarshalBinary encodes the command header and payload.
func (c Command) MarshalBinary() ([]byte, error) {
	sid, err := c.SessionID.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, headerLength)
	b = append(b, byte(c.CmdID))
	b = append(b, sid...)

	if c.Payload != nil {
		p, err := c.Payload.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = append(b, p...)
	}

	return b, nil
}

// DecodeOptions supplies the out-of-band context the codec needs to
// size a variable-length FRAGMENT payload: the session's fixed
// fragment byte count. Zero means "no session context yet" and is only
// valid when the caller expects a fixed-size command (e.g. START).
type DecodeOptions struct {
	FragmentByteCount uint16
}

// DecodeCommand parses a wire frame into a Command. Frames shorter than
// the header, or carrying an unknown CmdID, return a PARAMETER_FAIL
// error and must be dropped by the caller without further processing.
func DecodeCommand(data []byte, opts DecodeOptions) (Command, error) {
	var cmd Command

	if len(data) < headerLength {
		return cmd, NewError(CodeParameterFail, "frame shorter than header")
	}

	cmd.CmdID = CmdID(data[0])
	if err := cmd.SessionID.UnmarshalBinary(data[1:headerLength]); err != nil {
		return cmd, err
	}

	payload, err := GetPayload(cmd.CmdID)
	if err != nil {
		return cmd, err
	}

	rest := data[headerLength:]
	if fp, ok := payload.(*FragmentPayload); ok {
		fp.fragmentByteCount = opts.FragmentByteCount
	}

	if err := payload.UnmarshalBinary(rest); err != nil {
		return cmd, err
	}
	cmd.Payload = payload

	return cmd, nil
}

func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }
func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
