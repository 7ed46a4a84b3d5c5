package ota

import "fmt"

// StartPayload announces a new session (router → nodes, multicast).
type StartPayload struct {
	DeviceType      DeviceType
	FragmentCount   uint16
	FragmentSize    uint16
	TotalByteCount  uint32
	WholeFWChecksum [WholeFWChecksumLength]byte
}

func (p StartPayload) size() int { return 1 + 2 + 2 + 4 + WholeFWChecksumLength }

// MarshalBinary encodes the payload to a slice of bytes.
func (p StartPayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, p.size())
	b[0] = byte(p.DeviceType)
	putUint16(b[1:3], p.FragmentCount)
	putUint16(b[3:5], p.FragmentSize)
	putUint32(b[5:9], p.TotalByteCount)
	copy(b[9:9+WholeFWChecksumLength], p.WholeFWChecksum[:])
	return b, nil
}

// UnmarshalBinary decodes the payload from a slice of bytes.
func (p *StartPayload) UnmarshalBinary(data []byte) error {
	if len(data) < p.size() {
		return NewError(CodeParameterFail, fmt.Sprintf("START payload: %d bytes expected", p.size()))
	}
	p.DeviceType = DeviceType(data[0])
	p.FragmentCount = getUint16(data[1:3])
	p.FragmentSize = getUint16(data[3:5])
	p.TotalByteCount = getUint32(data[5:9])
	copy(p.WholeFWChecksum[:], data[9:9+WholeFWChecksumLength])
	return nil
}

// FragmentPayload carries one data fragment. fragmentByteCount is set by
// DecodeCommand from session context; it is not part of the wire frame.
type FragmentPayload struct {
	FragmentID uint16
	Bytes      []byte
	CRC        uint16

	fragmentByteCount uint16
}

// MarshalBinary encodes the payload to a slice of bytes.
func (p FragmentPayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, 2+len(p.Bytes)+2)
	putUint16(b[0:2], p.FragmentID)
	copy(b[2:2+len(p.Bytes)], p.Bytes)
	putUint16(b[2+len(p.Bytes):], p.CRC)
	return b, nil
}

// UnmarshalBinary decodes the payload from a slice of bytes. The caller
// (via DecodeCommand) must set fragmentByteCount to the session's
// fragment size before calling this; otherwise the trailing CRC cannot
// be located.
func (p *FragmentPayload) UnmarshalBinary(data []byte) error {
	want := 2 + int(p.fragmentByteCount) + 2
	if len(data) < want {
		return NewError(CodeParameterFail, fmt.Sprintf("FRAGMENT payload: %d bytes expected, got %d", want, len(data)))
	}
	p.FragmentID = getUint16(data[0:2])
	p.Bytes = append([]byte(nil), data[2:2+p.fragmentByteCount]...)
	p.CRC = getUint16(data[2+int(p.fragmentByteCount):])
	return nil
}

// EndFragmentsPayload has no fields: it marks the end of the router's
// initial push.
type EndFragmentsPayload struct{}

func (EndFragmentsPayload) MarshalBinary() ([]byte, error)  { return nil, nil }
func (*EndFragmentsPayload) UnmarshalBinary([]byte) error { return nil }

// FragmentsRequestPayload asks a peer for the missing fragments of one
// segment.
type FragmentsRequestPayload struct {
	SegmentID uint16
	Bitmask   [FragmentsReqBitmaskLength]byte
}

func (p FragmentsRequestPayload) size() int { return 2 + FragmentsReqBitmaskLength }

// MarshalBinary encodes the payload to a slice of bytes.
func (p FragmentsRequestPayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, p.size())
	putUint16(b[0:2], p.SegmentID)
	copy(b[2:], p.Bitmask[:])
	return b, nil
}

// UnmarshalBinary decodes the payload from a slice of bytes.
func (p *FragmentsRequestPayload) UnmarshalBinary(data []byte) error {
	if len(data) < p.size() {
		return NewError(CodeParameterFail, fmt.Sprintf("FRAGMENTS_REQUEST payload: %d bytes expected", p.size()))
	}
	p.SegmentID = getUint16(data[0:2])
	copy(p.Bitmask[:], data[2:2+FragmentsReqBitmaskLength])
	return nil
}

// AbortPayload has no fields: it cancels the current session.
type AbortPayload struct{}

func (AbortPayload) MarshalBinary() ([]byte, error)  { return nil, nil }
func (*AbortPayload) UnmarshalBinary([]byte) error { return nil }

// ActivatePayload triggers firmware activation after delay seconds.
type ActivatePayload struct {
	DeviceType   DeviceType
	DelaySeconds uint32
}

func (p ActivatePayload) size() int { return 1 + 4 }

// MarshalBinary encodes the payload to a slice of bytes.
func (p ActivatePayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, p.size())
	b[0] = byte(p.DeviceType)
	putUint32(b[1:5], p.DelaySeconds)
	return b, nil
}

// UnmarshalBinary decodes the payload from a slice of bytes.
func (p *ActivatePayload) UnmarshalBinary(data []byte) error {
	if len(data) < p.size() {
		return NewError(CodeParameterFail, fmt.Sprintf("ACTIVATE payload: %d bytes expected", p.size()))
	}
	p.DeviceType = DeviceType(data[0])
	p.DelaySeconds = getUint32(data[1:5])
	return nil
}

// ManifestPayload carries an opaque, pass-through manifest blob.
type ManifestPayload struct {
	Bytes []byte
}

// MarshalBinary encodes the payload to a slice of bytes.
func (p ManifestPayload) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), p.Bytes...), nil
}

// UnmarshalBinary decodes the payload from a slice of bytes.
func (p *ManifestPayload) UnmarshalBinary(data []byte) error {
	p.Bytes = append([]byte(nil), data...)
	return nil
}

// FirmwarePayload has no fields. It is only ever produced locally on the
// border-router side (via the CoAP resource, out of scope here) and
// triggers a fresh START re-emission; it never appears on the wire.
type FirmwarePayload struct{}

func (FirmwarePayload) MarshalBinary() ([]byte, error)  { return nil, nil }
func (*FirmwarePayload) UnmarshalBinary([]byte) error { return nil }
