package ota

import (
	"github.com/sixlowan/otafw/bitmask"
)

// SessionParameters is the persisted unit described in spec.md §3. At
// most one exists at a time (enforced by package store, not here).
type SessionParameters struct {
	SessionID             SessionID
	DeviceType            DeviceType
	FWTotalByteCount      uint32
	FWFragmentByteCount   uint16
	WholeFWChecksum       [WholeFWChecksumLength]byte
	PullURL               string
	State                 State

	tracker *bitmask.Tracker
}

// NewSessionParameters builds a fresh session row and its bitmask
// tracker for a START announce (or a locally-initiated router push).
// FragmentByteCount defaults to DefaultFragmentByteCount when zero.
func NewSessionParameters(id SessionID, deviceType DeviceType, totalBytes uint32, fragmentByteCount uint16, checksum [WholeFWChecksumLength]byte) *SessionParameters {
	if fragmentByteCount == 0 {
		fragmentByteCount = DefaultFragmentByteCount
	}

	s := &SessionParameters{
		SessionID:           id,
		DeviceType:          deviceType,
		FWTotalByteCount:    totalBytes,
		FWFragmentByteCount: fragmentByteCount,
		WholeFWChecksum:     checksum,
		State:               StateStarted,
	}
	s.tracker = bitmask.New(s.FragmentCount())
	return s
}

// FragmentCount returns ceil(total / fragment_size).
func (s *SessionParameters) FragmentCount() uint16 {
	return FragmentCount(s.FWTotalByteCount, s.FWFragmentByteCount)
}

// SegmentCount returns ceil(fragment_count / SEGMENT_SIZE).
func (s *SessionParameters) SegmentCount() uint16 {
	return SegmentCount(s.FragmentCount())
}

// Tracker returns the bitmask tracker. If none has been set by
// NewSessionParameters or LoadTracker, it allocates a fresh one with
// every fragment missing.
func (s *SessionParameters) Tracker() *bitmask.Tracker {
	if s.tracker == nil {
		s.tracker = bitmask.New(s.FragmentCount())
	}
	return s.tracker
}

// LoadTracker reconstructs the tracker from a persisted bitmask byte
// slice, used when restoring a session after a restart.
func (s *SessionParameters) LoadTracker(bits []byte) {
	s.tracker = bitmask.Load(bits, s.FragmentCount())
}

// BitmaskBytes returns the raw bytes to persist alongside the session
// row.
func (s *SessionParameters) BitmaskBytes() []byte {
	return s.Tracker().Bytes()
}

// MissingTotal returns the number of not-yet-received fragments.
func (s *SessionParameters) MissingTotal() uint16 {
	return s.Tracker().MissingTotal()
}

// VerifyChecksum reports whether digest matches the declared
// whole_fw_checksum (spec.md invariant: "whole_fw_checksum matches
// SHA-256 ... iff the state can transition into PROCESS_COMPLETED").
func (s *SessionParameters) VerifyChecksum(digest [WholeFWChecksumLength]byte) bool {
	return s.WholeFWChecksum == digest
}
