// Package store implements durable session persistence and the registry
// of active sessions that enforces the single-session invariant from
// spec.md §3 ("Exactly zero or one session exists. Creating a second
// returns failure.").
package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sixlowan/otafw"
)

// ErrSessionExists is returned by StoreNew when a session is already
// active.
var ErrSessionExists = errors.New("store: a session is already active")

// ErrNoSession is returned by Load when no session exists.
var ErrNoSession = errors.New("store: no active session")

// Record is the serializable form of ota.SessionParameters, persisted
// field-by-field as spec.md §6 requires.
type Record struct {
	SessionID           ota.SessionID
	DeviceType           ota.DeviceType
	FWTotalByteCount     uint32
	FWFragmentByteCount  uint16
	WholeFWChecksum      [ota.WholeFWChecksumLength]byte
	PullURL              string
	State                ota.State
	Bitmask              []byte
}

// FromParameters snapshots live session state into a Record for
// persistence.
func FromParameters(s *ota.SessionParameters) Record {
	return Record{
		SessionID:           s.SessionID,
		DeviceType:          s.DeviceType,
		FWTotalByteCount:    s.FWTotalByteCount,
		FWFragmentByteCount: s.FWFragmentByteCount,
		WholeFWChecksum:     s.WholeFWChecksum,
		PullURL:             s.PullURL,
		State:               s.State,
		Bitmask:             append([]byte(nil), s.BitmaskBytes()...),
	}
}

// ToParameters rebuilds live session state from a persisted Record.
func (r Record) ToParameters() *ota.SessionParameters {
	s := &ota.SessionParameters{
		SessionID:           r.SessionID,
		DeviceType:          r.DeviceType,
		FWTotalByteCount:    r.FWTotalByteCount,
		FWFragmentByteCount: r.FWFragmentByteCount,
		WholeFWChecksum:     r.WholeFWChecksum,
		PullURL:             r.PullURL,
		State:               r.State,
	}
	s.LoadTracker(r.Bitmask)
	return s
}

// Store is the durable session persistence collaborator: store_session
// / load_session plus the store_new_process / remove_process registry
// from spec.md §4.6. A single implementation owns both concerns because
// on every backend considered (in-memory, redis) they share one key.
type Store interface {
	// StoreNew registers id as the active session, persists rec, and
	// fails with ErrSessionExists if a session is already active for a
	// different id. Re-storing the same id (e.g. after a field update)
	// is allowed.
	StoreNew(ctx context.Context, rec Record) error

	// Store persists rec for the already-active session id.
	Store(ctx context.Context, rec Record) error

	// Load returns the active session, or ErrNoSession if none exists.
	Load(ctx context.Context) (Record, error)

	// Remove deletes the active session row if its id matches id. This
	// is the post-ABORT session_delete step (spec.md §5 Cancellation);
	// ABORT itself only changes state, it does not call Remove.
	Remove(ctx context.Context, id ota.SessionID) error

	// Ready reports whether a new session may be started (the READY
	// resource, spec.md §7).
	Ready(ctx context.Context) (bool, error)
}
