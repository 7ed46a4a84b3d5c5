// Package engine implements the top-level OTA dispatcher and the two
// role-specific behaviors (router, node) described in spec.md §4.5 and
// §4.6. An Engine is an owned value, not a global: every piece of state
// the source kept in a single process-wide ota_parameters struct lives
// on this value instead, so tests can run many Engines concurrently
// against independent mock collaborators (spec.md §9).
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/hasher"
	"github.com/sixlowan/otafw/store"
	"github.com/sixlowan/otafw/timer"
)

// Timer defaults (spec.md §6).
const (
	MulticastIntervalSeconds              = 60
	MissingFragmentWaittimeHours          = 24
	MissingFragmentFallbackTimeoutSeconds = 1800
	MissingFragmentsRequestingTimeoutStart = 30
	FragmentsRequestServiceTimeoutStart    = 5
	TimerRandomWindowSeconds               = 60
	NotificationTimerDelaySeconds          = 2
	FragmentsRequestServiceFollowupOffset  = 30 // added to MulticastInterval for subsequent serves
	ChecksumCalculatingIntervalMS          = 10
)

// Config configures a new Engine.
type Config struct {
	Device        ota.DeviceType
	Store         store.Store
	Collaborators Collaborators
	Log           *logrus.Logger
}

// serveScratch is the "Serve-request scratch" from spec.md §3: lives
// only while a serve loop is armed.
type serveScratch struct {
	segmentID uint16
	want      [ota.FragmentsReqBitmaskLength]byte
}

// Engine is the owned state machine value for one device. The zero
// value is not usable; construct with New.
type Engine struct {
	device ota.DeviceType
	store  store.Store
	collab Collaborators
	timers *timer.Registry
	log    *logrus.Entry

	session  *ota.SessionParameters
	pipeline *hasher.Pipeline

	serving bool
	serve   serveScratch

	// router-only delivery state
	delivering     bool
	nextFragmentID uint16

	// activateReceived guards against re-arming the ACTIVATE timer on a
	// duplicate ACTIVATE command for the same session.
	activateReceived bool
	activateDelay    uint32
}

// New constructs an Engine for the given device role and collaborators.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	e := &Engine{
		device: cfg.Device,
		store:  cfg.Store,
		collab: cfg.Collaborators,
		log:    log.WithField("component", "ota-engine"),
	}
	if e.collab.Alloc == nil {
		e.collab.Alloc = DefaultAllocator{}
	}
	e.timers = timer.New(e.collab.Scheduler, e.collab.Rand)
	return e
}

// Reset clears all in-memory engine state without touching the durable
// store, mirroring the source's single-entrypoint ota_lib_reset. Unlike
// ABORT, Reset is a local housekeeping operation, not a protocol event;
// it exists for tests that reuse one Engine across scenarios.
func (e *Engine) Reset() {
	e.session = nil
	e.pipeline = nil
	e.serving = false
	e.serve = serveScratch{}
	e.delivering = false
	e.nextFragmentID = 0
	e.activateReceived = false
	e.activateDelay = 0
}

// Ready reports whether a new session may be started (the READY
// resource, spec.md §7): true iff no session exists.
func (e *Engine) Ready(ctx context.Context) (bool, error) {
	return e.store.Ready(ctx)
}

// Session returns the active session, or nil if none.
func (e *Engine) Session() *ota.SessionParameters {
	return e.session
}

// Status formats the STATUS resource string (spec.md §6):
// "<uuid-36-chars> [<recv>/<total>] <STATE_NAME>".
func (e *Engine) Status() string {
	if e.session == nil {
		var zero ota.SessionID
		return fmt.Sprintf("%s [0/0] %s", zero, ota.StateIdle)
	}
	total := e.session.FragmentCount()
	missing := e.session.MissingTotal()
	recv := total - missing
	return fmt.Sprintf("%s [%d/%d] %s", e.session.SessionID, recv, total, e.session.State)
}

// persist snapshots the current session into the durable store.
func (e *Engine) persist(ctx context.Context) error {
	if e.session == nil {
		return nil
	}
	return e.store.Store(ctx, store.FromParameters(e.session))
}

// notifyError reports err on the ERROR resource and logs it; it never
// returns an error itself (spec.md §7 "errors are local").
func (e *Engine) notifyError(code ota.Code, context string, err error) {
	e.log.WithError(err).WithField("code", code.String()).Warn(context)
	if e.collab.Notifier != nil {
		e.collab.Notifier.UpdateResource(ResourceError, []byte{byte(code)})
	}
}

func (e *Engine) updateStatus() {
	if e.collab.Notifier != nil {
		e.collab.Notifier.UpdateResource(ResourceStatus, []byte(e.Status()))
	}
}
