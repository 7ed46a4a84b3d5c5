// Package timer implements the named one-shot timer registry with
// randomized backoff windows described in spec.md §4.4. The registry
// itself does not own a clock: it only computes expiry delays and
// delegates scheduling to a Scheduler collaborator, matching the
// request_timer/cancel_timer contract external to this module.
package timer

// ID names one of the registry's single-instance timer slots.
type ID uint8

// Timer ids (spec.md §4.4). At most one instance of each is ever
// pending.
const (
	Activate ID = iota
	EndFragments
	MissingFragmentsRequesting
	FragmentsDelivering
	FragmentsRequestService
	Fallback
	ChecksumCalculating
	MulticastMessageSent
	FirmwareReady
)

func (id ID) String() string {
	switch id {
	case Activate:
		return "ACTIVATE"
	case EndFragments:
		return "END_FRAGMENTS"
	case MissingFragmentsRequesting:
		return "MISSING_FRAGMENTS_REQUESTING"
	case FragmentsDelivering:
		return "FRAGMENTS_DELIVERING"
	case FragmentsRequestService:
		return "FRAGMENTS_REQUEST_SERVICE"
	case Fallback:
		return "FALLBACK"
	case ChecksumCalculating:
		return "CHECKSUM_CALCULATING"
	case MulticastMessageSent:
		return "MULTICAST_MESSAGE_SENT"
	case FirmwareReady:
		return "FIRMWARE_READY"
	default:
		return "UNKNOWN_TIMER"
	}
}

// Rand32 is the RNG collaborator used for jitter (spec.md §4.6 rand32).
type Rand32 func() uint32

// Scheduler is the timer-service collaborator: request_timer/cancel_timer
// from spec.md §4.6, operating in milliseconds.
type Scheduler interface {
	RequestTimer(id ID, delayMS uint32)
	CancelTimer(id ID)
}

// Registry starts and cancels the nine named timers on behalf of a
// Scheduler, applying the randomized-window jitter rule from spec.md
// §4.4: expiry = base*1000 + U{0, window*1000}ms, where U draws
// uniformly in 100ms buckets.
type Registry struct {
	sched Scheduler
	rand  Rand32
}

// New builds a Registry delegating to sched for actual scheduling and
// to rnd for jitter.
func New(sched Scheduler, rnd Rand32) *Registry {
	return &Registry{sched: sched, rand: rnd}
}

// Start cancels any pending instance of id, then schedules a new expiry
// at baseSeconds*1000 + jitter, where jitter is drawn from windowSeconds
// of 100ms buckets (0 if windowSeconds is 0).
func (r *Registry) Start(id ID, baseSeconds, windowSeconds uint32) {
	r.sched.CancelTimer(id)

	delayMS := baseSeconds * 1000
	if windowSeconds > 0 {
		buckets := windowSeconds * 10
		delayMS += 100 * (r.rand() % buckets)
	}

	r.sched.RequestTimer(id, delayMS)
}

// Cancel cancels any pending instance of id. Canceling an id with no
// pending instance is a no-op.
func (r *Registry) Cancel(id ID) {
	r.sched.CancelTimer(id)
}

// StartMS cancels any pending instance of id, then schedules it to
// expire in exactly delayMS, with no jitter and no whole-second
// granularity. Used by the hasher
// pipeline's 10ms re-arm, which is too fine-grained for the
// seconds-plus-jitter model Start implements.
func (r *Registry) StartMS(id ID, delayMS uint32) {
	r.sched.CancelTimer(id)
	r.sched.RequestTimer(id, delayMS)
}
