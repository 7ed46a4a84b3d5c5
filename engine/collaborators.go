package engine

import (
	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/timer"
)

// Transport is the network-transport collaborator (spec.md §4.6
// socket_send / get_parent_addr). UDP send/recv, address resolution,
// and MPL multicast setup are all out of scope for this module; this
// interface is the seam.
type Transport interface {
	// SendMulticast sends on the site-scope MPL multicast address used
	// for the router's initial push and for command relay (START,
	// FRAGMENT, END_FRAGMENTS, ABORT, ACTIVATE, MANIFEST).
	SendMulticast(data []byte) error

	// SendLinkLocal sends on the link-local multicast address used for
	// the node-to-node recovery protocol (FRAGMENTS_REQUEST, served
	// FRAGMENTs, and a node's END_FRAGMENTS re-announce).
	SendLinkLocal(data []byte) error

	// SendUnicast sends to a single resolved address, used for the
	// upstream-to-parent REQUEST path when the mesh topology prefers
	// unicast over link-local multicast.
	SendUnicast(addr string, data []byte) error

	// ParentAddr resolves the mesh parent address (get_parent_addr),
	// returning ok=false if no parent is currently known.
	ParentAddr() (addr string, ok bool)
}

// Storage is the firmware-bytes collaborator (spec.md §4.6 write_fw /
// read_fw). Persistent storage of firmware bytes is out of scope; only
// this interface is consumed.
type Storage interface {
	// WriteFW writes data at offset for sessionID, returning the number
	// of bytes actually written. A short write (written < len(data)) is
	// not an error value but a signal: the caller must not mark the
	// fragment received.
	WriteFW(sessionID ota.SessionID, offset uint32, data []byte) (written uint32, err error)

	// ReadFW reads up to len(out) bytes at offset for sessionID into
	// out, returning the number of bytes actually read.
	ReadFW(sessionID ota.SessionID, offset uint32, out []byte) (read uint32, err error)
}

// Resource names for Notifier.UpdateResource (spec.md §4.6, §6, §7).
const (
	ResourceStatus              = "STATUS"
	ResourceReady               = "READY"
	ResourceSessionID           = "SESSION_ID"
	ResourceError               = "ERROR"
	ResourceEstimatedResendTime = "ESTIMATED_RESEND_TIME"
)

// Notifier surfaces engine lifecycle events to the application and to
// the (out of scope) cloud resource binding.
type Notifier interface {
	// UpdateResource surfaces a named, formatted value to the cloud
	// resource binding.
	UpdateResource(name string, value []byte)

	// StartReceived fires once per accepted START.
	StartReceived(session *ota.SessionParameters)

	// ProcessFinished fires once the session reaches a terminal state
	// (PROCESS_COMPLETED or CHECKSUM_FAILED).
	ProcessFinished(sessionID ota.SessionID)

	// ManifestReceived fires on an accepted MANIFEST command.
	ManifestReceived(data []byte)

	// FirmwareReady fires once, shortly after PROCESS_COMPLETED, on
	// either role (a border router reaches PROCESS_COMPLETED through
	// FirmwarePulled).
	FirmwareReady()

	// ActivateReceived fires once, after the notification jitter window,
	// acknowledging an accepted ACTIVATE and carrying the delay the
	// application should wait before rebooting into the new image.
	ActivateReceived(sessionID ota.SessionID, delaySeconds uint32)
}

// Allocator is the memory collaborator (spec.md §4.6 malloc/free). New
// substitutes DefaultAllocator when none is given. The Engine keeps it
// but does not call it: the hasher pipeline and fragment building
// allocate their buffers with make, so an allocation failure cannot be
// injected through this seam.
type Allocator interface {
	Alloc(n int) ([]byte, bool)
}

// DefaultAllocator always succeeds.
type DefaultAllocator struct{}

// Alloc implements Allocator.
func (DefaultAllocator) Alloc(n int) ([]byte, bool) {
	return make([]byte, n), true
}

// Collaborators bundles every external dependency the Engine consumes,
// mirroring spec.md §9's guidance to replace the source's function-
// pointer table with trait objects rather than reintroducing globals.
type Collaborators struct {
	Transport Transport
	Storage   Storage
	Notifier  Notifier
	Scheduler timer.Scheduler
	Rand      timer.Rand32
	Alloc     Allocator
}
