package main

import (
	"context"
	"crypto/sha256"
	"math/rand"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/engine"
	"github.com/sixlowan/otafw/store"
)

// simulation is one running instance: a bus, a router peer, and its
// nodes, plus the firmware image the router is distributing and its
// checksum.
type simulation struct {
	bus      *bus
	router   *peer
	nodes    []*peer
	image    []byte
	checksum [ota.WholeFWChecksumLength]byte
	session  ota.SessionID

	// done reports a node's name each time its session reaches a
	// terminal state (PROCESS_COMPLETED or CHECKSUM_FAILED).
	done chan string
}

// newSimulation wires up a bus, a router peer, and cfg.Nodes worth of
// node peers, each with its own memStorage/logNotifier/busScheduler, and
// generates a pseudo-random firmware image of cfg.TotalByteCount bytes.
func newSimulation(cfg *SimConfig) *simulation {
	b := newBus()
	sessionID := ota.NewSessionID(cfg.SessionID)

	image := make([]byte, cfg.TotalByteCount)
	rand.Read(image)
	checksum := sha256.Sum256(image)

	sim := &simulation{
		bus:      b,
		image:    image,
		checksum: checksum,
		session:  sessionID,
		done:     make(chan string, len(cfg.Nodes)),
	}

	routerStorage := newMemStorage()
	routerStorage.seed(sessionID, image)
	sim.router = buildPeer(b, "router", "", ota.DeviceTypeBorderRouter, routerStorage, nil, nil)

	for _, n := range cfg.Nodes {
		drop := dropSetFor(cfg.DropFragments[n.Name])
		p := buildPeer(b, n.Name, n.Parent, ota.DeviceTypeNode, newMemStorage(), sim.done, drop)
		sim.nodes = append(sim.nodes, p)
	}

	return sim
}

// dropSetFor turns a config-file list of fragment ids into the set form
// bus.broadcast checks against. A nil/empty list yields a nil map, which
// peer.dropFragments[id] reads as "never drop" for free.
func dropSetFor(ids []int) map[uint16]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uint16]bool, len(ids))
	for _, id := range ids {
		set[uint16(id)] = true
	}
	return set
}

// buildPeer constructs one simulated device's Engine, closing over the
// peer pointer so its busScheduler can dispatch HandleTimerExpiry back
// onto itself once p.engine is assigned below.
func buildPeer(b *bus, name, parent string, device ota.DeviceType, storage engine.Storage, done chan<- string, drop map[uint16]bool) *peer {
	p := b.register(name, parent, drop)

	sched := newBusScheduler(b, func() *engine.Engine { return p.engine })
	p.engine = engine.New(engine.Config{
		Device: device,
		Store:  store.NewMemoryStore(),
		Collaborators: engine.Collaborators{
			Transport: &busTransport{b: b, self: name, parent: parent},
			Storage:   storage,
			Notifier:  newLogNotifier(name, done),
			Scheduler: sched,
			Rand:      rand.Uint32,
		},
	})
	return p
}

// trigger kicks off distribution: the router creates its own session for
// s.session and multicasts START, exactly as TriggerFirmware documents
// (engine/router.go). It runs on the bus's dispatch goroutine via
// bus.sync, since the multicast it sends fans out into other peers'
// HandleCommand synchronously and every engine must only ever be touched
// from that one goroutine.
func (s *simulation) trigger(fragmentByteCount uint16) error {
	var err error
	s.bus.sync(func() {
		err = s.router.engine.TriggerFirmware(context.Background(), s.session, uint32(len(s.image)), fragmentByteCount, s.checksum, "")
	})
	return err
}

// stop shuts down the bus's dispatch goroutine.
func (s *simulation) stop() {
	s.bus.stop()
}
