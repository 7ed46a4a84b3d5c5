package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/engine"
	"github.com/sixlowan/otafw/timer"
)

// fragmentHeaderLength is cmd_id(1) + session_id(16), matching the wire
// framing in command.go. FragmentID immediately follows the header.
const fragmentHeaderLength = 1 + 16

// fragmentIDOf peeks a FRAGMENT command's id without a full decode, so the
// bus can apply drop_fragments without needing session context (fragment
// byte count) that full FragmentPayload decoding would require.
func fragmentIDOf(data []byte) (uint16, bool) {
	if len(data) < fragmentHeaderLength+2 || ota.CmdID(data[0]) != ota.CmdFragment {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[fragmentHeaderLength : fragmentHeaderLength+2]), true
}

// bus is the in-memory stand-in for the mesh transport: every peer's
// Transport collaborator routes through it instead of opening a real UDP
// socket. All engine activity — command dispatch and timer expiry alike —
// is serialized onto bus.work, since package engine is single-threaded
// per device (spec.md §5) and real timer callbacks otherwise arrive on
// their own goroutines.
type bus struct {
	mu    sync.Mutex
	peers map[string]*peer

	work chan func()
	done chan struct{}
}

// peer bundles one simulated device's engine with its bus-routed
// collaborators. dropFragments simulates lossy reception: fragment ids in
// this set are never delivered to this peer, forcing it through the
// FRAGMENTS_REQUEST recovery path.
type peer struct {
	name          string
	parent        string
	engine        *engine.Engine
	dropFragments map[uint16]bool
}

func newBus() *bus {
	b := &bus{
		peers: make(map[string]*peer),
		work:  make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *bus) loop() {
	for {
		select {
		case fn := <-b.work:
			fn()
		case <-b.done:
			return
		}
	}
}

func (b *bus) stop() {
	close(b.done)
}

// sync runs fn on the bus's serial dispatch goroutine and blocks until it
// has finished, so a caller on another goroutine (the CLI's main
// goroutine) can read engine state without racing the engine's own
// command and timer handlers.
func (b *bus) sync(fn func()) {
	done := make(chan struct{})
	b.work <- func() {
		fn()
		close(done)
	}
	<-done
}

// register adds a peer entry under name. The engine itself is attached
// afterward, once constructed (it needs this bus's transport and
// scheduler collaborators first).
func (b *bus) register(name, parent string, drop map[uint16]bool) *peer {
	p := &peer{name: name, parent: parent, dropFragments: drop}
	b.mu.Lock()
	b.peers[name] = p
	b.mu.Unlock()
	return p
}

// broadcast and unicast call HandleCommand synchronously on whichever
// goroutine invokes them, rather than re-enqueueing onto b.work: every
// caller of SendMulticast/SendLinkLocal/SendUnicast is itself already
// running inside an engine handler that was entered through bus.work (a
// timer expiry) or bus.sync (TriggerFirmware), so the dispatch goroutine
// is already confined to this one goroutine by the time these run.
func (b *bus) broadcast(from string, data []byte) {
	b.mu.Lock()
	targets := make([]*peer, 0, len(b.peers))
	for name, p := range b.peers {
		if name == from {
			continue
		}
		targets = append(targets, p)
	}
	b.mu.Unlock()

	id, isFragment := fragmentIDOf(data)

	for _, p := range targets {
		if isFragment && p.dropFragments[id] {
			logrus.WithField("peer", p.name).WithField("fragment_id", id).Debug("dropping fragment")
			continue
		}
		p.engine.HandleCommand(context.Background(), data)
	}
}

func (b *bus) unicast(addr string, data []byte) error {
	b.mu.Lock()
	p, ok := b.peers[addr]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("otasim: unknown peer address %q", addr)
	}
	p.engine.HandleCommand(context.Background(), data)
	return nil
}

// busTransport implements engine.Transport by routing every send through
// a shared bus, with `self` excluded from its own multicasts.
type busTransport struct {
	b      *bus
	self   string
	parent string
}

func (t *busTransport) SendMulticast(data []byte) error {
	t.b.broadcast(t.self, data)
	return nil
}

func (t *busTransport) SendLinkLocal(data []byte) error {
	t.b.broadcast(t.self, data)
	return nil
}

func (t *busTransport) SendUnicast(addr string, data []byte) error {
	return t.b.unicast(addr, data)
}

func (t *busTransport) ParentAddr() (string, bool) {
	return t.parent, t.parent != ""
}

// busScheduler implements timer.Scheduler on top of the real wall clock
// (time.AfterFunc), hopping expired timers back onto the bus's serial
// work queue so HandleTimerExpiry never races with HandleCommand.
type busScheduler struct {
	b      *bus
	eng    func() *engine.Engine
	mu     sync.Mutex
	timers map[timer.ID]*time.Timer
}

func newBusScheduler(b *bus, eng func() *engine.Engine) *busScheduler {
	return &busScheduler{b: b, eng: eng, timers: make(map[timer.ID]*time.Timer)}
}

func (s *busScheduler) RequestTimer(id timer.ID, delayMS uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(time.Duration(delayMS)*time.Millisecond, func() {
		s.b.work <- func() {
			s.eng().HandleTimerExpiry(context.Background(), id)
		}
	})
}

func (s *busScheduler) CancelTimer(id timer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}
