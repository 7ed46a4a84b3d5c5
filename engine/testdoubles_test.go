package engine

import (
	"sync"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/store"
	"github.com/sixlowan/otafw/timer"
)

// fakeScheduler records RequestTimer/CancelTimer calls instead of driving a
// real clock. Tests advance time explicitly by calling HandleTimerExpiry
// themselves, mirroring timer.fakeScheduler.
type fakeScheduler struct {
	requested map[timer.ID]uint32
	canceled  []timer.ID
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{requested: make(map[timer.ID]uint32)}
}

func (s *fakeScheduler) RequestTimer(id timer.ID, delayMS uint32) {
	s.requested[id] = delayMS
}

func (s *fakeScheduler) CancelTimer(id timer.ID) {
	s.canceled = append(s.canceled, id)
	delete(s.requested, id)
}

// fakeTransport records every send instead of touching a real mesh radio.
type fakeTransport struct {
	mu         sync.Mutex
	multicast  [][]byte
	linkLocal  [][]byte
	unicast    []struct {
		addr string
		data []byte
	}
	parentAddr string
	hasParent  bool
}

func (t *fakeTransport) SendMulticast(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.multicast = append(t.multicast, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) SendLinkLocal(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.linkLocal = append(t.linkLocal, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) SendUnicast(addr string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unicast = append(t.unicast, struct {
		addr string
		data []byte
	}{addr, append([]byte(nil), data...)})
	return nil
}

func (t *fakeTransport) ParentAddr() (string, bool) {
	return t.parentAddr, t.hasParent
}

// fakeStorage is an in-memory engine.Storage, grounded on
// cmd/otasim's memStorage.
type fakeStorage struct {
	mu   sync.Mutex
	data map[ota.SessionID][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{data: make(map[ota.SessionID][]byte)}
}

func (s *fakeStorage) seed(sessionID ota.SessionID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append([]byte(nil), data...)
}

func (s *fakeStorage) WriteFW(sessionID ota.SessionID, offset uint32, data []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.data[sessionID]
	need := int(offset) + len(data)
	if len(buf) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	s.data[sessionID] = buf
	return uint32(len(data)), nil
}

func (s *fakeStorage) ReadFW(sessionID ota.SessionID, offset uint32, out []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.data[sessionID]
	if int(offset) >= len(buf) {
		return 0, nil
	}
	n := copy(out, buf[offset:])
	return uint32(n), nil
}

// fakeNotifier records every lifecycle callback instead of forwarding to a
// cloud resource binding.
type fakeNotifier struct {
	resources        map[string][]byte
	started          []*ota.SessionParameters
	finished         []ota.SessionID
	manifests        [][]byte
	firmwareReady    int
	activations      []struct {
		sessionID ota.SessionID
		delay     uint32
	}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{resources: make(map[string][]byte)}
}

func (n *fakeNotifier) UpdateResource(name string, value []byte) {
	n.resources[name] = append([]byte(nil), value...)
}

func (n *fakeNotifier) StartReceived(session *ota.SessionParameters) {
	n.started = append(n.started, session)
}

func (n *fakeNotifier) ProcessFinished(sessionID ota.SessionID) {
	n.finished = append(n.finished, sessionID)
}

func (n *fakeNotifier) ManifestReceived(data []byte) {
	n.manifests = append(n.manifests, append([]byte(nil), data...))
}

func (n *fakeNotifier) FirmwareReady() {
	n.firmwareReady++
}

func (n *fakeNotifier) ActivateReceived(sessionID ota.SessionID, delaySeconds uint32) {
	n.activations = append(n.activations, struct {
		sessionID ota.SessionID
		delay     uint32
	}{sessionID, delaySeconds})
}

// testRig bundles one Engine with its fake collaborators.
type testRig struct {
	engine    *Engine
	transport *fakeTransport
	storage   *fakeStorage
	notifier  *fakeNotifier
	sched     *fakeScheduler
}

func newTestRig(device ota.DeviceType) *testRig {
	transport := &fakeTransport{}
	storage := newFakeStorage()
	notifier := newFakeNotifier()
	sched := newFakeScheduler()

	e := New(Config{
		Device: device,
		Store:  store.NewMemoryStore(),
		Collaborators: Collaborators{
			Transport: transport,
			Storage:   storage,
			Notifier:  notifier,
			Scheduler: sched,
			Rand:      func() uint32 { return 0 },
		},
	})

	return &testRig{engine: e, transport: transport, storage: storage, notifier: notifier, sched: sched}
}
