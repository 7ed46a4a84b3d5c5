package main

import (
	"sync"

	"github.com/sixlowan/otafw"
)

// memStorage is an in-memory engine.Storage: firmware bytes for each
// session live in a plain byte slice, grown on first write. It exists
// only for the simulator; a real deployment's Storage collaborator would
// back onto flash.
type memStorage struct {
	mu   sync.Mutex
	data map[ota.SessionID][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[ota.SessionID][]byte)}
}

// seed preloads sessionID's bytes, used by the router side which already
// has the firmware image before announcing START.
func (m *memStorage) seed(sessionID ota.SessionID, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sessionID] = append([]byte(nil), data...)
}

// WriteFW implements engine.Storage.
func (m *memStorage) WriteFW(sessionID ota.SessionID, offset uint32, data []byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.data[sessionID]
	need := int(offset) + len(data)
	if len(buf) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	m.data[sessionID] = buf
	return uint32(len(data)), nil
}

// ReadFW implements engine.Storage.
func (m *memStorage) ReadFW(sessionID ota.SessionID, offset uint32, out []byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.data[sessionID]
	if int(offset) >= len(buf) {
		return 0, nil
	}
	n := copy(out, buf[offset:])
	return uint32(n), nil
}
