package main

import (
	"github.com/sirupsen/logrus"

	"github.com/sixlowan/otafw"
)

// logNotifier implements engine.Notifier by logging every lifecycle
// event with logrus, tagged with the simulated peer's name. When done is
// non-nil, it also reports the peer's name on it once a session reaches
// a terminal state, so a driver loop can wait for the whole simulation
// to settle without polling engine state from another goroutine.
type logNotifier struct {
	name string
	log  *logrus.Entry
	done chan<- string
}

func newLogNotifier(name string, done chan<- string) *logNotifier {
	return &logNotifier{name: name, log: logrus.WithField("peer", name), done: done}
}

func (n *logNotifier) UpdateResource(name string, value []byte) {
	n.log.WithField("resource", name).Infof("%s = %q", name, value)
}

func (n *logNotifier) StartReceived(session *ota.SessionParameters) {
	n.log.WithField("session", session.SessionID).WithField("fragments", session.FragmentCount()).
		Info("start received")
}

func (n *logNotifier) ProcessFinished(sessionID ota.SessionID) {
	n.log.WithField("session", sessionID).Info("process finished")
	if n.done != nil {
		n.done <- n.name
	}
}

func (n *logNotifier) ManifestReceived(data []byte) {
	n.log.WithField("bytes", len(data)).Info("manifest received")
}

func (n *logNotifier) FirmwareReady() {
	n.log.Info("firmware ready")
}

func (n *logNotifier) ActivateReceived(sessionID ota.SessionID, delaySeconds uint32) {
	n.log.WithField("session", sessionID).WithField("delay_seconds", delaySeconds).
		Info("activate received")
}
