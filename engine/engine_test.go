package engine

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sixlowan/otafw"
	"github.com/sixlowan/otafw/store"
)

func TestNewDefaultsAllocator(t *testing.T) {
	Convey("Given a Config with no Allocator collaborator", t, func() {
		e := New(Config{Device: ota.DeviceTypeNode, Store: store.NewMemoryStore()})

		Convey("Then DefaultAllocator is substituted", func() {
			b, ok := e.collab.Alloc.Alloc(4)
			So(ok, ShouldBeTrue)
			So(len(b), ShouldEqual, 4)
		})
	})
}

func TestStatusFormatsIdleAndActiveSessions(t *testing.T) {
	Convey("Given a fresh engine with no session", t, func() {
		rig := newTestRig(ota.DeviceTypeNode)

		Convey("Then Status reports the zero session id and IDLE", func() {
			So(rig.engine.Status(), ShouldEqual, "00000000-0000-0000-0000-000000000000 [0/0] IDLE")
		})
	})

	Convey("Given an engine with a partially-received session", t, func() {
		rig, sid, image := newStartedSession(4096, 1024)
		sendAllFragments(rig, sid, image, 1024, map[uint16]bool{2: true, 4: true})

		Convey("Then Status reports the received/total fraction and state name", func() {
			So(rig.engine.Status(), ShouldEqual, sid.String()+" [2/4] STARTED")
		})
	})
}

func TestResetClearsInMemoryState(t *testing.T) {
	Convey("Given an engine with an active, partially-received session", t, func() {
		rig, sid, image := newStartedSession(4096, 1024)
		sendAllFragments(rig, sid, image, 1024, map[uint16]bool{2: true})

		Convey("When Reset is called", func() {
			rig.engine.Reset()

			Convey("Then every in-memory field returns to its zero state", func() {
				So(rig.engine.Session(), ShouldBeNil)
				So(rig.engine.serving, ShouldBeFalse)
				So(rig.engine.delivering, ShouldBeFalse)
				So(rig.engine.activateReceived, ShouldBeFalse)
				So(rig.engine.pipeline, ShouldBeNil)
			})
		})
	})
}

func TestReadyDelegatesToStore(t *testing.T) {
	Convey("Given a fresh engine backed by an empty store", t, func() {
		rig := newTestRig(ota.DeviceTypeNode)

		Convey("Then Ready reports true", func() {
			ready, err := rig.engine.Ready(testCtx)
			So(err, ShouldBeNil)
			So(ready, ShouldBeTrue)
		})
	})

	Convey("Given an engine with an active session", t, func() {
		rig, _, _ := newStartedSession(4096, 1024)

		Convey("Then Ready reports false", func() {
			ready, err := rig.engine.Ready(testCtx)
			So(err, ShouldBeNil)
			So(ready, ShouldBeFalse)
		})
	})
}
