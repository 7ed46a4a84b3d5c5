package ota

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewSessionParameters(t *testing.T) {
	Convey("Given a totalBytes/fragmentByteCount pair", t, func() {
		sid := NewSessionID("11223344-5566-7788-99aa-bbccddeeff00")
		var checksum [WholeFWChecksumLength]byte
		checksum[0] = 0xaa

		s := NewSessionParameters(sid, DeviceTypeNode, 4096, 1024, checksum)

		Convey("Then it starts in StateStarted with the right fragment/segment counts", func() {
			So(s.State, ShouldEqual, StateStarted)
			So(s.FragmentCount(), ShouldEqual, uint16(4))
			So(s.SegmentCount(), ShouldEqual, uint16(1))
			So(s.MissingTotal(), ShouldEqual, uint16(4))
		})

		Convey("Then VerifyChecksum matches only the declared digest", func() {
			So(s.VerifyChecksum(checksum), ShouldBeTrue)

			var other [WholeFWChecksumLength]byte
			other[0] = 0xbb
			So(s.VerifyChecksum(other), ShouldBeFalse)
		})
	})

	Convey("Given a zero fragmentByteCount", t, func() {
		sid := NewSessionID("11223344-5566-7788-99aa-bbccddeeff00")
		var checksum [WholeFWChecksumLength]byte

		s := NewSessionParameters(sid, DeviceTypeNode, 4096, 0, checksum)

		Convey("Then it defaults to DefaultFragmentByteCount", func() {
			So(s.FWFragmentByteCount, ShouldEqual, uint16(DefaultFragmentByteCount))
		})
	})
}

func TestSessionParametersTrackerAndBitmaskBytes(t *testing.T) {
	Convey("Given a fresh session", t, func() {
		sid := NewSessionID("11223344-5566-7788-99aa-bbccddeeff00")
		var checksum [WholeFWChecksumLength]byte
		s := NewSessionParameters(sid, DeviceTypeNode, 2048, 1024, checksum)

		Convey("Then marking a fragment received is reflected in BitmaskBytes", func() {
			s.Tracker().MarkReceived(1)
			So(s.MissingTotal(), ShouldEqual, uint16(1))
			So(s.BitmaskBytes(), ShouldNotBeNil)
		})

		Convey("When LoadTracker restores from persisted bytes", func() {
			s.Tracker().MarkReceived(1)
			persisted := s.BitmaskBytes()

			restored := NewSessionParameters(sid, DeviceTypeNode, 2048, 1024, checksum)
			restored.LoadTracker(persisted)

			Convey("Then the restored session reports the same reception state", func() {
				So(restored.MissingTotal(), ShouldEqual, s.MissingTotal())
			})
		})
	})
}
