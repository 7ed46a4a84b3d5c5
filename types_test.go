package ota

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSessionID(t *testing.T) {
	Convey("Given a hyphenated UUID string", t, func() {
		s := "11223344-5566-7788-99aa-bbccddeeff00"

		Convey("Then NewSessionID parses it and String round-trips", func() {
			id := NewSessionID(s)
			So(id.IsZero(), ShouldBeFalse)
			So(id.String(), ShouldEqual, s)
		})
	})

	Convey("Given a bare hex string with no hyphens", t, func() {
		id := NewSessionID("112233445566778899aabbccddeeff00")

		Convey("Then it parses to the same value as the hyphenated form", func() {
			hyphenated := NewSessionID("11223344-5566-7788-99aa-bbccddeeff00")
			So(id, ShouldResemble, hyphenated)
		})
	})

	Convey("Given a malformed session id string", t, func() {
		id := NewSessionID("not-a-valid-uuid")

		Convey("Then NewSessionID returns the zero value", func() {
			So(id.IsZero(), ShouldBeTrue)
		})
	})

	Convey("Given a SessionID", t, func() {
		var id SessionID
		copy(id[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})

		Convey("Then MarshalBinary/UnmarshalBinary round-trip", func() {
			b, err := id.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldHaveLength, 16)

			var out SessionID
			So(out.UnmarshalBinary(b), ShouldBeNil)
			So(out, ShouldResemble, id)
		})

		Convey("Then UnmarshalBinary rejects a wrong-length slice", func() {
			var out SessionID
			err := out.UnmarshalBinary([]byte{1, 2, 3})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDeviceTypeString(t *testing.T) {
	Convey("Given the known device types", t, func() {
		So(DeviceTypeBorderRouter.String(), ShouldEqual, "BORDER_ROUTER")
		So(DeviceTypeNode.String(), ShouldEqual, "NODE")
	})

	Convey("Given an unknown device type value", t, func() {
		So(DeviceType(0xff).String(), ShouldEqual, "UNKNOWN")
	})
}

func TestStateString(t *testing.T) {
	Convey("Given every defined state", t, func() {
		cases := map[State]string{
			StateIdle:                       "IDLE",
			StateStarted:                    "STARTED",
			StateManifestReceived:           "MANIFEST RECEIVED",
			StateMissingFragmentsRequesting: "MISSING FRAGMENTS REQUESTING",
			StateChecksumCalculating:        "CHECKSUM CALCULATING",
			StateChecksumFailed:             "CHECKSUM FAILED",
			StateProcessCompleted:           "FIRMWARE DOWNLOADED",
			StateUpdateFW:                   "ACTIVATE FIRMWARE",
			StateAborted:                    "ABORTED",
		}

		for state, want := range cases {
			So(state.String(), ShouldEqual, want)
		}
	})

	Convey("Given an out-of-range state value", t, func() {
		So(StateInvalid.String(), ShouldEqual, "INVALID")
		So(State(0xff).String(), ShouldEqual, "INVALID")
	})
}

func TestFragmentCount(t *testing.T) {
	Convey("Given an exact multiple of the fragment size", t, func() {
		So(FragmentCount(2048, 1024), ShouldEqual, uint16(2))
	})

	Convey("Given a total with a partial final fragment", t, func() {
		So(FragmentCount(2049, 1024), ShouldEqual, uint16(3))
	})

	Convey("Given a zero fragment size", t, func() {
		So(FragmentCount(2048, 0), ShouldEqual, uint16(0))
	})
}

func TestSegmentCount(t *testing.T) {
	Convey("Given a fragment count that divides evenly into segments", t, func() {
		So(SegmentCount(256), ShouldEqual, uint16(2))
	})

	Convey("Given a fragment count with a partial final segment", t, func() {
		So(SegmentCount(129), ShouldEqual, uint16(2))
		So(SegmentCount(1), ShouldEqual, uint16(1))
	})
}

func TestBitmaskLength(t *testing.T) {
	Convey("Given a segment count", t, func() {
		So(BitmaskLength(1), ShouldEqual, FragmentsReqBitmaskLength)
		So(BitmaskLength(3), ShouldEqual, 3*FragmentsReqBitmaskLength)
	})
}
