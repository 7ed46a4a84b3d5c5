package ota

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFragmentCRC(t *testing.T) {
	Convey("Given an empty fragment", t, func() {
		Convey("Then FragmentCRC returns 0", func() {
			So(FragmentCRC(nil), ShouldEqual, uint16(0))
			So(FragmentCRC([]byte{}), ShouldEqual, uint16(0))
		})
	})

	Convey("Given a fragment payload", t, func() {
		data := []byte("six-lowan firmware fragment payload, 1024 bytes of it in reality")

		Convey("Then FragmentCRC is deterministic", func() {
			So(FragmentCRC(data), ShouldEqual, FragmentCRC(append([]byte(nil), data...)))
		})

		Convey("Then flipping any single bit changes the CRC", func() {
			want := FragmentCRC(data)
			for i := range data {
				for bit := uint(0); bit < 8; bit++ {
					flipped := append([]byte(nil), data...)
					flipped[i] ^= 1 << bit
					So(FragmentCRC(flipped), ShouldNotEqual, want)
				}
			}
		})
	})

	Convey("Given two different fragment payloads of the same length", t, func() {
		a := []byte{0x01, 0x02, 0x03, 0x04}
		b := []byte{0x01, 0x02, 0x03, 0x05}

		Convey("Then their CRCs differ", func() {
			So(FragmentCRC(a), ShouldNotEqual, FragmentCRC(b))
		})
	})
}
