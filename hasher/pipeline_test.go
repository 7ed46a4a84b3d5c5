package hasher

import (
	"crypto/sha256"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// memReader implements Reader over an in-memory byte slice, optionally
// starving the first N calls of any progress to exercise Step's
// short-read retry path.
type memReader struct {
	data    []byte
	starve  int
	calls   int
}

func (r *memReader) read(offset, length uint32, out []byte) (uint32, error) {
	r.calls++
	if r.calls <= r.starve {
		return 0, nil
	}
	n := copy(out, r.data[offset:offset+length])
	return uint32(n), nil
}

func TestPipelineStep(t *testing.T) {
	Convey("Given a small image that fits in one Step", t, func() {
		data := make([]byte, 100)
		for i := range data {
			data[i] = byte(i)
		}
		want := sha256.Sum256(data)
		reader := &memReader{data: data}

		p := New(uint32(len(data)), want, reader.read)

		Convey("Then the first Step completes and reports a match", func() {
			result, err := p.Step()
			So(err, ShouldBeNil)
			So(result, ShouldNotBeNil)
			So(result.Match, ShouldBeTrue)
			So(result.Digest, ShouldEqual, want)
			So(p.Done(), ShouldBeTrue)
		})
	})

	Convey("Given an image spanning multiple Step calls", t, func() {
		data := make([]byte, SliceByteCount*2+100)
		for i := range data {
			data[i] = byte(i * 7)
		}
		want := sha256.Sum256(data)
		reader := &memReader{data: data}

		p := New(uint32(len(data)), want, reader.read)

		Convey("Then Step returns (nil, nil) until the final chunk", func() {
			r1, err := p.Step()
			So(err, ShouldBeNil)
			So(r1, ShouldBeNil)
			So(p.CurrentByteID(), ShouldEqual, uint32(SliceByteCount))

			r2, err := p.Step()
			So(err, ShouldBeNil)
			So(r2, ShouldBeNil)
			So(p.CurrentByteID(), ShouldEqual, uint32(SliceByteCount*2))

			r3, err := p.Step()
			So(err, ShouldBeNil)
			So(r3, ShouldNotBeNil)
			So(r3.Match, ShouldBeTrue)
			So(r3.Digest, ShouldEqual, want)
		})
	})

	Convey("Given a checksum that does not match the declared one", t, func() {
		data := make([]byte, 64)
		var wrong [sha256.Size]byte
		reader := &memReader{data: data}

		p := New(uint32(len(data)), wrong, reader.read)

		Convey("Then the final Step reports Match=false without an error", func() {
			result, err := p.Step()
			So(err, ShouldBeNil)
			So(result, ShouldNotBeNil)
			So(result.Match, ShouldBeFalse)
		})
	})

	Convey("Given a reader that starves the first call", t, func() {
		data := make([]byte, 64)
		want := sha256.Sum256(data)
		reader := &memReader{data: data, starve: 1}

		p := New(uint32(len(data)), want, reader.read)

		Convey("Then Step asks for a retry without advancing the cursor", func() {
			result, err := p.Step()
			So(err, ShouldBeNil)
			So(result, ShouldBeNil)
			So(p.CurrentByteID(), ShouldEqual, uint32(0))

			Convey("And the next Step makes progress and completes", func() {
				result, err := p.Step()
				So(err, ShouldBeNil)
				So(result, ShouldNotBeNil)
				So(result.Match, ShouldBeTrue)
			})
		})
	})

	Convey("Given a Pipeline that has already completed", t, func() {
		data := make([]byte, 8)
		want := sha256.Sum256(data)
		reader := &memReader{data: data}
		p := New(uint32(len(data)), want, reader.read)

		_, err := p.Step()
		So(err, ShouldBeNil)
		So(p.Done(), ShouldBeTrue)

		Convey("Then calling Step again returns an error", func() {
			_, err := p.Step()
			So(err, ShouldNotBeNil)
		})
	})
}
