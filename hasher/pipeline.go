// Package hasher implements the incremental whole-image SHA-256
// verification pipeline (spec.md §4.3). It is modeled as a coroutine-like
// Step function driven by an external timer rather than a blocking loop,
// so that hashing a multi-megabyte image on a constrained node never
// blocks the event loop.
package hasher

import (
	"bytes"
	"crypto/sha256"
	"hash"

	"github.com/pkg/errors"
)

// SliceByteCount is the maximum number of bytes read and hashed per
// Step invocation (spec.md §6 CHECKSUM_CALCULATING_BYTE_COUNT).
const SliceByteCount = 512

// Reader reads firmware bytes from durable storage. Implementations may
// return fewer bytes than requested (e.g. a storage hiccup); Pipeline
// treats that as a non-fatal "no progress this round" condition.
type Reader func(offset uint32, length uint32, out []byte) (read uint32, err error)

// Result is returned by Step once the whole image has been consumed.
type Result struct {
	Digest [sha256.Size]byte
	Match  bool
}

// Pipeline holds the hashing-in-progress state for one session. The
// zero value is not usable; construct with New.
type Pipeline struct {
	total   uint32
	cursor  uint32
	read    Reader
	want    [sha256.Size]byte
	h       hash.Hash
	done    bool
}

// New allocates a Pipeline. want is the session's declared
// whole_fw_checksum; equivalent to entering CHECKSUM_CALCULATING and
// allocating the SHA-256 context.
func New(total uint32, want [sha256.Size]byte, read Reader) *Pipeline {
	return &Pipeline{
		total:  total,
		read:   read,
		want:   want,
		h:      sha256.New(),
		cursor: 0,
	}
}

// CurrentByteID returns the cursor, for persistence/inspection.
func (p *Pipeline) CurrentByteID() uint32 { return p.cursor }

// Done reports whether a terminal Result has already been produced.
func (p *Pipeline) Done() bool { return p.done }

// Step performs one bounded unit of work: read up to SliceByteCount
// bytes at the cursor, feed them to the hash, advance the cursor. It
// returns (nil, nil) when the caller should re-arm the CHECKSUM timer
// and call Step again; it returns a non-nil Result when hashing has
// finished (cursor reached total).
//
// A short read (storage hiccup) or an allocation failure in the caller
// is not fatal: Step treats "no bytes read, no error" as lack of
// progress and asks for a retry by returning (nil, nil) without
// advancing the cursor.
func (p *Pipeline) Step() (*Result, error) {
	if p.done {
		return nil, errors.New("hasher: Step called after completion")
	}

	remaining := p.total - p.cursor
	chunk := uint32(SliceByteCount)
	if remaining < chunk {
		chunk = remaining
	}

	if chunk > 0 {
		buf := make([]byte, chunk)
		n, err := p.read(p.cursor, chunk, buf)
		if err != nil {
			return nil, errors.Wrap(err, "hasher: read failed")
		}
		if n > 0 {
			p.h.Write(buf[:n])
			p.cursor += n
		}
		if n != chunk {
			// Short read: log-worthy at the caller, not fatal here.
			// Re-arm and retry from the new cursor.
			return nil, nil
		}
	}

	if p.cursor < p.total {
		return nil, nil
	}

	var digest [sha256.Size]byte
	copy(digest[:], p.h.Sum(nil))
	p.done = true

	return &Result{
		Digest: digest,
		Match:  bytes.Equal(digest[:], p.want[:]),
	}, nil
}
