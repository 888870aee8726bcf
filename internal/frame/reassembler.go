package frame

import (
	"fmt"

	"github.com/1ureka/eomlink/internal/util"
)

// Default reassembly bounds.
const (
	DefaultMaxChunk   = 64 * 1024       // largest non-EOM chunk accepted
	DefaultMaxMessage = 4 * 1024 * 1024 // largest reassembled message
)

// Reassembler joins inbound chunks until the EOM marker arrives.
// It is goroutine-local (used by a single session loop) and needs no locking.
type Reassembler struct {
	maxChunk   int
	maxMessage int
	buf        []byte
}

// NewReassembler creates a reassembler with the given bounds. Non-positive
// values fall back to DefaultMaxChunk and DefaultMaxMessage.
func NewReassembler(maxChunk, maxMessage int) *Reassembler {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	if maxMessage <= 0 {
		maxMessage = DefaultMaxMessage
	}
	return &Reassembler{maxChunk: maxChunk, maxMessage: maxMessage}
}

// Feed processes one inbound chunk. When chunk is the EOM marker it returns
// the completed message (possibly empty) with complete set to true and
// clears the buffer. Otherwise the chunk is appended and nothing is emitted.
//
// A chunk or accumulated message that exceeds the configured bounds resets
// the buffer and yields ErrMalformedReassembly.
func (r *Reassembler) Feed(chunk []byte) (msg []byte, complete bool, err error) {
	if IsEOM(chunk) {
		msg = r.buf
		if msg == nil {
			msg = []byte{}
		}
		r.buf = nil
		return msg, true, nil
	}

	if len(chunk) > r.maxChunk {
		dropped := len(r.buf)
		r.Reset()
		return nil, false, fmt.Errorf("%w: chunk of %d bytes exceeds limit %d (dropped %d buffered bytes)",
			ErrMalformedReassembly, len(chunk), r.maxChunk, dropped)
	}

	if len(r.buf)+len(chunk) > r.maxMessage {
		dropped := len(r.buf)
		r.Reset()
		return nil, false, fmt.Errorf("%w: message exceeds limit %d (dropped %d buffered bytes)",
			ErrMalformedReassembly, r.maxMessage, dropped)
	}

	r.buf = append(r.buf, chunk...)
	util.LogDebug("buffered %d bytes (%d total)", len(chunk), len(r.buf))
	return nil, false, nil
}

// Buffered returns the number of bytes received since the last completed message.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Reset discards any partially received message.
func (r *Reassembler) Reset() {
	r.buf = nil
}
