package frame

import (
	"fmt"

	"github.com/1ureka/eomlink/internal/link"
	"github.com/1ureka/eomlink/internal/util"
)

// PumpResult describes how a call to Pump ended.
type PumpResult int

const (
	// PumpIdle means there was nothing left to send.
	PumpIdle PumpResult = iota
	// PumpBlocked means the transport refused a chunk; call Pump again once
	// the transport signals it is ready.
	PumpBlocked
	// PumpComplete means the EOM marker went out and the message is done.
	PumpComplete
)

func (r PumpResult) String() string {
	switch r {
	case PumpIdle:
		return "idle"
	case PumpBlocked:
		return "blocked"
	case PumpComplete:
		return "complete"
	default:
		return fmt.Sprintf("PumpResult(%d)", int(r))
	}
}

// Cursor tracks send progress of one outgoing message.
// It is owned by a single session and is not safe for concurrent use.
type Cursor struct {
	Message    []byte
	Offset     int
	EOMPending bool

	done bool
}

// NewCursor returns a cursor positioned at the start of msg.
func NewCursor(msg []byte) *Cursor {
	return &Cursor{Message: msg}
}

// Done reports whether the message and its EOM marker have both been sent.
func (c *Cursor) Done() bool {
	return c.done
}

// Remaining returns the number of message bytes not yet accepted by the transport.
func (c *Cursor) Remaining() int {
	return len(c.Message) - c.Offset
}

// Pump pushes as much of the cursor's message through tr as the transport
// accepts, sending the EOM marker right after the last data chunk. It never
// blocks: a refused send leaves the cursor where it was and returns
// PumpBlocked, and the caller retries on the transport's ready signal.
func Pump(c *Cursor, tr link.Transport, peer link.Peer) (PumpResult, error) {
	if c.EOMPending {
		return sendEOM(c, tr), nil
	}

	if c.done {
		return PumpIdle, nil
	}

	for {
		mtu := tr.MaxChunkSize(peer)
		if mtu <= 0 {
			return PumpIdle, fmt.Errorf("%w: transport reported chunk size %d", ErrInvalidMTU, mtu)
		}

		// Zero-length messages go straight to the marker.
		if c.Offset >= len(c.Message) {
			c.EOMPending = true
			return sendEOM(c, tr), nil
		}

		size := min(len(c.Message)-c.Offset, mtu)
		chunk := c.Message[c.Offset : c.Offset+size]

		if !tr.TrySend(chunk) {
			util.Stats.AddStall()
			return PumpBlocked, nil
		}

		util.LogDebug("sent %d bytes (offset %d/%d)", size, c.Offset+size, len(c.Message))
		c.Offset += size

		if c.Offset >= len(c.Message) {
			// Marked first so a refused EOM is retried alone on resume.
			c.EOMPending = true
			return sendEOM(c, tr), nil
		}
	}
}

// sendEOM attempts the end-of-message marker for a cursor whose data has
// already been sent in full.
func sendEOM(c *Cursor, tr link.Transport) PumpResult {
	if !tr.TrySend(EOM) {
		util.Stats.AddStall()
		return PumpBlocked
	}

	util.LogDebug("sent EOM")
	c.EOMPending = false
	c.done = true
	return PumpComplete
}
