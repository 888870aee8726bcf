package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/eomlink/internal/link"
	"github.com/1ureka/eomlink/internal/util"
)

// MaxChunkSize returns the configured chunk size, capped by the gap between
// the water marks and by the maximum message size negotiated for the SCTP
// association once it is known.
func (t *Transport) MaxChunkSize(peer link.Peer) int {
	size := min(int(t.chunkSize.Load()), int(t.highWaterMark-t.lowWaterMark))
	if limit := int(t.pc.SCTP().GetCapabilities().MaxMessageSize); limit > 0 && limit < size {
		size = limit
	}
	return size
}

// SetChunkSize changes the preferred chunk size, e.g. after the remote
// renegotiates its MTU. Sessions pick it up on their next send attempt.
func (t *Transport) SetChunkSize(n int) {
	t.chunkSize.Store(int64(n))
}

// TrySend queues chunk on the DataChannel unless that would push the
// buffered amount over the high-water mark. A refusal arms the resume
// signal, which fires once the buffer drains below the low-water mark.
func (t *Transport) TrySend(chunk []byte) bool {
	select {
	case <-t.ctx.Done():
		return false
	default:
	}

	if t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		util.LogWarning("send refused: DataChannel is %s", t.dc.ReadyState())
		return false
	}

	if t.dc.BufferedAmount()+uint64(len(chunk)) > t.highWaterMark {
		t.saturated.Store(true)
		// The buffer may have drained between the check and arming the flag,
		// in which case OnBufferedAmountLow already fired and won't again.
		if t.dc.BufferedAmount() <= t.lowWaterMark {
			go t.resume()
		}
		return false
	}

	if err := t.dc.Send(chunk); err != nil {
		util.LogError("failed to send chunk (%d bytes): %v", len(chunk), err)
		return false
	}

	util.Stats.AddSent(len(chunk))
	return true
}

// resume forwards a buffered-amount-low event as the ready signal, at most
// once per refused send.
func (t *Transport) resume() {
	if !t.saturated.CompareAndSwap(true, false) {
		return
	}

	t.mu.RLock()
	fn := t.onReady
	t.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

// ---------------------------------------------------------------------------
// Signal registration
// ---------------------------------------------------------------------------

// OnChunk registers a callback invoked for every inbound DataChannel message.
// Chunks received while no callback was registered are replayed to fn first,
// in arrival order.
func (t *Transport) OnChunk(fn func(chunk []byte)) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()

	t.onChunk = fn
	if fn == nil {
		return
	}
	backlog := t.backlog
	t.backlog = nil
	if len(backlog) > 0 {
		util.LogDebug("replaying %d chunks received before attach", len(backlog))
	}
	for _, chunk := range backlog {
		fn(chunk)
	}
}

// backlogLen returns the number of chunks waiting for a handler.
func (t *Transport) backlogLen() int {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	return len(t.backlog)
}

// OnReady registers the resume callback.
func (t *Transport) OnReady(fn func()) {
	t.mu.Lock()
	t.onReady = fn
	t.mu.Unlock()
}

// OnSubscribe registers the callback fired when the DataChannel opens. If it
// is already open, fn is invoked immediately with the current peer.
func (t *Transport) OnSubscribe(fn func(peer link.Peer)) {
	t.mu.Lock()
	t.onSubscribe = fn
	peer := t.peer
	t.mu.Unlock()

	if peer != nil && fn != nil {
		fn(peer)
	}
}

// OnUnsubscribe registers the callback fired when the DataChannel closes.
func (t *Transport) OnUnsubscribe(fn func()) {
	t.mu.Lock()
	t.onUnsubscribe = fn
	t.mu.Unlock()
}

// OnDisconnect registers the callback fired when the PeerConnection fails or closes.
func (t *Transport) OnDisconnect(fn func()) {
	t.mu.Lock()
	t.onDisconnect = fn
	t.mu.Unlock()
}
