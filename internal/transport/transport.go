// Package transport implements a link.Driver over a WebRTC DataChannel.
// The DataChannel stands in for a GATT characteristic: every chunk is one
// DataChannel message, a send is refused while too many bytes are buffered,
// and OnBufferedAmountLow plays the role of the "ready to update" callback.
package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/eomlink/internal/config"
	"github.com/1ureka/eomlink/internal/link"
	"github.com/1ureka/eomlink/internal/util"
)

// Compile-time interface check.
var _ link.Driver = (*Transport)(nil)

// maxBacklog bounds the chunks held for a handler that is not attached yet.
const maxBacklog = 4096

// Transport wraps a single PeerConnection + DataChannel pair, providing the
// signaling exchange used by package signaling and the non-blocking chunk
// primitives used by the transfer session.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	highWaterMark uint64
	lowWaterMark  uint64
	chunkSize     atomic.Int64
	saturated     atomic.Bool

	openSignal chan struct{}
	closeOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// recvMu orders inbound delivery: chunks that arrive before OnChunk is
	// registered wait in backlog and are replayed ahead of any later chunk.
	recvMu  sync.Mutex
	onChunk func([]byte)
	backlog [][]byte

	mu            sync.RWMutex
	pcState       webrtc.PeerConnectionState
	peer          *Peer
	onReady       func()
	onSubscribe   func(link.Peer)
	onUnsubscribe func()
	onDisconnect  func()
}

// NewTransport creates a Transport backed by a new PeerConnection and a
// pre-negotiated DataChannel. The caller performs signaling via the exposed
// methods (CreateOffer / CreateAnswer / …) and then attaches a session.
//
// The Transport is considered alive as long as the DataChannel is open and
// ctx has not been cancelled.
func NewTransport(ctx context.Context, cfg config.LinkConfig) (*Transport, error) {
	pc, err := newPeerConnection(cfg.STUNServers)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:            pc,
		dc:            dc,
		highWaterMark: uint64(cfg.HighWaterMark),
		lowWaterMark:  uint64(cfg.LowWaterMark),
		openSignal:    make(chan struct{}),
		ctx:           tCtx,
		cancel:        tCancel,
		pcState:       webrtc.PeerConnectionStateNew,
	}
	t.chunkSize.Store(int64(cfg.ChunkSize))

	// DC open → mint a peer handle and report the subscription.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() {
			peer := newPeer()
			t.mu.Lock()
			t.peer = peer
			fn := t.onSubscribe
			t.mu.Unlock()

			close(t.openSignal)
			util.ForPeer(peer.ID()).Debug("DataChannel open")
			if fn != nil {
				fn(peer)
			}
		})
	})

	// DC close → report the unsubscribe and cancel the transport context.
	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		t.mu.Lock()
		t.peer = nil
		fn := t.onUnsubscribe
		t.mu.Unlock()

		if fn != nil {
			fn()
		}
		tCancel()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		fn := t.onDisconnect
		t.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if fn != nil {
				fn()
			}
			tCancel()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.Stats.AddRecv(len(msg.Data))
		t.recvMu.Lock()
		defer t.recvMu.Unlock()

		if t.onChunk == nil {
			if len(t.backlog) >= maxBacklog {
				util.LogWarning("no chunk handler attached, dropping %d bytes", len(msg.Data))
				return
			}
			t.backlog = append(t.backlog, bytes.Clone(msg.Data))
			return
		}
		t.onChunk(msg.Data)
	})

	dc.SetBufferedAmountLowThreshold(t.lowWaterMark)
	dc.OnBufferedAmountLow(t.resume)

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open and
// the Transport is ready to send and receive.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (DataChannel closed, PeerConnection failed or parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = errors.Join(t.dc.Close(), t.pc.Close())
	})
	return err
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}
