// Package session coordinates one point-to-point transfer: it owns the peer
// handle, the outgoing send cursor and the reassembly buffer, and reacts to
// link lifecycle events. A Session is driven by a single goroutine (see Loop).
package session

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/1ureka/eomlink/internal/frame"
	"github.com/1ureka/eomlink/internal/link"
	"github.com/1ureka/eomlink/internal/util"
)

// ErrNoPeerConnected is returned by BeginSend when no remote is subscribed.
var ErrNoPeerConnected = errors.New("no peer connected")

// State is the session's position in its lifecycle.
type State int

const (
	Idle       State = iota // no peer subscribed
	Subscribed              // peer present, nothing in flight
	Sending                 // a send cursor is active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribed:
		return "subscribed"
	case Sending:
		return "sending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options tunes a Session. The zero value is usable.
type Options struct {
	MaxChunk   int    // reassembler per-chunk bound, 0 = frame.DefaultMaxChunk
	MaxMessage int    // reassembler message bound, 0 = frame.DefaultMaxMessage
	Greeting   []byte // sent automatically to every new subscriber when non-nil
}

// Session holds the complete transfer state for one link.
// It is not safe for concurrent use: only the owning goroutine calls its methods.
type Session struct {
	tr      link.Transport
	handler Handler
	opts    Options

	state  State
	peer   link.Peer
	cursor *frame.Cursor
	reasm  *frame.Reassembler
}

// New creates an idle session sending through tr and reporting to h.
// A nil h discards all notifications.
func New(tr link.Transport, h Handler, opts Options) *Session {
	if h == nil {
		h = HandlerFuncs{}
	}
	return &Session{
		tr:      tr,
		handler: h,
		opts:    opts,
		reasm:   frame.NewReassembler(opts.MaxChunk, opts.MaxMessage),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Peer returns the subscribed remote, or nil when idle.
func (s *Session) Peer() link.Peer { return s.peer }

// Progress returns the send cursor's position. ok is false when nothing is in flight.
func (s *Session) Progress() (offset, total int, eomPending, ok bool) {
	if s.cursor == nil {
		return 0, 0, false, false
	}
	return s.cursor.Offset, len(s.cursor.Message), s.cursor.EOMPending, true
}

// log tags lines with the subscribed peer, or logs untagged when idle.
func (s *Session) log() util.PeerLog {
	if s.peer == nil {
		return util.ForPeer("")
	}
	return util.ForPeer(s.peer.ID())
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Subscribe records peer as the single active remote. A different peer
// replaces the current one and abandons whatever was in flight.
func (s *Session) Subscribe(peer link.Peer) {
	if peer == nil {
		util.LogWarning("subscribe without a peer handle, ignoring")
		return
	}

	if s.peer != nil {
		if s.peer.ID() == peer.ID() {
			util.ForPeer(peer.ID()).Warning("already subscribed, ignoring")
			return
		}
		util.ForPeer(peer.ID()).Warning("replaces subscribed peer %s", s.peer.ID())
		s.reset()
	}

	s.peer = peer
	s.state = Subscribed
	s.log().Info("subscribed")

	if s.opts.Greeting != nil {
		// Cannot fail: the peer was just set.
		_ = s.BeginSend(s.opts.Greeting)
	}
}

// Unsubscribe drops the peer and any in-flight transfer.
func (s *Session) Unsubscribe() { s.drop("unsubscribed") }

// Disconnect drops the peer and any in-flight transfer.
func (s *Session) Disconnect() { s.drop("disconnected") }

func (s *Session) drop(reason string) {
	if s.peer == nil {
		util.LogDebug("%s while idle", reason)
		s.reset()
		return
	}

	if s.cursor != nil {
		s.log().Warning("%s with %d bytes unsent, transfer abandoned", reason, s.cursor.Remaining())
	} else {
		s.log().Info("%s", reason)
	}
	s.reset()
}

// reset returns the session to Idle, discarding every piece of per-peer state.
func (s *Session) reset() {
	s.state = Idle
	s.peer = nil
	s.cursor = nil
	s.reasm.Reset()
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// BeginSend starts transferring msg to the subscribed peer and pushes as much
// as the link accepts right away. A transfer already in flight is abandoned;
// messages are never queued.
func (s *Session) BeginSend(msg []byte) error {
	if s.peer == nil {
		return ErrNoPeerConnected
	}

	if s.cursor != nil {
		s.log().Warning("new message overrides in-flight transfer (%d bytes unsent)", s.cursor.Remaining())
	}

	s.cursor = frame.NewCursor(bytes.Clone(msg))
	s.state = Sending
	s.log().Debug("sending %d bytes", len(msg))

	s.pump()
	return nil
}

// TransportReady resumes a transfer that stalled on a full link buffer.
func (s *Session) TransportReady() {
	if s.state != Sending {
		util.LogWarning("link ready while %s, ignoring", s.state)
		return
	}
	s.pump()
}

func (s *Session) pump() {
	res, err := frame.Pump(s.cursor, s.tr, s.peer)
	if err != nil {
		s.log().Error("transfer aborted: %v", err)
		s.reset()
		s.handler.OnSessionError(err)
		return
	}

	switch res {
	case frame.PumpComplete:
		s.log().Debug("transfer complete (%d bytes)", len(s.cursor.Message))
		s.cursor = nil
		s.state = Subscribed
		util.Stats.AddMessageSent()
		s.handler.OnTransferComplete()

	case frame.PumpBlocked:
		s.log().Debug("link buffer full, waiting for resume")
	}
}

// ---------------------------------------------------------------------------
// Receiving
// ---------------------------------------------------------------------------

// ChunkReceived feeds one inbound chunk to the reassembler and delivers the
// message once its EOM marker arrives.
func (s *Session) ChunkReceived(chunk []byte) {
	if s.peer == nil {
		util.LogWarning("received %d bytes with no peer subscribed, dropping", len(chunk))
		return
	}

	msg, complete, err := s.reasm.Feed(chunk)
	if err != nil {
		s.log().Warning("%v", err)
		s.handler.OnSessionError(err)
		return
	}

	if complete {
		s.log().Debug("received message (%d bytes)", len(msg))
		util.Stats.AddMessageRecv()
		s.handler.OnMessageReceived(msg)
	}
}
