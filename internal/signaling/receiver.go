package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/eomlink/internal/transport"
	"github.com/1ureka/eomlink/internal/util"
)

// ErrRenegotiation is returned when the remote sends a second session
// description. The link is set up exactly once; it is never renegotiated.
var ErrRenegotiation = errors.New("renegotiation is not supported")

// receiver applies inbound signaling messages to the Transport. Each side
// expects exactly one description from the other: the offering side an
// answer, the answering side an offer.
type receiver struct {
	tr     *transport.Transport
	conn   *websocket.Conn
	sender *sender

	expect    messageType
	described bool
	pending   []webrtc.ICECandidateInit
}

func newReceiver(tr *transport.Transport, conn *websocket.Conn, s *sender, offering bool) *receiver {
	expect := msgTypeOffer
	if offering {
		expect = msgTypeAnswer
	}
	return &receiver{tr: tr, conn: conn, sender: s, expect: expect}
}

// watch reads messages until the WebSocket fails or is closed, or the remote
// breaks the exchange.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}
		if err := r.handle(msg); err != nil {
			return err
		}
	}
}

func (r *receiver) handle(msg message) error {
	switch msg.Type {
	case msgTypeOffer, msgTypeAnswer:
		return r.describe(msg)

	case msgTypeCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
			return fmt.Errorf("failed to decode ICE candidate: %w", err)
		}
		// Candidates can outrun the description they belong to.
		if !r.described {
			r.pending = append(r.pending, init)
			return nil
		}
		return r.tr.AddICECandidate(init)

	default:
		return fmt.Errorf("unexpected signaling message type %q", msg.Type)
	}
}

// describe applies the remote description, flushes queued candidates and
// answers an offer.
func (r *receiver) describe(msg message) error {
	if msg.Type != r.expect {
		return fmt.Errorf("received %s, expected %s", msg.Type, r.expect)
	}
	if r.described {
		return fmt.Errorf("second %s: %w", msg.Type, ErrRenegotiation)
	}

	sdpType := webrtc.SDPTypeAnswer
	if msg.Type == msgTypeOffer {
		sdpType = webrtc.SDPTypeOffer
	}
	if err := r.tr.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: msg.SDP}); err != nil {
		return fmt.Errorf("failed to apply remote %s: %w", msg.Type, err)
	}
	r.described = true

	if len(r.pending) > 0 {
		util.LogDebug("applying %d early ICE candidates", len(r.pending))
	}
	for _, c := range r.pending {
		if err := r.tr.AddICECandidate(c); err != nil {
			return err
		}
	}
	r.pending = nil

	if msg.Type == msgTypeOffer {
		return r.sender.sendAnswer()
	}
	return nil
}
