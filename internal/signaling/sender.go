package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/eomlink/internal/transport"
)

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON envelope exchanged over the WebSocket. Candidate holds
// a JSON-encoded webrtc.ICECandidateInit.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"`
}

// sender serializes outgoing signaling messages to the WebSocket.
type sender struct {
	tr   *transport.Transport
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *sender) sendOffer() error {
	offer, err := s.tr.CreateOffer()
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := s.tr.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *sender) sendAnswer() error {
	answer, err := s.tr.CreateAnswer()
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := s.tr.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

// sendCandidate trickles a local ICE candidate. Gathering may outlive the
// WebSocket, so failures after the DataChannel opened are expected.
func (s *sender) sendCandidate(c *webrtc.ICECandidate) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return fmt.Errorf("failed to encode ICE candidate: %w", err)
	}
	return s.send(message{Type: msgTypeCandidate, Candidate: string(data)})
}
