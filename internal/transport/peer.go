package transport

import (
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Peer identifies the remote end of one DataChannel session. A fresh handle
// is minted every time the channel opens.
type Peer struct {
	id string
}

func newPeer() *Peer {
	return &Peer{id: uuid.NewString()[:8]}
}

// ID returns the handle's short identifier.
func (p *Peer) ID() string { return p.id }

func (p *Peer) String() string { return p.id }

// newPeerConnection creates a PeerConnection configured with the given STUN
// servers. No TURN: the link is meant for direct P2P connectivity.
func newPeerConnection(stunServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: stunServers},
		}
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated, ordered DataChannel on the given
// PeerConnection. Negotiated mode (ID 0) lets both sides create the channel
// independently. Ordered delivery is required: EOM framing has no sequence
// numbers and relies on chunks arriving in send order.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("eomlink", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
