// Package link defines the contract between the transfer core and the
// low-level link driver beneath it. A link only offers short, size-limited
// sends that may be refused while its outgoing buffer is full; everything
// else (framing, flow control) is layered on top by the core.
package link

// Peer is an opaque handle to the remote currently subscribed on a link.
type Peer interface {
	ID() string
}

// Transport is the send side of a link.
type Transport interface {
	// MaxChunkSize returns the current negotiated chunk limit for peer.
	// It may change over the lifetime of a connection, so callers must not
	// cache it across send attempts.
	MaxChunkSize(peer Peer) int

	// TrySend attempts to queue chunk without blocking. It returns false when
	// the outgoing buffer is saturated; the driver later fires its ready
	// signal exactly once for that saturation.
	TrySend(chunk []byte) bool
}

// Driver is a Transport that also delivers the link's asynchronous signals.
// Each On* call replaces any previously registered callback.
type Driver interface {
	Transport

	// OnChunk registers the callback for raw inbound chunks, in arrival order.
	OnChunk(fn func(chunk []byte))

	// OnReady registers the resume callback fired after a refused TrySend.
	OnReady(fn func())

	// OnSubscribe registers the callback fired when a remote subscribes.
	OnSubscribe(fn func(peer Peer))

	// OnUnsubscribe registers the callback fired when the remote unsubscribes.
	OnUnsubscribe(fn func())

	// OnDisconnect registers the callback fired when the link drops.
	OnDisconnect(fn func())
}
