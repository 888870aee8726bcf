// Package frame implements EOM-delimited framing over a size-limited link:
// the Segmenter side splits a message into transport-sized chunks and pumps
// them under backpressure, the Reassembler side joins chunks back together.
package frame

import (
	"bytes"
	"errors"
)

// EOM is the end-of-message marker sent as its own chunk after the last data
// chunk. It is neither escaped nor length-prefixed: a message chunk whose
// bytes equal EOM ends the message early on the receiving side.
var EOM = []byte("EOM")

var (
	// ErrInvalidMTU is returned when the transport reports a chunk limit
	// that can never make progress.
	ErrInvalidMTU = errors.New("invalid MTU")

	// ErrMalformedReassembly is returned when an inbound chunk or the
	// accumulated message exceeds the reassembler's bounds.
	ErrMalformedReassembly = errors.New("malformed reassembly")
)

// IsEOM reports whether chunk is exactly the end-of-message marker.
func IsEOM(chunk []byte) bool {
	return bytes.Equal(chunk, EOM)
}
