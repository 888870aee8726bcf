package session

import (
	"bytes"
	"errors"
	"testing"

	"github.com/1ureka/eomlink/internal/frame"
	"github.com/1ureka/eomlink/internal/link"
)

// Compile-time interface check.
var _ link.Transport = (*fakeLink)(nil)

type testPeer string

func (p testPeer) ID() string { return string(p) }

// fakeLink records accepted chunks and refuses the listed send attempts
// (0-based, refused attempts included). It is only used from one goroutine.
type fakeLink struct {
	mtu      int
	refuse   map[int]bool
	attempts int
	chunks   []string
}

func newFakeLink(mtu int, refuse ...int) *fakeLink {
	f := &fakeLink{mtu: mtu, refuse: make(map[int]bool)}
	for _, n := range refuse {
		f.refuse[n] = true
	}
	return f
}

func (f *fakeLink) MaxChunkSize(link.Peer) int { return f.mtu }

func (f *fakeLink) TrySend(chunk []byte) bool {
	n := f.attempts
	f.attempts++
	if f.refuse[n] {
		return false
	}
	f.chunks = append(f.chunks, string(chunk))
	return true
}

// recorder is a Handler that keeps every notification.
type recorder struct {
	messages    [][]byte
	completions int
	errs        []error
}

func (r *recorder) OnMessageReceived(msg []byte) { r.messages = append(r.messages, msg) }
func (r *recorder) OnTransferComplete()          { r.completions++ }
func (r *recorder) OnSessionError(err error)     { r.errs = append(r.errs, err) }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestSession(tr link.Transport, opts Options) (*Session, *recorder) {
	rec := &recorder{}
	return New(tr, rec, opts), rec
}

// TestSessionSendCompletes verifies a transfer that fits the link buffer
// finishes within BeginSend.
func TestSessionSendCompletes(t *testing.T) {
	tr := newFakeLink(5)
	s, rec := newTestSession(tr, Options{})

	s.Subscribe(testPeer("a"))
	if s.State() != Subscribed {
		t.Fatalf("state after subscribe: got %s, want %s", s.State(), Subscribed)
	}

	if err := s.BeginSend([]byte("HELLOWORLD")); err != nil {
		t.Fatalf("BeginSend failed: %v", err)
	}

	want := []string{"HELLO", "WORLD", "EOM"}
	if !equalStrings(tr.chunks, want) {
		t.Errorf("chunks: got %q, want %q", tr.chunks, want)
	}
	if rec.completions != 1 {
		t.Errorf("completions: got %d, want 1", rec.completions)
	}
	if s.State() != Subscribed {
		t.Errorf("state after completion: got %s, want %s", s.State(), Subscribed)
	}
	if _, _, _, ok := s.Progress(); ok {
		t.Error("cursor still present after completion")
	}
}

// TestSessionResumesOnTransportReady verifies the backpressure scenario: the
// second chunk is refused, the resume signal finishes the transfer, and the
// completion fires exactly once.
func TestSessionResumesOnTransportReady(t *testing.T) {
	tr := newFakeLink(5, 1)
	s, rec := newTestSession(tr, Options{})

	s.Subscribe(testPeer("a"))
	if err := s.BeginSend([]byte("HELLOWORLD")); err != nil {
		t.Fatalf("BeginSend failed: %v", err)
	}

	if s.State() != Sending {
		t.Fatalf("state after refusal: got %s, want %s", s.State(), Sending)
	}
	offset, total, eomPending, ok := s.Progress()
	if !ok || offset != 5 || total != 10 || eomPending {
		t.Fatalf("progress: got (%d, %d, %v, %v), want (5, 10, false, true)", offset, total, eomPending, ok)
	}
	if rec.completions != 0 {
		t.Fatal("completion fired before the transfer finished")
	}

	s.TransportReady()

	want := []string{"HELLO", "WORLD", "EOM"}
	if !equalStrings(tr.chunks, want) {
		t.Errorf("chunks: got %q, want %q", tr.chunks, want)
	}
	if s.State() != Subscribed {
		t.Errorf("state after resume: got %s, want %s", s.State(), Subscribed)
	}

	// A spurious ready signal is ignored.
	s.TransportReady()
	if rec.completions != 1 {
		t.Errorf("completions: got %d, want 1", rec.completions)
	}
	if len(tr.chunks) != len(want) {
		t.Errorf("spurious resume sent %d extra chunks", len(tr.chunks)-len(want))
	}
}

// TestSessionBeginSendWithoutPeer verifies the only error surfaced to callers.
func TestSessionBeginSendWithoutPeer(t *testing.T) {
	tr := newFakeLink(5)
	s, _ := newTestSession(tr, Options{})

	err := s.BeginSend([]byte("HELLO"))
	if !errors.Is(err, ErrNoPeerConnected) {
		t.Fatalf("expected ErrNoPeerConnected, got %v", err)
	}
	if s.State() != Idle {
		t.Errorf("state: got %s, want %s", s.State(), Idle)
	}
	if tr.attempts != 0 {
		t.Errorf("transport saw %d send attempts", tr.attempts)
	}
}

// TestSessionDisconnectMidSend verifies that a disconnect abandons the
// in-flight transfer without a completion and that a later subscription
// starts from a fresh cursor.
func TestSessionDisconnectMidSend(t *testing.T) {
	for _, tc := range []struct {
		name string
		drop func(*Session)
	}{
		{"disconnect", (*Session).Disconnect},
		{"unsubscribe", (*Session).Unsubscribe},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tr := newFakeLink(5, 1)
			s, rec := newTestSession(tr, Options{})

			s.Subscribe(testPeer("a"))
			s.BeginSend([]byte("HELLOWORLD"))
			tc.drop(s)

			if s.State() != Idle || s.Peer() != nil {
				t.Fatalf("after %s: state %s, peer %v", tc.name, s.State(), s.Peer())
			}

			// Resume after the drop must not touch the abandoned message.
			s.TransportReady()
			if rec.completions != 0 {
				t.Fatal("completion fired for an abandoned transfer")
			}

			s.Subscribe(testPeer("b"))
			if err := s.BeginSend([]byte("AB")); err != nil {
				t.Fatalf("BeginSend failed: %v", err)
			}

			want := []string{"HELLO", "AB", "EOM"}
			if !equalStrings(tr.chunks, want) {
				t.Errorf("chunks: got %q, want %q", tr.chunks, want)
			}
			if rec.completions != 1 {
				t.Errorf("completions: got %d, want 1", rec.completions)
			}
		})
	}
}

// TestSessionNewSendOverridesInFlight verifies last-write-wins: a second
// BeginSend abandons the stalled message instead of queuing behind it.
func TestSessionNewSendOverridesInFlight(t *testing.T) {
	tr := newFakeLink(5, 1)
	s, rec := newTestSession(tr, Options{})

	s.Subscribe(testPeer("a"))
	s.BeginSend([]byte("HELLOWORLD"))
	if err := s.BeginSend([]byte("XY")); err != nil {
		t.Fatalf("BeginSend failed: %v", err)
	}

	want := []string{"HELLO", "XY", "EOM"}
	if !equalStrings(tr.chunks, want) {
		t.Errorf("chunks: got %q, want %q", tr.chunks, want)
	}
	if rec.completions != 1 {
		t.Errorf("completions: got %d, want 1", rec.completions)
	}
	if s.State() != Subscribed {
		t.Errorf("state: got %s, want %s", s.State(), Subscribed)
	}
}

// TestSessionMessageIsCopied verifies that mutating the caller's buffer after
// BeginSend does not change what goes out on resume.
func TestSessionMessageIsCopied(t *testing.T) {
	tr := newFakeLink(5, 1)
	s, _ := newTestSession(tr, Options{})

	msg := []byte("HELLOWORLD")
	s.Subscribe(testPeer("a"))
	s.BeginSend(msg)
	copy(msg, "xxxxxxxxxx")
	s.TransportReady()

	want := []string{"HELLO", "WORLD", "EOM"}
	if !equalStrings(tr.chunks, want) {
		t.Errorf("chunks: got %q, want %q", tr.chunks, want)
	}
}

// TestSessionSubscribeReplacesPeer verifies single-peer semantics: a new peer
// replaces the old one and discards its partial inbound message.
func TestSessionSubscribeReplacesPeer(t *testing.T) {
	tr := newFakeLink(5, 1)
	s, rec := newTestSession(tr, Options{})

	s.Subscribe(testPeer("a"))
	s.ChunkReceived([]byte("partial"))
	s.BeginSend([]byte("HELLOWORLD"))

	s.Subscribe(testPeer("b"))
	if got := s.Peer(); got == nil || got.ID() != "b" {
		t.Fatalf("peer: got %v, want b", got)
	}
	if s.State() != Subscribed {
		t.Errorf("state: got %s, want %s", s.State(), Subscribed)
	}

	s.ChunkReceived([]byte("fresh"))
	s.ChunkReceived(frame.EOM)
	if len(rec.messages) != 1 || string(rec.messages[0]) != "fresh" {
		t.Errorf("messages: got %q, want [fresh]", rec.messages)
	}
}

// TestSessionDuplicateSubscribeIgnored verifies that the same peer
// subscribing again keeps the in-flight transfer.
func TestSessionDuplicateSubscribeIgnored(t *testing.T) {
	tr := newFakeLink(5, 1)
	s, _ := newTestSession(tr, Options{})

	s.Subscribe(testPeer("a"))
	s.BeginSend([]byte("HELLOWORLD"))
	s.Subscribe(testPeer("a"))

	if s.State() != Sending {
		t.Fatalf("state: got %s, want %s", s.State(), Sending)
	}
	if offset, _, _, _ := s.Progress(); offset != 5 {
		t.Errorf("offset: got %d, want 5", offset)
	}
}

// TestSessionReceivesMessages verifies inbound reassembly and that chunks
// arriving without a subscribed peer are dropped.
func TestSessionReceivesMessages(t *testing.T) {
	tr := newFakeLink(5)
	s, rec := newTestSession(tr, Options{})

	s.ChunkReceived([]byte("stray"))
	s.ChunkReceived(frame.EOM)
	if len(rec.messages) != 0 {
		t.Fatalf("delivered %d messages with no peer", len(rec.messages))
	}

	s.Subscribe(testPeer("a"))
	for _, chunk := range []string{"HEL", "LO", "EOM", "EOM"} {
		s.ChunkReceived([]byte(chunk))
	}

	if len(rec.messages) != 2 {
		t.Fatalf("messages: got %d, want 2", len(rec.messages))
	}
	if string(rec.messages[0]) != "HELLO" || len(rec.messages[1]) != 0 {
		t.Errorf("messages: got %q", rec.messages)
	}
}

// TestSessionReceiveWhileSending verifies inbound and outbound transfers do
// not disturb each other.
func TestSessionReceiveWhileSending(t *testing.T) {
	tr := newFakeLink(5, 1)
	s, rec := newTestSession(tr, Options{})

	s.Subscribe(testPeer("a"))
	s.BeginSend([]byte("HELLOWORLD"))
	s.ChunkReceived([]byte("ping"))
	s.ChunkReceived(frame.EOM)
	s.TransportReady()

	if len(rec.messages) != 1 || string(rec.messages[0]) != "ping" {
		t.Errorf("messages: got %q, want [ping]", rec.messages)
	}
	if rec.completions != 1 {
		t.Errorf("completions: got %d, want 1", rec.completions)
	}
}

// TestSessionInvalidMTU verifies a zero chunk size resets the session and is
// reported through the handler rather than returned.
func TestSessionInvalidMTU(t *testing.T) {
	tr := newFakeLink(0)
	s, rec := newTestSession(tr, Options{})

	s.Subscribe(testPeer("a"))
	if err := s.BeginSend([]byte("HELLO")); err != nil {
		t.Fatalf("BeginSend returned %v, want nil", err)
	}

	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], frame.ErrInvalidMTU) {
		t.Fatalf("errors: got %v, want [ErrInvalidMTU]", rec.errs)
	}
	if s.State() != Idle {
		t.Errorf("state: got %s, want %s", s.State(), Idle)
	}
	if rec.completions != 0 {
		t.Error("completion fired for a failed transfer")
	}
}

// TestSessionMalformedReassembly verifies oversized chunks are reported and
// do not end the subscription.
func TestSessionMalformedReassembly(t *testing.T) {
	tr := newFakeLink(5)
	s, rec := newTestSession(tr, Options{MaxChunk: 4})

	s.Subscribe(testPeer("a"))
	s.ChunkReceived([]byte("toolong"))

	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], frame.ErrMalformedReassembly) {
		t.Fatalf("errors: got %v, want [ErrMalformedReassembly]", rec.errs)
	}
	if s.State() != Subscribed {
		t.Errorf("state: got %s, want %s", s.State(), Subscribed)
	}

	s.ChunkReceived([]byte("ok"))
	s.ChunkReceived(frame.EOM)
	if len(rec.messages) != 1 || !bytes.Equal(rec.messages[0], []byte("ok")) {
		t.Errorf("messages: got %q, want [ok]", rec.messages)
	}
}

// TestSessionGreeting verifies the greeting goes out on every subscription.
func TestSessionGreeting(t *testing.T) {
	tr := newFakeLink(5)
	s, rec := newTestSession(tr, Options{Greeting: []byte("hi")})

	s.Subscribe(testPeer("a"))
	s.Unsubscribe()
	s.Subscribe(testPeer("b"))

	want := []string{"hi", "EOM", "hi", "EOM"}
	if !equalStrings(tr.chunks, want) {
		t.Errorf("chunks: got %q, want %q", tr.chunks, want)
	}
	if rec.completions != 2 {
		t.Errorf("completions: got %d, want 2", rec.completions)
	}
}

// TestSessionNilHandler verifies notifications are optional.
func TestSessionNilHandler(t *testing.T) {
	tr := newFakeLink(5)
	s := New(tr, nil, Options{})

	s.Subscribe(testPeer("a"))
	s.BeginSend([]byte("HELLO"))
	s.ChunkReceived(frame.EOM)

	if s.State() != Subscribed {
		t.Errorf("state: got %s, want %s", s.State(), Subscribed)
	}
}

func TestStateString(t *testing.T) {
	testCases := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Subscribed, "subscribed"},
		{Sending, "sending"},
		{State(9), "State(9)"},
	}

	for _, tc := range testCases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String(): got %q, want %q", int(tc.state), got, tc.want)
		}
	}
}
