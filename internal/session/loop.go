package session

import (
	"bytes"
	"context"
	"errors"

	"github.com/1ureka/eomlink/internal/link"
	"github.com/1ureka/eomlink/internal/util"
)

// mailboxSize is the event channel capacity between link callbacks and the loop.
const mailboxSize = 64

// ErrLoopClosed is returned by Send and Do once the loop has stopped.
var ErrLoopClosed = errors.New("session loop closed")

// Loop serializes every event for one Session onto a single goroutine, so
// subscribe, unsubscribe, resume and chunk delivery never interleave.
// Its methods are safe to call from any goroutine, including link callbacks.
type Loop struct {
	sess  *Session
	inbox chan func(*Session)
	done  chan struct{}
}

// Start launches the loop goroutine for sess. The loop exits when ctx is
// cancelled; events posted afterwards are dropped.
func Start(ctx context.Context, sess *Session) *Loop {
	l := &Loop{
		sess:  sess,
		inbox: make(chan func(*Session), mailboxSize),
		done:  make(chan struct{}),
	}
	go l.run(ctx)
	return l
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case fn := <-l.inbox:
			fn(l.sess)
		case <-ctx.Done():
			return
		}
	}
}

// Done returns a channel that is closed when the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// post enqueues fn. It blocks while the mailbox is full and returns
// ErrLoopClosed when the loop is gone.
func (l *Loop) post(ctx context.Context, fn func(*Session)) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}

	select {
	case l.inbox <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func(*Session)) error {
	finished := make(chan struct{})
	if err := l.post(ctx, func(s *Session) {
		defer close(finished)
		fn(s)
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send begins transferring msg and returns once the loop has accepted or
// rejected it. It fails with ErrNoPeerConnected when nobody is subscribed.
// Completion is reported later through Handler.OnTransferComplete.
func (l *Loop) Send(ctx context.Context, msg []byte) error {
	var sendErr error
	if err := l.Do(ctx, func(s *Session) { sendErr = s.BeginSend(msg) }); err != nil {
		return err
	}
	return sendErr
}

// State returns the session state as seen by the loop goroutine.
func (l *Loop) State(ctx context.Context) (State, error) {
	var st State
	err := l.Do(ctx, func(s *Session) { st = s.State() })
	return st, err
}

// Signals from the link. They enqueue without waiting for the event to be handled.

func (l *Loop) Subscribe(peer link.Peer) {
	l.signal("subscribe", func(s *Session) { s.Subscribe(peer) })
}

func (l *Loop) Unsubscribe() {
	l.signal("unsubscribe", func(s *Session) { s.Unsubscribe() })
}

func (l *Loop) Disconnect() {
	l.signal("disconnect", func(s *Session) { s.Disconnect() })
}

func (l *Loop) TransportReady() {
	l.signal("ready", func(s *Session) { s.TransportReady() })
}

func (l *Loop) ChunkReceived(chunk []byte) {
	chunk = bytes.Clone(chunk)
	l.signal("chunk", func(s *Session) { s.ChunkReceived(chunk) })
}

// signal posts a link event. Events arriving after shutdown are dropped.
func (l *Loop) signal(name string, fn func(*Session)) {
	if err := l.post(context.Background(), fn); err != nil {
		util.LogDebug("%s event dropped: %v", name, err)
	}
}

// Attach routes every signal of d into l. The chunk callback is registered
// last: a driver replaying buffered chunks must find the peer subscribed.
func Attach(l *Loop, d link.Driver) {
	d.OnSubscribe(l.Subscribe)
	d.OnReady(l.TransportReady)
	d.OnUnsubscribe(l.Unsubscribe)
	d.OnDisconnect(l.Disconnect)
	d.OnChunk(l.ChunkReceived)
}
