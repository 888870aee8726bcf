package session

// Handler receives a session's notifications. Methods are called from the
// session's goroutine and must not block on the session itself: calling
// Loop.Send from inside a Handler method deadlocks.
type Handler interface {
	// OnMessageReceived delivers a fully reassembled inbound message.
	OnMessageReceived(msg []byte)

	// OnTransferComplete fires once per outgoing message, after its EOM
	// marker was accepted by the link.
	OnTransferComplete()

	// OnSessionError reports conditions that reset part of the session
	// (invalid MTU, malformed reassembly).
	OnSessionError(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	MessageReceived  func(msg []byte)
	TransferComplete func()
	SessionError     func(err error)
}

func (h HandlerFuncs) OnMessageReceived(msg []byte) {
	if h.MessageReceived != nil {
		h.MessageReceived(msg)
	}
}

func (h HandlerFuncs) OnTransferComplete() {
	if h.TransferComplete != nil {
		h.TransferComplete()
	}
}

func (h HandlerFuncs) OnSessionError(err error) {
	if h.SessionError != nil {
		h.SessionError(err)
	}
}
