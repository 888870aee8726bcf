// Package signaling orchestrates the signaling phase, from a WebSocket
// rendezvous to an open DataChannel. All WebSocket and SDP/ICE details are
// internal; callers receive a ready-to-use Transport.
package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/1ureka/eomlink/internal/config"
	"github.com/1ureka/eomlink/internal/transport"
	"github.com/1ureka/eomlink/internal/util"
)

// pinLength is the number of digits in the host's signaling PIN.
const pinLength = 4

// EstablishAsHost executes the full host-side signaling flow:
//  1. Start a WS server on cfg.WSAddr with a random PIN
//  2. Print port and PIN
//  3. Wait for the client to connect
//  4. Create a Transport and send the Offer
//  5. Exchange the Answer and ICE candidates until the DataChannel opens
//  6. Close the WS server and connection
func EstablishAsHost(ctx context.Context, cfg config.Config) (*transport.Transport, error) {
	pin := generatePIN(pinLength)
	srv := newServer(pin)
	wsPort, err := srv.start(cfg.WSAddr)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	pterm.DefaultBox.WithTitle("WebSocket Signaling Server").Println(
		fmt.Sprintf("Port : %d\nPIN  : %s\nPath : /ws?pin=%s", wsPort, pin, pin))
	util.LogInfo("waiting for client...")

	wsConn, err := srv.waitForClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for client: %w", err)
	}
	defer wsConn.Close()
	util.LogInfo("client connected")

	return establish(ctx, cfg, wsConn, true)
}

// EstablishAsClient executes the full client-side signaling flow:
//  1. Connect to the host's WS server
//  2. Create a Transport
//  3. Answer the Offer and exchange ICE candidates until the DataChannel opens
//  4. Close the WS connection
func EstablishAsClient(ctx context.Context, cfg config.Config) (*transport.Transport, error) {
	util.LogInfo("connecting to host...")
	wsConn, err := connect(ctx, cfg.WSURL)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogInfo("WS connected: %s", cfg.WSURL)

	return establish(ctx, cfg, wsConn, false)
}

// establish runs the SDP/ICE exchange over wsConn and returns once the
// DataChannel is open. The offering side sends the first message.
func establish(ctx context.Context, cfg config.Config, wsConn *websocket.Conn, offer bool) (*transport.Transport, error) {
	tr, err := transport.NewTransport(ctx, cfg.Link)
	if err != nil {
		return nil, fmt.Errorf("failed to create Transport: %w", err)
	}

	s := &sender{tr: tr, conn: wsConn}
	r := newReceiver(tr, wsConn, s, offer)

	tr.OnICECandidate(func(c *webrtc.ICECandidate) {
		if err := s.sendCandidate(c); err != nil {
			select {
			case <-tr.Ready():
			default:
				util.LogWarning("failed to send ICE candidate: %v", err)
			}
		}
	})

	// Exits when wsConn is closed (deferred by the caller).
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if offer {
		if err := s.sendOffer(); err != nil {
			tr.Close()
			return nil, fmt.Errorf("failed to send Offer: %w", err)
		}
	}

	select {
	case <-tr.Ready():
		util.LogInfo("WebRTC DataChannel established, closing WS")
		return tr, nil

	case err := <-errCh:
		// If WS closed because the DataChannel already opened, that's fine.
		select {
		case <-tr.Ready():
			return tr, nil
		default:
		}
		tr.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)

	case <-ctx.Done():
		tr.Close()
		return nil, ctx.Err()
	}
}
