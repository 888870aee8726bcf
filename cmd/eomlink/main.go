// Command eomlink opens a point-to-point WebRTC DataChannel (signaled over
// WebSocket) and uses it as a size-limited notification link: every line
// typed on stdin is segmented into chunks, terminated with an EOM marker and
// reassembled on the other side.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -wsPort, -wsUrl, -wsListen, -mtu, -config).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/eomlink/internal/config"
	"github.com/1ureka/eomlink/internal/session"
	"github.com/1ureka/eomlink/internal/signaling"
	"github.com/1ureka/eomlink/internal/transport"
	"github.com/1ureka/eomlink/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.String("config", "", "Path to a TOML config file")
	role := flag.String("role", "", "Role: host or client")
	wsPortFlag := flag.Int("wsPort", 0, "WebSocket signaling server port (host only)")
	wsURLFlag := flag.String("wsUrl", "", "WebSocket URL to connect to, including ?pin= (client only)")
	wsListenFlag := flag.Bool("wsListen", false, "Listen on all network interfaces (host only, for LAN access)")
	mtuFlag := flag.Int("mtu", 0, "Chunk size in bytes (overrides config)")
	greetingFlag := flag.String("greeting", "", "Message sent to the peer as soon as it subscribes")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	// Flags override the config file only when given explicitly.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = config.Role(*role)
		case "wsUrl":
			cfg.WSURL = *wsURLFlag
		case "mtu":
			cfg.Link.ChunkSize = *mtuFlag
		case "greeting":
			cfg.Greeting = *greetingFlag
		case "debug":
			cfg.Debug = *debugMode
		}
	})

	switch {
	case *wsListenFlag:
		cfg.WSAddr = fmt.Sprintf(":%d", *wsPortFlag)
	case *wsPortFlag > 0:
		cfg.WSAddr = fmt.Sprintf("127.0.0.1:%d", *wsPortFlag)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("eomlink — v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		// No role anywhere → interactive mode.
		askRole(&cfg)
	}

	var tr *transport.Transport
	switch cfg.Role {
	case config.RoleHost:
		tr, err = signaling.EstablishAsHost(ctx, cfg)

	case config.RoleClient:
		if cfg.WSURL == "" {
			util.LogError("missing -wsUrl for client role")
			os.Exit(1)
		}
		cfg.WSURL, err = normalizeWSURL(cfg.WSURL)
		if err == nil {
			tr, err = signaling.EstablishAsClient(ctx, cfg)
		}
	}

	if err != nil {
		util.LogError("failed to establish link: %v", err)
		os.Exit(1)
	}
	defer tr.Close()

	util.StartStatsReporter(ctx)
	util.LogSuccess("P2P link established — type a message and press Enter to send")

	run(ctx, tr, cfg)
	util.LogInfo("successfully closed link")
}

// ---------------------------------------------------------------------------
// Transfer
// ---------------------------------------------------------------------------

// run attaches a transfer session to tr and forwards stdin lines as messages
// until the link or ctx is done.
func run(ctx context.Context, tr *transport.Transport, cfg config.Config) {
	handler := session.HandlerFuncs{
		MessageReceived: func(msg []byte) {
			pterm.Println(pterm.LightRed("[peer] ") + string(msg))
		},
		TransferComplete: func() {
			util.LogDebug("message delivered to link")
		},
		SessionError: func(err error) {
			util.LogWarning("session: %v", err)
		},
	}

	opts := session.Options{MaxMessage: cfg.Link.MaxMessage}
	if cfg.Greeting != "" {
		opts.Greeting = []byte(cfg.Greeting)
	}

	loop := session.Start(ctx, session.New(tr, handler, opts))
	session.Attach(loop, tr)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			err := loop.Send(ctx, []byte(line))
			switch {
			case errors.Is(err, session.ErrNoPeerConnected):
				util.LogWarning("no peer subscribed, message dropped")
			case err != nil:
				return
			default:
				pterm.Println(pterm.LightBlue("[me] ") + line)
			}
		}
	}()

	select {
	case <-tr.Done():
		util.LogWarning("link dropped (PeerConnection %s)", tr.ConnectionState())
	case <-ctx.Done():
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askRole falls back to interactive prompts when no role was configured.
func askRole(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host  — Wait for a peer", "Client — Connect to a host"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		cfg.Role = config.RoleHost
		return
	}
	cfg.Role = config.RoleClient
	cfg.WSURL = askURL()
}

// normalizeWSURL validates and normalizes a raw WebSocket URL string,
// keeping the PIN query parameter.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	normalized := fmt.Sprintf("%s://%s/ws", scheme, u.Host)
	if pin := u.Query().Get("pin"); pin != "" {
		normalized += "?pin=" + url.QueryEscape(pin)
	}
	return normalized, nil
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("WebSocket URL (e.g. ws://192.168.1.2:8080/ws?pin=1234)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
