// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Role represents the user's chosen role (host or client).
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

var (
	ErrInvalidMTU       = errors.New("chunk_size must be at least 1")
	ErrInvalidWaterMark = errors.New("low_water_mark must be below high_water_mark")
	ErrChunkTooLarge    = errors.New("chunk_size must not exceed high_water_mark - low_water_mark")
)

// Config stores all parameters gathered from the config file, flags and
// interactive prompts.
type Config struct {
	Role     Role   `toml:"role"`
	WSURL    string `toml:"ws_url"`   // Client: WebSocket URL to connect to
	WSAddr   string `toml:"ws_addr"`  // Host: signaling listen address
	Greeting string `toml:"greeting"` // sent to every new subscriber when non-empty
	Debug    bool   `toml:"debug"`

	Link LinkConfig `toml:"link"`
}

// LinkConfig tunes the DataChannel link and the framing limits on top of it.
type LinkConfig struct {
	ChunkSize     int      `toml:"chunk_size"`      // preferred chunk size, capped by the SCTP limit
	HighWaterMark int      `toml:"high_water_mark"` // refuse sends above this many buffered bytes
	LowWaterMark  int      `toml:"low_water_mark"`  // fire the resume signal below this
	MaxMessage    int      `toml:"max_message"`     // largest message the receiver reassembles
	STUNServers   []string `toml:"stun_servers"`
}

// Default returns the built-in configuration. The chunk size mirrors a BLE
// notification payload on a 185-byte ATT MTU.
func Default() Config {
	return Config{
		WSAddr: ":0",
		Link: LinkConfig{
			ChunkSize:     182,
			HighWaterMark: 256 * 1024,
			LowWaterMark:  64 * 1024,
			MaxMessage:    4 * 1024 * 1024,
			STUNServers: []string{
				"stun:stun.l.google.com:19302",
				"stun:stun1.l.google.com:19302",
			},
		},
	}
}

// Load reads a TOML file on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	return cfg, nil
}

// Validate checks values that would otherwise break the link at runtime.
func (c Config) Validate() error {
	switch c.Role {
	case "", RoleHost, RoleClient:
	default:
		return fmt.Errorf("invalid role %q: must be 'host' or 'client'", c.Role)
	}

	if c.Link.ChunkSize < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidMTU, c.Link.ChunkSize)
	}
	if c.Link.LowWaterMark < 0 || c.Link.LowWaterMark >= c.Link.HighWaterMark {
		return fmt.Errorf("%w (low %d, high %d)", ErrInvalidWaterMark, c.Link.LowWaterMark, c.Link.HighWaterMark)
	}
	// A refused chunk must fit once the buffer has drained to the low mark,
	// or every resume is refused again.
	if window := c.Link.HighWaterMark - c.Link.LowWaterMark; c.Link.ChunkSize > window {
		return fmt.Errorf("%w (chunk %d, window %d)", ErrChunkTooLarge, c.Link.ChunkSize, window)
	}
	if c.Link.MaxMessage < 0 {
		return fmt.Errorf("max_message must not be negative (got %d)", c.Link.MaxMessage)
	}
	return nil
}
