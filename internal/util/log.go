// Package util provides leveled logging and process-wide transfer statistics.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
	pterm.DefaultLogger.KeyStyles["peer"] = *pterm.NewStyle(pterm.FgCyan, pterm.Bold)
}

// Leveled logging functions backed by pterm.DefaultLogger.
// Formatting is skipped entirely for levels the logger would drop.

func LogDebug(format string, args ...any)   { logf(pterm.LogLevelDebug, "", format, args...) }
func LogInfo(format string, args ...any)    { logf(pterm.LogLevelInfo, "", format, args...) }
func LogWarning(format string, args ...any) { logf(pterm.LogLevelWarn, "", format, args...) }
func LogError(format string, args ...any)   { logf(pterm.LogLevelError, "", format, args...) }

// LogSuccess prints a highlighted milestone (link up, link closed) that is
// always shown regardless of the log level.
func LogSuccess(format string, args ...any) {
	pterm.Success.Println(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// PeerLog logs on behalf of one remote: every line carries a "peer" argument
// with its short ID.
type PeerLog struct {
	id string
}

// ForPeer returns a logger tagged with id. An empty id logs untagged.
func ForPeer(id string) PeerLog {
	return PeerLog{id: id}
}

func (p PeerLog) Debug(format string, args ...any)   { logf(pterm.LogLevelDebug, p.id, format, args...) }
func (p PeerLog) Info(format string, args ...any)    { logf(pterm.LogLevelInfo, p.id, format, args...) }
func (p PeerLog) Warning(format string, args ...any) { logf(pterm.LogLevelWarn, p.id, format, args...) }
func (p PeerLog) Error(format string, args ...any)   { logf(pterm.LogLevelError, p.id, format, args...) }

func logf(level pterm.LogLevel, peer, format string, args ...any) {
	l := pterm.DefaultLogger
	if !l.CanPrint(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	var extra [][]pterm.LoggerArgument
	if peer != "" {
		extra = append(extra, l.Args("peer", peer))
	}

	switch level {
	case pterm.LogLevelDebug:
		l.Debug(msg, extra...)
	case pterm.LogLevelInfo:
		l.Info(msg, extra...)
	case pterm.LogLevelWarn:
		l.Warn(msg, extra...)
	default:
		l.Error(msg, extra...)
	}
}
