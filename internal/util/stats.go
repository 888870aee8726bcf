package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide transfer counter.
var Stats = &stats{}

type stats struct {
	ChunksSent   atomic.Int64 // chunks accepted by the link, EOM markers included
	ChunksRecv   atomic.Int64 // chunks delivered by the link
	BytesSent    atomic.Int64 // cumulative bytes accepted by the link
	BytesRecv    atomic.Int64 // cumulative bytes delivered by the link
	MessagesSent atomic.Int64 // messages fully sent, EOM included
	MessagesRecv atomic.Int64 // messages fully reassembled
	Stalls       atomic.Int64 // sends refused because the link buffer was full
}

func (s *stats) AddSent(n int)   { s.ChunksSent.Add(1); s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)   { s.ChunksRecv.Add(1); s.BytesRecv.Add(int64(n)) }
func (s *stats) AddMessageSent() { s.MessagesSent.Add(1) }
func (s *stats) AddMessageRecv() { s.MessagesRecv.Add(1) }
func (s *stats) AddStall()       { s.Stalls.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs transfer statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevMsgOut, prevMsgIn, prevStalls int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				msgOut := Stats.MessagesSent.Load()
				msgIn := Stats.MessagesRecv.Load()
				stalls := Stats.Stalls.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0
				outM := msgOut - prevMsgOut
				inM := msgIn - prevMsgIn
				stallN := stalls - prevStalls

				if outM > 0 || inM > 0 || stallN > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inM, outM, stallN))
				}

				prevSent = sent
				prevRecv = recv
				prevMsgOut = msgOut
				prevMsgIn = msgIn
				prevStalls = stalls

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inM, outM, stalls int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Msg: %2d↓ %2d↑ | Stalls: %d",
		formatBytes(inS),
		formatBytes(outS),
		inM,
		outM,
		stalls,
	)
}
