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

// Stats is the process-wide session/match/traffic counter.
var Stats = &stats{}

type stats struct {
	SessionsOpened  atomic.Int64 // cumulative count of accepted connections
	SessionsClosed  atomic.Int64 // cumulative count of closed connections
	FramesSent      atomic.Int64 // cumulative frames written to clients
	FramesRecv      atomic.Int64 // cumulative frames read from clients
	MatchesStarted  atomic.Int64 // cumulative matches started
	MatchesFinished atomic.Int64 // cumulative matches ended (any outcome)
}

func (s *stats) AddSession()    { s.SessionsOpened.Add(1) }
func (s *stats) RemoveSession() { s.SessionsClosed.Add(1) }
func (s *stats) AddSent()       { s.FramesSent.Add(1) }
func (s *stats) AddRecv()       { s.FramesRecv.Add(1) }
func (s *stats) MatchStart()    { s.MatchesStarted.Add(1) }
func (s *stats) MatchEnd()      { s.MatchesFinished.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs server statistics
// every 10 seconds. It stops when ctx is cancelled. Quiet intervals
// (no session or frame activity) are not logged.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevOpened, prevClosed int64
		for {
			select {
			case <-ticker.C:
				opened := Stats.SessionsOpened.Load()
				closed := Stats.SessionsClosed.Load()
				sent := Stats.FramesSent.Load()
				recv := Stats.FramesRecv.Load()

				dSent := sent - prevSent
				dRecv := recv - prevRecv
				dOpen := opened - prevOpened
				dClose := closed - prevClosed

				if dSent > 0 || dRecv > 0 || dOpen > 0 || dClose > 0 {
					pterm.DefaultLogger.Info(formatStats(dSent, dRecv, dOpen, dClose,
						Stats.MatchesStarted.Load()-Stats.MatchesFinished.Load()))
				}

				prevSent = sent
				prevRecv = recv
				prevOpened = opened
				prevClosed = closed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a formatted string of the last interval's activity.
func formatStats(sent, recv, opened, closed, liveMatches int64) string {
	return fmt.Sprintf("Frames: %4d↑ %4d↓ | Sessions: %2d↑ %2d↓ | Matches live: %d",
		sent, recv, opened, closed, liveMatches)
}
