// Broadside — game server entry point.
//
// It accepts clients over raw TCP (and optionally WebSocket), pairs the
// first two identified connections into a match, queues the rest as
// spectators, and keeps interrupted matches resumable for a grace window.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/salvora/broadside/internal/match"
	"github.com/salvora/broadside/internal/registry"
	"github.com/salvora/broadside/internal/server"
	"github.com/salvora/broadside/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	addr := flag.String("addr", ":5000", "TCP listen address")
	wsAddr := flag.String("wsAddr", "", "WebSocket listen address (empty disables the WS carrier)")
	turnTimeout := flag.Duration("turnTimeout", match.DefaultTurnTimeout, "per-move deadline before the turn passes")
	grace := flag.Duration("grace", registry.DefaultGraceWindow, "reconnection grace window for interrupted matches")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Broadside — v%s", version))
	pterm.Println()

	srv := server.New(ctx,
		registry.Config{GraceWindow: *grace},
		match.Config{TurnTimeout: *turnTimeout},
	)
	srv.Registry().StartSweeper(ctx)
	util.StartStatsReporter(ctx)

	if *wsAddr != "" {
		go func() {
			if err := srv.ListenAndServeWS(ctx, *wsAddr); err != nil {
				util.LogError("websocket carrier failed: %v", err)
			}
		}()
	}

	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		util.LogError("server failed: %v", err)
		os.Exit(1)
	}

	util.LogInfo("server shut down")
}
