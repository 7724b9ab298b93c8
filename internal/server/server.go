// Package server accepts client connections over TCP and WebSocket, runs
// the USER handshake, and hands identified sessions to the registry. Match
// goroutines are launched from here so the registry callback never blocks.
package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/salvora/broadside/internal/match"
	"github.com/salvora/broadside/internal/registry"
	"github.com/salvora/broadside/internal/session"
	"github.com/salvora/broadside/internal/util"
)

// HandshakeTimeout bounds how long a fresh connection may sit silent before
// sending its USER line.
const HandshakeTimeout = 30 * time.Second

// Server owns the accept loops and the registry behind them.
type Server struct {
	ctx      context.Context
	reg      *registry.Registry
	matchCfg match.Config
}

// New wires a Server: the registry's startMatch callback spawns an
// orchestrator goroutine bound to ctx, and spectator broadcasts fan out
// through the registry. Call StartSweeper on the registry separately.
func New(ctx context.Context, regCfg registry.Config, matchCfg match.Config) *Server {
	s := &Server{ctx: ctx, matchCfg: matchCfg}
	s.reg = registry.New(regCfg, s.startMatch)
	return s
}

// Registry exposes the underlying registry for sweeping and tests.
func (s *Server) Registry() *registry.Registry { return s.reg }

// startMatch is invoked by the registry with its lock held, so the match
// itself runs on a fresh goroutine and reports back through MatchEnded.
func (s *Server) startMatch(p1, p2 *session.Session, snap *match.Snapshot) {
	go func() {
		var o *match.Orchestrator
		if snap != nil {
			o = match.Resume(p1, p2, snap, s.matchCfg, s.reg.BroadcastSpectators)
		} else {
			o = match.New(p1, p2, s.matchCfg, s.reg.BroadcastSpectators)
		}
		s.reg.MatchEnded(p1, p2, o.Run(s.ctx))
	}()
}

// ListenAndServe starts the TCP accept loop on addr. It blocks until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the accept loop on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// Close the listener when context is done so Accept() returns an error.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	util.LogSuccess("game server listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil // normal shutdown
			default:
				return fmt.Errorf("accept error: %w", err)
			}
		}
		go s.handleConn(session.NewStreamConn(conn))
	}
}

// handleConn runs the join handshake for one connection. The first DATA
// line must be "USER <name>"; anything else closes the connection, as does
// a silent client.
func (s *Server) handleConn(conn session.FrameConn) {
	sess := session.New(conn)
	util.Stats.AddSession()
	util.LogInfo("[%08x] new connection from %s", sess.ID, conn.RemoteAddr())

	sess.Start(s.reg.BroadcastChat)

	line, err := sess.Receive(HandshakeTimeout)
	if err != nil {
		util.LogInfo("[%08x] handshake failed: %v", sess.ID, err)
		sess.Close()
		return
	}

	username, ok := parseUserLine(line)
	if !ok {
		util.LogWarning("[%08x] bad handshake line %q", sess.ID, line)
		sess.Send("ERROR expected 'USER <name>'")
		sess.Close()
		return
	}

	// Seat first, then deliver the role line, then activate: the match can
	// only start once both players are activated, so its opening lines can
	// never overtake the role assignment.
	role := s.reg.Join(sess, username)
	if err := sess.Send("ROLE " + role.String()); err != nil {
		s.reg.Leave(sess)
		return
	}
	s.reg.Activate(sess)
}

// parseUserLine extracts the username from a "USER <name>" line.
func parseUserLine(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "USER ")
	if !ok {
		return "", false
	}
	name := strings.TrimSpace(rest)
	return name, name != ""
}
