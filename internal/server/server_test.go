package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salvora/broadside/internal/match"
	"github.com/salvora/broadside/internal/protocol"
	"github.com/salvora/broadside/internal/registry"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ctx, registry.Config{}, match.Config{})
	go func() { _ = srv.Serve(ctx, listener) }()
	return srv, listener.Addr().String()
}

// tcpClient is a scripted client over a real TCP connection.
type tcpClient struct {
	conn  net.Conn
	lines chan string
	seq   uint32
}

func dialClient(t *testing.T, addr string) *tcpClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	c := &tcpClient{conn: conn, lines: make(chan string, 256)}
	go func() {
		for {
			pkt, err := protocol.ReadPacket(conn)
			if err != nil {
				close(c.lines)
				return
			}
			c.lines <- pkt.Text()
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return c
}

func (c *tcpClient) send(t *testing.T, text string) {
	t.Helper()
	c.seq++
	pkt := &protocol.Packet{SeqNum: c.seq, Type: protocol.TypeData, Payload: []byte(text)}
	require.NoError(t, protocol.WritePacket(c.conn, pkt))
}

func (c *tcpClient) expect(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got, ok := <-c.lines:
			if !ok {
				t.Fatalf("connection closed while waiting for line containing %q", want)
			}
			if strings.Contains(got, want) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for line containing %q", want)
		}
	}
}

// expectNext asserts the exact next line, with no discarding; used where
// ordering is the thing under test.
func (c *tcpClient) expectNext(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-c.lines:
		if !ok {
			t.Fatalf("connection closed while waiting for %q", want)
		}
		require.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func (c *tcpClient) expectClosed(t *testing.T) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("connection was not closed")
		}
	}
}

func TestHandshakeAssignsRoles(t *testing.T) {
	srv, addr := startServer(t)

	alice := dialClient(t, addr)
	alice.send(t, "USER alice")
	alice.expect(t, "ROLE PLAYER")

	bob := dialClient(t, addr)
	bob.send(t, "USER bob")
	bob.expect(t, "ROLE PLAYER")

	// Two players means the match launches immediately.
	alice.expect(t, "You are Player 1")
	bob.expect(t, "You are Player 2")

	carol := dialClient(t, addr)
	carol.send(t, "USER carol")
	carol.expect(t, "ROLE SPECTATOR")

	players, spectators, _ := srv.Registry().Counts()
	assert.Equal(t, 2, players)
	assert.Equal(t, 1, spectators)
}

func TestRoleLineArrivesBeforeMatchLines(t *testing.T) {
	_, addr := startServer(t)

	alice := dialClient(t, addr)
	alice.send(t, "USER alice")
	alice.expectNext(t, "ROLE PLAYER")

	// Bob's handshake launches the match. The role assignment must still be
	// the first line on his wire, never the match welcome.
	bob := dialClient(t, addr)
	bob.send(t, "USER bob")
	bob.expectNext(t, "ROLE PLAYER")
	bob.expectNext(t, "Welcome to Battleship! You are Player 2.")

	alice.expectNext(t, "Welcome to Battleship! You are Player 1.")
}

func TestBadHandshakeClosesConnection(t *testing.T) {
	_, addr := startServer(t)

	c := dialClient(t, addr)
	c.send(t, "HELLO server")
	c.expect(t, "ERROR expected 'USER <name>'")
	c.expectClosed(t)
}

func TestEmptyUsernameRejected(t *testing.T) {
	_, addr := startServer(t)

	c := dialClient(t, addr)
	c.send(t, "USER   ")
	c.expect(t, "ERROR expected 'USER <name>'")
	c.expectClosed(t)
}

func TestParseUserLine(t *testing.T) {
	cases := []struct {
		in   string
		name string
		ok   bool
	}{
		{"USER alice", "alice", true},
		{"USER  alice ", "alice", true},
		{"user alice", "", false},
		{"USERalice", "", false},
		{"USER ", "", false},
		{"FIRE B5", "", false},
	}
	for _, tc := range cases {
		name, ok := parseUserLine(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.name, name, "input %q", tc.in)
	}
}

func TestWebSocketCarrierSpeaksSameProtocol(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ctx, registry.Config{}, match.Config{})
	go func() { _ = srv.ServeWS(ctx, listener) }()

	url := fmt.Sprintf("ws://%s/ws", listener.Addr())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frame, err := protocol.Encode(&protocol.Packet{SeqNum: 1, Type: protocol.TypeData, Payload: []byte("USER alice")})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "never received ROLE PLAYER over websocket")
		pkt, err := protocol.Decode(data)
		require.NoError(t, err)
		if pkt.Text() == "ROLE PLAYER" {
			return
		}
	}
}
