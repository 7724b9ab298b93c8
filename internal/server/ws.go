package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/salvora/broadside/internal/protocol"
	"github.com/salvora/broadside/internal/session"
	"github.com/salvora/broadside/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ListenAndServeWS starts the WebSocket carrier on addr. Each connection
// upgraded at /ws speaks the same framed protocol as the TCP listener, one
// binary message per frame, and goes through the same handshake.
func (s *Server) ListenAndServeWS(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start WS listener on %s: %w", addr, err)
	}
	return s.ServeWS(ctx, listener)
}

// ServeWS runs the WebSocket carrier on an existing listener.
func (s *Server) ServeWS(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	util.LogSuccess("websocket carrier listening on ws://%s/ws", listener.Addr())

	if err := http.Serve(listener, mux); err != nil {
		select {
		case <-ctx.Done():
			return nil // normal shutdown
		default:
			return err
		}
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	go s.handleConn(newWSConn(conn))
}

// wsConn carries one frame per binary WebSocket message. The message
// boundary replaces the stream framing, but header, checksum, and payload
// layout are identical to the TCP carrier.
type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) session.FrameConn {
	return &wsConn{conn: conn}
}

func (w *wsConn) ReadFrame() (*protocol.Packet, error) {
	msgType, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: non-binary websocket message", protocol.ErrMalformedLength)
	}
	return protocol.Decode(data)
}

func (w *wsConn) WriteFrame(pkt *protocol.Packet) error {
	frame, err := protocol.Encode(pkt)
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsConn) Close() error         { return w.conn.Close() }
func (w *wsConn) LocalAddr() net.Addr  { return w.conn.LocalAddr() }
func (w *wsConn) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }
