package session

import (
	"bufio"
	"net"

	"github.com/salvora/broadside/internal/protocol"
)

// FrameConn abstracts the transport carrying frames. The primary
// implementation wraps a TCP stream; the server also provides a WebSocket
// carrier where each binary message holds exactly one frame.
type FrameConn interface {
	// ReadFrame blocks until one complete frame is read. A closed
	// connection surfaces as an I/O error, a corrupt frame as a decode
	// error from the protocol package.
	ReadFrame() (*protocol.Packet, error)

	// WriteFrame writes one complete frame. Callers must serialize writes;
	// Session does so under its send lock.
	WriteFrame(*protocol.Packet) error

	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// streamConn frames packets over a byte-stream connection using
// exact-length reads.
type streamConn struct {
	conn net.Conn
	br   *bufio.Reader
}

// NewStreamConn wraps a byte-stream connection (typically TCP) as a
// FrameConn.
func NewStreamConn(conn net.Conn) FrameConn {
	return &streamConn{conn: conn, br: bufio.NewReader(conn)}
}

func (s *streamConn) ReadFrame() (*protocol.Packet, error) {
	return protocol.ReadPacket(s.br)
}

func (s *streamConn) WriteFrame(pkt *protocol.Packet) error {
	return protocol.WritePacket(s.conn, pkt)
}

func (s *streamConn) Close() error        { return s.conn.Close() }
func (s *streamConn) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *streamConn) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}
