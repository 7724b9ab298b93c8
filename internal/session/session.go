// Package session owns one client connection: a reader goroutine that
// decodes and routes inbound frames, an inbound FIFO consumed by the match
// orchestrator, and the outgoing sequence state.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salvora/broadside/internal/protocol"
	"github.com/salvora/broadside/internal/util"
)

var (
	// ErrPeerUnreachable is returned by Send on a broken connection. It is
	// equivalent to the peer quitting.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrConnectionLost is returned by Receive after the reader observed a
	// read failure or close on this session's connection.
	ErrConnectionLost = errors.New("connection lost")

	// ErrReceiveTimeout is returned by Receive when the wait elapses before
	// a line arrives.
	ErrReceiveTimeout = errors.New("receive timed out")
)

// inboxSize bounds the inbound FIFO. The orchestrator consumes promptly;
// a client flooding past this simply blocks its own reader.
const inboxSize = 64

type inboxItem struct {
	line string
	lost bool
}

// Session binds one live connection to its protocol state. All sends are
// serialized under one lock so concurrent call sites (chat fan-out vs. the
// orchestrator) never interleave frames or duplicate sequence numbers.
type Session struct {
	ID   uint32
	conn FrameConn

	mu          sync.Mutex // guards seq, lastPeerSeq, username; serializes writes
	seq         uint32     // monotonic outgoing counter
	lastPeerSeq uint32     // last sequence number observed from the peer
	username    string

	inbox     chan inboxItem
	done      chan struct{} // closed by Close; unblocks a stuck reader push
	lost      chan struct{} // closed once the loss sentinel has been consumed
	lostFlag  atomic.Bool
	lostOnce  sync.Once
	closeOnce sync.Once
}

// New creates a Session around conn. Call Start to begin reading.
func New(conn FrameConn) *Session {
	return &Session{
		ID:    util.SessionIDFromAddrs(conn.LocalAddr(), conn.RemoteAddr()),
		conn:  conn,
		inbox: make(chan inboxItem, inboxSize),
		done:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
}

// SetUsername records the identity claimed in the join handshake.
func (s *Session) SetUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// Username returns the claimed identity, or "" before the handshake.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Start launches the reader goroutine. CHAT payloads are handed to onChat
// immediately; DATA payloads go to the inbound FIFO. On any read failure
// (close, I/O error, or a decode error treated as a protocol violation) the
// reader pushes a one-time loss sentinel and stops, so a blocked consumer
// wakes exactly once.
func (s *Session) Start(onChat func(from *Session, text string)) {
	go s.readLoop(onChat)
}

func (s *Session) readLoop(onChat func(*Session, string)) {
	for {
		pkt, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrChecksumMismatch) || errors.Is(err, protocol.ErrMalformedLength) {
				util.LogWarning("[%08x] protocol violation, closing: %v", s.ID, err)
			} else {
				util.LogDebug("[%08x] read ended: %v", s.ID, err)
			}
			s.pushLost()
			return
		}
		util.Stats.AddRecv()

		s.mu.Lock()
		s.lastPeerSeq = pkt.SeqNum
		s.mu.Unlock()

		switch pkt.Type {
		case protocol.TypeChat:
			if onChat != nil {
				onChat(s, pkt.Text())
			}
		case protocol.TypeData:
			select {
			case s.inbox <- inboxItem{line: pkt.Text()}:
			case <-s.done:
				return
			}
		default:
			util.LogDebug("[%08x] ignoring frame type %d", s.ID, pkt.Type)
		}
	}
}

// Alive reports whether the reader is still running, i.e. no read failure
// or close has been observed on this connection.
func (s *Session) Alive() bool {
	return !s.lostFlag.Load()
}

func (s *Session) pushLost() {
	s.lostFlag.Store(true)
	s.lostOnce.Do(func() {
		select {
		case s.inbox <- inboxItem{lost: true}:
		case <-s.done:
			close(s.lost)
		}
	})
}

// Send writes a DATA frame with the next outgoing sequence number.
func (s *Session) Send(text string) error {
	return s.SendType(protocol.TypeData, text, false)
}

// SendPrompt writes a DATA frame that reuses the peer's last sequence
// number, pairing the prompt with the message it answers.
func (s *Session) SendPrompt(text string) error {
	return s.SendType(protocol.TypeData, text, true)
}

// SendType writes one frame of the given type. useEchoSequence reuses the
// last sequence number observed from the peer instead of advancing the
// counter. A write failure maps to ErrPeerUnreachable.
func (s *Session) SendType(ptype uint8, text string, useEchoSequence bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq uint32
	if useEchoSequence {
		seq = s.lastPeerSeq
	} else {
		s.seq++
		seq = s.seq
	}

	pkt := &protocol.Packet{SeqNum: seq, Type: ptype, Payload: []byte(text)}
	if err := s.conn.WriteFrame(pkt); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}
	util.Stats.AddSent()
	return nil
}

// Receive blocks for the next DATA line, up to timeout. Exactly one of
// three things happens: a line arrives in time, the timeout elapses first
// (ErrReceiveTimeout), or the loss sentinel arrives (ErrConnectionLost).
// Once the timeout is observed it wins; any input already queued is
// discarded so a late line is never replayed as the next turn's move.
func (s *Session) Receive(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-s.inbox:
		if item.lost {
			close(s.lost)
			return "", ErrConnectionLost
		}
		return item.line, nil
	case <-s.lost:
		return "", ErrConnectionLost
	case <-timer.C:
		s.Drain()
		return "", ErrReceiveTimeout
	}
}

// Drain discards everything currently queued in the inbound FIFO. If the
// loss sentinel is among the discarded items its condition is preserved for
// the next Receive.
func (s *Session) Drain() {
	for {
		select {
		case item := <-s.inbox:
			if item.lost {
				close(s.lost)
			}
		default:
			return
		}
	}
}

// Close tears the session down: the connection is closed (which stops the
// reader) and any reader blocked on a full inbox is released. Safe to call
// multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		util.Stats.RemoveSession()
	})
}
