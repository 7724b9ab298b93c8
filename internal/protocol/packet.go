// Package protocol defines the framed packet format exchanged between the
// Broadside server and its clients.
package protocol

// Packet type constants.
const (
	TypeData  uint8 = 0 // Application text (commands, prompts, results)
	TypeAck   uint8 = 1 // Acknowledgment
	TypeNack  uint8 = 2 // Negative acknowledgment (request retransmission)
	TypeError uint8 = 3 // Error notification
	TypeChat  uint8 = 4 // Chat line, fanned out to all other live sessions
)

// HeaderSize is the fixed header size:
// SeqNum(4) + Type(1) + Length(2) + Checksum(4).
const HeaderSize = 11

// MaxPayloadSize is the largest payload a single frame can declare
// (Length is a uint16).
const MaxPayloadSize = 0xFFFF

// Packet represents one frame on the wire. The checksum is computed during
// encoding and verified during decoding; it is never carried here.
type Packet struct {
	SeqNum  uint32 // Per-session sequence number
	Type    uint8  // One of the Type* constants
	Payload []byte // Application payload, at most MaxPayloadSize bytes
}

// Text returns the payload as a string.
func (p *Packet) Text() string {
	return string(p.Payload)
}
