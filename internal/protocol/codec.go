package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Framing errors. Both are non-fatal for the connection: the caller decides
// whether to drop the frame, reply with a NACK, or close.
var (
	// ErrMalformedLength is returned when the declared payload length does
	// not match the number of payload bytes present.
	ErrMalformedLength = errors.New("declared payload length mismatch")

	// ErrChecksumMismatch is returned when the CRC-32 recomputed over the
	// received frame differs from the transmitted checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrPayloadTooLarge is returned by Encode when the payload exceeds
	// MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum frame size")
)

// checksum computes the CRC-32 (IEEE) over the header-without-checksum
// followed by the payload.
func checksum(seq uint32, ptype uint8, payload []byte) uint32 {
	var hdr [7]byte
	binary.BigEndian.PutUint32(hdr[0:4], seq)
	hdr[4] = ptype
	binary.BigEndian.PutUint16(hdr[5:7], uint16(len(payload)))
	crc := crc32.ChecksumIEEE(hdr[:])
	return crc32.Update(crc, crc32.IEEETable, payload)
}

// Encode serializes a Packet into a frame: an 11-byte big-endian header
// (seq, type, length, checksum) followed by the payload.
func Encode(pkt *Packet) ([]byte, error) {
	if len(pkt.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(pkt.Payload))
	binary.BigEndian.PutUint32(buf[0:4], pkt.SeqNum)
	buf[4] = pkt.Type
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(pkt.Payload)))
	binary.BigEndian.PutUint32(buf[7:11], checksum(pkt.SeqNum, pkt.Type, pkt.Payload))
	copy(buf[HeaderSize:], pkt.Payload)
	return buf, nil
}

// Decode deserializes a complete frame into a Packet. It validates the
// declared length against the actual payload size before trusting any
// payload content, then verifies the checksum.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrMalformedLength, len(data))
	}
	declared := binary.BigEndian.Uint16(data[5:7])
	if int(declared) != len(data)-HeaderSize {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrMalformedLength, declared, len(data)-HeaderSize)
	}
	pkt := &Packet{
		SeqNum: binary.BigEndian.Uint32(data[0:4]),
		Type:   data[4],
	}
	if declared > 0 {
		pkt.Payload = make([]byte, declared)
		copy(pkt.Payload, data[HeaderSize:])
	}
	transmitted := binary.BigEndian.Uint32(data[7:11])
	if transmitted != checksum(pkt.SeqNum, pkt.Type, pkt.Payload) {
		return nil, ErrChecksumMismatch
	}
	return pkt, nil
}

// ReadPacket reads exactly one frame from r: first the 11-byte header, then
// the declared number of payload bytes. A zero-byte read at any point is a
// connection-closed condition (io.EOF or io.ErrUnexpectedEOF), never a
// decode error.
func ReadPacket(r io.Reader) (*Packet, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	declared := binary.BigEndian.Uint16(header[5:7])
	frame := header
	if declared > 0 {
		frame = make([]byte, HeaderSize+int(declared))
		copy(frame, header)
		if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
			return nil, err
		}
	}
	return Decode(frame)
}

// WritePacket encodes pkt and writes the full frame to w.
func WritePacket(w io.Writer, pkt *Packet) error {
	frame, err := Encode(pkt)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
