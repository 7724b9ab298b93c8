package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for all packet types with various payload sizes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		pkt  *Packet
	}{
		{
			name: "TypeData with command payload",
			pkt:  &Packet{SeqNum: 1, Type: TypeData, Payload: []byte("FIRE B5")},
		},
		{
			name: "TypeChat with text payload",
			pkt:  &Packet{SeqNum: 42, Type: TypeChat, Payload: []byte("[alice] good luck")},
		},
		{
			name: "TypeAck with no payload",
			pkt:  &Packet{SeqNum: 7, Type: TypeAck, Payload: nil},
		},
		{
			name: "TypeNack with empty payload",
			pkt:  &Packet{SeqNum: 8, Type: TypeNack, Payload: []byte{}},
		},
		{
			name: "TypeError with large payload",
			pkt:  &Packet{SeqNum: 0xDEADBEEF, Type: TypeError, Payload: bytes.Repeat([]byte("x"), 4096)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.pkt)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.SeqNum != tc.pkt.SeqNum {
				t.Errorf("SeqNum mismatch: got %d, want %d", decoded.SeqNum, tc.pkt.SeqNum)
			}
			if decoded.Type != tc.pkt.Type {
				t.Errorf("Type mismatch: got %d, want %d", decoded.Type, tc.pkt.Type)
			}
			if !bytes.Equal(decoded.Payload, tc.pkt.Payload) {
				t.Errorf("Payload mismatch: got %q, want %q", decoded.Payload, tc.pkt.Payload)
			}
		})
	}
}

// TestDecodeHeaderMutation verifies that flipping any header byte makes
// Decode fail before the payload content can be trusted.
func TestDecodeHeaderMutation(t *testing.T) {
	pkt := &Packet{SeqNum: 99, Type: TypeData, Payload: []byte("PLACE A1 H")}
	frame, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for i := 0; i < HeaderSize; i++ {
		mutated := make([]byte, len(frame))
		copy(mutated, frame)
		mutated[i] ^= 0xFF

		if _, err := Decode(mutated); err == nil {
			t.Errorf("Decode accepted frame with corrupted header byte %d", i)
		}
	}
}

// TestDecodePayloadCorruption verifies that a flipped payload byte is caught
// by the checksum.
func TestDecodePayloadCorruption(t *testing.T) {
	pkt := &Packet{SeqNum: 3, Type: TypeData, Payload: []byte("FIRE J10")}
	frame, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	frame[HeaderSize] ^= 0x01

	_, err = Decode(frame)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

// TestDecodeMalformedLength verifies that a declared length not matching the
// actual payload size fails with ErrMalformedLength.
func TestDecodeMalformedLength(t *testing.T) {
	pkt := &Packet{SeqNum: 5, Type: TypeData, Payload: []byte("hello")}
	frame, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"shorter than header", frame[:HeaderSize-1]},
		{"payload truncated", frame[:len(frame)-2]},
		{"trailing garbage", append(append([]byte{}, frame...), 0xAA, 0xBB)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if !errors.Is(err, ErrMalformedLength) {
				t.Fatalf("expected ErrMalformedLength, got %v", err)
			}
		})
	}
}

// TestReadPacket verifies exact-length blocking reads from a stream,
// including multiple back-to-back frames.
func TestReadPacket(t *testing.T) {
	var buf bytes.Buffer
	first := &Packet{SeqNum: 1, Type: TypeData, Payload: []byte("USER alice")}
	second := &Packet{SeqNum: 2, Type: TypeChat, Payload: []byte("hi")}
	for _, pkt := range []*Packet{first, second} {
		if err := WritePacket(&buf, pkt); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}

	got1, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if got1.SeqNum != 1 || !bytes.Equal(got1.Payload, first.Payload) {
		t.Errorf("first frame mismatch: %+v", got1)
	}

	got2, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if got2.Type != TypeChat || !bytes.Equal(got2.Payload, second.Payload) {
		t.Errorf("second frame mismatch: %+v", got2)
	}
}

// TestReadPacketConnectionClosed verifies that a zero-byte read surfaces as
// a closed-connection error, never as a decode error.
func TestReadPacketConnectionClosed(t *testing.T) {
	// Empty stream: EOF before any header byte.
	_, err := ReadPacket(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}

	// Stream cut mid-payload: unexpected EOF.
	pkt := &Packet{SeqNum: 9, Type: TypeData, Payload: []byte("FIRE C3")}
	frame, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	_, err = ReadPacket(bytes.NewReader(frame[:len(frame)-3]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF on truncated stream, got %v", err)
	}
}

// TestEncodePayloadTooLarge verifies the uint16 length bound.
func TestEncodePayloadTooLarge(t *testing.T) {
	pkt := &Packet{SeqNum: 1, Type: TypeData, Payload: make([]byte, MaxPayloadSize+1)}
	if _, err := Encode(pkt); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
