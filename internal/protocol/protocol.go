package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	headerSize       = 2
	maxReasonSize    = 123              // control frame payload limit minus the code
	MaxPayloadSize   = 10 * 1024 * 1024 // 10MB max payload size
	noStatusReceived = 1005
)

// FrameKind is the kind of a WebSocket frame.
type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
	PingFrame
	PongFrame
	CloseFrame
)

func (k FrameKind) String() string {
	switch k {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	case PingFrame:
		return "ping"
	case PongFrame:
		return "pong"
	case CloseFrame:
		return "close"
	default:
		return "unknown"
	}
}

// IsControl reports whether k is a control frame kind.
func (k FrameKind) IsControl() bool {
	return k == PingFrame || k == PongFrame || k == CloseFrame
}

// CheckPayload rejects payloads that are too large for the frame kind.
func CheckPayload(kind FrameKind, payload []byte) error {
	limit := MaxPayloadSize
	if kind.IsControl() {
		limit = 125
	}
	if len(payload) > limit {
		return fmt.Errorf("%s payload size %d exceeds maximum %d bytes", kind, len(payload), limit)
	}
	return nil
}

// EncodeClose encodes a close frame payload: the code as the first 2 bytes
// (big-endian) followed by the reason. Reasons longer than 123 bytes are
// truncated at a rune boundary.
func EncodeClose(code int, reason string) ([]byte, error) {
	if code < 1000 || code > 4999 {
		return nil, fmt.Errorf("invalid close code %d", code)
	}
	if code == noStatusReceived {
		return []byte{}, nil
	}
	reason = truncate(reason, maxReasonSize)

	out := make([]byte, headerSize+len(reason))
	binary.BigEndian.PutUint16(out[:headerSize], uint16(code))
	copy(out[headerSize:], reason)
	return out, nil
}

// DecodeClose decodes a close frame payload. An empty payload means no
// status code was sent.
func DecodeClose(data []byte) (int, string, error) {
	if len(data) == 0 {
		return noStatusReceived, "", nil
	}
	if len(data) < headerSize {
		return 0, "", errors.New("data too short")
	}
	if len(data)-headerSize > maxReasonSize {
		return 0, "", fmt.Errorf("close reason size %d exceeds maximum %d bytes", len(data)-headerSize, maxReasonSize)
	}

	code := int(binary.BigEndian.Uint16(data[:headerSize]))
	reason := data[headerSize:]
	if !utf8.Valid(reason) {
		return 0, "", errors.New("close reason is not valid UTF-8")
	}
	return code, string(reason), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
