// Package wire implements the framing and message codec for the session
// protocol. Every message on the wire is a single frame of the form
// {u8 type, u32 big-endian payload length, payload}; there is no
// fragmentation. The codec itself is pure: Read and Write do I/O, but
// encoding and decoding never touch hidden state.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single message payload. Level file bundles are the
// largest frames; music-heavy packs run tens of megabytes.
const MaxFrameSize = 64 << 20

var (
	// ErrFraming is returned when the stream ends mid-header or
	// mid-payload, or a frame exceeds MaxFrameSize.
	ErrFraming = errors.New("wire: framing error")

	// ErrUnknownType is returned for a type byte outside the legal set.
	ErrUnknownType = errors.New("wire: unknown message type")
)

// Type identifies a message kind on the wire.
type Type uint8

const (
	TypeAuthChallenge        Type = 1
	TypeAuthResponse         Type = 2
	TypeAuthResult           Type = 3
	TypeServerHello          Type = 4
	TypeLivekitToken         Type = 5
	TypeLevelManifestRequest Type = 6
	TypeLevelManifest        Type = 7
	TypeLevelFilesRequest    Type = 8
	TypeLevelFilesData       Type = 9
	TypePositionUpdate       Type = 10
	TypePositionAck          Type = 11
	TypeDoorTransition       Type = 12
	TypeWorldState           Type = 13
	TypePlayerJoined         Type = 14
	TypePlayerLeft           Type = 15
	TypeMuteStatus           Type = 16
	TypePing                 Type = 17
	TypePong                 Type = 18
)

func (t Type) String() string {
	switch t {
	case TypeAuthChallenge:
		return "AUTH_CHALLENGE"
	case TypeAuthResponse:
		return "AUTH_RESPONSE"
	case TypeAuthResult:
		return "AUTH_RESULT"
	case TypeServerHello:
		return "SERVER_HELLO"
	case TypeLivekitToken:
		return "LIVEKIT_TOKEN"
	case TypeLevelManifestRequest:
		return "LEVEL_MANIFEST_REQUEST"
	case TypeLevelManifest:
		return "LEVEL_MANIFEST"
	case TypeLevelFilesRequest:
		return "LEVEL_FILES_REQUEST"
	case TypeLevelFilesData:
		return "LEVEL_FILES_DATA"
	case TypePositionUpdate:
		return "POSITION_UPDATE"
	case TypePositionAck:
		return "POSITION_ACK"
	case TypeDoorTransition:
		return "DOOR_TRANSITION"
	case TypeWorldState:
		return "WORLD_STATE"
	case TypePlayerJoined:
		return "PLAYER_JOINED"
	case TypePlayerLeft:
		return "PLAYER_LEFT"
	case TypeMuteStatus:
		return "MUTE_STATUS"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ResultCode is the outcome of an authentication attempt, carried by
// AuthResult.
type ResultCode uint8

const (
	ResultSuccess          ResultCode = 0
	ResultNameTaken        ResultCode = 1
	ResultKeyMismatch      ResultCode = 2
	ResultInvalidSignature ResultCode = 3
	ResultInvalidName      ResultCode = 4
	ResultAlreadyConnected ResultCode = 5
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "SUCCESS"
	case ResultNameTaken:
		return "NAME_TAKEN"
	case ResultKeyMismatch:
		return "KEY_MISMATCH"
	case ResultInvalidSignature:
		return "INVALID_SIGNATURE"
	case ResultInvalidName:
		return "INVALID_NAME"
	case ResultAlreadyConnected:
		return "ALREADY_CONNECTED"
	}
	return fmt.Sprintf("ResultCode(%d)", uint8(c))
}

// Message is one decoded protocol message.
type Message interface {
	Type() Type
	encode(b *bytes.Buffer)
}

// Encode serialises m into a complete frame.
func Encode(m Message) []byte {
	var payload bytes.Buffer
	m.encode(&payload)

	b := make([]byte, 5, 5+payload.Len())
	b[0] = byte(m.Type())
	binary.BigEndian.PutUint32(b[1:5], uint32(payload.Len()))
	return append(b, payload.Bytes()...)
}

// Decode parses a complete frame from b. It fails if b contains anything
// other than exactly one frame.
func Decode(b []byte) (Message, error) {
	if len(b) < 5 {
		return nil, fmt.Errorf("%w: short frame header", ErrFraming)
	}
	t, n := Type(b[0]), binary.BigEndian.Uint32(b[1:5])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds maximum", ErrFraming, n)
	}
	if uint32(len(b)-5) != n {
		return nil, fmt.Errorf("%w: frame length %d does not match payload of %d bytes", ErrFraming, n, len(b)-5)
	}
	return decodePayload(t, b[5:])
}

// Read reads and decodes a single frame from r. A clean EOF before the
// first header byte is reported as io.EOF; a stream that ends anywhere
// else within a frame is a framing error.
func Read(r io.Reader) (Message, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: read header: %w", ErrFraming, err)
	}
	t, n := Type(hdr[0]), binary.BigEndian.Uint32(hdr[1:5])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds maximum", ErrFraming, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %w", ErrFraming, err)
	}
	return decodePayload(t, payload)
}

// Write encodes m and writes it to w as a single Write call so that frames
// from a writer guarded by a mutex never interleave.
func Write(w io.Writer, m Message) error {
	if _, err := w.Write(Encode(m)); err != nil {
		return fmt.Errorf("write %s: %w", m.Type(), err)
	}
	return nil
}
