package wire

import (
	"bytes"
	"crypto/ed25519"
)

// NonceSize is the length of the random challenge sent on connect.
const NonceSize = 32

// AuthChallenge is sent by the server immediately after accept.
type AuthChallenge struct {
	Nonce [NonceSize]byte
}

func (*AuthChallenge) Type() Type { return TypeAuthChallenge }

func (m *AuthChallenge) encode(b *bytes.Buffer) {
	b.Write(m.Nonce[:])
}

// AuthResponse carries the client's identity and its signature over
// nonce || name.
type AuthResponse struct {
	PublicKey [ed25519.PublicKeySize]byte
	Name      string
	Signature [ed25519.SignatureSize]byte
}

func (*AuthResponse) Type() Type { return TypeAuthResponse }

func (m *AuthResponse) encode(b *bytes.Buffer) {
	b.Write(m.PublicKey[:])
	writeString(b, m.Name)
	b.Write(m.Signature[:])
}

// AuthResult reports the outcome of the handshake.
type AuthResult struct {
	Result ResultCode
}

func (*AuthResult) Type() Type { return TypeAuthResult }

func (m *AuthResult) encode(b *bytes.Buffer) {
	b.WriteByte(byte(m.Result))
}

// ServerHello delivers the player's id, spawn position, and the raw grid
// of the spawn level.
type ServerHello struct {
	PlayerID  uint32
	Width     uint16
	Height    uint16
	X         uint16
	Y         uint16
	Grid      []byte
	LevelName string
}

func (*ServerHello) Type() Type { return TypeServerHello }

func (m *ServerHello) encode(b *bytes.Buffer) {
	writeUint32(b, m.PlayerID)
	writeUint16(b, m.Width)
	writeUint16(b, m.Height)
	writeUint16(b, m.X)
	writeUint16(b, m.Y)
	writeBlob(b, m.Grid)
	writeString(b, m.LevelName)
}

// LivekitToken delivers the SFU URL and a join token for it.
type LivekitToken struct {
	URL   string
	Token string
}

func (*LivekitToken) Type() Type { return TypeLivekitToken }

func (m *LivekitToken) encode(b *bytes.Buffer) {
	writeString(b, m.URL)
	writeString(b, m.Token)
}

// LevelManifestRequest asks for the manifest of one level.
type LevelManifestRequest struct {
	LevelName string
}

func (*LevelManifestRequest) Type() Type { return TypeLevelManifestRequest }

func (m *LevelManifestRequest) encode(b *bytes.Buffer) {
	writeString(b, m.LevelName)
}

// ManifestEntry describes one level file by name, content hash
// (sha256, lower hex) and size.
type ManifestEntry struct {
	Filename string
	Hash     string
	Size     uint32
}

// LevelManifest lists every file of a level. An unknown level yields an
// empty manifest.
type LevelManifest struct {
	Entries []ManifestEntry
}

func (*LevelManifest) Type() Type { return TypeLevelManifest }

func (m *LevelManifest) encode(b *bytes.Buffer) {
	writeUint32(b, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		writeString(b, e.Filename)
		writeString(b, e.Hash)
		writeUint32(b, e.Size)
	}
}

// LevelFilesRequest asks for the contents of specific level files.
type LevelFilesRequest struct {
	LevelName string
	Filenames []string
}

func (*LevelFilesRequest) Type() Type { return TypeLevelFilesRequest }

func (m *LevelFilesRequest) encode(b *bytes.Buffer) {
	writeString(b, m.LevelName)
	writeUint32(b, uint32(len(m.Filenames)))
	for _, f := range m.Filenames {
		writeString(b, f)
	}
}

// FileEntry is one level file with its verbatim contents.
type FileEntry struct {
	Filename string
	Data     []byte
}

// LevelFilesData answers a LevelFilesRequest. Requested files that do not
// exist are omitted.
type LevelFilesData struct {
	Files []FileEntry
}

func (*LevelFilesData) Type() Type { return TypeLevelFilesData }

func (m *LevelFilesData) encode(b *bytes.Buffer) {
	writeUint32(b, uint32(len(m.Files)))
	for _, f := range m.Files {
		writeString(b, f.Filename)
		writeBlob(b, f.Data)
	}
}

// PositionUpdate is a client's sequence-numbered movement intent.
type PositionUpdate struct {
	Seq uint32
	X   uint16
	Y   uint16
}

func (*PositionUpdate) Type() Type { return TypePositionUpdate }

func (m *PositionUpdate) encode(b *bytes.Buffer) {
	writeUint32(b, m.Seq)
	writeUint16(b, m.X)
	writeUint16(b, m.Y)
}

// PositionAck acknowledges a PositionUpdate with the authoritative
// post-commit position.
type PositionAck struct {
	Seq uint32
	X   uint16
	Y   uint16
}

func (*PositionAck) Type() Type { return TypePositionAck }

func (m *PositionAck) encode(b *bytes.Buffer) {
	writeUint32(b, m.Seq)
	writeUint16(b, m.X)
	writeUint16(b, m.Y)
}

// DoorTransition moves the receiving player to another level.
type DoorTransition struct {
	LevelName string
	SpawnX    uint16
	SpawnY    uint16
}

func (*DoorTransition) Type() Type { return TypeDoorTransition }

func (m *DoorTransition) encode(b *bytes.Buffer) {
	writeString(b, m.LevelName)
	writeUint16(b, m.SpawnX)
	writeUint16(b, m.SpawnY)
}

// PlayerState is one live player's entry in a WorldState snapshot.
type PlayerState struct {
	PlayerID   uint32
	X          uint16
	Y          uint16
	Muted      bool
	Name       string
	LevelName  string
	PingMillis uint16
}

// WorldState is a snapshot of every live player.
type WorldState struct {
	Players []PlayerState
}

func (*WorldState) Type() Type { return TypeWorldState }

func (m *WorldState) encode(b *bytes.Buffer) {
	writeUint32(b, uint32(len(m.Players)))
	for _, p := range m.Players {
		writeUint32(b, p.PlayerID)
		writeUint16(b, p.X)
		writeUint16(b, p.Y)
		writeBool(b, p.Muted)
		writeString(b, p.Name)
		writeString(b, p.LevelName)
		writeUint16(b, p.PingMillis)
	}
}

// PlayerJoined announces a new player to everyone else.
type PlayerJoined struct {
	PlayerID uint32
	Name     string
}

func (*PlayerJoined) Type() Type { return TypePlayerJoined }

func (m *PlayerJoined) encode(b *bytes.Buffer) {
	writeUint32(b, m.PlayerID)
	writeString(b, m.Name)
}

// PlayerLeft announces a disconnect to everyone.
type PlayerLeft struct {
	PlayerID uint32
}

func (*PlayerLeft) Type() Type { return TypePlayerLeft }

func (m *PlayerLeft) encode(b *bytes.Buffer) {
	writeUint32(b, m.PlayerID)
}

// MuteStatus toggles the sender's mute flag.
type MuteStatus struct {
	Muted bool
}

func (*MuteStatus) Type() Type { return TypeMuteStatus }

func (m *MuteStatus) encode(b *bytes.Buffer) {
	writeBool(b, m.Muted)
}

// Ping is the server's keep-alive probe.
type Ping struct{}

func (*Ping) Type() Type { return TypePing }

func (*Ping) encode(*bytes.Buffer) {}

// Pong answers a Ping.
type Pong struct{}

func (*Pong) Type() Type { return TypePong }

func (*Pong) encode(*bytes.Buffer) {}

func decodePayload(t Type, payload []byte) (Message, error) {
	r := &payloadReader{b: payload}
	var m Message
	switch t {
	case TypeAuthChallenge:
		v := &AuthChallenge{}
		copy(v.Nonce[:], r.take(NonceSize, "nonce"))
		m = v
	case TypeAuthResponse:
		v := &AuthResponse{}
		copy(v.PublicKey[:], r.take(ed25519.PublicKeySize, "public key"))
		v.Name = r.string("name")
		copy(v.Signature[:], r.take(ed25519.SignatureSize, "signature"))
		m = v
	case TypeAuthResult:
		m = &AuthResult{Result: ResultCode(r.uint8("result"))}
	case TypeServerHello:
		v := &ServerHello{}
		v.PlayerID = r.uint32("player id")
		v.Width = r.uint16("width")
		v.Height = r.uint16("height")
		v.X = r.uint16("x")
		v.Y = r.uint16("y")
		v.Grid = r.blob("grid")
		v.LevelName = r.string("level name")
		m = v
	case TypeLivekitToken:
		v := &LivekitToken{}
		v.URL = r.string("url")
		v.Token = r.string("token")
		m = v
	case TypeLevelManifestRequest:
		m = &LevelManifestRequest{LevelName: r.string("level name")}
	case TypeLevelManifest:
		v := &LevelManifest{}
		n := r.uint32("count")
		for i := uint32(0); i < n && r.err == nil; i++ {
			var e ManifestEntry
			e.Filename = r.string("filename")
			e.Hash = r.string("hash")
			e.Size = r.uint32("size")
			v.Entries = append(v.Entries, e)
		}
		m = v
	case TypeLevelFilesRequest:
		v := &LevelFilesRequest{}
		v.LevelName = r.string("level name")
		n := r.uint32("count")
		for i := uint32(0); i < n && r.err == nil; i++ {
			v.Filenames = append(v.Filenames, r.string("filename"))
		}
		m = v
	case TypeLevelFilesData:
		v := &LevelFilesData{}
		n := r.uint32("count")
		for i := uint32(0); i < n && r.err == nil; i++ {
			var f FileEntry
			f.Filename = r.string("filename")
			f.Data = r.blob("contents")
			v.Files = append(v.Files, f)
		}
		m = v
	case TypePositionUpdate:
		v := &PositionUpdate{}
		v.Seq = r.uint32("seq")
		v.X = r.uint16("x")
		v.Y = r.uint16("y")
		m = v
	case TypePositionAck:
		v := &PositionAck{}
		v.Seq = r.uint32("seq")
		v.X = r.uint16("x")
		v.Y = r.uint16("y")
		m = v
	case TypeDoorTransition:
		v := &DoorTransition{}
		v.LevelName = r.string("level name")
		v.SpawnX = r.uint16("spawn x")
		v.SpawnY = r.uint16("spawn y")
		m = v
	case TypeWorldState:
		v := &WorldState{}
		n := r.uint32("count")
		for i := uint32(0); i < n && r.err == nil; i++ {
			var p PlayerState
			p.PlayerID = r.uint32("player id")
			p.X = r.uint16("x")
			p.Y = r.uint16("y")
			p.Muted = r.bool("muted")
			p.Name = r.string("name")
			p.LevelName = r.string("level name")
			p.PingMillis = r.uint16("ping")
			v.Players = append(v.Players, p)
		}
		m = v
	case TypePlayerJoined:
		v := &PlayerJoined{}
		v.PlayerID = r.uint32("player id")
		v.Name = r.string("name")
		m = v
	case TypePlayerLeft:
		m = &PlayerLeft{PlayerID: r.uint32("player id")}
	case TypeMuteStatus:
		m = &MuteStatus{Muted: r.bool("muted")}
	case TypePing:
		m = &Ping{}
	case TypePong:
		m = &Pong{}
	default:
		return nil, ErrUnknownType
	}
	if err := r.finish(t); err != nil {
		return nil, err
	}
	return m, nil
}
