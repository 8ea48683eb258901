package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	nonce := [32]byte{0x01, 0x02, 0x03, 31: 0xFF}
	var pub [32]byte
	var sig [64]byte
	for i := range pub {
		pub[i] = byte(i)
	}
	for i := range sig {
		sig[i] = byte(255 - i)
	}

	tests := []struct {
		name string
		msg  Message
	}{
		{"auth challenge", &AuthChallenge{Nonce: nonce}},
		{"auth response", &AuthResponse{PublicKey: pub, Name: "alice", Signature: sig}},
		{"auth response utf8 name", &AuthResponse{PublicKey: pub, Name: "日本語", Signature: sig}},
		{"auth result success", &AuthResult{Result: ResultSuccess}},
		{"auth result name taken", &AuthResult{Result: ResultNameTaken}},
		{"server hello", &ServerHello{
			PlayerID: 1, Width: 40, Height: 20, X: 5, Y: 7,
			Grid:      bytes.Repeat([]byte("#."), 400),
			LevelName: "main",
		}},
		{"livekit token", &LivekitToken{URL: "wss://sfu.example.com", Token: "eyJhbGciOiJIUzI1NiJ9.x.y"}},
		{"manifest request", &LevelManifestRequest{LevelName: "dungeon"}},
		{"manifest empty", &LevelManifest{}},
		{"manifest", &LevelManifest{Entries: []ManifestEntry{
			{Filename: "level.txt", Hash: "aa11", Size: 120},
			{Filename: "tiles.json", Hash: "bb22", Size: 4096},
		}}},
		{"files request", &LevelFilesRequest{LevelName: "dungeon", Filenames: []string{"level.json", "sounds/drip.ogg"}}},
		{"files data", &LevelFilesData{Files: []FileEntry{
			{Filename: "level.json", Data: []byte(`{"doors":{}}`)},
			{Filename: "empty.txt", Data: []byte{}},
		}}},
		{"position update", &PositionUpdate{Seq: 7, X: 6, Y: 5}},
		{"position ack", &PositionAck{Seq: 7, X: 5, Y: 5}},
		{"door transition", &DoorTransition{LevelName: "dungeon", SpawnX: 3, SpawnY: 4}},
		{"world state empty", &WorldState{}},
		{"world state", &WorldState{Players: []PlayerState{
			{PlayerID: 1, X: 5, Y: 5, Muted: false, Name: "alice", LevelName: "main", PingMillis: 23},
			{PlayerID: 2, X: 2, Y: 2, Muted: true, Name: "bob", LevelName: "dungeon", PingMillis: 140},
		}}},
		{"player joined", &PlayerJoined{PlayerID: 3, Name: "carol"}},
		{"player left", &PlayerLeft{PlayerID: 3}},
		{"mute on", &MuteStatus{Muted: true}},
		{"mute off", &MuteStatus{Muted: false}},
		{"ping", &Ping{}},
		{"pong", &Pong{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Encode(tt.msg)
			if Type(b[0]) != tt.msg.Type() {
				t.Errorf("frame type = %d, want %d", b[0], tt.msg.Type())
			}
			if n := binary.BigEndian.Uint32(b[1:5]); int(n) != len(b)-5 {
				t.Errorf("frame length = %d, want %d", n, len(b)-5)
			}

			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("Decode = %#v, want %#v", got, tt.msg)
			}

			// Read must produce the same result from a stream.
			got, err = Read(bytes.NewReader(b))
			if err != nil {
				t.Fatalf("Read error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("Read = %#v, want %#v", got, tt.msg)
			}
		})
	}
}

func TestReadSequence(t *testing.T) {
	var buf bytes.Buffer
	msgs := []Message{
		&Ping{},
		&PositionUpdate{Seq: 1, X: 1, Y: 1},
		&Pong{},
	}
	for _, m := range msgs {
		if err := Write(&buf, m); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	for i, want := range msgs {
		got, err := Read(&buf)
		if err != nil {
			t.Fatalf("Read %d error: %v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Read %d = %#v, want %#v", i, got, want)
		}
	}
	if _, err := Read(&buf); err != io.EOF {
		t.Errorf("Read past end = %v, want io.EOF", err)
	}
}

func TestReadFramingErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", []byte{byte(TypePing), 0x00}, ErrFraming},
		{"short payload", []byte{byte(TypePositionUpdate), 0x00, 0x00, 0x00, 0x08, 0x01}, ErrFraming},
		{"oversized frame", []byte{byte(TypeLevelFilesData), 0xFF, 0xFF, 0xFF, 0xFF}, ErrFraming},
		{"unknown type", append([]byte{0x7F}, make([]byte, 4)...), ErrUnknownType},
		{"zero type", append([]byte{0x00}, make([]byte, 4)...), ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(bytes.NewReader(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("Read = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	b := Encode(&PlayerLeft{PlayerID: 9})
	// Grow the payload without updating the message body.
	b = append(b, 0xAB)
	binary.BigEndian.PutUint32(b[1:5], uint32(len(b)-5))
	if _, err := Decode(b); !errors.Is(err, ErrFraming) {
		t.Errorf("Decode = %v, want %v", err, ErrFraming)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	b := Encode(&ServerHello{PlayerID: 1, Width: 3, Height: 3, Grid: []byte("#.#"), LevelName: "main"})
	// Drop the level name but keep the header honest.
	b = b[:len(b)-4]
	binary.BigEndian.PutUint32(b[1:5], uint32(len(b)-5))
	if _, err := Decode(b); !errors.Is(err, ErrFraming) {
		t.Errorf("Decode = %v, want %v", err, ErrFraming)
	}
}
