package gameclient

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roguetalk/roguetalk/pkg/wire"
)

const testGrid = "" +
	"########\n" +
	"#......#\n" +
	"#......#\n" +
	"########"

const dungeonGrid = "" +
	"######\n" +
	"#....#\n" +
	"#....#\n" +
	"######"

// script runs a hand-rolled server side for one connection.
func script(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()
	return ln.Addr().String()
}

// serverHandshake plays the server's half of the handshake, verifying
// the client's signature, and leaves the session in the running state
// with an empty manifest answered and the token sent.
func serverHandshake(t *testing.T, conn net.Conn) {
	t.Helper()
	challenge := &wire.AuthChallenge{}
	copy(challenge.Nonce[:], []byte("0123456789abcdef0123456789abcdef"))
	if err := wire.Write(conn, challenge); err != nil {
		t.Error(err)
		return
	}
	m, err := wire.Read(conn)
	if err != nil {
		t.Error(err)
		return
	}
	resp := m.(*wire.AuthResponse)
	signed := append(append([]byte{}, challenge.Nonce[:]...), resp.Name...)
	if !ed25519.Verify(resp.PublicKey[:], signed, resp.Signature[:]) {
		t.Error("client signature did not verify")
	}
	wire.Write(conn, &wire.AuthResult{Result: wire.ResultSuccess})
	wire.Write(conn, &wire.ServerHello{
		PlayerID:  1,
		Width:     8,
		Height:    4,
		X:         1,
		Y:         1,
		Grid:      []byte(testGrid),
		LevelName: "main",
	})

	// Token before the manifest reply: the client must buffer it.
	wire.Write(conn, &wire.LivekitToken{URL: "wss://sfu.test", Token: "tok"})
	if m, err := wire.Read(conn); err != nil {
		t.Error(err)
		return
	} else if req := m.(*wire.LevelManifestRequest); req.LevelName != "main" {
		t.Errorf("manifest request for %q, want main", req.LevelName)
	}
	wire.Write(conn, &wire.LevelManifest{})
}

func newClient(t *testing.T, addr string) *Client {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	c := &Client{
		Addr:   addr,
		Name:   "alice",
		Key:    priv,
		Cache:  NewCache(t.TempDir()),
		Logger: zerolog.Nop(),
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnect(t *testing.T) {
	done := make(chan struct{})
	addr := script(t, func(conn net.Conn) {
		defer close(done)
		serverHandshake(t, conn)
	})

	c := newClient(t, addr)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	<-done

	if c.PlayerID() != 1 {
		t.Errorf("player id = %d, want 1", c.PlayerID())
	}
	x, y, lvl := c.Position()
	if x != 1 || y != 1 || lvl != "main" {
		t.Errorf("position = (%d,%d) on %s, want (1,1) on main", x, y, lvl)
	}
	if url, tok := c.SFU(); url != "wss://sfu.test" || tok != "tok" {
		t.Errorf("sfu = %q %q", url, tok)
	}
	// The fallback grid from SERVER_HELLO is in effect.
	if !c.Level().IsWalkable(2, 1) || c.Level().IsWalkable(0, 0) {
		t.Error("level walkability wrong")
	}
}

func TestConnectRejected(t *testing.T) {
	addr := script(t, func(conn net.Conn) {
		challenge := &wire.AuthChallenge{}
		wire.Write(conn, challenge)
		wire.Read(conn)
		wire.Write(conn, &wire.AuthResult{Result: wire.ResultNameTaken})
	})

	c := newClient(t, addr)
	err := c.Connect(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Code != wire.ResultNameTaken {
		t.Fatalf("err = %v, want AuthError(NAME_TAKEN)", err)
	}
}

// connected builds a client session with the scripted handler taking
// over after the handshake, and the Run loop started.
func connected(t *testing.T, steady func(conn net.Conn)) *Client {
	t.Helper()
	ready := make(chan struct{})
	addr := script(t, func(conn net.Conn) {
		serverHandshake(t, conn)
		close(ready)
		steady(conn)
	})
	c := newClient(t, addr)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	<-ready
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c
}

func TestMovePrediction(t *testing.T) {
	updates := make(chan *wire.PositionUpdate, 4)
	c := connected(t, func(conn net.Conn) {
		for {
			m, err := wire.Read(conn)
			if err != nil {
				return
			}
			if up, ok := m.(*wire.PositionUpdate); ok {
				updates <- up
				wire.Write(conn, &wire.PositionAck{Seq: up.Seq, X: up.X, Y: up.Y})
			}
		}
	})

	ok, err := c.Move(1, 0)
	if err != nil || !ok {
		t.Fatalf("move = %v, %v", ok, err)
	}
	// Prediction applies before any ack.
	if x, y, _ := c.Position(); x != 2 || y != 1 {
		t.Errorf("predicted position = (%d,%d), want (2,1)", x, y)
	}
	up := <-updates
	if up.Seq != 1 || up.X != 2 || up.Y != 1 {
		t.Errorf("update = %+v", up)
	}
	waitFor(t, "pending drain", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 0
	})
	if x, y, _ := c.Position(); x != 2 || y != 1 {
		t.Errorf("acked position = (%d,%d), want (2,1)", x, y)
	}

	// A wall fails the local check and sends nothing.
	if ok, err := c.Move(0, -1); ok || err != nil {
		t.Errorf("move into wall = %v, %v", ok, err)
	}
	select {
	case up := <-updates:
		t.Errorf("unexpected update %+v", up)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRollbackOnRejection(t *testing.T) {
	c := connected(t, func(conn net.Conn) {
		seen := 0
		for {
			m, err := wire.Read(conn)
			if err != nil {
				return
			}
			if _, ok := m.(*wire.PositionUpdate); ok {
				seen++
				if seen == 2 {
					// Reject the first move: ack seq 1 at the start position.
					wire.Write(conn, &wire.PositionAck{Seq: 1, X: 1, Y: 1})
				}
			}
		}
	})

	c.Move(1, 0)
	c.Move(1, 0)
	if x, _, _ := c.Position(); x != 3 {
		t.Fatalf("predicted x = %d, want 3", x)
	}

	// All predictions are discarded, position snaps to the server's.
	waitFor(t, "rollback", func() bool {
		x, y, _ := c.Position()
		return x == 1 && y == 1
	})
	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending moves = %d, want 0", pending)
	}
}

func TestReplayAfterPartialAck(t *testing.T) {
	acks := make(chan uint32, 4)
	c := connected(t, func(conn net.Conn) {
		for {
			m, err := wire.Read(conn)
			if err != nil {
				return
			}
			if up, ok := m.(*wire.PositionUpdate); ok && up.Seq == 1 {
				wire.Write(conn, &wire.PositionAck{Seq: 1, X: 2, Y: 1})
				acks <- 1
			}
		}
	})

	c.Move(1, 0) // (2,1)
	c.Move(1, 0) // (3,1)
	c.Move(1, 0) // (4,1)
	<-acks

	// Seq 1 matched: moves 2 and 3 are replayed on top of the ack.
	waitFor(t, "replay", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 2
	})
	if x, y, _ := c.Position(); x != 4 || y != 1 {
		t.Errorf("position = (%d,%d), want (4,1)", x, y)
	}
}

func TestWorldStateAdvisory(t *testing.T) {
	send := make(chan wire.Message, 4)
	c := connected(t, func(conn net.Conn) {
		go func() {
			for m := range send {
				wire.Write(conn, m)
			}
		}()
		for {
			if _, err := wire.Read(conn); err != nil {
				return
			}
		}
	})

	// No pending moves: own world-state entry is authoritative.
	send <- &wire.WorldState{Players: []wire.PlayerState{
		{PlayerID: 1, X: 5, Y: 2, Name: "alice", LevelName: "main"},
	}}
	waitFor(t, "world state applied", func() bool {
		x, y, _ := c.Position()
		return x == 5 && y == 2
	})

	// With a move in flight the entry is advisory only.
	c.Move(1, 0) // predicts (6,2)
	send <- &wire.WorldState{Players: []wire.PlayerState{
		{PlayerID: 1, X: 5, Y: 2, Name: "alice", LevelName: "main"},
	}}
	waitFor(t, "roster update", func() bool { return len(c.Players()) == 1 })
	if x, y, _ := c.Position(); x != 6 || y != 2 {
		t.Errorf("position = (%d,%d), want predicted (6,2)", x, y)
	}
}

func TestDoorTransition(t *testing.T) {
	dungeonBytes := []byte(dungeonGrid)
	sum := sha256.Sum256(dungeonBytes)
	dungeonHash := hex.EncodeToString(sum[:])

	c := connected(t, func(conn net.Conn) {
		wire.Write(conn, &wire.DoorTransition{LevelName: "dungeon", SpawnX: 2, SpawnY: 2})
		for {
			m, err := wire.Read(conn)
			if err != nil {
				return
			}
			switch m := m.(type) {
			case *wire.LevelManifestRequest:
				wire.Write(conn, &wire.LevelManifest{Entries: []wire.ManifestEntry{
					{Filename: "level.txt", Hash: dungeonHash, Size: uint32(len(dungeonBytes))},
				}})
			case *wire.LevelFilesRequest:
				if len(m.Filenames) != 1 || m.Filenames[0] != "level.txt" {
					t.Errorf("file request = %v", m.Filenames)
				}
				wire.Write(conn, &wire.LevelFilesData{Files: []wire.FileEntry{
					{Filename: "level.txt", Data: dungeonBytes},
				}})
			}
		}
	})

	waitFor(t, "door transition", func() bool {
		_, _, lvl := c.Position()
		return lvl == "dungeon"
	})
	if x, y, _ := c.Position(); x != 2 || y != 2 {
		t.Errorf("position = (%d,%d), want (2,2)", x, y)
	}
	waitFor(t, "level load", func() bool {
		lv := c.Level()
		return lv != nil && lv.Name == "dungeon"
	})

	// The downloaded file landed in the cache under its content hash.
	if data, ok := c.Cache.Get("dungeon", dungeonHash); !ok || string(data) != dungeonGrid {
		t.Error("dungeon level.txt not cached by hash")
	}
}

func TestPingAutoPong(t *testing.T) {
	gotPong := make(chan struct{})
	c := connected(t, func(conn net.Conn) {
		wire.Write(conn, &wire.Ping{})
		for {
			m, err := wire.Read(conn)
			if err != nil {
				return
			}
			if _, ok := m.(*wire.Pong); ok {
				close(gotPong)
				return
			}
		}
	})
	defer c.Close()

	select {
	case <-gotPong:
	case <-time.After(2 * time.Second):
		t.Fatal("no PONG within deadline")
	}
}
