// Package gameclient mirrors the server's session state machine from
// the other side: challenge/response authentication, content-addressed
// level fetching, and locally predicted movement reconciled against
// authoritative acks.
package gameclient

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roguetalk/roguetalk/pkg/level"
	"github.com/roguetalk/roguetalk/pkg/wire"
)

const (
	defaultDialTimeout = 10 * time.Second
	handshakeTimeout   = 30 * time.Second
	requestTimeout     = 10 * time.Second
)

// AuthError is a handshake rejection carrying the server's result code.
type AuthError struct {
	Code wire.ResultCode
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected: %s", e.Code)
}

// Handlers are optional event callbacks, invoked from the Run loop.
// They must not call back into the client's blocking methods.
type Handlers struct {
	WorldState     func(players []wire.PlayerState)
	PlayerJoined   func(id uint32, name string)
	PlayerLeft     func(id uint32)
	DoorTransition func(levelName string, x, y int)
}

type pendingMove struct {
	dx, dy     int
	expX, expY int
}

// Client is one game session. The exported fields must be set before
// Connect and not changed afterwards.
type Client struct {
	Addr string
	Name string
	Key  ed25519.PrivateKey

	Cache    *Cache
	Logger   zerolog.Logger
	Handlers Handlers

	DialTimeout time.Duration

	conn net.Conn
	wmu  sync.Mutex

	// mu guards the mirrored world state below.
	mu        sync.Mutex
	playerID  uint32
	x, y      int
	levelName string
	level     *level.Level
	players   []wire.PlayerState
	muted     bool
	moveSeq   uint32
	pending   map[uint32]pendingMove

	sfuURL   string
	sfuToken string

	// Steady-state level fetches are answered by the Run loop.
	manifestCh chan *wire.LevelManifest
	filesCh    chan *wire.LevelFilesData
}

// Connect dials the server and completes the handshake: authentication,
// SERVER_HELLO, the level exchange, and the SFU token. The token may
// arrive interleaved with the level exchange and is buffered if so.
func (c *Client) Connect(ctx context.Context) error {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	c.conn = conn
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := c.authenticate(); err != nil {
		conn.Close()
		return err
	}

	hello, err := c.readHello()
	if err != nil {
		conn.Close()
		return err
	}

	c.playerID = hello.PlayerID
	c.x, c.y = int(hello.X), int(hello.Y)
	c.levelName = hello.LevelName
	c.pending = map[uint32]pendingMove{}
	c.manifestCh = make(chan *wire.LevelManifest, 1)
	c.filesCh = make(chan *wire.LevelFilesData, 1)

	files, bufferedToken, err := c.fetchLevelBlocking(hello.LevelName)
	if err != nil {
		conn.Close()
		return err
	}
	lv, err := buildLevel(hello.LevelName, files, hello.Grid)
	if err != nil {
		conn.Close()
		return err
	}
	c.level = lv

	tok := bufferedToken
	for tok == nil {
		m, err := wire.Read(conn)
		if err != nil {
			conn.Close()
			return fmt.Errorf("await sfu token: %w", err)
		}
		tok, _ = m.(*wire.LivekitToken)
	}
	c.sfuURL, c.sfuToken = tok.URL, tok.Token

	c.Logger.Info().
		Uint32("player", c.playerID).
		Str("level", c.levelName).
		Int("x", c.x).Int("y", c.y).
		Msg("connected")
	return nil
}

func (c *Client) authenticate() error {
	m, err := wire.Read(c.conn)
	if err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}
	challenge, ok := m.(*wire.AuthChallenge)
	if !ok {
		return fmt.Errorf("expected AUTH_CHALLENGE, got %s", m.Type())
	}

	resp := &wire.AuthResponse{Name: c.Name}
	copy(resp.PublicKey[:], c.Key.Public().(ed25519.PublicKey))
	signed := make([]byte, 0, len(challenge.Nonce)+len(c.Name))
	signed = append(signed, challenge.Nonce[:]...)
	signed = append(signed, c.Name...)
	copy(resp.Signature[:], ed25519.Sign(c.Key, signed))
	if err := c.send(resp); err != nil {
		return err
	}

	m, err = wire.Read(c.conn)
	if err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	result, ok := m.(*wire.AuthResult)
	if !ok {
		return fmt.Errorf("expected AUTH_RESULT, got %s", m.Type())
	}
	if result.Result != wire.ResultSuccess {
		return &AuthError{Code: result.Result}
	}
	return nil
}

func (c *Client) readHello() (*wire.ServerHello, error) {
	m, err := wire.Read(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	hello, ok := m.(*wire.ServerHello)
	if !ok {
		return nil, fmt.Errorf("expected SERVER_HELLO, got %s", m.Type())
	}
	return hello, nil
}

// fetchLevelBlocking runs the manifest/files exchange by reading the
// connection directly, before the Run loop exists. Unrelated messages
// may interleave; the SFU token in particular is buffered and returned.
func (c *Client) fetchLevelBlocking(levelName string) (map[string][]byte, *wire.LivekitToken, error) {
	var buffered *wire.LivekitToken

	if err := c.send(&wire.LevelManifestRequest{LevelName: levelName}); err != nil {
		return nil, nil, err
	}
	var manifest *wire.LevelManifest
	for manifest == nil {
		m, err := wire.Read(c.conn)
		if err != nil {
			return nil, nil, fmt.Errorf("await manifest: %w", err)
		}
		switch m := m.(type) {
		case *wire.LevelManifest:
			manifest = m
		case *wire.LivekitToken:
			buffered = m
		}
	}

	entries := manifestEntries(manifest)
	cached, missing := c.partition(levelName, entries)
	if len(missing) == 0 {
		c.Logger.Debug().Str("level", levelName).Int("cached", len(cached)).Msg("level fully cached")
		return cached, buffered, nil
	}

	if err := c.send(&wire.LevelFilesRequest{LevelName: levelName, Filenames: missing}); err != nil {
		return nil, nil, err
	}
	var files *wire.LevelFilesData
	for files == nil {
		m, err := wire.Read(c.conn)
		if err != nil {
			return nil, nil, fmt.Errorf("await level files: %w", err)
		}
		switch m := m.(type) {
		case *wire.LevelFilesData:
			files = m
		case *wire.LivekitToken:
			buffered = m
		}
	}
	c.mergeFiles(levelName, cached, files)
	c.Logger.Debug().
		Str("level", levelName).
		Int("cached", len(cached)-len(files.Files)).Int("downloaded", len(files.Files)).
		Msg("level fetched")
	return cached, buffered, nil
}

func manifestEntries(m *wire.LevelManifest) []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(m.Entries))
	for _, e := range m.Entries {
		entries = append(entries, ManifestEntry{Filename: e.Filename, Hash: e.Hash, Size: e.Size})
	}
	return entries
}

func (c *Client) partition(levelName string, entries []ManifestEntry) (map[string][]byte, []string) {
	if c.Cache == nil {
		missing := make([]string, 0, len(entries))
		for _, e := range entries {
			missing = append(missing, e.Filename)
		}
		return map[string][]byte{}, missing
	}
	return c.Cache.Partition(levelName, entries)
}

// mergeFiles folds freshly downloaded files into the cached set and
// writes them to the disk cache under their content hash.
func (c *Client) mergeFiles(levelName string, into map[string][]byte, files *wire.LevelFilesData) {
	for _, f := range files.Files {
		into[f.Filename] = f.Data
		if c.Cache != nil {
			if _, err := c.Cache.Put(levelName, f.Data); err != nil {
				c.Logger.Warn().Err(err).Str("file", f.Filename).Msg("failed to cache level file")
			}
		}
	}
}

// buildLevel assembles a Level from fetched pack files, falling back to
// the SERVER_HELLO grid when the pack has no level.txt.
func buildLevel(name string, files map[string][]byte, fallbackGrid []byte) (*level.Level, error) {
	grid := files["level.txt"]
	if grid == nil {
		grid = fallbackGrid
	}
	var tiles map[rune]level.TileDef
	if data, ok := files["tiles.json"]; ok {
		var err error
		if tiles, err = level.ParseTiles(data); err != nil {
			return nil, err
		}
	}
	lv, err := level.ParseGrid(name, grid, tiles)
	if err != nil {
		return nil, err
	}
	if data, ok := files["level.json"]; ok {
		if err := lv.ParseMeta(data); err != nil {
			return nil, err
		}
	}
	return lv, nil
}

// Run reads and dispatches server messages until the connection closes
// or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-stop:
		}
	}()

	for {
		m, err := wire.Read(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		switch m := m.(type) {
		case *wire.WorldState:
			c.handleWorldState(m)
		case *wire.PositionAck:
			c.handleAck(m)
		case *wire.DoorTransition:
			c.handleDoorTransition(m)
		case *wire.PlayerJoined:
			if c.Handlers.PlayerJoined != nil {
				c.Handlers.PlayerJoined(m.PlayerID, m.Name)
			}
		case *wire.PlayerLeft:
			if c.Handlers.PlayerLeft != nil {
				c.Handlers.PlayerLeft(m.PlayerID)
			}
		case *wire.Ping:
			c.send(&wire.Pong{})
		case *wire.LevelManifest:
			select {
			case c.manifestCh <- m:
			default:
			}
		case *wire.LevelFilesData:
			select {
			case c.filesCh <- m:
			default:
			}
		default:
			c.Logger.Debug().Stringer("type", m.Type()).Msg("ignoring message")
		}
	}
}

// handleWorldState records the roster. The client's own entry is
// advisory while moves are in flight; it is applied only when no
// predictions are pending.
func (c *Client) handleWorldState(m *wire.WorldState) {
	c.mu.Lock()
	c.players = m.Players
	if len(c.pending) == 0 {
		for _, p := range m.Players {
			if p.PlayerID == c.playerID {
				c.x, c.y = int(p.X), int(p.Y)
				c.levelName = p.LevelName
				break
			}
		}
	}
	players := c.players
	c.mu.Unlock()

	if c.Handlers.WorldState != nil {
		c.Handlers.WorldState(players)
	}
}

// handleAck reconciles a prediction against the authoritative position.
// A mismatch means the move was rejected: every later prediction was
// sent relative to a position the server never took, so all pending
// moves are dropped and the position snaps. On a match the surviving
// deltas are replayed on top of the acked position.
func (c *Client) handleAck(m *wire.PositionAck) {
	sx, sy := int(m.X), int(m.Y)

	c.mu.Lock()
	defer c.mu.Unlock()

	rejected := false
	if pm, ok := c.pending[m.Seq]; ok && (pm.expX != sx || pm.expY != sy) {
		rejected = true
	}
	for seq := range c.pending {
		if seq <= m.Seq {
			delete(c.pending, seq)
		}
	}
	if rejected {
		c.pending = map[uint32]pendingMove{}
	}
	c.x, c.y = sx, sy

	if rejected || len(c.pending) == 0 || c.level == nil {
		return
	}
	seqs := make([]uint32, 0, len(c.pending))
	for seq := range c.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for _, seq := range seqs {
		pm := c.pending[seq]
		nx, ny := c.x+pm.dx, c.y+pm.dy
		if c.level.IsWalkable(nx, ny) {
			c.x, c.y = nx, ny
		}
	}
}

// handleDoorTransition switches levels: predictions die with the old
// level, the position snaps to the spawn, and the new pack is fetched
// in the background through the Run loop.
func (c *Client) handleDoorTransition(m *wire.DoorTransition) {
	c.mu.Lock()
	c.pending = map[uint32]pendingMove{}
	c.levelName = m.LevelName
	c.x, c.y = int(m.SpawnX), int(m.SpawnY)
	c.mu.Unlock()

	go c.loadLevel(m.LevelName)

	if c.Handlers.DoorTransition != nil {
		c.Handlers.DoorTransition(m.LevelName, int(m.SpawnX), int(m.SpawnY))
	}
}

// loadLevel fetches a level pack during gameplay. Responses arrive via
// the Run loop's dispatch channels.
func (c *Client) loadLevel(levelName string) {
	if err := c.send(&wire.LevelManifestRequest{LevelName: levelName}); err != nil {
		return
	}
	var manifest *wire.LevelManifest
	select {
	case manifest = <-c.manifestCh:
	case <-time.After(requestTimeout):
		c.Logger.Warn().Str("level", levelName).Msg("manifest request timed out")
		return
	}

	cached, missing := c.partition(levelName, manifestEntries(manifest))
	if len(missing) > 0 {
		if err := c.send(&wire.LevelFilesRequest{LevelName: levelName, Filenames: missing}); err != nil {
			return
		}
		select {
		case files := <-c.filesCh:
			c.mergeFiles(levelName, cached, files)
		case <-time.After(requestTimeout):
			c.Logger.Warn().Str("level", levelName).Msg("file request timed out")
			return
		}
	}

	lv, err := buildLevel(levelName, cached, nil)
	if err != nil {
		c.Logger.Warn().Err(err).Str("level", levelName).Msg("failed to build level")
		return
	}

	c.mu.Lock()
	if c.levelName == levelName {
		c.level = lv
	}
	c.mu.Unlock()
}

// Move applies one predicted step. It reports whether the move passed
// the local walkability check and was sent.
func (c *Client) Move(dx, dy int) (bool, error) {
	c.mu.Lock()
	if c.level == nil {
		c.mu.Unlock()
		return false, nil
	}
	nx, ny := c.x+dx, c.y+dy
	if !c.level.IsWalkable(nx, ny) {
		c.mu.Unlock()
		return false, nil
	}
	c.moveSeq++
	seq := c.moveSeq
	c.pending[seq] = pendingMove{dx: dx, dy: dy, expX: nx, expY: ny}
	c.x, c.y = nx, ny
	c.mu.Unlock()

	return true, c.send(&wire.PositionUpdate{Seq: seq, X: uint16(nx), Y: uint16(ny)})
}

// SetMuted updates the local flag and notifies the server.
func (c *Client) SetMuted(muted bool) error {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	return c.send(&wire.MuteStatus{Muted: muted})
}

// Position returns the predicted local position and level.
func (c *Client) Position() (x, y int, levelName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y, c.levelName
}

// Players returns the roster from the last WORLD_STATE.
func (c *Client) Players() []wire.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.PlayerState, len(c.players))
	copy(out, c.players)
	return out
}

func (c *Client) PlayerID() uint32 {
	return c.playerID
}

// Level returns the currently loaded level, which may lag the level
// name briefly after a door transition.
func (c *Client) Level() *level.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// SFU returns the voice server URL and the minted join token.
func (c *Client) SFU() (url, token string) {
	return c.sfuURL, c.sfuToken
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) send(m wire.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wire.Write(c.conn, m)
}
