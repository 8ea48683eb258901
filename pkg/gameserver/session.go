package gameserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/roguetalk/roguetalk/pkg/registry"
	"github.com/roguetalk/roguetalk/pkg/wire"
)

// handshake drives a connection from accept to RUNNING: challenge,
// response validation, registry consultation, player registration, and
// the SUCCESS / SERVER_HELLO / LIVEKIT_TOKEN / join-broadcast sequence.
// On any rejection the matching AUTH_RESULT is sent and an error
// returned; the caller closes the connection.
func (s *Server) handshake(conn net.Conn, log zerolog.Logger) (*player, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	var challenge wire.AuthChallenge
	if _, err := rand.Read(challenge.Nonce[:]); err != nil {
		return nil, fmt.Errorf("draw nonce: %w", err)
	}
	if err := wire.Write(conn, &challenge); err != nil {
		return nil, err
	}

	m, err := wire.Read(conn)
	if err != nil {
		return nil, err
	}
	resp, ok := m.(*wire.AuthResponse)
	if !ok {
		s.m().handshakes_total.reject_bad_message.Inc()
		return nil, fmt.Errorf("expected AUTH_RESPONSE, got %s", m.Type())
	}

	reject := func(code wire.ResultCode) (*player, error) {
		wire.Write(conn, &wire.AuthResult{Result: code})
		return nil, fmt.Errorf("rejected: %s", code)
	}

	if !validName(resp.Name) {
		s.m().handshakes_total.reject_invalid_name.Inc()
		return reject(wire.ResultInvalidName)
	}

	signed := make([]byte, 0, len(challenge.Nonce)+len(resp.Name))
	signed = append(signed, challenge.Nonce[:]...)
	signed = append(signed, resp.Name...)
	if !ed25519.Verify(resp.PublicKey[:], signed, resp.Signature[:]) {
		s.m().handshakes_total.reject_invalid_signature.Inc()
		return reject(wire.ResultInvalidSignature)
	}

	key := registry.Key(resp.PublicKey)
	existingKey, err := s.Storage.GetKeyByName(resp.Name)
	if err != nil {
		s.m().handshakes_total.fail_storage_error.Inc()
		return nil, fmt.Errorf("look up name: %w", err)
	}
	existingName, err := s.Storage.GetNameByKey(key)
	if err != nil {
		s.m().handshakes_total.fail_storage_error.Inc()
		return nil, fmt.Errorf("look up key: %w", err)
	}
	switch {
	case existingKey != nil:
		if *existingKey != key {
			s.m().handshakes_total.reject_name_taken.Inc()
			return reject(wire.ResultNameTaken)
		}
		// returning player
	case existingName != "":
		s.m().handshakes_total.reject_key_mismatch.Inc()
		return reject(wire.ResultKeyMismatch)
	default:
		if err := s.Storage.Register(resp.Name, key); err != nil {
			// Lost a registration race; report the winner's binding.
			switch {
			case errors.Is(err, registry.ErrNameTaken):
				s.m().handshakes_total.reject_name_taken.Inc()
				return reject(wire.ResultNameTaken)
			case errors.Is(err, registry.ErrKeyBound):
				s.m().handshakes_total.reject_key_mismatch.Inc()
				return reject(wire.ResultKeyMismatch)
			}
			s.m().handshakes_total.fail_storage_error.Inc()
			return nil, fmt.Errorf("register: %w", err)
		}
	}

	spawnX, spawnY, levelName, returning, err := s.spawn(resp.Name)
	if err != nil {
		s.m().handshakes_total.fail_storage_error.Inc()
		return nil, err
	}
	lv, ok := s.Levels.Get(levelName)
	if !ok {
		return nil, fmt.Errorf("spawn level %q missing", levelName)
	}

	p := &player{
		name:  resp.Name,
		key:   key,
		x:     spawnX,
		y:     spawnY,
		level: levelName,
		conn:  conn,
	}
	p.lastPong.Store(time.Now().UnixNano())

	// Registration and the single-session-per-key check are atomic under
	// the shared lock.
	s.mu.Lock()
	for _, other := range s.players {
		if other.key == key {
			s.mu.Unlock()
			s.m().handshakes_total.reject_already_connected.Inc()
			return reject(wire.ResultAlreadyConnected)
		}
	}
	s.nextID++
	p.id = s.nextID
	s.players[p.id] = p
	s.mu.Unlock()

	p.log = log.With().Uint32("player", p.id).Str("name", p.name).Logger()

	cleanup := func(err error) (*player, error) {
		s.mu.Lock()
		delete(s.players, p.id)
		s.mu.Unlock()
		return nil, err
	}

	if err := p.send(&wire.AuthResult{Result: wire.ResultSuccess}); err != nil {
		return cleanup(err)
	}
	if err := p.send(&wire.ServerHello{
		PlayerID:  p.id,
		Width:     uint16(lv.Width),
		Height:    uint16(lv.Height),
		X:         uint16(p.x),
		Y:         uint16(p.y),
		Grid:      lv.Raw(),
		LevelName: p.level,
	}); err != nil {
		return cleanup(err)
	}

	// The client may still be fetching level files when this arrives; it
	// buffers the token until the level exchange settles.
	tok, err := s.Tokens.Mint(p.name)
	if err != nil {
		s.m().handshakes_total.fail_token_error.Inc()
		return cleanup(fmt.Errorf("mint sfu token: %w", err))
	}
	if err := p.send(&wire.LivekitToken{URL: s.SFUURL, Token: tok}); err != nil {
		return cleanup(err)
	}

	s.broadcast(&wire.PlayerJoined{PlayerID: p.id, Name: p.name}, p.id)
	s.broadcastWorldState()
	s.recipients.InvalidateAll()

	s.m().handshakes_total.success.Inc()
	p.log.Info().
		Int("x", p.x).Int("y", p.y).Str("level", p.level).
		Bool("returning", returning).
		Msg("player joined")
	return p, nil
}

// spawn resolves the join position: the saved state verbatim when its
// level still exists, else the main level's spawn policy.
func (s *Server) spawn(name string) (x, y int, levelName string, returning bool, err error) {
	saved, err := s.Storage.LoadPosition(name)
	if err != nil {
		return 0, 0, "", false, fmt.Errorf("load position: %w", err)
	}
	if saved != nil {
		if _, ok := s.Levels.Get(saved.Level); ok {
			return saved.X, saved.Y, saved.Level, true, nil
		}
	}
	lv, ok := s.Levels.Get("main")
	if !ok {
		return 0, 0, "", false, errors.New("main level missing")
	}
	x, y, ok = lv.SpawnPosition()
	if !ok {
		return 0, 0, "", false, errors.New("main level has no walkable spawn")
	}
	return x, y, "main", false, nil
}

func validName(name string) bool {
	if name == "" || len(name) > MaxNameLength || !utf8.ValidString(name) {
		return false
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// readLoop dispatches steady-state messages until the connection breaks
// or the peer sends something illegal for the RUNNING state.
func (s *Server) readLoop(p *player) {
	for {
		m, err := wire.Read(p.conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				p.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		switch m := m.(type) {
		case *wire.PositionUpdate:
			s.handlePositionUpdate(p, m)
		case *wire.LevelManifestRequest:
			s.handleManifestRequest(p, m)
		case *wire.LevelFilesRequest:
			s.handleFilesRequest(p, m)
		case *wire.MuteStatus:
			s.handleMuteStatus(p, m)
		case *wire.Pong:
			s.handlePong(p)
		default:
			p.log.Warn().Stringer("type", m.Type()).Msg("unexpected message, closing")
			return
		}
	}
}

func (s *Server) handleManifestRequest(p *player, m *wire.LevelManifestRequest) {
	s.m().level_manifest_requests_total.Inc()
	entries := s.Levels.Manifest(m.LevelName)
	resp := &wire.LevelManifest{Entries: make([]wire.ManifestEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, wire.ManifestEntry{
			Filename: e.Filename,
			Hash:     e.Hash,
			Size:     e.Size,
		})
	}
	p.log.Debug().Str("level", m.LevelName).Int("files", len(resp.Entries)).Msg("sending manifest")
	p.send(resp)
}

func (s *Server) handleFilesRequest(p *player, m *wire.LevelFilesRequest) {
	s.m().level_files_requests_total.Inc()
	resp := &wire.LevelFilesData{}
	var total int
	for _, fn := range m.Filenames {
		if data, ok := s.Levels.FileContents(m.LevelName, fn); ok {
			resp.Files = append(resp.Files, wire.FileEntry{Filename: fn, Data: data})
			total += len(data)
		}
	}
	s.m().level_files_bytes_total.Add(total)
	p.log.Debug().
		Str("level", m.LevelName).
		Int("requested", len(m.Filenames)).Int("sent", len(resp.Files)).Int("bytes", total).
		Msg("sending level files")
	p.send(resp)
}

func (s *Server) handleMuteStatus(p *player, m *wire.MuteStatus) {
	s.mu.Lock()
	p.muted = m.Muted
	s.mu.Unlock()
	s.recipients.Invalidate(p.id)
	s.broadcastWorldState()
}

func (s *Server) handlePong(p *player) {
	now := time.Now()
	p.lastPong.Store(now.UnixNano())
	if sent := p.lastPingSent.Load(); sent > 0 {
		rtt := now.Sub(time.Unix(0, sent)).Milliseconds()
		if rtt < 0 {
			rtt = 0
		} else if rtt > 65535 {
			rtt = 65535
		}
		s.mu.Lock()
		p.ping = uint16(rtt)
		s.mu.Unlock()
	}
}
