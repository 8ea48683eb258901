// Package gameserver implements the authoritative game server: session
// handshake and steady-state dispatch over a length-prefixed TCP
// protocol, player movement with door transitions, world-state
// broadcasts, and content-addressed level distribution.
package gameserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/roguetalk/roguetalk/pkg/audio"
	"github.com/roguetalk/roguetalk/pkg/level"
	"github.com/roguetalk/roguetalk/pkg/registry"
	"github.com/roguetalk/roguetalk/pkg/token"
	"github.com/roguetalk/roguetalk/pkg/wire"
)

const (
	// DefaultPingInterval is how often the server probes each session.
	DefaultPingInterval = 10 * time.Second

	// DefaultPingTimeout closes a session that has not answered a ping.
	DefaultPingTimeout = 30 * time.Second

	// handshakeTimeout bounds the challenge/response exchange; after it
	// the keep-alive loop takes over liveness.
	handshakeTimeout = 30 * time.Second

	// MaxNameLength is the longest accepted player name, in bytes.
	MaxNameLength = 32
)

// Server is the authoritative game server. The exported fields must be
// set before Serve and not changed afterwards.
type Server struct {
	Logger  zerolog.Logger
	Storage registry.Storage
	Levels  *level.Store
	Tokens  *token.Issuer
	SFUURL  string

	PingInterval time.Duration
	PingTimeout  time.Duration

	// mu is the coarse lock over the live player map and the id counter.
	// Connection writes happen outside it, serialised per connection.
	mu      sync.Mutex
	nextID  uint32
	players map[uint32]*player

	recipients *audio.RecipientCache

	initOnce    sync.Once
	metricsInit sync.Once
	metricsObj  srvMetrics
}

type player struct {
	id    uint32
	name  string
	key   registry.Key
	x, y  int
	level string
	muted bool
	ping  uint16 // milliseconds, guarded by Server.mu

	lastPong     atomic.Int64 // unix nanos
	lastPingSent atomic.Int64

	conn net.Conn
	wmu  sync.Mutex
	log  zerolog.Logger
}

// send writes one frame. Frame writes are serialised per connection;
// a failed peer is left for its own reader to discover and tear down.
func (p *player) send(m wire.Message) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return wire.Write(p.conn, m)
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		s.players = map[uint32]*player{}
		s.recipients = audio.NewRecipientCache()
	})
}

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval > 0 {
		return s.PingInterval
	}
	return DefaultPingInterval
}

func (s *Server) pingTimeout() time.Duration {
	if s.PingTimeout > 0 {
		return s.PingTimeout
	}
	return DefaultPingTimeout
}

// Serve accepts connections on ln until ctx is cancelled, running one
// session goroutine plus one keep-alive goroutine per connection. It
// returns after every session has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.init()
	s.m() // register metrics before the first scrape

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
			s.closeAll()
		case <-stop:
		}
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		p.conn.Close()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	s.m().connections_total.Inc()

	log := s.Logger.With().Str("addr", conn.RemoteAddr().String()).Logger()

	p, err := s.handshake(conn, log)
	if err != nil {
		log.Debug().Err(err).Msg("handshake failed")
		return
	}
	defer s.teardown(p)

	stop := make(chan struct{})
	defer close(stop)
	go s.keepAlive(p, stop)

	s.readLoop(p)
}

// teardown is the guaranteed cleanup path: the position is saved, the
// live record removed under the shared lock, and the leave broadcast.
func (s *Server) teardown(p *player) {
	if err := s.Storage.SavePosition(p.name, registry.Position{X: p.x, Y: p.y, Level: p.level}); err != nil {
		p.log.Warn().Err(err).Msg("failed to save position")
	}

	s.mu.Lock()
	delete(s.players, p.id)
	s.mu.Unlock()
	s.recipients.InvalidateAll()

	s.broadcast(&wire.PlayerLeft{PlayerID: p.id}, 0)
	s.broadcastWorldState()
	p.log.Info().Msg("player left")
}

func (s *Server) keepAlive(p *player, stop <-chan struct{}) {
	t := time.NewTicker(s.pingInterval())
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if time.Since(time.Unix(0, p.lastPong.Load())) > s.pingTimeout() {
				s.m().keepalive_timeouts_total.Inc()
				p.log.Info().Str("reason", "timeout").Msg("closing session")
				p.conn.Close()
				return
			}
			p.lastPingSent.Store(time.Now().UnixNano())
			p.send(&wire.Ping{})
		}
	}
}

// broadcast sends m to every live player except the one with id skip
// (0 skips nobody; player ids start at 1). Sends happen outside the
// shared lock against a snapshot of the player map.
func (s *Server) broadcast(m wire.Message, skip uint32) {
	s.mu.Lock()
	targets := make([]*player, 0, len(s.players))
	for _, p := range s.players {
		if p.id != skip {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	s.m().broadcasts_total.Inc()
	for _, p := range targets {
		p.send(m)
	}
}

// audiblePairs counts source->listener pairs currently in voice range,
// one level at a time, through the recipient cache.
func (s *Server) audiblePairs() int {
	type pos struct {
		peer  audio.Peer
		muted bool
	}
	s.mu.Lock()
	byLevel := map[string][]pos{}
	for _, p := range s.players {
		byLevel[p.level] = append(byLevel[p.level], pos{audio.Peer{ID: p.id, X: p.x, Y: p.y}, p.muted})
	}
	s.mu.Unlock()

	var pairs int
	for _, ps := range byLevel {
		for _, src := range ps {
			peers := make([]audio.Peer, 0, len(ps)-1)
			for _, o := range ps {
				if o.peer.ID != src.peer.ID {
					peers = append(peers, o.peer)
				}
			}
			pairs += len(s.recipients.Recipients(src.peer, src.muted, peers))
		}
	}
	return pairs
}
