package roguetalk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"

	"github.com/roguetalk/roguetalk/db/registrybolt"
	"github.com/roguetalk/roguetalk/db/registrydb"
	"github.com/roguetalk/roguetalk/pkg/gameserver"
	"github.com/roguetalk/roguetalk/pkg/level"
	"github.com/roguetalk/roguetalk/pkg/memstore"
	"github.com/roguetalk/roguetalk/pkg/registry"
	"github.com/roguetalk/roguetalk/pkg/token"
)

type Server struct {
	Logger zerolog.Logger

	Addr          string
	AddrMetrics   string
	NotifySocket  string
	MetricsSecret string
	Game          *gameserver.Server

	reload []func()
	closed bool
}

// NewServer configures a new server using c, which is assumed to be initialized
// to default or configured values (as done by UnmarshalEnv). It will perform
// any additional config checks as required.
func NewServer(c *Config) (*Server, error) {
	var s Server
	var success bool

	s.Addr = c.Addr
	s.AddrMetrics = c.AddrMetrics
	s.NotifySocket = c.NotifySocket
	s.MetricsSecret = c.MetricsSecret

	if l, fn, err := configureLogging(c); err == nil {
		s.Logger = l
		s.reload = append(s.reload, fn)
	} else {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	defer func() {
		if !success {
			if s.Game != nil && s.Game.Storage != nil {
				if c, ok := s.Game.Storage.(io.Closer); ok {
					c.Close()
				}
			}
		}
	}()

	s.Game = &gameserver.Server{
		Logger:       s.Logger.With().Str("component", "game").Logger(),
		SFUURL:       c.SFUURL,
		PingInterval: c.PingInterval,
		PingTimeout:  c.PingTimeout,
	}

	if store, err := configureStorage(c); err == nil {
		s.Game.Storage = store
	} else {
		return nil, fmt.Errorf("initialize registry storage: %w", err)
	}
	if levels, err := level.Load(c.Levels, s.Logger.With().Str("component", "levels").Logger()); err == nil {
		s.Game.Levels = levels
	} else {
		return nil, fmt.Errorf("initialize levels: %w", err)
	}

	if c.SFUKey == "" || c.SFUSecret == "" {
		return nil, fmt.Errorf("initialize sfu tokens: missing api key or secret")
	}
	s.Game.Tokens = &token.Issuer{
		APIKey:    c.SFUKey,
		APISecret: c.SFUSecret,
		Room:      c.SFURoom,
		TTL:       c.TokenTTL,
	}

	success = true
	return &s, nil
}

func configureLogging(c *Config) (l zerolog.Logger, reopen func(), err error) {
	var outputs []io.Writer
	if c.LogStdout {
		if c.LogStdoutPretty {
			outputs = append(outputs, newZerologWriterLevel(zerolog.ConsoleWriter{
				Out: os.Stdout,
			}, c.LogStdoutLevel))
		} else {
			outputs = append(outputs, newZerologWriterLevel(os.Stdout, c.LogStdoutLevel))
		}
	}
	if fn := c.LogFile; fn != "" {
		x := newZerologWriterLevel(nil, c.LogFileLevel)
		if fn, err = filepath.Abs(fn); err != nil {
			err = fmt.Errorf("resolve log file: %w", err)
			return
		}
		reopen = func() {
			x.SwapWriter(func(old io.Writer) io.Writer {
				if o, ok := old.(io.Closer); ok {
					o.Close()
				}
				if f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666); err == nil {
					if c.LogFileChown != nil {
						if err := f.Chown((*c.LogFileChown)[0], (*c.LogFileChown)[1]); err != nil {
							fmt.Fprintf(os.Stderr, "error: chown log file: %v\n", err)
						}
					}
					if c.LogFileChmod != 0 {
						if err := f.Chmod(c.LogFileChmod); err != nil {
							fmt.Fprintf(os.Stderr, "error: chmod log file: %v\n", err)
						}
					}
					return f
				} else {
					fmt.Fprintf(os.Stderr, "error: failed to open log file: %v\n", err)
				}
				return nil
			})
		}
		outputs = append(outputs, x)
		reopen()
	}
	l = zerolog.New(zerolog.MultiLevelWriter(outputs...)).
		Level(c.LogLevel).
		With().
		Timestamp().
		Logger()
	return
}

func configureStorage(c *Config) (registry.Storage, error) {
	switch typ, arg, _ := strings.Cut(c.Storage, ":"); typ {
	case "memory":
		if arg != "" {
			return nil, fmt.Errorf("memory: invalid argument %q", arg)
		}
		return memstore.NewStore(), nil
	case "sqlite3":
		p, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("sqlite3: resolve %q: %w", arg, err)
		}
		s, err := registrydb.Open(p)
		if err != nil {
			return nil, fmt.Errorf("sqlite3: %w", err)
		}
		if cur, to, err := s.Version(); err != nil {
			return nil, fmt.Errorf("sqlite3: migrate: %w", err)
		} else if cur > to {
			return nil, fmt.Errorf("sqlite3: migrate: database version %d is too new", cur)
		} else if cur != to {
			if err := s.MigrateUp(context.Background(), to); err != nil {
				return nil, fmt.Errorf("sqlite3: migrate (%d to %d): %w", cur, to, err)
			}
		}
		return s, nil
	case "bolt":
		p, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("bolt: resolve %q: %w", arg, err)
		}
		s, err := registrybolt.Open(p)
		if err != nil {
			return nil, fmt.Errorf("bolt: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

// Run runs the server, shutting it down gracefully when ctx is canceled, then
// waiting indefinitely for it to exit. It must only ever be called once, and
// the server is useless afterwards.
func (s *Server) Run(ctx context.Context) error {
	if s.closed {
		return net.ErrClosed
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}

	var hs []*http.Server
	as := []string{"tcp://" + s.Addr}
	if s.AddrMetrics != "" {
		hs = append(hs, &http.Server{
			Addr:    s.AddrMetrics,
			Handler: http.HandlerFunc(s.serveMetrics),
		})
		as = append(as, "http://"+s.AddrMetrics)
	}
	s.Logger.Log().Msgf("starting server on %s", strings.Join(as, ", "))

	gamech := make(chan error, 1)
	go func() {
		gamech <- s.Game.Serve(ctx, ln)
	}()

	errch := make(chan error, len(hs))
	for _, h := range hs {
		h := h
		go func() {
			if err := h.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errch <- err
			}
		}()
	}

	var serveErr error
	var done bool
	select {
	case <-ctx.Done():
	case <-time.After(time.Second * 2):
		go s.sdnotify("READY=1")
		select {
		case <-ctx.Done():
		case serveErr = <-gamech:
			done = true
		case serveErr = <-errch:
		}
	case serveErr = <-gamech:
		done = true
	case serveErr = <-errch:
	}
	if serveErr != nil && ctx.Err() == nil {
		s.Logger.Err(serveErr).Msg("server failed")
	}

	s.closed = true
	s.Logger.Log().Msg("shutting down")

	go s.sdnotify("STOPPING=1")

	ln.Close()
	for _, h := range hs {
		h.Shutdown(context.Background())
	}

	// wait for the game sessions to drain
	if !done {
		<-gamech
	}

	if c, ok := s.Game.Storage.(io.Closer); ok {
		c.Close()
	}
	if serveErr != nil && ctx.Err() == nil {
		return serveErr
	}
	return ctx.Err()
}

func (s *Server) HandleSIGHUP() {
	if s.closed {
		return
	}

	s.sdnotify("RELOADING=1")
	defer s.sdnotify("READY=1")

	for _, fn := range s.reload {
		if fn != nil {
			fn()
		}
	}
}

// serveMetrics exposes game metrics on /metrics; process metrics require
// the metrics secret.
func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/metrics" {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var internal bool
	if s := s.MetricsSecret; s != "" {
		if r.URL.Query().Get("secret") == s {
			internal = true
		}
	}

	var ms []func(io.Writer)
	if internal {
		ms = append(ms, metrics.WriteProcessMetrics)
	}
	ms = append(ms, s.Game.WritePrometheus)

	var b bytes.Buffer
	for i, m := range ms {
		if i != 0 {
			b.WriteByte('\n')
		}
		m(&b)
	}

	w.Header().Set("Cache-Control", "private, no-cache, no-store")
	w.Header().Set("Expires", "0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Header().Set("Content-Length", strconv.Itoa(b.Len()))
	w.WriteHeader(http.StatusOK)
	b.WriteTo(w)
}

func (s *Server) sdnotify(state string) (bool, error) {
	if s.NotifySocket == "" {
		return false, nil
	}

	socketAddr := &net.UnixAddr{
		Name: s.NotifySocket,
		Net:  "unixgram",
	}

	conn, err := net.DialUnix(socketAddr.Net, nil, socketAddr)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if _, err = conn.Write([]byte(state)); err != nil {
		return false, err
	}
	return true, nil
}
