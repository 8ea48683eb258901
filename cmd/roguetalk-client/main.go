// Command roguetalk-client is a headless rogue-talk client: it joins a
// server, prints world events, and optionally walks a path. Useful for
// poking at a server without the full interactive client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/roguetalk/roguetalk/pkg/gameclient"
	"github.com/roguetalk/roguetalk/pkg/wire"
)

var opt struct {
	Addr     string
	Identity string
	Cache    string
	Mute     bool
	Walk     []string
	Verbose  bool
	Help     bool
}

func init() {
	pflag.StringVarP(&opt.Addr, "server", "s", "localhost:7777", "Server address")
	pflag.StringVarP(&opt.Identity, "identity", "i", "", "Identity directory (default ~/.rogue-talk)")
	pflag.StringVar(&opt.Cache, "cache", "", "Level cache directory (default ~/.rogue-talk/level_cache)")
	pflag.BoolVarP(&opt.Mute, "mute", "m", false, "Join muted")
	pflag.StringArrayVarP(&opt.Walk, "walk", "w", nil, "Step to take after joining as dx,dy (can be repeated)")
	pflag.BoolVarP(&opt.Verbose, "verbose", "v", false, "Show debug logs")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() != 1 || opt.Help {
		fmt.Printf("usage: %s [options] name\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}
	name := pflag.Arg(0)

	steps, err := parseSteps(opt.Walk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid walk step: %v\n", err)
		os.Exit(2)
	}

	lvl := zerolog.InfoLevel
	if opt.Verbose {
		lvl = zerolog.TraceLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()

	idDir := opt.Identity
	if idDir == "" {
		if idDir, err = gameclient.DefaultIdentityDir(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}
	id, err := gameclient.LoadOrCreateIdentity(idDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	cacheDir := opt.Cache
	if cacheDir == "" {
		if cacheDir, err = gameclient.DefaultCacheDir(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &gameclient.Client{
		Addr:   opt.Addr,
		Name:   name,
		Key:    id.Private,
		Cache:  gameclient.NewCache(cacheDir),
		Logger: log,
		Handlers: gameclient.Handlers{
			WorldState: func(players []wire.PlayerState) {
				for _, p := range players {
					log.Info().
						Uint32("id", p.PlayerID).
						Str("name", p.Name).
						Str("level", p.LevelName).
						Uint16("x", p.X).Uint16("y", p.Y).
						Bool("muted", p.Muted).
						Msg("player")
				}
			},
			PlayerJoined: func(id uint32, name string) {
				log.Info().Uint32("id", id).Str("name", name).Msg("player joined")
			},
			PlayerLeft: func(id uint32) {
				log.Info().Uint32("id", id).Msg("player left")
			},
			DoorTransition: func(level string, x, y int) {
				log.Info().Str("level", level).Int("x", x).Int("y", y).Msg("door transition")
			},
		},
	}

	if err := c.Connect(ctx); err != nil {
		var ae *gameclient.AuthError
		if errors.As(err, &ae) {
			fmt.Fprintf(os.Stderr, "fatal: server rejected us: %v\n", ae)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "fatal: connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	x, y, level := c.Position()
	url, _ := c.SFU()
	log.Info().
		Uint32("player_id", c.PlayerID()).
		Str("level", level).
		Int("x", x).Int("y", y).
		Str("sfu", url).
		Msg("joined")

	if opt.Mute {
		if err := c.SetMuted(true); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: mute: %v\n", err)
			os.Exit(1)
		}
	}

	go func() {
		for _, st := range steps {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			if ok, err := c.Move(st[0], st[1]); err != nil {
				log.Err(err).Msg("move failed")
				return
			} else if !ok {
				log.Warn().Int("dx", st[0]).Int("dy", st[1]).Msg("move blocked")
			}
		}
	}()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func parseSteps(ss []string) ([][2]int, error) {
	r := make([][2]int, 0, len(ss))
	for _, s := range ss {
		a, b, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("%q: missing comma", s)
		}
		dx, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		dy, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		if dx < -1 || dx > 1 || dy < -1 || dy > 1 {
			return nil, fmt.Errorf("%q: steps are single tiles", s)
		}
		r = append(r, [2]int{dx, dy})
	}
	return r, nil
}
