// Command roguetalk-bot runs a greeter bot: it wanders the level one
// tile per second and greets players who come into range, with a
// per-player cooldown so nobody gets spammed.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/roguetalk/roguetalk/pkg/bot"
	"github.com/roguetalk/roguetalk/pkg/wire"
)

const (
	greetingCooldown = 10 * time.Second
	moveInterval     = time.Second
)

var opt struct {
	Addr     string
	Name     string
	Identity string
	Wander   bool
	Verbose  bool
	Help     bool
}

func init() {
	pflag.StringVarP(&opt.Addr, "server", "s", "localhost:7777", "Server address")
	pflag.StringVarP(&opt.Name, "name", "n", "GreeterBot", "Bot display name")
	pflag.StringVarP(&opt.Identity, "identity", "i", "", "Identity directory (default ~/.rogue-talk/bots/<name>)")
	pflag.BoolVarP(&opt.Wander, "wander", "w", true, "Wander around randomly")
	pflag.BoolVarP(&opt.Verbose, "verbose", "v", false, "Show debug logs")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() != 0 || opt.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	lvl := zerolog.InfoLevel
	if opt.Verbose {
		lvl = zerolog.TraceLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()

	b := &bot.Bot{
		Name:        opt.Name,
		Addr:        opt.Addr,
		IdentityDir: opt.Identity,
		Logger:      log,
	}

	var mu sync.Mutex
	lastGreeted := map[uint32]time.Time{}

	b.OnPlayerNearby(func(p wire.PlayerState) {
		log.Info().Str("name", p.Name).Uint16("x", p.X).Uint16("y", p.Y).Msg("player entered range")

		mu.Lock()
		last := lastGreeted[p.PlayerID]
		ok := time.Since(last) >= greetingCooldown
		if ok {
			lastGreeted[p.PlayerID] = time.Now()
		}
		mu.Unlock()

		if ok {
			log.Info().Str("name", p.Name).Msg("greeting player")
		} else {
			log.Debug().Str("name", p.Name).Msg("greeting on cooldown")
		}
	})
	b.OnPlayerJoined(func(id uint32, name string) {
		log.Info().Uint32("id", id).Str("name", name).Msg("player joined")
	})
	b.OnPlayerLeft(func(id uint32) {
		log.Info().Uint32("id", id).Msg("player left")
		mu.Lock()
		delete(lastGreeted, id)
		mu.Unlock()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", opt.Addr).Str("name", opt.Name).Msg("connecting")
	if err := b.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: connect: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	x, y, level := b.Position()
	log.Info().Str("level", level).Int("x", x).Int("y", y).Msg("connected")

	if opt.Wander {
		go wander(ctx, b)
	}

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// wander moves one tile per second in a random direction, trying the
// other directions when blocked.
func wander(ctx context.Context, b *bot.Bot) {
	dirs := [][2]int{
		{1, 0}, {-1, 0}, {0, 1}, {0, -1},
		{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
	}

	t := time.NewTicker(moveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		d := dirs[rand.Intn(len(dirs))]
		if ok, err := b.Move(d[0], d[1]); err != nil {
			return
		} else if !ok {
			rand.Shuffle(len(dirs), func(i, j int) {
				dirs[i], dirs[j] = dirs[j], dirs[i]
			})
			for _, alt := range dirs {
				if ok, err := b.Move(alt[0], alt[1]); err != nil {
					return
				} else if ok {
					break
				}
			}
		}
	}
}
