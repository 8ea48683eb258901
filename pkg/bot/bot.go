// Package bot is the headless client SDK: the same session protocol as
// the interactive client, plus event callbacks for world changes,
// proximity, and speech, and A* navigation helpers.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/roguetalk/roguetalk/pkg/audio"
	"github.com/roguetalk/roguetalk/pkg/gameclient"
	"github.com/roguetalk/roguetalk/pkg/level"
	"github.com/roguetalk/roguetalk/pkg/wire"
)

// speakingTimeout is how long without media frames before a player is
// considered to have stopped speaking.
const speakingTimeout = 500 * time.Millisecond

// Bot is one scripted participant. Set the exported fields, register
// callbacks, then Connect and Run.
type Bot struct {
	Name        string
	Addr        string
	IdentityDir string
	CacheDir    string
	Logger      zerolog.Logger

	client *gameclient.Client

	mu       sync.Mutex
	nearby   map[uint32]bool
	speaking map[uint32]time.Time

	onWorldState        []func(players []wire.PlayerState)
	onPlayerJoined      []func(id uint32, name string)
	onPlayerLeft        []func(id uint32)
	onPlayerNearby      []func(p wire.PlayerState)
	onPlayerLeftRange   []func(p wire.PlayerState)
	onPlayerSpeaks      []func(p wire.PlayerState)
	onPlayerStopsSpeak  []func(p wire.PlayerState)
}

// Callback registration. All callbacks run on the bot's event loop and
// must not block.

func (b *Bot) OnWorldState(cb func(players []wire.PlayerState)) {
	b.onWorldState = append(b.onWorldState, cb)
}

func (b *Bot) OnPlayerJoined(cb func(id uint32, name string)) {
	b.onPlayerJoined = append(b.onPlayerJoined, cb)
}

func (b *Bot) OnPlayerLeft(cb func(id uint32)) {
	b.onPlayerLeft = append(b.onPlayerLeft, cb)
}

// OnPlayerNearby fires when a player enters audio range on the bot's
// level.
func (b *Bot) OnPlayerNearby(cb func(p wire.PlayerState)) {
	b.onPlayerNearby = append(b.onPlayerNearby, cb)
}

func (b *Bot) OnPlayerLeftRange(cb func(p wire.PlayerState)) {
	b.onPlayerLeftRange = append(b.onPlayerLeftRange, cb)
}

func (b *Bot) OnPlayerSpeaks(cb func(p wire.PlayerState)) {
	b.onPlayerSpeaks = append(b.onPlayerSpeaks, cb)
}

func (b *Bot) OnPlayerStopsSpeaking(cb func(p wire.PlayerState)) {
	b.onPlayerStopsSpeak = append(b.onPlayerStopsSpeak, cb)
}

// Connect loads the bot's identity and completes the session handshake.
func (b *Bot) Connect(ctx context.Context) error {
	dir := b.IdentityDir
	if dir == "" {
		var err error
		if dir, err = DefaultIdentityDir(b.Name); err != nil {
			return err
		}
	}
	id, err := gameclient.LoadOrCreateIdentity(dir)
	if err != nil {
		return err
	}

	cacheDir := b.CacheDir
	if cacheDir == "" {
		if cacheDir, err = gameclient.DefaultCacheDir(); err != nil {
			return err
		}
	}

	b.nearby = map[uint32]bool{}
	b.speaking = map[uint32]time.Time{}
	b.client = &gameclient.Client{
		Addr:   b.Addr,
		Name:   b.Name,
		Key:    id.Private,
		Cache:  gameclient.NewCache(cacheDir),
		Logger: b.Logger,
		Handlers: gameclient.Handlers{
			WorldState:   b.handleWorldState,
			PlayerJoined: b.handlePlayerJoined,
			PlayerLeft:   b.handlePlayerLeft,
		},
	}
	return b.client.Connect(ctx)
}

// Run drives the session until ctx is cancelled or the connection
// drops: the read loop plus the speaking-timeout sweeper.
func (b *Bot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.client.Run(ctx)
	})
	g.Go(func() error {
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-t.C:
				b.sweepSpeaking(now)
			}
		}
	})
	return g.Wait()
}

func (b *Bot) Close() error {
	return b.client.Close()
}

func (b *Bot) handleWorldState(players []wire.PlayerState) {
	x, y, levelName := b.client.Position()
	current := nearbyPlayers(players, b.client.PlayerID(), levelName, x, y)

	b.mu.Lock()
	var entered, left []wire.PlayerState
	for id, p := range current {
		if !b.nearby[id] {
			entered = append(entered, p)
		}
	}
	for id := range b.nearby {
		if _, still := current[id]; !still {
			if p, ok := findPlayer(players, id); ok {
				left = append(left, p)
			}
		}
	}
	b.nearby = map[uint32]bool{}
	for id := range current {
		b.nearby[id] = true
	}
	b.mu.Unlock()

	for _, p := range entered {
		for _, cb := range b.onPlayerNearby {
			cb(p)
		}
	}
	for _, p := range left {
		for _, cb := range b.onPlayerLeftRange {
			cb(p)
		}
	}
	for _, cb := range b.onWorldState {
		cb(players)
	}
}

func (b *Bot) handlePlayerJoined(id uint32, name string) {
	for _, cb := range b.onPlayerJoined {
		cb(id, name)
	}
}

func (b *Bot) handlePlayerLeft(id uint32) {
	for _, cb := range b.onPlayerLeft {
		cb(id)
	}
}

// nearbyPlayers selects the players within audio range of (x, y) on the
// same level, excluding the bot itself.
func nearbyPlayers(players []wire.PlayerState, selfID uint32, levelName string, x, y int) map[uint32]wire.PlayerState {
	out := map[uint32]wire.PlayerState{}
	for _, p := range players {
		if p.PlayerID == selfID || p.LevelName != levelName {
			continue
		}
		if chebyshev(level.Pos{X: x, Y: y}, level.Pos{X: int(p.X), Y: int(p.Y)}) <= audio.MaxDistance {
			out[p.PlayerID] = p
		}
	}
	return out
}

func findPlayer(players []wire.PlayerState, id uint32) (wire.PlayerState, bool) {
	for _, p := range players {
		if p.PlayerID == id {
			return p, true
		}
	}
	return wire.PlayerState{}, false
}

// NoteAudioFrame records that a media frame arrived from the named
// player. The first frame after silence fires the speaks callback; the
// sweeper fires the stop callback after the silence timeout.
func (b *Bot) NoteAudioFrame(playerName string) {
	players := b.client.Players()
	var speaker wire.PlayerState
	found := false
	for _, p := range players {
		if p.Name == playerName {
			speaker, found = p, true
			break
		}
	}
	if !found {
		return
	}

	b.mu.Lock()
	_, wasSpeaking := b.speaking[speaker.PlayerID]
	b.speaking[speaker.PlayerID] = time.Now()
	b.mu.Unlock()

	if !wasSpeaking {
		for _, cb := range b.onPlayerSpeaks {
			cb(speaker)
		}
	}
}

func (b *Bot) sweepSpeaking(now time.Time) {
	b.mu.Lock()
	var stopped []uint32
	for id, last := range b.speaking {
		if now.Sub(last) > speakingTimeout {
			stopped = append(stopped, id)
			delete(b.speaking, id)
		}
	}
	b.mu.Unlock()

	if len(stopped) == 0 {
		return
	}
	players := b.client.Players()
	for _, id := range stopped {
		if p, ok := findPlayer(players, id); ok {
			for _, cb := range b.onPlayerStopsSpeak {
				cb(p)
			}
		}
	}
}

// Move applies one predicted step in the given direction.
func (b *Bot) Move(dx, dy int) (bool, error) {
	return b.client.Move(dx, dy)
}

// MoveTo walks to (x, y) with A*, one step per stepDelay. It reports
// whether the whole path was walked.
func (b *Bot) MoveTo(ctx context.Context, x, y int, stepDelay time.Duration) (bool, error) {
	lv := b.client.Level()
	if lv == nil {
		return false, nil
	}
	cx, cy, _ := b.client.Position()
	path := FindPath(level.Pos{X: cx, Y: cy}, level.Pos{X: x, Y: y}, lv)
	if path == nil {
		return false, nil
	}

	for _, step := range path[1:] {
		cx, cy, _ = b.client.Position()
		ok, err := b.client.Move(step.X-cx, step.Y-cy)
		if err != nil || !ok {
			return false, err
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(stepDelay):
		}
	}
	return true, nil
}

// SetMuted updates the bot's mute flag on the server.
func (b *Bot) SetMuted(muted bool) error {
	return b.client.SetMuted(muted)
}

// Position returns the bot's predicted position and level.
func (b *Bot) Position() (x, y int, levelName string) {
	return b.client.Position()
}

// Players returns the roster from the last world snapshot.
func (b *Bot) Players() []wire.PlayerState {
	return b.client.Players()
}

// Level returns the currently loaded level.
func (b *Bot) Level() *level.Level {
	return b.client.Level()
}

// SFU returns the voice server URL and join token.
func (b *Bot) SFU() (url, token string) {
	return b.client.SFU()
}
