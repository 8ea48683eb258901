package audio

import "sync"

// Peer is the position snapshot of one player on the source's level.
type Peer struct {
	ID uint32
	X  int
	Y  int
}

// Recipient is one peer within audio range of a source, with its volume.
type Recipient struct {
	ID     uint32
	Volume float64
}

type cacheEntry struct {
	x, y       int
	recipients []Recipient
	peerPos    map[uint32]Peer
}

// RecipientCache caches the audio recipients of each source. An entry
// stays valid while the source holds its position, every cached
// recipient keeps its volume, and no new peer enters range. This is an
// optimisation only; recomputing on every call is equally correct.
type RecipientCache struct {
	mu      sync.Mutex
	entries map[uint32]cacheEntry
}

// NewRecipientCache creates an empty cache.
func NewRecipientCache() *RecipientCache {
	return &RecipientCache{entries: map[uint32]cacheEntry{}}
}

// Recipients returns the peers who can hear the source, with volumes.
// peers must not include the source itself and should already be
// filtered to the source's level. A muted source has no recipients.
func (c *RecipientCache) Recipients(source Peer, muted bool, peers []Peer) []Recipient {
	if muted {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[source.ID]; ok && e.x == source.X && e.y == source.Y {
		if c.stillValid(e, source, peers) {
			return e.recipients
		}
	}

	e := cacheEntry{x: source.X, y: source.Y, peerPos: make(map[uint32]Peer, len(peers))}
	for _, p := range peers {
		if v := Volume(p.X-source.X, p.Y-source.Y); v > 0.0 {
			e.recipients = append(e.recipients, Recipient{ID: p.ID, Volume: v})
			e.peerPos[p.ID] = p
		}
	}
	c.entries[source.ID] = e
	return e.recipients
}

func (c *RecipientCache) stillValid(e cacheEntry, source Peer, peers []Peer) bool {
	live := make(map[uint32]Peer, len(peers))
	for _, p := range peers {
		live[p.ID] = p
	}

	// A cached recipient moved or left.
	for _, r := range e.recipients {
		p, ok := live[r.ID]
		if !ok {
			return false
		}
		v := Volume(p.X-source.X, p.Y-source.Y)
		if v-r.Volume > 0.01 || r.Volume-v > 0.01 {
			return false
		}
	}

	// A new peer entered range.
	for _, p := range peers {
		if _, cached := e.peerPos[p.ID]; cached {
			continue
		}
		if Volume(p.X-source.X, p.Y-source.Y) > 0.0 {
			return false
		}
	}
	return true
}

// Invalidate drops the cached entry for one source.
func (c *RecipientCache) Invalidate(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// InvalidateAll drops every cached entry.
func (c *RecipientCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[uint32]cacheEntry{}
}
