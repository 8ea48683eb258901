package audio

import (
	"math"
	"testing"
)

func TestVolume(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy int
		want   float64
	}{
		{"same tile", 0, 0, 1.0},
		{"inside full radius", 2, 0, 1.0},
		{"diagonal inside full radius", 1, 1, 1.0},
		{"at max distance", 10, 0, 0.0},
		{"beyond max distance", 11, 0, 0.0},
		{"far diagonal", 8, 8, 0.0},
		{"negative offsets symmetric", -5, 0, 1.0 - (5.0-2.0)/8.0},
		{"midway", 6, 0, 1.0 - (6.0-2.0)/8.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Volume(tt.dx, tt.dy); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Volume(%d,%d) = %v, want %v", tt.dx, tt.dy, got, tt.want)
			}
		})
	}
}

func TestVolumeMonotonic(t *testing.T) {
	prev := 1.1
	for d := 0; d <= 11; d++ {
		v := Volume(d, 0)
		if v > prev {
			t.Errorf("Volume(%d,0) = %v rose above %v", d, v, prev)
		}
		prev = v
	}
}

func TestRecipients(t *testing.T) {
	c := NewRecipientCache()
	src := Peer{ID: 1, X: 10, Y: 10}
	peers := []Peer{
		{ID: 2, X: 11, Y: 10}, // adjacent, full volume
		{ID: 3, X: 17, Y: 10}, // in falloff
		{ID: 4, X: 30, Y: 30}, // out of range
	}

	got := c.Recipients(src, false, peers)
	if len(got) != 2 {
		t.Fatalf("recipients = %v, want 2 entries", got)
	}
	if got[0].ID != 2 || got[0].Volume != 1.0 {
		t.Errorf("recipient[0] = %+v", got[0])
	}
	if got[1].ID != 3 || got[1].Volume <= 0.0 || got[1].Volume >= 1.0 {
		t.Errorf("recipient[1] = %+v", got[1])
	}
}

func TestRecipientsMuted(t *testing.T) {
	c := NewRecipientCache()
	if got := c.Recipients(Peer{ID: 1}, true, []Peer{{ID: 2, X: 1}}); got != nil {
		t.Errorf("muted recipients = %v, want nil", got)
	}
}

func TestRecipientCacheInvalidation(t *testing.T) {
	c := NewRecipientCache()
	src := Peer{ID: 1, X: 0, Y: 0}
	peers := []Peer{{ID: 2, X: 1, Y: 0}}

	first := c.Recipients(src, false, peers)

	// Unchanged world: cached slice is reused.
	second := c.Recipients(src, false, peers)
	if &first[0] != &second[0] {
		t.Error("unchanged world did not hit the cache")
	}

	// A recipient moved out of range.
	moved := []Peer{{ID: 2, X: 20, Y: 0}}
	if got := c.Recipients(src, false, moved); len(got) != 0 {
		t.Errorf("recipients after move = %v, want none", got)
	}

	// A new peer entered range.
	joined := []Peer{{ID: 2, X: 20, Y: 0}, {ID: 3, X: 0, Y: 1}}
	got := c.Recipients(src, false, joined)
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("recipients after join = %v, want peer 3", got)
	}

	// The source moved: position key changes, entry rebuilt.
	got = c.Recipients(Peer{ID: 1, X: 19, Y: 0}, false, joined)
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("recipients after source move = %v, want peer 2", got)
	}

	c.Invalidate(1)
	c.InvalidateAll()
}
