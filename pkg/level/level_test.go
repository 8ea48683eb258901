package level

import (
	"testing"
)

const testGrid = "#####\n" +
	"#@..#\n" +
	"#.+.#\n" +
	"#####"

func testLevel(t *testing.T) *Level {
	t.Helper()
	lv, err := ParseGrid("main", []byte(testGrid), nil)
	if err != nil {
		t.Fatalf("ParseGrid error: %v", err)
	}
	return lv
}

func TestParseGrid(t *testing.T) {
	lv := testLevel(t)
	if lv.Width != 5 || lv.Height != 4 {
		t.Errorf("size = %dx%d, want 5x4", lv.Width, lv.Height)
	}
	if ch := lv.TileAt(2, 2); ch != '+' {
		t.Errorf("TileAt(2,2) = %q, want '+'", ch)
	}
	if ch := lv.TileAt(-1, 0); ch != ' ' {
		t.Errorf("TileAt(-1,0) = %q, want space", ch)
	}
}

func TestParseGridPadsShortRows(t *testing.T) {
	lv, err := ParseGrid("main", []byte("###\n#\n###"), nil)
	if err != nil {
		t.Fatalf("ParseGrid error: %v", err)
	}
	if lv.Width != 3 {
		t.Errorf("width = %d, want 3", lv.Width)
	}
	if ch := lv.TileAt(2, 1); ch != ' ' {
		t.Errorf("padded TileAt(2,1) = %q, want space", ch)
	}
}

func TestParseGridEmpty(t *testing.T) {
	if _, err := ParseGrid("main", []byte("\n\n"), nil); err == nil {
		t.Error("ParseGrid on empty grid did not fail")
	}
}

func TestIsWalkable(t *testing.T) {
	lv := testLevel(t)
	tests := []struct {
		x, y int
		want bool
	}{
		{1, 1, true},  // spawn
		{2, 1, true},  // floor
		{2, 2, true},  // door
		{0, 0, false}, // wall
		{-1, 1, false},
		{5, 1, false},
		{1, 4, false},
	}
	for _, tt := range tests {
		if got := lv.IsWalkable(tt.x, tt.y); got != tt.want {
			t.Errorf("IsWalkable(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestUnknownTileNotWalkable(t *testing.T) {
	lv, err := ParseGrid("main", []byte(".?."), nil)
	if err != nil {
		t.Fatalf("ParseGrid error: %v", err)
	}
	if lv.IsWalkable(1, 0) {
		t.Error("undefined tile reported walkable")
	}
}

func TestSpawnPosition(t *testing.T) {
	lv := testLevel(t)
	x, y, ok := lv.SpawnPosition()
	if !ok || x != 1 || y != 1 {
		t.Errorf("SpawnPosition = (%d,%d,%v), want (1,1,true)", x, y, ok)
	}

	// No spawn tile: first walkable in row-major order.
	lv2, err := ParseGrid("plain", []byte("###\n#.#\n###"), nil)
	if err != nil {
		t.Fatalf("ParseGrid error: %v", err)
	}
	x, y, ok = lv2.SpawnPosition()
	if !ok || x != 1 || y != 1 {
		t.Errorf("fallback SpawnPosition = (%d,%d,%v), want (1,1,true)", x, y, ok)
	}

	// Nothing walkable at all.
	lv3, err := ParseGrid("solid", []byte("###\n###"), nil)
	if err != nil {
		t.Fatalf("ParseGrid error: %v", err)
	}
	if _, _, ok = lv3.SpawnPosition(); ok {
		t.Error("SpawnPosition on a solid level reported ok")
	}
}

func TestParseMeta(t *testing.T) {
	lv := testLevel(t)
	err := lv.ParseMeta([]byte(`{
		"doors": [
			{"x": 2, "y": 2, "target_level": "dungeon", "target_x": 3, "target_y": 4},
			{"x": 3, "y": 1, "target_x": 1, "target_y": 1}
		],
		"streams": [
			{"x": 1, "y": 2, "url": "https://radio.example.com/jazz"},
			{"x": 3, "y": 2, "url": "https://radio.example.com/rain", "radius": 2}
		]
	}`))
	if err != nil {
		t.Fatalf("ParseMeta error: %v", err)
	}

	d, ok := lv.DoorAt(2, 2)
	if !ok {
		t.Fatal("DoorAt(2,2) not found")
	}
	if d.TargetLevel != "dungeon" || d.TargetX != 3 || d.TargetY != 4 {
		t.Errorf("DoorAt(2,2) = %+v", d)
	}

	// (3,1) has a door table entry but its tile is a plain floor.
	if _, ok := lv.DoorAt(3, 1); ok {
		t.Error("DoorAt(3,1) triggered on a non-door tile")
	}

	if s := lv.Streams[Pos{1, 2}]; s.Radius != 5 {
		t.Errorf("default stream radius = %d, want 5", s.Radius)
	}
	if s := lv.Streams[Pos{3, 2}]; s.Radius != 2 {
		t.Errorf("stream radius = %d, want 2", s.Radius)
	}
}

func TestParseTiles(t *testing.T) {
	tiles, err := ParseTiles([]byte(`{
		"tiles": {
			"~": {"walkable": true, "color": "blue", "name": "water",
			      "walking_sound": "splash.ogg", "animation_colors": ["blue", "cyan"],
			      "blocks_sight": false},
			"T": {"walkable": false, "color": "green", "name": "tree", "blocks_sound": false}
		}
	}`))
	if err != nil {
		t.Fatalf("ParseTiles error: %v", err)
	}

	w := tiles['~']
	if !w.Walkable || w.WalkingSound != "splash.ogg" || len(w.AnimationColors) != 2 {
		t.Errorf("water tile = %+v", w)
	}
	if w.BlocksSight || w.BlocksSound {
		t.Errorf("water blocks_sight/sound = %v/%v, want false/false", w.BlocksSight, w.BlocksSound)
	}

	tree := tiles['T']
	if !tree.BlocksSight {
		t.Error("tree blocks_sight should default to !walkable")
	}
	if tree.BlocksSound {
		t.Error("tree blocks_sound explicitly false")
	}
}

func TestParseTilesBadKey(t *testing.T) {
	if _, err := ParseTiles([]byte(`{"tiles": {"ab": {"walkable": true, "color": "red"}}}`)); err == nil {
		t.Error("multi-character tile key did not fail")
	}
}
