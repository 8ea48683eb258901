// Package level holds the immutable tile-based world data: per-level
// grids, tile definitions, door and stream tables, and the
// content-addressed manifests used for level distribution.
package level

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Pos is a tile coordinate.
type Pos struct {
	X, Y int
}

// DoorInfo is the destination of a door tile. An empty TargetLevel
// denotes a same-level teleporter.
type DoorInfo struct {
	TargetLevel string
	TargetX     int
	TargetY     int
}

// StreamInfo is radio-stream metadata attached to a tile. The server
// carries it opaquely; clients decide what to do with it.
type StreamInfo struct {
	URL    string
	Radius int
}

// Level is one parsed level. Immutable after load.
type Level struct {
	Name    string
	Width   int
	Height  int
	Tiles   map[rune]TileDef
	Doors   map[Pos]DoorInfo
	Streams map[Pos]StreamInfo

	grid [][]rune
	raw  []byte
}

// ParseGrid parses level.txt bytes into a Level with the given tile set.
// Rows shorter than the widest row are padded with spaces.
func ParseGrid(name string, raw []byte, tiles map[rune]TileDef) (*Level, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil, fmt.Errorf("level %q: empty grid", name)
	}
	lines := strings.Split(text, "\n")

	width := 0
	for _, ln := range lines {
		if n := len([]rune(ln)); n > width {
			width = n
		}
	}

	grid := make([][]rune, len(lines))
	for y, ln := range lines {
		row := make([]rune, width)
		for i := range row {
			row[i] = ' '
		}
		copy(row, []rune(ln))
		grid[y] = row
	}

	if tiles == nil {
		tiles = BuiltinTiles()
	}
	return &Level{
		Name:    name,
		Width:   width,
		Height:  len(lines),
		Tiles:   tiles,
		Doors:   map[Pos]DoorInfo{},
		Streams: map[Pos]StreamInfo{},
		grid:    grid,
		raw:     raw,
	}, nil
}

// Raw returns the original level.txt bytes, as sent in SERVER_HELLO.
func (l *Level) Raw() []byte {
	return l.raw
}

// InBounds reports whether (x, y) is on the grid.
func (l *Level) InBounds(x, y int) bool {
	return x >= 0 && x < l.Width && y >= 0 && y < l.Height
}

// TileAt returns the tile character at (x, y), or space out of bounds.
func (l *Level) TileAt(x, y int) rune {
	if !l.InBounds(x, y) {
		return ' '
	}
	return l.grid[y][x]
}

// Def returns the definition for a tile character.
func (l *Level) Def(ch rune) TileDef {
	if def, ok := l.Tiles[ch]; ok {
		return def
	}
	return DefaultTile
}

// IsWalkable reports whether (x, y) is in bounds and walkable.
func (l *Level) IsWalkable(x, y int) bool {
	if !l.InBounds(x, y) {
		return false
	}
	return l.Def(l.grid[y][x]).Walkable
}

// DoorAt returns the door destination at (x, y), if the tile there is a
// door with an entry in the door table.
func (l *Level) DoorAt(x, y int) (DoorInfo, bool) {
	if !l.Def(l.TileAt(x, y)).IsDoor {
		return DoorInfo{}, false
	}
	d, ok := l.Doors[Pos{x, y}]
	return d, ok
}

// SpawnPosition picks a spawn tile, preferring is_spawn tiles and falling
// back to the first walkable tile in row-major order.
func (l *Level) SpawnPosition() (x, y int, ok bool) {
	for yy := 0; yy < l.Height; yy++ {
		for xx := 0; xx < l.Width; xx++ {
			if l.Def(l.grid[yy][xx]).IsSpawn {
				return xx, yy, true
			}
		}
	}
	for yy := 0; yy < l.Height; yy++ {
		for xx := 0; xx < l.Width; xx++ {
			if l.Def(l.grid[yy][xx]).Walkable {
				return xx, yy, true
			}
		}
	}
	return 0, 0, false
}

type doorJSON struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	TargetLevel string `json:"target_level"`
	TargetX     int    `json:"target_x"`
	TargetY     int    `json:"target_y"`
}

type streamJSON struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	URL    string `json:"url"`
	Radius *int   `json:"radius"`
}

type levelFileJSON struct {
	Doors   []doorJSON   `json:"doors"`
	Streams []streamJSON `json:"streams"`
}

// ParseMeta parses a level.json document into the level's door and
// stream tables.
func (l *Level) ParseMeta(data []byte) error {
	var f levelFileJSON
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse level.json: %w", err)
	}
	for _, d := range f.Doors {
		l.Doors[Pos{d.X, d.Y}] = DoorInfo{
			TargetLevel: d.TargetLevel,
			TargetX:     d.TargetX,
			TargetY:     d.TargetY,
		}
	}
	for _, s := range f.Streams {
		radius := 5
		if s.Radius != nil {
			radius = *s.Radius
		}
		l.Streams[Pos{s.X, s.Y}] = StreamInfo{URL: s.URL, Radius: radius}
	}
	return nil
}
