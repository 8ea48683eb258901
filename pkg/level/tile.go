package level

import (
	"fmt"

	"github.com/goccy/go-json"
)

// TileDef describes one tile character. The server consults Walkable,
// IsDoor and IsSpawn; the visual fields pass through to clients untouched.
type TileDef struct {
	Char            rune
	Walkable        bool
	Color           string
	Name            string
	WalkingSound    string
	NearbySound     string
	AnimationColors []string
	BlocksSight     bool
	BlocksSound     bool
	IsDoor          bool
	IsSpawn         bool
	RenderChar      string
}

// DefaultTile is used for characters with no definition. Non-walkable so
// that typos in a grid never open a hole in the map.
var DefaultTile = TileDef{Char: '?', Color: "white"}

var builtinTiles = map[rune]TileDef{
	'#': {Char: '#', Walkable: false, Color: "white", Name: "wall", BlocksSight: true, BlocksSound: true},
	'.': {Char: '.', Walkable: true, Color: "white", Name: "floor"},
	' ': {Char: ' ', Walkable: false, Color: "white", Name: "void", BlocksSight: true, BlocksSound: true},
	'+': {Char: '+', Walkable: true, Color: "yellow", Name: "door", IsDoor: true},
	'@': {Char: '@', Walkable: true, Color: "green", Name: "spawn", IsSpawn: true},
}

// BuiltinTiles returns the fallback tile set used when a level pack
// carries no tiles.json.
func BuiltinTiles() map[rune]TileDef {
	tiles := make(map[rune]TileDef, len(builtinTiles))
	for ch, def := range builtinTiles {
		tiles[ch] = def
	}
	return tiles
}

type tileJSON struct {
	Walkable        bool     `json:"walkable"`
	Color           string   `json:"color"`
	Name            string   `json:"name"`
	WalkingSound    string   `json:"walking_sound"`
	NearbySound     string   `json:"nearby_sound"`
	AnimationColors []string `json:"animation_colors"`
	BlocksSight     *bool    `json:"blocks_sight"`
	BlocksSound     *bool    `json:"blocks_sound"`
	IsDoor          bool     `json:"is_door"`
	IsSpawn         bool     `json:"is_spawn"`
	RenderChar      string   `json:"render_char"`
}

type tilesFileJSON struct {
	Tiles map[string]tileJSON `json:"tiles"`
}

// ParseTiles parses a tiles.json document. Absent blocks_sight and
// blocks_sound default to the inverse of walkable.
func ParseTiles(data []byte) (map[rune]TileDef, error) {
	var f tilesFileJSON
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tiles.json: %w", err)
	}
	tiles := make(map[rune]TileDef, len(f.Tiles))
	for key, t := range f.Tiles {
		chars := []rune(key)
		if len(chars) != 1 {
			return nil, fmt.Errorf("parse tiles.json: tile key %q is not a single character", key)
		}
		ch := chars[0]
		def := TileDef{
			Char:            ch,
			Walkable:        t.Walkable,
			Color:           t.Color,
			Name:            t.Name,
			WalkingSound:    t.WalkingSound,
			NearbySound:     t.NearbySound,
			AnimationColors: t.AnimationColors,
			BlocksSight:     !t.Walkable,
			BlocksSound:     !t.Walkable,
			IsDoor:          t.IsDoor,
			IsSpawn:         t.IsSpawn,
			RenderChar:      t.RenderChar,
		}
		if t.BlocksSight != nil {
			def.BlocksSight = *t.BlocksSight
		}
		if t.BlocksSound != nil {
			def.BlocksSound = *t.BlocksSound
		}
		tiles[ch] = def
	}
	return tiles, nil
}
