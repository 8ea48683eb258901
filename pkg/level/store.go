package level

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// ManifestEntry describes one level file for content-addressed
// distribution.
type ManifestEntry struct {
	Filename string
	Hash     string
	Size     uint32
}

// Store holds every level pack loaded at startup. Read-only afterwards.
type Store struct {
	levels    map[string]*Level
	manifests map[string][]ManifestEntry
	contents  map[string]map[string][]byte
}

// Load walks every subdirectory of dir as a level pack: level.txt is the
// grid (mandatory), tiles.json and level.json are optional, and every
// file is hashed into the level's manifest and retained verbatim. The
// "main" level must exist. Consistency problems are logged as warnings,
// not errors.
func Load(dir string, log zerolog.Logger) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read levels directory: %w", err)
	}

	s := &Store{
		levels:    map[string]*Level{},
		manifests: map[string][]ManifestEntry{},
		contents:  map[string]map[string][]byte{},
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if err := s.loadPack(name, filepath.Join(dir, name), log); err != nil {
			return nil, fmt.Errorf("load level %q: %w", name, err)
		}
	}

	if _, ok := s.levels["main"]; !ok {
		return nil, fmt.Errorf("required level folder %q not found in %s", "main", dir)
	}
	return s, nil
}

func (s *Store) loadPack(name, dir string, log zerolog.Logger) error {
	contents := map[string][]byte{}
	var manifest []ManifestEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		sum := sha256.Sum256(data)
		contents[rel] = data
		manifest = append(manifest, ManifestEntry{
			Filename: rel,
			Hash:     hex.EncodeToString(sum[:]),
			Size:     uint32(len(data)),
		})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(manifest, func(i, j int) bool {
		return manifest[i].Filename < manifest[j].Filename
	})

	raw, ok := contents["level.txt"]
	if !ok {
		return fmt.Errorf("level.txt not found")
	}

	var tiles map[rune]TileDef
	if data, ok := contents["tiles.json"]; ok {
		if tiles, err = ParseTiles(data); err != nil {
			return err
		}
	} else {
		tiles = BuiltinTiles()
	}

	lv, err := ParseGrid(name, raw, tiles)
	if err != nil {
		return err
	}
	if data, ok := contents["level.json"]; ok {
		if err := lv.ParseMeta(data); err != nil {
			return err
		}
	}
	validate(lv, log)

	s.levels[name] = lv
	s.manifests[name] = manifest
	s.contents[name] = contents

	var total uint32
	for _, m := range manifest {
		total += m.Size
	}
	doors := 0
	for _, def := range tiles {
		if def.IsDoor {
			doors++
		}
	}
	log.Info().
		Str("level", name).
		Int("width", lv.Width).
		Int("height", lv.Height).
		Int("door_tiles", doors).
		Int("files", len(manifest)).
		Uint32("bytes", total).
		Msg("loaded level pack")
	return nil
}

// validate logs warnings for undefined grid characters, door entries on
// non-door tiles, teleporters with bad targets, and door tiles with no
// destination.
func validate(lv *Level, log zerolog.Logger) {
	seenUndefined := map[rune]bool{}
	for y := 0; y < lv.Height; y++ {
		for x := 0; x < lv.Width; x++ {
			ch := lv.TileAt(x, y)
			if _, ok := lv.Tiles[ch]; !ok && !seenUndefined[ch] {
				seenUndefined[ch] = true
				log.Warn().
					Str("level", lv.Name).
					Str("tile", string(ch)).
					Int("x", x).Int("y", y).
					Msg("tile not defined in tiles.json")
			}
		}
	}

	for pos, door := range lv.Doors {
		if !lv.Def(lv.TileAt(pos.X, pos.Y)).IsDoor {
			log.Warn().
				Str("level", lv.Name).
				Int("x", pos.X).Int("y", pos.Y).
				Str("target", door.TargetLevel).
				Msg("door entry on a tile without is_door, teleporter will not trigger")
		}
		if door.TargetLevel == "" {
			if !lv.InBounds(door.TargetX, door.TargetY) {
				log.Warn().
					Str("level", lv.Name).
					Int("x", pos.X).Int("y", pos.Y).
					Int("target_x", door.TargetX).Int("target_y", door.TargetY).
					Msg("teleporter target outside level bounds")
			} else if !lv.IsWalkable(door.TargetX, door.TargetY) {
				log.Warn().
					Str("level", lv.Name).
					Int("x", pos.X).Int("y", pos.Y).
					Int("target_x", door.TargetX).Int("target_y", door.TargetY).
					Msg("teleporter target is not walkable")
			}
		}
	}

	for y := 0; y < lv.Height; y++ {
		for x := 0; x < lv.Width; x++ {
			if lv.Def(lv.TileAt(x, y)).IsDoor {
				if _, ok := lv.Doors[Pos{x, y}]; !ok {
					log.Warn().
						Str("level", lv.Name).
						Int("x", x).Int("y", y).
						Msg("door tile has no destination in level.json")
				}
			}
		}
	}
}

// Get returns a level by name.
func (s *Store) Get(name string) (*Level, bool) {
	lv, ok := s.levels[name]
	return lv, ok
}

// Names returns the loaded level names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.levels))
	for name := range s.levels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manifest returns the manifest for a level, sorted by filename. An
// unknown level yields an empty manifest.
func (s *Store) Manifest(name string) []ManifestEntry {
	return s.manifests[name]
}

// FileContents returns the verbatim bytes of one level file.
func (s *Store) FileContents(level, filename string) ([]byte, bool) {
	files, ok := s.contents[level]
	if !ok {
		return nil, false
	}
	data, ok := files[filename]
	return data, ok
}
