// Package audio implements proximity volume for voice: a precomputed
// squared-distance lookup table and a per-source recipient cache. The
// media itself never passes through this process; clients apply these
// volumes to SFU streams, and bots use the same ranges for proximity
// events.
package audio

import "math"

const (
	// MaxDistance is the tile distance at which a peer becomes silent.
	MaxDistance = 10

	// FullVolumeDistance is the radius inside which volume is 1.0.
	FullVolumeDistance = 2

	maxDistanceSq        = MaxDistance * MaxDistance
	fullVolumeDistanceSq = FullVolumeDistance * FullVolumeDistance
)

// volumeTable[squaredDistance] -> volume. Precomputed so Volume never
// takes a square root.
var volumeTable = func() [maxDistanceSq + 1]float64 {
	var t [maxDistanceSq + 1]float64
	for distSq := range t {
		if distSq <= fullVolumeDistanceSq {
			t[distSq] = 1.0
		} else {
			t[distSq] = 1.0 - (math.Sqrt(float64(distSq))-FullVolumeDistance)/(MaxDistance-FullVolumeDistance)
		}
	}
	return t
}()

// Volume returns the playback volume for a peer offset by (dx, dy)
// tiles: 1.0 inside FullVolumeDistance, linear falloff to 0.0 at
// MaxDistance, 0.0 beyond.
func Volume(dx, dy int) float64 {
	distSq := dx*dx + dy*dy
	if distSq > maxDistanceSq {
		return 0.0
	}
	return volumeTable[distSq]
}

// InRange reports whether a peer offset by (dx, dy) is audible at all.
func InRange(dx, dy int) bool {
	return dx*dx+dy*dy <= maxDistanceSq
}
