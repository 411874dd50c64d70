package world

import (
	"fmt"
	"math"
)

// BlockAir is the canonical empty cell identity. Ports may also report an
// empty string for unloaded or void cells; use IsEmpty for either.
const BlockAir = "AIR"

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) Sub(o Vec3i) Vec3i { return Vec3i{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func FromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

// Dist is euclidean distance between block centers.
func (v Vec3i) Dist(o Vec3i) float64 {
	dx := float64(v.X - o.X)
	dy := float64(v.Y - o.Y)
	dz := float64(v.Z - o.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// AxisNeighbors returns the six axis-aligned neighbors in a fixed,
// deterministic order: below, above, -x, +x, -z, +z.
func (v Vec3i) AxisNeighbors() [6]Vec3i {
	return [6]Vec3i{
		{v.X, v.Y - 1, v.Z},
		{v.X, v.Y + 1, v.Z},
		{v.X - 1, v.Y, v.Z},
		{v.X + 1, v.Y, v.Z},
		{v.X, v.Y, v.Z - 1},
		{v.X, v.Y, v.Z + 1},
	}
}

// CardinalOffsets are the four lateral unit moves used by stuck recovery.
var CardinalOffsets = [4]Vec3i{
	{X: 1}, {X: -1}, {Z: 1}, {Z: -1},
}

func IsEmpty(blockID string) bool { return blockID == "" || blockID == BlockAir }

type ItemStack struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Entity struct {
	Kind string `json:"kind"` // "hostile", "passive", "player", ...
	Name string `json:"name"`
	Pos  Vec3i  `json:"pos"`
}

type Vitals struct {
	Health int `json:"health"`
	Food   int `json:"food"`
}

type Weather struct {
	Raining   bool    `json:"raining"`
	TimeOfDay float64 `json:"time_of_day"` // fraction of day in [0,1); night is [0.5,1)
}

// IsNight reports whether the time of day falls in the night window.
func (w Weather) IsNight() bool { return w.TimeOfDay >= 0.5 }
