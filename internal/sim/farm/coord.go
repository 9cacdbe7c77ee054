package farm

import (
	"sort"

	"plotland.farm/internal/sim/catalogs"
)

// Coord is a grid cell identity with value equality. The grid is a mapping,
// not a sequence; no ordering is implied by the key itself.
type Coord struct {
	X int
	Y int
}

func (c Coord) ToArray() [2]int { return [2]int{c.X, c.Y} }

func rectCoords(r catalogs.Rect) []Coord {
	out := make([]Coord, 0, (r[2]-r[0]+1)*(r[3]-r[1]+1))
	for y := r[1]; y <= r[3]; y++ {
		for x := r[0]; x <= r[2]; x++ {
			out = append(out, Coord{X: x, Y: y})
		}
	}
	return out
}

// sortCoords orders row-major (Y, then X) so bulk results are deterministic.
func sortCoords(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Y != cs[j].Y {
			return cs[i].Y < cs[j].Y
		}
		return cs[i].X < cs[j].X
	})
}
