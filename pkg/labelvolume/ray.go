package labelvolume

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"segedit/internal/models"
)

// RayIntersection marches from origin along direction one voxel at a time and returns
// the first voxel that is not background. Voxel centers sit at integer coordinates.
// Rays that start outside the volume are clipped to its bounds first. A zero
// direction, a non-finite component or a ray that hits nothing returns false.
func (v *Volume) RayIntersection(origin, direction r3.Vec) (models.Coord, bool) {
	if !finite(origin) || !finite(direction) || r3.Norm(direction) == 0 {
		return models.Coord{}, false
	}

	// shift so voxel i covers [i, i+1)
	p := r3.Add(origin, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	d := [3]float64{direction.X, direction.Y, direction.Z}
	pos := [3]float64{p.X, p.Y, p.Z}

	tEnter, tExit := 0.0, math.Inf(1)
	for a := 0; a < 3; a++ {
		lo, hi := 0.0, float64(v.size[a])
		if d[a] == 0 {
			if pos[a] < lo || pos[a] >= hi {
				return models.Coord{}, false
			}
			continue
		}
		t1, t2 := (lo-pos[a])/d[a], (hi-pos[a])/d[a]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tEnter = math.Max(tEnter, t1)
		tExit = math.Min(tExit, t2)
	}
	if tEnter > tExit {
		return models.Coord{}, false
	}

	entry := r3.Add(p, r3.Scale(tEnter, direction))
	q := [3]float64{entry.X, entry.Y, entry.Z}

	var cell, step [3]int
	var tMax, tDelta [3]float64
	for a := 0; a < 3; a++ {
		cell[a] = int(math.Floor(q[a]))
		if cell[a] < 0 {
			cell[a] = 0
		}
		if cell[a] >= v.size[a] {
			cell[a] = v.size[a] - 1
		}

		switch {
		case d[a] > 0:
			step[a] = 1
			tMax[a] = tEnter + (float64(cell[a]+1)-q[a])/d[a]
			tDelta[a] = 1 / d[a]
		case d[a] < 0:
			step[a] = -1
			tMax[a] = tEnter + (float64(cell[a])-q[a])/d[a]
			tDelta[a] = -1 / d[a]
		default:
			tMax[a] = math.Inf(1)
			tDelta[a] = math.Inf(1)
		}
	}

	for {
		c := models.Coord{X: cell[0], Y: cell[1], Z: cell[2]}
		if !v.size.Contains(c) {
			return models.Coord{}, false
		}
		if v.data[v.size.Index(c)] != models.Background {
			return c, true
		}

		a := 0
		if tMax[1] < tMax[a] {
			a = 1
		}
		if tMax[2] < tMax[a] {
			a = 2
		}
		if tMax[a] > tExit {
			return models.Coord{}, false
		}
		cell[a] += step[a]
		tMax[a] += tDelta[a]
	}
}

func finite(v r3.Vec) bool {
	for _, x := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
