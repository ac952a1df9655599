// Package pairwise ships the reference pair-interaction kernels: DPD
// forces, SPH-style density and the density-driven force. They are host
// implementations of the black-box kernel contract; the orchestration
// core only ever sees their cutoffs and channel declarations.
package pairwise

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/cells"
)

func sqrt(x float64) float64 { return math.Sqrt(x) }

// forEachLocalPair visits every unordered particle pair (i from cl1's
// view, j from cl2's view) with distance < rc exactly once. When the two
// cell lists are the same object a half-shell sweep avoids double
// counting; otherwise every i is probed against cl2's grid.
func forEachLocalPair(cl1, cl2 *cells.CellList, rc float64, fn func(i, j int, dr r3.Vec, dist float64)) {
	rc2 := rc * rc
	if cl1 == cl2 {
		sameListPairs(cl1, rc2, fn)
		return
	}
	pos1 := cl1.View().Vecs("positions")
	for i := range pos1 {
		probePairs(cl2, pos1[i], rc, rc2, func(j int, dr r3.Vec, dist float64) {
			fn(i, j, dr, dist)
		})
	}
}

func sameListPairs(cl *cells.CellList, rc2 float64, fn func(i, j int, dr r3.Vec, dist float64)) {
	pos := cl.View().Vecs("positions")
	starts := cl.Starts()
	nc := cl.NumCells()
	// half shell: the 13 positive-lexicographic neighbour offsets
	shell := [][3]int{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {1, -1, 0}, {1, 0, 1}, {1, 0, -1},
		{0, 1, 1}, {0, 1, -1},
		{1, 1, 1}, {1, 1, -1}, {1, -1, 1}, {1, -1, -1},
	}
	for cz := 0; cz < nc[2]; cz++ {
		for cy := 0; cy < nc[1]; cy++ {
			for cx := 0; cx < nc[0]; cx++ {
				c := cl.CellID(cx, cy, cz)
				lo, hi := int(starts[c]), int(starts[c+1])
				// pairs within the cell
				for i := lo; i < hi; i++ {
					for j := i + 1; j < hi; j++ {
						emit(pos, i, j, rc2, fn)
					}
				}
				// pairs against the half shell
				for _, d := range shell {
					ox, oy, oz := cx+d[0], cy+d[1], cz+d[2]
					if ox < 0 || ox >= nc[0] || oy < 0 || oy >= nc[1] || oz < 0 || oz >= nc[2] {
						continue
					}
					oc := cl.CellID(ox, oy, oz)
					olo, ohi := int(starts[oc]), int(starts[oc+1])
					for i := lo; i < hi; i++ {
						for j := olo; j < ohi; j++ {
							emit(pos, i, j, rc2, fn)
						}
					}
				}
			}
		}
	}
}

func emit(pos []r3.Vec, i, j int, rc2 float64, fn func(i, j int, dr r3.Vec, dist float64)) {
	dr := r3.Sub(pos[i], pos[j])
	d2 := r3.Norm2(dr)
	if d2 < rc2 && d2 > 0 {
		fn(i, j, dr, sqrt(d2))
	}
}

// probePairs visits every particle of cl within rc of point p. Cells are
// probed without clamping, so p may lie outside the grid (halo side).
func probePairs(cl *cells.CellList, p r3.Vec, rc, rc2 float64, fn func(j int, dr r3.Vec, dist float64)) {
	pos := cl.View().Vecs("positions")
	starts := cl.Starts()
	nc := cl.NumCells()

	lox, loy, loz := cl.ProbeFloor(r3.Vec{X: p.X - rc, Y: p.Y - rc, Z: p.Z - rc})
	hix, hiy, hiz := cl.ProbeFloor(r3.Vec{X: p.X + rc, Y: p.Y + rc, Z: p.Z + rc})
	for cz := max(loz, 0); cz <= min(hiz, nc[2]-1); cz++ {
		for cy := max(loy, 0); cy <= min(hiy, nc[1]-1); cy++ {
			for cx := max(lox, 0); cx <= min(hix, nc[0]-1); cx++ {
				c := cl.CellID(cx, cy, cz)
				for j := int(starts[c]); j < int(starts[c+1]); j++ {
					dr := r3.Sub(p, pos[j])
					d2 := r3.Norm2(dr)
					if d2 < rc2 && d2 > 0 {
						fn(j, dr, sqrt(d2))
					}
				}
			}
		}
	}
}

// forEachHaloPair visits every (local j from cl's view, halo hi) pair
// within rc. dr points from the halo particle to the local one.
func forEachHaloPair(cl *cells.CellList, haloPos []r3.Vec, rc float64, fn func(hi, j int, dr r3.Vec, dist float64)) {
	rc2 := rc * rc
	for hi := range haloPos {
		probePairs(cl, haloPos[hi], rc, rc2, func(j int, dr r3.Vec, dist float64) {
			// dr from probePairs is p - pos[j]; flip so it points
			// halo -> local
			fn(hi, j, r3.Scale(-1, dr), dist)
		})
	}
}
