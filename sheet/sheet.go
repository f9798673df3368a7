// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sheet reseeds marker particles into thin liquid sheets that
// have thinned out below the marker-particle density needed to resolve
// them, per §4.9.
package sheet

import (
	"math"
	"sort"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/particles"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// Params bundles a sheeting pass' inputs.
type Params struct {
	Positions           []vecmath.Vec3
	SurfaceSDF          *grid.Array3d // cell-centred, per §4.1's shift convention
	Isize, Jsize, Ksize int
	H                   float64
	FillThreshold       float64 // sheetFillThreshold, default -0.95
}

const (
	maxSheetDepth               = 2.0
	depthTestDistance           = 3.0
	depthTestStepDistance       = 0.5
	maxParticlesPerCell         = 6
	maxSheetParticlesPerCell    = 4
	maxSheetSeedCandidatesPerCell = 8
	maxSeedCandidateDepth       = 1.0
	searchRadiusFactor          = 2.0
	projectionFactor            = 0.75
	defaultFillThreshold        = -0.95
)

func cellOf(p vecmath.Vec3, h float64) (int, int, int) {
	return int(math.Floor(p.X / h)), int(math.Floor(p.Y / h)), int(math.Floor(p.Z / h))
}

func surfacePhi(sdf *grid.Array3d, p vecmath.Vec3, h float64) float64 {
	return grid.InterpolateCellCentered(sdf, p.X, p.Y, p.Z, h)
}

func surfaceGradient(sdf *grid.Array3d, p vecmath.Vec3, h float64) vecmath.Vec3 {
	gx, gy, gz := grid.GradientCellCentered(sdf, p.X, p.Y, p.Z, h)
	return vecmath.Vec3{X: gx, Y: gy, Z: gz}
}

// Generate implements §4.9's sheet-reseeding pipeline: find marker
// particles sitting in a thinning sheet (phase 1), expand the cells they
// occupy by two 6-neighbour feather passes with a 3-cell border strip
// (the sheet region), re-collect particles within that region subject to
// a tighter per-cell cap (phase 2), generate sub-cell seed candidates
// within the region, and finally select the seeds whose local
// neighbourhood of existing sheet particles fits a plane well enough
// (the fill-angle test) to be worth adding, grounded on
// particlesheeter.cpp's generateSheetParticles.
func Generate(p Params) []vecmath.Vec3 {
	threshold := p.FillThreshold
	if threshold == 0 {
		threshold = defaultFillThreshold
	}

	countGrid := grid.NewArray3d(p.Isize, p.Jsize, p.Ksize, 0)
	for _, pos := range p.Positions {
		i, j, k := cellOf(pos, p.H)
		if !countGrid.InBounds(i, j, k) {
			continue
		}
		countGrid.Add(i, j, k, 1)
	}

	sheetParticles := identifyPhase1(p, countGrid, threshold)

	sheetCells := grid.NewBoolArray3d(p.Isize, p.Jsize, p.Ksize, false)
	for _, pos := range sheetParticles {
		i, j, k := cellOf(pos, p.H)
		if sheetCells.InBounds(i, j, k) {
			sheetCells.Set(i, j, k, true)
		}
	}
	featherGrid6(sheetCells)
	featherGrid6(sheetCells)
	stripBorder(sheetCells, 3)

	sheetParticles = identifyPhase2(p, sheetCells, threshold)
	if len(sheetParticles) == 0 {
		return nil
	}

	mg := particles.NewMaskGrid(p.Isize, p.Jsize, p.Ksize, p.H)
	mg.AddAll(p.Positions)

	candidates := seedCandidates(p, sheetCells, threshold)

	searchRadius := searchRadiusFactor * p.H
	sheetIdx := newSpatialHash(sheetParticles, searchRadius)

	return selectSeeds(p, candidates, sheetIdx, mg, threshold)
}

func identifyPhase1(p Params, countGrid *grid.Array3d, threshold float64) []vecmath.Vec3 {
	maxdepth := maxSheetDepth * p.H
	testDist := depthTestDistance * p.H
	stepDist := depthTestStepDistance * p.H
	const eps = 1e-5

	var result []vecmath.Vec3
	for _, pos := range p.Positions {
		i, j, k := cellOf(pos, p.H)
		if countGrid.GetOr(i, j, k, 0) >= maxParticlesPerCell {
			continue
		}

		phi := surfacePhi(p.SurfaceSDF, pos, p.H)
		if phi >= maxdepth || phi < -maxdepth {
			continue
		}

		dir := surfaceGradient(p.SurfaceSDF, pos, p.H).Negate()
		if dir.Length() < eps {
			continue
		}
		dir = dir.Normalize()

		numSteps := int(math.Ceil(testDist / stepDist))
		currentPhi := phi
		success := false
		for step := 0; step < numSteps; step++ {
			next := pos.AddScaled(dir, float64(step)*stepDist)
			nextPhi := surfacePhi(p.SurfaceSDF, next, p.H)
			if nextPhi > currentPhi || nextPhi >= 0 {
				success = true
				break
			}
			currentPhi = nextPhi
		}
		if !success {
			continue
		}
		result = append(result, pos)
	}
	return result
}

func featherGrid6(cells *grid.BoolArray3d) {
	isize, jsize, ksize := cells.Dims()
	next := cells.Clone()
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if cells.Get(i, j, k) {
					continue
				}
				if cells.Get(i-1, j, k) || cells.Get(i+1, j, k) ||
					cells.Get(i, j-1, k) || cells.Get(i, j+1, k) ||
					cells.Get(i, j, k-1) || cells.Get(i, j, k+1) {
					next.Set(i, j, k, true)
				}
			}
		}
	}
	*cells = *next
}

func stripBorder(cells *grid.BoolArray3d, buffer int) {
	isize, jsize, ksize := cells.Dims()
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if i < buffer || j < buffer || k < buffer ||
					i >= isize-buffer || j >= jsize-buffer || k >= ksize-buffer {
					cells.Set(i, j, k, false)
				}
			}
		}
	}
}

func identifyPhase2(p Params, sheetCells *grid.BoolArray3d, threshold float64) []vecmath.Vec3 {
	maxdepth := maxSheetDepth * p.H
	counts := grid.NewArray3d(p.Isize, p.Jsize, p.Ksize, 0)
	var result []vecmath.Vec3
	for _, pos := range p.Positions {
		i, j, k := cellOf(pos, p.H)
		if !sheetCells.InBounds(i, j, k) || !sheetCells.Get(i, j, k) {
			continue
		}
		if counts.Get(i, j, k) >= maxSheetParticlesPerCell {
			continue
		}
		phi := surfacePhi(p.SurfaceSDF, pos, p.H)
		if phi >= maxdepth || phi < -maxdepth {
			continue
		}
		result = append(result, pos)
		counts.Add(i, j, k, 1)
	}
	return result
}

func seedCandidates(p Params, sheetCells *grid.BoolArray3d, threshold float64) []vecmath.Vec3 {
	maxSeedDepth := maxSeedCandidateDepth * p.H
	subdx := 0.5 * p.H
	var offsets = [8][3]int{
		{0, 0, 0}, {0, 0, 1}, {0, 1, 0}, {0, 1, 1},
		{1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1},
	}

	var result []vecmath.Vec3
	for k := 0; k < p.Ksize; k++ {
		for j := 0; j < p.Jsize; j++ {
			for i := 0; i < p.Isize; i++ {
				if !sheetCells.Get(i, j, k) {
					continue
				}
				for _, off := range offsets {
					si, sj, sk := 2*i+off[0], 2*j+off[1], 2*k+off[2]
					seed := vecmath.Vec3{
						X: (float64(si) + 0.5) * subdx,
						Y: (float64(sj) + 0.5) * subdx,
						Z: (float64(sk) + 0.5) * subdx,
					}
					phi := surfacePhi(p.SurfaceSDF, seed, p.H)
					if phi >= 0 || phi < -maxSeedDepth {
						continue
					}
					result = append(result, seed)
				}
			}
		}
	}
	return result
}

// spatialHash buckets particles into cells sized for a given search
// radius, grounded on the sorted-grid structure built by
// _sortParticlesIntoGrid (a coarser grid than the simulation grid so a
// single 3x3x3 neighbour sweep covers the full search radius).
type spatialHash struct {
	cellSize float64
	buckets  map[[3]int][]vecmath.Vec3
}

func newSpatialHash(points []vecmath.Vec3, searchRadius float64) *spatialHash {
	cellSize := math.Ceil(searchRadius)
	if cellSize < 1 {
		cellSize = 1
	}
	h := &spatialHash{cellSize: cellSize, buckets: make(map[[3]int][]vecmath.Vec3)}
	for _, p := range points {
		key := h.key(p)
		h.buckets[key] = append(h.buckets[key], p)
	}
	return h
}

func (h *spatialHash) key(p vecmath.Vec3) [3]int {
	return [3]int{
		int(math.Floor(p.X / h.cellSize)),
		int(math.Floor(p.Y / h.cellSize)),
		int(math.Floor(p.Z / h.cellSize)),
	}
}

func (h *spatialHash) neighbours(p vecmath.Vec3) []vecmath.Vec3 {
	base := h.key(p)
	var out []vecmath.Vec3
	for dk := -1; dk <= 1; dk++ {
		for dj := -1; dj <= 1; dj++ {
			for di := -1; di <= 1; di++ {
				key := [3]int{base[0] + di, base[1] + dj, base[2] + dk}
				out = append(out, h.buckets[key]...)
			}
		}
	}
	return out
}

// selectSeeds implements particlesheeter.cpp's _selectSeedParticlesThread:
// for each candidate seed, gather nearby existing sheet particles, fit a
// local plane through its three nearest neighbours, project the
// candidate onto it, reject if outside the domain or already masked,
// then reject unless the angle between the direction to the neighbour
// centroid and every neighbour direction clears the fill threshold
// (i.e. the candidate would not be filling a genuine gap).
func selectSeeds(p Params, candidates []vecmath.Vec3, sheetIdx *spatialHash, mg *particles.MaskGrid, threshold float64) []vecmath.Vec3 {
	const eps = 1e-5
	searchRadius := searchRadiusFactor * p.H
	domainMax := vecmath.Vec3{X: float64(p.Isize) * p.H, Y: float64(p.Jsize) * p.H, Z: float64(p.Ksize) * p.H}

	var result []vecmath.Vec3
	for _, cand := range candidates {
		neighbours := sheetIdx.neighbours(cand)
		if len(neighbours) < 3 {
			continue
		}

		var nearest []vecmath.Vec3
		for _, np := range neighbours {
			if np.Distance(cand) < searchRadius {
				nearest = append(nearest, np)
			}
		}
		if len(nearest) < 3 {
			continue
		}

		var centroid vecmath.Vec3
		for _, np := range nearest {
			centroid = centroid.Add(np)
		}
		centroid = centroid.Scale(1 / float64(len(nearest)))

		sort.Slice(nearest, func(a, b int) bool {
			return nearest[a].Distance(cand) < nearest[b].Distance(cand)
		})
		p1, p2, p3 := nearest[0], nearest[1], nearest[2]

		vt1 := p2.Sub(p1)
		vt2 := p3.Sub(p1)
		normalVec := vt1.Cross(vt2)
		if vt1.Length() < eps || vt2.Length() < eps || normalVec.Length() < eps {
			continue
		}
		normal := normalVec.Normalize()
		distance := -normal.Dot(cand.Sub(p1))
		projected := cand.AddScaled(normal, projectionFactor*distance)

		if projected.X < 0 || projected.Y < 0 || projected.Z < 0 ||
			projected.X >= domainMax.X || projected.Y >= domainMax.Y || projected.Z >= domainMax.Z {
			continue
		}
		if mg.IsSet(projected) {
			continue
		}

		cdir := centroid.Sub(projected)
		if cdir.Length() < eps {
			continue
		}
		cdir = cdir.Normalize()

		mindot := 1.01
		for _, np := range nearest {
			ndir := np.Sub(projected)
			if ndir.Length() < eps {
				continue
			}
			ndir = ndir.Normalize()
			if d := cdir.Dot(ndir); d < mindot {
				mindot = d
			}
		}

		if mindot < threshold {
			result = append(result, projected)
			mg.Add(projected)
		}
	}
	return result
}
