// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package influence implements the per-node whitewater-influence grid of
// spec §4.15: a node-centred scalar field that decays toward a baseline
// level and resets to an object-specific value near solid boundaries.
package influence

import (
	"math"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/levelset"
)

// ObjectInfluence resolves the whitewater-influence value configured for a
// mesh-object index, as recorded by the registry that owns the scene's
// MeshObjects. ok is false if the index carries no override (in which case
// the node is left untouched).
type ObjectInfluence func(meshObjectIndex int) (value float32, ok bool)

// Grid is the node-centred (isize+1,jsize+1,ksize+1) influence field.
type Grid struct {
	Isize, Jsize, Ksize int
	H                   float64
	BaseLevel           float32
	DecayRate           float32

	data *grid.Array3d

	narrowBandWidth float64 // in cells
}

// New allocates an influence grid sized to match a MeshLevelSet's node
// grid (solid grid dims + 1), filled at baselevel.
func New(isize, jsize, ksize int, h float64, baselevel float32) *Grid {
	ni, nj, nk := isize+1, jsize+1, ksize+1
	return &Grid{
		Isize: ni, Jsize: nj, Ksize: nk, H: h,
		BaseLevel:       baselevel,
		DecayRate:       2.0,
		data:            grid.NewArray3d(ni, nj, nk, float64(baselevel)),
		narrowBandWidth: 3.0,
	}
}

// Get returns the influence value at node (i,j,k).
func (g *Grid) Get(i, j, k int) float32 { return float32(g.data.Get(i, j, k)) }

// Update advances the grid by dt: values relax toward BaseLevel at
// DecayRate, then any node within narrowBandWidth cells of the solid
// surface is reset to the influence configured for its closest mesh
// object, per §4.15.
func (g *Grid) Update(solidSDF *levelset.MeshLevelSet, dt float64, lookup ObjectInfluence) {
	g.updateDecay(dt)
	g.updateInfluenceSources(solidSDF, lookup)
}

func (g *Grid) updateDecay(dt float64) {
	rate := float64(g.DecayRate) * dt
	base := float64(g.BaseLevel)
	for k := 0; k < g.Ksize; k++ {
		for j := 0; j < g.Jsize; j++ {
			for i := 0; i < g.Isize; i++ {
				v := g.data.Get(i, j, k)
				if v < base {
					v = math.Min(v+rate, base)
				} else if v > base {
					v = math.Max(v-rate, base)
				}
				g.data.Set(i, j, k, v)
			}
		}
	}
}

func (g *Grid) updateInfluenceSources(solidSDF *levelset.MeshLevelSet, lookup ObjectInfluence) {
	width := g.narrowBandWidth * g.H
	for k := 0; k < g.Ksize; k++ {
		for j := 0; j < g.Jsize; j++ {
			for i := 0; i < g.Isize; i++ {
				if math.Abs(solidSDF.Phi.Get(i, j, k)) > width {
					continue
				}
				obj := solidSDF.ClosestMeshObject(i, j, k)
				if obj < 0 || lookup == nil {
					continue
				}
				if v, ok := lookup(obj); ok {
					g.data.Set(i, j, k, float64(v))
				}
			}
		}
	}
}
