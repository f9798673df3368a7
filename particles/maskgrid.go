package particles

import (
	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// MaskGrid is a 2x-finer occupancy mask over sub-cell positions, grounded on
// particlemaskgrid.h. It answers whether a sub-cell near a given position
// already holds a marked particle, used to reject seed candidates too close
// to an already-accepted one.
type MaskGrid struct {
	sub *grid.BoolArray3d
	h   float64
}

// NewMaskGrid builds an empty mask over a grid of the given cell dimensions
// and cell size h.
func NewMaskGrid(isize, jsize, ksize int, h float64) *MaskGrid {
	return &MaskGrid{sub: grid.NewBoolArray3d(2*isize, 2*jsize, 2*ksize, false), h: h / 2}
}

func (m *MaskGrid) subCellOf(p vecmath.Vec3) (int, int, int) {
	return cellOf(p, m.h)
}

// Add marks the sub-cell containing p.
func (m *MaskGrid) Add(p vecmath.Vec3) {
	i, j, k := m.subCellOf(p)
	m.sub.Set(i, j, k, true)
}

// AddAll marks every position in ps.
func (m *MaskGrid) AddAll(ps []vecmath.Vec3) {
	for _, p := range ps {
		m.Add(p)
	}
}

// IsSet reports whether the sub-cell containing p is marked.
func (m *MaskGrid) IsSet(p vecmath.Vec3) bool {
	i, j, k := m.subCellOf(p)
	return m.sub.Get(i, j, k)
}
