package sim

import (
	"github.com/google/uuid"

	"github.com/flip3d-sim/flip3d/levelset"
)

// MeshObject is a registered solid obstacle: its triangle mesh (with
// optional per-vertex velocities), the per-object properties §6 names
// only as loose configuration ("boundary friction (per-obstacle)") but
// original_source's fluidsimulation.cpp models as a first-class object
// (friction coefficient, whitewater-influence reset level, whether the
// object is static, and whether it contributes to the unioned solid
// SDF at all).
type MeshObject struct {
	ID       uuid.UUID
	Mesh     *levelset.TriangleMesh
	Friction float64

	// WhitewaterInfluence is the value the influence grid (C15) resets to
	// near this object's surface.
	WhitewaterInfluence float64

	// IsStatic marks an object whose mesh never moves, letting the driver
	// skip rebuilding its SDF every sub-step (not yet exploited by Update,
	// reserved for a caching optimisation).
	IsStatic bool

	// IsAppendingToSolidSDF controls whether this object's SDF is unioned
	// into the shared solid SDF at all; an object with this false stays in
	// the mesh-object registry but is left out of the solid SDF, so it
	// never blocks fluid or particles and does not affect the influence
	// grid (which reads only the solid SDF).
	IsAppendingToSolidSDF bool
}

// AddMeshObject registers obj, assigning it a fresh ID if unset, and
// returns the ID under which it was stored.
func (s *FluidSimulation) AddMeshObject(obj MeshObject) uuid.UUID {
	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}
	s.meshObjects[obj.ID] = obj
	s.meshObjectOrder = append(s.meshObjectOrder, obj.ID)
	return obj.ID
}

// RemoveMeshObject unregisters the object with the given ID, if present.
func (s *FluidSimulation) RemoveMeshObject(id uuid.UUID) {
	if _, ok := s.meshObjects[id]; !ok {
		return
	}
	delete(s.meshObjects, id)
	for i, existing := range s.meshObjectOrder {
		if existing == id {
			s.meshObjectOrder = append(s.meshObjectOrder[:i], s.meshObjectOrder[i+1:]...)
			break
		}
	}
}

// MeshObjects returns the registered mesh objects in registration order.
func (s *FluidSimulation) MeshObjects() []MeshObject {
	out := make([]MeshObject, 0, len(s.meshObjectOrder))
	for _, id := range s.meshObjectOrder {
		out = append(out, s.meshObjects[id])
	}
	return out
}
