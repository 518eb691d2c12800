package metadata

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

/**
 * @brief GPU-resident geometry. Vertices are math.Vertex3D, indices uint32.
 */
type Mesh struct {
	ID         uint32
	Name       string
	Vertices   gpu.Buffer
	Indices    gpu.Buffer
	IndexCount int
	/** @brief Local-space bounds used for frustum culling. */
	Extents math.Extents3D
}

func NewMesh(dev gpu.Device, id uint32, name string, vertices []math.Vertex3D, indices []uint32, extents math.Extents3D) *Mesh {
	vb := dev.NewBuffer(name+".vertices", len(vertices)*gpu.SizeOf[math.Vertex3D]())
	gpu.WriteSlice(vb, 0, vertices)
	ib := dev.NewBuffer(name+".indices", len(indices)*4)
	gpu.WriteSlice(ib, 0, indices)
	return &Mesh{
		ID:         id,
		Name:       name,
		Vertices:   vb,
		Indices:    ib,
		IndexCount: len(indices),
		Extents:    extents,
	}
}

func (m *Mesh) Triangles() int {
	return m.IndexCount / 3
}

type Material struct {
	ID   uint32
	Name string
	/** @brief Base colour (x, y, z) and alpha (w). */
	Albedo math.Vec4
	/** @brief Metallic (x), roughness (y), ambient occlusion (z), emission strength (w). */
	MetallicRoughnessAO math.Vec4
	/** @brief Optional base colour map. */
	AlbedoMap gpu.Texture
}

func DefaultMaterial() *Material {
	return &Material{
		Name:                "default",
		Albedo:              math.Vec4{0.8, 0.8, 0.8, 1},
		MetallicRoughnessAO: math.Vec4{0, 0.5, 1, 0},
	}
}

// MaterialParams is the per-instance material block.
func (m *Material) Params() [2]math.Vec4 {
	return [2]math.Vec4{m.Albedo, m.MetallicRoughnessAO}
}

/**
 * @brief Per-instance data of the geometry and shadow passes.
 */
type InstanceData struct {
	Transform math.Mat4
	/** @brief Selected flag (x) and entity id plus one (y). Zero means no entity. */
	IDMask math.Vec4
	/** @brief Material parameters, see Material.Params. */
	Material [2]math.Vec4
}

func NewInstanceData(transform math.Mat4, material *Material, entityID uint32, selected bool) InstanceData {
	mask := math.Vec4{0, float32(entityID + 1), 0, 0}
	if selected {
		mask[0] = 1
	}
	return InstanceData{
		Transform: transform,
		IDMask:    mask,
		Material:  material.Params(),
	}
}

// MaxBones bounds the skeleton a skinned mesh can carry.
const MaxBones = 128
