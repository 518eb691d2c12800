package systems

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type GeometrySystemConfig struct {
	/**
	 * @brief Max number of geometries that can be loaded at once.
	 * NOTE: Should be significantly greater than the number of static meshes because
	 * the there can and will be more than one of these per mesh.
	 * Take other systems into account as well.
	 */
	MaxGeometryCount uint32
}

type geometryReference struct {
	mesh           *metadata.Mesh
	referenceCount uint64
	autoRelease    bool
}

/**
 * @brief Owns the GPU meshes of generated geometry by name. Meshes are
 * reference counted; the default cube always exists.
 */
type GeometrySystem struct {
	Config      *GeometrySystemConfig
	DefaultCube *metadata.Mesh

	device     gpu.Device
	registered map[string]*geometryReference
	nextID     uint32
}

const DefaultGeometryName = "default"

func NewGeometrySystem(config *GeometrySystemConfig, dev gpu.Device) (*GeometrySystem, error) {
	if config.MaxGeometryCount == 0 {
		err := fmt.Errorf("func NewGeometrySystem - config.MaxGeometryCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	gs := &GeometrySystem{
		Config:     config,
		device:     dev,
		registered: make(map[string]*geometryReference),
	}
	vertices, indices, extents := math.GenerateCube(1, 1, 1)
	gs.DefaultCube = gs.create(DefaultGeometryName, vertices, indices, extents)
	return gs, nil
}

func (gs *GeometrySystem) create(name string, vertices []math.Vertex3D, indices []uint32, extents math.Extents3D) *metadata.Mesh {
	id := gs.nextID
	gs.nextID++
	return metadata.NewMesh(gs.device, id, name, vertices, indices, extents)
}

func (gs *GeometrySystem) acquire(name string, autoRelease bool, generate func() ([]math.Vertex3D, []uint32, math.Extents3D)) (*metadata.Mesh, error) {
	if name == DefaultGeometryName {
		return gs.DefaultCube, nil
	}
	if ref, ok := gs.registered[name]; ok {
		ref.referenceCount++
		return ref.mesh, nil
	}
	if uint32(len(gs.registered)) >= gs.Config.MaxGeometryCount {
		err := fmt.Errorf("func acquire - geometry system is full (%d), cannot create %s", gs.Config.MaxGeometryCount, name)
		core.LogError(err.Error())
		return nil, err
	}
	vertices, indices, extents := generate()
	ref := &geometryReference{
		mesh:           gs.create(name, vertices, indices, extents),
		referenceCount: 1,
		autoRelease:    autoRelease,
	}
	gs.registered[name] = ref
	return ref.mesh, nil
}

// AcquireCube returns the named box, creating it on first use. Later
// acquisitions of the same name ignore the dimensions.
func (gs *GeometrySystem) AcquireCube(name string, width, height, depth float32, autoRelease bool) (*metadata.Mesh, error) {
	return gs.acquire(name, autoRelease, func() ([]math.Vertex3D, []uint32, math.Extents3D) {
		return math.GenerateCube(width, height, depth)
	})
}

// AcquirePlane returns the named ground plane, creating it on first use.
func (gs *GeometrySystem) AcquirePlane(name string, width, depth float32, xSegments, zSegments uint32, tileX, tileZ float32, autoRelease bool) (*metadata.Mesh, error) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	return gs.acquire(name, autoRelease, func() ([]math.Vertex3D, []uint32, math.Extents3D) {
		return math.GeneratePlane(width, depth, xSegments, zSegments, tileX, tileZ)
	})
}

func (gs *GeometrySystem) Release(name string) {
	ref, ok := gs.registered[name]
	if !ok {
		return
	}
	if ref.referenceCount > 0 {
		ref.referenceCount--
	}
	if ref.referenceCount == 0 && ref.autoRelease {
		gs.destroy(ref.mesh)
		delete(gs.registered, name)
	}
}

func (gs *GeometrySystem) destroy(mesh *metadata.Mesh) {
	gs.device.Destroy(mesh.Vertices)
	gs.device.Destroy(mesh.Indices)
}

func (gs *GeometrySystem) Shutdown() error {
	for name, ref := range gs.registered {
		gs.destroy(ref.mesh)
		delete(gs.registered, name)
	}
	gs.destroy(gs.DefaultCube)
	return nil
}
