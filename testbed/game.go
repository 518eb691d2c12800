package testbed

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	stdmath "math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

const checkerTextureName = "textures/testbed_checker.png"

type TestGame struct {
	*engine.Game
}

type sceneObject struct {
	mesh        *metadata.Mesh
	material    *metadata.Material
	transform   *math.Transform
	entityID    uint32
	selected    bool
	castShadows bool
}

type gameState struct {
	WorldCamera *components.Camera

	width  uint32
	height uint32
	time   float64

	objects  []*sceneObject
	spinning []*math.Transform

	sun          metadata.DirectionalLight
	sunTransform math.Mat4
	sky          metadata.RendererDataHandle
	probe        metadata.RendererDataHandle

	points []metadata.PointLight
	spot   metadata.SpotLight
	rect   metadata.RectAreaLight
}

func NewTestGame(app *engine.ApplicationConfig) (*TestGame, error) {
	if app == nil {
		return nil, fmt.Errorf("func NewTestGame - application config is required")
	}
	if app.Name == "" {
		app.Name = "lumen testbed"
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State: &gameState{
				sky:   metadata.InvalidHandle,
				probe: metadata.InvalidHandle,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil || g.Renderer == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}
	state := g.State.(*gameState)

	state.WorldCamera = g.SystemManager.CameraSystem.GetDefault()
	state.WorldCamera.SetPosition(math.Vec3{10.5, 5.0, 9.5})
	state.WorldCamera.LookAt(math.Vec3{0, 1, 0})

	albedo, err := g.checkerTexture()
	if err != nil {
		return err
	}

	ground, err := g.SystemManager.GeometrySystem.AcquirePlane("ground", 40, 40, 4, 4, 8, 8, true)
	if err != nil {
		return err
	}
	groundMaterial := metadata.DefaultMaterial()
	groundMaterial.Name = "ground"
	groundMaterial.AlbedoMap = albedo
	state.objects = append(state.objects, &sceneObject{
		mesh:        ground,
		material:    groundMaterial,
		transform:   math.TransformCreate(),
		entityID:    0,
		castShadows: false,
	})

	// Three nested cubes: each one orbits its parent.
	cubeMaterial := metadata.DefaultMaterial()
	cubeMaterial.Name = "cube"
	cubeMaterial.Albedo = math.Vec4{0.9, 0.3, 0.2, 1}
	cubeMaterial.MetallicRoughnessAO = math.Vec4{0.1, 0.4, 1, 0}

	sizes := []float32{4, 2, 1}
	offsets := []math.Vec3{{0, 2, 0}, {5, 0, 0}, {2.5, 0, 0}}
	var parent *math.Transform
	for i, size := range sizes {
		mesh, err := g.SystemManager.GeometrySystem.AcquireCube(fmt.Sprintf("test_cube_%d", i+1), size, size, size, true)
		if err != nil {
			return err
		}
		t := math.TransformFromPosition(offsets[i])
		t.Parent = parent
		parent = t
		state.spinning = append(state.spinning, t)
		state.objects = append(state.objects, &sceneObject{
			mesh:        mesh,
			material:    cubeMaterial,
			transform:   t,
			entityID:    uint32(i + 1),
			selected:    i == 0,
			castShadows: true,
		})
	}

	// A row of static crates sharing one mesh and material, batched into a
	// single instanced draw.
	crate := g.SystemManager.GeometrySystem.DefaultCube
	crateMaterial := metadata.DefaultMaterial()
	crateMaterial.Name = "crate"
	crateMaterial.AlbedoMap = albedo
	for i := 0; i < 8; i++ {
		state.objects = append(state.objects, &sceneObject{
			mesh:        crate,
			material:    crateMaterial,
			transform:   math.TransformFromPosition(math.Vec3{-8 + float32(i)*2, 0.5, -6}),
			entityID:    uint32(10 + i),
			castShadows: true,
		})
	}

	sunRotation := mgl32.HomogRotate3DZ(mgl32.DegToRad(35)).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(-40)))
	state.sunTransform = sunRotation
	state.sun = metadata.NewDirectionalLight(math.Vec3{1, 0.95, 0.9}, 3, math.Vec3{0, 1, 0}, 0.0093)

	state.sky = g.Renderer.Atmosphere.RequestRendererData()
	state.probe = g.Renderer.IBL.RequestRendererData()

	state.points = []metadata.PointLight{
		metadata.NewPointLight(math.Vec3{1, 0.4, 0.1}, 20, 6),
		metadata.NewPointLight(math.Vec3{0.1, 0.4, 1}, 20, 6),
	}
	state.spot = metadata.NewSpotLight(math.Vec3{1, 1, 0.8}, 40, 12, mgl32.DegToRad(20), mgl32.DegToRad(30))
	state.rect = metadata.NewRectAreaLight(math.Vec3{0.8, 0.9, 1}, 8, 3, 1.5)
	return nil
}

// checkerTexture writes a small checker image into the asset directory on
// first run and acquires it. The texture is a placeholder until the image
// decoded on the job system is drained.
func (g *TestGame) checkerTexture() (gpu.Texture, error) {
	am := g.SystemManager.AssetManager
	if _, ok := am.Lookup(checkerTextureName); !ok {
		path := filepath.Join(am.Root(), filepath.FromSlash(checkerTextureName))
		if err := writeChecker(path, 64, 8); err != nil {
			return nil, err
		}
		am.Index(checkerTextureName)
	}
	return g.SystemManager.TextureSystem.Acquire(checkerTextureName, true)
}

func writeChecker(path string, size, cell int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 200, G: 200, B: 190, A: 255}
	dark := color.RGBA{R: 90, G: 90, B: 100, A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.time += deltaTime

	rotation := mgl32.QuatRotate(float32(0.5*deltaTime), math.Vec3{0, 1, 0})
	for _, t := range state.spinning {
		t.Rotate(rotation)
	}

	// Slow orbit around the scene.
	angle := state.time * 0.1
	const radius = 14
	state.WorldCamera.SetPosition(math.Vec3{
		float32(radius * stdmath.Cos(angle)),
		5,
		float32(radius * stdmath.Sin(angle)),
	})
	state.WorldCamera.LookAt(math.Vec3{0, 1, 0})
	return nil
}

func (g *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	state := g.State.(*gameState)

	for _, o := range state.objects {
		r.SubmitMesh(o.mesh, o.material, o.transform.World(), o.entityID, o.selected, o.castShadows)
	}

	r.SubmitPrimaryLight(state.sun, true, state.sunTransform)

	// The sky follows the sun as oriented by the directional pass.
	atmosphere := metadata.DefaultAtmosphere()
	if lights := r.Directional.Data(); lights.PrimaryLight >= 0 {
		sun := lights.Lights[lights.PrimaryLight]
		atmosphere.SunDirAtmRadius = sun.Direction().Vec4(atmosphere.SunDirAtmRadius[3])
	}
	r.SubmitSky(atmosphere, state.sky)
	r.SubmitIBL(metadata.DynamicIBL{Intensity: 1, AttachedSkyAtmoHandle: state.sky}, state.probe)

	r.SubmitPointLight(state.points[0], mgl32.Translate3D(-3, 1.5, 3))
	r.SubmitPointLight(state.points[1], mgl32.Translate3D(3, 1.5, 3))
	r.SubmitSpotLight(state.spot, mgl32.Translate3D(0, 8, 0))
	r.SubmitRectLight(state.rect, mgl32.Translate3D(-6, 3, -3).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(90))), false, 10, true)

	r.SubmitFogVolume(passes.FogVolumeDesc{
		Phase:         0.6,
		Density:       0.05,
		Absorption:    0.2,
		MieScattering: math.Vec3{1, 1, 1},
		Emission:      math.Vec3{0, 0, 0},
	}, mgl32.Translate3D(0, 2, 0).Mul4(mgl32.Scale3D(20, 2, 20)))
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if g.Renderer != nil {
		g.Renderer.IBL.DeleteRendererData(&state.probe)
		g.Renderer.Atmosphere.DeleteRendererData(&state.sky)
	}
	return nil
}
