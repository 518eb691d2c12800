package renderer_test

import (
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

const (
	testWidth  = 64
	testHeight = 36
)

func testSettings() *config.Settings {
	s := config.Default()
	s.Log.Level = "error"
	s.Window.Width = testWidth
	s.Window.Height = testHeight
	s.Shadows.Resolution = 128
	s.Fog.Slices = 16
	s.Fog.Steps = 16
	s.IBL.RadianceSize = 16
	s.IBL.RadianceSamples = 8
	return s
}

type testRenderer struct {
	*renderer.Renderer
	dev    *soft.Device
	camera *components.Camera
	cube   *metadata.Mesh
}

func newTestRenderer(t *testing.T) *testRenderer {
	t.Helper()
	dev := shaders.NewDevice(soft.Options{Workers: 2})
	r, err := renderer.New(testSettings(), dev)
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})

	camera := components.NewCamera()
	camera.SetPosition(math.Vec3{0, 2, 8})
	camera.LookAt(math.Vec3{0, 0, 0})

	vertices, indices, extents := math.GenerateCube(1, 1, 1)
	cube := metadata.NewMesh(dev, 1, "test_cube", vertices, indices, extents)
	return &testRenderer{Renderer: r, dev: dev, camera: camera, cube: cube}
}

// frame renders one frame with the submissions made by submit and returns
// the device counters of that frame alone.
func (tr *testRenderer) frame(t *testing.T, submit func()) soft.Stats {
	t.Helper()
	tr.dev.ResetStats()
	if err := tr.Begin(tr.camera, testWidth, testHeight); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if submit != nil {
		submit()
	}
	if err := tr.End(nil); err != nil {
		t.Fatalf("end: %v", err)
	}
	tr.EndFrame()
	return tr.dev.Stats()
}

type testScene struct {
	sky   metadata.RendererDataHandle
	probe metadata.RendererDataHandle
}

func (tr *testRenderer) newScene() *testScene {
	return &testScene{
		sky:   tr.Atmosphere.RequestRendererData(),
		probe: tr.IBL.RequestRendererData(),
	}
}

// submit queues every kind of renderable the pipeline consumes.
func (tr *testRenderer) submit(s *testScene) {
	material := metadata.DefaultMaterial()
	tr.SubmitMesh(tr.cube, material, mgl32.Ident4(), 1, true, true)
	tr.SubmitMesh(tr.cube, material, mgl32.Translate3D(2, 0, 0), 2, false, true)

	sun := metadata.NewDirectionalLight(math.Vec3{1, 1, 1}, 3, math.Vec3{0.3, 1, 0.2}, 0.01)
	tr.SubmitPrimaryLight(sun, true, mgl32.Ident4())

	tr.SubmitSky(metadata.DefaultAtmosphere(), s.sky)
	tr.SubmitIBL(metadata.DynamicIBL{Intensity: 1, AttachedSkyAtmoHandle: s.sky}, s.probe)

	tr.SubmitPointLight(metadata.NewPointLight(math.Vec3{1, 0.5, 0.2}, 10, 4), mgl32.Translate3D(0, 1, 1))
	tr.SubmitSpotLight(metadata.NewSpotLight(math.Vec3{1, 1, 1}, 20, 6, mgl32.DegToRad(15), mgl32.DegToRad(25)), mgl32.Translate3D(0, 4, 0))
	tr.SubmitRectLight(metadata.NewRectAreaLight(math.Vec3{1, 1, 1}, 4, 1, 1), mgl32.Translate3D(-2, 1, 0), false, 5, true)

	tr.SubmitFogVolume(passes.FogVolumeDesc{
		Phase:         0.5,
		Density:       0.1,
		Absorption:    0.1,
		MieScattering: math.Vec3{1, 1, 1},
	}, mgl32.Scale3D(4, 2, 4))
}

func TestRendererPassOrder(t *testing.T) {
	tr := newTestRenderer(t)
	want := []string{
		"GeometryPass",
		"HiZPass",
		"HBAOPass",
		"ShadowPass",
		"LightCullingPass",
		"DirectionalLightPass",
		"CulledLightingPass",
		"AreaLightPass",
		"SkyAtmospherePass",
		"SkyboxPass",
		"DynamicSkyIBLPass",
		"IBLApplicationPass",
		"VolumetricFogPass",
		"BloomPass",
		"PostProcessingPass",
	}
	var have []string
	for _, p := range tr.Passes().Order() {
		have = append(have, p.Name())
	}
	if !slices.Equal(have, want) {
		t.Fatalf("pass order:\nhave %v\nwant %v", have, want)
	}
}

func TestRendererFullFrameHasNoHazards(t *testing.T) {
	tr := newTestRenderer(t)
	scene := tr.newScene()
	for i := 0; i < 2; i++ {
		st := tr.frame(t, func() { tr.submit(scene) })
		if st.TotalDraws() == 0 {
			t.Fatalf("frame %d recorded no draws", i)
		}
	}
	if hazards := tr.dev.Hazards(); len(hazards) != 0 {
		t.Fatalf("hazards:\nhave %v\nwant none", hazards)
	}
	if !tr.Fog.Data().Ran {
		t.Fatalf("volumetric fog did not run")
	}
	if !tr.Bloom.Data().Ran {
		t.Fatalf("bloom did not run")
	}
	if have := tr.Stats().FrameNumber; have != 2 {
		t.Fatalf("frame number:\nhave %d\nwant 2", have)
	}
}

func TestRendererShadowsNeedPrimaryLight(t *testing.T) {
	tr := newTestRenderer(t)
	st := tr.frame(t, func() {
		tr.SubmitMesh(tr.cube, nil, mgl32.Ident4(), 1, false, true)
	})
	if have := st.Draws["static_shadow_shader"]; have != 0 {
		t.Fatalf("shadow draws without a primary light:\nhave %d\nwant 0", have)
	}
	if have := tr.Shadow.Data().NumDrawCalls; have != 0 {
		t.Fatalf("shadow draw calls:\nhave %d\nwant 0", have)
	}

	sun := metadata.NewDirectionalLight(math.Vec3{1, 1, 1}, 3, math.Vec3{0, 1, 0}, 0.01)
	st = tr.frame(t, func() {
		tr.SubmitMesh(tr.cube, nil, mgl32.Ident4(), 1, false, true)
		tr.SubmitPrimaryLight(sun, true, mgl32.Ident4())
	})
	if st.Draws["static_shadow_shader"] == 0 {
		t.Fatalf("no shadow draws with a primary light")
	}
}

func TestRendererShadowUniformsOnTransition(t *testing.T) {
	tr := newTestRenderer(t)
	read := func() metadata.DirectionalUniforms {
		return gpu.ReadStruct[metadata.DirectionalUniforms](tr.Shadow.Data().UniformBuffer.Bytes(), 0)
	}
	if u := read(); u.ShadowedLight != -1 || u.NumCascades != 0 {
		t.Fatalf("initial uniforms:\nhave light %d, %d cascades\nwant light -1, 0 cascades", u.ShadowedLight, u.NumCascades)
	}

	sun := metadata.NewDirectionalLight(math.Vec3{1, 1, 1}, 3, math.Vec3{0, 1, 0}, 0.01)
	lit := func() {
		tr.SubmitMesh(tr.cube, nil, mgl32.Ident4(), 1, false, true)
		tr.SubmitPrimaryLight(sun, true, mgl32.Ident4())
	}
	unlit := func() {
		tr.SubmitMesh(tr.cube, nil, mgl32.Ident4(), 1, false, true)
	}

	tr.frame(t, lit)
	if have, want := read().NumCascades, uint32(testSettings().Shadows.Cascades); have != want {
		t.Fatalf("cascades while lit:\nhave %d\nwant %d", have, want)
	}

	tr.frame(t, unlit)
	if u := read(); u.ShadowedLight != -1 || u.NumCascades != 0 {
		t.Fatalf("uniforms after losing the light:\nhave light %d, %d cascades\nwant light -1, 0 cascades", u.ShadowedLight, u.NumCascades)
	}

	// A second frame without a light leaves the buffer alone.
	marker := metadata.DirectionalUniforms{ShadowedLight: 7, NumCascades: 99}
	gpu.WriteStruct(tr.Shadow.Data().UniformBuffer, 0, &marker)
	tr.frame(t, unlit)
	if u := read(); u != marker {
		t.Fatalf("uniforms rewritten without a light:\nhave %+v\nwant %+v", u, marker)
	}

	tr.frame(t, lit)
	if u := read(); u.NumCascades == 99 || u.ShadowedLight != -1 {
		t.Fatalf("uniforms not rewritten when lit again: %+v", u)
	}
}

func TestRendererSkinnedEntityMask(t *testing.T) {
	tr := newTestRenderer(t)
	bones := []math.Mat4{mgl32.Ident4(), mgl32.Translate3D(0, 1, 0)}

	tests := []struct {
		name        string
		submit      func()
		wantSkinned int
		wantMask    int
	}{
		{"selected skinned", func() {
			tr.SubmitSkinnedMesh(tr.cube, nil, mgl32.Ident4(), bones, 7, true, false)
		}, 1, 1},
		{"skinned and static", func() {
			tr.SubmitSkinnedMesh(tr.cube, nil, mgl32.Ident4(), bones, 7, true, false)
			tr.SubmitMesh(tr.cube, nil, mgl32.Translate3D(2, 0, 0), 1, false, false)
		}, 1, 2},
		{"culled skinned", func() {
			tr.SubmitSkinnedMesh(tr.cube, nil, mgl32.Ident4(), bones, 7, true, false)
			tr.SubmitSkinnedMesh(tr.cube, nil, mgl32.Translate3D(0, 0, 30), bones, 8, false, false)
		}, 1, 1},
		{"two skinned", func() {
			tr.SubmitSkinnedMesh(tr.cube, nil, mgl32.Ident4(), bones, 7, true, false)
			tr.SubmitSkinnedMesh(tr.cube, nil, mgl32.Translate3D(-2, 0, 0), bones, 8, false, false)
		}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tr.frame(t, tt.submit)
			if have := st.Draws["geometry_pass_skinned_shader"]; have != tt.wantSkinned {
				t.Fatalf("skinned draws:\nhave %d\nwant %d", have, tt.wantSkinned)
			}
			if have := st.Draws["entity_mask_shader"]; have != tt.wantMask {
				t.Fatalf("entity mask draws:\nhave %d\nwant %d", have, tt.wantMask)
			}
		})
	}
}

func TestRendererAtmosphereRecomputesOnChange(t *testing.T) {
	tr := newTestRenderer(t)
	sky := tr.Atmosphere.RequestRendererData()
	params := metadata.DefaultAtmosphere()

	tests := []struct {
		name   string
		submit func()
		want   int
	}{
		{"first submission", func() {
			tr.SubmitSky(params, sky)
			tr.SubmitSky(params, sky)
		}, 1},
		{"unchanged", func() { tr.SubmitSky(params, sky) }, 0},
		{"changed", func() {
			changed := params
			changed.MieScat[0] *= 2
			tr.SubmitSky(changed, sky)
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tr.frame(t, tt.submit)
			if have := st.Dispatches["hillaire_transmittance"]; have != tt.want {
				t.Fatalf("transmittance dispatches:\nhave %d\nwant %d", have, tt.want)
			}
			if have := tr.Atmosphere.Data().WasUpdated(sky); have != (tt.want > 0) {
				t.Fatalf("updated:\nhave %v\nwant %v", have, tt.want > 0)
			}
		})
	}
}

func TestRendererIBLFollowsSky(t *testing.T) {
	tr := newTestRenderer(t)
	sky := tr.Atmosphere.RequestRendererData()
	probe := tr.IBL.RequestRendererData()
	probeParams := metadata.DynamicIBL{Intensity: 1, AttachedSkyAtmoHandle: sky}
	atmosphere := metadata.DefaultAtmosphere()

	tests := []struct {
		name   string
		sky    metadata.Atmosphere
		update bool
	}{
		{"first submission", atmosphere, true},
		{"unchanged sky", atmosphere, false},
		{"changed sky", func() metadata.Atmosphere {
			a := atmosphere
			a.SunDirAtmRadius[1] = -a.SunDirAtmRadius[1]
			return a
		}(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr.frame(t, func() {
				tr.SubmitSky(tt.sky, sky)
				tr.SubmitIBL(probeParams, probe)
			})
			have := slices.Contains(tr.IBL.Data().Updated, probe)
			if have != tt.update {
				t.Fatalf("probe updated:\nhave %v\nwant %v", have, tt.update)
			}
		})
	}
}

func TestRendererFogPingPong(t *testing.T) {
	tr := newTestRenderer(t)
	scene := tr.newScene()

	tests := []struct {
		read, written, current int
	}{
		{read: 1, written: 0, current: 1},
		{read: 0, written: 1, current: 0},
		{read: 1, written: 0, current: 1},
	}
	for i, tt := range tests {
		tr.frame(t, func() { tr.submit(scene) })
		d := tr.Fog.Data()
		if !d.Ran {
			t.Fatalf("frame %d: fog did not run", i)
		}
		if d.LastRead != tt.read || d.LastWritten != tt.written || d.Current != tt.current {
			t.Fatalf("frame %d history (read, written, current):\nhave %d %d %d\nwant %d %d %d",
				i, d.LastRead, d.LastWritten, d.Current, tt.read, tt.written, tt.current)
		}
		if have := d.Resolves; have != uint32(i+1) {
			t.Fatalf("frame %d resolves:\nhave %d\nwant %d", i, have, i+1)
		}
	}
}

func TestRendererFogNeedsVolumes(t *testing.T) {
	tr := newTestRenderer(t)
	sun := metadata.NewDirectionalLight(math.Vec3{1, 1, 1}, 3, math.Vec3{0, 1, 0}, 0.01)
	st := tr.frame(t, func() {
		tr.SubmitPrimaryLight(sun, true, mgl32.Ident4())
	})
	if tr.Fog.Data().Ran {
		t.Fatalf("fog ran without volumes")
	}
	if have := st.Dispatches["populate_froxels"]; have != 0 {
		t.Fatalf("populate dispatches:\nhave %d\nwant 0", have)
	}
}

func TestRendererLightCulling(t *testing.T) {
	tr := newTestRenderer(t)
	// An empty depth buffer puts every tile on the far plane.
	tr.camera.Far = 20

	tr.frame(t, func() {
		tr.SubmitPointLight(metadata.NewPointLight(math.Vec3{1, 1, 1}, 10, 15), mgl32.Ident4())
		tr.SubmitPointLight(metadata.NewPointLight(math.Vec3{1, 1, 1}, 10, 3), mgl32.Translate3D(0, 2, 20))
	})

	d := tr.Culling.Data()
	if d.TilesX != 4 || d.TilesY != 3 {
		t.Fatalf("tile grid:\nhave %dx%d\nwant 4x3", d.TilesX, d.TilesY)
	}
	if have := tr.Culling.TileLights(passes.PointLights, 2, 1); !slices.Contains(have, 0) {
		t.Fatalf("center tile lights:\nhave %v\nwant light 0", have)
	}
	for y := 0; y < int(d.TilesY); y++ {
		for x := 0; x < int(d.TilesX); x++ {
			if slices.Contains(tr.Culling.TileLights(passes.PointLights, x, y), 1) {
				t.Fatalf("light behind the camera culled into tile %d,%d", x, y)
			}
		}
	}
}

func TestRendererGeometryBatching(t *testing.T) {
	tr := newTestRenderer(t)
	shared := metadata.DefaultMaterial()
	other := metadata.DefaultMaterial()
	other.Albedo = math.Vec4{1, 0, 0, 1}

	scene := func() {
		for i := 0; i < 3; i++ {
			tr.SubmitMesh(tr.cube, shared, mgl32.Translate3D(float32(i-1)*2, 0, 0), uint32(i), false, false)
		}
		tr.SubmitMesh(tr.cube, other, mgl32.Translate3D(0, 1.5, 0), 3, false, false)
	}

	tr.frame(t, scene)
	d := tr.Geometry.Data()
	if d.NumDrawCalls != 2 || d.NumInstances != 4 {
		t.Fatalf("draw calls and instances:\nhave %d %d\nwant 2 4", d.NumDrawCalls, d.NumInstances)
	}
	if d.TrianglesDrawn != d.TrianglesSubmitted {
		t.Fatalf("visible triangles:\nhave %d\nwant %d", d.TrianglesDrawn, d.TrianglesSubmitted)
	}

	tr.frame(t, func() {
		scene()
		tr.SubmitMesh(tr.cube, shared, mgl32.Translate3D(0, 2, 30), 4, false, false)
	})
	d = tr.Geometry.Data()
	if d.NumDrawCalls != 2 || d.NumInstances != 4 {
		t.Fatalf("draw calls and instances with a culled object:\nhave %d %d\nwant 2 4", d.NumDrawCalls, d.NumInstances)
	}
	if want := 5 * tr.cube.Triangles(); d.TrianglesSubmitted != want {
		t.Fatalf("submitted triangles:\nhave %d\nwant %d", d.TrianglesSubmitted, want)
	}
	if d.TrianglesDrawn >= d.TrianglesSubmitted {
		t.Fatalf("culled object was drawn: %d of %d triangles", d.TrianglesDrawn, d.TrianglesSubmitted)
	}
	if have := tr.Stats().DrawCalls; have != 2 {
		t.Fatalf("renderer stats draw calls:\nhave %d\nwant 2", have)
	}
}

func TestRendererAtmospherePoolExhaustion(t *testing.T) {
	tr := newTestRenderer(t)
	handles := make([]metadata.RendererDataHandle, 0, passes.MaxAtmospheres)
	for i := 0; i < passes.MaxAtmospheres; i++ {
		h := tr.Atmosphere.RequestRendererData()
		if !h.Valid() {
			t.Fatalf("request %d failed", i)
		}
		handles = append(handles, h)
	}
	if h := tr.Atmosphere.RequestRendererData(); h.Valid() {
		t.Fatalf("request past capacity:\nhave %v\nwant InvalidHandle", h)
	}

	tr.Atmosphere.DeleteRendererData(&handles[3])
	if handles[3] != metadata.InvalidHandle {
		t.Fatalf("deleted handle:\nhave %v\nwant InvalidHandle", handles[3])
	}
	if h := tr.Atmosphere.RequestRendererData(); !h.Valid() {
		t.Fatalf("request after delete failed")
	}
}

func TestRendererRejectsEmptyViewport(t *testing.T) {
	tr := newTestRenderer(t)
	if err := tr.Begin(tr.camera, 0, testHeight); err == nil {
		t.Fatalf("begin with zero width succeeded")
	}
}

func TestRendererApplySettings(t *testing.T) {
	tr := newTestRenderer(t)
	s := testSettings()
	s.Bloom.Enabled = false
	tr.ApplySettings(s)

	st := tr.frame(t, nil)
	if tr.Bloom.Data().Ran {
		t.Fatalf("bloom ran after being disabled")
	}
	if have := st.Dispatches["bloom_downsample_karis"]; have != 0 {
		t.Fatalf("bloom dispatches:\nhave %d\nwant 0", have)
	}
	if have := st.Dispatches["post_processing"]; have != 1 {
		t.Fatalf("post processing dispatches:\nhave %d\nwant 1", have)
	}
}

func TestRendererAmbientOcclusion(t *testing.T) {
	mips := passes.HiZMipCount(testWidth, testHeight)
	tests := []struct {
		name     string
		enabled  bool
		hbao     int
		blur     int
		occluded bool
	}{
		{"enabled", true, 1, 2, true},
		{"disabled", false, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRenderer(t)
			s := testSettings()
			s.AO.Enabled = tt.enabled
			tr.ApplySettings(s)
			scene := tr.newScene()

			var st soft.Stats
			for i := 0; i < 2; i++ {
				st = tr.frame(t, func() { tr.submit(scene) })
			}
			if hazards := tr.dev.Hazards(); len(hazards) != 0 {
				t.Fatalf("hazards:\nhave %v\nwant none", hazards)
			}
			if have := st.Dispatches["copy_depth_hi_z"]; have != 1 {
				t.Fatalf("depth copies:\nhave %d\nwant 1", have)
			}
			if have := st.Dispatches["generate_hi_z"]; have != mips-1 {
				t.Fatalf("pyramid reductions:\nhave %d\nwant %d", have, mips-1)
			}
			if have := st.Dispatches["screen_space_hbao"]; have != tt.hbao {
				t.Fatalf("hbao dispatches:\nhave %d\nwant %d", have, tt.hbao)
			}
			if have := st.Dispatches["screen_space_hbao_blur"]; have != tt.blur {
				t.Fatalf("blur dispatches:\nhave %d\nwant %d", have, tt.blur)
			}
			if !tr.IBLApply.Data().Applied {
				t.Fatalf("ambient light was not applied")
			}
			if have := tr.IBLApply.Data().Occluded; have != tt.occluded {
				t.Fatalf("occluded:\nhave %v\nwant %v", have, tt.occluded)
			}
		})
	}
}
