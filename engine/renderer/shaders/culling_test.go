package shaders

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	testWidth  = 1600
	testHeight = 900
	testTile   = 16
	testNear   = 0.1
	testFar    = 200
)

type cullingFixture struct {
	dev    *soft.Device
	proj   mgl32.Mat4
	cam    gpu.Buffer
	params gpu.Buffer
	tiles  gpu.Buffer
	lists  gpu.Buffer
	tilesX int
	tilesY int
}

func newCullingFixture(t *testing.T) *cullingFixture {
	t.Helper()
	dev := NewDevice(soft.Options{})
	proj := mgl32.Perspective(mgl32.DegToRad(60), float32(testWidth)/testHeight, testNear, testFar)
	view := mgl32.Ident4()
	u := metadata.CameraUniforms{
		View:              view,
		Projection:        proj,
		ViewProjection:    proj,
		InvView:           view,
		InvProjection:     proj.Inv(),
		InvViewProjection: proj.Inv(),
		Position:          mgl32.Vec4{0, 0, 0, 1},
		NearFarSize:       mgl32.Vec4{testNear, testFar, testWidth, testHeight},
	}
	f := &cullingFixture{
		dev:    dev,
		proj:   proj,
		cam:    dev.NewBuffer("camera", 0),
		params: dev.NewBuffer("culling", 0),
		tilesX: (testWidth + testTile - 1) / testTile,
		tilesY: (testHeight + testTile - 1) / testTile,
	}
	gpu.WriteStruct(f.cam, 0, &u)
	f.tiles = dev.NewBuffer("tiles", f.tilesX*f.tilesY*gpu.SizeOf[metadata.TileFrustum]())
	f.lists = dev.NewBuffer("lists", f.tilesX*f.tilesY*257*4)
	return f
}

func (f *cullingFixture) program(t *testing.T, name string) gpu.Program {
	t.Helper()
	p, err := f.dev.Shaders().Program(name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *cullingFixture) buildTiles(t *testing.T, depth gpu.Texture, lights uint32) {
	t.Helper()
	params := metadata.CullingUniforms{
		TileSize:       testTile,
		TilesX:         uint32(f.tilesX),
		TilesY:         uint32(f.tilesY),
		NumPointLights: lights,
		NumRectLights:  lights,
		MaxPerTile:     [3]uint32{256, 256, 64},
	}
	gpu.WriteStruct(f.params, 0, &params)
	bindings := []gpu.Binding{gpu.Uniform(0, f.cam), gpu.Uniform(1, f.params), gpu.StorageWrite(0, f.tiles)}
	if depth != nil {
		bindings = append(bindings, gpu.Sampler(0, depth))
	}
	f.dev.Dispatch(f.program(t, "tiled_frustums_aabbs"), f.tilesX, f.tilesY, 1, bindings...)
	f.dev.MemoryBarrier(gpu.BarrierStorageBuffer)
}

func (f *cullingFixture) cullPoints(t *testing.T, lights []metadata.PointLight) {
	t.Helper()
	f.buildTiles(t, nil, uint32(len(lights)))
	buf := f.dev.NewBuffer("points", 0)
	gpu.WriteSlice(buf, 0, lights)
	f.dev.Dispatch(f.program(t, "tiled_point_light_culling"), f.tilesX, f.tilesY, 1,
		gpu.Uniform(0, f.cam), gpu.Uniform(1, f.params),
		gpu.StorageRead(0, f.tiles), gpu.StorageRead(1, buf), gpu.StorageWrite(2, f.lists))
	f.dev.MemoryBarrier(gpu.BarrierStorageBuffer)
}

func (f *cullingFixture) list(x, y, capacity int) []int32 {
	lists := gpu.View[int32](f.lists.Bytes())
	stride := capacity + 1
	idx := y*f.tilesX + x
	n := int(lists[idx*stride])
	return lists[idx*stride+1 : idx*stride+1+n]
}

func (f *cullingFixture) frustum(x, y int) metadata.TileFrustum {
	return gpu.View[metadata.TileFrustum](f.tiles.Bytes())[y*f.tilesX+x]
}

func point(p mgl32.Vec3, radius float32) metadata.PointLight {
	return metadata.PointLight{PositionRadius: p.Vec4(radius), ColourIntensity: mgl32.Vec4{1, 1, 1, 1}}
}

func TestTileGrid(t *testing.T) {
	f := newCullingFixture(t)
	if f.tilesX != 100 || f.tilesY != 57 {
		t.Fatalf("tile grid:\nhave %dx%d\nwant 100x57", f.tilesX, f.tilesY)
	}
}

func TestCullingRejectsDistantLights(t *testing.T) {
	f := newCullingFixture(t)
	f.cullPoints(t, []metadata.PointLight{
		point(mgl32.Vec3{0, 0, 50}, 1),      // behind the camera
		point(mgl32.Vec3{1000, 0, -10}, 5),  // far to the right
		point(mgl32.Vec3{0, -900, -100}, 2), // far below
		point(mgl32.Vec3{0, 0, -500}, 10),   // beyond the far plane
	})
	for y := 0; y < f.tilesY; y++ {
		for x := 0; x < f.tilesX; x++ {
			if l := f.list(x, y, 256); len(l) != 0 {
				t.Fatalf("tile (%d, %d):\nhave %v\nwant []", x, y, l)
			}
		}
	}
	if n := len(f.dev.Hazards()); n != 0 {
		t.Fatalf("hazards:\nhave %v\nwant none", f.dev.Hazards())
	}
}

func TestCullingKeepsEnclosingLight(t *testing.T) {
	for _, tile := range [][2]int{{0, 0}, {50, 28}, {99, 56}, {13, 40}} {
		f := newCullingFixture(t)
		f.buildTiles(t, nil, 0)
		fr := f.frustum(tile[0], tile[1])
		lo, hi := fr.AABBMin.Vec3(), fr.AABBMax.Vec3()
		center := lo.Add(hi).Mul(0.5)
		radius := hi.Sub(lo).Len()*0.5 + 0.01

		f.cullPoints(t, []metadata.PointLight{point(mgl32.Vec3{1000, 0, -10}, 5), point(center, radius)})
		l := f.list(tile[0], tile[1], 256)
		found := false
		for _, i := range l {
			if i == 1 {
				found = true
			}
			if i == 0 {
				t.Fatalf("tile %v contains the distant light: %v", tile, l)
			}
		}
		if !found {
			t.Fatalf("tile %v:\nhave %v\nwant [1]", tile, l)
		}
	}
}

func TestCullingUsesDepthBounds(t *testing.T) {
	f := newCullingFixture(t)
	// Every pixel sees a wall ten units away.
	clip := f.proj.Mul4x1(mgl32.Vec4{0, 0, -10, 1})
	d := clip[2]/clip[3]*0.5 + 0.5
	depth := f.dev.NewTexture(gpu.TextureDesc{Label: "depth", Format: gpu.FormatDepth32F, Width: testWidth, Height: testHeight})
	depth.(*soft.Texture).Fill([4]float32{d})

	f.buildTiles(t, depth, 0)
	fr := f.frustum(50, 28)
	if abs(fr.DepthRange[0]-10) > 0.05 || abs(fr.DepthRange[1]-10) > 0.05 {
		t.Fatalf("depth range:\nhave %v\nwant [10, 10]", fr.DepthRange)
	}

	buf := f.dev.NewBuffer("points", 0)
	gpu.WriteSlice(buf, 0, []metadata.PointLight{
		point(mgl32.Vec3{0, 0, -3}, 1),  // in front of the wall
		point(mgl32.Vec3{0, 0, -10}, 1), // touching it
	})
	params := gpu.View[metadata.CullingUniforms](f.params.Bytes())
	params[0].NumPointLights = 2
	f.dev.Dispatch(f.program(t, "tiled_point_light_culling"), f.tilesX, f.tilesY, 1,
		gpu.Uniform(0, f.cam), gpu.Uniform(1, f.params),
		gpu.StorageRead(0, f.tiles), gpu.StorageRead(1, buf), gpu.StorageWrite(2, f.lists))

	if l := f.list(50, 28, 256); len(l) != 1 || l[0] != 1 {
		t.Fatalf("center tile:\nhave %v\nwant [1]", l)
	}
}

func TestCullingTruncatesAtCapacity(t *testing.T) {
	f := newCullingFixture(t)
	lights := make([]metadata.PointLight, 300)
	for i := range lights {
		lights[i] = point(mgl32.Vec3{0, 0, -20}, 50)
	}
	f.cullPoints(t, lights)
	l := f.list(50, 28, 256)
	if len(l) != 256 {
		t.Fatalf("list length:\nhave %d\nwant 256", len(l))
	}
	for i, idx := range l {
		if idx != int32(i) {
			t.Fatalf("list[%d]:\nhave %d\nwant %d", i, idx, i)
		}
	}
}

func TestRectLightCullFlag(t *testing.T) {
	f := newCullingFixture(t)
	f.buildTiles(t, nil, 2)
	far := metadata.RectAreaLight{Points: [4]mgl32.Vec4{
		{1000, 0, 0, 0}, {1001, 0, 0, 1}, {1001, 1, 0, 0}, {1000, 1, 0, 1},
	}}
	always := far
	always.Points[3][3] = 0
	lights := f.dev.NewBuffer("rects", 0)
	gpu.WriteSlice(lights, 0, []metadata.RectAreaLight{far, always})
	f.dev.Dispatch(f.program(t, "tiled_rect_light_culling"), f.tilesX, f.tilesY, 1,
		gpu.Uniform(0, f.cam), gpu.Uniform(1, f.params),
		gpu.StorageRead(0, f.tiles), gpu.StorageRead(1, lights), gpu.StorageWrite(2, f.lists))

	for _, tile := range [][2]int{{0, 0}, {99, 56}} {
		if l := f.list(tile[0], tile[1], 64); len(l) != 1 || l[0] != 1 {
			t.Fatalf("tile %v:\nhave %v\nwant [1]", tile, l)
		}
	}
}

func TestRectLightSphere(t *testing.T) {
	l := metadata.RectAreaLight{Points: [4]mgl32.Vec4{
		{-1, 0, -1, 0}, {1, 0, -1, 2}, {1, 0, 1, 0}, {-1, 0, 1, 1},
	}}
	c, r := RectLightSphere(&l)
	if c.Len() > 1e-6 {
		t.Fatalf("center:\nhave %v\nwant origin", c)
	}
	if want := sqrt(2) + 2; abs(r-want) > 1e-5 {
		t.Fatalf("radius:\nhave %v\nwant %v", r, want)
	}
}
