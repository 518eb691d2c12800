package shaders

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func lookupProgram(t *testing.T, dev *soft.Device, name string) gpu.Program {
	t.Helper()
	p, err := dev.Shaders().Program(name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGenerateHiZTakesFarthestDepth(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          []float32
	}{
		// Level one of 4x2 is 2x1, two plain 2x2 blocks.
		{"even", 4, 2, []float32{6, 8}},
		// Level one of 5x3 is 2x1; the odd column and row fold into the
		// last block.
		{"odd", 5, 3, []float32{12, 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewDevice(soft.Options{})
			hiz := dev.NewTexture(gpu.TextureDesc{Label: "hi_z", Format: gpu.FormatR32F, Width: tt.width, Height: tt.height, Mips: 2})
			tex := hiz.(*soft.Texture)
			for y := 0; y < tt.height; y++ {
				for x := 0; x < tt.width; x++ {
					tex.Store(x, y, 0, 0, [4]float32{float32(y*tt.width + x + 1)})
				}
			}

			dev.Dispatch(lookupProgram(t, dev, "generate_hi_z"), 1, 1, 1, gpu.ImageWrite(0, hiz, 1), gpu.ImageRead(1, hiz, 0))

			w, h := tex.Size(1)
			if w*h != len(tt.want) {
				t.Fatalf("level one size:\nhave %dx%d\nwant %d texels", w, h, len(tt.want))
			}
			for x, want := range tt.want {
				if have := tex.Load(x, 0, 0, 1)[0]; have != want {
					t.Fatalf("texel %d:\nhave %v\nwant %v", x, have, want)
				}
			}
		})
	}
}

// aoScene is an 8x8 half resolution occlusion target over a 16x16 depth
// pyramid whose level one is written directly.
type aoScene struct {
	dev     *soft.Device
	cam     gpu.Buffer
	proj    mgl32.Mat4
	hiz     *soft.Texture
	normals gpu.Texture
	out     gpu.Texture
}

func newAOScene(t *testing.T) *aoScene {
	t.Helper()
	s := newFlatScene(t)
	a := &aoScene{
		dev:  s.dev,
		cam:  s.cam,
		proj: mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100),
	}
	a.hiz = s.dev.NewTexture(gpu.TextureDesc{Label: "hi_z", Format: gpu.FormatR32F, Width: 16, Height: 16, Mips: 2}).(*soft.Texture)
	a.normals = s.dev.NewTexture(gpu.TextureDesc{Label: "normals", Format: gpu.FormatRGBA16F, Width: 16, Height: 16})
	a.normals.(*soft.Texture).Fill([4]float32{0, 0, 1, 0})
	a.out = s.dev.NewTexture(gpu.TextureDesc{Label: "ao", Format: gpu.FormatRG16F, Width: 8, Height: 8})
	return a
}

// depth returns the window depth of a point at view depth z.
func (a *aoScene) depth(z float32) float32 {
	clip := a.proj.Mul4x1(mgl32.Vec4{0, 0, -z, 1})
	return clip[2]/clip[3]*0.5 + 0.5
}

func (a *aoScene) run(t *testing.T) {
	t.Helper()
	params := a.dev.NewBuffer("ao", 0)
	gpu.WriteStruct(params, 0, &metadata.AOUniforms{Params: mgl32.Vec4{20, 1, 1, 2}})
	a.dev.Dispatch(lookupProgram(t, a.dev, "screen_space_hbao"), 1, 1, 1,
		gpu.Uniform(0, a.cam),
		gpu.Uniform(1, params),
		gpu.Sampler(0, a.hiz),
		gpu.Sampler(1, a.normals),
		gpu.ImageWrite(0, a.out, 0),
	)
}

func (a *aoScene) occlusion(x, y int) [4]float32 {
	return a.out.(*soft.Texture).Load(x, y, 0, 0)
}

func TestHBAOFlatWallIsUnoccluded(t *testing.T) {
	a := newAOScene(t)
	a.hiz.Fill([4]float32{a.depth(5)})
	a.run(t)

	for _, p := range [][2]int{{0, 0}, {3, 4}, {7, 7}} {
		have := a.occlusion(p[0], p[1])
		if abs(have[0]-1) > 1e-4 {
			t.Fatalf("occlusion at %v:\nhave %v\nwant 1", p, have[0])
		}
		if abs(have[1]-5) > 1e-2 {
			t.Fatalf("view depth at %v:\nhave %v\nwant 5", p, have[1])
		}
	}
}

func TestHBAOPitIsOccluded(t *testing.T) {
	a := newAOScene(t)
	a.hiz.Fill([4]float32{a.depth(4)})
	for y := 3; y <= 4; y++ {
		for x := 3; x <= 4; x++ {
			a.hiz.Store(x, y, 0, 1, [4]float32{a.depth(5)})
		}
	}
	a.run(t)

	pit, rim := a.occlusion(3, 3)[0], a.occlusion(0, 7)[0]
	if pit >= 1 {
		t.Fatalf("pit occlusion:\nhave %v\nwant below 1", pit)
	}
	if pit >= rim {
		t.Fatalf("pit against rim:\nhave %v >= %v\nwant pit darker", pit, rim)
	}
}

func TestHBAOSkyIsUnoccluded(t *testing.T) {
	a := newAOScene(t)
	a.hiz.Fill([4]float32{1})
	a.run(t)
	if have := a.occlusion(2, 2); have[0] != 1 || have[1] != 100 {
		t.Fatalf("sky texel:\nhave %v\nwant (1, 100)", have)
	}
}

func TestHBAOBlurKeepsConstantField(t *testing.T) {
	tests := []struct {
		name      string
		direction mgl32.Vec4
	}{
		{"horizontal", mgl32.Vec4{1, 0, 0, 0}},
		{"vertical", mgl32.Vec4{0, 1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewDevice(soft.Options{})
			src := dev.NewTexture(gpu.TextureDesc{Label: "src", Format: gpu.FormatRG16F, Width: 8, Height: 8})
			src.(*soft.Texture).Fill([4]float32{0.6, 5})
			dst := dev.NewTexture(gpu.TextureDesc{Label: "dst", Format: gpu.FormatRG16F, Width: 8, Height: 8})
			params := dev.NewBuffer("ao", 0)
			gpu.WriteStruct(params, 0, &metadata.AOUniforms{BlurDirection: tt.direction})

			dev.Dispatch(lookupProgram(t, dev, "screen_space_hbao_blur"), 1, 1, 1,
				gpu.Uniform(1, params), gpu.ImageRead(0, src, 0), gpu.ImageWrite(1, dst, 0))

			for _, p := range [][2]int{{0, 0}, {4, 4}, {7, 2}} {
				have := dst.(*soft.Texture).Load(p[0], p[1], 0, 0)
				if abs(have[0]-0.6) > 1e-5 || have[1] != 5 {
					t.Fatalf("texel %v:\nhave %v\nwant (0.6, 5)", p, have)
				}
			}
		})
	}
}
