package passes

import (
	stdmath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/math"
)

func TestCascadeSplits(t *testing.T) {
	splits := CascadeSplits(0.1, 200, 0.5, 4)
	if len(splits) != 4 {
		t.Fatalf("split count:\nhave %d\nwant 4", len(splits))
	}
	prev := float32(0.1)
	for i, s := range splits {
		if s <= prev {
			t.Fatalf("split %d not increasing: %v after %v", i, s, prev)
		}
		prev = s
	}
	if splits[3] != 200 {
		t.Fatalf("last split:\nhave %v\nwant 200", splits[3])
	}
}

func TestCascadeSplitsLambda(t *testing.T) {
	tests := []struct {
		name   string
		lambda float32
		first  float32
	}{
		// Pure uniform: 0.1 + 199.9 / 4.
		{"uniform", 0, 50.075},
		// Pure logarithmic: 0.1 * 2000^(1/4).
		{"logarithmic", 1, 0.1 * float32(stdmath.Pow(2000, 0.25))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			have := CascadeSplits(0.1, 200, tt.lambda, 4)[0]
			if stdmath.Abs(float64(have-tt.first)) > 1e-3 {
				t.Fatalf("have %v\nwant %v", have, tt.first)
			}
		})
	}
}

func testCamera() (math.Mat4, float32, float32) {
	near, far := float32(0.1), float32(200)
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, near, far)
	view := mgl32.LookAtV(math.Vec3{0, 2, 10}, math.Vec3{0, 0, 0}, math.Vec3{0, 1, 0})
	return proj.Mul4(view).Inv(), near, far
}

func TestComputeCascades(t *testing.T) {
	invVP, near, far := testCamera()
	params := CascadeParams{
		InvViewProjection: invVP,
		Near:              near,
		Far:               far,
		Lambda:            0.5,
		Count:             4,
		Resolution:        2048,
		ToLight:           math.Vec3{0.3, 1, 0.2},
		SceneBounds:       math.Extents3D{Min: math.Vec3{-20, -1, -20}, Max: math.Vec3{20, 5, 20}},
	}
	cascades := ComputeCascades(params)
	if len(cascades) != 4 {
		t.Fatalf("cascade count:\nhave %d\nwant 4", len(cascades))
	}
	if have := cascades[3].SplitDepth; stdmath.Abs(float64(have-far)) > 1e-3 {
		t.Fatalf("last split depth:\nhave %v\nwant %v", have, far)
	}

	ndc := math.NDCCorners()
	lastSplit := float32(0)
	for i, c := range cascades {
		if r := c.Radius * 16; r != float32(stdmath.Trunc(float64(r))) {
			t.Fatalf("cascade %d radius %v not a multiple of 1/16", i, c.Radius)
		}
		// Every corner of the camera slice must land inside the cascade.
		for j := 0; j < 4; j++ {
			n := math.TransformPoint(invVP, ndc[j])
			f := math.TransformPoint(invVP, ndc[j+4])
			for _, s := range []float32{lastSplit, c.Split} {
				p := n.Add(f.Sub(n).Mul(s))
				clip := math.TransformPoint(c.ViewProjection, p)
				for k := 0; k < 3; k++ {
					if clip[k] < -1.01 || clip[k] > 1.01 {
						t.Fatalf("cascade %d: slice corner %v outside light clip space %v", i, p, clip)
					}
				}
			}
		}
		lastSplit = c.Split
	}
}

func TestCascadeTexelSnap(t *testing.T) {
	invVP, near, far := testCamera()
	const res = 1024
	cascades := ComputeCascades(CascadeParams{
		InvViewProjection: invVP,
		Near:              near,
		Far:               far,
		Lambda:            0.5,
		Count:             2,
		Resolution:        res,
		ToLight:           math.Vec3{1, 1, 0},
	})
	for i, c := range cascades {
		origin := c.ViewProjection.Mul4x1(math.Vec4{0, 0, 0, 1}).Mul(res / 2)
		for k := 0; k < 2; k++ {
			frac := stdmath.Abs(float64(origin[k]) - stdmath.Round(float64(origin[k])))
			if frac > 1e-2 {
				t.Fatalf("cascade %d: origin %v not on a texel", i, origin)
			}
		}
	}
}

func TestLightUpFallsBackWhenParallel(t *testing.T) {
	if have := lightUp(math.Vec3{0, 0, 1}); have != (math.Vec3{0, 1, 0}) {
		t.Fatalf("have %v\nwant (0, 1, 0)", have)
	}
	if have := lightUp(math.Vec3{0, 1, 0}); have != (math.Vec3{0, 0, 1}) {
		t.Fatalf("have %v\nwant (0, 0, 1)", have)
	}
}
