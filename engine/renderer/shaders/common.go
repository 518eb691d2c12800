// Package shaders holds the compute programs of the render passes as CPU
// kernels for the reference device, registered under the keys the passes
// look them up by.
package shaders

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const pi = float32(stdmath.Pi)

// GroupSize is the edge of the square workgroup used by image kernels.
const GroupSize = 8

func uniform[T any](inv *soft.Invocation, slot int) (T, bool) {
	var zero T
	b := inv.Uniform(slot)
	if b == nil || b.Size() < gpu.SizeOf[T]() {
		return zero, false
	}
	return gpu.ReadStruct[T](b.Bytes(), 0), true
}

func storage[T any](inv *soft.Invocation, slot int) []T {
	return gpu.View[T](inv.StorageRange(slot))
}

func camera(inv *soft.Invocation) (metadata.CameraUniforms, bool) {
	return uniform[metadata.CameraUniforms](inv, 0)
}

// groupTexels calls fn for every texel of the workgroup's 8x8 block that
// lies inside a w by h image.
func groupTexels(inv *soft.Invocation, w, h int, fn func(x, y int)) {
	x0, y0 := inv.GroupID[0]*GroupSize, inv.GroupID[1]*GroupSize
	for y := y0; y < min(y0+GroupSize, h); y++ {
		for x := x0; x < min(x0+GroupSize, w); x++ {
			fn(x, y)
		}
	}
}

func vec4(v [4]float32) mgl32.Vec4 { return mgl32.Vec4(v) }

func rgb(v [4]float32) mgl32.Vec3 { return mgl32.Vec3{v[0], v[1], v[2]} }

func texel(c mgl32.Vec3, a float32) [4]float32 { return [4]float32{c[0], c[1], c[2], a} }

func saturate(f float32) float32 {
	return mgl32.Clamp(f, 0, 1)
}

func exp(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(stdmath.Exp(float64(v[0]))),
		float32(stdmath.Exp(float64(v[1]))),
		float32(stdmath.Exp(float64(v[2]))),
	}
}

func sqrt(f float32) float32 { return float32(stdmath.Sqrt(float64(f))) }

func mulComp(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func luminance(c mgl32.Vec3) float32 {
	return c.Dot(mgl32.Vec3{0.2126, 0.7152, 0.0722})
}

// worldPosition reconstructs the world position of pixel (x, y) from its
// window depth.
func worldPosition(cam metadata.CameraUniforms, x, y int, depth float32) mgl32.Vec3 {
	w, h := cam.NearFarSize[2], cam.NearFarSize[3]
	ndc := mgl32.Vec4{
		(float32(x)+0.5)/w*2 - 1,
		(float32(y)+0.5)/h*2 - 1,
		depth*2 - 1,
		1,
	}
	p := cam.InvViewProjection.Mul4x1(ndc)
	return p.Vec3().Mul(1 / p[3])
}

// viewDirection returns the normalized world-space ray through pixel (x, y).
func viewDirection(cam metadata.CameraUniforms, x, y int) mgl32.Vec3 {
	far := worldPosition(cam, x, y, 1)
	return far.Sub(cam.Position.Vec3()).Normalize()
}

// gbufferTexel is one decoded pixel of the geometry buffer.
type gbufferTexel struct {
	albedo    mgl32.Vec3
	ao        float32
	normal    mgl32.Vec3
	roughness float32
	metallic  float32
	position  mgl32.Vec3
	depth     float32
}

// Geometry buffer slots shared by the lighting kernels: samplers 0-2 hold
// colour attachments 0-2 and sampler 3 the depth.
func readGBuffer(inv *soft.Invocation, cam metadata.CameraUniforms, x, y int) (gbufferTexel, bool) {
	depthTex := inv.Sampler(3)
	if depthTex == nil {
		return gbufferTexel{}, false
	}
	d := depthTex.Load(x, y, 0, 0)[0]
	if d >= 1 {
		return gbufferTexel{depth: d}, false
	}
	var g gbufferTexel
	g.depth = d
	if t := inv.Sampler(0); t != nil {
		v := t.Load(x, y, 0, 0)
		g.albedo, g.ao = rgb(v), v[3]
	}
	if t := inv.Sampler(1); t != nil {
		v := t.Load(x, y, 0, 0)
		g.normal, g.roughness = rgb(v), v[3]
		if g.normal.Len() > 0 {
			g.normal = g.normal.Normalize()
		}
	}
	if t := inv.Sampler(2); t != nil {
		g.metallic = t.Load(x, y, 0, 0)[3]
	}
	g.position = worldPosition(cam, x, y, d)
	return g, true
}

// accumulate adds radiance into the lighting image bound at image slot 0.
func accumulate(target *soft.Texture, x, y int, radiance mgl32.Vec3) {
	cur := target.Load(x, y, 0, 0)
	target.Store(x, y, 0, 0, [4]float32{cur[0] + radiance[0], cur[1] + radiance[1], cur[2] + radiance[2], 1})
}
