package shaders

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Tone mapping operators selectable by PostUniforms.ToneMapOp.
const (
	ToneMapClamp uint32 = iota
	ToneMapReinhard
	ToneMapReinhardLuminance
	ToneMapHable
	ToneMapACESApprox
	ToneMapACESFitted
)

func hable(x mgl32.Vec3) mgl32.Vec3 {
	const a, b, c, d, e, f = 0.15, 0.50, 0.10, 0.20, 0.02, 0.30
	var out mgl32.Vec3
	for i, v := range x {
		out[i] = ((v*(a*v+c*b) + d*e) / (v*(a*v+b) + d*f)) - e/f
	}
	return out
}

var (
	acesInput = mgl32.Mat3{
		0.59719, 0.07600, 0.02840,
		0.35458, 0.90834, 0.13383,
		0.04823, 0.01566, 0.83777,
	}
	acesOutput = mgl32.Mat3{
		1.60475, -0.10208, -0.00327,
		-0.53108, 1.10813, -0.07276,
		-0.07367, -0.00605, 1.07602,
	}
)

// ToneMap maps HDR colour to [0, 1] with the selected operator.
func ToneMap(op uint32, c mgl32.Vec3) mgl32.Vec3 {
	switch op {
	case ToneMapReinhard:
		c = mgl32.Vec3{c[0] / (1 + c[0]), c[1] / (1 + c[1]), c[2] / (1 + c[2])}
	case ToneMapReinhardLuminance:
		const white = 4.0
		l := luminance(c)
		if l > 0 {
			scaled := l * (1 + l/(white*white)) / (1 + l)
			c = c.Mul(scaled / l)
		}
	case ToneMapHable:
		const white = 11.2
		w := hable(mgl32.Vec3{white, white, white})
		h := hable(c.Mul(2))
		c = mgl32.Vec3{h[0] / w[0], h[1] / w[1], h[2] / w[2]}
	case ToneMapACESApprox:
		const a, b, cc, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
		for i, v := range c {
			v *= 0.6
			c[i] = (v * (a*v + b)) / (v*(cc*v+d) + e)
		}
	case ToneMapACESFitted:
		v := acesInput.Mul3x1(c)
		for i, x := range v {
			v[i] = (x*(x+0.0245786) - 0.000090537) / (x*(0.983729*x+0.4329510) + 0.238081)
		}
		c = acesOutput.Mul3x1(v)
	}
	return mgl32.Vec3{saturate(c[0]), saturate(c[1]), saturate(c[2])}
}

func gammaEncode(c mgl32.Vec3, gamma float32) mgl32.Vec3 {
	if gamma <= 0 {
		return c
	}
	inv := float64(1 / gamma)
	return mgl32.Vec3{
		float32(stdmath.Pow(float64(c[0]), inv)),
		float32(stdmath.Pow(float64(c[1]), inv)),
		float32(stdmath.Pow(float64(c[2]), inv)),
	}
}

// gridLine returns the grid coverage at the ground plane hit of pixel
// (x, y), or zero when geometry is closer than the plane.
func gridLine(cam metadata.CameraUniforms, depth *soft.Texture, x, y int, cell float32) float32 {
	if cell <= 0 {
		return 0
	}
	origin := cam.Position.Vec3()
	dir := viewDirection(cam, x, y)
	if abs(dir[1]) < 1e-5 {
		return 0
	}
	t := -origin[1] / dir[1]
	if t <= 0 {
		return 0
	}
	hit := origin.Add(dir.Mul(t))
	if depth != nil {
		if d := depth.Load(x, y, 0, 0)[0]; d < 1 && worldPosition(cam, x, y, d).Sub(origin).Len() < t {
			return 0
		}
	}
	fx := hit[0]/cell - float32(stdmath.Round(float64(hit[0]/cell)))
	fz := hit[2]/cell - float32(stdmath.Round(float64(hit[2]/cell)))
	width := 0.02 * (1 + t*0.05)
	if abs(fx) < width || abs(fz) < width {
		return 0.5 * saturate(1-t/cam.NearFarSize[1])
	}
	return 0
}

// outlined reports whether an unselected pixel has a selected neighbour
// within radius texels in the entity mask.
func outlined(mask *soft.Texture, x, y, radius int) bool {
	if mask.Load(x, y, 0, 0)[0] > 0 {
		return false
	}
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if mask.Load(x+dx, y+dy, 0, 0)[0] > 0 {
				return true
			}
		}
	}
	return false
}

// postProcessing composites the final image. Uniform 1 holds the post
// parameters. Sampler 0 is the lighting buffer, sampler 1 the bloom result,
// sampler 2 the entity mask and sampler 3 the depth. Image 0 receives the
// display-referred colour.
func postProcessing(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	p, ok := uniform[metadata.PostUniforms](inv, 1)
	if !ok {
		return
	}
	lighting, bloom, mask, depth := inv.Sampler(0), inv.Sampler(1), inv.Sampler(2), inv.Sampler(3)
	out, _ := inv.Image(0)
	if lighting == nil || out == nil {
		return
	}
	w, h := out.Size(0)
	exposure := p.Exposure
	if exposure <= 0 {
		exposure = 1
	}
	mapped := func(x, y int) mgl32.Vec3 {
		c := rgb(lighting.Load(x, y, 0, 0))
		if p.Flags&metadata.PostBloom != 0 && bloom != nil {
			u, v := (float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h)
			c = c.Add(rgb(bloom.Sample(u, v, 0, 0)).Mul(p.Params[0]))
		}
		return ToneMap(p.ToneMapOp, c.Mul(exposure))
	}

	groupTexels(inv, w, h, func(x, y int) {
		c := mapped(x, y)
		if p.Flags&metadata.PostFXAA != 0 {
			n, s, e, wv := mapped(x, y+1), mapped(x, y-1), mapped(x+1, y), mapped(x-1, y)
			lc := luminance(c)
			ln, ls, le, lw := luminance(n), luminance(s), luminance(e), luminance(wv)
			lmax := max(lc, ln, ls, le, lw)
			lmin := min(lc, ln, ls, le, lw)
			if lmax-lmin >= max(0.0312, 0.125*lmax) {
				var blend mgl32.Vec3
				if abs(ln+ls-2*lc) >= abs(le+lw-2*lc) {
					blend = n.Add(s).Mul(0.5)
				} else {
					blend = e.Add(wv).Mul(0.5)
				}
				c = c.Add(blend).Mul(0.5)
			}
		}
		if p.Flags&metadata.PostGrid != 0 {
			g := gridLine(cam, depth, x, y, p.Params[1])
			c = c.Mul(1 - g).Add(mgl32.Vec3{0.6, 0.6, 0.6}.Mul(g))
		}
		if p.Flags&metadata.PostOutline != 0 && mask != nil && outlined(mask, x, y, max(int(p.Params[2]), 1)) {
			c = p.OutlineColour.Vec3()
		}
		out.Store(x, y, 0, 0, texel(gammaEncode(c, p.Gamma), 1))
	})
}
