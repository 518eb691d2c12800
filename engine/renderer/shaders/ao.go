package shaders

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	aoDirections = 4
	aoSteps      = 4
	aoBias       = 0.1
)

// Gaussian weights of the separable blur, centre first.
var aoBlurWeights = [4]float32{0.324, 0.232, 0.0855, 0.0205}

// copyDepthHiZ copies the depth attachment at sampler 0 into the level of
// the depth pyramid bound at image slot 0.
func copyDepthHiZ(inv *soft.Invocation) {
	depth := inv.Sampler(0)
	out, mip := inv.Image(0)
	if depth == nil || out == nil {
		return
	}
	w, h := out.Size(mip)
	groupTexels(inv, w, h, func(x, y int) {
		out.Store(x, y, 0, mip, [4]float32{depth.Load(x, y, 0, 0)[0]})
	})
}

// generateHiZ writes the farthest depth of each 2x2 block of the level at
// image slot 1 into the level at image slot 0. The last row and column of
// an odd sized source fold into their neighbours.
func generateHiZ(inv *soft.Invocation) {
	dst, mip := inv.Image(0)
	src, srcMip := inv.Image(1)
	if dst == nil || src == nil {
		return
	}
	w, h := dst.Size(mip)
	sw, sh := src.Size(srcMip)
	groupTexels(inv, w, h, func(x, y int) {
		x1, y1 := 2*x+1, 2*y+1
		if x == w-1 && sw&1 == 1 {
			x1 = sw - 1
		}
		if y == h-1 && sh&1 == 1 {
			y1 = sh - 1
		}
		var d float32
		for sy := 2 * y; sy <= y1; sy++ {
			for sx := 2 * x; sx <= x1; sx++ {
				d = max(d, src.Load(sx, sy, 0, srcMip)[0])
			}
		}
		dst.Store(x, y, 0, mip, [4]float32{d})
	})
}

// viewPosition reconstructs the view-space position at normalized screen
// coordinates (u, v) from window depth.
func viewPosition(cam metadata.CameraUniforms, u, v, depth float32) mgl32.Vec3 {
	p := cam.InvProjection.Mul4x1(mgl32.Vec4{u*2 - 1, v*2 - 1, depth*2 - 1, 1})
	return p.Vec3().Mul(1 / p[3])
}

// interleavedGradientNoise is a per-pixel value in [0, 1) used to rotate
// the sampling directions.
func interleavedGradientNoise(x, y int) float32 {
	f := 52.9829189 * stdmath.Mod(0.06711056*float64(x)+0.00583715*float64(y), 1)
	return float32(f - stdmath.Floor(f))
}

// screenSpaceHBAO estimates ambient occlusion at half resolution. Sampler 0
// is the depth pyramid, sampler 1 the geometry buffer normals, uniform 1 the
// AO parameters. Image 0 receives occlusion (r) and view depth (g).
func screenSpaceHBAO(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	params, ok := uniform[metadata.AOUniforms](inv, 1)
	hiz := inv.Sampler(0)
	out, mip := inv.Image(0)
	if !ok || hiz == nil || out == nil {
		return
	}
	normals := inv.Sampler(1)

	w, h := out.Size(mip)
	level := 0
	if hiz.Desc().Mips > 1 {
		level = 1
	}
	hw, hh := hiz.Size(level)
	depthAt := func(u, v float32) float32 {
		return hiz.Load(int(u*float32(hw)), int(v*float32(hh)), 0, level)[0]
	}
	radius := params.Params[3]
	multiplier, exponent := params.Params[1], float64(params.Params[2])

	groupTexels(inv, w, h, func(x, y int) {
		fu, fv := (float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h)
		d := depthAt(fu, fv)
		if d >= 1 {
			out.Store(x, y, 0, mip, [4]float32{1, cam.NearFarSize[1]})
			return
		}
		p := viewPosition(cam, fu, fv, d)
		viewDepth := -p.Z()

		var n mgl32.Vec3
		if normals != nil {
			n = cam.View.Mul4x1(rgb(normals.Sample(fu, fv, 0, 0)).Vec4(0)).Vec3()
		}
		if n.Len() == 0 {
			n = p.Mul(-1)
		}
		n = n.Normalize()

		radiusPx := params.Params[0] / max(viewDepth, 1e-4)
		if radiusPx < 1 || radius <= 0 {
			out.Store(x, y, 0, mip, [4]float32{1, viewDepth})
			return
		}
		step := radiusPx / aoSteps
		jitter := interleavedGradientNoise(x, y) * 2 * pi / aoDirections

		var occlusion float32
		for i := 0; i < aoDirections; i++ {
			angle := float64(jitter + float32(i)*2*pi/aoDirections)
			dx, dy := float32(stdmath.Cos(angle)), float32(stdmath.Sin(angle))
			for s := 1; s <= aoSteps; s++ {
				sx := float32(x) + 0.5 + dx*step*float32(s)
				sy := float32(y) + 0.5 + dy*step*float32(s)
				if sx < 0 || sy < 0 || sx >= float32(w) || sy >= float32(h) {
					continue
				}
				su, sv := sx/float32(w), sy/float32(h)
				sd := depthAt(su, sv)
				if sd >= 1 {
					continue
				}
				v := viewPosition(cam, su, sv, sd).Sub(p)
				dist2 := v.Dot(v)
				if dist2 < 1e-8 {
					continue
				}
				falloff := saturate(1 - dist2/(radius*radius))
				occlusion += max(n.Dot(v)/sqrt(dist2)-aoBias, 0) * falloff
			}
		}
		ao := saturate(1 - multiplier*occlusion/(aoDirections*aoSteps))
		ao = float32(stdmath.Pow(float64(ao), exponent))
		out.Store(x, y, 0, mip, [4]float32{ao, viewDepth})
	})
}

func depthWeight(centre, sample float32) float32 {
	scale := max(centre*0.05, 1e-4)
	return float32(stdmath.Exp(-float64(abs(centre-sample) / scale)))
}

// screenSpaceHBAOBlur blurs the occlusion at image slot 0 into image slot
// 1 along BlurDirection, weighting taps by their view depth difference.
func screenSpaceHBAOBlur(inv *soft.Invocation) {
	params, ok := uniform[metadata.AOUniforms](inv, 1)
	src, srcMip := inv.Image(0)
	dst, dstMip := inv.Image(1)
	if !ok || src == nil || dst == nil {
		return
	}
	w, h := dst.Size(dstMip)
	dx, dy := int(params.BlurDirection[0]), int(params.BlurDirection[1])
	groupTexels(inv, w, h, func(x, y int) {
		c := src.Load(x, y, 0, srcMip)
		sum, total := c[0]*aoBlurWeights[0], aoBlurWeights[0]
		for i := 1; i < len(aoBlurWeights); i++ {
			for _, sign := range [2]int{-1, 1} {
				sx, sy := x+sign*i*dx, y+sign*i*dy
				if sx < 0 || sy < 0 || sx >= w || sy >= h {
					continue
				}
				s := src.Load(sx, sy, 0, srcMip)
				weight := aoBlurWeights[i] * depthWeight(c[1], s[1])
				sum += s[0] * weight
				total += weight
			}
		}
		dst.Store(x, y, 0, dstMip, [4]float32{sum / total, c[1]})
	})
}
