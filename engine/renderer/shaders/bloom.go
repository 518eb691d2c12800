package shaders

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Bloom kernels: uniform 0 holds the bloom parameters, image 0 is the
// source level and image 1 the destination level.

// thresholdCurve applies the soft-knee threshold curve
// (threshold, threshold - knee, 2 * knee, 0.25 / knee).
func thresholdCurve(c mgl32.Vec3, curve mgl32.Vec4) mgl32.Vec3 {
	br := max(c[0], c[1], c[2])
	rq := mgl32.Clamp(br-curve[1], 0, curve[2])
	rq = curve[3] * rq * rq
	return c.Mul(max(rq, br-curve[0]) / max(br, 1e-4))
}

// box4 averages the 2x2 source block under destination texel (x, y).
func box4(src *soft.Texture, mip, x, y int) [4]mgl32.Vec3 {
	return [4]mgl32.Vec3{
		rgb(src.Load(2*x, 2*y, 0, mip)),
		rgb(src.Load(2*x+1, 2*y, 0, mip)),
		rgb(src.Load(2*x, 2*y+1, 0, mip)),
		rgb(src.Load(2*x+1, 2*y+1, 0, mip)),
	}
}

// bloomDownsampleKaris thresholds the lighting buffer into the first level
// of the downsample chain, weighting samples by inverse luminance to
// suppress fireflies.
func bloomDownsampleKaris(inv *soft.Invocation) {
	params, ok := uniform[metadata.BloomUniforms](inv, 0)
	if !ok {
		return
	}
	src, srcMip := inv.Image(0)
	dst, dstMip := inv.Image(1)
	if src == nil || dst == nil {
		return
	}
	w, h := dst.Size(dstMip)
	groupTexels(inv, w, h, func(x, y int) {
		var sum mgl32.Vec3
		var weight float32
		for _, s := range box4(src, srcMip, x, y) {
			k := 1 / (1 + luminance(s))
			sum = sum.Add(s.Mul(k))
			weight += k
		}
		c := thresholdCurve(sum.Mul(1/weight), params.Curve)
		dst.Store(x, y, 0, dstMip, texel(c, 1))
	})
}

func bloomDownsample(inv *soft.Invocation) {
	src, srcMip := inv.Image(0)
	dst, dstMip := inv.Image(1)
	if src == nil || dst == nil {
		return
	}
	w, h := dst.Size(dstMip)
	groupTexels(inv, w, h, func(x, y int) {
		var sum mgl32.Vec3
		for _, s := range box4(src, srcMip, x, y) {
			sum = sum.Add(s)
		}
		dst.Store(x, y, 0, dstMip, texel(sum.Mul(0.25), 1))
	})
}

func bloomCopy(inv *soft.Invocation) {
	src, srcMip := inv.Image(0)
	dst, dstMip := inv.Image(1)
	if src == nil || dst == nil {
		return
	}
	w, h := dst.Size(dstMip)
	groupTexels(inv, w, h, func(x, y int) {
		dst.Store(x, y, 0, dstMip, src.Load(x, y, 0, srcMip))
	})
}

// bloomUpsampleBlend adds a tent-filtered sample of the coarser upsample
// level at sampler 0 (level params.Mip) to the matching downsample level.
func bloomUpsampleBlend(inv *soft.Invocation) {
	params, ok := uniform[metadata.BloomUniforms](inv, 0)
	if !ok {
		return
	}
	coarse := inv.Sampler(0)
	down, downMip := inv.Image(0)
	dst, dstMip := inv.Image(1)
	if coarse == nil || down == nil || dst == nil {
		return
	}
	lod := int(params.Mip)
	cw, ch := coarse.Size(lod)
	w, h := dst.Size(dstMip)
	tent := [3]float32{1, 2, 1}
	groupTexels(inv, w, h, func(x, y int) {
		u := (float32(x) + 0.5) / float32(w)
		v := (float32(y) + 0.5) / float32(h)
		du, dv := params.Radius/float32(cw), params.Radius/float32(ch)
		var blur mgl32.Vec3
		for j := -1; j <= 1; j++ {
			for i := -1; i <= 1; i++ {
				s := coarse.Sample(u+float32(i)*du, v+float32(j)*dv, 0, lod)
				blur = blur.Add(rgb(s).Mul(tent[i+1] * tent[j+1] / 16))
			}
		}
		base := rgb(down.Load(x, y, 0, downMip))
		dst.Store(x, y, 0, dstMip, texel(base.Add(blur), 1))
	})
}
