package shaders

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// SHCoefficients is the number of second-order spherical harmonic terms
// stored per probe.
const SHCoefficients = 9

// Face orientation follows the usual +X, -X, +Y, -Y, +Z, -Z cube map order.
func cubeDirection(face int, u, v float32) mgl32.Vec3 {
	var d mgl32.Vec3
	switch face {
	case 0:
		d = mgl32.Vec3{1, -v, -u}
	case 1:
		d = mgl32.Vec3{-1, -v, u}
	case 2:
		d = mgl32.Vec3{u, 1, v}
	case 3:
		d = mgl32.Vec3{u, -1, -v}
	case 4:
		d = mgl32.Vec3{u, -v, 1}
	default:
		d = mgl32.Vec3{-u, -v, -1}
	}
	return d.Normalize()
}

func cubeFace(d mgl32.Vec3) (int, float32, float32) {
	ax, ay, az := abs(d[0]), abs(d[1]), abs(d[2])
	switch {
	case ax >= ay && ax >= az:
		if d[0] > 0 {
			return 0, -d[2] / ax, -d[1] / ax
		}
		return 1, d[2] / ax, -d[1] / ax
	case ay >= az:
		if d[1] > 0 {
			return 2, d[0] / ay, d[2] / ay
		}
		return 3, d[0] / ay, -d[2] / ay
	default:
		if d[2] > 0 {
			return 4, d[0] / az, -d[1] / az
		}
		return 5, -d[0] / az, -d[1] / az
	}
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// sampleCube reads a cube array layer at the direction d.
func sampleCube(t *soft.Texture, probe int, d mgl32.Vec3, mip int) mgl32.Vec3 {
	face, u, v := cubeFace(d)
	return rgb(t.Sample(u*0.5+0.5, v*0.5+0.5, probe*6+face, mip))
}

func shBasis(d mgl32.Vec3) [SHCoefficients]float32 {
	x, y, z := d[0], d[1], d[2]
	return [SHCoefficients]float32{
		0.282095,
		0.488603 * y,
		0.488603 * z,
		0.488603 * x,
		1.092548 * x * y,
		1.092548 * y * z,
		0.315392 * (3*z*z - 1),
		1.092548 * x * z,
		0.546274 * (x*x - y*y),
	}
}

// Cosine lobe convolution weights per SH band.
var shBand = [SHCoefficients]float32{
	pi,
	2 * pi / 3, 2 * pi / 3, 2 * pi / 3,
	pi / 4, pi / 4, pi / 4, pi / 4, pi / 4,
}

// EvaluateIrradiance returns the irradiance along n from convolved SH
// coefficients.
func EvaluateIrradiance(sh []mgl32.Vec4, n mgl32.Vec3) mgl32.Vec3 {
	basis := shBasis(n)
	var e mgl32.Vec3
	for i := 0; i < SHCoefficients && i < len(sh); i++ {
		e = e.Add(sh[i].Vec3().Mul(basis[i]))
	}
	return mgl32.Vec3{max(e[0], 0), max(e[1], 0), max(e[2], 0)}
}

type probeSlot struct {
	probe int
	sky   int
}

// iblSlot maps the dispatch z index (divided by perProbe) to the probe
// it computes and the atmosphere it samples.
func iblSlot(inv *soft.Invocation, perProbe int) (metadata.IBLUniforms, probeSlot, bool) {
	u, ok := uniform[metadata.IBLUniforms](inv, 1)
	if !ok {
		return u, probeSlot{}, false
	}
	z := inv.GroupID[2] / perProbe
	if z >= int(u.Count) || z >= len(u.Slots) || u.Slots[z] < 0 || u.AttachedSkys[z] < 0 {
		return u, probeSlot{}, false
	}
	return u, probeSlot{probe: int(u.Slots[z]), sky: int(u.AttachedSkys[z])}, true
}

// IBL kernels: uniform 1 lists the probes and their skies, storage 0 the
// atmosphere parameters and sampler 0 the sky view array.

// skyLutDiffuse projects the sky onto SH9 irradiance coefficients.
// Storage 1 receives SHCoefficients vectors per probe. One workgroup per
// probe.
func skyLutDiffuse(inv *soft.Invocation) {
	_, slot, ok := iblSlot(inv, 1)
	if !ok {
		return
	}
	a, ok := atmosphereParams(inv, slot.sky)
	if !ok {
		return
	}
	skyView := inv.Sampler(0)
	out := storage[mgl32.Vec4](inv, 1)
	base := slot.probe * SHCoefficients
	if base+SHCoefficients > len(out) {
		return
	}

	const thetaSteps, phiSteps = 16, 32
	var sh [SHCoefficients]mgl32.Vec3
	var weight float32
	for i := 0; i < thetaSteps; i++ {
		theta := (float64(i) + 0.5) / thetaSteps * stdmath.Pi
		for j := 0; j < phiSteps; j++ {
			phi := (float64(j) + 0.5) / phiSteps * 2 * stdmath.Pi
			d := mgl32.Vec3{
				float32(stdmath.Sin(theta) * stdmath.Cos(phi)),
				float32(stdmath.Cos(theta)),
				float32(stdmath.Sin(theta) * stdmath.Sin(phi)),
			}
			dOmega := float32(stdmath.Sin(theta))
			radiance := skyRadiance(skyView, slot.sky, a, d)
			basis := shBasis(d)
			for k := range sh {
				sh[k] = sh[k].Add(radiance.Mul(basis[k] * dOmega))
			}
			weight += dOmega
		}
	}
	norm := 4 * pi / weight
	for k := range sh {
		out[base+k] = sh[k].Mul(norm * shBand[k]).Vec4(0)
	}
}

func hammersley(i, n int) (float32, float32) {
	bits := uint32(i)
	bits = (bits << 16) | (bits >> 16)
	bits = ((bits & 0x55555555) << 1) | ((bits & 0xAAAAAAAA) >> 1)
	bits = ((bits & 0x33333333) << 2) | ((bits & 0xCCCCCCCC) >> 2)
	bits = ((bits & 0x0F0F0F0F) << 4) | ((bits & 0xF0F0F0F0) >> 4)
	bits = ((bits & 0x00FF00FF) << 8) | ((bits & 0xFF00FF00) >> 8)
	return float32(i) / float32(n), float32(bits) * 2.3283064365386963e-10
}

func importanceSampleGGX(u1, u2, roughness float32, n mgl32.Vec3) mgl32.Vec3 {
	a := roughness * roughness
	phi := 2 * pi * u1
	cosTheta := sqrt((1 - u2) / (1 + (a*a-1)*u2))
	sinTheta := sqrt(1 - cosTheta*cosTheta)
	h := mgl32.Vec3{
		sinTheta * float32(stdmath.Cos(float64(phi))),
		sinTheta * float32(stdmath.Sin(float64(phi))),
		cosTheta,
	}
	up := mgl32.Vec3{0, 0, 1}
	if abs(n[2]) > 0.999 {
		up = mgl32.Vec3{1, 0, 0}
	}
	tx := up.Cross(n).Normalize()
	ty := n.Cross(tx)
	return tx.Mul(h[0]).Add(ty.Mul(h[1])).Add(n.Mul(h[2])).Normalize()
}

// skyLutSpecular prefilters the sky into the radiance cube array. The
// image 0 mip sets the roughness; the dispatch z index covers six faces
// per probe.
func skyLutSpecular(inv *soft.Invocation) {
	u, slot, ok := iblSlot(inv, 6)
	if !ok {
		return
	}
	a, ok := atmosphereParams(inv, slot.sky)
	if !ok {
		return
	}
	skyView := inv.Sampler(0)
	out, mip := inv.Image(0)
	if out == nil {
		return
	}
	face := inv.GroupID[2] % 6
	mips := out.Desc().Mips
	roughness := float32(0)
	if mips > 1 {
		roughness = float32(mip) / float32(mips-1)
	}
	samples := max(int(u.NumSamples), 1)
	w, h := out.Size(mip)
	groupTexels(inv, w, h, func(x, y int) {
		n := cubeDirection(face, (float32(x)+0.5)/float32(w)*2-1, (float32(y)+0.5)/float32(h)*2-1)
		if roughness == 0 {
			out.Store(x, y, slot.probe*6+face, mip, texel(skyRadiance(skyView, slot.sky, a, n), 1))
			return
		}
		var sum mgl32.Vec3
		var weight float32
		for i := 0; i < samples; i++ {
			u1, u2 := hammersley(i, samples)
			hv := importanceSampleGGX(u1, u2, roughness, n)
			l := hv.Mul(2 * n.Dot(hv)).Sub(n)
			if nDotL := n.Dot(l); nDotL > 0 {
				sum = sum.Add(skyRadiance(skyView, slot.sky, a, l).Mul(nDotL))
				weight += nDotL
			}
		}
		if weight > 0 {
			sum = sum.Mul(1 / weight)
		}
		out.Store(x, y, slot.probe*6+face, mip, texel(sum, 1))
	})
}

// iblApplication adds ambient light from the active probe. Storage 0 holds
// the SH coefficients of every probe and sampler 4 the radiance cube
// array; samplers 0-3 are the geometry buffer. With AOEnabled, sampler 7
// holds the screen-space occlusion.
func iblApplication(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	u, ok := uniform[metadata.IBLUniforms](inv, 1)
	if !ok || u.ActiveProbe < 0 {
		return
	}
	coeffs := storage[mgl32.Vec4](inv, 0)
	base := int(u.ActiveProbe) * SHCoefficients
	if base+SHCoefficients > len(coeffs) {
		return
	}
	sh := coeffs[base : base+SHCoefficients]
	radiance := inv.Sampler(4)
	target, _ := inv.Image(0)
	if target == nil {
		return
	}
	var occlusion *soft.Texture
	if u.AOEnabled != 0 {
		occlusion = inv.Sampler(7)
	}
	w, h := target.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		g, ok := readGBuffer(inv, cam, x, y)
		if !ok {
			return
		}
		v := cam.Position.Vec3().Sub(g.position).Normalize()
		f0 := mgl32.Vec3{0.04, 0.04, 0.04}.Mul(1 - g.metallic).Add(g.albedo.Mul(g.metallic))
		nDotV := max(g.normal.Dot(v), 0)
		fresnel := float32(stdmath.Pow(float64(1-nDotV), 5)) * (1 - g.roughness)
		f := f0.Add(mgl32.Vec3{1, 1, 1}.Sub(f0).Mul(fresnel))

		kd := mgl32.Vec3{1, 1, 1}.Sub(f).Mul(1 - g.metallic)
		diffuse := mulComp(mulComp(kd, g.albedo), EvaluateIrradiance(sh, g.normal)).Mul(1 / pi)
		var specular mgl32.Vec3
		if radiance != nil {
			r := g.normal.Mul(2 * g.normal.Dot(v)).Sub(v)
			mip := int(g.roughness*float32(radiance.Desc().Mips-1) + 0.5)
			specular = mulComp(sampleCube(radiance, int(u.ActiveProbe), r, mip), f)
		}
		ao := g.ao
		if ao == 0 {
			ao = 1
		}
		if occlusion != nil {
			ao *= occlusion.Sample((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h), 0, 0)[0]
		}
		accumulate(target, x, y, diffuse.Add(specular).Mul(ao*u.Intensity))
	})
}
