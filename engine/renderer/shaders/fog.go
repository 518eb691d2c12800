package shaders

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// FroxelSize is the screen-space edge of a froxel in pixels.
const FroxelSize = 8

// Froxel kernels run over 8x8 blocks of one slice, the dispatch z index
// being the slice. Uniform 0 is the camera and uniform 1 the fog
// parameters.

// sliceDistance returns the view distance of a froxel slice boundary.
// Slices are distributed exponentially between near and far.
func sliceDistance(near, far float32, slice float32, slices uint32) float32 {
	t := slice / float32(slices)
	return near * float32(stdmath.Pow(float64(far/near), float64(t)))
}

// SliceForDistance inverts sliceDistance.
func SliceForDistance(near, far, dist float32, slices uint32) float32 {
	if dist <= near {
		return 0
	}
	t := stdmath.Log(float64(dist/near)) / stdmath.Log(float64(far/near))
	return float32(t) * float32(slices)
}

// froxelCenter returns the world position at the center of froxel
// (x, y, z) and its depth extent.
func froxelCenter(cam metadata.CameraUniforms, fog metadata.FogUniforms, x, y, z int) (mgl32.Vec3, float32) {
	near, far := cam.NearFarSize[0], cam.NearFarSize[1]
	gw, gh := float32(fog.GridSize[0]), float32(fog.GridSize[1])
	ndc := mgl32.Vec4{(float32(x)+0.5)/gw*2 - 1, (float32(y)+0.5)/gh*2 - 1, 1, 1}
	farPoint := unproject(cam.InvProjection, ndc)
	d0 := sliceDistance(near, far, float32(z), fog.Slices)
	d1 := sliceDistance(near, far, float32(z+1), fog.Slices)
	dist := (d0 + d1) * 0.5
	view := farPoint.Mul(dist / -farPoint[2])
	return cam.InvView.Mul4x1(view.Vec4(1)).Vec3(), d1 - d0
}

func froxelTexels(inv *soft.Invocation, t *soft.Texture, fn func(x, y, z int)) {
	w, h := t.Size(0)
	z := inv.GroupID[2]
	groupTexels(inv, w, h, func(x, y int) { fn(x, y, z) })
}

// populateFroxels accumulates the media of every fog volume overlapping a
// froxel. Storage 0 holds the volumes. Image 0 receives scattering and
// extinction, image 1 emission and phase.
func populateFroxels(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	fog, ok := uniform[metadata.FogUniforms](inv, 1)
	if !ok {
		return
	}
	volumes := storage[metadata.OBBFogVolume](inv, 0)
	count := min(int(fog.NumVolumes), len(volumes))
	scatExt, _ := inv.Image(0)
	emPhase, _ := inv.Image(1)
	if scatExt == nil || emPhase == nil {
		return
	}
	froxelTexels(inv, scatExt, func(x, y, z int) {
		p, _ := froxelCenter(cam, fog, x, y, z)
		var scattering, emission mgl32.Vec3
		var extinction, phase float32
		var n float32
		for i := 0; i < count; i++ {
			v := &volumes[i]
			local := v.InvTransform.Mul4x1(p.Vec4(1))
			if abs(local[0]) > 1 || abs(local[1]) > 1 || abs(local[2]) > 1 {
				continue
			}
			mie := v.MieScatteringPhase.Vec3()
			scattering = scattering.Add(mie)
			extinction += luminance(mie) + v.EmissionAbsorption[3]
			emission = emission.Add(v.EmissionAbsorption.Vec3())
			phase += v.MieScatteringPhase[3]
			n++
		}
		if n > 0 {
			phase /= n
		} else {
			phase = fog.MiePhase
		}
		scatExt.Store(x, y, z, 0, texel(scattering, extinction))
		emPhase.Store(x, y, z, 0, texel(emission, phase))
	})
}

func henyeyGreenstein(cosTheta, g float32) float32 {
	denom := float32(stdmath.Pow(float64(1+g*g-2*g*cosTheta), 1.5))
	return (1 - g*g) / (4 * pi * max(denom, 1e-4))
}

// lightFroxels evaluates in-scattering from the primary light. Images 0 and
// 1 are read, image 2 receives the lit froxels. Uniform 2 carries the
// cascades of the shadow map bound at sampler 4.
func lightFroxels(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	fog, ok := uniform[metadata.FogUniforms](inv, 1)
	if !ok {
		return
	}
	shadows, _ := uniform[metadata.DirectionalUniforms](inv, 2)
	scatExt, _ := inv.Image(0)
	emPhase, _ := inv.Image(1)
	out, _ := inv.Image(2)
	if scatExt == nil || emPhase == nil || out == nil {
		return
	}
	l := fog.LightDirection.Vec3()
	if l.Len() > 0 {
		l = l.Normalize()
	}
	colour := fog.LightColour.Vec3().Mul(fog.LightColour[3])
	froxelTexels(inv, out, func(x, y, z int) {
		se := scatExt.Load(x, y, z, 0)
		ep := emPhase.Load(x, y, z, 0)
		p, _ := froxelCenter(cam, fog, x, y, z)
		v := cam.Position.Vec3().Sub(p)
		if v.Len() > 0 {
			v = v.Normalize()
		}
		visibility := shadowFactor(inv, shadows, cam, p, mgl32.Vec3{}, l)
		phase := henyeyGreenstein(v.Mul(-1).Dot(l), ep[3])
		inscatter := mulComp(rgb(se), colour).Mul(phase * visibility).Add(rgb(ep))
		out.Store(x, y, z, 0, texel(inscatter, se[3]))
	})
}

// temporalResolveFroxels blends the lit froxels of image 2 with the
// history bound at sampler 0 into the history image 3. Frame zero has no
// history.
func temporalResolveFroxels(inv *soft.Invocation) {
	fog, ok := uniform[metadata.FogUniforms](inv, 1)
	if !ok {
		return
	}
	current, _ := inv.Image(2)
	history := inv.Sampler(0)
	out, _ := inv.Image(3)
	if current == nil || out == nil {
		return
	}
	blend := saturate(fog.TemporalBlend)
	froxelTexels(inv, out, func(x, y, z int) {
		c := current.Load(x, y, z, 0)
		if history == nil || fog.Frame == 0 {
			out.Store(x, y, z, 0, c)
			return
		}
		hv := history.Load(x, y, z, 0)
		var r [4]float32
		for i := range r {
			r[i] = c[i] + (hv[i]-c[i])*blend
		}
		out.Store(x, y, z, 0, r)
	})
}

// gatherFroxels integrates the resolved froxels front to back. Image 3 is
// read, image 4 receives accumulated scattering (rgb) and transmittance
// (a). Dispatched with a single z group.
func gatherFroxels(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	fog, ok := uniform[metadata.FogUniforms](inv, 1)
	if !ok {
		return
	}
	resolved, _ := inv.Image(3)
	out, _ := inv.Image(4)
	if resolved == nil || out == nil {
		return
	}
	near, far := cam.NearFarSize[0], cam.NearFarSize[1]
	w, h := out.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		var scattered mgl32.Vec3
		transmittance := float32(1)
		for z := 0; z < int(fog.Slices); z++ {
			s := resolved.Load(x, y, z, 0)
			dz := sliceDistance(near, far, float32(z+1), fog.Slices) - sliceDistance(near, far, float32(z), fog.Slices)
			ext := max(s[3], 1e-6)
			stepT := float32(stdmath.Exp(float64(-ext * dz)))
			// Energy-conserving integration of the in-scattering over the slice.
			integ := rgb(s).Mul((1 - stepT) / ext)
			scattered = scattered.Add(integ.Mul(transmittance))
			transmittance *= stepT
			out.Store(x, y, z, 0, texel(scattered, transmittance))
		}
	})
}

// applyFroxels composites the integrated fog over the lighting buffer in
// image 0 using the depth at sampler 3 and the gathered froxels at
// sampler 0.
func applyFroxels(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	fog, ok := uniform[metadata.FogUniforms](inv, 1)
	if !ok {
		return
	}
	gathered, depth := inv.Sampler(0), inv.Sampler(3)
	target, _ := inv.Image(0)
	if gathered == nil || target == nil || fog.Slices == 0 {
		return
	}
	near, far := cam.NearFarSize[0], cam.NearFarSize[1]
	w, h := target.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		dist := far
		if depth != nil {
			d := depth.Load(x, y, 0, 0)[0]
			if d < 1 {
				dist = viewDistance(cam.InvProjection, d)
			}
		}
		slice := int(SliceForDistance(near, far, dist, fog.Slices))
		slice = min(max(slice, 0), int(fog.Slices)-1)
		f := gathered.Load(x/FroxelSize, y/FroxelSize, slice, 0)
		c := target.Load(x, y, 0, 0)
		lit := rgb(c).Mul(f[3]).Add(rgb(f))
		target.Store(x, y, 0, 0, texel(lit, c[3]))
	})
}
