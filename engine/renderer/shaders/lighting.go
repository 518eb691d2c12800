package shaders

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Lighting kernels run over 8x8 pixel blocks. Bindings: uniform 0 camera,
// samplers 0-3 geometry buffer, image 0 the lighting buffer (read-write).

// shade evaluates a GGX specular lobe plus Lambert diffuse for light
// arriving along l (pointing toward the light).
func shade(g gbufferTexel, v, l, radiance mgl32.Vec3) mgl32.Vec3 {
	nDotL := g.normal.Dot(l)
	if nDotL <= 0 {
		return mgl32.Vec3{}
	}
	h := v.Add(l)
	if h.Len() == 0 {
		return mgl32.Vec3{}
	}
	h = h.Normalize()
	nDotV := max(g.normal.Dot(v), 1e-4)
	nDotH := max(g.normal.Dot(h), 0)
	vDotH := max(v.Dot(h), 0)

	a := max(g.roughness*g.roughness, 1e-3)
	a2 := a * a
	denom := nDotH*nDotH*(a2-1) + 1
	distribution := a2 / (pi * denom * denom)
	k := (g.roughness + 1) * (g.roughness + 1) / 8
	geometry := nDotV / (nDotV*(1-k) + k) * nDotL / (nDotL*(1-k) + k)

	f0 := mgl32.Vec3{0.04, 0.04, 0.04}.Mul(1 - g.metallic).Add(g.albedo.Mul(g.metallic))
	fresnel := float32(stdmath.Pow(float64(1-vDotH), 5))
	f := f0.Add(mgl32.Vec3{1, 1, 1}.Sub(f0).Mul(fresnel))

	specular := f.Mul(distribution * geometry / (4*nDotV*nDotL + 1e-4))
	kd := mgl32.Vec3{1, 1, 1}.Sub(f).Mul(1 - g.metallic)
	diffuse := mulComp(kd, g.albedo).Mul(1 / pi)
	return mulComp(diffuse.Add(specular), radiance).Mul(nDotL)
}

// Windowed inverse-square falloff reaching zero at radius.
func attenuation(dist, radius float32) float32 {
	if radius <= 0 || dist >= radius {
		return 0
	}
	r := dist / radius
	window := saturate(1 - r*r*r*r)
	return window * window / (dist*dist + 1)
}

// shadowFactor returns the lit fraction of a world position for the shadow
// map bound at sampler 4.
func shadowFactor(inv *soft.Invocation, u metadata.DirectionalUniforms, cam metadata.CameraUniforms, p, n, l mgl32.Vec3) float32 {
	shadowMap := inv.Sampler(4)
	if shadowMap == nil || u.NumCascades == 0 {
		return 1
	}
	viewDepth := -cam.View.Mul4x1(p.Vec4(1))[2]
	near, far := cam.NearFarSize[0], cam.NearFarSize[1]
	cascade := int(u.NumCascades) - 1
	for i := 0; i < int(u.NumCascades); i++ {
		if viewDepth <= near+u.CascadeSplits[i]*(far-near) {
			cascade = i
			break
		}
	}
	biased := p.Add(n.Mul(u.MinMaxBias[2]))
	clip := u.CascadeVP[cascade].Mul4x1(biased.Vec4(1))
	ndc := clip.Vec3().Mul(1 / clip[3])
	uv := mgl32.Vec2{ndc[0]*0.5 + 0.5, ndc[1]*0.5 + 0.5}
	if uv[0] < 0 || uv[0] > 1 || uv[1] < 0 || uv[1] > 1 {
		return 1
	}
	depth := ndc[2]*0.5 + 0.5
	bias := max(u.MinMaxBias[1]*(1-n.Dot(l)), u.MinMaxBias[0])

	w, h := shadowMap.Size(0)
	cx, cy := int(uv[0]*float32(w)), int(uv[1]*float32(h))
	radius := int(max(u.PCFRadius, 0))
	var lit, taps float32
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if depth-bias <= shadowMap.Load(cx+dx, cy+dy, cascade, 0)[0] {
				lit++
			}
			taps++
		}
	}
	return lit / taps
}

// directionalEvaluation adds every directional light. Uniform 1 holds the
// light count and cascade data, storage 0 the lights.
func directionalEvaluation(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	u, ok := uniform[metadata.DirectionalUniforms](inv, 1)
	if !ok {
		return
	}
	lights := storage[metadata.DirectionalLight](inv, 0)
	target, _ := inv.Image(0)
	if target == nil {
		return
	}
	count := min(int(u.NumLights), len(lights))
	w, h := target.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		g, ok := readGBuffer(inv, cam, x, y)
		if !ok {
			return
		}
		v := cam.Position.Vec3().Sub(g.position).Normalize()
		var total mgl32.Vec3
		for i := 0; i < count; i++ {
			l := lights[i].Direction().Normalize()
			radiance := lights[i].ColourIntensity.Vec3().Mul(lights[i].ColourIntensity[3])
			c := shade(g, v, l, radiance)
			if int32(i) == u.ShadowedLight {
				c = c.Mul(shadowFactor(inv, u, cam, g.position, g.normal, l))
			}
			total = total.Add(c)
		}
		accumulate(target, x, y, total)
	})
}

// tileList returns the light indices the culling pass stored for the tile
// containing pixel (x, y).
func tileList(lists []int32, params metadata.CullingUniforms, listCap, x, y int) []int32 {
	size := int(params.TileSize)
	if size == 0 {
		return nil
	}
	idx := (y/size)*int(params.TilesX) + x/size
	stride := listCap + 1
	if (idx+1)*stride > len(lists) {
		return nil
	}
	n := int(lists[idx*stride])
	return lists[idx*stride+1 : idx*stride+1+min(n, listCap)]
}

// Culled lighting: uniform 1 culling parameters, storage 0 lights,
// storage 1 the tile lists of the same light type.

func deferredPointLight(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	lights := storage[metadata.PointLight](inv, 0)
	lists := storage[int32](inv, 1)
	target, _ := inv.Image(0)
	if target == nil {
		return
	}
	w, h := target.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		g, ok := readGBuffer(inv, cam, x, y)
		if !ok {
			return
		}
		v := cam.Position.Vec3().Sub(g.position).Normalize()
		var total mgl32.Vec3
		for _, i := range tileList(lists, params, int(params.MaxPerTile[0]), x, y) {
			if int(i) >= len(lights) {
				continue
			}
			light := &lights[i]
			toLight := light.PositionRadius.Vec3().Sub(g.position)
			dist := toLight.Len()
			att := attenuation(dist, light.PositionRadius[3])
			if att == 0 {
				continue
			}
			radiance := light.ColourIntensity.Vec3().Mul(light.ColourIntensity[3] * att)
			total = total.Add(shade(g, v, toLight.Mul(1/dist), radiance))
		}
		accumulate(target, x, y, total)
	})
}

func smoothstep(e0, e1, x float32) float32 {
	if e0 == e1 {
		if x < e0 {
			return 0
		}
		return 1
	}
	t := saturate((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

func deferredSpotLight(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	lights := storage[metadata.SpotLight](inv, 0)
	lists := storage[int32](inv, 1)
	target, _ := inv.Image(0)
	if target == nil {
		return
	}
	w, h := target.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		g, ok := readGBuffer(inv, cam, x, y)
		if !ok {
			return
		}
		v := cam.Position.Vec3().Sub(g.position).Normalize()
		var total mgl32.Vec3
		for _, i := range tileList(lists, params, int(params.MaxPerTile[1]), x, y) {
			if int(i) >= len(lights) {
				continue
			}
			light := &lights[i]
			toLight := light.PositionRange.Vec3().Sub(g.position)
			dist := toLight.Len()
			att := attenuation(dist, light.PositionRange[3])
			if att == 0 {
				continue
			}
			l := toLight.Mul(1 / dist)
			theta := l.Dot(light.Direction.Vec3().Mul(-1))
			cone := smoothstep(light.CutOffs[1], light.CutOffs[0], theta)
			if cone == 0 {
				continue
			}
			radiance := light.ColourIntensity.Vec3().Mul(light.ColourIntensity[3] * att * cone)
			total = total.Add(shade(g, v, l, radiance))
		}
		accumulate(target, x, y, total)
	})
}

// closestOnRect clamps p onto the rect spanned by the first three corners.
func closestOnRect(points [4]mgl32.Vec4, p mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	origin := points[0].Vec3()
	ex := points[1].Vec3().Sub(origin)
	ey := points[3].Vec3().Sub(origin)
	normal := ex.Cross(ey)
	if normal.Len() > 0 {
		normal = normal.Normalize()
	}
	d := p.Sub(origin)
	var s, t float32
	if lx := ex.Dot(ex); lx > 0 {
		s = saturate(d.Dot(ex) / lx)
	}
	if ly := ey.Dot(ey); ly > 0 {
		t = saturate(d.Dot(ey) / ly)
	}
	return origin.Add(ex.Mul(s)).Add(ey.Mul(t)), normal
}

// rectAreaLight shades with the closest point on each rect as a
// representative point light scaled by the rect's solid angle.
func rectAreaLight(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	lights := storage[metadata.RectAreaLight](inv, 0)
	lists := storage[int32](inv, 1)
	target, _ := inv.Image(0)
	if target == nil {
		return
	}
	w, h := target.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		g, ok := readGBuffer(inv, cam, x, y)
		if !ok {
			return
		}
		v := cam.Position.Vec3().Sub(g.position).Normalize()
		var total mgl32.Vec3
		for _, i := range tileList(lists, params, int(params.MaxPerTile[2]), x, y) {
			if int(i) >= len(lights) {
				continue
			}
			light := &lights[i]
			q, normal := closestOnRect(light.Points, g.position)
			toLight := q.Sub(g.position)
			dist := toLight.Len()
			if dist == 0 {
				continue
			}
			l := toLight.Mul(1 / dist)
			facing := -normal.Dot(l)
			if light.Points[0][3] > 0 {
				facing = float32(stdmath.Abs(float64(facing)))
			}
			if facing <= 0 {
				continue
			}
			area := light.Points[1].Vec3().Sub(light.Points[0].Vec3()).Cross(light.Points[3].Vec3().Sub(light.Points[0].Vec3())).Len()
			att := attenuation(dist, light.Points[1][3]) * area * facing
			radiance := light.ColourIntensity.Vec3().Mul(light.ColourIntensity[3] * att)
			total = total.Add(shade(g, v, l, radiance))
		}
		accumulate(target, x, y, total)
	})
}
