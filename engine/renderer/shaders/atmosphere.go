package shaders

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Look-up table sizes of one atmosphere slot.
const (
	TransmittanceWidth  = 256
	TransmittanceHeight = 64
	MultiScatSize       = 32
	SkyViewWidth        = 256
	SkyViewHeight       = 128
)

const (
	transmittanceSteps = 40
	multiScatSteps     = 16
	multiScatDirs      = 4
	skyViewSteps       = 30
	sunAngularRadius   = 0.00465
)

type medium struct {
	rayleigh   mgl32.Vec3
	mie        mgl32.Vec3
	extinction mgl32.Vec3
}

func sampleMedium(a *metadata.Atmosphere, r float32) medium {
	heightKm := (r - a.PlanetAlbedoRadius[3]) * 1000
	dr := float32(stdmath.Exp(float64(-heightKm / a.RayleighScat[3])))
	dm := float32(stdmath.Exp(float64(-heightKm / a.MieScat[3])))
	ozone := max(0, 1-float32(stdmath.Abs(float64(heightKm-25)))/15) * a.OzoneAbs[3]

	var m medium
	m.rayleigh = a.RayleighScat.Vec3().Mul(dr)
	m.mie = a.MieScat.Vec3().Mul(dm)
	m.extinction = m.rayleigh.Add(m.mie).
		Add(a.RayleighAbs.Vec3().Mul(dr)).
		Add(a.MieAbs.Vec3().Mul(dm)).
		Add(a.OzoneAbs.Vec3().Mul(ozone))
	return m
}

// raySphere returns the distance along rd from ro to the far intersection
// with a sphere at the origin, or -1.
func raySphere(ro, rd mgl32.Vec3, radius float32) float32 {
	b := ro.Dot(rd)
	c := ro.Dot(ro) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return -1
	}
	s := sqrt(disc)
	if t := -b - s; t > 0 {
		return t
	}
	if t := -b + s; t > 0 {
		return t
	}
	return -1
}

// marchDistance is the length of the ray inside the atmosphere, stopping
// at the ground.
func marchDistance(a *metadata.Atmosphere, ro, rd mgl32.Vec3) float32 {
	ground := raySphere(ro, rd, a.PlanetAlbedoRadius[3])
	top := raySphere(ro, rd, a.SunDirAtmRadius[3])
	if ground > 0 {
		return ground
	}
	return max(top, 0)
}

func transmittanceUV(a *metadata.Atmosphere, r, mu float32) (float32, float32) {
	rp, ra := a.PlanetAlbedoRadius[3], a.SunDirAtmRadius[3]
	return saturate(mu*0.5 + 0.5), saturate((r - rp) / (ra - rp))
}

func sampleTransmittance(lut *soft.Texture, layer int, a *metadata.Atmosphere, r, mu float32) mgl32.Vec3 {
	if lut == nil {
		return mgl32.Vec3{1, 1, 1}
	}
	u, v := transmittanceUV(a, r, mu)
	return rgb(lut.Sample(u, v, layer, 0))
}

func sampleMultiScat(lut *soft.Texture, layer int, a *metadata.Atmosphere, r, mu float32) mgl32.Vec3 {
	if lut == nil {
		return mgl32.Vec3{}
	}
	u, v := transmittanceUV(a, r, mu)
	return rgb(lut.Sample(u, v, layer, 0))
}

func rayleighPhase(cosTheta float32) float32 {
	return 3 / (16 * pi) * (1 + cosTheta*cosTheta)
}

// Cornette-Shanks phase with g = 0.8.
func miePhase(cosTheta float32) float32 {
	const g = 0.8
	k := 3 / (8 * pi) * (1 - g*g) / (2 + g*g)
	denom := float32(stdmath.Pow(float64(1+g*g-2*g*cosTheta), 1.5))
	return k * (1 + cosTheta*cosTheta) / denom
}

// slotLayer maps a dispatch z index to the atmosphere slot it computes.
func slotLayer(inv *soft.Invocation) (int, bool) {
	u, ok := uniform[metadata.AtmosphereUniforms](inv, 1)
	if !ok {
		return 0, false
	}
	z := inv.GroupID[2]
	if z >= int(u.Count) || z >= len(u.Slots) || u.Slots[z] < 0 {
		return 0, false
	}
	return int(u.Slots[z]), true
}

func atmosphereParams(inv *soft.Invocation, slot int) (*metadata.Atmosphere, bool) {
	params := storage[metadata.Atmosphere](inv, 0)
	if slot < 0 || slot >= len(params) {
		return nil, false
	}
	return &params[slot], true
}

// Atmosphere LUT kernels. Uniform 1 lists the slots to compute, indexed by
// the dispatch z coordinate; storage 0 holds the parameters of every slot.

// hillaireTransmittance integrates optical depth to the top of the
// atmosphere. Image 0 is the transmittance array.
func hillaireTransmittance(inv *soft.Invocation) {
	slot, ok := slotLayer(inv)
	if !ok {
		return
	}
	a, ok := atmosphereParams(inv, slot)
	if !ok {
		return
	}
	out, mip := inv.Image(0)
	if out == nil {
		return
	}
	w, h := out.Size(mip)
	rp, ra := a.PlanetAlbedoRadius[3], a.SunDirAtmRadius[3]
	groupTexels(inv, w, h, func(x, y int) {
		mu := (float32(x)+0.5)/float32(w)*2 - 1
		r := rp + (float32(y)+0.5)/float32(h)*(ra-rp)
		ro := mgl32.Vec3{0, r, 0}
		rd := mgl32.Vec3{sqrt(max(0, 1-mu*mu)), mu, 0}
		top := raySphere(ro, rd, ra)
		if top <= 0 {
			out.Store(x, y, slot, mip, [4]float32{1, 1, 1, 1})
			return
		}
		dt := top / transmittanceSteps
		var depth mgl32.Vec3
		for i := 0; i < transmittanceSteps; i++ {
			p := ro.Add(rd.Mul((float32(i) + 0.5) * dt))
			depth = depth.Add(sampleMedium(a, p.Len()).extinction.Mul(dt))
		}
		out.Store(x, y, slot, mip, texel(exp(depth.Mul(-1)), 1))
	})
}

// hillaireMultiscat approximates the isotropic multiple scattering
// contribution. Sampler 0 is the transmittance array, image 0 the output.
func hillaireMultiscat(inv *soft.Invocation) {
	slot, ok := slotLayer(inv)
	if !ok {
		return
	}
	a, ok := atmosphereParams(inv, slot)
	if !ok {
		return
	}
	trans := inv.Sampler(0)
	out, mip := inv.Image(0)
	if out == nil {
		return
	}
	w, h := out.Size(mip)
	rp, ra := a.PlanetAlbedoRadius[3], a.SunDirAtmRadius[3]
	groupTexels(inv, w, h, func(x, y int) {
		sunMu := (float32(x)+0.5)/float32(w)*2 - 1
		r := rp + (float32(y)+0.5)/float32(h)*(ra-rp)
		ro := mgl32.Vec3{0, r, 0}
		sun := mgl32.Vec3{sqrt(max(0, 1-sunMu*sunMu)), sunMu, 0}

		var l2, fms mgl32.Vec3
		const n = multiScatDirs * multiScatDirs
		isotropic := 1 / (4 * pi)
		for i := 0; i < multiScatDirs; i++ {
			for j := 0; j < multiScatDirs; j++ {
				theta := stdmath.Acos(1 - 2*(float64(i)+0.5)/multiScatDirs)
				phi := 2 * stdmath.Pi * (float64(j) + 0.5) / multiScatDirs
				rd := mgl32.Vec3{
					float32(stdmath.Sin(theta) * stdmath.Cos(phi)),
					float32(stdmath.Cos(theta)),
					float32(stdmath.Sin(theta) * stdmath.Sin(phi)),
				}
				dist := marchDistance(a, ro, rd)
				if dist <= 0 {
					continue
				}
				dt := dist / multiScatSteps
				t := mgl32.Vec3{1, 1, 1}
				for s := 0; s < multiScatSteps; s++ {
					p := ro.Add(rd.Mul((float32(s) + 0.5) * dt))
					pr := p.Len()
					m := sampleMedium(a, pr)
					scat := m.rayleigh.Add(m.mie)
					sunT := sampleTransmittance(trans, slot, a, pr, p.Mul(1/pr).Dot(sun))
					l2 = l2.Add(mulComp(mulComp(t, scat), sunT).Mul(isotropic * dt))
					fms = fms.Add(mulComp(t, scat).Mul(dt))
					t = mulComp(t, exp(m.extinction.Mul(-dt)))
				}
			}
		}
		l2 = l2.Mul(1.0 / n)
		fms = fms.Mul(1.0 / n)
		var psi mgl32.Vec3
		for c := 0; c < 3; c++ {
			psi[c] = l2[c] / max(1-fms[c], 1e-3)
		}
		out.Store(x, y, slot, mip, texel(psi, 1))
	})
}

// localSun returns the sun direction in the frame where the viewer's up is
// +Y and the sun lies in the XY plane.
func localSun(a *metadata.Atmosphere) (mgl32.Vec3, float32) {
	up := a.ViewPos.Vec3()
	if up.Len() == 0 {
		up = mgl32.Vec3{0, 1, 0}
	}
	up = up.Normalize()
	sun := a.SunDirAtmRadius.Vec3()
	if sun.Len() == 0 {
		sun = up
	}
	mu := mgl32.Clamp(sun.Normalize().Dot(up), -1, 1)
	return mgl32.Vec3{sqrt(1 - mu*mu), mu, 0}, mu
}

// integrateSky ray marches the in-scattered luminance along rd in the
// viewer's local frame.
func integrateSky(a *metadata.Atmosphere, trans, multi *soft.Texture, slot int, rd mgl32.Vec3) mgl32.Vec3 {
	r := max(a.ViewPos.Vec3().Len(), a.PlanetAlbedoRadius[3]+1e-4)
	ro := mgl32.Vec3{0, r, 0}
	sun, _ := localSun(a)
	dist := marchDistance(a, ro, rd)
	if dist <= 0 {
		return mgl32.Vec3{}
	}
	illum := a.LightColourIntensity.Vec3().Mul(a.LightColourIntensity[3])
	cosTheta := rd.Dot(sun)
	pr, pm := rayleighPhase(cosTheta), miePhase(cosTheta)

	dt := dist / skyViewSteps
	t := mgl32.Vec3{1, 1, 1}
	var lum mgl32.Vec3
	for s := 0; s < skyViewSteps; s++ {
		p := ro.Add(rd.Mul((float32(s) + 0.5) * dt))
		prLen := p.Len()
		m := sampleMedium(a, prLen)
		sunMu := p.Mul(1 / prLen).Dot(sun)
		sunT := sampleTransmittance(trans, slot, a, prLen, sunMu)
		ms := sampleMultiScat(multi, slot, a, prLen, sunMu)
		single := m.rayleigh.Mul(pr).Add(m.mie.Mul(pm))
		scattered := mulComp(single, sunT).Add(mulComp(m.rayleigh.Add(m.mie), ms))
		stepT := exp(m.extinction.Mul(-dt))
		lum = lum.Add(mulComp(mulComp(t, scattered), illum).Mul(dt))
		t = mulComp(t, stepT)
	}
	return lum
}

// skyViewDirection maps a sky view LUT coordinate to a local direction.
// Elevation is compressed toward the horizon at v = 0.5.
func skyViewDirection(u, v float32) mgl32.Vec3 {
	phi := u * 2 * pi
	l := 2*v - 1
	elevation := l * l * pi / 2
	if l < 0 {
		elevation = -elevation
	}
	ce, se := float32(stdmath.Cos(float64(elevation))), float32(stdmath.Sin(float64(elevation)))
	return mgl32.Vec3{
		ce * float32(stdmath.Cos(float64(phi))),
		se,
		ce * float32(stdmath.Sin(float64(phi))),
	}
}

func skyViewUV(dir mgl32.Vec3) (float32, float32) {
	elevation := float32(stdmath.Asin(float64(mgl32.Clamp(dir[1], -1, 1))))
	phi := float32(stdmath.Atan2(float64(dir[2]), float64(dir[0])))
	if phi < 0 {
		phi += 2 * pi
	}
	l := sqrt(float32(stdmath.Abs(float64(elevation))) / (pi / 2))
	if elevation < 0 {
		l = -l
	}
	return phi / (2 * pi), 0.5 + 0.5*l
}

// toLocal rotates a world direction into the frame integrateSky uses: the
// sun's horizontal direction becomes +X.
func toLocal(a *metadata.Atmosphere, dir mgl32.Vec3) mgl32.Vec3 {
	sun := a.SunDirAtmRadius.Vec3()
	horiz := mgl32.Vec3{sun[0], 0, sun[2]}
	if horiz.Len() < 1e-5 {
		return dir
	}
	horiz = horiz.Normalize()
	side := mgl32.Vec3{0, 1, 0}.Cross(horiz)
	return mgl32.Vec3{dir.Dot(horiz), dir[1], dir.Dot(side)}
}

// skyRadiance reads the sky luminance seen along a world direction from the
// sky view LUT of slot.
func skyRadiance(skyView *soft.Texture, slot int, a *metadata.Atmosphere, dir mgl32.Vec3) mgl32.Vec3 {
	if skyView == nil {
		return mgl32.Vec3{}
	}
	u, v := skyViewUV(toLocal(a, dir))
	return rgb(skyView.Sample(u, v, slot, 0))
}

// hillaireSkyview fills the sky view LUT. Samplers 0 and 1 hold the
// transmittance and multiple scattering arrays.
func hillaireSkyview(inv *soft.Invocation) {
	slot, ok := slotLayer(inv)
	if !ok {
		return
	}
	a, ok := atmosphereParams(inv, slot)
	if !ok {
		return
	}
	trans, multi := inv.Sampler(0), inv.Sampler(1)
	out, mip := inv.Image(0)
	if out == nil {
		return
	}
	w, h := out.Size(mip)
	groupTexels(inv, w, h, func(x, y int) {
		dir := skyViewDirection((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))
		out.Store(x, y, slot, mip, texel(integrateSky(a, trans, multi, slot, dir), 1))
	})
}

// skyApply writes the active sky into pixels without geometry. Uniform 1
// names the active slot in Slots[0]; samplers 0-2 are the sky view,
// transmittance and multiple scattering arrays and sampler 3 the depth.
func skyApply(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	u, ok := uniform[metadata.AtmosphereUniforms](inv, 1)
	if !ok || u.Count == 0 {
		return
	}
	slot := int(u.Slots[0])
	a, ok := atmosphereParams(inv, slot)
	if !ok {
		return
	}
	skyView, trans, multi, depth := inv.Sampler(0), inv.Sampler(1), inv.Sampler(2), inv.Sampler(3)
	target, _ := inv.Image(0)
	if target == nil {
		return
	}
	sunDir := a.SunDirAtmRadius.Vec3()
	if sunDir.Len() > 0 {
		sunDir = sunDir.Normalize()
	}
	illum := a.LightColourIntensity.Vec3().Mul(a.LightColourIntensity[3])
	r := a.ViewPos.Vec3().Len()
	cosSun := float32(stdmath.Cos(sunAngularRadius))

	w, h := target.Size(0)
	groupTexels(inv, w, h, func(x, y int) {
		if depth != nil && depth.Load(x, y, 0, 0)[0] < 1 {
			return
		}
		dir := viewDirection(cam, x, y)
		var sky mgl32.Vec3
		if u.Fast != 0 {
			sky = skyRadiance(skyView, slot, a, dir)
		} else {
			sky = integrateSky(a, trans, multi, slot, toLocal(a, dir))
		}
		if dir.Dot(sunDir) > cosSun && raySphere(mgl32.Vec3{0, r, 0}, dir, a.PlanetAlbedoRadius[3]) < 0 {
			sky = sky.Add(mulComp(sampleTransmittance(trans, slot, a, r, dir[1]), illum))
		}
		target.Store(x, y, 0, 0, texel(sky, 1))
	})
}
