package metadata

import (
	stdmath "math"

	"github.com/spaghettifunk/lumen/engine/math"
)

// The shading primitives below are uploaded to the device as they are, so
// every field is a 16-byte vector or matrix.

/** @brief A directional light. Its direction points toward the light. */
type DirectionalLight struct {
	/** @brief Colour (x, y, z) and intensity (w). */
	ColourIntensity math.Vec4
	/** @brief Direction toward the light (x, y, z) and angular disk size (w). */
	DirectionSize math.Vec4
}

func NewDirectionalLight(colour math.Vec3, intensity float32, direction math.Vec3, size float32) DirectionalLight {
	return DirectionalLight{
		ColourIntensity: colour.Vec4(intensity),
		DirectionSize:   direction.Normalize().Vec4(size),
	}
}

func (l DirectionalLight) Direction() math.Vec3 {
	return l.DirectionSize.Vec3()
}

/** @brief A point light; the position is taken from the submit transform. */
type PointLight struct {
	/** @brief World position (x, y, z) and radius of influence (w). */
	PositionRadius math.Vec4
	/** @brief Colour (x, y, z) and intensity (w). */
	ColourIntensity math.Vec4
}

func NewPointLight(colour math.Vec3, intensity, radius float32) PointLight {
	return PointLight{
		PositionRadius:  math.Vec4{0, 0, 0, radius},
		ColourIntensity: colour.Vec4(intensity),
	}
}

/** @brief A spot light pointing down its local -Y axis. */
type SpotLight struct {
	/** @brief World position (x, y, z) and range (w). */
	PositionRange math.Vec4
	/** @brief World direction (x, y, z). */
	Direction math.Vec4
	/** @brief Cosines of the inner (x) and outer (y) cone half-angles. */
	CutOffs math.Vec4
	/** @brief Colour (x, y, z) and intensity (w). */
	ColourIntensity math.Vec4
	/** @brief Bounding sphere of the cone (center xyz, radius w), filled on submit. */
	CullingSphere math.Vec4
}

func NewSpotLight(colour math.Vec3, intensity, rangeDistance, innerAngle, outerAngle float32) SpotLight {
	return SpotLight{
		PositionRange: math.Vec4{0, 0, 0, rangeDistance},
		Direction:     math.Vec4{0, -1, 0, 0},
		CutOffs: math.Vec4{
			float32(stdmath.Cos(float64(innerAngle))),
			float32(stdmath.Cos(float64(outerAngle))),
			0, 0,
		},
		ColourIntensity: colour.Vec4(intensity),
	}
}

/**
 * @brief A quad emitter. Points are in local space until submitted.
 * After submission Points[0].w holds the two-sided flag, Points[1].w the
 * radius of influence and Points[3].w the culling flag.
 */
type RectAreaLight struct {
	ColourIntensity math.Vec4
	Points          [4]math.Vec4
}

func NewRectAreaLight(colour math.Vec3, intensity, width, height float32) RectAreaLight {
	hw, hh := width*0.5, height*0.5
	return RectAreaLight{
		ColourIntensity: colour.Vec4(intensity),
		Points: [4]math.Vec4{
			{-hw, 0, -hh, 1},
			{hw, 0, -hh, 1},
			{hw, 0, hh, 1},
			{-hw, 0, hh, 1},
		},
	}
}

/**
 * @brief Physical parameters of a planetary atmosphere. Radii and positions
 * are in megametres, scattering coefficients per megametre and height
 * falloffs in kilometres. Two values compare equal only when every
 * component matches.
 */
type Atmosphere struct {
	/** @brief Rayleigh scattering base (x, y, z) and height falloff (w). */
	RayleighScat math.Vec4
	/** @brief Rayleigh absorption base (x, y, z) and height falloff (w). */
	RayleighAbs math.Vec4
	/** @brief Mie scattering base (x, y, z) and height falloff (w). */
	MieScat math.Vec4
	/** @brief Mie absorption base (x, y, z) and height falloff (w). */
	MieAbs math.Vec4
	/** @brief Ozone absorption base (x, y, z) and density scale (w). */
	OzoneAbs math.Vec4
	/** @brief Planet albedo (x, y, z) and radius (w). */
	PlanetAlbedoRadius math.Vec4
	/** @brief Direction toward the sun (x, y, z) and atmosphere radius (w). */
	SunDirAtmRadius math.Vec4
	/** @brief Light colour (x, y, z) and intensity (w). */
	LightColourIntensity math.Vec4
	/** @brief View position relative to the planet center (x, y, z). */
	ViewPos math.Vec4
}

// DefaultAtmosphere returns an earth-like atmosphere with the viewer just
// above the ground.
func DefaultAtmosphere() Atmosphere {
	return Atmosphere{
		RayleighScat:         math.Vec4{5.802, 13.558, 33.1, 8.0},
		RayleighAbs:          math.Vec4{0, 0, 0, 8.0},
		MieScat:              math.Vec4{3.996, 3.996, 3.996, 1.2},
		MieAbs:               math.Vec4{4.4, 4.4, 4.4, 1.2},
		OzoneAbs:             math.Vec4{0.650, 1.881, 0.085, 1.0},
		PlanetAlbedoRadius:   math.Vec4{0.3, 0.3, 0.3, 6.360},
		SunDirAtmRadius:      math.Vec4{0, 1, 0, 6.460},
		LightColourIntensity: math.Vec4{1, 1, 1, 10},
		ViewPos:              math.Vec4{0, 6.361, 0, 0},
	}
}

/** @brief A sky-driven image based lighting probe. */
type DynamicIBL struct {
	Intensity             float32
	AttachedSkyAtmoHandle RendererDataHandle
}

/** @brief An oriented box of participating media. */
type OBBFogVolume struct {
	/** @brief Mie scattering (x, y, z) and phase value (w). */
	MieScatteringPhase math.Vec4
	/** @brief Emission (x, y, z) and absorption (w). */
	EmissionAbsorption math.Vec4
	/** @brief Inverse of the box model transform; the box spans [-1, 1] locally. */
	InvTransform math.Mat4
}

func NewOBBFogVolume(phase, density, absorption float32, mieScattering, emission math.Vec3, transform math.Mat4) OBBFogVolume {
	return OBBFogVolume{
		MieScatteringPhase: mieScattering.Mul(density).Vec4(phase),
		EmissionAbsorption: emission.Mul(density).Vec4(density * absorption),
		InvTransform:       transform.Inv(),
	}
}
