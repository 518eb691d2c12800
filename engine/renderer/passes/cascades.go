package passes

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/math"
)

const MaxCascades = 4

// Cascade is the light-space fit of one slice of the camera frustum.
type Cascade struct {
	View           math.Mat4
	Projection     math.Mat4
	ViewProjection math.Mat4
	// Frustum culls the shadow casters of this cascade.
	Frustum math.Frustum
	// SplitDepth is the view distance where the cascade ends.
	SplitDepth float32
	// Split is SplitDepth normalized to [0, 1] over the camera range.
	Split  float32
	Radius float32
}

type CascadeParams struct {
	InvViewProjection math.Mat4
	Near              float32
	Far               float32
	Lambda            float32
	Count             int
	Resolution        uint32
	// ToLight points from the scene toward the light.
	ToLight     math.Vec3
	SceneBounds math.Extents3D
}

// CascadeSplits blends logarithmic and uniform splits of [near, far] by
// lambda and returns the far view distance of each cascade. The last split
// is exactly far.
func CascadeSplits(near, far, lambda float32, count int) []float32 {
	if count < 1 {
		return nil
	}
	n, f, l := float64(near), float64(far), float64(lambda)
	splits := make([]float32, count)
	for i := range splits {
		p := float64(i+1) / float64(count)
		logSplit := n * stdmath.Pow(f/n, p)
		uniformSplit := n + (f-n)*p
		splits[i] = float32(l*(logSplit-uniformSplit) + uniformSplit)
	}
	splits[count-1] = far
	return splits
}

func sceneRadius(bounds math.Extents3D) float32 {
	if bounds.IsEmpty() {
		return 0
	}
	return max(bounds.Min.Len(), bounds.Max.Len())
}

func lightUp(toLight math.Vec3) math.Vec3 {
	up := math.Vec3{0, 0, 1}
	if abs32(toLight.Dot(up)) > 0.99 {
		return math.Vec3{0, 1, 0}
	}
	return up
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// snapToTexel shifts the projection so the world origin lands on a shadow
// map texel, which keeps shadow edges from shimmering as the camera moves.
func snapToTexel(proj, view math.Mat4, resolution uint32) math.Mat4 {
	half := float32(resolution) * 0.5
	origin := proj.Mul4(view).Mul4x1(math.Vec4{0, 0, 0, 1}).Mul(half)
	rounded := math.Vec4{
		float32(stdmath.Round(float64(origin[0]))),
		float32(stdmath.Round(float64(origin[1]))),
		0, 0,
	}
	offset := rounded.Sub(origin).Mul(1 / half)
	proj[12] += offset[0]
	proj[13] += offset[1]
	return proj
}

// ComputeCascades fits an orthographic light camera around each slice of
// the camera frustum. The bounding radius is rounded up to 1/16 so it only
// changes in steps, and the light camera is pulled back to the scene radius
// when the scene reaches beyond the slice.
func ComputeCascades(p CascadeParams) []Cascade {
	count := min(max(p.Count, 1), MaxCascades)
	splits := CascadeSplits(p.Near, p.Far, p.Lambda, count)
	clipRange := p.Far - p.Near

	ndc := math.NDCCorners()
	var world [8]math.Vec3
	for i, c := range ndc {
		world[i] = math.TransformPoint(p.InvViewProjection, c)
	}

	toLight := p.ToLight
	if toLight.Len() == 0 {
		toLight = math.Vec3{0, 1, 0}
	}
	toLight = toLight.Normalize()
	up := lightUp(toLight)
	scene := sceneRadius(p.SceneBounds)
	resolution := max(p.Resolution, 1)

	cascades := make([]Cascade, count)
	lastSplit := float32(0)
	for i := range cascades {
		split := (splits[i] - p.Near) / clipRange

		var corners [8]math.Vec3
		for j := 0; j < 4; j++ {
			ray := world[j+4].Sub(world[j])
			corners[j] = world[j].Add(ray.Mul(lastSplit))
			corners[j+4] = world[j].Add(ray.Mul(split))
		}
		var center math.Vec3
		for _, c := range corners {
			center = center.Add(c)
		}
		center = center.Mul(1.0 / 8)

		var radius float32
		for _, c := range corners {
			radius = max(radius, c.Sub(center).Len())
		}
		radius = float32(stdmath.Ceil(float64(radius)*16)) / 16

		var view, proj math.Mat4
		if radius > scene {
			eye := center.Add(toLight.Mul(radius))
			view = mgl32.LookAtV(eye, center, up)
			proj = mgl32.Ortho(-radius, radius, -radius, radius, -15, 2*radius+15)
		} else {
			eye := center.Add(toLight.Mul(scene))
			view = mgl32.LookAtV(eye, center, up)
			proj = mgl32.Ortho(-radius, radius, -radius, radius, -15, 2*scene+15)
		}
		proj = snapToTexel(proj, view, resolution)
		vp := proj.Mul4(view)

		cascades[i] = Cascade{
			View:           view,
			Projection:     proj,
			ViewProjection: vp,
			Frustum:        math.FrustumFromMatrix(vp),
			SplitDepth:     p.Near + split*clipRange,
			Split:          split,
			Radius:         radius,
		}
		lastSplit = split
	}
	return cascades
}
