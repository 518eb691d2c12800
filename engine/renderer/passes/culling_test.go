package passes

import (
	"fmt"
	stdmath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/math"
)

func TestSpotLightBoundingSphereContinuity(t *testing.T) {
	const rangeDistance = 10
	dir := math.Vec3{0, -1, 0}
	eps := float32(1e-4)

	below, rBelow := SpotLightBoundingSphere(math.Vec3{}, dir, rangeDistance, float32(stdmath.Cos(float64(stdmath.Pi/4-eps))))
	above, rAbove := SpotLightBoundingSphere(math.Vec3{}, dir, rangeDistance, float32(stdmath.Cos(float64(stdmath.Pi/4+eps))))
	if d := mgl32.Abs(rBelow - rAbove); d > 1e-2 {
		t.Fatalf("radius jumps at 45 degrees:\nhave %v and %v\nwant equal", rBelow, rAbove)
	}
	if d := below.Sub(above).Len(); d > 1e-2 {
		t.Fatalf("center jumps at 45 degrees:\nhave %v and %v\nwant equal", below, above)
	}
	want := float32(rangeDistance / stdmath.Sqrt2)
	if d := mgl32.Abs(rBelow - want); d > 1e-2 {
		t.Fatalf("radius at 45 degrees:\nhave %v\nwant %v", rBelow, want)
	}
}

func TestSpotLightBoundingSphereContainsCone(t *testing.T) {
	position := math.Vec3{1, 4, -2}
	dir := math.Vec3{0, -1, 0}
	perp := math.Vec3{1, 0, 0}
	const rangeDistance = 8

	for _, degrees := range []float32{5, 20, 44, 45, 46, 60, 85} {
		t.Run(fmt.Sprint(degrees), func(t *testing.T) {
			angle := mgl32.DegToRad(degrees)
			cos, sin := float32(stdmath.Cos(float64(angle))), float32(stdmath.Sin(float64(angle)))
			center, radius := SpotLightBoundingSphere(position, dir, rangeDistance, cos)

			points := map[string]math.Vec3{
				"apex": position,
				"rim":  position.Add(dir.Mul(cos * rangeDistance)).Add(perp.Mul(sin * rangeDistance)),
				"cap":  position.Add(dir.Mul(rangeDistance)),
			}
			for name, p := range points {
				if d := p.Sub(center).Len(); d > radius+1e-3 {
					t.Fatalf("%v degrees, %s outside the sphere:\nhave distance %v\nwant <= %v", degrees, name, d, radius)
				}
			}
		})
	}
}
