package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
)

// near compares by absolute distance; components that should be exactly zero
// come back as float residue.
func near(have, want math.Vec3, eps float32) bool {
	return have.Sub(want).Len() < eps
}

func TestCameraLookAt(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.Vec3{0, 5, 10})
	c.LookAt(math.Vec3{0, 5, 0})

	if f := c.Forward(); !near(f, math.Vec3{0, 0, -1}, 1e-5) {
		t.Fatalf("Camera.Forward:\nhave %v\nwant [0 0 -1]", f)
	}
	// The target lands on the view axis, in front of the camera.
	p := math.TransformPoint(c.GetView(), math.Vec3{0, 5, 0})
	if !near(p, math.Vec3{0, 0, -10}, 1e-4) {
		t.Fatalf("view space target:\nhave %v\nwant [0 0 -10]", p)
	}

	c.LookAt(math.Vec3{10, 5, 10})
	if f := c.Forward(); !near(f, math.Vec3{1, 0, 0}, 1e-5) {
		t.Fatalf("Camera.Forward after turning:\nhave %v\nwant [1 0 0]", f)
	}
}

func TestCameraLookAtAxes(t *testing.T) {
	tests := []struct {
		name   string
		target math.Vec3
		want   math.Vec3
	}{
		{"forward", math.Vec3{0, 0, -5}, math.Vec3{0, 0, -1}},
		{"right", math.Vec3{5, 0, 0}, math.Vec3{1, 0, 0}},
		{"left", math.Vec3{-5, 0, 0}, math.Vec3{-1, 0, 0}},
		{"behind", math.Vec3{0, 0, 5}, math.Vec3{0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCamera()
			c.SetPosition(math.Vec3{0, 0, 0})
			c.LookAt(tt.target)
			if f := c.Forward(); !near(f, tt.want, 1e-5) {
				t.Fatalf("Camera.Forward:\nhave %v\nwant %v", f, tt.want)
			}
		})
	}
}

func TestCameraPitchClamp(t *testing.T) {
	c := NewCamera()
	c.Pitch(mgl32.DegToRad(120))
	if p := c.GetEulerRotation().X(); p > 1.5534 {
		t.Fatalf("pitch:\nhave %v\nwant <= 89 degrees", p)
	}
}
