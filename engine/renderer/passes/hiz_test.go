package passes

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestHiZMipCount(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{64, 36, 7},
		{1280, 720, 11},
		{1024, 1024, 11},
	}
	for _, tt := range tests {
		if have := HiZMipCount(tt.width, tt.height); have != tt.want {
			t.Fatalf("HiZMipCount(%d, %d):\nhave %d\nwant %d", tt.width, tt.height, have, tt.want)
		}
	}
}

func TestAORadiusToScreen(t *testing.T) {
	// A 90 degree field of view puts one unit at unit depth across half the
	// viewport height.
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 100)
	tests := []struct {
		radius float32
		height uint32
		want   float32
	}{
		{1, 400, 100},
		{0.5, 400, 50},
		{1, 200, 50},
	}
	for _, tt := range tests {
		have := AORadiusToScreen(tt.radius, tt.height, proj)
		if d := have - tt.want; d > 1e-3 || d < -1e-3 {
			t.Fatalf("AORadiusToScreen(%v, %v):\nhave %v\nwant %v", tt.radius, tt.height, have, tt.want)
		}
	}
}
