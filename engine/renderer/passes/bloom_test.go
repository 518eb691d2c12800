package passes

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
)

func TestBloomMipCount(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          int
	}{
		{"empty", 0, 10, 1},
		{"single pixel", 1, 1, 1},
		{"small", 32, 18, 5},
		{"wide", 64, 36, 6},
		{"capped", 960, 540, MaxBloomMips},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if have := BloomMipCount(tt.width, tt.height); have != tt.want {
				t.Fatalf("have %d\nwant %d", have, tt.want)
			}
		})
	}
}

func TestBloomCurve(t *testing.T) {
	tests := []struct {
		name            string
		threshold, knee float32
		want            math.Vec4
	}{
		{"unit", 1, 0.5, math.Vec4{1, 0.5, 1, 0.5}},
		{"zero knee clamped", 2, 0, math.Vec4{2, 2 - 1e-4, 2e-4, 0.25 / 1e-4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			have := BloomCurve(tt.threshold, tt.knee)
			if !have.ApproxEqualThreshold(tt.want, 1e-3) {
				t.Fatalf("have %v\nwant %v", have, tt.want)
			}
		})
	}
}
