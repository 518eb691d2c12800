package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func testCamera() (Mat4, Mat4) {
	view := mgl32.LookAtV(Vec3{0, 0, 0}, Vec3{0, 0, -1}, Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 100)
	return view, proj
}

func TestFrustumFromMatrix(t *testing.T) {
	view, proj := testCamera()
	f := FrustumFromMatrix(proj.Mul4(view))

	for _, c := range []struct {
		name string
		p    Vec3
		want bool
	}{
		{"in front", Vec3{0, 0, -10}, true},
		{"behind", Vec3{0, 0, 10}, false},
		{"beyond far", Vec3{0, 0, -200}, false},
		{"left of frustum", Vec3{-20, 0, -10}, false},
		{"inside edge", Vec3{9, 0, -10}, true},
	} {
		t.Run(c.name, func(t *testing.T) {
			if have := f.ContainsPoint(c.p); have != c.want {
				t.Fatalf("Frustum.ContainsPoint(%v):\nhave %v\nwant %v", c.p, have, c.want)
			}
		})
	}

	if !f.IntersectsSphere(Sphere{Center: Vec3{0, 0, 5}, Radius: 6}) {
		t.Fatal("Frustum.IntersectsSphere(straddling near plane):\nhave false\nwant true")
	}
	if f.IntersectsExtents(Extents3D{Min: Vec3{50, 50, -5}, Max: Vec3{60, 60, -4}}) {
		t.Fatal("Frustum.IntersectsExtents(outside box):\nhave true\nwant false")
	}
	// Far corners unproject to the far plane.
	if z := f.Corners[4].Z(); !mgl32.FloatEqualThreshold(z, -100, 0.5) {
		t.Fatalf("Frustum.Corners[4].Z:\nhave %v\nwant -100", z)
	}
}

func TestExtents(t *testing.T) {
	e := EmptyExtents()
	if !e.IsEmpty() {
		t.Fatal("EmptyExtents().IsEmpty:\nhave false\nwant true")
	}
	e = e.Expand(Vec3{1, 2, 3}).Expand(Vec3{-1, 0, 5})
	if e.Min != (Vec3{-1, 0, 3}) || e.Max != (Vec3{1, 2, 5}) {
		t.Fatalf("Extents3D.Expand:\nhave %v %v\nwant [-1 0 3] [1 2 5]", e.Min, e.Max)
	}
	moved := e.Transform(mgl32.Translate3D(10, 0, 0))
	if moved.Min.X() != 9 || moved.Max.X() != 11 {
		t.Fatalf("Extents3D.Transform:\nhave %v %v", moved.Min, moved.Max)
	}
}

func TestGenerateCube(t *testing.T) {
	verts, idx, ext := GenerateCube(2, 4, 6)
	if len(verts) != 24 || len(idx) != 36 {
		t.Fatalf("GenerateCube counts:\nhave %d %d\nwant 24 36", len(verts), len(idx))
	}
	for _, v := range verts {
		if v.Position.X() < ext.Min.X() || v.Position.Y() > ext.Max.Y() || v.Position.Z() > ext.Max.Z() {
			t.Fatalf("vertex %v outside extents %v", v.Position, ext)
		}
	}
	if ext.Max != (Vec3{1, 2, 3}) {
		t.Fatalf("GenerateCube extents:\nhave %v\nwant [1 2 3]", ext.Max)
	}
}

func TestClampCeilDiv(t *testing.T) {
	if v := Clamp(5, 0, 3); v != 3 {
		t.Fatalf("Clamp:\nhave %v\nwant 3", v)
	}
	if v := CeilDiv(900, 16); v != 57 {
		t.Fatalf("CeilDiv(900, 16):\nhave %v\nwant 57", v)
	}
	if v := CeilDiv(uint32(1600), 16); v != 100 {
		t.Fatalf("CeilDiv(1600, 16):\nhave %v\nwant 100", v)
	}
}

func TestGeneratePlane(t *testing.T) {
	verts, idx, ext := GeneratePlane(10, 4, 2, 3, 1, 1)
	if len(verts) != 24 || len(idx) != 36 {
		t.Fatalf("GeneratePlane counts:\nhave %d %d\nwant 24 36", len(verts), len(idx))
	}
	if ext.Min != (Vec3{-5, 0, -2}) || ext.Max != (Vec3{5, 0, 2}) {
		t.Fatalf("GeneratePlane extents:\nhave %v %v\nwant [-5 0 -2] [5 0 2]", ext.Min, ext.Max)
	}
	for i := 0; i < len(idx); i += 3 {
		a, b, c := verts[idx[i]].Position, verts[idx[i+1]].Position, verts[idx[i+2]].Position
		n := b.Sub(a).Cross(c.Sub(a))
		if n[1] <= 0 {
			t.Fatalf("triangle %d faces away from +Y: %v", i/3, n)
		}
	}
}
