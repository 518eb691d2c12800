package math

import (
	stdmath "math"
)

// Plane is the set of points p with dot(Normal, p) + Distance == 0. Points on
// the Normal side have a positive signed distance.
type Plane struct {
	Normal   Vec3
	Distance float32
}

// NewPlane builds a normalized plane from the (a, b, c, d) coefficients.
func NewPlane(coeffs Vec4) Plane {
	n := coeffs.Vec3()
	l := n.Len()
	if l == 0 {
		return Plane{}
	}
	return Plane{Normal: n.Mul(1 / l), Distance: coeffs.W() / l}
}

func (p Plane) SignedDistance(point Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

type Sphere struct {
	Center Vec3
	Radius float32
}

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Frustum holds six inward facing planes and the eight world space corners.
type Frustum struct {
	Planes  [6]Plane
	Corners [8]Vec3
}

// ndcCorners is ordered near face first, then far face.
var ndcCorners = [8]Vec3{
	{-1, 1, -1}, {1, 1, -1}, {1, -1, -1}, {-1, -1, -1},
	{-1, 1, 1}, {1, 1, 1}, {1, -1, 1}, {-1, -1, 1},
}

// NDCCorners returns the eight clip cube corners, near face first.
func NDCCorners() [8]Vec3 {
	return ndcCorners
}

// FrustumFromMatrix extracts the planes of a view-projection matrix
// (Gribb-Hartmann) and unprojects the clip cube corners.
func FrustumFromMatrix(viewProj Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)

	var f Frustum
	f.Planes[FrustumLeft] = NewPlane(r3.Add(r0))
	f.Planes[FrustumRight] = NewPlane(r3.Sub(r0))
	f.Planes[FrustumBottom] = NewPlane(r3.Add(r1))
	f.Planes[FrustumTop] = NewPlane(r3.Sub(r1))
	f.Planes[FrustumNear] = NewPlane(r3.Add(r2))
	f.Planes[FrustumFar] = NewPlane(r3.Sub(r2))

	inv := viewProj.Inv()
	for i, c := range ndcCorners {
		f.Corners[i] = TransformPoint(inv, c)
	}
	return f
}

func (f *Frustum) ContainsPoint(p Vec3) bool {
	for _, pl := range f.Planes {
		if pl.SignedDistance(p) < 0 {
			return false
		}
	}
	return true
}

func (f *Frustum) IntersectsSphere(s Sphere) bool {
	for _, pl := range f.Planes {
		if pl.SignedDistance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// IntersectsExtents is the positive-vertex box test. It can report boxes
// near a frustum edge as visible, never the other way around.
func (f *Frustum) IntersectsExtents(e Extents3D) bool {
	for _, pl := range f.Planes {
		var pv Vec3
		for i := 0; i < 3; i++ {
			if pl.Normal[i] >= 0 {
				pv[i] = e.Max[i]
			} else {
				pv[i] = e.Min[i]
			}
		}
		if pl.SignedDistance(pv) < 0 {
			return false
		}
	}
	return true
}

// TransformPoint multiplies (p, 1) by m and divides by w.
func TransformPoint(m Mat4, p Vec3) Vec3 {
	v := m.Mul4x1(p.Vec4(1))
	if v.W() == 0 {
		return v.Vec3()
	}
	return v.Vec3().Mul(1 / v.W())
}

// TransformDirection multiplies (d, 0) by m.
func TransformDirection(m Mat4, d Vec3) Vec3 {
	return m.Mul4x1(d.Vec4(0)).Vec3()
}

// EmptyExtents returns an inverted box that any Expand call will overwrite.
func EmptyExtents() Extents3D {
	inf := float32(stdmath.Inf(1))
	return Extents3D{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

func (e Extents3D) IsEmpty() bool {
	return e.Min.X() > e.Max.X() || e.Min.Y() > e.Max.Y() || e.Min.Z() > e.Max.Z()
}

func (e Extents3D) Expand(p Vec3) Extents3D {
	for i := 0; i < 3; i++ {
		e.Min[i] = min(e.Min[i], p[i])
		e.Max[i] = max(e.Max[i], p[i])
	}
	return e
}

func (e Extents3D) Union(o Extents3D) Extents3D {
	if o.IsEmpty() {
		return e
	}
	return e.Expand(o.Min).Expand(o.Max)
}

func (e Extents3D) Center() Vec3 {
	return e.Min.Add(e.Max).Mul(0.5)
}

func (e Extents3D) Corners() [8]Vec3 {
	return [8]Vec3{
		{e.Min.X(), e.Min.Y(), e.Min.Z()},
		{e.Max.X(), e.Min.Y(), e.Min.Z()},
		{e.Min.X(), e.Max.Y(), e.Min.Z()},
		{e.Max.X(), e.Max.Y(), e.Min.Z()},
		{e.Min.X(), e.Min.Y(), e.Max.Z()},
		{e.Max.X(), e.Min.Y(), e.Max.Z()},
		{e.Min.X(), e.Max.Y(), e.Max.Z()},
		{e.Max.X(), e.Max.Y(), e.Max.Z()},
	}
}

// Transform returns the axis aligned box around the eight transformed corners.
func (e Extents3D) Transform(m Mat4) Extents3D {
	if e.IsEmpty() {
		return e
	}
	out := EmptyExtents()
	for _, c := range e.Corners() {
		out = out.Expand(TransformPoint(m, c))
	}
	return out
}

// SphereFromPoints returns the sphere centered on the centroid of points with
// the radius of the farthest point.
func SphereFromPoints(points []Vec3) Sphere {
	if len(points) == 0 {
		return Sphere{}
	}
	var c Vec3
	for _, p := range points {
		c = c.Add(p)
	}
	c = c.Mul(1 / float32(len(points)))
	var r float32
	for _, p := range points {
		r = max(r, p.Sub(c).Len())
	}
	return Sphere{Center: c, Radius: r}
}

func GeometryGenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		normal := edge1.Cross(edge2).Normalize()
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GenerateCube builds an axis aligned box centered on the origin with 4
// vertices and 6 indices per face.
func GenerateCube(width, height, depth float32) ([]Vertex3D, []uint32, Extents3D) {
	hx, hy, hz := width*0.5, height*0.5, depth*0.5
	faces := [6]struct {
		normal   Vec3
		tangentU Vec3
		tangentV Vec3
	}{
		{Vec3{0, 0, 1}, Vec3{1, 0, 0}, Vec3{0, 1, 0}},
		{Vec3{0, 0, -1}, Vec3{-1, 0, 0}, Vec3{0, 1, 0}},
		{Vec3{-1, 0, 0}, Vec3{0, 0, 1}, Vec3{0, 1, 0}},
		{Vec3{1, 0, 0}, Vec3{0, 0, -1}, Vec3{0, 1, 0}},
		{Vec3{0, -1, 0}, Vec3{1, 0, 0}, Vec3{0, 0, 1}},
		{Vec3{0, 1, 0}, Vec3{1, 0, 0}, Vec3{0, 0, -1}},
	}
	half := Vec3{hx, hy, hz}
	scale := func(v Vec3) Vec3 { return Vec3{v[0] * half[0], v[1] * half[1], v[2] * half[2]} }

	vertices := make([]Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for f, face := range faces {
		base := uint32(f * 4)
		for _, uv := range [4]Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
			u := face.tangentU.Mul(uv[0]*2 - 1)
			v := face.tangentV.Mul(uv[1]*2 - 1)
			vertices = append(vertices, Vertex3D{
				Position: scale(face.normal.Add(u).Add(v)),
				Normal:   face.normal,
				Texcoord: uv,
				Tangent:  face.tangentU,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices, Extents3D{Min: half.Mul(-1), Max: half}
}

// GeneratePlane builds a plane on the XZ axes facing +Y, split into
// xSegments by zSegments quads. Texture coordinates repeat tileX and tileZ
// times across the plane.
func GeneratePlane(width, depth float32, xSegments, zSegments uint32, tileX, tileZ float32) ([]Vertex3D, []uint32, Extents3D) {
	xSegments = max(xSegments, 1)
	zSegments = max(zSegments, 1)
	if tileX == 0 {
		tileX = 1
	}
	if tileZ == 0 {
		tileZ = 1
	}

	segWidth := width / float32(xSegments)
	segDepth := depth / float32(zSegments)
	halfWidth, halfDepth := width*0.5, depth*0.5

	vertices := make([]Vertex3D, 0, xSegments*zSegments*4)
	indices := make([]uint32, 0, xSegments*zSegments*6)
	for z := uint32(0); z < zSegments; z++ {
		for x := uint32(0); x < xSegments; x++ {
			minX := float32(x)*segWidth - halfWidth
			minZ := float32(z)*segDepth - halfDepth
			maxX, maxZ := minX+segWidth, minZ+segDepth
			minU := float32(x) / float32(xSegments) * tileX
			minV := float32(z) / float32(zSegments) * tileZ
			maxU := float32(x+1) / float32(xSegments) * tileX
			maxV := float32(z+1) / float32(zSegments) * tileZ

			base := uint32(len(vertices))
			for _, c := range [4]struct{ p, uv Vec2 }{
				{Vec2{minX, maxZ}, Vec2{minU, minV}},
				{Vec2{maxX, maxZ}, Vec2{maxU, minV}},
				{Vec2{maxX, minZ}, Vec2{maxU, maxV}},
				{Vec2{minX, minZ}, Vec2{minU, maxV}},
			} {
				vertices = append(vertices, Vertex3D{
					Position: Vec3{c.p[0], 0, c.p[1]},
					Normal:   Vec3{0, 1, 0},
					Texcoord: c.uv,
					Tangent:  Vec3{1, 0, 0},
				})
			}
			indices = append(indices, base, base+1, base+2, base, base+2, base+3)
		}
	}
	return vertices, indices, Extents3D{Min: Vec3{-halfWidth, 0, -halfDepth}, Max: Vec3{halfWidth, 0, halfDepth}}
}
