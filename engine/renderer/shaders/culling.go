package shaders

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// One workgroup per screen tile for every kernel in this file.
// Bindings: uniform 0 camera, uniform 1 culling parameters, storage 0 tile
// frustums.

func unproject(invProj mgl32.Mat4, ndc mgl32.Vec4) mgl32.Vec3 {
	p := invProj.Mul4x1(ndc)
	return p.Vec3().Mul(1 / p[3])
}

func viewDistance(invProj mgl32.Mat4, depth float32) float32 {
	return -unproject(invProj, mgl32.Vec4{0, 0, depth*2 - 1, 1})[2]
}

// inwardPlane returns the plane through the eye and points a and b, facing
// the inside point.
func inwardPlane(a, b, inside mgl32.Vec3) mgl32.Vec4 {
	n := a.Cross(b)
	if l := n.Len(); l > 0 {
		n = n.Mul(1 / l)
	}
	if n.Dot(inside) < 0 {
		n = n.Mul(-1)
	}
	return n.Vec4(0)
}

// tiledFrustumsAABBs builds the culling volume of each tile. The depth
// range comes from the depth sampler when bound, otherwise it spans the
// whole camera range.
func tiledFrustumsAABBs(inv *soft.Invocation) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	tiles := storage[metadata.TileFrustum](inv, 0)
	tx, ty := inv.GroupID[0], inv.GroupID[1]
	idx := ty*int(params.TilesX) + tx
	if idx >= len(tiles) {
		return
	}

	width, height := int(cam.NearFarSize[2]), int(cam.NearFarSize[3])
	size := int(params.TileSize)
	x0, y0 := tx*size, ty*size
	x1, y1 := min(x0+size, width), min(y0+size, height)
	ndcX := func(x int) float32 { return float32(x)/float32(width)*2 - 1 }
	ndcY := func(y int) float32 { return float32(y)/float32(height)*2 - 1 }

	// Tile corners on the far plane in view space.
	bl := unproject(cam.InvProjection, mgl32.Vec4{ndcX(x0), ndcY(y0), 1, 1})
	br := unproject(cam.InvProjection, mgl32.Vec4{ndcX(x1), ndcY(y0), 1, 1})
	tl := unproject(cam.InvProjection, mgl32.Vec4{ndcX(x0), ndcY(y1), 1, 1})
	tr := unproject(cam.InvProjection, mgl32.Vec4{ndcX(x1), ndcY(y1), 1, 1})
	center := bl.Add(br).Add(tl).Add(tr).Mul(0.25)

	var f metadata.TileFrustum
	f.Planes[0] = inwardPlane(bl, tl, center)
	f.Planes[1] = inwardPlane(tr, br, center)
	f.Planes[2] = inwardPlane(br, bl, center)
	f.Planes[3] = inwardPlane(tl, tr, center)

	near, far := cam.NearFarSize[0], cam.NearFarSize[1]
	minDist, maxDist := near, far
	if depth := inv.Sampler(0); depth != nil {
		minDepth, maxDepth := float32(1), float32(0)
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				d := depth.Load(x, y, 0, 0)[0]
				minDepth = min(minDepth, d)
				maxDepth = max(maxDepth, d)
			}
		}
		if maxDepth >= minDepth {
			minDist = mgl32.Clamp(viewDistance(cam.InvProjection, minDepth), near, far)
			maxDist = mgl32.Clamp(viewDistance(cam.InvProjection, maxDepth), near, far)
		}
	}
	f.DepthRange = mgl32.Vec4{minDist, maxDist, 0, 0}

	// Bounds of the tile frustum between the two depths.
	lo := mgl32.Vec3{float32(1e30), float32(1e30), float32(1e30)}
	hi := lo.Mul(-1)
	for _, c := range [4]mgl32.Vec3{bl, br, tl, tr} {
		for _, dist := range [2]float32{minDist, maxDist} {
			p := c.Mul(dist / -c[2])
			for i := 0; i < 3; i++ {
				lo[i] = min(lo[i], p[i])
				hi[i] = max(hi[i], p[i])
			}
		}
	}
	f.AABBMin = lo.Vec4(1)
	f.AABBMax = hi.Vec4(1)
	tiles[idx] = f
}

// sphereInTile tests a view-space sphere against a tile volume.
func sphereInTile(f *metadata.TileFrustum, center mgl32.Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.Vec3().Dot(center) < -radius {
			return false
		}
	}
	dist := -center[2]
	return dist+radius >= f.DepthRange[0] && dist-radius <= f.DepthRange[1]
}

// cullSpheres writes the compacted list [count, indices...] of the spheres
// overlapping the workgroup's tile into storage 2.
func cullSpheres(inv *soft.Invocation, listCap int, count int, sphere func(i int) (mgl32.Vec3, float32, bool)) {
	cam, ok := camera(inv)
	if !ok {
		return
	}
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	tiles := storage[metadata.TileFrustum](inv, 0)
	lists := storage[int32](inv, 2)
	idx := inv.GroupID[1]*int(params.TilesX) + inv.GroupID[0]
	stride := listCap + 1
	if idx >= len(tiles) || (idx+1)*stride > len(lists) {
		return
	}
	tile := &tiles[idx]
	list := lists[idx*stride : (idx+1)*stride]

	n := 0
	for i := 0; i < count && n < listCap; i++ {
		center, radius, always := sphere(i)
		if !always {
			view := cam.View.Mul4x1(center.Vec4(1)).Vec3()
			if !sphereInTile(tile, view, radius) {
				continue
			}
		}
		list[1+n] = int32(i)
		n++
	}
	list[0] = int32(n)
}

// Storage 1 holds the submitted lights of the culled type.

func tiledPointLightCulling(inv *soft.Invocation) {
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	lights := storage[metadata.PointLight](inv, 1)
	count := min(int(params.NumPointLights), len(lights))
	cullSpheres(inv, int(params.MaxPerTile[0]), count, func(i int) (mgl32.Vec3, float32, bool) {
		return lights[i].PositionRadius.Vec3(), lights[i].PositionRadius[3], false
	})
}

func tiledSpotLightCulling(inv *soft.Invocation) {
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	lights := storage[metadata.SpotLight](inv, 1)
	count := min(int(params.NumSpotLights), len(lights))
	cullSpheres(inv, int(params.MaxPerTile[1]), count, func(i int) (mgl32.Vec3, float32, bool) {
		return lights[i].CullingSphere.Vec3(), lights[i].CullingSphere[3], false
	})
}

// Rect lights with a zero cull flag are added to every tile.
func tiledRectLightCulling(inv *soft.Invocation) {
	params, ok := uniform[metadata.CullingUniforms](inv, 1)
	if !ok {
		return
	}
	lights := storage[metadata.RectAreaLight](inv, 1)
	count := min(int(params.NumRectLights), len(lights))
	cullSpheres(inv, int(params.MaxPerTile[2]), count, func(i int) (mgl32.Vec3, float32, bool) {
		l := &lights[i]
		center, radius := RectLightSphere(l)
		return center, radius, l.Points[3][3] == 0
	})
}

// RectLightSphere bounds a submitted rect light: the corner centroid
// enclosing every corner, grown by the light's radius of influence.
func RectLightSphere(l *metadata.RectAreaLight) (mgl32.Vec3, float32) {
	var center mgl32.Vec3
	for _, p := range l.Points {
		center = center.Add(p.Vec3())
	}
	center = center.Mul(0.25)
	var r float32
	for _, p := range l.Points {
		r = max(r, p.Vec3().Sub(center).Len())
	}
	return center, r + l.Points[1][3]
}
