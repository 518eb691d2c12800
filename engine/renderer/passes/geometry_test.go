package passes

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestDrawQueuePacksSkinnedPalettes(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 1})
	vertices, indices, extents := math.GenerateCube(1, 1, 1)
	mesh := metadata.NewMesh(dev, 1, "skinned_cube", vertices, indices, extents)
	material := metadata.DefaultMaterial()

	q := newRenderQueue(16)
	palettes := [][]math.Mat4{
		{mgl32.Translate3D(1, 0, 0), mgl32.Translate3D(2, 0, 0)},
		{mgl32.Translate3D(0, 0, -50)},
		{mgl32.Scale3D(3, 3, 3)},
	}
	positions := []math.Mat4{
		mgl32.Translate3D(-2, 0, 0),
		mgl32.Translate3D(0, 0, 500),
		mgl32.Translate3D(2, 0, 0),
	}
	for i := range palettes {
		q.addSkinned(mesh, metadata.NewInstanceData(positions[i], material, uint32(i), i == 0), palettes[i])
	}

	frustum := math.FrustumFromMatrix(mgl32.Ortho(-10, 10, -10, 10, -10, 10))
	bones := dev.NewBuffer("bones", 0)
	st := drawQueue(dev, q, &frustum, dev.NewBuffer("instances", 0), bones, nil, nil, nil, 0)

	// The second entry sits outside the frustum.
	if len(st.skinned) != 2 {
		t.Fatalf("visible skinned entries:\nhave %d\nwant 2", len(st.skinned))
	}
	if have := dev.Stats().Draws["<nil>"]; have != 2 {
		t.Fatalf("skinned draws:\nhave %d\nwant 2", have)
	}

	want := [][]math.Mat4{palettes[0], palettes[2]}
	wantIDs := []float32{1, 3}
	for i, d := range st.skinned {
		if d.offset != i*skinnedStride {
			t.Fatalf("entry %d offset:\nhave %d\nwant %d", i, d.offset, i*skinnedStride)
		}
		inst := gpu.ReadStruct[metadata.InstanceData](bones.Bytes(), d.offset)
		if inst.IDMask[1] != wantIDs[i] {
			t.Fatalf("entry %d id:\nhave %v\nwant %v", i, inst.IDMask[1], wantIDs[i])
		}
		base := d.offset + gpu.SizeOf[metadata.InstanceData]()
		for j, m := range want[i] {
			have := gpu.ReadStruct[math.Mat4](bones.Bytes(), base+j*gpu.SizeOf[math.Mat4]())
			if have != m {
				t.Fatalf("entry %d bone %d:\nhave %v\nwant %v", i, j, have, m)
			}
		}
	}
}
