package systems

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/soft"
)

func TestGeometrySystemReferenceCounting(t *testing.T) {
	gs, err := NewGeometrySystem(&GeometrySystemConfig{MaxGeometryCount: 1}, soft.NewDevice(soft.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	defer gs.Shutdown()

	a, err := gs.AcquireCube("box", 1, 2, 3, true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := gs.AcquireCube("box", 5, 5, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("second acquire created a new mesh")
	}
	if have := a.Triangles(); have != 12 {
		t.Fatalf("cube triangles:\nhave %d\nwant 12", have)
	}
	if _, err := gs.AcquirePlane("floor", 4, 4, 2, 2, 1, 1, true); err == nil {
		t.Fatalf("acquire past capacity succeeded")
	}
	if def, _ := gs.AcquireCube(DefaultGeometryName, 1, 1, 1, true); def != gs.DefaultCube {
		t.Fatalf("default name did not return the default cube")
	}

	gs.Release("box")
	gs.Release("box")
	c, err := gs.AcquireCube("box", 1, 1, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Fatalf("released mesh was reused")
	}
}

func TestCameraSystemReferenceCounting(t *testing.T) {
	cs, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Shutdown()

	def, err := cs.Acquire(components.DEFAULT_CAMERA_NAME)
	if err != nil || def != cs.GetDefault() {
		t.Fatalf("default camera:\nhave %p %v\nwant %p nil", def, err, cs.GetDefault())
	}

	a, err := cs.Acquire("editor")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := cs.Acquire("editor")
	if a != b {
		t.Fatalf("second acquire created a new camera")
	}
	if _, err := cs.Acquire("other"); err == nil {
		t.Fatalf("acquire past capacity succeeded")
	}

	cs.Release("editor")
	if c, _ := cs.Acquire("editor"); c != a {
		t.Fatalf("camera forgotten while still referenced")
	}
	cs.Release("editor")
	cs.Release("editor")
	if c, _ := cs.Acquire("editor"); c == a {
		t.Fatalf("released camera was reused")
	}
}
