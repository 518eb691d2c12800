package timers

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// fakeQuery resolves when its device says so and reports the order it was
// recorded in as its timestamp.
type fakeQuery struct {
	dev      *fakeDevice
	value    uint64
	resolved bool
}

func (q *fakeQuery) Record() {
	q.dev.clock += 10
	q.value = q.dev.clock
	q.resolved = false
	q.dev.pending = append(q.dev.pending, q)
}
func (q *fakeQuery) Available() bool { return q.resolved }
func (q *fakeQuery) Result() uint64 { return q.value }

type fakeDevice struct {
	gpu.Device
	clock   uint64
	pending []*fakeQuery
}

func (d *fakeDevice) NewQuery() gpu.Query { return &fakeQuery{dev: d} }

// resolve makes the n oldest pending queries available.
func (d *fakeDevice) resolve(n int) {
	n = min(n, len(d.pending))
	for _, q := range d.pending[:n] {
		q.resolved = true
	}
	d.pending = d.pending[n:]
}

func TestAsyncTimerDrainsOldestFirst(t *testing.T) {
	dev := &fakeDevice{}
	timer := NewAsyncTimer(dev, 5)

	for i := 0; i < 5; i++ {
		timer.Begin()
		dev.clock += uint64(100 * (i + 1))
		timer.End()
	}
	if n := timer.InFlight(); n != 5 {
		t.Fatalf("AsyncTimer.InFlight:\nhave %v\nwant 5", n)
	}

	// The oldest pair resolves first; the rest are still on the GPU.
	dev.resolve(2)
	if ns := timer.Drain(); ns != 110 {
		t.Fatalf("AsyncTimer.Drain (oldest):\nhave %v\nwant 110", ns)
	}
	if ns := timer.Drain(); ns != NotReady {
		t.Fatalf("AsyncTimer.Drain again:\nhave %v\nwant NotReady", ns)
	}
	if n := timer.InFlight(); n != 4 {
		t.Fatalf("AsyncTimer.InFlight after drain:\nhave %v\nwant 4", n)
	}

	dev.resolve(2)
	if ns := timer.Drain(); ns != 210 {
		t.Fatalf("AsyncTimer.Drain (second):\nhave %v\nwant 210", ns)
	}
}

func TestAsyncTimerFullRingDropsPairs(t *testing.T) {
	dev := &fakeDevice{}
	timer := NewAsyncTimer(dev, 5)
	for i := 0; i < 5; i++ {
		timer.Begin()
		timer.End()
	}
	recorded := dev.clock
	timer.Begin()
	timer.End()
	if dev.clock != recorded {
		t.Fatal("Begin/End on a full ring recorded queries")
	}
	if n := timer.InFlight(); n != 5 {
		t.Fatalf("AsyncTimer.InFlight:\nhave %v\nwant 5", n)
	}

	// Nothing resolved yet: every drain is not ready.
	for i := 0; i < 3; i++ {
		if ns := timer.Drain(); ns != NotReady {
			t.Fatalf("AsyncTimer.Drain #%d:\nhave %v\nwant NotReady", i, ns)
		}
	}
}

func TestAsyncTimerMsRecordTimeKeepsLastValue(t *testing.T) {
	dev := &fakeDevice{}
	timer := NewAsyncTimer(dev, 3)
	frameTime := float32(4.5)

	timer.MsRecordTime(&frameTime)
	if frameTime != 4.5 {
		t.Fatalf("frame time with empty ring:\nhave %v\nwant 4.5", frameTime)
	}

	end := timer.Scoped()
	dev.clock += 2_000_000
	end()
	timer.MsRecordTime(&frameTime)
	if frameTime != 4.5 {
		t.Fatalf("frame time with unresolved query:\nhave %v\nwant 4.5", frameTime)
	}
	dev.resolve(2)
	timer.MsRecordTime(&frameTime)
	if frameTime < 1.99 || frameTime > 2.01 {
		t.Fatalf("frame time:\nhave %v\nwant 2", frameTime)
	}
}

func TestSyncTimer(t *testing.T) {
	dev := &fakeDevice{}
	timer := NewSyncTimer(dev)
	timer.Begin()
	dev.clock += 50
	timer.End()
	dev.resolve(2)
	if ns := timer.Elapsed(); ns != 60 {
		t.Fatalf("SyncTimer.Elapsed:\nhave %v\nwant 60", ns)
	}
}
