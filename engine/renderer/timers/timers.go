// Package timers measures GPU time spent between two points of the command
// stream using timestamp queries.
package timers

import (
	"runtime"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// NotReady is returned by the elapsed-time queries while no result is
// available.
const NotReady int64 = -1

// SyncTimer stalls until its queries resolve. Keep it for one-off profiling.
type SyncTimer struct {
	start gpu.Query
	end   gpu.Query
}

func NewSyncTimer(dev gpu.Device) *SyncTimer {
	return &SyncTimer{start: dev.NewQuery(), end: dev.NewQuery()}
}

func (t *SyncTimer) Begin() { t.start.Record() }
func (t *SyncTimer) End() { t.end.Record() }

// Elapsed spins until both timestamps are available and returns the
// nanoseconds between them.
func (t *SyncTimer) Elapsed() int64 {
	for !t.start.Available() || !t.end.Available() {
		runtime.Gosched()
	}
	return int64(t.end.Result() - t.start.Result())
}

func (t *SyncTimer) MsRecordTime(out *float32) {
	*out = float32(t.Elapsed()) / 1e6
}

type queryPair struct {
	start gpu.Query
	end   gpu.Query
}

// AsyncTimer keeps up to capacity begin/end pairs in flight and never
// blocks. A Begin/End issued while every pair is in flight is dropped.
type AsyncTimer struct {
	pairs    []queryPair
	next     int
	inFlight *containers.RingQueue[*queryPair]
	open     bool
}

func NewAsyncTimer(dev gpu.Device, capacity int) *AsyncTimer {
	if capacity < 1 {
		capacity = 1
	}
	t := &AsyncTimer{
		pairs:    make([]queryPair, capacity),
		inFlight: containers.NewRingQueue[*queryPair](capacity),
	}
	for i := range t.pairs {
		t.pairs[i] = queryPair{start: dev.NewQuery(), end: dev.NewQuery()}
	}
	return t
}

func (t *AsyncTimer) Begin() {
	if t.inFlight.IsFull() {
		return
	}
	t.pairs[t.next].start.Record()
	t.open = true
}

func (t *AsyncTimer) End() {
	if !t.open || t.inFlight.IsFull() {
		return
	}
	t.open = false
	p := &t.pairs[t.next]
	p.end.Record()
	_ = t.inFlight.Enqueue(p)
	t.next = (t.next + 1) % len(t.pairs)
}

// Scoped begins timing and returns End, for use with defer.
func (t *AsyncTimer) Scoped() func() {
	t.Begin()
	return t.End
}

// Drain returns the elapsed nanoseconds of the oldest pair if its queries
// resolved, removing it from flight. Otherwise it returns NotReady.
func (t *AsyncTimer) Drain() int64 {
	p, err := t.inFlight.Peek()
	if err != nil {
		return NotReady
	}
	if !p.start.Available() || !p.end.Available() {
		return NotReady
	}
	_, _ = t.inFlight.Dequeue()
	return int64(p.end.Result() - p.start.Result())
}

// MsRecordTime writes the drained result in milliseconds, leaving *out
// untouched when nothing is ready.
func (t *AsyncTimer) MsRecordTime(out *float32) {
	ns := t.Drain()
	if ns == NotReady {
		return
	}
	*out = float32(ns) / 1e6
}

func (t *AsyncTimer) InFlight() int {
	return t.inFlight.Len()
}

func (t *AsyncTimer) Capacity() int {
	return len(t.pairs)
}
