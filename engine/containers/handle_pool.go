package containers

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// HandlePool hands out the integers 0..capacity-1 for scarce per-effect GPU
// slots. Free handles live on a stack so the most recently released handle
// is the next one issued. A request on an empty pool returns -1.
type HandlePool[H constraints.Signed] struct {
	capacity int
	free     *Stack[H]
	active   []H
}

func NewHandlePool[H constraints.Signed](capacity int) *HandlePool[H] {
	p := &HandlePool[H]{
		capacity: capacity,
		free:     NewStack[H](capacity),
		active:   make([]H, 0, capacity),
	}
	// Push in reverse so the first request pops 0.
	for i := capacity - 1; i >= 0; i-- {
		p.free.Push(H(i))
	}
	return p
}

// Request pops a free handle, or returns -1 when the pool is exhausted.
func (p *HandlePool[H]) Request() H {
	h, ok := p.free.Pop()
	if !ok {
		return H(-1)
	}
	p.active = append(p.active, h)
	return h
}

// Release returns handle to the free stack. Releasing -1 or a handle that is
// not active does nothing.
func (p *HandlePool[H]) Release(handle H) {
	if handle < 0 {
		return
	}
	idx := slices.Index(p.active, handle)
	if idx < 0 {
		return
	}
	p.active = slices.Delete(p.active, idx, idx+1)
	p.free.Push(handle)
}

// Active returns the handles currently issued, in request order. The slice
// is owned by the pool.
func (p *HandlePool[H]) Active() []H {
	return p.active
}

func (p *HandlePool[H]) IsActive(handle H) bool {
	return handle >= 0 && slices.Contains(p.active, handle)
}

func (p *HandlePool[H]) Len() int {
	return len(p.active)
}

func (p *HandlePool[H]) Cap() int {
	return p.capacity
}

func (p *HandlePool[H]) Free() int {
	return p.free.Len()
}
