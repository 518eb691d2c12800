package containers

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
)

func TestRingQueue(t *testing.T) {
	rq := NewRingQueue[int](3)
	if !rq.IsEmpty() {
		t.Fatal("RingQueue.IsEmpty:\nhave false\nwant true")
	}
	if _, err := rq.Dequeue(); !errors.Is(err, core.ErrQueueEmpty) {
		t.Fatalf("RingQueue.Dequeue:\nhave %v\nwant %v", err, core.ErrQueueEmpty)
	}
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("RingQueue.Enqueue(%d): %v", i, err)
		}
	}
	if err := rq.Enqueue(4); !errors.Is(err, core.ErrQueueFull) {
		t.Fatalf("RingQueue.Enqueue on full queue:\nhave %v\nwant %v", err, core.ErrQueueFull)
	}
	if v, _ := rq.Peek(); v != 1 {
		t.Fatalf("RingQueue.Peek:\nhave %v\nwant 1", v)
	}
	if v, _ := rq.Dequeue(); v != 1 {
		t.Fatalf("RingQueue.Dequeue:\nhave %v\nwant 1", v)
	}
	if err := rq.Enqueue(4); err != nil {
		t.Fatalf("RingQueue.Enqueue after wrap: %v", err)
	}
	for _, want := range []int{2, 3, 4} {
		if v, _ := rq.Dequeue(); v != want {
			t.Fatalf("RingQueue.Dequeue:\nhave %v\nwant %v", v, want)
		}
	}
	if n := rq.Len(); n != 0 {
		t.Fatalf("RingQueue.Len:\nhave %v\nwant 0", n)
	}
}

func TestStack(t *testing.T) {
	s := NewStack[string](2)
	s.Push("a")
	s.Push("b")
	if v, _ := s.Peek(); v != "b" {
		t.Fatalf("Stack.Peek:\nhave %v\nwant b", v)
	}
	if v, ok := s.Pop(); !ok || v != "b" {
		t.Fatalf("Stack.Pop:\nhave %v, %v\nwant b, true", v, ok)
	}
	s.Pop()
	if _, ok := s.Pop(); ok {
		t.Fatal("Stack.Pop on empty stack:\nhave true\nwant false")
	}
}
