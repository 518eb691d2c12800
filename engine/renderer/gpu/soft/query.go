package soft

import "time"

// Query is a timestamp that becomes available a configurable number of
// frames after it was recorded.
type Query struct {
	dev       *Device
	value     uint64
	frame     uint64
	available bool
	recorded  bool
}

func (q *Query) Record() {
	q.value = uint64(time.Now().UnixNano())
	q.frame = q.dev.frame
	q.recorded = true
	q.available = q.dev.opts.QueryLatency == 0
	if !q.available {
		q.dev.unresolved = append(q.dev.unresolved, q)
	}
}

func (q *Query) Available() bool {
	return q.recorded && q.available
}

func (q *Query) Result() uint64 {
	return q.value
}
