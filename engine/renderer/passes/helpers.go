// Package passes holds the render passes of the deferred pipeline and the
// cascade fitting used by the shadow pass.
package passes

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/timers"
)

// PassStats is embedded in every data block.
type PassStats struct {
	FrameTimeMs float32
}

// FrameTime returns the last resolved GPU time of the pass in milliseconds.
func (s *PassStats) FrameTime() float32 { return s.FrameTimeMs }

// FrameTimer is satisfied by the data block of every pass in this package.
type FrameTimer interface {
	FrameTime() float32
}

// SettingsReceiver is implemented by passes configured from the settings
// file. Settings queued here are applied by the next UpdatePassData.
type SettingsReceiver interface {
	QueueSettings(s *config.Settings)
}

// settingsQueue hands settings from the reload goroutine to the render
// loop. Only the latest pushed value is kept.
type settingsQueue[T any] struct {
	mutex   sync.Mutex
	pending *T
}

func (q *settingsQueue[T]) push(v T) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.pending = &v
}

func (q *settingsQueue[T]) pop() (T, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.pending == nil {
		var zero T
		return zero, false
	}
	v := *q.pending
	q.pending = nil
	return v, true
}

// programSet looks programs up and keeps the first failure, so OnInit can
// fetch every program before checking for an error once.
type programSet struct {
	cache gpu.ShaderCache
	err   error
}

func (s *programSet) get(name string) gpu.Program {
	if s.err != nil {
		return nil
	}
	p, err := s.cache.Program(name)
	if err != nil {
		s.err = fmt.Errorf("program %q: %w", name, err)
	}
	return p
}

func groups(n uint32, size int) int {
	return int(math.CeilDiv(n, uint32(size)))
}

func timerCapacity(s *config.Settings) int {
	if s == nil {
		return config.Default().Timers.RingCapacity
	}
	return s.Timers.RingCapacity
}

func newTimer(dev gpu.Device, s *config.Settings) *timers.AsyncTimer {
	return timers.NewAsyncTimer(dev, timerCapacity(s))
}

func settingsOrDefault(s *config.Settings) *config.Settings {
	if s == nil {
		return config.Default()
	}
	return s
}
