package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestNewJobSystemConfig(t *testing.T) {
	tests := []struct {
		name   string
		config JobSystemConfig
		want   error
	}{
		{"no workers", JobSystemConfig{Workers: 0, QueueSize: 4}, ErrNoWorkers},
		{"negative queue", JobSystemConfig{Workers: 1, QueueSize: -1}, ErrNegativeChannelSize},
		{"valid", JobSystemConfig{Workers: 2, QueueSize: 0}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js, err := NewJobSystem(&tt.config)
			if !errors.Is(err, tt.want) {
				t.Fatalf("have %v\nwant %v", err, tt.want)
			}
			if js != nil {
				js.Shutdown()
			}
		})
	}
}

func TestJobSystemRunsEveryJob(t *testing.T) {
	js, err := NewJobSystem(&JobSystemConfig{Workers: 4, QueueSize: 8})
	if err != nil {
		t.Fatal(err)
	}

	var (
		completed atomic.Int32
		failed    atomic.Int32
		wg        sync.WaitGroup
	)
	fail := errors.New("odd input")
	for i := 0; i < 32; i++ {
		wg.Add(1)
		job := metadata.NewJobTask(metadata.JOB_TYPE_GENERAL, i, func(input any) (any, error) {
			if input.(int)%2 == 1 {
				return nil, fail
			}
			return input.(int) * 2, nil
		})
		job.OnComplete = func(result any) {
			defer wg.Done()
			completed.Add(1)
		}
		job.OnFailure = func(err error) {
			defer wg.Done()
			if !errors.Is(err, fail) {
				t.Errorf("failure error:\nhave %v\nwant %v", err, fail)
			}
			failed.Add(1)
		}
		if err := js.Submit(job); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()
	if completed.Load() != 16 || failed.Load() != 16 {
		t.Fatalf("completed and failed:\nhave %d %d\nwant 16 16", completed.Load(), failed.Load())
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestJobSystemTrySubmitFull(t *testing.T) {
	js, err := NewJobSystem(&JobSystemConfig{Workers: 1, QueueSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	release := make(chan struct{})
	started := make(chan struct{})
	blocker := metadata.NewJobTask(metadata.JOB_TYPE_GENERAL, nil, func(any) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	noop := metadata.NewJobTask(metadata.JOB_TYPE_GENERAL, nil, func(any) (any, error) { return nil, nil })

	if err := js.Submit(blocker); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := js.TrySubmit(noop); err != nil {
		t.Fatalf("queue with room:\nhave %v\nwant nil", err)
	}
	if err := js.TrySubmit(noop); !errors.Is(err, core.ErrQueueFull) {
		t.Fatalf("full queue:\nhave %v\nwant %v", err, core.ErrQueueFull)
	}
	close(release)
	js.Shutdown()
}

func TestJobSystemClosed(t *testing.T) {
	js, err := NewJobSystem(&JobSystemConfig{Workers: 1, QueueSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
	// A second shutdown is a no-op.
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
	noop := metadata.NewJobTask(metadata.JOB_TYPE_GENERAL, nil, func(any) (any, error) { return nil, nil })
	if err := js.Submit(noop); !errors.Is(err, ErrJobSystemClosed) {
		t.Fatalf("submit:\nhave %v\nwant %v", err, ErrJobSystemClosed)
	}
	if err := js.TrySubmit(noop); !errors.Is(err, ErrJobSystemClosed) {
		t.Fatalf("try submit:\nhave %v\nwant %v", err, ErrJobSystemClosed)
	}
}
