package systems

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type AssetLoadSystemConfig struct {
	/** @brief Maximum number of files read from disk at the same time. */
	MaxInFlight int64
}

// AssetLoadResult is handed to the requester when Drain runs.
type AssetLoadResult struct {
	ID       uuid.UUID
	Name     string
	Resource *metadata.Resource
	Err      error
}

type FnOnAssetLoaded func(result AssetLoadResult)

type completedLoad struct {
	result   AssetLoadResult
	callback FnOnAssetLoaded
}

/**
 * @brief Decodes assets on the job system workers and hands the results
 * back on the render thread. Workers never touch the renderer: completed
 * loads are queued until Drain, which the host calls once per frame after
 * the render graph finished.
 */
type AssetLoadSystem struct {
	jobs   *JobSystem
	assets *assets.AssetManager
	sem    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mutex     sync.Mutex
	completed []completedLoad
	pending   int
	inFlight  sync.WaitGroup
}

func NewAssetLoadSystem(config *AssetLoadSystemConfig, js *JobSystem, am *assets.AssetManager) (*AssetLoadSystem, error) {
	if config.MaxInFlight <= 0 {
		return nil, fmt.Errorf("func NewAssetLoadSystem - config.MaxInFlight must be > 0")
	}
	if js == nil || am == nil {
		return nil, fmt.Errorf("func NewAssetLoadSystem - job system and asset manager are required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AssetLoadSystem{
		jobs:   js,
		assets: am,
		sem:    semaphore.NewWeighted(config.MaxInFlight),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

/**
 * @brief Queues an asynchronous load of an indexed asset.
 * @param name The asset name relative to the asset directory.
 * @param params Loader specific parameters, e.g. *metadata.ImageResourceParams.
 * @param onLoaded Called from Drain on the render thread.
 * @return The id of the load, also carried by its result.
 */
func (als *AssetLoadSystem) Load(name string, params any, onLoaded FnOnAssetLoaded) (uuid.UUID, error) {
	job := metadata.NewJobTask(metadata.JOB_TYPE_RESOURCE_LOAD, params, func(input any) (any, error) {
		if err := als.sem.Acquire(als.ctx, 1); err != nil {
			return nil, err
		}
		defer als.sem.Release(1)
		return als.assets.LoadAsset(name, input)
	})
	id := job.ID
	job.OnComplete = func(result any) {
		als.complete(completedLoad{
			result:   AssetLoadResult{ID: id, Name: name, Resource: result.(*metadata.Resource)},
			callback: onLoaded,
		})
	}
	job.OnFailure = func(err error) {
		als.complete(completedLoad{
			result:   AssetLoadResult{ID: id, Name: name, Err: err},
			callback: onLoaded,
		})
	}

	als.mutex.Lock()
	als.pending++
	als.mutex.Unlock()
	als.inFlight.Add(1)

	if err := als.jobs.Submit(job); err != nil {
		als.mutex.Lock()
		als.pending--
		als.mutex.Unlock()
		als.inFlight.Done()
		return uuid.Nil, fmt.Errorf("func Load - %s: %w", name, err)
	}
	return id, nil
}

func (als *AssetLoadSystem) complete(c completedLoad) {
	als.mutex.Lock()
	als.completed = append(als.completed, c)
	als.mutex.Unlock()
	als.inFlight.Done()
}

/**
 * @brief Runs the callbacks of every load completed since the last call,
 * in completion order. Must be called from the render thread.
 * @return The number of loads drained.
 */
func (als *AssetLoadSystem) Drain() int {
	als.mutex.Lock()
	done := als.completed
	als.completed = nil
	als.pending -= len(done)
	als.mutex.Unlock()

	for _, c := range done {
		if c.result.Err != nil {
			core.LogWarn("asset %s failed to load: %s", c.result.Name, c.result.Err)
		}
		if c.callback != nil {
			c.callback(c.result)
		}
	}
	return len(done)
}

// Pending returns the number of loads not yet drained.
func (als *AssetLoadSystem) Pending() int {
	als.mutex.Lock()
	defer als.mutex.Unlock()
	return als.pending
}

// Wait blocks until every submitted load finished on its worker. The
// results still need a Drain.
func (als *AssetLoadSystem) Wait() {
	als.inFlight.Wait()
}

// Shutdown fails loads still waiting for a read slot.
func (als *AssetLoadSystem) Shutdown() error {
	als.cancel()
	return nil
}
