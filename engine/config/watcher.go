package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/lumen/engine/core"
)

type FnOnReload func(s *Settings)

// Watcher reloads a settings file whenever it is written. Editors that save
// by rename are handled by watching the parent directory.
type Watcher struct {
	path     string
	onReload FnOnReload

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup

	mutex    sync.Mutex
	isClosed bool
	current  *Settings
	reloads  int
}

func NewWatcher(path string, initial *Settings, onReload FnOnReload) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("func NewWatcher - %w", err)
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("func NewWatcher - %w", err)
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, fmt.Errorf("func NewWatcher - failed to watch %s: %w", filepath.Dir(abs), err)
	}
	w := &Watcher{
		path:     abs,
		onReload: onReload,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		current:  initial,
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Current returns the last settings that parsed successfully.
func (w *Watcher) Current() *Settings {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.current
}

func (w *Watcher) Reloads() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.reloads
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return errors.New("settings watcher already closed")
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case e, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("settings watcher: %s", e.Error())

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		// A half-written file fails to parse; the next write event retries.
		core.LogWarn("settings reload skipped: %s", err)
		return
	}

	w.mutex.Lock()
	w.current = s
	w.reloads++
	w.mutex.Unlock()

	core.LogInfo("settings reloaded from %s", w.path)
	if w.onReload != nil {
		w.onReload(s)
	}
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_SETTINGS_RELOADED,
		Data: s,
	})
}
