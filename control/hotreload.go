// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Configuration file watching. Changes are debounced, then the file is
// reloaded and handed to the callback.

package control

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// DefaultReloadDelay is the debounce interval used when none is given.
const DefaultReloadDelay = 200 * time.Millisecond

// Watcher reloads a configuration file when it changes.
type Watcher struct {
	w      *fsnotify.Watcher
	path   string
	dir    string
	delay  time.Duration
	fn     func(*Config, error)
	logger log.FieldLogger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Watch starts watching path. The parent directory is watched so editors
// that replace the file are noticed too. fn receives the reloaded
// configuration, or the load error.
func Watch(path string, delay time.Duration, logger log.FieldLogger, fn func(*Config, error)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		w:      fw,
		path:   abs,
		dir:    filepath.Dir(abs),
		delay:  delay,
		fn:     fn,
		logger: logger.WithField("config", abs),
		done:   make(chan struct{}),
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// WatchStore reloads path into store on change.
func WatchStore(path string, store *ConfigStore, logger log.FieldLogger) (*Watcher, error) {
	var wlog log.FieldLogger = log.StandardLogger()
	if logger != nil {
		wlog = logger
	}
	return Watch(path, 0, logger, func(cfg *Config, err error) {
		if err == nil {
			err = store.SetConfig(cfg)
		}
		if err != nil {
			wlog.WithError(err).Warn("configuration reload rejected")
			return
		}
		wlog.WithField("config", path).Info("configuration reloaded")
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.WithField("op", ev.Op.String()).Debug("configuration file changed")
			w.schedule()
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	cfg, err := Load(w.path)
	w.fn(cfg, err)
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	var errs *multierror.Error
	if err := w.w.Remove(w.dir); err != nil {
		errs = multierror.Append(errs, err)
	}
	close(w.done)
	if err := w.w.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	w.wg.Wait()
	return errs.ErrorOrNil()
}
