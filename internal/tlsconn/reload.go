package tlsconn

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CertWatcher reloads a Context whenever its certificate, key or chain file
// changes on disk.
type CertWatcher struct {
	ctx     *Context
	watcher *fsnotify.Watcher
	files   map[string]bool
	logger  *slog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	onLoad  func(error)
}

// WatchCertificates starts watching the directories holding the context's
// certificate files. Directories are watched rather than files so that
// atomic rename-based replacement is picked up.
func WatchCertificates(ctx *Context, logger *slog.Logger) (*CertWatcher, error) {
	return watchCertificates(ctx, logger, nil)
}

func watchCertificates(ctx *Context, logger *slog.Logger, onLoad func(error)) (*CertWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tls: create watcher: %w", err)
	}

	cw := &CertWatcher{
		ctx:     ctx,
		watcher: w,
		files:   make(map[string]bool),
		logger:  logger.With("component", "tls-watcher"),
		done:    make(chan struct{}),
		onLoad:  onLoad,
	}
	dirs := make(map[string]bool)
	for _, f := range []string{ctx.cfg.CertFile, ctx.cfg.KeyFile, ctx.cfg.ChainFile} {
		if f == "" {
			continue
		}
		cw.files[filepath.Clean(f)] = true
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("tls: watch %s: %w", dir, err)
		}
	}

	cw.wg.Add(1)
	go cw.loop()
	return cw, nil
}

func (cw *CertWatcher) loop() {
	defer cw.wg.Done()
	for {
		select {
		case <-cw.done:
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.files[filepath.Clean(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("certificate watcher error", "error", err)
		}
	}
}

func (cw *CertWatcher) reload() {
	err := cw.ctx.Reload()
	if err != nil {
		// Key and certificate are often replaced one after the other; the
		// mismatch in between is expected and resolved by the next event.
		certificateReloads.WithLabelValues("error").Inc()
		cw.logger.Warn("certificate reload failed", "error", err)
	} else {
		certificateReloads.WithLabelValues("ok").Inc()
		cw.logger.Info("certificate reloaded", "cert", cw.ctx.cfg.CertFile)
	}
	if cw.onLoad != nil {
		cw.onLoad(err)
	}
}

// Close stops the watcher.
func (cw *CertWatcher) Close() error {
	close(cw.done)
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
