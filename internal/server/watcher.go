package server

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDelay lets editors finish writing before templates are re-parsed.
const reloadDelay = 200 * time.Millisecond

// startTemplateWatcher reloads page templates when the override dir changes.
func (ms *MixtapeServer) startTemplateWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(ms.renderer.Dir()); err != nil {
		watcher.Close()
		return err
	}
	ms.mu.Lock()
	ms.watcher = watcher
	ms.mu.Unlock()

	go ms.watchTemplates(watcher)

	ms.logger.WithField("template_dir", ms.renderer.Dir()).Info("Template watcher started")
	return nil
}

// watchTemplates selects on watcher channels and coalesces bursts of events
// into one reload.
func (ms *MixtapeServer) watchTemplates(watcher *fsnotify.Watcher) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isTemplateEvent(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, ms.reloadTemplates)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ms.logger.WithError(err).Error("Template watcher error")
		}
	}
}

// isTemplateEvent ignores hidden, temporary and non-template files.
func isTemplateEvent(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, "~") {
		return false
	}
	if filepath.Ext(name) != ".html" {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}

func (ms *MixtapeServer) reloadTemplates() {
	if err := ms.renderer.Reload(); err != nil {
		ms.logger.WithError(err).Warn("Template reload failed, keeping previous templates")
		return
	}
	ms.logger.WithFields(logrus.Fields{
		"template_dir": ms.renderer.Dir(),
	}).Info("Templates reloaded")
}

// stopTemplateWatcher closes the watcher (idempotent).
func (ms *MixtapeServer) stopTemplateWatcher() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.watcher != nil {
		ms.watcher.Close()
		ms.watcher = nil
	}
}
