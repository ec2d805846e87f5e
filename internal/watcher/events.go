// events.go implements fsnotify event handling for config and credential file changes.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

var newTimer = time.AfterFunc

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := normalizePath(event.Name)
	configOps := fsnotify.Write | fsnotify.Create | fsnotify.Rename
	isConfigEvent := w.configPath != "" && name == w.configPath && event.Op&configOps != 0
	authOps := fsnotify.Create | fsnotify.Write | fsnotify.Rename
	isRecordEvent := w.authDir != "" &&
		filepath.Dir(name) == w.authDir &&
		strings.HasSuffix(strings.ToLower(name), ".json") &&
		!strings.HasPrefix(filepath.Base(name), ".") &&
		event.Op&authOps != 0

	switch {
	case isConfigEvent:
		log.Debugf("config file change details - operation: %s", event.Op.String())
		w.scheduleConfigReload()
	case isRecordEvent:
		log.Debugf("credential file event: %s %s", event.Op.String(), filepath.Base(name))
		w.scheduleAuthNotify()
	}
}

func (w *Watcher) scheduleAuthNotify() {
	if w.authCallback == nil {
		return
	}
	w.authNotifyMu.Lock()
	defer w.authNotifyMu.Unlock()
	if w.authNotifyTimer != nil {
		w.authNotifyTimer.Stop()
	}
	w.authNotifyTimer = newTimer(authNotifyDebounce, func() {
		w.authNotifyMu.Lock()
		w.authNotifyTimer = nil
		w.authNotifyMu.Unlock()
		w.authCallback()
	})
}
