// Package watcher watches the config file and the credential directory and triggers hot reloads.
// It supports cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/oauth-callback/internal/config"
	log "github.com/sirupsen/logrus"
)

// Watcher manages file watching for the configuration file and the credential directory.
type Watcher struct {
	configPath string
	authDir    string
	lookupEnv  func(string) (string, bool)

	mu             sync.RWMutex
	config         *config.Config
	lastConfigHash string

	configReloadMu    sync.Mutex
	configReloadTimer *time.Timer
	authNotifyMu      sync.Mutex
	authNotifyTimer   *time.Timer

	reloadCallback func(*config.Config)
	authCallback   func()
	watcher        *fsnotify.Watcher
}

const (
	configReloadDebounce = 150 * time.Millisecond
	authNotifyDebounce   = 250 * time.Millisecond
)

// NewWatcher creates a new file watcher instance. authDir may be empty when the
// credential store is not file based. reloadCallback receives every successfully
// reloaded configuration; authCallback fires after record files appear or change.
func NewWatcher(configPath, authDir string, reloadCallback func(*config.Config), authCallback func()) (*Watcher, error) {
	watcher, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	return &Watcher{
		configPath:     normalizePath(configPath),
		authDir:        normalizePath(authDir),
		lookupEnv:      os.LookupEnv,
		reloadCallback: reloadCallback,
		authCallback:   authCallback,
		watcher:        watcher,
	}, nil
}

// Start begins watching. The config file's parent directory is watched so editors that
// replace the file atomically are still observed.
func (w *Watcher) Start(ctx context.Context) error {
	if w.configPath != "" {
		dir := filepath.Dir(w.configPath)
		if errAdd := w.watcher.Add(dir); errAdd != nil {
			log.Errorf("failed to watch config directory %s: %v", dir, errAdd)
			return errAdd
		}
		log.Debugf("watching config file: %s", w.configPath)
		if hash, errHash := fileHash(w.configPath); errHash == nil {
			w.mu.Lock()
			w.lastConfigHash = hash
			w.mu.Unlock()
		}
	}
	if w.authDir != "" {
		if errAdd := w.watcher.Add(w.authDir); errAdd != nil {
			log.Errorf("failed to watch credential directory %s: %v", w.authDir, errAdd)
			return errAdd
		}
		log.Debugf("watching credential directory: %s", w.authDir)
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops the file watcher
func (w *Watcher) Stop() error {
	w.configReloadMu.Lock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
		w.configReloadTimer = nil
	}
	w.configReloadMu.Unlock()
	w.authNotifyMu.Lock()
	if w.authNotifyTimer != nil {
		w.authNotifyTimer.Stop()
		w.authNotifyTimer = nil
	}
	w.authNotifyMu.Unlock()
	return w.watcher.Close()
}

// SetConfig updates the current configuration
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		trimmed = abs
	}
	return filepath.Clean(trimmed)
}
