// config_reload.go implements debounced configuration hot reload.
package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/router-for-me/oauth-callback/internal/config"
	"github.com/router-for-me/oauth-callback/internal/util"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) scheduleConfigReload() {
	w.configReloadMu.Lock()
	defer w.configReloadMu.Unlock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
	}
	w.configReloadTimer = newTimer(configReloadDebounce, func() {
		w.configReloadMu.Lock()
		w.configReloadTimer = nil
		w.configReloadMu.Unlock()
		w.reloadConfigIfChanged()
	})
}

func (w *Watcher) reloadConfigIfChanged() {
	newHash, err := fileHash(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if newHash == "" {
		log.Debugf("ignoring empty config file write event")
		return
	}

	w.mu.RLock()
	currentHash := w.lastConfigHash
	w.mu.RUnlock()
	if currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}

	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.mu.Lock()
		w.lastConfigHash = newHash
		w.mu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	newConfig, errLoad := config.LoadConfig(w.configPath)
	if errLoad != nil {
		log.Errorf("failed to reload config: %v", errLoad)
		return false
	}
	if errEnv := newConfig.ApplyEnv(w.lookupEnv); errEnv != nil {
		log.Warnf("config reload: %v", errEnv)
	}
	if resolved, errResolve := util.ResolveAuthDir(newConfig.AuthDir); errResolve != nil {
		log.Warnf("config reload: %v", errResolve)
	} else {
		newConfig.AuthDir = resolved
	}

	w.mu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.mu.Unlock()

	util.SetLogLevel(newConfig)
	if oldConfig != nil {
		if oldConfig.Debug != newConfig.Debug {
			log.Debugf("log level updated - debug mode changed from %t to %t", oldConfig.Debug, newConfig.Debug)
		}
		if oldConfig.Host != newConfig.Host || oldConfig.Port != newConfig.Port {
			log.Warn("config reload: host and port changes take effect after restart")
		}
		if oldConfig.AuthDir != newConfig.AuthDir {
			log.Warn("config reload: auth-dir changes take effect after restart")
		}
	}

	if w.reloadCallback != nil {
		w.reloadCallback(newConfig)
	}
	log.Infof("config successfully reloaded")
	return true
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
