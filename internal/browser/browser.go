// Package browser opens the OAuth setup page on the local desktop and copies the
// authorization URL to the clipboard, for the cases where the operator sits at the
// machine running the listener.
package browser

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// OpenURL opens the specified URL in the default web browser.
// It first attempts open-golang and falls back to platform-specific commands.
//
// Parameters:
//   - url: The URL to open.
//
// Returns:
//   - An error if the URL cannot be opened, otherwise nil.
func OpenURL(url string) error {
	if IsHeadless(os.LookupEnv) {
		return fmt.Errorf("browser: no display available")
	}
	err := open.Start(url)
	if err == nil {
		log.Debug("browser: opened URL using open-golang")
		return nil
	}
	log.Debugf("browser: open-golang failed: %v, trying platform-specific commands", err)
	return openURLPlatformSpecific(url)
}

func openURLPlatformSpecific(url string) error {
	name, args, err := platformCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(name, append(args, url)...)
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("browser: start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// platformCommand picks the launcher for goos. lookPath is exec.LookPath outside tests.
func platformCommand(goos string, lookPath func(string) (string, error)) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", nil, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		for _, candidate := range linuxBrowsers {
			if _, err := lookPath(candidate); err == nil {
				return candidate, nil, nil
			}
		}
		return "", nil, fmt.Errorf("browser: no suitable browser found")
	default:
		return "", nil, fmt.Errorf("browser: unsupported operating system: %s", goos)
	}
}

// IsHeadless reports whether a Unix-like session has no graphical display, which is the
// usual situation inside containers and SSH sessions.
func IsHeadless(lookupEnv func(string) (string, bool)) bool {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return false
	}
	for _, key := range []string{"DISPLAY", "WAYLAND_DISPLAY"} {
		if v, ok := lookupEnv(key); ok && v != "" {
			return false
		}
	}
	return true
}

// CopyToClipboard places text on the system clipboard.
func CopyToClipboard(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("browser: clipboard not supported on this system")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("browser: write clipboard: %w", err)
	}
	return nil
}
