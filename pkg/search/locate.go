package search

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// ErrBrowserNotFound is returned when no compatible browser executable is
// installed. Callers surface this as a configuration error, not a crash.
var ErrBrowserNotFound = errors.New("no compatible browser found (install Google Chrome or Microsoft Edge)")

// chromePaths returns well-known Chrome install locations for the current
// platform. Chrome is preferred over Edge.
func chromePaths() []string {
	switch runtime.GOOS {
	case "windows":
		home, _ := os.UserHomeDir()
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			filepath.Join(home, `AppData\Local\Google\Chrome\Application\chrome.exe`),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
		}
	}
}

// edgePaths returns well-known Edge install locations for the current
// platform, used as the fallback when Chrome is absent.
func edgePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		}
	case "darwin":
		return []string{
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	default:
		return []string{
			"/usr/bin/microsoft-edge",
			"/usr/bin/microsoft-edge-stable",
		}
	}
}

// FindBrowser returns the path of the first installed compatible browser,
// checking Chrome locations before Edge locations.
func FindBrowser() (string, error) {
	return findBrowser(append(chromePaths(), edgePaths()...))
}

func findBrowser(candidates []string) (string, error) {
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrBrowserNotFound
}
