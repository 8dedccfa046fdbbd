package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// PlatformDataDir returns the platform-specific data directory.
//
//   - macOS:   ~/Library/Application Support/pohwd/
//   - Linux:   ~/.local/share/pohwd/
//   - Windows: %APPDATA%\pohwd\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformRuntimeDir returns the platform-specific runtime directory
// for sockets.
//
//   - macOS:   /tmp/pohwd-$UID/
//   - Linux:   $XDG_RUNTIME_DIR/pohwd/ or /tmp/pohwd-$UID/
//   - Windows: "" (named pipes used instead)
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join("/tmp", "pohwd-"+getUserID())
	case "linux":
		return linuxRuntimeDir()
	case "windows":
		return ""
	default:
		return filepath.Join("/tmp", "pohwd-"+getUserID())
	}
}

func macOSDataDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", "Application Support", "pohwd")
}

func linuxDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "pohwd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pohwd")
}

func linuxRuntimeDir() string {
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "pohwd")
	}
	return filepath.Join("/tmp", "pohwd-"+getUserID())
}

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "pohwd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Roaming", "pohwd")
}

func fallbackDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pohwd")
}

func getUserID() string {
	if uid := os.Getuid(); uid >= 0 {
		return strconv.Itoa(uid)
	}
	return "0"
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory and the platform data
// directory for a config.<ext> file, returning the first match.
func FindConfigFile() string {
	searchDirs := []string{".", PlatformDataDir()}
	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
