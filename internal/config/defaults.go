package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/dabflow/
//   - Linux:   ~/.local/share/dabflow/
//   - Windows: %APPDATA%\dabflow\
//
// Falls back to ~/.dabflow on other systems.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "dabflow")
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
// macOS and Windows keep config next to data.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	case "darwin", "windows":
		return PlatformDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/dabflow/
//   - Linux:   ~/.local/state/dabflow/
//   - Windows: %LOCALAPPDATA%\dabflow\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "dabflow")
	case "linux":
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	case "windows":
		return filepath.Join(windowsDir("LOCALAPPDATA", "Local"), "logs")
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// xdgDir resolves an XDG base directory, falling back to the given
// path under the home directory.
func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, "dabflow")
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, "dabflow")...)
}

func windowsDir(env, appData string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, "dabflow")
	}
	return filepath.Join(homeDir(), "AppData", appData, "dabflow")
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), ".dabflow")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory and then the config
// directory for config.<ext>. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
