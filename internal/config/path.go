package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

const (
	appName       = "wscls"
	stateFileName = ".wscls.json"
)

// Dir returns the settings directory, honouring WSCLS_CONFIG_DIR.
func Dir() string {
	if override := os.Getenv("WSCLS_CONFIG_DIR"); override != "" {
		return override
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultStatePath is the dotfile in the user's home directory. An
// unresolvable home directory is the one fatal startup condition.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errdef.Wrap(errdef.CodeConfig, err, "resolve home directory")
	}
	return filepath.Join(home, stateFileName), nil
}

func HistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}

// LogPath resolves the log_file setting. Relative names live in Dir;
// an empty name means logging is discarded.
func LogPath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(Dir(), name)
}
