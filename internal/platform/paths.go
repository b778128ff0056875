package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// AppName names the per-user directories
const AppName = "davsync"

// ConfigDir returns the per-user configuration directory, falling back to
// ~/.config when the OS reports none
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName)
}

// StateDir returns where sync state files live
func StateDir() string {
	return filepath.Join(ConfigDir(), "state")
}

// LogDir returns the default directory for log files
func LogDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, AppName, "logs")
	}
	return filepath.Join(ConfigDir(), "logs")
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// NormalizePath expands ~ and cleans a local path for the current platform
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}
	normalized := filepath.Clean(ExpandHome(path))

	// On Windows, ensure UNC paths are preserved
	if runtime.GOOS == "windows" {
		if strings.HasPrefix(path, `\\`) && !strings.HasPrefix(normalized, `\\`) {
			normalized = `\\` + normalized
		}
	}

	return normalized
}

// IsUNCPath checks if a path is a UNC path (Windows network share)
func IsUNCPath(path string) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	return strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//")
}

// ValidatePath checks if a local path is usable on the current platform
func ValidatePath(path string) error {
	if path == "" {
		return &PathError{Path: path, Message: "path is empty"}
	}

	if runtime.GOOS == "windows" {
		rest := path
		if len(rest) >= 2 && rest[1] == ':' {
			rest = rest[2:]
		}
		for _, char := range []string{"<", ">", ":", "\"", "|", "?", "*"} {
			if strings.Contains(rest, char) && !IsUNCPath(path) {
				return &PathError{Path: path, Message: "path contains invalid character: " + char}
			}
		}
	}

	return nil
}

// PathError represents a path validation error
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return "invalid path '" + e.Path + "': " + e.Message
}
