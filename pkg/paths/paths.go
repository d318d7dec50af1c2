package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const EnvSidecarLogDir = "SIDECAR_LOG_DIR"

// HomeDir returns the user's home directory, falling back to $HOME.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return os.Getenv("HOME")
	}
	return home
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home := HomeDir()
		if strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}

// InHome joins elem onto the home directory.
func InHome(elem ...string) string {
	return filepath.Join(append([]string{HomeDir()}, elem...)...)
}

// LogsBaseDir is where the network transport writes its JSONL log.
func LogsBaseDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvSidecarLogDir)); dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	return filepath.Join(".sidecar", "logs")
}

// SplitList splits an OS path list (":"-separated on unix), expanding "~"
// and dropping empty entries.
func SplitList(list string) []string {
	var out []string
	for _, p := range filepath.SplitList(list) {
		if p = ExpandHome(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
