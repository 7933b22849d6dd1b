package monitor

import (
	"os"
	"path/filepath"

	"github.com/gndl/talkgraph/internal/conf"
)

// GetCriticalPaths returns filesystem paths critical to the engine's
// operation that should be automatically monitored for disk usage, in
// addition to whatever the user configured explicitly. These are added at
// runtime and are not persisted back to config.yaml.
func GetCriticalPaths(settings *conf.Settings) []string {
	paths := make([]string, 0)

	// Always monitor root filesystem
	paths = append(paths, "/")

	// Add the directory holding the active session file, if any
	if settings.Session.Path != "" {
		sessionDir := filepath.Dir(resolvePath(settings.Session.Path))
		if sessionDir != "." && sessionDir != "" {
			paths = append(paths, sessionDir)
		}
	}

	// Add config directory
	if configPath, err := conf.FindConfigFile(); err == nil {
		configDir := filepath.Dir(configPath)
		if configDir != "." && configDir != "" {
			paths = append(paths, configDir)
		}
	}

	// If running in a container, the standard volume mount points matter
	// even when the user never named them explicitly.
	if conf.RunningInContainer() {
		paths = append(paths, "/data", "/config")
	}

	return deduplicatePaths(paths)
}

// resolvePath converts a relative path to an absolute path, expanding
// environment variables along the way.
func resolvePath(path string) string {
	path = os.ExpandEnv(path)
	path = filepath.Clean(path)

	if !filepath.IsAbs(path) {
		if absPath, err := filepath.Abs(path); err == nil {
			path = absPath
		}
	}

	return path
}

// deduplicatePaths removes duplicate paths and returns unique, cleaned paths
func deduplicatePaths(paths []string) []string {
	seen := make(map[string]bool)
	unique := make([]string, 0)

	for _, path := range paths {
		cleaned := filepath.Clean(path)

		if cleaned == "" || cleaned == "." {
			continue
		}

		if !filepath.IsAbs(cleaned) {
			if absPath, err := filepath.Abs(cleaned); err == nil {
				cleaned = absPath
			}
		}

		if !seen[cleaned] {
			seen[cleaned] = true
			unique = append(unique, cleaned)
		}
	}

	return unique
}

// mergePaths combines user-configured paths with auto-detected critical paths
func mergePaths(configured, critical []string) []string {
	allPaths := make([]string, len(configured))
	copy(allPaths, configured)
	allPaths = append(allPaths, critical...)
	return deduplicatePaths(allPaths)
}

// GetMonitoringPathsInfo returns information about configured and
// auto-detected disk-monitoring paths.
func GetMonitoringPathsInfo(settings *conf.Settings) (configured, autoDetected, merged []string) {
	configured = settings.Monitor.DiskPaths
	autoDetected = GetCriticalPaths(settings)
	merged = mergePaths(configured, autoDetected)
	return configured, autoDetected, merged
}
