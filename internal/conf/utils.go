package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPaths returns the OS-appropriate directories viper should
// search for config.yaml, in search order: on Windows the executable
// directory then the roaming AppData folder, elsewhere ~/.config/talkgraph
// then /etc/talkgraph.
func DefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("error fetching executable path: %w", err)
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "talkgraph"),
		}, nil
	default:
		return []string{
			filepath.Join(homeDir, ".config", "talkgraph"),
			"/etc/talkgraph",
		}, nil
	}
}

// FindConfigFile returns the path of the config.yaml actually in use, by
// searching DefaultConfigPaths in order.
func FindConfigFile() (string, error) {
	paths, err := DefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, dir := range paths {
		candidate := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no config.yaml found under %v", paths)
}

// RunningInContainer reports whether the process appears to be running
// inside a container, by checking for the conventional marker file.
func RunningInContainer() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
