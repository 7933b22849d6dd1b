// Package conf loads and holds the engine's runtime configuration: audio
// format defaults, sink tuning, the control surface bind address, and the
// optional telemetry/notification/remote-storage integrations.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the root configuration tree, unmarshaled from YAML by viper
// and overridable by environment variables and CLI flags.
type Settings struct {
	Debug bool // true to enable debug-level logging

	Audio struct {
		SampleRate int // samples per second, e.g. 44100
		ChunkSize  int // samples pulled per scheduler tick
		Channels   int // output channel count (K in the mixer fan-out)
	}

	Sink struct {
		Device struct {
			RingCapacityChunks int // SPSC ring capacity, in chunks
			XrunMaxRetries     int // bounded retries before an xrun is logged
			XrunRetryDelayMs   int // sleep increment between retries
		}
		File struct {
			DefaultCodec         string // "wav"
			DefaultSampleRate    int
			DefaultChannelLayout string // "mono", "stereo", "5.1"
		}
	}

	Control struct {
		Enabled bool
		Listen  string // host:port for the HTTP control surface

		Auth struct {
			Enabled       bool
			SessionSecret string // cookie-store signing key for gorilla/sessions
			Username      string // HTTP basic auth fallback for non-browser clients
			PasswordHash  string // sha256 hex digest, compared with subtle.ConstantTimeCompare

			OAuth struct {
				Provider     string // goth provider name, e.g. "google"; empty disables social login
				ClientID     string
				ClientSecret string
				RedirectURL  string
			}

			LoginRatePerSecond float64 // token-bucket rate for /login and /api/v1/auth/*
		}
	}

	Session struct {
		Path string // session file loaded at startup, if any
	}

	Telemetry struct {
		Enabled bool
		DSN     string // Sentry DSN; empty disables reporting even if Enabled
	}

	Monitor struct {
		Enabled               bool
		IntervalSeconds       int
		CPUWarnPercent        float64
		CPUCritPercent        float64
		MemoryWarnPercent     float64
		MemoryCritPercent     float64
		DiskWarnPercent       float64
		DiskCritPercent       float64
		DiskPaths             []string // extra paths to watch, beyond the auto-detected ones
		HysteresisPercent     float64  // how far below a threshold usage must drop before recovery fires
		CriticalResendMinutes int      // resend interval for a standing critical alert
	}

	Notify struct {
		MQTT struct {
			Enabled  bool
			Broker   string
			Topic    string
			ClientID string
		}
		Webhook struct {
			Enabled bool
			URL     string // a shoutrrr service URL
		}
	}

	Remote struct {
		SFTP struct {
			Enabled bool
			Host    string
			Port    int
			User    string
			KeyPath string
		}
	}

	// History persists a row per transport/session event (play, stop,
	// record, load) to a SQL database, for an operator auditing how a
	// deployed engine has been driven over time.
	History struct {
		Enabled bool
		Driver  string // "sqlite" (default) or "mysql"
		SQLite  struct {
			Path string
		}
		MySQL struct {
			Host     string
			Port     string
			User     string
			Password string
			Database string
		}
	}
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment overlay, and defaults into
// a new Settings value and makes it the process-global instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	validateSettings(settings)

	settingsInstance = settings
	return settings, nil
}

// initViper wires viper's default values, config-file search paths and the
// embedded fallback config, following the same precedence the CLI flags in
// cmd/ bind against afterward: flag > env > file > embedded default.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("TALKGRAPH")
	viper.AutomaticEnv()

	configPaths, err := DefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config.yaml to the first
// default config path so that subsequent runs find and can edit it.
func createDefaultConfig() error {
	configPaths, err := DefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// GetSettings returns the process-global settings instance, or nil if Load
// has not been called yet.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
