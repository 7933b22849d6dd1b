package conf

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettingsFillsZeroAudioDefaults(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	validateSettings(s)

	assert.Equal(t, 44100, s.Audio.SampleRate)
	assert.Equal(t, 512, s.Audio.ChunkSize)
	assert.Equal(t, 2, s.Audio.Channels)
	assert.Equal(t, 8, s.Sink.Device.RingCapacityChunks)
	assert.Equal(t, 5, s.Sink.Device.XrunMaxRetries)
	assert.Equal(t, "wav", s.Sink.File.DefaultCodec)
	assert.Equal(t, "127.0.0.1:8090", s.Control.Listen)
}

func TestValidateSettingsPreservesExplicitValues(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	s.Audio.SampleRate = 48000
	s.Audio.ChunkSize = 1024
	s.Audio.Channels = 6
	s.Control.Listen = "0.0.0.0:9000"
	validateSettings(s)

	assert.Equal(t, 48000, s.Audio.SampleRate)
	assert.Equal(t, 1024, s.Audio.ChunkSize)
	assert.Equal(t, 6, s.Audio.Channels)
	assert.Equal(t, "0.0.0.0:9000", s.Control.Listen)
}

func TestDefaultConfigPathsIncludesTalkgraphDir(t *testing.T) {
	t.Parallel()

	paths, err := DefaultConfigPaths()
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	found := false
	for _, p := range paths {
		if filepath.Base(p) == "talkgraph" || filepath.Base(filepath.Dir(p)) == "talkgraph" {
			found = true
		}
	}
	assert.True(t, found, "expected a talkgraph-named config directory in %v", paths)

	if runtime.GOOS != "windows" {
		assert.Contains(t, paths, "/etc/talkgraph")
	}
}

func TestFindConfigFileErrorsWhenAbsent(t *testing.T) {
	// Not parallel: t.Setenv cannot be used in a parallel test.
	t.Setenv("HOME", t.TempDir())
	_, err := FindConfigFile()
	assert.Error(t, err)
}

func TestRunningInContainerDoesNotPanic(t *testing.T) {
	t.Parallel()

	// This test environment is not expected to carry /.dockerenv; the
	// function must not panic either way.
	_ = RunningInContainer()
}

func TestGetSettingsNilBeforeLoad(t *testing.T) {
	// Not parallel: shares the package-level settingsInstance with other
	// tests that might call Load.
	settingsMutex.Lock()
	prior := settingsInstance
	settingsInstance = nil
	settingsMutex.Unlock()
	defer func() {
		settingsMutex.Lock()
		settingsInstance = prior
		settingsMutex.Unlock()
	}()

	assert.Nil(t, GetSettings())
}
