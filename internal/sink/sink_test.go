package sink

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullWriteAccumulatesFrameCount(t *testing.T) {
	t.Parallel()

	n := NewNull()
	frames := make([]float32, 8)
	require.NoError(t, n.Write(frames, 2))
	require.NoError(t, n.Write(frames, 2))

	assert.Equal(t, int64(8), n.Health.FramesSent.Load(), "two 8-sample/2-channel writes must total 8 frames")
}

func TestHealthRecordXrunSetsTimestamp(t *testing.T) {
	t.Parallel()

	var h Health
	assert.Equal(t, int64(0), h.LastXrunAt.Load())
	h.recordXrun()
	assert.Equal(t, int64(1), h.Xruns.Load())
	assert.NotEqual(t, int64(0), h.LastXrunAt.Load())
}

func TestFloat32SliceAsBytesRoundTrips(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1, -1, 0.5}
	b := float32SliceAsBytes(in)
	assert.Len(t, b, len(in)*4)
	for i, want := range in {
		got := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		assert.Equal(t, want, got)
	}
}

func TestWavFileWritesHeaderAndCloses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	w, err := NewWavFile(path, 44100, 1, 16)
	require.NoError(t, err)

	frames := []float32{0, 0.5, -0.5, 1, -1}
	require.NoError(t, w.Write(frames, 1))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0), "encoder must have flushed a non-empty WAV file")
}

func TestNewWavFileRejectsUnwritablePath(t *testing.T) {
	t.Parallel()

	_, err := NewWavFile(filepath.Join(t.TempDir(), "missing-dir", "out.wav"), 44100, 1, 16)
	assert.Error(t, err)
}
