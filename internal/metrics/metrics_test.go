package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTicksTotalIncrements(t *testing.T) {
	before := testutil.ToFloat64(TicksTotal)
	TicksTotal.Inc()
	after := testutil.ToFloat64(TicksTotal)
	assert.Equal(t, before+1, after)
}

func TestSetPlayerStateActivatesExactlyOneLabel(t *testing.T) {
	states := []string{"idle", "playing", "paused", "stopped"}
	SetPlayerState(states, "playing")

	assert.Equal(t, 1.0, testutil.ToFloat64(PlayerState.WithLabelValues("playing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(PlayerState.WithLabelValues("idle")))
	assert.Equal(t, 0.0, testutil.ToFloat64(PlayerState.WithLabelValues("paused")))
	assert.Equal(t, 0.0, testutil.ToFloat64(PlayerState.WithLabelValues("stopped")))

	SetPlayerState(states, "stopped")
	assert.Equal(t, 0.0, testutil.ToFloat64(PlayerState.WithLabelValues("playing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PlayerState.WithLabelValues("stopped")))
}

func TestPlayerTickGaugeSettable(t *testing.T) {
	PlayerTick.Set(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(PlayerTick))
}
