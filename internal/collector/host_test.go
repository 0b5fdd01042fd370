package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

func TestMemoryCollector(t *testing.T) {
	env := newTestEnv(t, nil)
	c, err := NewMemoryCollector("memory", nil, env.Env)
	require.NoError(t, err)

	got := c.Collect(context.Background())
	if got == nil {
		t.Skip("memory statistics not available")
	}

	assert.Equal(t, []string{"memory.used", "memory.total", "memory.available"}, names(got))
	assert.Greater(t, got[1].Value(), 0.0)
}

func TestUptimeCollector(t *testing.T) {
	env := newTestEnv(t, nil)
	c, err := NewUptimeCollector("uptime", nil, env.Env)
	require.NoError(t, err)

	got := c.Collect(context.Background())
	if got == nil {
		t.Skip("uptime not available")
	}

	assert.Equal(t, []string{"system.uptime", "system.boot_time"}, names(got))
}

func TestNetworkCollector_Cumulative(t *testing.T) {
	env := newTestEnv(t, nil)
	c, err := NewNetworkCollector("network", nil, env.Env)
	require.NoError(t, err)

	got := c.Collect(context.Background())
	if got == nil {
		t.Skip("network counters not available")
	}

	for _, m := range got {
		assert.Equal(t, metric.CumulativeCounter, m.Type())
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		cpu  float64
		want string
	}{
		{"R", 0, "r"},
		{"running", 0, "running"},
		{"Sleep", 0, "sleeping"},
		{"disk-sleep", 0, "sleeping"},
		{"parked", 0, "idle"},
		{"zombie", 0, "zombie"},
		{"", 1.5, "running"},
		{"", 0, "idle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeStatus(tt.raw, tt.cpu), tt.raw)
	}
}

func TestIsValidTemperature(t *testing.T) {
	assert.True(t, isValidTemperature(45))
	assert.True(t, isValidTemperature(maxValidTemp))
	assert.False(t, isValidTemperature(0))
	assert.False(t, isValidTemperature(-5))
	assert.False(t, isValidTemperature(151))
}

func TestDiskFilters(t *testing.T) {
	assert.True(t, skippedFSTypes["tmpfs"])
	assert.True(t, skippedFSTypes["nfs4"])
	assert.False(t, skippedFSTypes["ext4"])
	assert.True(t, isSystemMount("/System/Volumes/Data"))
	assert.False(t, isSystemMount("/home"))
}

func TestProcessCollector_TopLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	c, err := NewProcessCollector("processes", map[string]interface{}{"top": 2}, env.Env)
	require.NoError(t, err)

	got := c.Collect(context.Background())
	if got == nil {
		t.Skip("process list not available")
	}
	assert.LessOrEqual(t, len(got), 4)
	for _, m := range got {
		_, ok := m.Dimension("pid")
		assert.True(t, ok)
	}
}
