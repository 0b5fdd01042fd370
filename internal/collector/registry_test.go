package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

func TestBuild_CanonicalName(t *testing.T) {
	c, err := Build("traceroute google", map[string]interface{}{
		"bin":    "/usr/bin/traceroute",
		"target": "google.com",
	}, Env{})
	require.NoError(t, err)

	assert.IsType(t, &TracerouteCollector{}, c)
	assert.Equal(t, "traceroute google", c.Name())
	assert.Equal(t, "google.com", c.Config().String("target"))
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build("bogus", nil, Env{})
	assert.ErrorIs(t, err, ErrUnknownCollector)

	_, err = Build("traceroute google", map[string]interface{}{"bin": "traceroute"}, Env{})
	var optErr *OptionError
	require.ErrorAs(t, err, &optErr)
	assert.Equal(t, "target", optErr.Option)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "traceroute", KindOf("traceroute google"))
	assert.Equal(t, "zoneinfo", KindOf("zoneinfo"))
	assert.Equal(t, "adhoc", KindOf("  adhoc  queue "))
}

func TestKinds_AllHaveDefaults(t *testing.T) {
	kinds := Kinds()
	assert.IsIncreasing(t, kinds)
	assert.Contains(t, kinds, "zoneinfo")
	assert.Contains(t, kinds, "traceroute")
	assert.Len(t, kinds, len(defaultConfigs))

	for _, kind := range kinds {
		opts, ok := DefaultConfigFor(kind)
		require.True(t, ok, kind)
		assert.True(t, opts.Bool("enabled", false), kind)
		assert.Equal(t, DefaultCollectionInterval, opts.Duration("interval", 0), kind)
	}
	_, ok := DefaultConfigFor("bogus")
	assert.False(t, ok)
}

func TestRegistry_SkipsDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	reg := NewRegistry(zap.New(core))

	on, err := Build("zoneinfo", nil, Env{})
	require.NoError(t, err)
	off, err := Build("zoneinfo other", map[string]interface{}{"enabled": false}, Env{})
	require.NoError(t, err)

	assert.True(t, reg.Register(on))
	assert.False(t, reg.Register(off))

	require.Len(t, reg.Collectors(), 1)
	assert.Equal(t, "zoneinfo", reg.Collectors()[0].Name())
	assert.Equal(t, 1, logs.FilterMessage("Collector disabled, skipping").Len())

}

func TestRegistry_CollectAllMarksAborted(t *testing.T) {
	env := newTestEnv(t, nil)
	reg := NewRegistry(nil)

	good, err := Build("zoneinfo", map[string]interface{}{
		"path": filepath.Join("testdata", "zoneinfo"),
	}, env.Env)
	require.NoError(t, err)
	bad, err := Build("zoneinfo missing", map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "absent"),
	}, env.Env)
	require.NoError(t, err)
	slow, err := Build("traceroute slow", map[string]interface{}{
		"bin": "traceroute", "target": "example.com", "timeout": "50ms",
	}, Env{Logger: env.Logger, Sink: env.Sink, Runner: &fakeRunner{block: true}})
	require.NoError(t, err)

	reg.Register(good)
	reg.Register(bad)
	reg.Register(slow)

	start := time.Now()
	results := reg.CollectAll(context.Background(), nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, results, 3)
	assert.Len(t, results["zoneinfo"], 12)
	assert.Nil(t, results["zoneinfo missing"])
	assert.Nil(t, results["traceroute slow"])
	assert.Equal(t, 12, env.sink.Len())
}

func TestRegistry_CollectAllUsesPassFunc(t *testing.T) {
	reg := NewRegistry(nil)
	c, err := Build("zoneinfo", map[string]interface{}{
		"path": filepath.Join("testdata", "zoneinfo"),
	}, Env{})
	require.NoError(t, err)
	reg.Register(c)

	var seen []string
	results := reg.CollectAll(context.Background(), func(ctx context.Context, c Collector) []metric.Metric {
		seen = append(seen, c.Name())
		return c.Collect(ctx)
	})

	assert.Equal(t, []string{"zoneinfo"}, seen)
	assert.Len(t, results["zoneinfo"], 12)
}
