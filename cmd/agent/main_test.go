package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/Guliveer/vitalis/metricd/internal/config"
	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"metricd"}, args...))
	return out.String(), err
}

func writeAgentConfig(t *testing.T, zonePath string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "logging:\n  level: error\ncollectors:\n  zoneinfo:\n    path: " + zonePath + "\n"
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestList_PrintsDefaults(t *testing.T) {
	out, err := runApp(t, "list")
	require.NoError(t, err)

	var parsed map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "/proc/zoneinfo", parsed["zoneinfo"]["path"])
	assert.Equal(t, "RoundTripTime", parsed["traceroute"]["metric_name"])
	assert.Equal(t, "/etc/nerve/nerve.conf.json", parsed["nerveuwsgi"]["config_path"])
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")

	_, err := runApp(t, "init", "--output", path)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	_, err = runApp(t, "init", "--output", path)
	assert.Error(t, err, "refuses to overwrite without --force")

	_, err = runApp(t, "init", "--output", path, "--force")
	assert.NoError(t, err)
}

func TestCollect_PrintsJSONArray(t *testing.T) {
	zone := filepath.Join(t.TempDir(), "zoneinfo")
	require.NoError(t, os.WriteFile(zone, []byte("Node 0, zone DMA\n  pages free 1\n min 2\n low 3\n high 4\n"), 0o644))

	out, err := runApp(t, "--config", writeAgentConfig(t, zone), "collect", "zoneinfo")
	require.NoError(t, err)

	metrics, err := metric.DecodeBatch([]byte(out))
	require.NoError(t, err)
	require.Len(t, metrics, 4)
	assert.Equal(t, "node0-zone-DMA-free", metrics[0].Name())
}

func TestCollect_AddsDefaultDimensions(t *testing.T) {
	dir := t.TempDir()
	zone := filepath.Join(dir, "zoneinfo")
	require.NoError(t, os.WriteFile(zone, []byte("Node 0, zone DMA\n  pages free 1\n"), 0o644))
	cfg := "logging:\n  level: error\ndefault_dimensions:\n  host: dev33\ncollectors:\n  zoneinfo:\n    path: " + zone + "\n"
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := runApp(t, "--config", cfgPath, "collect", "zoneinfo")
	require.NoError(t, err)

	metrics, err := metric.DecodeBatch([]byte(out))
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, map[string]string{"host": "dev33"}, metrics[0].Dimensions())
}

func TestCollect_AbortedPassFails(t *testing.T) {
	cfgPath := writeAgentConfig(t, filepath.Join(t.TempDir(), "absent"))

	out, err := runApp(t, "--config", cfgPath, "collect", "zoneinfo")

	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, out, "[]")
}

func TestCollect_UnknownCollector(t *testing.T) {
	cfgPath := writeAgentConfig(t, "/proc/zoneinfo")

	_, err := runApp(t, "--config", cfgPath, "collect", "bogus")
	assert.Error(t, err)
}
