package collector

import (
	"context"
	"os/exec"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

func newAdHoc(t *testing.T, runner Runner, overrides map[string]interface{}) (*AdHocCollector, testEnv) {
	t.Helper()
	opts := map[string]interface{}{"bin": "/opt/scripts/queue.sh"}
	for k, v := range overrides {
		opts[k] = v
	}
	env := newTestEnv(t, runner)
	c, err := NewAdHocCollector("adhoc queue", opts, env.Env)
	require.NoError(t, err)
	return c, env
}

func TestAdHoc_DecodesObjectThenCollection(t *testing.T) {
	runner := &fakeRunner{out: Output{Stdout: readFixture(t, "adhoc.json")}}
	c, env := newAdHoc(t, runner, map[string]interface{}{"args": []interface{}{"--all", "-v"}})

	got := c.Collect(context.Background())

	assert.Equal(t, []string{"/opt/scripts/queue.sh", "--all", "-v"}, runner.lastCall())
	require.Equal(t, []string{"queue.depth", "requests.failed", "requests.sent"}, names(got))

	depth, ok := got[0].Dimension("queue")
	assert.True(t, ok)
	assert.Equal(t, "ingest", depth)
	assert.Equal(t, metric.Counter, got[1].Type())
	assert.Equal(t, metric.CumulativeCounter, got[2].Type())
	assert.Equal(t, 4021.0, got[2].Value())
	assert.Equal(t, got, env.sink.Metrics())
}

func TestAdHoc_DefaultDimensions(t *testing.T) {
	runner := &fakeRunner{out: Output{Stdout: readFixture(t, "adhoc.json")}}
	env := newTestEnv(t, runner)
	env.DefaultDimensions = map[string]string{"application": "metricd", "queue": "default"}
	c, err := NewAdHocCollector("adhoc queue", map[string]interface{}{"bin": "/opt/scripts/queue.sh"}, env.Env)
	require.NoError(t, err)

	got := c.Collect(context.Background())

	require.Len(t, got, 3)
	assert.Equal(t, map[string]string{"application": "metricd", "queue": "ingest"}, got[0].Dimensions())
	assert.Equal(t, map[string]string{"application": "metricd", "queue": "default"}, got[1].Dimensions())
	assert.Equal(t, got, env.sink.Metrics())

	c.Publish("manual", 1, metric.Gauge)
	last := env.sink.Metrics()[3]
	assert.Equal(t, map[string]string{"application": "metricd", "queue": "default"}, last.Dimensions())
}

func TestAdHoc_UndecodableOutput(t *testing.T) {
	c, env := newAdHoc(t, &fakeRunner{out: Output{Stdout: []byte("queue=12")}}, nil)

	assert.Nil(t, c.Collect(context.Background()))
	assert.Zero(t, env.sink.Len())
	assert.Equal(t, 1, env.countLogs(zapcore.ErrorLevel, "Failed to decode ad hoc script output"))
}

func TestAdHoc_StderrOnly(t *testing.T) {
	runner := &fakeRunner{out: Output{Stderr: []byte("boom")}, err: errors.New("exit status 2")}
	c, env := newAdHoc(t, runner, nil)

	assert.Nil(t, c.Collect(context.Background()))
	assert.Equal(t, 1, env.countLogs(zapcore.ErrorLevel, "Error running ad hoc script"))
}

func TestAdHoc_SilentScript(t *testing.T) {
	c, env := newAdHoc(t, &fakeRunner{}, nil)

	got := c.Collect(context.Background())

	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, env.levelCount(zapcore.ErrorLevel))
}

func TestAdHoc_Timeout(t *testing.T) {
	c, env := newAdHoc(t, &fakeRunner{block: true}, map[string]interface{}{"timeout": "20ms"})

	assert.Nil(t, c.Collect(context.Background()))
	assert.Equal(t, 1, env.countLogs(zapcore.ErrorLevel, "Ad hoc script timed out"))
}

func TestAdHoc_RealScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	env := newTestEnv(t, nil)
	c, err := NewAdHocCollector("adhoc echo", map[string]interface{}{
		"bin":  sh,
		"args": []string{"-c", `echo '[{"name":"a","value":1},{"name":"b","value":2}]'`},
	}, env.Env)
	require.NoError(t, err)

	got := c.Collect(context.Background())

	assert.Equal(t, []string{"a", "b"}, names(got))
}

func TestAdHoc_RequiresBin(t *testing.T) {
	_, err := NewAdHocCollector("adhoc", nil, Env{})

	var optErr *OptionError
	require.ErrorAs(t, err, &optErr)
	assert.Equal(t, "bin", optErr.Option)
}
