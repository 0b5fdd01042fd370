package collector

import (
	"bufio"
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
	"github.com/Guliveer/vitalis/metricd/internal/sink"
)

// testEnv wires a collector to an in-memory sink and an observed logger.
type testEnv struct {
	Env
	sink *sink.Recorder
	logs *observer.ObservedLogs
}

func newTestEnv(t *testing.T, runner Runner) testEnv {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	rec := sink.NewRecorder()
	return testEnv{
		Env:  Env{Logger: zap.New(core), Sink: rec, Runner: runner},
		sink: rec,
		logs: logs,
	}
}

// countLogs returns how many entries at level carry msg.
func (e testEnv) countLogs(level zapcore.Level, msg string) int {
	n := 0
	for _, entry := range e.logs.FilterMessage(msg).All() {
		if entry.Level == level {
			n++
		}
	}
	return n
}

// levelCount returns how many entries were logged at level.
func (e testEnv) levelCount(level zapcore.Level) int {
	n := 0
	for _, entry := range e.logs.All() {
		if entry.Level == level {
			n++
		}
	}
	return n
}

// fakeRunner returns canned output and records the command it was given.
type fakeRunner struct {
	mu    sync.Mutex
	out   Output
	err   error
	block bool
	calls [][]string
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args ...string) (Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{bin}, args...))
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}
	return f.out, f.err
}

func (f *fakeRunner) lastCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func fixtureLines(t *testing.T, name string) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(string(readFixture(t, name))))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func names(metrics []metric.Metric) []string {
	out := make([]string, len(metrics))
	for i, m := range metrics {
		out[i] = m.Name()
	}
	return out
}

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}
