// Ad hoc collector: runs a user supplied script and publishes the metrics it
// writes to stdout in the JSON wire form.
package collector

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

const defaultAdHocTimeout = 10 * time.Second

// AdHocCollector publishes whatever metrics its script reports. The script
// may print one metric object, an array, a keyed object, or several of
// those in a row.
type AdHocCollector struct {
	Base
	runner Runner
}

// NewAdHocCollector creates an ad hoc collector. The bin option is required.
func NewAdHocCollector(name string, overrides map[string]interface{}, env Env) (*AdHocCollector, error) {
	c := &AdHocCollector{runner: env.runner()}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	if c.cfg.String("bin") == "" {
		return nil, newConfigError(name, "bin")
	}
	return c, nil
}

// DefaultConfig returns the ad hoc defaults.
func (c *AdHocCollector) DefaultConfig() Options {
	return defaultOptions(map[string]interface{}{
		"args":    []string{},
		"timeout": defaultAdHocTimeout.String(),
	})
}

// Collect runs the script once.
func (c *AdHocCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome.
func (c *AdHocCollector) Run(ctx context.Context) Outcome {
	bin := c.cfg.String("bin")

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Duration("timeout", defaultAdHocTimeout))
	defer cancel()

	out, err := c.runner.Run(ctx, bin, c.cfg.Strings("args")...)
	if IsTimeout(err) {
		return Aborted(SubprocessError, "Ad hoc script timed out", err)
	}

	stdout := bytes.TrimSpace(out.Stdout)
	if len(stdout) == 0 {
		if stderr := bytes.TrimSpace(out.Stderr); len(stderr) > 0 {
			return Aborted(SubprocessError, "Error running ad hoc script", errors.New(string(stderr)))
		}
		if err != nil {
			return Aborted(SubprocessError, "Error running ad hoc script", err)
		}
		return Success(nil)
	}
	if err != nil {
		c.log.Warn("Ad hoc script exited with an error, decoding its output anyway",
			zap.Error(err))
	}

	metrics, err := metric.DecodeBatch(stdout)
	if err != nil {
		return Aborted(ParseError, "Failed to decode ad hoc script output", err)
	}

	p := c.newPass()
	for _, m := range metrics {
		p.publishMetric(m)
	}
	return p.success()
}
