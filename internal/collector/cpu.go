// CPU usage collector: publishes overall and per-core utilisation.
// Uses gopsutil for cross-platform CPU metrics.
package collector

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// CPUCollector publishes cpu.percent, overall and per core.
type CPUCollector struct {
	Base
}

// NewCPUCollector creates a new CPU collector.
func NewCPUCollector(name string, overrides map[string]interface{}, env Env) (*CPUCollector, error) {
	c := &CPUCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	return c, nil
}

// DefaultConfig returns the CPU defaults. sample is how long the overall
// measurement blocks.
func (c *CPUCollector) DefaultConfig() Options {
	return defaultOptions(map[string]interface{}{
		"sample": "1s",
	})
}

// Collect samples CPU usage once.
func (c *CPUCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome.
func (c *CPUCollector) Run(ctx context.Context) Outcome {
	overall, err := cpu.PercentWithContext(ctx, c.cfg.Duration("sample", time.Second), false)
	if err != nil {
		return Aborted(AccessError, "Failed to read CPU usage", errors.Wrap(err, "cpu percent"))
	}

	p := c.newPass()
	if len(overall) > 0 {
		p.publish("cpu.percent", overall[0], metric.Gauge)
	}

	// Per-core usage is an instantaneous snapshot; losing it is not fatal.
	cores, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		c.log.Debug("Per-core CPU usage unavailable", zap.Error(err))
		return p.success()
	}
	for i, pct := range cores {
		p.publishMetric(metric.NewGauge("cpu.percent", pct).
			WithDimensions(map[string]string{"core": strconv.Itoa(i)}))
	}
	return p.success()
}
