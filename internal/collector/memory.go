// RAM usage collector: publishes used, total and available memory bytes.
// Uses gopsutil for cross-platform memory metrics.
package collector

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// MemoryCollector collects RAM usage metrics.
type MemoryCollector struct {
	Base
}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector(name string, overrides map[string]interface{}, env Env) (*MemoryCollector, error) {
	c := &MemoryCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	return c, nil
}

// DefaultConfig returns the framework defaults; memory has no options.
func (c *MemoryCollector) DefaultConfig() Options {
	return defaultOptions(nil)
}

// Collect reads memory usage once.
func (c *MemoryCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome.
func (c *MemoryCollector) Run(ctx context.Context) Outcome {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Aborted(AccessError, "Failed to read memory usage", errors.Wrap(err, "virtual memory"))
	}

	p := c.newPass()
	p.publish("memory.used", float64(v.Used), metric.Gauge)
	p.publish("memory.total", float64(v.Total), metric.Gauge)
	p.publish("memory.available", float64(v.Available), metric.Gauge)
	return p.success()
}
