// System uptime collector: publishes seconds since boot and the boot time,
// the latter approximating the last shutdown.
// Uses gopsutil host for cross-platform boot information.
package collector

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// UptimeCollector collects system uptime and boot time.
type UptimeCollector struct {
	Base
}

// NewUptimeCollector creates a new uptime collector.
func NewUptimeCollector(name string, overrides map[string]interface{}, env Env) (*UptimeCollector, error) {
	c := &UptimeCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	return c, nil
}

// DefaultConfig returns the framework defaults; uptime has no options.
func (c *UptimeCollector) DefaultConfig() Options {
	return defaultOptions(nil)
}

// Collect reads uptime once.
func (c *UptimeCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome.
func (c *UptimeCollector) Run(ctx context.Context) Outcome {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return Aborted(AccessError, "Failed to read uptime", errors.Wrap(err, "uptime"))
	}
	bootTime, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return Aborted(AccessError, "Failed to read boot time", errors.Wrap(err, "boot time"))
	}

	p := c.newPass()
	p.publish("system.uptime", float64(uptime), metric.Gauge)
	p.publish("system.boot_time", float64(bootTime), metric.Gauge)
	return p.success()
}
