// Temperature collector: publishes thermal sensor readings.
// Uses gopsutil host sensors; readings outside a plausible range are dropped.
package collector

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

const (
	minValidTemp = 0.0
	// Readings above this are sensor errors.
	maxValidTemp = 150.0
)

// TemperatureCollector publishes sensor.temperature per sensor.
type TemperatureCollector struct {
	Base
}

// NewTemperatureCollector creates a new temperature collector.
func NewTemperatureCollector(name string, overrides map[string]interface{}, env Env) (*TemperatureCollector, error) {
	c := &TemperatureCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	return c, nil
}

// DefaultConfig returns the temperature defaults.
func (c *TemperatureCollector) DefaultConfig() Options {
	return defaultOptions(nil)
}

// Collect reads the sensors once.
func (c *TemperatureCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome. gopsutil returns partial
// readings together with a warning error; those readings are kept.
func (c *TemperatureCollector) Run(ctx context.Context) Outcome {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		return Aborted(AccessError, "Temperature sensors not available", errors.Wrap(err, "sensors"))
	}
	if err != nil {
		c.log.Debug("Some temperature sensors failed", zap.Error(err))
	}

	p := c.newPass()
	for _, t := range temps {
		if !isValidTemperature(t.Temperature) {
			continue
		}
		p.publishMetric(metric.NewGauge("sensor.temperature", t.Temperature).
			WithDimensions(map[string]string{"sensor": t.SensorKey}))
	}
	return p.success()
}

// isValidTemperature returns true if the temperature is within a plausible range.
func isValidTemperature(temp float64) bool {
	return temp > minValidTemp && temp <= maxValidTemp
}
