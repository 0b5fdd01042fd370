// Network I/O collector: publishes RX/TX byte counters.
// Uses gopsutil for cross-platform network metrics.
package collector

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// NetworkCollector publishes bytes received and sent since boot as
// cumulative counters; rates are left to the consumer so no reading is kept
// between passes.
type NetworkCollector struct {
	Base
}

// NewNetworkCollector creates a new network collector.
func NewNetworkCollector(name string, overrides map[string]interface{}, env Env) (*NetworkCollector, error) {
	c := &NetworkCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	return c, nil
}

// DefaultConfig returns the network defaults. With per_interface set, one
// pair of counters is published per NIC with an interface dimension.
func (c *NetworkCollector) DefaultConfig() Options {
	return defaultOptions(map[string]interface{}{
		"per_interface": false,
	})
}

// Collect reads the counters once.
func (c *NetworkCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome.
func (c *NetworkCollector) Run(ctx context.Context) Outcome {
	perNIC := c.cfg.Bool("per_interface", false)

	counters, err := net.IOCountersWithContext(ctx, perNIC)
	if err != nil {
		return Aborted(AccessError, "Failed to read network counters", errors.Wrap(err, "io counters"))
	}

	p := c.newPass()
	for _, counter := range counters {
		recv := metric.New("network.bytes_recv", float64(counter.BytesRecv), metric.CumulativeCounter)
		sent := metric.New("network.bytes_sent", float64(counter.BytesSent), metric.CumulativeCounter)
		if perNIC {
			dims := map[string]string{"interface": counter.Name}
			recv = recv.WithDimensions(dims)
			sent = sent.WithDimensions(dims)
		}
		p.publishMetric(recv)
		p.publishMetric(sent)
	}
	return p.success()
}
