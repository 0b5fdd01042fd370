// Top N processes collector: publishes CPU and memory usage of the most
// CPU-intensive processes.
// Uses gopsutil for cross-platform process listing.
package collector

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// normalizedStatuses maps raw gopsutil status strings to a consistent set.
var normalizedStatuses = map[string]string{
	"running":      "running",
	"waking":       "running",
	"sleeping":     "sleeping",
	"sleep":        "sleeping",
	"wait":         "sleeping",
	"lock":         "sleeping",
	"disk-sleep":   "sleeping",
	"wake-kill":    "sleeping",
	"idle":         "idle",
	"parked":       "idle",
	"stopped":      "stopped",
	"tracing-stop": "stopped",
	"suspended":    "stopped",
	"zombie":       "zombie",
	"dead":         "zombie",
}

// normalizeStatus maps a raw status to a display value. An empty status
// (common on Windows) is inferred from CPU activity.
func normalizeStatus(raw string, cpuPct float64) string {
	if raw != "" {
		key := strings.ToLower(strings.TrimSpace(raw))
		if mapped, ok := normalizedStatuses[key]; ok {
			return mapped
		}
		return key
	}
	if cpuPct > 0 {
		return "running"
	}
	return "idle"
}

type processSample struct {
	pid    int32
	name   string
	cpu    float64
	memory float64
	status string
}

// ProcessCollector publishes the top N processes by CPU usage.
type ProcessCollector struct {
	Base
}

// NewProcessCollector creates a new process collector.
func NewProcessCollector(name string, overrides map[string]interface{}, env Env) (*ProcessCollector, error) {
	c := &ProcessCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	return c, nil
}

// DefaultConfig returns the process defaults.
func (c *ProcessCollector) DefaultConfig() Options {
	return defaultOptions(map[string]interface{}{
		"top": 10,
	})
}

// Collect lists processes once.
func (c *ProcessCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome. Per-process read errors are
// ignored so one inaccessible process does not fail the pass.
func (c *ProcessCollector) Run(ctx context.Context) Outcome {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return Aborted(AccessError, "Failed to list processes", errors.Wrap(err, "processes"))
	}

	samples := make([]processSample, 0, len(procs))
	for _, proc := range procs {
		name, _ := proc.NameWithContext(ctx)
		cpuPct, _ := proc.CPUPercentWithContext(ctx)
		memPct, _ := proc.MemoryPercentWithContext(ctx)
		status, _ := proc.StatusWithContext(ctx)

		rawStatus := ""
		if len(status) > 0 {
			rawStatus = status[0]
		}
		samples = append(samples, processSample{
			pid:    proc.Pid,
			name:   name,
			cpu:    cpuPct,
			memory: float64(memPct),
			status: normalizeStatus(rawStatus, cpuPct),
		})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].cpu > samples[j].cpu
	})
	if top := c.cfg.Int("top", 10); top >= 0 && len(samples) > top {
		samples = samples[:top]
	}

	p := c.newPass()
	for _, s := range samples {
		dims := map[string]string{
			"pid":    strconv.Itoa(int(s.pid)),
			"name":   s.name,
			"status": s.status,
		}
		p.publishMetric(metric.NewGauge("process.cpu_percent", s.cpu).WithDimensions(dims))
		p.publishMetric(metric.NewGauge("process.memory_percent", s.memory).WithDimensions(dims))
	}
	return p.success()
}
