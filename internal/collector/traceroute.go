// Traceroute collector: runs an external route tracing command against a
// target and publishes the round trip time of every responding hop.
package collector

import (
	"bufio"
	"bytes"
	"context"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

const (
	// RoundTripTimeMetric is the default name of the per-hop metric.
	RoundTripTimeMetric = "RoundTripTime"

	defaultTracerouteTimeout = 30 * time.Second

	msgTracerouteFailed   = "Error running traceroute process"
	msgTracerouteTimedOut = "Traceroute process timed out"
)

// TracerouteCollector publishes one RTT gauge per hop with hop and ip
// dimensions.
type TracerouteCollector struct {
	Base
	runner Runner
}

// NewTracerouteCollector creates a traceroute collector. The bin and target
// options are required.
func NewTracerouteCollector(name string, overrides map[string]interface{}, env Env) (*TracerouteCollector, error) {
	c := &TracerouteCollector{runner: env.runner()}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	for _, key := range []string{"bin", "target"} {
		if c.cfg.String(key) == "" {
			return nil, newConfigError(name, key)
		}
	}
	return c, nil
}

// DefaultConfig returns the traceroute defaults. bin and target have none.
func (c *TracerouteCollector) DefaultConfig() Options {
	return defaultOptions(map[string]interface{}{
		"timeout":     defaultTracerouteTimeout.String(),
		"metric_name": RoundTripTimeMetric,
	})
}

// Collect runs the trace once.
func (c *TracerouteCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome.
func (c *TracerouteCollector) Run(ctx context.Context) Outcome {
	bin := c.cfg.String("bin")
	target := c.cfg.String("target")

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Duration("timeout", defaultTracerouteTimeout))
	defer cancel()

	out, err := c.runner.Run(ctx, bin, target)
	if IsTimeout(err) {
		return Aborted(SubprocessError, msgTracerouteTimedOut, err)
	}

	stdout := bytes.TrimSpace(out.Stdout)
	stderr := bytes.TrimSpace(out.Stderr)
	if len(stdout) == 0 {
		switch {
		case len(stderr) > 0:
			return Aborted(SubprocessError, msgTracerouteFailed, errors.New(string(stderr)))
		case err != nil:
			return Aborted(SubprocessError, msgTracerouteFailed, err)
		}
	}
	if err != nil {
		c.log.Warn("Traceroute exited with an error, parsing its output anyway",
			zap.Error(err))
	}

	p := c.newPass()
	name := c.cfg.String("metric_name")

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		h, err := parseHop(line)
		if err != nil {
			c.log.Warn("Skipping malformed traceroute line",
				zap.String("line", line),
				zap.Error(err))
			continue
		}
		if h.banner {
			continue
		}
		if !h.replied {
			c.log.Debug("No reply from hop", zap.Int("hop", h.index))
			continue
		}
		p.publishMetric(metric.NewGauge(name, h.rtt).WithDimensions(map[string]string{
			"hop": strconv.Itoa(h.index),
			"ip":  h.ip.String(),
		}))
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn("Traceroute output truncated", zap.Error(err))
	}

	return p.success()
}

// hop is one parsed traceroute line.
type hop struct {
	banner  bool
	index   int
	ip      netip.Addr
	rtt     float64
	replied bool
}

// parseHop parses lines such as
//
//	traceroute to example.com (93.184.216.34), 30 hops max, 60 byte packets
//	 1  gateway (192.168.1.1)  0.512 ms  0.480 ms  0.470 ms
//	 2  10.0.0.1  1.204 ms  1.190 ms *
//	 3  * * *
//
// The first responding address and the first RTT sample represent the hop.
func parseHop(line string) (hop, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return hop{}, errors.New("empty line")
	}
	if fields[0] == "traceroute" {
		return hop{banner: true}, nil
	}

	index, err := strconv.Atoi(fields[0])
	if err != nil || index <= 0 {
		return hop{}, errors.Errorf("invalid hop index %q", fields[0])
	}

	h := hop{index: index}
	for i := 1; i < len(fields); i++ {
		tok := fields[i]
		if !h.ip.IsValid() {
			if addr, ok := parseAddr(tok); ok {
				h.ip = addr
				continue
			}
		}
		if h.ip.IsValid() && i+1 < len(fields) && fields[i+1] == "ms" {
			rtt, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return hop{}, errors.Wrapf(err, "invalid rtt %q", tok)
			}
			h.rtt = rtt
			h.replied = true
			return h, nil
		}
	}

	if h.ip.IsValid() {
		return hop{}, errors.Errorf("hop %d has an address but no rtt", index)
	}
	return h, nil
}

// parseAddr accepts "1.2.3.4" and "(1.2.3.4)".
func parseAddr(tok string) (netip.Addr, bool) {
	tok = strings.TrimSuffix(strings.TrimPrefix(tok, "("), ")")
	addr, err := netip.ParseAddr(tok)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
