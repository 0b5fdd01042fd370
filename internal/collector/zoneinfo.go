// NUMA zone page statistics collector: parses the per-node, per-zone page
// thresholds (free, min, low, high) out of /proc/zoneinfo.
package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

const (
	// DefaultZoneInfoPath is where Linux exposes zone statistics.
	DefaultZoneInfoPath = "/proc/zoneinfo"

	// thresholdLines is the number of page threshold lines following each
	// zone header: free, min, low and high.
	thresholdLines = 4
)

var zoneHeaderRe = regexp.MustCompile(`^Node\s+(\d+),\s+zone\s+(\w+)$`)

// ZoneInfoCollector publishes one gauge per zone page threshold, named
// node<N>-zone-<Z>-<stat>.
type ZoneInfoCollector struct {
	Base
}

// NewZoneInfoCollector creates a zone info collector named name.
func NewZoneInfoCollector(name string, overrides map[string]interface{}, env Env) (*ZoneInfoCollector, error) {
	c := &ZoneInfoCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	if c.cfg.String("path") == "" {
		return nil, newConfigError(name, "path")
	}
	return c, nil
}

// DefaultConfig returns the zone info defaults.
func (c *ZoneInfoCollector) DefaultConfig() Options {
	return defaultOptions(map[string]interface{}{
		"path": DefaultZoneInfoPath,
	})
}

// Collect parses the zone info file once.
func (c *ZoneInfoCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome.
func (c *ZoneInfoCollector) Run(ctx context.Context) Outcome {
	path := c.cfg.String("path")

	f, err := os.Open(path)
	if err != nil {
		return Aborted(AccessError, "Permission to access zone info file denied",
			errors.Wrapf(err, "opening %s", path))
	}
	defer f.Close()

	p := c.newPass()
	parser := zoneParser{log: c.log}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m, ok := parser.feed(scanner.Text()); ok {
			p.publishMetric(m)
		}
	}
	if err := scanner.Err(); err != nil {
		return Aborted(AccessError, "Failed reading zone info file",
			errors.Wrapf(err, "reading %s", path))
	}

	return p.success()
}

// zoneState is the parser state: Idle when remaining is 0, otherwise
// ExpectingThresholds with remaining lines left in the current block.
type zoneState struct {
	remaining int
	prefix    string
}

func (s zoneState) idle() bool { return s.remaining == 0 }

// zoneParser turns zone info lines into threshold metrics. It lives for a
// single pass.
type zoneParser struct {
	state zoneState
	log   *zap.Logger
}

// feed consumes one line and returns the metric it yields, if any.
// A header always starts a new block, even in the middle of a countdown.
func (p *zoneParser) feed(line string) (metric.Metric, bool) {
	line = strings.TrimRight(line, " \t\r\n")

	if match := zoneHeaderRe.FindStringSubmatch(line); match != nil {
		if !p.state.idle() {
			p.log.Debug("Zone header interrupted threshold block",
				zap.String("prefix", p.state.prefix),
				zap.Int("remaining", p.state.remaining))
		}
		p.log.Debug("Matched zone header",
			zap.String("node", match[1]),
			zap.String("zone", match[2]))
		p.state = zoneState{
			remaining: thresholdLines,
			prefix:    fmt.Sprintf("node%s-zone-%s-", match[1], match[2]),
		}
		return metric.Metric{}, false
	}

	if p.state.idle() {
		return metric.Metric{}, false
	}

	// Newer kernels interleave other stats (boost, nr_*, per-node stats)
	// with the thresholds; those do not take a slot. A malformed threshold
	// line still does.
	if !isThresholdLine(line) {
		return metric.Metric{}, false
	}
	p.state.remaining--
	stat, value, err := parseThreshold(line)
	if err != nil {
		p.log.Warn("Skipping malformed zone threshold line",
			zap.String("line", line),
			zap.Error(err))
		return metric.Metric{}, false
	}
	return metric.NewGauge(p.state.prefix+stat, value), true
}

var thresholdStats = map[string]bool{"free": true, "min": true, "low": true, "high": true}

// isThresholdLine reports whether the first token after the last "pages"
// token names one of the page thresholds.
func isThresholdLine(line string) bool {
	fields := afterPages(strings.Fields(line))
	return len(fields) > 0 && thresholdStats[fields[0]]
}

func afterPages(fields []string) []string {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i] == "pages" {
			return fields[i+1:]
		}
	}
	return fields
}

// parseThreshold extracts "<stat> <value>" from the tokens after the last
// "pages" token, e.g. "  pages free     3840" or "        min      25".
func parseThreshold(line string) (string, float64, error) {
	fields := afterPages(strings.Fields(line))
	if len(fields) != 2 {
		return "", 0, errors.Errorf("expected <stat> <value>, got %d fields", len(fields))
	}

	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid value for %s", fields[0])
	}
	return fields[0], value, nil
}
