// NerveUWSGI collector: reads the nerve service registry and scrapes the
// metrics endpoint of every service registered on this host.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

const (
	// DefaultNerveConfigPath is where nerve keeps its service registry.
	DefaultNerveConfigPath = "/etc/nerve/nerve.conf.json"

	defaultNerveQueryPath   = "status/metrics"
	defaultNerveTimeout     = 2 * time.Second
	defaultNerveConcurrency = 8

	// SchemaHeader names the response header selecting the payload parser.
	SchemaHeader = "Metrics-Schema"
)

// NerveUWSGICollector publishes the metrics served by local nerve services.
// Every metric carries service and port dimensions. Services listed in
// services_whitelist are reported with cumulative counters.
type NerveUWSGICollector struct {
	Base
	client *http.Client
	// localAddrs lists the addresses of this host.
	localAddrs func(ctx context.Context) (map[string]bool, error)
}

// NewNerveUWSGICollector creates a NerveUWSGI collector.
func NewNerveUWSGICollector(name string, overrides map[string]interface{}, env Env) (*NerveUWSGICollector, error) {
	c := &NerveUWSGICollector{client: env.httpClient(), localAddrs: hostAddrs}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	for _, opt := range []string{"config_path", "query_path", "host"} {
		if c.cfg.String(opt) == "" {
			return nil, newConfigError(name, opt)
		}
	}
	return c, nil
}

// DefaultConfig returns the NerveUWSGI defaults.
func (c *NerveUWSGICollector) DefaultConfig() Options {
	return defaultOptions(map[string]interface{}{
		"config_path":        DefaultNerveConfigPath,
		"query_path":         defaultNerveQueryPath,
		"host":               "localhost",
		"timeout":            defaultNerveTimeout.String(),
		"max_concurrency":    defaultNerveConcurrency,
		"services_whitelist": []string{},
	})
}

// Collect scrapes every local service once.
func (c *NerveUWSGICollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome. Only an unreadable or
// undecodable nerve config aborts the pass; a failing service is logged and
// skipped.
func (c *NerveUWSGICollector) Run(ctx context.Context) Outcome {
	path := c.cfg.String("config_path")

	raw, err := os.ReadFile(path)
	if err != nil {
		return Aborted(AccessError, "Failed to read nerve config", errors.Wrapf(err, "reading %s", path))
	}
	services, err := parseNerveConfig(raw)
	if err != nil {
		return Aborted(ParseError, "Failed to parse nerve config", errors.Wrapf(err, "parsing %s", path))
	}

	local, err := c.localAddrs(ctx)
	if err != nil {
		return Aborted(AccessError, "Failed to list local addresses", err)
	}

	var targets []nerveService
	for _, svc := range services {
		if svc.err != nil {
			c.log.Warn("Skipping nerve service", zap.String("key", svc.key), zap.Error(svc.err))
			continue
		}
		if !local[svc.host] {
			c.log.Debug("Skipping remote nerve service",
				zap.String("service", svc.name),
				zap.String("host", svc.host))
			continue
		}
		targets = append(targets, svc)
	}

	whitelist := make(map[string]bool)
	for _, s := range c.cfg.Strings("services_whitelist") {
		whitelist[s] = true
	}

	limit := c.cfg.Int("max_concurrency", defaultNerveConcurrency)
	if limit < 1 {
		limit = defaultNerveConcurrency
	}

	// Each query owns one slot, so results keep port order.
	scraped := make([][]metric.Metric, len(targets))
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, svc := range targets {
		g.Go(func() error {
			metrics, err := c.queryService(ctx, svc, whitelist[svc.name])
			if err != nil {
				c.log.Warn("Failed to collect service metrics",
					zap.String("service", svc.name),
					zap.Int("port", svc.port),
					zap.Error(err))
				return nil
			}
			scraped[i] = metrics
			return nil
		})
	}
	_ = g.Wait()

	p := c.newPass()
	for _, metrics := range scraped {
		for _, m := range metrics {
			p.publishMetric(m)
		}
	}
	return p.success()
}

func (c *NerveUWSGICollector) queryService(ctx context.Context, svc nerveService, cumulative bool) ([]metric.Metric, error) {
	endpoint := fmt.Sprintf("http://%s/%s",
		net.JoinHostPort(c.cfg.String("host"), strconv.Itoa(svc.port)),
		strings.TrimPrefix(c.cfg.String("query_path"), "/"))
	c.log.Debug("Querying service endpoint",
		zap.String("service", svc.name),
		zap.String("namespace", svc.namespace),
		zap.String("endpoint", endpoint))

	raw, schema, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	parse, ok := schemaParsers[schema]
	if !ok {
		return nil, errors.Errorf("unknown metrics schema %q", schema)
	}
	metrics, err := parse(raw, cumulative)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s response", schema)
	}

	dims := map[string]string{"service": svc.name, "port": strconv.Itoa(svc.port)}
	for i := range metrics {
		metrics[i] = metrics[i].WithDimensions(dims)
	}
	return metrics, nil
}

// fetch GETs endpoint under the configured timeout and returns the body and
// the schema the service declared.
func (c *NerveUWSGICollector) fetch(ctx context.Context, endpoint string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Duration("timeout", defaultNerveTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "building request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(err, "querying %s", endpoint)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrapf(err, "reading %s", endpoint)
	}

	schema := resp.Header.Get(SchemaHeader)
	if schema == "" {
		schema = defaultSchema
	}
	return body, schema, nil
}

// nerveService is one entry of the nerve registry. Keys look like
// "<name>.<namespace>[.<suffix>]". Entries that cannot be used carry err.
type nerveService struct {
	key       string
	name      string
	namespace string
	host      string
	port      int
	err       error
}

// parseNerveConfig decodes {"services": {"<key>": {"host": ..., "port": ...}}}
// into services ordered by port. When several keys share a port the first
// key in sorted order wins.
func parseNerveConfig(raw []byte) ([]nerveService, error) {
	var doc struct {
		Services map[string]struct {
			Host string      `json:"host"`
			Port interface{} `json:"port"`
		} `json:"services"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding nerve config")
	}

	var services []nerveService
	seen := make(map[int]bool)
	for _, key := range sortedKeys(doc.Services) {
		entry := doc.Services[key]
		svc := nerveService{key: key, host: strings.TrimSpace(entry.Host)}
		parts := strings.SplitN(key, ".", 3)
		svc.name = parts[0]
		if len(parts) > 1 {
			svc.namespace = parts[1]
		}

		port, err := cast.ToIntE(entry.Port)
		switch {
		case err != nil:
			svc.err = errors.Wrap(err, "invalid port")
		case port <= 0 || port > 65535:
			svc.err = errors.Errorf("port %d out of range", port)
		case seen[port]:
			svc.err = errors.Errorf("port %d already registered", port)
		}
		svc.port = port
		if svc.err == nil {
			seen[port] = true
		}
		services = append(services, svc)
	}

	sort.SliceStable(services, func(i, j int) bool { return services[i].port < services[j].port })
	return services, nil
}

// hostAddrs returns the addresses of every local interface plus localhost.
func hostAddrs(ctx context.Context) (map[string]bool, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing interfaces")
	}
	addrs := map[string]bool{"localhost": true}
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			ip, _, _ := strings.Cut(a.Addr, "/")
			addrs[ip] = true
		}
	}
	return addrs, nil
}
