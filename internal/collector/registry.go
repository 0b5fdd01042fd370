package collector

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// Factory builds a collector instance from its name, option overrides and
// injected environment.
type Factory func(name string, overrides map[string]interface{}, env Env) (Collector, error)

// factories is the closed set of collector kinds the agent can build.
var factories = map[string]Factory{
	"zoneinfo": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewZoneInfoCollector(n, o, e)
	},
	"traceroute": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewTracerouteCollector(n, o, e)
	},
	"adhoc": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewAdHocCollector(n, o, e)
	},
	"cpu": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewCPUCollector(n, o, e)
	},
	"memory": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewMemoryCollector(n, o, e)
	},
	"disk": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewDiskCollector(n, o, e)
	},
	"network": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewNetworkCollector(n, o, e)
	},
	"uptime": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewUptimeCollector(n, o, e)
	},
	"processes": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewProcessCollector(n, o, e)
	},
	"temperature": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewTemperatureCollector(n, o, e)
	},
	"nerveuwsgi": func(n string, o map[string]interface{}, e Env) (Collector, error) {
		return NewNerveUWSGICollector(n, o, e)
	},
}

// defaultConfigs exposes each kind's DefaultConfig without building an
// instance, since some kinds require options to construct.
var defaultConfigs = map[string]func() Options{
	"zoneinfo":    (&ZoneInfoCollector{}).DefaultConfig,
	"traceroute":  (&TracerouteCollector{}).DefaultConfig,
	"adhoc":       (&AdHocCollector{}).DefaultConfig,
	"cpu":         (&CPUCollector{}).DefaultConfig,
	"memory":      (&MemoryCollector{}).DefaultConfig,
	"disk":        (&DiskCollector{}).DefaultConfig,
	"network":     (&NetworkCollector{}).DefaultConfig,
	"uptime":      (&UptimeCollector{}).DefaultConfig,
	"processes":   (&ProcessCollector{}).DefaultConfig,
	"temperature": (&TemperatureCollector{}).DefaultConfig,
	"nerveuwsgi":  (&NerveUWSGICollector{}).DefaultConfig,
}

// DefaultConfigFor returns the default options of a collector kind.
func DefaultConfigFor(kind string) (Options, bool) {
	fn, ok := defaultConfigs[kind]
	if !ok {
		return Options{}, false
	}
	return fn(), true
}

// ErrUnknownCollector is returned by Build for a name whose kind has no factory.
var ErrUnknownCollector = errors.New("unknown collector")

// Kinds returns the known collector kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// KindOf returns the kind part of a canonical name. "traceroute google"
// is an instance of kind "traceroute".
func KindOf(name string) string {
	kind, _, _ := strings.Cut(strings.TrimSpace(name), " ")
	return kind
}

// Build constructs the collector registered for the kind of name.
func Build(name string, overrides map[string]interface{}, env Env) (Collector, error) {
	factory, ok := factories[KindOf(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCollector, "%q", name)
	}
	c, err := factory(name, overrides, env)
	if err != nil {
		return nil, errors.Wrapf(err, "building collector %q", name)
	}
	return c, nil
}

// Registry manages all registered collectors and orchestrates concurrent collection.
type Registry struct {
	mu         sync.RWMutex
	collectors []Collector
	logger     *zap.Logger
}

// NewRegistry creates a new collector registry with the given logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		collectors: make([]Collector, 0),
		logger:     logger,
	}
}

// Register adds a collector unless its enabled option is false.
// It reports whether the collector was added.
func (r *Registry) Register(c Collector) bool {
	if !c.Config().Bool("enabled", true) {
		r.logger.Warn("Collector disabled, skipping", zap.String("name", c.Name()))
		return false
	}
	r.mu.Lock()
	r.collectors = append(r.collectors, c)
	r.mu.Unlock()
	r.logger.Info("Registered collector", zap.String("name", c.Name()))
	return true
}

// PassFunc runs one collection pass of c.
type PassFunc func(ctx context.Context, c Collector) []metric.Metric

// CollectAll runs one pass of every registered collector concurrently and
// returns a map of collector name to the metrics of its pass. Aborted passes
// map to nil; their collectors have already logged the failure. A nil run
// calls Collect directly.
func (r *Registry) CollectAll(ctx context.Context, run PassFunc) map[string][]metric.Metric {
	if run == nil {
		run = func(ctx context.Context, c Collector) []metric.Metric { return c.Collect(ctx) }
	}

	results := make(map[string][]metric.Metric)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range r.Collectors() {
		wg.Add(1)
		go func(col Collector) {
			defer wg.Done()
			metrics := run(ctx, col)
			mu.Lock()
			results[col.Name()] = metrics
			mu.Unlock()
		}(c)
	}

	wg.Wait()
	return results
}

// Collectors returns a copy of all registered collectors.
func (r *Registry) Collectors() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}
