package collector

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// schemaParser turns a status/metrics response body into metrics. With
// cumulative set, counts become cumulative counters named <metric>.<rollup>
// and metered rates are dropped.
type schemaParser func(raw []byte, cumulative bool) ([]metric.Metric, error)

// schemaParsers is keyed by the Metrics-Schema response header.
var schemaParsers = map[string]schemaParser{
	"uwsgi.1.0": parseUWSGI10,
	"uwsgi.1.1": parseUWSGI11,
	"java-1.1":  parseJavaMetrics,
	"default":   parseDefaultSchema,
}

const defaultSchema = "default"

var meteredRollupRe = regexp.MustCompile(`m[0-9]+_rate`)

// uwsgiPayload is the uwsgi metrics document. Every section maps a metric
// name to its rollups, e.g. "tweens.lookup": {"count": 12, "p98": 3.1}.
type uwsgiPayload struct {
	ServiceDims map[string]interface{}            `json:"service_dims"`
	Counters    map[string]map[string]interface{} `json:"counters"`
	Gauges      map[string]map[string]interface{} `json:"gauges"`
	Histograms  map[string]map[string]interface{} `json:"histograms"`
	Meters      map[string]map[string]interface{} `json:"meters"`
	Timers      map[string]map[string]interface{} `json:"timers"`
}

type uwsgiSection struct {
	kind   string
	typ    metric.Type
	values map[string]map[string]interface{}
}

func (p *uwsgiPayload) sections() []uwsgiSection {
	return []uwsgiSection{
		{"gauge", metric.Gauge, p.Gauges},
		{"counter", metric.Counter, p.Counters},
		{"histogram", metric.Gauge, p.Histograms},
		{"meter", metric.Gauge, p.Meters},
		{"timer", metric.Gauge, p.Timers},
	}
}

// nameSplitter separates a section key into the metric name and the
// dimensions embedded in it.
type nameSplitter func(key string) (string, map[string]string)

func plainName(key string) (string, map[string]string) { return key, nil }

// javaName splits "name,k1=v1,k2=v2". Pieces without "=" are ignored.
func javaName(key string) (string, map[string]string) {
	parts := strings.Split(key, ",")
	dims := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		if k, v, ok := strings.Cut(part, "="); ok && k != "" {
			dims[k] = v
		}
	}
	return parts[0], dims
}

func (p *uwsgiPayload) metrics(cumulative bool, split nameSplitter) []metric.Metric {
	results := []metric.Metric{}
	for _, s := range p.sections() {
		for _, key := range sortedKeys(s.values) {
			name, dims := split(key)
			for _, m := range rollupMetrics(s.values[key], name, s.typ, cumulative) {
				m = m.WithDimensions(dims)
				if !cumulative {
					m = m.WithDimensions(map[string]string{"type": s.kind})
				}
				results = append(results, m)
			}
		}
	}
	return results
}

func decodeUWSGI(raw []byte) (*uwsgiPayload, error) {
	p := new(uwsgiPayload)
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errors.Wrap(err, "decoding uwsgi metrics")
	}
	return p, nil
}

func parseUWSGI10(raw []byte, cumulative bool) ([]metric.Metric, error) {
	p, err := decodeUWSGI(raw)
	if err != nil {
		return nil, err
	}
	return p.metrics(cumulative, plainName), nil
}

// parseUWSGI11 is uwsgi.1.0 plus service_dims added to every metric.
func parseUWSGI11(raw []byte, cumulative bool) ([]metric.Metric, error) {
	p, err := decodeUWSGI(raw)
	if err != nil {
		return nil, err
	}
	dims := make(map[string]string, len(p.ServiceDims))
	for k, v := range p.ServiceDims {
		if s, err := cast.ToStringE(v); err == nil {
			dims[k] = s
		}
	}
	results := p.metrics(cumulative, plainName)
	for i := range results {
		results[i] = results[i].WithDimensions(dims)
	}
	return results, nil
}

func parseJavaMetrics(raw []byte, cumulative bool) ([]metric.Metric, error) {
	p, err := decodeUWSGI(raw)
	if err != nil {
		return nil, err
	}
	return p.metrics(cumulative, javaName), nil
}

// parseDefaultSchema tries the uwsgi layout first and falls back to nested
// dropwizard output when that yields nothing.
func parseDefaultSchema(raw []byte, cumulative bool) ([]metric.Metric, error) {
	results, err := parseUWSGI10(raw, cumulative)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}
	return parseDropwizard(raw)
}

// rollupMetrics emits one metric per numeric rollup of a single entry.
func rollupMetrics(data map[string]interface{}, name string, typ metric.Type, cumulative bool) []metric.Metric {
	var results []metric.Metric
	for _, rollup := range sortedKeys(data) {
		mName, mType, dim := name, typ, rollup
		if cumulative {
			if meteredRollupRe.MatchString(rollup) {
				continue
			}
			if rollup != "value" {
				mName = name + "." + rollup
				if rollup == "count" {
					mType = metric.CumulativeCounter
				}
			}
			dim = ""
		}
		if m, ok := numericMetric(mName, data[rollup], mType, dim); ok {
			results = append(results, m)
		}
	}
	return results
}

// numericMetric builds a metric when v is a JSON number. An empty rollup
// leaves the rollup dimension off.
func numericMetric(name string, v interface{}, typ metric.Type, rollup string) (metric.Metric, bool) {
	f, ok := v.(float64)
	if !ok {
		return metric.Metric{}, false
	}
	m := metric.New(name, f, typ)
	if rollup != "" {
		m = m.WithDimensions(map[string]string{"rollup": rollup})
	}
	return m, true
}

type dropwizardNode struct {
	path   []string
	values map[string]interface{}
}

// parseDropwizard unrolls arbitrarily nested maps breadth first. A node
// holding scalar values is first tried as a flattened gauge, counter,
// histogram, meter or rate; otherwise its numeric values become gauges named
// by the joined key path.
func parseDropwizard(raw []byte) ([]metric.Metric, error) {
	var root map[string]interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.Wrap(err, "decoding dropwizard metrics")
	}

	results := []metric.Metric{}
	queue := []dropwizardNode{{values: root}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if hasScalar(node.values) {
			if flat := parseFlattened(node.values, node.path); len(flat) > 0 {
				results = append(results, flat...)
				continue
			}
		}

		for _, key := range sortedKeys(node.values) {
			path := appendPath(node.path, key)
			switch v := node.values[key].(type) {
			case map[string]interface{}:
				queue = append(queue, dropwizardNode{path: path, values: v})
			default:
				if m, ok := numericMetric(strings.Join(path, "."), v, metric.Gauge, "value"); ok {
					results = append(results, m)
				}
			}
		}
	}
	return results, nil
}

func parseFlattened(values map[string]interface{}, path []string) []metric.Metric {
	name := strings.Join(path, ".")
	kind, _ := values["type"].(string)

	switch kind {
	case "gauge":
		if _, ok := values["value"]; ok {
			return flatMetrics(values, name, func(string) metric.Type { return metric.Gauge })
		}
		return nil
	case "counter":
		if _, ok := values["count"]; ok {
			return flatMetrics(values, name, func(string) metric.Type { return metric.Counter })
		}
		return nil
	case "histogram":
		if _, ok := values["count"]; ok {
			return flatMetrics(values, name, countIsCounter)
		}
		return nil
	case "meter":
		if _, ok := values["event_type"]; ok && unitIn(values, "seconds", "milliseconds", "minutes") {
			return flatMetrics(values, name, countIsCounter)
		}
		return nil
	}

	if unitIn(values, "seconds", "milliseconds") {
		return flatMetrics(values, name, countIsCounter)
	}
	return nil
}

// flatMetrics emits every numeric entry of values with a rollup dimension
// naming its key. type, unit and event_type are strings and drop out.
func flatMetrics(values map[string]interface{}, name string, typeOf func(key string) metric.Type) []metric.Metric {
	var results []metric.Metric
	for _, key := range sortedKeys(values) {
		if m, ok := numericMetric(name, values[key], typeOf(key), key); ok {
			results = append(results, m)
		}
	}
	return results
}

func countIsCounter(key string) metric.Type {
	if key == "count" {
		return metric.Counter
	}
	return metric.Gauge
}

func unitIn(values map[string]interface{}, units ...string) bool {
	unit, _ := values["unit"].(string)
	for _, u := range units {
		if unit == u {
			return true
		}
	}
	return false
}

func hasScalar(values map[string]interface{}) bool {
	for _, v := range values {
		if _, nested := v.(map[string]interface{}); !nested {
			return true
		}
	}
	return false
}

func appendPath(path []string, key string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, key)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
