package metric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// wireMetric is the JSON object form shared with sinks and ad hoc scripts.
type wireMetric struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Dimensions map[string]string `json:"dimensions"`
	MetricType Type              `json:"metricType"`
}

// MarshalJSON encodes m as {"name","value","dimensions","metricType"}.
func (m Metric) MarshalJSON() ([]byte, error) {
	dims := m.dimensions
	if dims == nil {
		dims = map[string]string{}
	}
	return json.Marshal(wireMetric{
		Name:       m.name,
		Value:      m.value,
		Dimensions: dims,
		MetricType: m.typ,
	})
}

// UnmarshalJSON decodes the wire object form. A missing metricType means gauge.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var w wireMetric
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return fmt.Errorf("metric without a name")
	}
	*m = Metric{
		name:       w.Name,
		value:      w.Value,
		dimensions: normalize(w.Dimensions),
		typ:        w.MetricType,
	}
	return nil
}

// EncodeBatch encodes metrics as a JSON array, preserving order.
func EncodeBatch(metrics []Metric) ([]byte, error) {
	if metrics == nil {
		metrics = []Metric{}
	}
	return json.Marshal(metrics)
}

// DecodeBatch decodes whatever a producer wrote: a single metric object, an
// array of them, an object mapping arbitrary keys to them, or any sequence
// of those values concatenated. Metrics come back in input order; entries of
// a keyed object are ordered by key.
func DecodeBatch(data []byte) ([]Metric, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	out := []Metric{}
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding metric batch: %w", err)
		}

		metrics, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, metrics...)
	}
}

func decodeValue(raw json.RawMessage) ([]Metric, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var metrics []Metric
		if err := json.Unmarshal(trimmed, &metrics); err != nil {
			return nil, fmt.Errorf("decoding metric array: %w", err)
		}
		return metrics, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("decoding metric object: %w", err)
		}
		if isMetricObject(fields) {
			var m Metric
			if err := json.Unmarshal(trimmed, &m); err != nil {
				return nil, fmt.Errorf("decoding metric: %w", err)
			}
			return []Metric{m}, nil
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		metrics := make([]Metric, 0, len(keys))
		for _, k := range keys {
			var m Metric
			if err := json.Unmarshal(fields[k], &m); err != nil {
				return nil, fmt.Errorf("decoding metric %q: %w", k, err)
			}
			metrics = append(metrics, m)
		}
		return metrics, nil
	default:
		return nil, fmt.Errorf("unexpected JSON value %.20q in metric batch", trimmed)
	}
}

// isMetricObject reports whether an object is a metric rather than a keyed
// collection of metrics: metrics carry a string "name".
func isMetricObject(fields map[string]json.RawMessage) bool {
	name, ok := fields["name"]
	if !ok {
		return false
	}
	var s string
	return json.Unmarshal(name, &s) == nil
}
