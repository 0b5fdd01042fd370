// Package metric defines the value object emitted by every collector and its
// JSON wire form consumed by downstream sinks.
package metric

import (
	"fmt"
	"sort"
	"strings"
)

// Type is the semantic kind of a metric value.
// The zero value is Gauge, so a metric built without a type is a gauge.
type Type int

const (
	// Gauge is a point-in-time value.
	Gauge Type = iota
	// Counter is a value accumulated since the previous report.
	Counter
	// CumulativeCounter is a monotonic value accumulated since some origin
	// (boot, process start); consumers derive rates from it.
	CumulativeCounter
)

var typeNames = map[Type]string{
	Gauge:             "gauge",
	Counter:           "counter",
	CumulativeCounter: "cumcounter",
}

// typeAliases lists every spelling accepted when decoding.
var typeAliases = map[string]Type{
	"gauge":              Gauge,
	"counter":            Counter,
	"cumcounter":         CumulativeCounter,
	"cumulative_counter": CumulativeCounter,
	"cumulativecounter":  CumulativeCounter,
}

// String returns the wire name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType converts a wire name into a Type. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return Gauge, fmt.Errorf("unknown metric type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown metric type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Metric is a single dimensioned measurement. It is immutable: constructors
// copy the dimensions they are given and accessors return copies.
type Metric struct {
	name       string
	value      float64
	dimensions map[string]string
	typ        Type
}

// New creates a dimension-less metric.
func New(name string, value float64, typ Type) Metric {
	return Metric{name: name, value: value, typ: typ}
}

// NewGauge is shorthand for New(name, value, Gauge).
func NewGauge(name string, value float64) Metric {
	return New(name, value, Gauge)
}

// WithDimensions returns a copy of m carrying dims merged over the existing
// dimensions.
func (m Metric) WithDimensions(dims map[string]string) Metric {
	merged := make(map[string]string, len(m.dimensions)+len(dims))
	for k, v := range m.dimensions {
		merged[k] = v
	}
	for k, v := range dims {
		merged[k] = v
	}
	m.dimensions = normalize(merged)
	return m
}

// Name returns the metric name.
func (m Metric) Name() string { return m.name }

// Value returns the metric value.
func (m Metric) Value() float64 { return m.value }

// Type returns the metric type.
func (m Metric) Type() Type { return m.typ }

// Dimensions returns a copy of the metric dimensions. It is never nil.
func (m Metric) Dimensions() map[string]string {
	dims := make(map[string]string, len(m.dimensions))
	for k, v := range m.dimensions {
		dims[k] = v
	}
	return dims
}

// Dimension returns a single dimension value.
func (m Metric) Dimension(key string) (string, bool) {
	v, ok := m.dimensions[key]
	return v, ok
}

// String renders the metric for logs: name{k=v,...} value type.
func (m Metric) String() string {
	keys := make([]string, 0, len(m.dimensions))
	for k := range m.dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.name)
	if len(keys) > 0 {
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(m.dimensions[k])
		}
		b.WriteByte('}')
	}
	fmt.Fprintf(&b, " %g %s", m.value, m.typ)
	return b.String()
}

// normalize keeps empty dimension sets as nil so equal metrics compare equal
// regardless of how they were built.
func normalize(dims map[string]string) map[string]string {
	if len(dims) == 0 {
		return nil
	}
	return dims
}
