package collector

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// DefaultCollectionInterval is the interval a collector runs on unless its
// options override it.
const DefaultCollectionInterval = 10 * time.Second

// frameworkDefaults are merged under every collector's own defaults.
func frameworkDefaults() map[string]interface{} {
	return map[string]interface{}{
		"enabled":  true,
		"interval": DefaultCollectionInterval.String(),
	}
}

// Options is an immutable set of collector options. It is built once per
// collector instance and only exposes read accessors.
type Options struct {
	values map[string]interface{}
}

// NewOptions merges layers left to right; later layers win on key collision.
func NewOptions(layers ...map[string]interface{}) Options {
	values := make(map[string]interface{})
	for _, layer := range layers {
		for k, v := range layer {
			values[k] = v
		}
	}
	return Options{values: values}
}

// defaultOptions merges a collector's base options over the framework defaults.
func defaultOptions(base map[string]interface{}) Options {
	return NewOptions(frameworkDefaults(), base)
}

// With returns new Options with overrides merged over o.
func (o Options) With(overrides map[string]interface{}) Options {
	return NewOptions(o.values, overrides)
}

// Get returns the raw value of key.
func (o Options) Get(key string) (interface{}, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is set to a non-nil value.
func (o Options) Has(key string) bool {
	v, ok := o.values[key]
	return ok && v != nil
}

// String returns key as a string, or "" when unset or not convertible.
func (o Options) String(key string) string {
	s, err := cast.ToStringE(o.values[key])
	if err != nil {
		return ""
	}
	return s
}

// Bool returns key as a bool, or fallback when unset or invalid.
func (o Options) Bool(key string, fallback bool) bool {
	if !o.Has(key) {
		return fallback
	}
	b, err := cast.ToBoolE(o.values[key])
	if err != nil {
		return fallback
	}
	return b
}

// Int returns key as an int, or fallback when unset or invalid.
func (o Options) Int(key string, fallback int) int {
	if !o.Has(key) {
		return fallback
	}
	i, err := cast.ToIntE(o.values[key])
	if err != nil {
		return fallback
	}
	return i
}

// Float returns key as a float64, or fallback when unset or invalid.
func (o Options) Float(key string, fallback float64) float64 {
	if !o.Has(key) {
		return fallback
	}
	f, err := cast.ToFloat64E(o.values[key])
	if err != nil {
		return fallback
	}
	return f
}

// Duration returns key as a duration. Strings are parsed as Go durations
// ("30s"); bare numbers are seconds.
func (o Options) Duration(key string, fallback time.Duration) time.Duration {
	if !o.Has(key) {
		return fallback
	}
	d, err := toDuration(o.values[key])
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Strings returns key as a string slice. A string holding a JSON array is
// decoded; any other single string becomes a one-element slice.
func (o Options) Strings(key string) []string {
	if !o.Has(key) {
		return nil
	}
	switch v := o.values[key].(type) {
	case string:
		var list []string
		if strings.HasPrefix(strings.TrimSpace(v), "[") && json.Unmarshal([]byte(v), &list) == nil {
			return list
		}
		return []string{v}
	default:
		s, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil
		}
		return s
	}
}

// StringMap returns key as a map of strings. Maps and strings holding a
// JSON object are accepted.
func (o Options) StringMap(key string) map[string]string {
	if !o.Has(key) {
		return nil
	}
	m, err := cast.ToStringMapStringE(o.values[key])
	if err != nil {
		return nil
	}
	return m
}

// Keys returns the option names in sorted order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of all options.
func (o Options) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

func toDuration(v interface{}) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case string:
		if secs, err := cast.ToFloat64E(t); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := cast.ToDurationE(t)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid duration %q", t)
		}
		return d, nil
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid duration %v", v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}
