package collector

import (
	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// ErrorKind classifies why a collection pass was aborted.
type ErrorKind int

const (
	// NoError marks a successful pass.
	NoError ErrorKind = iota
	// AccessError: a configured path is missing or unreadable.
	AccessError
	// SubprocessError: an external command produced no usable output.
	SubprocessError
	// ParseError: the source data could not be interpreted.
	ParseError
	// ConfigError: a required option is missing or invalid.
	ConfigError
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "none"
	case AccessError:
		return "access"
	case SubprocessError:
		return "subprocess"
	case ParseError:
		return "parse"
	case ConfigError:
		return "config"
	default:
		return "unknown"
	}
}

// Outcome is the result of one collection pass: either a success carrying
// the metrics the pass published, or an abort with a kind, a log message and
// an optional cause.
type Outcome struct {
	Metrics []metric.Metric
	Kind    ErrorKind
	Message string
	Err     error
}

// Success builds a successful outcome. A nil slice becomes an empty one so
// callers can tell "nothing derived" from "aborted".
func Success(metrics []metric.Metric) Outcome {
	if metrics == nil {
		metrics = []metric.Metric{}
	}
	return Outcome{Metrics: metrics}
}

// Aborted builds a failed outcome. msg is what gets logged.
func Aborted(kind ErrorKind, msg string, cause error) Outcome {
	return Outcome{Kind: kind, Message: msg, Err: cause}
}

// Ok reports whether the pass succeeded.
func (o Outcome) Ok() bool { return o.Kind == NoError }
