// Package collector defines the Collector contract and provides
// implementations for the system metric collectors.
package collector

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// Collector is the interface that all metric collectors must implement.
// Each collector gathers one kind of measurement and publishes it to a Sink.
type Collector interface {
	// Name returns the canonical name of this collector instance.
	Name() string

	// DefaultConfig returns the collector's base options merged over the
	// framework defaults. It has no side effects.
	DefaultConfig() Options

	// Config returns the options this instance was built with.
	Config() Options

	// Collect performs exactly one collection pass and returns the metrics
	// it published. It never panics or returns an error: failures are
	// logged and reported as a nil slice.
	Collect(ctx context.Context) []metric.Metric

	// Publish emits a dimension-less metric.
	Publish(name string, value float64, typ metric.Type)

	// PublishMetric emits a fully constructed metric.
	PublishMetric(m metric.Metric)
}

// Sink receives published metrics. Implementations must be safe for
// concurrent use because different collectors publish in parallel.
type Sink interface {
	Emit(m metric.Metric)
}

// Env carries the capabilities injected into every collector.
type Env struct {
	Logger *zap.Logger
	Sink   Sink
	// Runner executes external commands. Nil means ExecRunner.
	Runner Runner
	// HTTPClient queries local service endpoints. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// DefaultDimensions are added to every published metric. A metric's own
	// dimension of the same name wins.
	DefaultDimensions map[string]string
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) runner() Runner {
	if e.Runner == nil {
		return ExecRunner{}
	}
	return e.Runner
}

func (e Env) httpClient() *http.Client {
	if e.HTTPClient == nil {
		return http.DefaultClient
	}
	return e.HTTPClient
}

type discardSink struct{}

func (discardSink) Emit(metric.Metric) {}

// Base fulfils the rote parts of the Collector interface. Concrete
// collectors embed it.
type Base struct {
	name string
	cfg  Options
	sink Sink
	log  *zap.Logger
	dims map[string]string
}

func newBase(name string, cfg Options, env Env) Base {
	sink := env.Sink
	if sink == nil {
		sink = discardSink{}
	}
	var dims map[string]string
	if len(env.DefaultDimensions) > 0 {
		dims = make(map[string]string, len(env.DefaultDimensions))
		for k, v := range env.DefaultDimensions {
			dims[k] = v
		}
	}
	return Base{
		name: name,
		cfg:  cfg,
		sink: sink,
		log:  env.logger().Named("collector").With(zap.String("collector", name)),
		dims: dims,
	}
}

// Name returns the collector instance name.
func (b *Base) Name() string { return b.name }

// Config returns the collector options.
func (b *Base) Config() Options { return b.cfg }

// Logger returns the collector's logger.
func (b *Base) Logger() *zap.Logger { return b.log }

// Publish emits a dimension-less metric.
func (b *Base) Publish(name string, value float64, typ metric.Type) {
	b.PublishMetric(metric.New(name, value, typ))
}

// PublishMetric emits m to the sink, carrying the default dimensions.
func (b *Base) PublishMetric(m metric.Metric) {
	b.sink.Emit(b.decorate(m))
}

// decorate merges the default dimensions under m's own.
func (b *Base) decorate(m metric.Metric) metric.Metric {
	if len(b.dims) == 0 {
		return m
	}
	return metric.New(m.Name(), m.Value(), m.Type()).
		WithDimensions(b.dims).
		WithDimensions(m.Dimensions())
}

// String returns the collector name in printable format.
func (b *Base) String() string {
	return b.name + "Collector"
}

// settle runs one pass and converts its outcome into the Collect contract:
// aborts and panics are logged once at error level and become nil.
func (b *Base) settle(ctx context.Context, run func(context.Context) Outcome) (metrics []metric.Metric) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Collector panicked", zap.String("panic", fmt.Sprint(r)))
			metrics = nil
		}
	}()

	outcome := run(ctx)
	if !outcome.Ok() {
		fields := []zap.Field{zap.Stringer("kind", outcome.Kind)}
		if outcome.Err != nil {
			fields = append(fields, zap.Error(outcome.Err))
		}
		b.log.Error(outcome.Message, fields...)
		return nil
	}
	return outcome.Metrics
}

// pass accumulates the metrics published during one collection pass.
// It is created per Collect call and discarded afterwards.
type pass struct {
	base    *Base
	metrics []metric.Metric
}

func (b *Base) newPass() *pass {
	return &pass{base: b, metrics: []metric.Metric{}}
}

func (p *pass) publish(name string, value float64, typ metric.Type) {
	p.publishMetric(metric.New(name, value, typ))
}

func (p *pass) publishMetric(m metric.Metric) {
	m = p.base.decorate(m)
	p.base.sink.Emit(m)
	p.metrics = append(p.metrics, m)
}

func (p *pass) success() Outcome {
	return Success(p.metrics)
}
