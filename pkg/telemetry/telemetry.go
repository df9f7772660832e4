// Package telemetry provides process-wide OpenTelemetry accessors, mirroring
// the Meter/Tracer helper pattern used throughout the teacher's AI client
// instrumentation (github.com/steveyegge/beads internal/compact, which calls
// telemetry.Meter(...) and telemetry.Tracer(...) with an instrumentation
// name per package). Here the pattern is generalized into an explicit
// process-scoped context object (see SPEC_FULL.md §9 "global mutable state
// becomes process-scoped context objects") rather than a package-level
// ambient singleton: SetProviders is called once at startup from cmd/swarmd.
package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu             sync.RWMutex
	meterProvider  metric.MeterProvider  = noop.NewMeterProvider()
	tracerProvider trace.TracerProvider  = nooptrace.NewTracerProvider()
)

// SetProviders installs the process-wide meter and tracer providers. Call
// once during startup; safe to call again in tests to reset to noop.
func SetProviders(mp metric.MeterProvider, tp trace.TracerProvider) {
	mu.Lock()
	defer mu.Unlock()
	if mp != nil {
		meterProvider = mp
	}
	if tp != nil {
		tracerProvider = tp
	}
}

// Meter returns a named meter from the current provider.
func Meter(name string) metric.Meter {
	mu.RLock()
	defer mu.RUnlock()
	return meterProvider.Meter(name)
}

// Tracer returns a named tracer from the current provider.
func Tracer(name string) trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return tracerProvider.Tracer(name)
}
