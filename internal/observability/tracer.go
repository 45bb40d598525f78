// Package observability configures the process-wide OpenTelemetry tracer
// provider, the way the teacher's pkg/observability does, reduced to the
// one thing this module's Domain Stack promises (§4, "workflow/agent span
// instrumentation"): real spans around the Workflow Executor and the
// Agent Loop. No OTLP/stdout exporter is wired — the corpus dependency
// this is grounded on is go.opentelemetry.io/otel(+sdk,trace) alone, with
// no exporter package among it — so a configured TracerProvider still
// creates, samples, and ends genuine spans; it just has no span processor
// attached to ship them anywhere yet.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig toggles tracing on, naming the service reported on every
// span's resource attributes when built out further. Mirrors the
// Enabled/ServiceName fields of the teacher's TracerConfig; the
// exporter/endpoint/sampling-rate fields are dropped along with the
// exporter dependency they configure.
type TracerConfig struct {
	Enabled     bool
	ServiceName string
}

// InitGlobalTracer installs the process-wide TracerProvider: a real
// sdktrace.TracerProvider when cfg.Enabled, otherwise a no-op provider so
// every Start/End call elsewhere in the module stays cheap and safe to
// call unconditionally.
func InitGlobalTracer(_ context.Context, cfg TracerConfig) trace.TracerProvider {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp
	}
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the named tracer from whatever TracerProvider is
// currently installed globally (a no-op one before InitGlobalTracer is
// ever called).
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
