// Package telemetry wires OpenTelemetry spans and metrics for liquid-mail.
//
// Nothing is exported unless LIQUID_MAIL_OTEL_ENABLED=true:
//
//	LIQUID_MAIL_OTEL_ENABLED=true              turn telemetry on
//	LIQUID_MAIL_OTEL_STDOUT=true               dump spans and metrics to stderr
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT=...   push metrics over OTLP/HTTP (host:port)
//	OTEL_EXPORTER_OTLP_ENDPOINT=...           used when the metrics endpoint is unset
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/liquidmail/liquid-mail"

// Export intervals for the periodic metric readers.
const (
	stdoutInterval = 15 * time.Second
	otlpInterval   = 30 * time.Second
)

// Settings selects the exporters. It is read from the environment.
type Settings struct {
	Enabled      bool
	Stdout       bool
	OTLPEndpoint string
}

// SettingsFromEnv reads Settings from the LIQUID_MAIL_OTEL_* and OTEL_* variables.
func SettingsFromEnv() Settings {
	s := Settings{
		Enabled:      os.Getenv("LIQUID_MAIL_OTEL_ENABLED") == "true",
		Stdout:       os.Getenv("LIQUID_MAIL_OTEL_STDOUT") == "true",
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
	}
	if s.OTLPEndpoint == "" {
		s.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return s
}

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry is turned on in the environment.
func Enabled() bool { return SettingsFromEnv().Enabled }

// Init installs global providers for serviceName. Disabled telemetry gets
// no-op providers.
func Init(ctx context.Context, serviceName, version string) error {
	s := SettingsFromEnv()
	if !s.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTracerProvider(res, s)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := newMeterProvider(ctx, res, s)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

// newTracerProvider samples every span. Spans are only written out when
// stdout export is on, and then to stderr so JSON on stdout stays clean.
func newTracerProvider(res *resource.Resource, s Settings) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if s.Stdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, s Settings) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if s.Stdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(stdoutInterval))))
	}
	if s.OTLPEndpoint != "" {
		exp, err := newOTLPMetricExporter(ctx, s.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpInterval))))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns the named tracer, defaulting to the module scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns the named meter, defaulting to the module scope.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range shutdownFns {
		errs = append(errs, fn(ctx))
	}
	shutdownFns = nil
	return errors.Join(errs...)
}
