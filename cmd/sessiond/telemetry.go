package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	sessionotel "github.com/MrEthical07/goSession/metrics/export/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// startOTLPMetrics pushes the manager's metrics to an OTLP/gRPC collector.
// An empty endpoint disables the push; /metrics keeps serving either way.
// The returned function flushes and stops the exporter.
func startOTLPMetrics(ctx context.Context, endpoint string, insecure bool, manager *goSession.Manager) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return noop, nil
	}

	target, plaintext, err := otlpTarget(endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure || plaintext {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("sessiond"),
	))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))),
	)

	exporter, err := sessionotel.NewExporter(provider.Meter("github.com/MrEthical07/goSession"), manager)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	return func(ctx context.Context) error {
		_ = exporter.Close()
		return provider.Shutdown(ctx)
	}, nil
}

// otlpTarget reduces an endpoint URL to the host:port gRPC dials, and
// reports whether the scheme asks for plaintext.
func otlpTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}
