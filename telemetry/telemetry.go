// Package telemetry wires OpenTelemetry tracing for tree operations.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const DefaultServiceName = "merkletree"

// Client owns the tracer provider installed for the process.
// A disabled client leaves the global no-op provider in place.
type Client struct {
	provider *sdktrace.TracerProvider
	disabled bool
}

func NewNoOpClient() *Client {
	return &Client{disabled: true}
}

// NewClient exports spans over OTLP/HTTP to endpoint. An empty endpoint
// yields a no-op client.
func NewClient(ctx context.Context, endpoint, serviceName string) (*Client, error) {
	if endpoint == "" {
		return NewNoOpClient(), nil
	}
	host, insecure, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", endpoint, err)
	}
	return newClient(sdktrace.WithBatcher(exp), serviceName), nil
}

// NewClientWithExporter exports every span synchronously to exp.
func NewClientWithExporter(exp sdktrace.SpanExporter, serviceName string) *Client {
	return newClient(sdktrace.WithSyncer(exp), serviceName)
}

func newClient(opt sdktrace.TracerProviderOption, serviceName string) *Client {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(opt, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return &Client{provider: tp}
}

func (c *Client) Enabled() bool {
	return !c.disabled
}

func (c *Client) Tracer(name string) trace.Tracer {
	if c.disabled {
		return otel.Tracer(name)
	}
	return c.provider.Tracer(name)
}

// Shutdown flushes pending spans.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.disabled || c.provider == nil {
		return nil
	}
	return c.provider.Shutdown(ctx)
}

// Tracer returns a tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// ParseEndpoint accepts host:port or an http(s) URL and returns the host:port
// and whether the transport is plaintext.
func ParseEndpoint(endpoint string) (string, bool, error) {
	insecure := true
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
		insecure = false
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if endpoint == "" || strings.Contains(endpoint, "/") || !strings.Contains(endpoint, ":") {
		return "", false, fmt.Errorf("invalid otlp endpoint %q, want host:port", endpoint)
	}
	return endpoint, insecure, nil
}
