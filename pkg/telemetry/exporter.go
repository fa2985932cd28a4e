package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc/credentials/insecure"
)

func createExporter(ctx context.Context, cfg *Config) (*otlptrace.Exporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case "http/protobuf", "http":
		return otlptracehttp.New(ctx, httpOptions(cfg)...)
	default:
		return otlptracegrpc.New(ctx, grpcOptions(cfg)...)
	}
}

// splitEndpoint strips the scheme; plain http implies an insecure channel.
func splitEndpoint(endpoint string) (host string, plaintext bool) {
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return rest, true
	}
	return strings.TrimPrefix(endpoint, "https://"), false
}

func grpcOptions(cfg *Config) []otlptracegrpc.Option {
	var opts []otlptracegrpc.Option
	host, plaintext := splitEndpoint(cfg.Endpoint)
	if host != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(host))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.Insecure || plaintext {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	return opts
}

func httpOptions(cfg *Config) []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	host, plaintext := splitEndpoint(cfg.Endpoint)
	if host != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(host))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Insecure || plaintext {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}
