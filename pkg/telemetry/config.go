package telemetry

import (
	"os"
	"strconv"
	"strings"

	"github.com/macprof-analysis/pkg/config"
)

// DefaultServiceName identifies spans emitted by the analyzer.
const DefaultServiceName = "macprof"

// Config holds tracing settings. Values come from the telemetry section of
// the application config; the standard OTEL_* variables override them.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Protocol       string // grpc or http/protobuf
	Headers        map[string]string
	Insecure       bool
	Sampler        string
	SamplerArg     string
	ResourceAttrs  map[string]string
}

// NewConfig builds a Config from application settings and the environment.
func NewConfig(settings config.TelemetryConfig, version string) *Config {
	cfg := &Config{
		Enabled:        settings.Enabled,
		ServiceName:    settings.ServiceName,
		ServiceVersion: version,
		Endpoint:       settings.Endpoint,
		Protocol:       settings.Protocol,
		Headers:        make(map[string]string),
		Insecure:       settings.Insecure,
		Sampler:        settings.Sampler,
		ResourceAttrs:  make(map[string]string),
	}
	if settings.SamplerRatio > 0 {
		cfg.SamplerArg = strconv.FormatFloat(settings.SamplerRatio, 'f', -1, 64)
	}
	for k, v := range settings.Headers {
		cfg.Headers[k] = v
	}
	cfg.applyEnv()

	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "unknown"
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "grpc"
	}
	return cfg
}

// LoadFromEnv builds a Config from OTEL_* variables alone.
func LoadFromEnv() *Config {
	return NewConfig(config.TelemetryConfig{}, "")
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Enabled = strings.EqualFold(v, "true")
	}
	setFromEnv(&c.ServiceName, "OTEL_SERVICE_NAME")
	setFromEnv(&c.ServiceVersion, "OTEL_SERVICE_VERSION")
	setFromEnv(&c.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFromEnv(&c.Protocol, "OTEL_EXPORTER_OTLP_PROTOCOL")
	setFromEnv(&c.Sampler, "OTEL_TRACES_SAMPLER")
	setFromEnv(&c.SamplerArg, "OTEL_TRACES_SAMPLER_ARG")
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		c.Insecure = strings.EqualFold(v, "true")
	}
	for k, v := range parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")) {
		c.Headers[k] = v
	}
	for k, v := range parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")) {
		c.ResourceAttrs[k] = v
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// parseKeyValuePairs parses "k1=v1,k2=v2". Values may contain '='.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
