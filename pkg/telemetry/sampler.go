package telemetry

import (
	"strconv"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler maps OTEL_TRACES_SAMPLER names to samplers. Unknown or empty
// names sample everything.
func createSampler(cfg *Config) sdktrace.Sampler {
	switch cfg.Sampler {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(parseRatio(cfg.SamplerArg))
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(parseRatio(cfg.SamplerArg)))
	default:
		return sdktrace.AlwaysSample()
	}
}

// parseRatio returns s clamped to [0, 1], or 1 when s is not a number.
func parseRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(s, 64)
	switch {
	case err != nil:
		return 1.0
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1.0
	}
	return ratio
}
