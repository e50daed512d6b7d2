package observability

import (
	"strings"

	"github.com/smallbiznis/botquota/internal/config"
	"github.com/smallbiznis/botquota/internal/observability/logger"
	"github.com/smallbiznis/botquota/internal/observability/metrics"
	"github.com/smallbiznis/botquota/internal/observability/tracing"
	"github.com/spf13/viper"
)

// Config is the logging and telemetry setup for one process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig layers the OTEL_* and LOG_* environment over the app config.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("deployment_env", cfg.Environment)
	v.SetDefault("service_version", cfg.AppVersion)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", cfg.OTLPEndpoint)
	v.SetDefault("otel_exporter_otlp_protocol", "grpc")
	v.SetDefault("otel_sampling_ratio", 0.1)

	protocol := v.GetString("otel_exporter_otlp_protocol")
	if traces := strings.TrimSpace(v.GetString("otel_exporter_otlp_traces_protocol")); traces != "" {
		protocol = traces
	}

	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "botquota"
	}

	return Config{
		ServiceName:          name,
		Environment:          strings.TrimSpace(v.GetString("deployment_env")),
		Version:              strings.TrimSpace(v.GetString("service_version")),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		OtelEnabled:          v.GetBool("otel_enabled"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(protocol)),
		OtelSamplingRatio:    v.GetFloat64("otel_sampling_ratio"),
	}
}

// Debug is true for debug logging or any non-deployed environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
