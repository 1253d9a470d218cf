package instrumentation

import (
	"errors"
	"fmt"
	"time"
)

// Config configures metrics, tracing and the audit log. It is decoded from
// the "instrumentation" block of the mailcontract configuration.
type Config struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName       string `mapstructure:"service_name" yaml:"service_name"`
	ServiceInstanceID string `mapstructure:"service_instance_id" yaml:"service_instance_id"`

	// ServiceVersion is the binary version, set at startup.
	ServiceVersion string `mapstructure:"-" yaml:"-"`

	// MetricsExporter is prometheus, otlp or stdout.
	MetricsExporter string `mapstructure:"metrics_exporter" yaml:"metrics_exporter"`
	// TracingExporter is otlp, stdout or none.
	TracingExporter string `mapstructure:"tracing_exporter" yaml:"tracing_exporter"`

	// OTLPEndpoint is host:port without a scheme. TLS is used unless
	// OTLPInsecure is set.
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure      bool    `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate" yaml:"trace_sampling_rate"`

	// DetailedLabels adds the mailbox domain to mail operation metrics.
	DetailedLabels bool `mapstructure:"detailed_labels" yaml:"detailed_labels"`

	AuditLogging AuditLoggingConfig `mapstructure:"audit" yaml:"audit"`
}

// AuditLoggingConfig controls the audit log of tool calls.
type AuditLoggingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// IncludePII logs full mailbox addresses instead of hashes.
	IncludePII bool `mapstructure:"include_pii" yaml:"include_pii"`
}

// DefaultConfig returns the built-in settings: Prometheus metrics, no
// tracing, audit logging without PII.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		ServiceName:       "mailcontract",
		ServiceVersion:    "unknown",
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		AuditLogging: AuditLoggingConfig{
			Enabled: true,
		},
	}
}

// Validate checks the exporter names, the sampling rate and that OTLP
// exporters have an endpoint.
func (c *Config) Validate() error {
	var errs []error
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate))
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter))
	}
	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter))
	}

	if c.OTLPEndpoint == "" && (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) {
		errs = append(errs, errors.New("OTLP endpoint is required when an exporter is otlp (instrumentation.otlp_endpoint)"))
	}
	return errors.Join(errs...)
}

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	ExtractionResultSuccess     = "success"
	ExtractionResultUnsupported = "unsupported"
	ExtractionResultFailed      = "failed"

	SummaryResultSuccess  = "success"
	SummaryResultFallback = "fallback"
	SummaryResultError    = "error"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)
