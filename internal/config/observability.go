package config

// TracingConfig holds OTLP trace export settings.
// Tracing is disabled when Endpoint is empty.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, e.g. "localhost:4318".
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// ServiceName is reported as service.name on exported spans.
	ServiceName string `mapstructure:"service_name" json:"service_name"`

	// Environment is reported as deployment.environment on exported spans.
	Environment string `mapstructure:"environment" json:"environment"`

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `mapstructure:"sample_rate" json:"sample_rate"`
}

// Enabled reports whether trace export is configured.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != ""
}
