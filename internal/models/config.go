package models

// Config holds the application configuration
type Config struct {
	Channel  ChannelConfig  `json:"channel"`
	History  HistoryConfig  `json:"history"`
	Database DatabaseConfig `json:"database"`
	Retry    RetryConfig    `json:"retry"`
	Server   ServerConfig   `json:"server"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// ChannelConfig holds the realtime channel configuration
type ChannelConfig struct {
	BaseURL              string `json:"base_url"`
	ChatID               string `json:"chat_id"`
	HeartbeatIntervalSec int    `json:"heartbeatIntervalSec"`
	StoreCapacity        int    `json:"storeCapacity"`
}

// HistoryConfig holds the history retrieval API configuration
type HistoryConfig struct {
	APIBaseURL string `json:"api_base_url"`
	FetchLimit int    `json:"fetchLimit"`
	TimeoutSec int    `json:"timeoutSec"`
}

// DatabaseConfig holds the outbound spool configuration.
// An empty path disables the spool; queued messages then live in memory only.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RetryConfig holds reconnect backoff configuration.
// DelaysSec is the fixed ascending schedule; the last value repeats once the
// attempt counter runs past the end of the list.
type RetryConfig struct {
	DelaysSec   []int `json:"delaysSec"`
	MaxAttempts int   `json:"maxAttempts"`
}

// ServerConfig holds the status/control HTTP server configuration
type ServerConfig struct {
	Port int `json:"port"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	ServiceName  string  `json:"service_name"`
	Environment  string  `json:"environment"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	Enabled      bool    `json:"enabled"`
	UseStdout    bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
