// Package config is PurC's central configuration tree: JSON file plus
// environment-variable overrides, loaded once at process startup and
// handed down through internal/instance to every component it builds.
// Adapted field-for-shape from the teacher's internal/config: same
// DefaultConfig/LoadFromFile/LoadFromEnv split, same per-component
// sub-struct layout, retargeted from VM-pool/executor settings to
// scheduler/fetcher/renderer/observability settings.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// SchedulerConfig holds per-instance tick-loop timing (spec §4.6).
type SchedulerConfig struct {
	TimeSlice    time.Duration `json:"time_slice"`    // default: 5ms
	IdleInterval time.Duration `json:"idle_interval"` // default: 100ms
	TickSleep    time.Duration `json:"tick_sleep"`    // default: 10ms
}

// FetcherConfig holds the URL-load adapter's transport settings (spec §4).
type FetcherConfig struct {
	RequestTimeout time.Duration `json:"request_timeout"` // default: 10s
}

// RendererConfig holds the renderer-bridge connection settings (spec §4.8).
type RendererConfig struct {
	CloseGrace time.Duration `json:"close_grace"` // default: 30s, reconnect window
	VsockAddr  string        `json:"vsock_addr"`   // e.g. "vsock://:8888"
	RESTAddr   string        `json:"rest_addr"`    // diagnostic HTTP listener, empty disables
}

// MoveBufferConfig selects and sizes the cross-instance message queue
// (spec §3 "Move buffer", §6).
type MoveBufferConfig struct {
	Backend  string `json:"backend"`   // "local" or "redis"
	Capacity int    `json:"capacity"`  // default: 64
	RedisDSN string `json:"redis_dsn"` // used when backend == "redis"
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`      // Default: false
	Exporter    string  `json:"exporter"`     // otlp-http (or otlp), noop
	Endpoint    string  `json:"endpoint"`     // localhost:4318
	ServiceName string  `json:"service_name"` // purcd
	SampleRate  float64 `json:"sample_rate"`  // 1.0
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`   // Default: true
	Namespace string `json:"namespace"` // purc
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level"`            // debug, info, warn, error
	Format         string `json:"format"`           // text, json
	IncludeTraceID bool   `json:"include_trace_id"` // correlate with traces
}

// ObservabilityConfig holds all observability-related settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// StoreConfig holds the optional diagnostic audit-trail database.
type StoreConfig struct {
	Enabled bool   `json:"enabled"` // Default: false
	DSN     string `json:"dsn"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	InstanceID string `json:"instance_id"`
	LogLevel   string `json:"log_level"`
}

// Config is the central configuration struct embedding every component's
// settings.
type Config struct {
	Daemon        DaemonConfig        `json:"daemon"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	Fetcher       FetcherConfig       `json:"fetcher"`
	Renderer      RendererConfig      `json:"renderer"`
	MoveBuffer    MoveBufferConfig    `json:"move_buffer"`
	Observability ObservabilityConfig `json:"observability"`
	Store         StoreConfig         `json:"store"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			InstanceID: "default",
			LogLevel:   "info",
		},
		Scheduler: SchedulerConfig{
			TimeSlice:    5 * time.Millisecond,
			IdleInterval: 100 * time.Millisecond,
			TickSleep:    10 * time.Millisecond,
		},
		Fetcher: FetcherConfig{
			RequestTimeout: 10 * time.Second,
		},
		Renderer: RendererConfig{
			CloseGrace: 30 * time.Second,
		},
		MoveBuffer: MoveBufferConfig{
			Backend:  "local",
			Capacity: 64,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "purcd",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "purc",
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
		Store: StoreConfig{
			Enabled: false,
		},
	}
}

// LoadFromFile loads configuration from a JSON file, overlaying it onto
// DefaultConfig so an incomplete file still yields sane values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PURC_INSTANCE_ID"); v != "" {
		cfg.Daemon.InstanceID = v
	}
	if v := os.Getenv("PURC_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}

	if v := os.Getenv("PURC_SCHEDULER_TIME_SLICE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.TimeSlice = d
		}
	}
	if v := os.Getenv("PURC_SCHEDULER_IDLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.IdleInterval = d
		}
	}
	if v := os.Getenv("PURC_SCHEDULER_TICK_SLEEP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.TickSleep = d
		}
	}

	if v := os.Getenv("PURC_FETCHER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetcher.RequestTimeout = d
		}
	}

	if v := os.Getenv("PURC_RENDERER_CLOSE_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Renderer.CloseGrace = d
		}
	}
	if v := os.Getenv("PURC_RENDERER_VSOCK_ADDR"); v != "" {
		cfg.Renderer.VsockAddr = v
	}
	if v := os.Getenv("PURC_RENDERER_REST_ADDR"); v != "" {
		cfg.Renderer.RESTAddr = v
	}

	if v := os.Getenv("PURC_MOVEBUFFER_BACKEND"); v != "" {
		cfg.MoveBuffer.Backend = v
	}
	if v := os.Getenv("PURC_MOVEBUFFER_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MoveBuffer.Capacity = n
		}
	}
	if v := os.Getenv("PURC_MOVEBUFFER_REDIS_DSN"); v != "" {
		cfg.MoveBuffer.RedisDSN = v
		cfg.MoveBuffer.Backend = "redis"
	}

	if v := os.Getenv("PURC_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("PURC_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("PURC_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("PURC_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("PURC_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("PURC_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("PURC_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("PURC_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}

	if v := os.Getenv("PURC_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = parseBool(v)
	}
	if v := os.Getenv("PURC_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
		cfg.Store.Enabled = true
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
