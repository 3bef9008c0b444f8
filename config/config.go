// Package config holds the immutable application configuration. The config
// is loaded once at startup from a JSON or YAML file, validated, and passed
// into constructors. Components never reach for configuration globals.
package config

import (
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/pkg/retry"
)

// Dedup backend constants
const (
	DedupBackendMemory = "memory" // in-process TTL cache (single instance)
	DedupBackendKV     = "kv"     // NATS JetStream KV (multi-instance)
)

// Window kind constants
const (
	WindowTumbling = "tumbling"
	WindowSliding  = "sliding"
)

// Config is the complete application configuration.
type Config struct {
	Service    ServiceConfig     `json:"service" yaml:"service"`
	NATS       NATSConfig        `json:"nats" yaml:"nats"`
	HTTP       HTTPConfig        `json:"http" yaml:"http"`
	Pipeline   PipelineConfig    `json:"pipeline" yaml:"pipeline"`
	Dedup      DedupConfig       `json:"dedup" yaml:"dedup"`
	Window     WindowConfig      `json:"window" yaml:"window"`
	Devices    []DeviceConfig    `json:"devices,omitempty" yaml:"devices,omitempty"`
	Ranges     map[string]Range  `json:"ranges,omitempty" yaml:"ranges,omitempty"`
	Transforms []TransformConfig `json:"transforms,omitempty" yaml:"transforms,omitempty"`
	Detectors  []DetectorConfig  `json:"detectors,omitempty" yaml:"detectors,omitempty"`
	Routes     []RouteConfig     `json:"routes,omitempty" yaml:"routes,omitempty"`
	Sinks      []SinkConfig      `json:"sinks,omitempty" yaml:"sinks,omitempty"`
	Retry      RetryConfig       `json:"retry" yaml:"retry"`
	DLQ        DLQConfig         `json:"dlq" yaml:"dlq"`
	Command    CommandConfig     `json:"command" yaml:"command"`
}

// ServiceConfig identifies the running instance.
type ServiceConfig struct {
	Name        string `json:"name" yaml:"name"`
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
	LogLevel    string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat   string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"` // "json" or "text"

	// devices with no accepted event within this window report offline
	DeviceLiveness Duration `json:"deviceLiveness,omitempty" yaml:"deviceLiveness,omitempty"`
}

// NATSConfig configures the NATS connection and subject space.
type NATSConfig struct {
	URL              string   `json:"url" yaml:"url"`
	TelemetrySubject string   `json:"telemetrySubject,omitempty" yaml:"telemetrySubject,omitempty"`
	StateSubject     string   `json:"stateSubject,omitempty" yaml:"stateSubject,omitempty"`
	AckSubject       string   `json:"ackSubject,omitempty" yaml:"ackSubject,omitempty"`
	QueueGroup       string   `json:"queueGroup,omitempty" yaml:"queueGroup,omitempty"`
	ReconnectWait    Duration `json:"reconnectWait,omitempty" yaml:"reconnectWait,omitempty"`
	DrainTimeout     Duration `json:"drainTimeout,omitempty" yaml:"drainTimeout,omitempty"`
}

// HTTPConfig configures the HTTP ingress and control-plane server.
type HTTPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// PipelineConfig configures the intake buffer and worker shards.
type PipelineConfig struct {
	IntakeSize     int      `json:"intakeSize,omitempty" yaml:"intakeSize,omitempty"`
	OverflowPolicy string   `json:"overflowPolicy,omitempty" yaml:"overflowPolicy,omitempty"` // block, drop_oldest, drop_newest
	Shards         int      `json:"shards,omitempty" yaml:"shards,omitempty"`
	DrainTimeout   Duration `json:"drainTimeout,omitempty" yaml:"drainTimeout,omitempty"`
}

// DedupConfig configures the idempotency store. The TTL must cover the
// longest redelivery lateness the transport can produce.
type DedupConfig struct {
	Backend string   `json:"backend,omitempty" yaml:"backend,omitempty"` // memory or kv
	TTL     Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Bucket  string   `json:"bucket,omitempty" yaml:"bucket,omitempty"` // KV bucket name
}

// WindowConfig configures the windowed aggregator.
type WindowConfig struct {
	Kind   string   `json:"kind,omitempty" yaml:"kind,omitempty"` // tumbling or sliding
	Size   Duration `json:"size,omitempty" yaml:"size,omitempty"`
	Stride Duration `json:"stride,omitempty" yaml:"stride,omitempty"` // sliding only
	Grace  Duration `json:"grace,omitempty" yaml:"grace,omitempty"`
	Sweep  Duration `json:"sweep,omitempty" yaml:"sweep,omitempty"`
}

// DeviceConfig seeds the static device registry.
type DeviceConfig struct {
	DeviceID string            `json:"deviceId" yaml:"deviceId"`
	Tenant   string            `json:"tenant" yaml:"tenant"`
	Tags     map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Range bounds a metric's plausible values for validation.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// TransformConfig declares one step of the transform chain, applied in
// file order.
type TransformConfig struct {
	Type   string            `json:"type" yaml:"type"` // unit_convert, clamp, rename, derive
	Field  string            `json:"field" yaml:"field"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// DetectorConfig selects an anomaly strategy for one metric.
type DetectorConfig struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Strategy  string  `json:"strategy" yaml:"strategy"` // zscore or ewma
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Critical  float64 `json:"critical,omitempty" yaml:"critical,omitempty"`
	Alpha     float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"` // ewma smoothing
	MinStddev float64 `json:"minStddev,omitempty" yaml:"minStddev,omitempty"`
	MaxKeys   int     `json:"maxKeys,omitempty" yaml:"maxKeys,omitempty"`
}

// RouteConfig maps records to sinks. A record matches when its kind is in
// Kinds (empty = any kind) and every tag in Tags matches the record's tags.
type RouteConfig struct {
	Name  string            `json:"name" yaml:"name"`
	Kinds []string          `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	Tags  map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Sinks []string          `json:"sinks" yaml:"sinks"`
}

// SinkConfig declares one sink instance.
type SinkConfig struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type" yaml:"type"` // nats, file, httppost, websocket
	Subject string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Path    string   `json:"path,omitempty" yaml:"path,omitempty"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`
	Addr    string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// RetryConfig mirrors retry.Config with human-readable durations.
type RetryConfig struct {
	MaxAttempts  int      `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`
	InitialDelay Duration `json:"initialDelay,omitempty" yaml:"initialDelay,omitempty"`
	MaxDelay     Duration `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	Multiplier   float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	AddJitter    bool     `json:"addJitter,omitempty" yaml:"addJitter,omitempty"`
}

// Policy converts the retry section into the retry package's config.
func (r RetryConfig) Policy() retry.Config {
	return retry.Config{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay.Std(),
		MaxDelay:     r.MaxDelay.Std(),
		Multiplier:   r.Multiplier,
		AddJitter:    r.AddJitter,
	}
}

// DLQConfig configures dead-letter persistence.
type DLQConfig struct {
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // empty = in-memory store
	MaxSize int    `json:"maxSize,omitempty" yaml:"maxSize,omitempty"`
}

// CommandConfig configures the outbound command dispatcher.
type CommandConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Subject string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	AckTTL  Duration `json:"ackTTL,omitempty" yaml:"ackTTL,omitempty"`
}

// Default returns a configuration with development defaults.
func Default() *Config {
	def := retry.DefaultConfig()
	return &Config{
		Service: ServiceConfig{
			Name:           "fieldstream",
			LogLevel:       "info",
			LogFormat:      "text",
			DeviceLiveness: Duration(5 * time.Minute),
		},
		NATS: NATSConfig{
			URL:              "nats://localhost:4222",
			TelemetrySubject: "telemetry.>",
			StateSubject:     "state.>",
			AckSubject:       "cmd.ack.>",
			QueueGroup:       "fieldstream",
			ReconnectWait:    Duration(2 * time.Second),
			DrainTimeout:     Duration(30 * time.Second),
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Pipeline: PipelineConfig{
			IntakeSize:     4096,
			OverflowPolicy: "block",
			Shards:         8,
			DrainTimeout:   Duration(30 * time.Second),
		},
		Dedup: DedupConfig{
			Backend: DedupBackendMemory,
			TTL:     Duration(10 * time.Minute),
			Bucket:  "fieldstream-dedup",
		},
		Window: WindowConfig{
			Kind:  WindowTumbling,
			Size:  Duration(time.Minute),
			Grace: Duration(10 * time.Second),
			Sweep: Duration(time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:  def.MaxAttempts,
			InitialDelay: Duration(def.InitialDelay),
			MaxDelay:     Duration(def.MaxDelay),
			Multiplier:   def.Multiplier,
			AddJitter:    def.AddJitter,
		},
		DLQ: DLQConfig{
			MaxSize: 10000,
		},
		Command: CommandConfig{
			Subject: "cmd",
			AckTTL:  Duration(30 * time.Second),
		},
	}
}

// applyDefaults fills zero-valued fields on a loaded config.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Service.Name == "" {
		c.Service.Name = d.Service.Name
	}
	if c.Service.LogLevel == "" {
		c.Service.LogLevel = d.Service.LogLevel
	}
	if c.Service.LogFormat == "" {
		c.Service.LogFormat = d.Service.LogFormat
	}
	if c.Service.DeviceLiveness <= 0 {
		c.Service.DeviceLiveness = d.Service.DeviceLiveness
	}
	if c.NATS.URL == "" {
		c.NATS.URL = d.NATS.URL
	}
	if c.NATS.TelemetrySubject == "" {
		c.NATS.TelemetrySubject = d.NATS.TelemetrySubject
	}
	if c.NATS.StateSubject == "" {
		c.NATS.StateSubject = d.NATS.StateSubject
	}
	if c.NATS.AckSubject == "" {
		c.NATS.AckSubject = d.NATS.AckSubject
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = d.NATS.QueueGroup
	}
	if c.NATS.ReconnectWait <= 0 {
		c.NATS.ReconnectWait = d.NATS.ReconnectWait
	}
	if c.NATS.DrainTimeout <= 0 {
		c.NATS.DrainTimeout = d.NATS.DrainTimeout
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = d.HTTP.Addr
	}
	if c.Pipeline.IntakeSize <= 0 {
		c.Pipeline.IntakeSize = d.Pipeline.IntakeSize
	}
	if c.Pipeline.OverflowPolicy == "" {
		c.Pipeline.OverflowPolicy = d.Pipeline.OverflowPolicy
	}
	if c.Pipeline.Shards <= 0 {
		c.Pipeline.Shards = d.Pipeline.Shards
	}
	if c.Pipeline.DrainTimeout <= 0 {
		c.Pipeline.DrainTimeout = d.Pipeline.DrainTimeout
	}
	if c.Dedup.Backend == "" {
		c.Dedup.Backend = d.Dedup.Backend
	}
	if c.Dedup.TTL <= 0 {
		c.Dedup.TTL = d.Dedup.TTL
	}
	if c.Dedup.Bucket == "" {
		c.Dedup.Bucket = d.Dedup.Bucket
	}
	if c.Window.Kind == "" {
		c.Window.Kind = d.Window.Kind
	}
	if c.Window.Size <= 0 {
		c.Window.Size = d.Window.Size
	}
	if c.Window.Kind == WindowSliding && c.Window.Stride <= 0 {
		c.Window.Stride = c.Window.Size / 2
	}
	if c.Window.Grace < 0 {
		c.Window.Grace = 0
	}
	if c.Window.Sweep <= 0 {
		c.Window.Sweep = d.Window.Sweep
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	if c.DLQ.MaxSize <= 0 {
		c.DLQ.MaxSize = d.DLQ.MaxSize
	}
	if c.Command.Subject == "" {
		c.Command.Subject = d.Command.Subject
	}
	if c.Command.AckTTL <= 0 {
		c.Command.AckTTL = d.Command.AckTTL
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.url required")
	}
	switch c.Dedup.Backend {
	case DedupBackendMemory, DedupBackendKV:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"dedup.backend must be memory or kv, got "+c.Dedup.Backend)
	}
	switch c.Window.Kind {
	case WindowTumbling, WindowSliding:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"window.kind must be tumbling or sliding, got "+c.Window.Kind)
	}
	if c.Window.Kind == WindowSliding && c.Window.Stride > c.Window.Size {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"window.stride must not exceed window.size")
	}
	switch c.Pipeline.OverflowPolicy {
	case "block", "drop_oldest", "drop_newest":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"pipeline.overflowPolicy must be block, drop_oldest, or drop_newest")
	}

	sinkNames := make(map[string]bool, len(c.Sinks))
	for _, s := range c.Sinks {
		if s.Name == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "sink name required")
		}
		if sinkNames[s.Name] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"duplicate sink name "+s.Name)
		}
		sinkNames[s.Name] = true
		switch s.Type {
		case "nats", "file", "httppost", "websocket":
		default:
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"unknown sink type "+s.Type)
		}
	}
	for _, r := range c.Routes {
		if len(r.Sinks) == 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"route "+r.Name+" has no sinks")
		}
		for _, name := range r.Sinks {
			if !sinkNames[name] {
				return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
					"route "+r.Name+" references unknown sink "+name)
			}
		}
	}
	for _, dc := range c.Detectors {
		switch dc.Strategy {
		case "zscore", "ewma":
		default:
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"detector for "+dc.Metric+": unknown strategy "+dc.Strategy)
		}
		if dc.Strategy == "ewma" && (dc.Alpha <= 0 || dc.Alpha > 1) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"detector for "+dc.Metric+": ewma alpha must be in (0, 1]")
		}
	}
	for metric, r := range c.Ranges {
		if r.Min > r.Max {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"range for "+metric+": min exceeds max")
		}
	}
	return nil
}
