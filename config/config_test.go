package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSON(t *testing.T) {
	raw := `{
		"service": {"name": "fieldstream-test", "logLevel": "debug"},
		"nats": {"url": "nats://nats.internal:4222"},
		"pipeline": {"intakeSize": 128, "overflowPolicy": "drop_oldest", "shards": 4},
		"dedup": {"backend": "memory", "ttl": "5m"},
		"window": {"kind": "tumbling", "size": "1m", "grace": "10s"},
		"ranges": {"temp_c": {"min": -40, "max": 85}},
		"sinks": [
			{"name": "archive", "type": "file", "path": "/var/lib/fieldstream/archive.jsonl"},
			{"name": "downstream", "type": "nats", "subject": "processed"}
		],
		"routes": [
			{"name": "all-events", "kinds": ["event"], "sinks": ["archive", "downstream"]}
		],
		"retry": {"maxAttempts": 5, "initialDelay": "1s", "maxDelay": "30s", "multiplier": 2}
	}`

	cfg, err := LoadJSON([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "fieldstream-test", cfg.Service.Name)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, 128, cfg.Pipeline.IntakeSize)
	assert.Equal(t, "drop_oldest", cfg.Pipeline.OverflowPolicy)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.TTL.Std())
	assert.Equal(t, time.Minute, cfg.Window.Size.Std())
	assert.Equal(t, 10*time.Second, cfg.Window.Grace.Std())
	assert.Equal(t, -40.0, cfg.Ranges["temp_c"].Min)
	assert.Len(t, cfg.Sinks, 2)
	assert.Equal(t, []string{"archive", "downstream"}, cfg.Routes[0].Sinks)

	policy := cfg.Retry.Policy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.InitialDelay)
}

func TestLoadYAML(t *testing.T) {
	raw := `
service:
  name: fieldstream-test
nats:
  url: nats://localhost:4222
window:
  kind: sliding
  size: 2m
  stride: 1m
detectors:
  - metric: temp_c
    strategy: zscore
    threshold: 2
    critical: 3
  - metric: vibration
    strategy: ewma
    alpha: 0.3
    threshold: 5
sinks:
  - name: alerts
    type: websocket
    addr: ":9090"
routes:
  - name: alert-feed
    kinds: [alert]
    sinks: [alerts]
`

	cfg, err := LoadYAML([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, WindowSliding, cfg.Window.Kind)
	assert.Equal(t, 2*time.Minute, cfg.Window.Size.Std())
	assert.Equal(t, time.Minute, cfg.Window.Stride.Std())
	require.Len(t, cfg.Detectors, 2)
	assert.Equal(t, "zscore", cfg.Detectors[0].Strategy)
	assert.Equal(t, 0.3, cfg.Detectors[1].Alpha)
}

func TestDefaultsApplied(t *testing.T) {
	cfg, err := LoadJSON([]byte(`{"nats": {"url": "nats://localhost:4222"}}`))
	require.NoError(t, err)

	assert.Equal(t, "fieldstream", cfg.Service.Name)
	assert.Equal(t, 5*time.Minute, cfg.Service.DeviceLiveness.Std())
	assert.Equal(t, 4096, cfg.Pipeline.IntakeSize)
	assert.Equal(t, "block", cfg.Pipeline.OverflowPolicy)
	assert.Equal(t, 8, cfg.Pipeline.Shards)
	assert.Equal(t, DedupBackendMemory, cfg.Dedup.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Dedup.TTL.Std())
	assert.Equal(t, WindowTumbling, cfg.Window.Kind)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestSlidingStrideDefault(t *testing.T) {
	cfg, err := LoadJSON([]byte(`{
		"nats": {"url": "n"},
		"window": {"kind": "sliding", "size": "2m"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Window.Stride.Std())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default ok", func(*Config) {}, ""},
		{"missing nats url", func(c *Config) { c.NATS.URL = "" }, "nats.url"},
		{"bad dedup backend", func(c *Config) { c.Dedup.Backend = "redis" }, "dedup.backend"},
		{"bad window kind", func(c *Config) { c.Window.Kind = "hopping" }, "window.kind"},
		{
			"stride exceeds size",
			func(c *Config) {
				c.Window.Kind = WindowSliding
				c.Window.Size = Duration(time.Minute)
				c.Window.Stride = Duration(2 * time.Minute)
			},
			"stride",
		},
		{"bad overflow policy", func(c *Config) { c.Pipeline.OverflowPolicy = "reject" }, "overflowPolicy"},
		{
			"route to unknown sink",
			func(c *Config) {
				c.Routes = []RouteConfig{{Name: "r", Sinks: []string{"nope"}}}
			},
			"unknown sink",
		},
		{
			"duplicate sink name",
			func(c *Config) {
				c.Sinks = []SinkConfig{
					{Name: "a", Type: "file", Path: "/tmp/a"},
					{Name: "a", Type: "nats", Subject: "x"},
				}
			},
			"duplicate sink",
		},
		{
			"bad ewma alpha",
			func(c *Config) {
				c.Detectors = []DetectorConfig{{Metric: "m", Strategy: "ewma", Alpha: 1.5}}
			},
			"alpha",
		},
		{
			"inverted range",
			func(c *Config) {
				c.Ranges = map[string]Range{"m": {Min: 10, Max: 0}}
			},
			"min exceeds max",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.wantErr)
			}
		})
	}
}

func TestLoadJSON_RejectsUnknownFields(t *testing.T) {
	_, err := LoadJSON([]byte(`{"nats": {"url": "n"}, "mystery": true}`))
	assert.Error(t, err)
}

func TestDuration_Unmarshal(t *testing.T) {
	cfg, err := LoadJSON([]byte(`{"nats": {"url": "n", "reconnectWait": 5}}`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait.Std())

	_, err = LoadJSON([]byte(`{"nats": {"url": "n", "reconnectWait": "soon"}}`))
	assert.Error(t, err)
}
