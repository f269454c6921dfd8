package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360/prodcon/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// chdir moves into a temp dir so relative config paths pass the traversal check.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"basic", "blocking", "faulty", "improved"}, PresetNames())

	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			cfg, err := Preset(name)
			require.NoError(t, err)
			assert.NoError(t, cfg.Validate())
			assert.Equal(t, 5, cfg.Buffer.Capacity)
			assert.Equal(t, 100*time.Millisecond, cfg.Producer.Pacing.Std())
			assert.Equal(t, 200*time.Millisecond, cfg.Consumer.Pacing.Std())
			assert.Equal(t, 5*time.Second, cfg.Run.Duration.Std())
		})
	}

	basic, _ := Preset(PresetBasic)
	assert.Equal(t, BufferRing, basic.Buffer.Kind)
	assert.Zero(t, basic.Producer.FaultModulus)

	faulty, _ := Preset(PresetFaulty)
	assert.Equal(t, BufferChannel, faulty.Buffer.Kind)
	assert.Equal(t, uint64(10), faulty.Producer.FaultModulus)
	assert.Equal(t, uint64(15), faulty.Consumer.FaultModulus)
	assert.Equal(t, 1.0, faulty.Producer.FaultProbability)
	assert.Zero(t, faulty.Retry.MaxRetries)

	improved, _ := Preset(PresetImproved)
	assert.Equal(t, 0.5, improved.Producer.FaultProbability)
	assert.Equal(t, 0.5, improved.Consumer.FaultProbability)
	assert.Equal(t, 3, improved.Retry.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, improved.Retry.BaseDelay.Std())
	assert.Equal(t, "linear", improved.Retry.Strategy)

	// Presets are fresh copies
	basic.Buffer.Capacity = 99
	again, _ := Preset(PresetBasic)
	assert.Equal(t, 5, again.Buffer.Capacity)

	_, err := Preset("turbo")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)
	assert.True(t, errors.IsInvalid(err))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad kind", func(c *Config) { c.Buffer.Kind = "heap" }, "buffer.kind"},
		{"zero capacity", func(c *Config) { c.Buffer.Capacity = 0 }, "buffer.capacity"},
		{"no producers", func(c *Config) { c.Producer.Count = 0 }, "producer.count"},
		{"no consumers", func(c *Config) { c.Consumer.Count = 0 }, "consumer.count"},
		{"probability above one", func(c *Config) { c.Producer.FaultProbability = 1.5 }, "producer.fault_probability"},
		{"negative probability", func(c *Config) { c.Consumer.FaultProbability = -0.1 }, "consumer.fault_probability"},
		{"negative pacing", func(c *Config) { c.Consumer.Pacing = -1 }, "consumer.pacing"},
		{"negative rate", func(c *Config) { c.Producer.Rate = -1 }, "producer.rate"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"bad strategy", func(c *Config) { c.Retry.Strategy = "fibonacci" }, "retry.strategy"},
		{"max delay below base", func(c *Config) { c.Retry.MaxDelay = Duration(time.Millisecond) }, "retry.max_delay"},
		{"negative multiplier", func(c *Config) { c.Retry.Multiplier = -2 }, "retry.multiplier"},
		{"flat multiplier", func(c *Config) {
			c.Retry.Strategy = "exponential"
			c.Retry.Multiplier = 1
		}, "retry.multiplier"},
		{"negative duration", func(c *Config) { c.Run.Duration = -1 }, "run.duration"},
		{"bad port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 70000 }, "metrics.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Preset(PresetBasic)
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("all problems reported", func(t *testing.T) {
		cfg, _ := Preset(PresetBasic)
		cfg.Buffer.Capacity = 0
		cfg.Producer.Count = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "buffer.capacity")
		assert.Contains(t, err.Error(), "producer.count")
	})
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		D Duration `json:"d"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"d":"250ms"}`), &v))
	assert.Equal(t, 250*time.Millisecond, v.D.Std())

	require.NoError(t, json.Unmarshal([]byte(`{"d":1000}`), &v))
	assert.Equal(t, time.Microsecond, v.D.Std())

	assert.Error(t, json.Unmarshal([]byte(`{"d":"soon"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"d":true}`), &v))

	v.D = Duration(2 * time.Second)
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2s"}`, string(data))
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("d: 1m30s\n"), &v))
	assert.Equal(t, 90*time.Second, v.D.Std())

	require.NoError(t, yaml.Unmarshal([]byte("d: 5\n"), &v))
	assert.Equal(t, 5*time.Nanosecond, v.D.Std())

	assert.Error(t, yaml.Unmarshal([]byte("d: later\n"), &v))

	v.D = Duration(3 * time.Millisecond)
	data, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "d: 3ms\n", string(data))
}

func TestLoader_Defaults(t *testing.T) {
	loader := NewLoader()
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	want, _ := Preset(PresetBasic)
	assert.Equal(t, want, cfg)
}

func TestLoader_LayersOverrideOnlyPresentFields(t *testing.T) {
	dir := chdir(t)

	writeFile(t, dir, "base.yaml", `
buffer:
  kind: channel
  capacity: 8
producer:
  count: 2
  pacing: 50ms
retry:
  strategy: exponential
  multiplier: 3
`)
	writeFile(t, dir, "local.json", `{
		"buffer": {"capacity": 16},
		"consumer": {"fault_modulus": 15, "fault_probability": 0.25},
		"run": {"duration": "1s"}
	}`)

	loader := NewLoader()
	loader.AddLayer("base.yaml")
	loader.AddLayer("local.json")
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, BufferChannel, cfg.Buffer.Kind, "from base layer")
	assert.Equal(t, 16, cfg.Buffer.Capacity, "later layer wins")
	assert.Equal(t, 2, cfg.Producer.Count)
	assert.Equal(t, 50*time.Millisecond, cfg.Producer.Pacing.Std())
	assert.Equal(t, 200*time.Millisecond, cfg.Consumer.Pacing.Std(), "untouched preset value")
	assert.Equal(t, uint64(15), cfg.Consumer.FaultModulus)
	assert.Equal(t, 0.25, cfg.Consumer.FaultProbability)
	assert.Equal(t, "exponential", cfg.Retry.Strategy)
	assert.Equal(t, 3.0, cfg.Retry.Multiplier)
	assert.Equal(t, 3, cfg.Retry.MaxRetries, "untouched preset value")
	assert.Equal(t, time.Second, cfg.Run.Duration.Std())
}

func TestLoader_UsePreset(t *testing.T) {
	loader := NewLoader()
	require.NoError(t, loader.UsePreset(PresetImproved))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Producer.FaultProbability)

	err = loader.UsePreset("nope")
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("PRODCON_BUFFER_KIND", "channel")
	t.Setenv("PRODCON_BUFFER_CAPACITY", "12")
	t.Setenv("PRODCON_CONSUMER_COUNT", "3")
	t.Setenv("PRODCON_PRODUCER_PACING", "10ms")
	t.Setenv("PRODCON_RUN_DURATION", "30s")
	t.Setenv("PRODCON_METRICS_PORT", "9191")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, BufferChannel, cfg.Buffer.Kind)
	assert.Equal(t, 12, cfg.Buffer.Capacity)
	assert.Equal(t, 3, cfg.Consumer.Count)
	assert.Equal(t, 10*time.Millisecond, cfg.Producer.Pacing.Std())
	assert.Equal(t, 30*time.Second, cfg.Run.Duration.Std())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestLoader_BadEnvOverride(t *testing.T) {
	t.Setenv("PRODCON_BUFFER_CAPACITY", "lots")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "PRODCON_BUFFER_CAPACITY")
}

func TestLoader_ValidationFailure(t *testing.T) {
	dir := chdir(t)
	writeFile(t, dir, "bad.json", `{"buffer": {"capacity": 0}}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	_, err := loader.LoadFile("bad.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	// Without validation the value is loaded as written
	loader.EnableValidation(false)
	cfg, err := loader.LoadFile("bad.json")
	require.NoError(t, err)
	assert.Zero(t, cfg.Buffer.Capacity)
}

func TestLoader_RejectsUnsafeFiles(t *testing.T) {
	dir := chdir(t)
	writeFile(t, dir, "config.toml", "capacity = 5")
	writeFile(t, dir, "broken.json", `{"buffer": {`)
	writeFile(t, dir, "broken.yaml", "buffer: [\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.json"), 0700))

	for _, path := range []string{
		"config.toml",
		"broken.json",
		"broken.yaml",
		"dir.json",
		"missing.json",
		"../outside.json",
		"",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := NewLoader().LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a":{"b":["c","{{{"]}}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a":}}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a":{`)))

	deep := make([]byte, 0, 2*(maxJSONDepth+1))
	for i := 0; i <= maxJSONDepth; i++ {
		deep = append(deep, '[')
	}
	for i := 0; i <= maxJSONDepth; i++ {
		deep = append(deep, ']')
	}
	assert.Error(t, validateJSONDepth(deep))
}

func TestValidateEnvVar(t *testing.T) {
	assert.NoError(t, validateEnvVar("K", "value"))
	assert.Error(t, validateEnvVar("K", "a\x00b"))
	assert.Error(t, validateEnvVar("K", string(make([]byte, maxEnvVarLen+1))))
}

func TestConfig_SaveToFileRoundTrip(t *testing.T) {
	dir := chdir(t)

	cfg, err := Preset(PresetImproved)
	require.NoError(t, err)
	cfg.Run.Seed = 42

	for _, name := range []string{"saved.json", "saved.yaml"} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cfg.SaveToFile(name))

			info, err := os.Stat(filepath.Join(dir, name))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			// Loaded onto a different preset, every field comes from the file
			loader := NewLoader()
			require.NoError(t, loader.UsePreset(PresetBasic))
			loaded, err := loader.LoadFile(name)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}

	assert.Error(t, cfg.SaveToFile("saved.txt"))
}

func TestConfig_CloneAndString(t *testing.T) {
	cfg, _ := Preset(PresetBasic)
	clone := cfg.Clone()
	clone.Buffer.Capacity = 1
	assert.Equal(t, 5, cfg.Buffer.Capacity)

	assert.Contains(t, cfg.String(), `"capacity": 5`)
	assert.Contains(t, cfg.String(), `"pacing": "100ms"`)
}
