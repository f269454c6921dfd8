package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c360/prodcon/errors"
	"gopkg.in/yaml.v3"
)

// Buffer kinds
const (
	BufferRing    = "ring"
	BufferChannel = "channel"
)

// Config is the complete configuration of one producer/consumer run
type Config struct {
	Buffer   BufferConfig  `json:"buffer" yaml:"buffer"`
	Producer WorkerConfig  `json:"producer" yaml:"producer"`
	Consumer WorkerConfig  `json:"consumer" yaml:"consumer"`
	Retry    RetryConfig   `json:"retry" yaml:"retry"`
	Run      RunConfig     `json:"run" yaml:"run"`
	Metrics  MetricsConfig `json:"metrics" yaml:"metrics"`
}

// BufferConfig selects the shared buffer
type BufferConfig struct {
	Kind     string `json:"kind" yaml:"kind"`         // "ring" or "channel"
	Capacity int    `json:"capacity" yaml:"capacity"` // at least 1
}

// WorkerConfig configures every worker of one role
type WorkerConfig struct {
	Count            int      `json:"count" yaml:"count"`
	FaultModulus     uint64   `json:"fault_modulus" yaml:"fault_modulus"`         // 0 disables faults
	FaultProbability float64  `json:"fault_probability" yaml:"fault_probability"` // gate in [0, 1]
	Pacing           Duration `json:"pacing" yaml:"pacing"`                       // sleep after each item
	Rate             float64  `json:"rate" yaml:"rate"`                           // items/second cap, 0 for none
	Limit            uint64   `json:"limit" yaml:"limit"`                         // per worker, 0 for unlimited
}

// RetryConfig configures the backoff policy shared by all workers
type RetryConfig struct {
	MaxRetries int      `json:"max_retries" yaml:"max_retries"`
	BaseDelay  Duration `json:"base_delay" yaml:"base_delay"`
	Strategy   string   `json:"strategy" yaml:"strategy"` // "linear" or "exponential"
	Multiplier float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	MaxDelay   Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	Jitter     bool     `json:"jitter" yaml:"jitter"`
}

// RunConfig bounds the run
type RunConfig struct {
	Duration    Duration `json:"duration" yaml:"duration"`         // 0 runs until limits or a signal
	GracePeriod Duration `json:"grace_period" yaml:"grace_period"` // how long to await workers after stop
	Seed        int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// Duration is a time.Duration written as a string ("200ms") in config files.
// Plain numbers are read as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := parseDuration(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	parsed, err := parseDuration(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func parseDuration(v any) (Duration, error) {
	switch val := v.(type) {
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", val, err)
		}
		return Duration(d), nil
	case float64:
		return Duration(int64(val)), nil
	case int:
		return Duration(int64(val)), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid duration %v (%T)", v, v)
	}
}

// Validate checks the configuration for values a run cannot use
func (c *Config) Validate() error {
	var problems []string

	switch c.Buffer.Kind {
	case BufferRing, BufferChannel:
	default:
		problems = append(problems, fmt.Sprintf("buffer.kind %q must be %q or %q",
			c.Buffer.Kind, BufferRing, BufferChannel))
	}
	if c.Buffer.Capacity < 1 {
		problems = append(problems, fmt.Sprintf("buffer.capacity %d must be at least 1", c.Buffer.Capacity))
	}

	problems = append(problems, c.Producer.problems("producer")...)
	problems = append(problems, c.Consumer.problems("consumer")...)

	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries cannot be negative")
	}
	if c.Retry.BaseDelay < 0 {
		problems = append(problems, "retry.base_delay cannot be negative")
	}
	if c.Retry.MaxDelay < 0 {
		problems = append(problems, "retry.max_delay cannot be negative")
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.BaseDelay {
		problems = append(problems, fmt.Sprintf("retry.max_delay %s must be at least retry.base_delay %s",
			c.Retry.MaxDelay, c.Retry.BaseDelay))
	}
	if c.Retry.Multiplier < 0 {
		problems = append(problems, "retry.multiplier cannot be negative")
	}
	switch c.Retry.Strategy {
	case "", "linear":
	case "exponential":
		// zero selects the default growth factor
		if c.Retry.Multiplier > 0 && c.Retry.Multiplier <= 1 {
			problems = append(problems, fmt.Sprintf("retry.multiplier %v must be greater than 1", c.Retry.Multiplier))
		}
	default:
		problems = append(problems, fmt.Sprintf("retry.strategy %q must be linear or exponential", c.Retry.Strategy))
	}

	if c.Run.Duration < 0 {
		problems = append(problems, "run.duration cannot be negative")
	}
	if c.Run.GracePeriod < 0 {
		problems = append(problems, "run.grace_period cannot be negative")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		problems = append(problems, fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "configuration check")
	}
	return nil
}

func (w WorkerConfig) problems(role string) []string {
	var problems []string
	if w.Count < 1 {
		problems = append(problems, fmt.Sprintf("%s.count %d must be at least 1", role, w.Count))
	}
	if w.FaultProbability < 0 || w.FaultProbability > 1 {
		problems = append(problems, fmt.Sprintf("%s.fault_probability %v outside [0, 1]", role, w.FaultProbability))
	}
	if w.Pacing < 0 {
		problems = append(problems, fmt.Sprintf("%s.pacing cannot be negative", role))
	}
	if w.Rate < 0 {
		problems = append(problems, fmt.Sprintf("%s.rate cannot be negative", role))
	}
	return problems
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as indented JSON
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// SaveToFile saves the configuration, as YAML when path ends in .yaml or
// .yml and as JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode configuration")
	}
	return safeWriteFile(path, data)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	preset     string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "PRODCON",
		preset:     PresetBasic,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// UsePreset selects the preset that file layers are merged onto
func (l *Loader) UsePreset(name string) error {
	if _, err := Preset(name); err != nil {
		return err
	}
	l.preset = name
	return nil
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	// Start with the preset
	cfg, err := Preset(l.preset)
	if err != nil {
		return nil, err
	}

	// Load each layer and merge using map-based approach
	for _, path := range l.layers {
		rawConfig, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = l.mergeFromMap(cfg, rawConfig)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	// Apply environment overrides
	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Validate if enabled
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRaw loads a JSON or YAML layer as a map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	// Use secure file reading with validation
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var rawConfig map[string]any
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse YAML")
		}
		return rawConfig, nil
	}

	// Validate JSON depth to prevent DoS
	if err := validateJSONDepth(data); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "check JSON structure")
	}
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse JSON")
	}
	return rawConfig, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	// Marshal the base config to JSON then to map
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	// Deep merge the maps
	mergedMap := deepMergeMaps(baseMap, override)

	// Convert back to Config
	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "mergeFromMap", "decode merged configuration")
	}

	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	// Copy base values
	for k, v := range base {
		result[k] = v
	}

	// Override with values from override map
	for k, v := range override {
		if v == nil {
			continue
		}

		// If both base and override have maps at this key, merge them
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		// Otherwise, override takes precedence
		result[k] = v
	}

	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		key   string
		apply func(string) error
	}{
		{"_BUFFER_KIND", func(v string) error { cfg.Buffer.Kind = v; return nil }},
		{"_BUFFER_CAPACITY", intSetter(&cfg.Buffer.Capacity)},
		{"_PRODUCER_COUNT", intSetter(&cfg.Producer.Count)},
		{"_CONSUMER_COUNT", intSetter(&cfg.Consumer.Count)},
		{"_PRODUCER_PACING", durationSetter(&cfg.Producer.Pacing)},
		{"_CONSUMER_PACING", durationSetter(&cfg.Consumer.Pacing)},
		{"_RETRY_MAX_RETRIES", intSetter(&cfg.Retry.MaxRetries)},
		{"_RETRY_BASE_DELAY", durationSetter(&cfg.Retry.BaseDelay)},
		{"_RUN_DURATION", durationSetter(&cfg.Run.Duration)},
		{"_METRICS_PORT", func(v string) error {
			cfg.Metrics.Enabled = true
			return intSetter(&cfg.Metrics.Port)(v)
		}},
	}

	for _, o := range overrides {
		key := l.envPrefix + o.key
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "check environment")
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s: %w", errors.ErrInvalidConfig, key, err),
				"Loader", "applyEnvOverrides", "parse environment")
		}
	}
	return nil
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func durationSetter(dst *Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = Duration(d)
		return nil
	}
}
