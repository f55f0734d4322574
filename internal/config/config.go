// Copyright 2025 Certen Protocol
//
// Package config loads this core's YAML configuration, substituting
// ${VAR}/${VAR:-default} environment references exactly the way
// pkg/config/anchor_config.go's LoadAnchorConfig does, and applies the
// same zero-value defaulting pass as its applyDefaults.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration marshals as a Go duration string in YAML ("30s", "2m") the
// same way pkg/config.Duration does.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Config is this core's top-level configuration.
type Config struct {
	Environment string `yaml:"environment"`

	Replay    ReplaySettings    `yaml:"replay"`
	Store     StoreSettings     `yaml:"store"`
	Backfill  BackfillSettings  `yaml:"backfill"`
	Scheduler SchedulerSettings `yaml:"scheduler"`
	Alert     AlertSettings     `yaml:"alert"`
	Metrics   MetricsSettings   `yaml:"metrics"`
}

// ReplaySettings are the top-level replay.* options: whether the bridge
// runs at all, the session's trace id, and its tracing dials.
type ReplaySettings struct {
	Enabled bool            `yaml:"enabled"`
	TraceID string          `yaml:"traceId"`
	Tracing TracingSettings `yaml:"tracing"`
}

// TracingSettings controls deterministic sampling and the optional
// best-effort OpenTelemetry span emission.
type TracingSettings struct {
	SampleRate float64 `yaml:"sampleRate"`
	EmitOtel   bool    `yaml:"emitOtel"`
}

// StoreSettings configures the timeline store's backend and retention.
type StoreSettings struct {
	Backend string `yaml:"backend"` // "memory" | "goleveldb"
	DataDir string `yaml:"data_dir"`

	TTL                Duration `yaml:"ttl"`
	MaxEventsTotal      uint64  `yaml:"max_events_total"`
	MaxEventsPerEntity  uint32  `yaml:"max_events_per_entity"`
	CoalesceDuplicates  bool    `yaml:"coalesce_duplicates"`
}

// BackfillSettings configures one Run of the backfill service.
type BackfillSettings struct {
	PageSize       int      `yaml:"page_size"`
	MaxRetries     int      `yaml:"max_retries"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	Strict         bool     `yaml:"strict"`
	ToSlot         *uint64  `yaml:"to_slot"`
}

// SchedulerSettings configures the speculative scheduler.
type SchedulerSettings struct {
	MaxSpeculationDepth         uint32   `yaml:"max_speculation_depth"`
	MaxSpeculativeStake         uint64   `yaml:"max_speculative_stake"`
	EnableSpeculation           bool     `yaml:"enable_speculation"`
	AllowPrivateSpeculation     bool     `yaml:"allow_private_speculation"`
	MinReputationForSpeculation uint32   `yaml:"min_reputation_for_speculation"`
	ProofTimeout                Duration `yaml:"proof_timeout"`
	MaxRollbackRatePercent      uint8    `yaml:"max_rollback_rate_percent"`
	SpeculatableDependencyTypes []string `yaml:"speculatable_dependency_types"`
}

// AlertSettings configures the anomaly sink.
type AlertSettings struct {
	Sink        string `yaml:"sink"` // "log" | "postgres"
	DatabaseURL string `yaml:"database_url"`
}

// MetricsSettings configures the Prometheus exporter.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} references with the
// environment value, or the :- fallback when the variable is unset or
// empty.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads and parses the YAML config at path, substituting
// environment references first, then applies defaults to any
// zero-valued field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Backfill.PageSize == 0 {
		c.Backfill.PageSize = 100
	}
	if c.Backfill.MaxRetries == 0 {
		c.Backfill.MaxRetries = 5
	}
	if c.Backfill.InitialBackoff == 0 {
		c.Backfill.InitialBackoff = Duration(100 * time.Millisecond)
	}
	if c.Backfill.MaxBackoff == 0 {
		c.Backfill.MaxBackoff = Duration(30 * time.Second)
	}
	if c.Scheduler.MaxSpeculationDepth == 0 {
		c.Scheduler.MaxSpeculationDepth = 3
	}
	if c.Scheduler.MaxRollbackRatePercent == 0 {
		c.Scheduler.MaxRollbackRatePercent = 25
	}
	if c.Scheduler.ProofTimeout == 0 {
		c.Scheduler.ProofTimeout = Duration(30 * time.Second)
	}
	if len(c.Scheduler.SpeculatableDependencyTypes) == 0 {
		c.Scheduler.SpeculatableDependencyTypes = []string{"Data", "Order"}
	}
	if c.Replay.Tracing.SampleRate == 0 {
		c.Replay.Tracing.SampleRate = 1.0
	}
	if c.Alert.Sink == "" {
		c.Alert.Sink = "log"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate reports whether the loaded configuration is usable in
// production, mirroring AnchorConfig.ValidateAnchorConfig's
// accumulate-errors-then-report shape.
func (c *Config) Validate() error {
	var problems []string
	if c.Store.Backend != "memory" && c.Store.Backend != "goleveldb" {
		problems = append(problems, fmt.Sprintf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Store.Backend == "goleveldb" && c.Store.DataDir == "" {
		problems = append(problems, "store.data_dir is required for the goleveldb backend")
	}
	if c.Alert.Sink == "postgres" && c.Alert.DatabaseURL == "" {
		problems = append(problems, "alert.database_url is required for the postgres sink")
	}
	if c.Replay.Tracing.SampleRate < 0 || c.Replay.Tracing.SampleRate > 1 {
		problems = append(problems, fmt.Sprintf("replay.tracing.sampleRate: %v out of [0,1]", c.Replay.Tracing.SampleRate))
	}
	for _, dt := range c.Scheduler.SpeculatableDependencyTypes {
		if dt != "Data" && dt != "Order" && dt != "Control" {
			problems = append(problems, fmt.Sprintf("scheduler.speculatable_dependency_types: unknown dependency type %q", dt))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration: %v", problems)
	}
	return nil
}
