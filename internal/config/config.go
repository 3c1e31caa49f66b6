// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Server() ServerConfig
	NATS() NATSConfig
	Scoring() ScoringConfig
	Drift() DriftConfig
	Health() HealthConfig
	Reassessment() ReassessmentConfig
	Worker() WorkerConfig

	// Setters used by CLI flag overrides.
	SetDatabaseURL(string)
	SetServerAddr(string)
	SetWorkerEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	ServerCfg       ServerConfig       `mapstructure:"server" yaml:"server"`
	NATSCfg         NATSConfig         `mapstructure:"nats" yaml:"nats"`
	ScoringCfg      ScoringConfig      `mapstructure:"scoring" yaml:"scoring"`
	DriftCfg        DriftConfig        `mapstructure:"drift" yaml:"drift"`
	HealthCfg       HealthConfig       `mapstructure:"health" yaml:"health"`
	ReassessmentCfg ReassessmentConfig `mapstructure:"reassessment" yaml:"reassessment"`
	WorkerCfg       WorkerConfig       `mapstructure:"worker" yaml:"worker"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig         { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig             { return c.ServerCfg }
func (c *Config) NATS() NATSConfig                 { return c.NATSCfg }
func (c *Config) Scoring() ScoringConfig           { return c.ScoringCfg }
func (c *Config) Drift() DriftConfig               { return c.DriftCfg }
func (c *Config) Health() HealthConfig             { return c.HealthCfg }
func (c *Config) Reassessment() ReassessmentConfig { return c.ReassessmentCfg }
func (c *Config) Worker() WorkerConfig             { return c.WorkerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetDatabaseURL(url string) { c.DatabaseCfg.URL = url }
func (c *Config) SetServerAddr(addr string) { c.ServerCfg.Addr = addr }
func (c *Config) SetWorkerEnabled(b bool)   { c.WorkerCfg.Enabled = b }

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url" yaml:"url"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time"`

	// QueryTimeout bounds every storage call so a dead backend fails instead of hanging.
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	URL            string        `mapstructure:"url" yaml:"url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

type ScoringConfig struct {
	// QuestionBankPath overrides the embedded question bank when set.
	QuestionBankPath string `mapstructure:"question_bank_path" yaml:"question_bank_path"`
}

// DriftConfig parametrizes drift detection. These constants are policy, not contract.
type DriftConfig struct {
	// AuditThreshold is the minimum |delta| that records a DriftEvent.
	AuditThreshold       int `mapstructure:"audit_threshold" yaml:"audit_threshold"`
	// MaterialityThreshold is the minimum |delta| that sets drift_flag.
	MaterialityThreshold int `mapstructure:"materiality_threshold" yaml:"materiality_threshold"`

	// StabilityWindow is how many completed runs feed the variance.
	StabilityWindow int     `mapstructure:"stability_window" yaml:"stability_window"`
	StableVariance  float64 `mapstructure:"stable_variance" yaml:"stable_variance"`
}

// HealthConfig parametrizes the health aggregator.
type HealthConfig struct {
	// Blend is "equal" (mean of the two bases), "count" (weighted by target
	// count) or "weighted" (OrgWeight/SysWeight).
	Blend          string        `mapstructure:"blend" yaml:"blend"`
	OrgWeight      float64       `mapstructure:"org_weight" yaml:"org_weight"`
	SysWeight      float64       `mapstructure:"sys_weight" yaml:"sys_weight"`
	Lookback       time.Duration `mapstructure:"lookback" yaml:"lookback"`
	DriftLookback  time.Duration `mapstructure:"drift_lookback" yaml:"drift_lookback"`
	StaleAfter     time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	RecomputeRate  float64       `mapstructure:"recompute_rate" yaml:"recompute_rate"`
	RecomputeBurst int           `mapstructure:"recompute_burst" yaml:"recompute_burst"`
	// RecomputeTimeout bounds one shared recompute, independent of the callers waiting on it.
	RecomputeTimeout time.Duration `mapstructure:"recompute_timeout" yaml:"recompute_timeout"`
	Penalties      PenaltyConfig `mapstructure:"penalties" yaml:"penalties"`
}

type PenaltyConfig struct {
	EscalationWeights     map[string]float64 `mapstructure:"escalation_weights" yaml:"escalation_weights"`
	RelationshipCap       float64            `mapstructure:"relationship_cap" yaml:"relationship_cap"`
	OverdueActionWeight   float64            `mapstructure:"overdue_action_weight" yaml:"overdue_action_weight"`
	CriticalOverdueWeight float64            `mapstructure:"critical_overdue_weight" yaml:"critical_overdue_weight"`
	ActionCap             float64            `mapstructure:"action_cap" yaml:"action_cap"`
	DriftPerPoint         float64            `mapstructure:"drift_per_point" yaml:"drift_per_point"`
	DriftCap              float64            `mapstructure:"drift_cap" yaml:"drift_cap"`
	ExplainabilityScale   float64            `mapstructure:"explainability_scale" yaml:"explainability_scale"`
	ExplainabilityCap     float64            `mapstructure:"explainability_cap" yaml:"explainability_cap"`
}

type ReassessmentConfig struct {
	// DefaultFrequencyDays is keyed by assessment type and used when a first
	// completion creates the policy.
	DefaultFrequencyDays     map[string]int `mapstructure:"default_frequency_days" yaml:"default_frequency_days"`
	ActionSeverityThreshold  string         `mapstructure:"action_severity_threshold" yaml:"action_severity_threshold"`
	PolicyEscalationSeverity string         `mapstructure:"policy_escalation_severity" yaml:"policy_escalation_severity"`
}

type WorkerConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	Actor          string        `mapstructure:"actor" yaml:"actor"`
	JobTimeout     time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default with the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "trustscore")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.query_timeout", "5s")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "20s")

	// -- NATS --
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "trustscore")
	v.SetDefault("nats.connect_timeout", "5s")

	// -- Drift --
	v.SetDefault("drift.audit_threshold", 1)
	v.SetDefault("drift.materiality_threshold", 10)
	v.SetDefault("drift.stability_window", 3)
	v.SetDefault("drift.stable_variance", 25.0)

	// -- Health --
	v.SetDefault("health.blend", "equal")
	v.SetDefault("health.org_weight", 0.5)
	v.SetDefault("health.sys_weight", 0.5)
	v.SetDefault("health.lookback", "8760h")
	v.SetDefault("health.drift_lookback", "2160h")
	v.SetDefault("health.stale_after", "24h")
	v.SetDefault("health.recompute_rate", 2.0)
	v.SetDefault("health.recompute_burst", 5)
	v.SetDefault("health.recompute_timeout", "1m")
	v.SetDefault("health.penalties.escalation_weights", map[string]float64{
		"low": 1, "medium": 2, "high": 3, "critical": 5,
	})
	v.SetDefault("health.penalties.relationship_cap", 25.0)
	v.SetDefault("health.penalties.overdue_action_weight", 1.0)
	v.SetDefault("health.penalties.critical_overdue_weight", 3.0)
	v.SetDefault("health.penalties.action_cap", 25.0)
	v.SetDefault("health.penalties.drift_per_point", 0.25)
	v.SetDefault("health.penalties.drift_cap", 20.0)
	v.SetDefault("health.penalties.explainability_scale", 20.0)
	v.SetDefault("health.penalties.explainability_cap", 20.0)

	// -- Reassessment --
	v.SetDefault("reassessment.default_frequency_days", map[string]int{
		"organisation_survey": 180,
		"system_assessment":   90,
	})
	v.SetDefault("reassessment.action_severity_threshold", "high")
	v.SetDefault("reassessment.policy_escalation_severity", "high")

	// -- Worker --
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.sweep_interval", "1h")
	v.SetDefault("worker.health_interval", "6h")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.actor", "system:scheduler")
	v.SetDefault("worker.job_timeout", "10m")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "TRUSTSCORE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("nats.url", "TRUSTSCORE_NATS_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.DatabaseCfg.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be a positive duration")
	}
	if err := c.DriftCfg.Validate(); err != nil {
		return fmt.Errorf("drift configuration invalid: %w", err)
	}
	if err := c.HealthCfg.Validate(); err != nil {
		return fmt.Errorf("health configuration invalid: %w", err)
	}
	if err := c.ReassessmentCfg.Validate(); err != nil {
		return fmt.Errorf("reassessment configuration invalid: %w", err)
	}
	if err := c.WorkerCfg.Validate(); err != nil {
		return fmt.Errorf("worker configuration invalid: %w", err)
	}
	if c.NATSCfg.Enabled && c.NATSCfg.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	return nil
}

// Validate checks the drift thresholds.
func (d *DriftConfig) Validate() error {
	if d.AuditThreshold < 0 {
		return fmt.Errorf("audit_threshold must not be negative")
	}
	if d.MaterialityThreshold < d.AuditThreshold {
		return fmt.Errorf("materiality_threshold must be >= audit_threshold")
	}
	if d.StabilityWindow < 2 {
		return fmt.Errorf("stability_window must be at least 2")
	}
	if d.StableVariance < 0 {
		return fmt.Errorf("stable_variance must not be negative")
	}
	return nil
}

// Validate checks the health blend and penalty parameters.
func (h *HealthConfig) Validate() error {
	switch h.Blend {
	case "equal", "count":
	case "weighted":
		if h.OrgWeight < 0 || h.SysWeight < 0 || h.OrgWeight+h.SysWeight == 0 {
			return fmt.Errorf("org_weight and sys_weight must be non-negative and not both zero")
		}
	default:
		return fmt.Errorf("blend must be one of equal, count, weighted")
	}
	if h.Lookback <= 0 || h.DriftLookback <= 0 {
		return fmt.Errorf("lookback and drift_lookback must be positive durations")
	}
	if h.RecomputeRate <= 0 || h.RecomputeBurst <= 0 {
		return fmt.Errorf("recompute_rate and recompute_burst must be positive")
	}
	p := h.Penalties
	for _, f := range []float64{p.RelationshipCap, p.OverdueActionWeight, p.CriticalOverdueWeight, p.ActionCap,
		p.DriftPerPoint, p.DriftCap, p.ExplainabilityScale, p.ExplainabilityCap} {
		if f < 0 {
			return fmt.Errorf("penalty parameters must not be negative")
		}
	}
	for sev, w := range p.EscalationWeights {
		if w < 0 {
			return fmt.Errorf("escalation weight for %q must not be negative", sev)
		}
	}
	return nil
}

// Validate checks reassessment defaults.
func (r *ReassessmentConfig) Validate() error {
	for t, days := range r.DefaultFrequencyDays {
		if days < 1 {
			return fmt.Errorf("default_frequency_days[%s] must be at least 1", t)
		}
	}
	if !validSeverity(r.ActionSeverityThreshold) {
		return fmt.Errorf("action_severity_threshold must be one of low, medium, high, critical")
	}
	if !validSeverity(r.PolicyEscalationSeverity) {
		return fmt.Errorf("policy_escalation_severity must be one of low, medium, high, critical")
	}
	return nil
}

// Validate checks the periodic worker settings.
func (w *WorkerConfig) Validate() error {
	if !w.Enabled {
		return nil
	}
	if w.SweepInterval <= 0 || w.HealthInterval <= 0 {
		return fmt.Errorf("sweep_interval and health_interval must be positive durations")
	}
	if w.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if w.Actor == "" {
		return fmt.Errorf("actor is required")
	}
	return nil
}

func validSeverity(s string) bool {
	switch s {
	case "low", "medium", "high", "critical":
		return true
	}
	return false
}
