// Package config loads the pipeline's startup configuration: a YAML file
// for structural settings plus environment-variable overrides for secrets,
// validated into an accumulated list of problems rather than failing on
// the first one found.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete startup configuration for every scheduler binary.
// Each binary loads the same file and uses only the sections it needs.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Universe    UniverseConfig    `yaml:"universe"`
	Detector    DetectorConfig    `yaml:"detector"`
	Engine      EngineConfig      `yaml:"engine"`
	Runner      RunnerConfig      `yaml:"runner"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Coincidence CoincidenceConfig `yaml:"coincidence"`
	Alert       AlertConfig       `yaml:"alert"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// DatabaseConfig is the Postgres endpoint. Password may be blank, in which
// case peer auth is used (see DatabaseConfig.DSN below).
type DatabaseConfig struct {
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig is parsed from the redis section and REDIS_ADDR, but no
// component reads it: there is no universe cache, in Redis or in memory.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	TTL  int    `yaml:"ttl_seconds"`
}

// UniverseConfig bounds which trading pairs the detector considers.
// ExcludeMemeCoins is not read: the universe queries always exclude meme
// coins.
type UniverseConfig struct {
	ExchangeID         int64   `yaml:"exchange_id"`
	MinMarketCapUSD    float64 `yaml:"min_market_cap_usd"`
	ExcludeMemeCoins   bool    `yaml:"exclude_meme_coins"`
}

// DetectorConfig holds the spike-detector's classification thresholds.
type DetectorConfig struct {
	MinSpikeRatio        float64 `yaml:"min_spike_ratio"`
	ExtremeSpikeRatio    float64 `yaml:"extreme_spike_ratio"`
	VeryStrongSpikeRatio float64 `yaml:"very_strong_spike_ratio"`
	StrongSpikeRatio     float64 `yaml:"strong_spike_ratio"`
	MediumSpikeRatio     float64 `yaml:"medium_spike_ratio"`
	CoarseIntervalHours  int     `yaml:"coarse_interval_hours"`
	LiveLookbackHours    int     `yaml:"live_lookback_hours"`
	BatchSizeHours       int     `yaml:"batch_size_hours"`
	BatchPauseMS         int     `yaml:"batch_pause_ms"`
	DetectorVersion      string  `yaml:"detector_version"`
}

// EngineConfig holds the scoring engine's factor weights and confidence thresholds.
type EngineConfig struct {
	MinSignalCount          int     `yaml:"min_signal_count"`
	HighConfidenceThreshold float64 `yaml:"high_confidence_threshold"`
	MediumConfidenceThreshold float64 `yaml:"medium_confidence_threshold"`
	CriticalWindowMinSignals int    `yaml:"critical_window_min_signals"`
	WeightSignalCount       float64 `yaml:"weight_signal_count"`
	WeightTimeDistribution  float64 `yaml:"weight_time_distribution"`
	WeightSignalStrength    float64 `yaml:"weight_signal_strength"`
	WeightEscalation        float64 `yaml:"weight_escalation"`
	WeightSpotFuturesBal    float64 `yaml:"weight_spot_futures_balance"`
}

// RunnerConfig holds the analysis runner's tick cadence.
type RunnerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

// WatcherConfig holds the breakout watcher's volume-ratio thresholds.
type WatcherConfig struct {
	IntervalMinutes    int     `yaml:"interval_minutes"`
	FineIntervalHours  int     `yaml:"fine_interval_hours"`
	SpotThreshold      float64 `yaml:"spot_threshold"`
	FuturesThreshold   float64 `yaml:"futures_threshold"`
	CooldownHours      int     `yaml:"cooldown_hours"`
}

// CoincidenceConfig holds the extreme co-occurrence monitor's window.
type CoincidenceConfig struct {
	LookbackMinutes int `yaml:"lookback_minutes"`
}

// AlertConfig holds the messaging collaborator's endpoint and routing.
type AlertConfig struct {
	BotToken               string `yaml:"bot_token"`
	ChannelExtreme         string `yaml:"channel_extreme"`
	ChannelHigh            string `yaml:"channel_high"`
	ChannelMedium          string `yaml:"channel_medium"`
	ChannelAll             string `yaml:"channel_all"`
	MinConfidenceForAlert  int    `yaml:"min_confidence_for_alert"`
}

// HTTPConfig binds the ops health/metrics server (not the dashboard).
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DefaultConfig returns the built-in defaults for every section. Overrides
// stored in the database config table are not applied: no component reads
// them through the Store's GetConfig* methods.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Name: "pumpguard", User: "pumpguard", Host: "localhost", Port: 5432, SSLMode: "disable",
		},
		Redis: RedisConfig{TTL: 300},
		Universe: UniverseConfig{
			ExchangeID: 1, MinMarketCapUSD: 100_000_000, ExcludeMemeCoins: true,
		},
		Detector: DetectorConfig{
			MinSpikeRatio: 1.5, ExtremeSpikeRatio: 5.0, VeryStrongSpikeRatio: 3.0,
			StrongSpikeRatio: 2.0, MediumSpikeRatio: 1.5, CoarseIntervalHours: 4,
			LiveLookbackHours: 4, BatchSizeHours: 48, BatchPauseMS: 500,
			DetectorVersion: "2.0",
		},
		Engine: EngineConfig{
			MinSignalCount: 10, HighConfidenceThreshold: 75, MediumConfidenceThreshold: 50,
			CriticalWindowMinSignals: 4,
			WeightSignalCount: 0.40, WeightTimeDistribution: 0.25, WeightSignalStrength: 0.20,
			WeightEscalation: 0.10, WeightSpotFuturesBal: 0.05,
		},
		Runner: RunnerConfig{IntervalMinutes: 30},
		Watcher: WatcherConfig{
			IntervalMinutes: 60, FineIntervalHours: 1, SpotThreshold: 2.0,
			FuturesThreshold: 1.5, CooldownHours: 6,
		},
		Coincidence: CoincidenceConfig{LookbackMinutes: 60},
		Alert:       AlertConfig{MinConfidenceForAlert: 40},
		HTTP:        HTTPConfig{Host: "127.0.0.1", Port: 8080},
	}
}

// Load reads configPath, merges it over DefaultConfig, applies environment
// overrides for secrets, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ALERT_BOT_TOKEN"); v != "" {
		cfg.Alert.BotToken = v
	}
}

// Validate checks required fields and cross-field constraints, returning an
// accumulated list of problems rather than failing on the first one.
func (c *Config) Validate() []string {
	var errs []string

	if c.Database.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if c.Database.Port <= 0 {
		errs = append(errs, "database.port must be positive")
	}
	if c.Universe.MinMarketCapUSD < 0 {
		errs = append(errs, "universe.min_market_cap_usd must not be negative")
	}
	if c.Detector.MinSpikeRatio <= 0 {
		errs = append(errs, "detector.min_spike_ratio must be positive")
	}
	if c.Detector.BatchSizeHours <= 0 {
		errs = append(errs, "detector.batch_size_hours must be positive")
	}
	sumWeights := c.Engine.WeightSignalCount + c.Engine.WeightTimeDistribution +
		c.Engine.WeightSignalStrength + c.Engine.WeightEscalation + c.Engine.WeightSpotFuturesBal
	if sumWeights <= 0 {
		errs = append(errs, "engine factor weights must sum to a positive value")
	}
	if c.Engine.HighConfidenceThreshold <= c.Engine.MediumConfidenceThreshold {
		errs = append(errs, "engine.high_confidence_threshold must exceed medium_confidence_threshold")
	}
	if c.Watcher.SpotThreshold <= 0 || c.Watcher.FuturesThreshold <= 0 {
		errs = append(errs, "watcher thresholds must be positive")
	}
	if c.HTTP.Port <= 0 {
		errs = append(errs, "http.port must be positive")
	}

	return errs
}

// DSN renders the Postgres connection string. An empty password omits the
// password/user kwargs pattern, accepting peer auth.
func (d DatabaseConfig) DSN() string {
	if d.Password == "" {
		return fmt.Sprintf("dbname=%s sslmode=%s", d.Name, orDefault(d.SSLMode, "disable"))
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, orDefault(d.SSLMode, "disable"))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// RedisTTL returns the cache TTL as a time.Duration.
func (r RedisConfig) RedisTTL() time.Duration {
	return time.Duration(r.TTL) * time.Second
}

// Interval returns the runner tick cadence as a time.Duration.
func (r RunnerConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Interval returns the watcher tick cadence as a time.Duration.
func (w WatcherConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMinutes) * time.Minute
}

// Cooldown returns the watcher's per-symbol cooldown as a time.Duration.
func (w WatcherConfig) Cooldown() time.Duration {
	return time.Duration(w.CooldownHours) * time.Hour
}

// Lookback returns the coincidence monitor's window as a time.Duration.
func (c CoincidenceConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackMinutes) * time.Minute
}
