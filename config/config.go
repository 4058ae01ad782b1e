// Package config provides CLI configuration management for the meetiq command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Default configuration values.
const (
	DefaultOutputFormat    = OutputFormatText
	DefaultConfigDir       = ".meetiq"
	DefaultConfigFile      = "config.yaml"
	DefaultTickInterval    = time.Minute
	DefaultMinElapsed      = 3 * time.Minute
	DefaultMinFragments    = 10
	DefaultSwitchThreshold = 70
	DefaultClassifyTimeout = 5 * time.Second
	DefaultSemanticMethod  = "/meetiq.semantic.v1.Classifier/Classify"
	DefaultRedisAddress    = "localhost:6379"
	DefaultRedisMaxLen     = 1000
	DefaultRedisPrefix     = "meetiq"
	DefaultPostgresPort    = 5432
)

// ClassificationConfig controls opportunistic meeting type detection.
type ClassificationConfig struct {
	// Enabled turns automatic classification on.
	Enabled bool

	// MinElapsed is the meeting time that must pass before classifying.
	MinElapsed time.Duration

	// MinFragments is the transcript size required before classifying.
	MinFragments int

	// SwitchThreshold is the confidence (0-100) needed to swap the profile.
	SwitchThreshold int

	// Timeout bounds the semantic collaborator call.
	Timeout time.Duration
}

// SemanticConfig points at the optional semantic classifier service.
// An empty Address disables it.
type SemanticConfig struct {
	Address  string
	Method   string
	Insecure bool
	Timeout  time.Duration
}

// RedisConfig holds Redis sink settings.
type RedisConfig struct {
	Address      string `yaml:"address,omitempty"`
	Password     string `yaml:"password,omitempty"`
	DB           int    `yaml:"db,omitempty"`
	StreamPrefix string `yaml:"stream_prefix,omitempty"`
	MaxLen       int64  `yaml:"max_len,omitempty"`
}

// PostgresConfig holds Postgres sink settings.
type PostgresConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat

	// Debug enables verbose debug logging.
	Debug bool

	// LogFormat forces console or json logs. Empty picks by terminal.
	LogFormat string

	// ProfilesFile replaces the built-in profile table. Supports ~.
	ProfilesFile string

	// TickInterval is the meeting time between score recomputations.
	TickInterval time.Duration

	Classification ClassificationConfig
	Semantic       SemanticConfig
	Redis          RedisConfig
	Postgres       PostgresConfig
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		OutputFormat: DefaultOutputFormat,
		TickInterval: DefaultTickInterval,
		Classification: ClassificationConfig{
			Enabled:         true,
			MinElapsed:      DefaultMinElapsed,
			MinFragments:    DefaultMinFragments,
			SwitchThreshold: DefaultSwitchThreshold,
			Timeout:         DefaultClassifyTimeout,
		},
		Semantic: SemanticConfig{
			Method:  DefaultSemanticMethod,
			Timeout: DefaultClassifyTimeout,
		},
		Redis: RedisConfig{
			Address:      DefaultRedisAddress,
			StreamPrefix: DefaultRedisPrefix,
			MaxLen:       DefaultRedisMaxLen,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     DefaultPostgresPort,
			Database: "meetiq",
			User:     "meetiq",
			SSLMode:  "disable",
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MEETIQ_CONFIG_DIR if set, otherwise ~/.meetiq
func ConfigDir() (string, error) {
	if dir := os.Getenv("MEETIQ_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.meetiq/config.yaml or $MEETIQ_CONFIG_DIR/config.yaml)
// 3. Environment variables (MEETIQ_*)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// File representation with durations as strings.
type classificationFile struct {
	Enabled         *bool  `yaml:"enabled,omitempty"`
	MinElapsed      string `yaml:"min_elapsed,omitempty"`
	MinFragments    int    `yaml:"min_fragments,omitempty"`
	SwitchThreshold int    `yaml:"switch_threshold,omitempty"`
	Timeout         string `yaml:"timeout,omitempty"`
}

type semanticFile struct {
	Address  string `yaml:"address,omitempty"`
	Method   string `yaml:"method,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
}

type configFile struct {
	OutputFormat   OutputFormat       `yaml:"output_format"`
	Debug          bool               `yaml:"debug,omitempty"`
	LogFormat      string             `yaml:"log_format,omitempty"`
	ProfilesFile   string             `yaml:"profiles_file,omitempty"`
	TickInterval   string             `yaml:"tick_interval,omitempty"`
	Classification classificationFile `yaml:"classification,omitempty"`
	Semantic       semanticFile       `yaml:"semantic,omitempty"`
	Redis          RedisConfig        `yaml:"redis,omitempty"`
	Postgres       PostgresConfig     `yaml:"postgres,omitempty"`
}

func parseDuration(field, v string, dst *time.Duration) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	cfg.Debug = fileCfg.Debug
	if fileCfg.LogFormat != "" {
		cfg.LogFormat = fileCfg.LogFormat
	}
	if fileCfg.ProfilesFile != "" {
		cfg.ProfilesFile = fileCfg.ProfilesFile
	}
	if err := parseDuration("tick_interval", fileCfg.TickInterval, &cfg.TickInterval); err != nil {
		return err
	}

	cl := fileCfg.Classification
	if cl.Enabled != nil {
		cfg.Classification.Enabled = *cl.Enabled
	}
	if err := parseDuration("classification.min_elapsed", cl.MinElapsed, &cfg.Classification.MinElapsed); err != nil {
		return err
	}
	if cl.MinFragments != 0 {
		cfg.Classification.MinFragments = cl.MinFragments
	}
	if cl.SwitchThreshold != 0 {
		cfg.Classification.SwitchThreshold = cl.SwitchThreshold
	}
	if err := parseDuration("classification.timeout", cl.Timeout, &cfg.Classification.Timeout); err != nil {
		return err
	}

	sem := fileCfg.Semantic
	if sem.Address != "" {
		cfg.Semantic.Address = sem.Address
	}
	if sem.Method != "" {
		cfg.Semantic.Method = sem.Method
	}
	cfg.Semantic.Insecure = sem.Insecure
	if err := parseDuration("semantic.timeout", sem.Timeout, &cfg.Semantic.Timeout); err != nil {
		return err
	}

	mergeRedis(&cfg.Redis, fileCfg.Redis)
	mergePostgres(&cfg.Postgres, fileCfg.Postgres)
	return nil
}

func mergeRedis(dst *RedisConfig, src RedisConfig) {
	if src.Address != "" {
		dst.Address = src.Address
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.DB != 0 {
		dst.DB = src.DB
	}
	if src.StreamPrefix != "" {
		dst.StreamPrefix = src.StreamPrefix
	}
	if src.MaxLen != 0 {
		dst.MaxLen = src.MaxLen
	}
}

func mergePostgres(dst *PostgresConfig, src PostgresConfig) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Database != "" {
		dst.Database = src.Database
	}
	if src.User != "" {
		dst.User = src.User
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.SSLMode != "" {
		dst.SSLMode = src.SSLMode
	}
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// loadFromEnv overlays environment variables onto the configuration.
// Malformed numbers and durations are ignored.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("MEETIQ_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if envBool("MEETIQ_DEBUG") {
		cfg.Debug = true
	}
	envString("MEETIQ_LOG_FORMAT", &cfg.LogFormat)
	envString("MEETIQ_PROFILES_FILE", &cfg.ProfilesFile)
	envDuration("MEETIQ_TICK_INTERVAL", &cfg.TickInterval)

	if v := os.Getenv("MEETIQ_CLASSIFICATION_ENABLED"); v != "" {
		cfg.Classification.Enabled = v == "true" || v == "1"
	}
	envDuration("MEETIQ_CLASSIFICATION_MIN_ELAPSED", &cfg.Classification.MinElapsed)
	envInt("MEETIQ_CLASSIFICATION_MIN_FRAGMENTS", &cfg.Classification.MinFragments)
	envInt("MEETIQ_CLASSIFICATION_SWITCH_THRESHOLD", &cfg.Classification.SwitchThreshold)
	envDuration("MEETIQ_CLASSIFICATION_TIMEOUT", &cfg.Classification.Timeout)

	envString("MEETIQ_SEMANTIC_ADDRESS", &cfg.Semantic.Address)
	envString("MEETIQ_SEMANTIC_METHOD", &cfg.Semantic.Method)
	if envBool("MEETIQ_SEMANTIC_INSECURE") {
		cfg.Semantic.Insecure = true
	}
	envDuration("MEETIQ_SEMANTIC_TIMEOUT", &cfg.Semantic.Timeout)

	envString("MEETIQ_REDIS_ADDRESS", &cfg.Redis.Address)
	envString("MEETIQ_REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("MEETIQ_REDIS_DB", &cfg.Redis.DB)
	envString("MEETIQ_REDIS_STREAM_PREFIX", &cfg.Redis.StreamPrefix)
	if v := os.Getenv("MEETIQ_REDIS_MAX_LEN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Redis.MaxLen = n
		}
	}

	envString("MEETIQ_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("MEETIQ_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("MEETIQ_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("MEETIQ_POSTGRES_USER", &cfg.Postgres.User)
	envString("MEETIQ_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("MEETIQ_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	switch c.LogFormat {
	case "", LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}

	if c.Classification.MinElapsed < 0 {
		return fmt.Errorf("classification.min_elapsed must not be negative")
	}
	if c.Classification.MinFragments < 0 {
		return fmt.Errorf("classification.min_fragments must not be negative")
	}
	if c.Classification.SwitchThreshold < 0 || c.Classification.SwitchThreshold > 100 {
		return fmt.Errorf("classification.switch_threshold must be between 0 and 100")
	}
	if c.Classification.Timeout <= 0 {
		return fmt.Errorf("classification.timeout must be positive")
	}

	if c.Semantic.Address != "" && c.Semantic.Timeout <= 0 {
		return fmt.Errorf("semantic.timeout must be positive")
	}

	if c.Redis.MaxLen < 0 {
		return fmt.Errorf("redis.max_len must not be negative")
	}

	if c.Postgres.Port < 0 || c.Postgres.Port > 65535 {
		return fmt.Errorf("invalid postgres.port: %d", c.Postgres.Port)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	enabled := cfg.Classification.Enabled
	fileCfg := configFile{
		OutputFormat: cfg.OutputFormat,
		Debug:        cfg.Debug,
		LogFormat:    cfg.LogFormat,
		ProfilesFile: cfg.ProfilesFile,
		TickInterval: cfg.TickInterval.String(),
		Classification: classificationFile{
			Enabled:         &enabled,
			MinElapsed:      cfg.Classification.MinElapsed.String(),
			MinFragments:    cfg.Classification.MinFragments,
			SwitchThreshold: cfg.Classification.SwitchThreshold,
			Timeout:         cfg.Classification.Timeout.String(),
		},
		Semantic: semanticFile{
			Address:  cfg.Semantic.Address,
			Method:   cfg.Semantic.Method,
			Insecure: cfg.Semantic.Insecure,
			Timeout:  cfg.Semantic.Timeout.String(),
		},
		Redis:    cfg.Redis,
		Postgres: cfg.Postgres,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// The file can hold database and Redis passwords.
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
