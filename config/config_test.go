package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"MEETIQ_OUTPUT_FORMAT",
	"MEETIQ_DEBUG",
	"MEETIQ_LOG_FORMAT",
	"MEETIQ_PROFILES_FILE",
	"MEETIQ_TICK_INTERVAL",
	"MEETIQ_CLASSIFICATION_ENABLED",
	"MEETIQ_CLASSIFICATION_MIN_ELAPSED",
	"MEETIQ_CLASSIFICATION_MIN_FRAGMENTS",
	"MEETIQ_CLASSIFICATION_SWITCH_THRESHOLD",
	"MEETIQ_CLASSIFICATION_TIMEOUT",
	"MEETIQ_SEMANTIC_ADDRESS",
	"MEETIQ_SEMANTIC_METHOD",
	"MEETIQ_SEMANTIC_INSECURE",
	"MEETIQ_SEMANTIC_TIMEOUT",
	"MEETIQ_REDIS_ADDRESS",
	"MEETIQ_REDIS_PASSWORD",
	"MEETIQ_REDIS_DB",
	"MEETIQ_REDIS_STREAM_PREFIX",
	"MEETIQ_REDIS_MAX_LEN",
	"MEETIQ_POSTGRES_HOST",
	"MEETIQ_POSTGRES_PORT",
	"MEETIQ_POSTGRES_DATABASE",
	"MEETIQ_POSTGRES_USER",
	"MEETIQ_POSTGRES_PASSWORD",
	"MEETIQ_POSTGRES_SSLMODE",
}

// isolate points the config dir at a temp dir and blanks every override.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MEETIQ_CONFIG_DIR", dir)
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	return dir
}

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OutputFormat != DefaultOutputFormat {
		t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, DefaultOutputFormat)
	}
	if cfg.TickInterval != time.Minute {
		t.Errorf("TickInterval = %v, want 1m", cfg.TickInterval)
	}
	if !cfg.Classification.Enabled {
		t.Error("Classification should be enabled by default")
	}
	if cfg.Classification.MinElapsed != 3*time.Minute {
		t.Errorf("MinElapsed = %v, want 3m", cfg.Classification.MinElapsed)
	}
	if cfg.Classification.MinFragments != 10 {
		t.Errorf("MinFragments = %v, want 10", cfg.Classification.MinFragments)
	}
	if cfg.Classification.SwitchThreshold != 70 {
		t.Errorf("SwitchThreshold = %v, want 70", cfg.Classification.SwitchThreshold)
	}
	if cfg.Semantic.Address != "" {
		t.Errorf("Semantic.Address = %q, want empty", cfg.Semantic.Address)
	}
	if cfg.Redis.StreamPrefix != "meetiq" {
		t.Errorf("Redis.StreamPrefix = %q, want meetiq", cfg.Redis.StreamPrefix)
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want 5432", cfg.Postgres.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestOutputFormat_IsValid verifies output format validation.
func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{OutputFormatText, true},
		{OutputFormatJSON, true},
		{OutputFormatYAML, true},
		{"invalid", false},
		{"", false},
		{"JSON", false}, // Case sensitive
	}

	for _, tc := range tests {
		if got := tc.format.IsValid(); got != tc.valid {
			t.Errorf("OutputFormat(%q).IsValid() = %v, want %v", tc.format, got, tc.valid)
		}
	}
}

// TestCLIConfig_Validate verifies configuration validation.
func TestCLIConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CLIConfig)
		errMsg string
	}{
		{"valid", func(*CLIConfig) {}, ""},
		{"bad output", func(c *CLIConfig) { c.OutputFormat = "xml" }, "output_format"},
		{"bad log format", func(c *CLIConfig) { c.LogFormat = "logfmt" }, "log_format"},
		{"zero tick", func(c *CLIConfig) { c.TickInterval = 0 }, "tick_interval"},
		{"threshold over 100", func(c *CLIConfig) { c.Classification.SwitchThreshold = 101 }, "switch_threshold"},
		{"negative fragments", func(c *CLIConfig) { c.Classification.MinFragments = -1 }, "min_fragments"},
		{"zero classify timeout", func(c *CLIConfig) { c.Classification.Timeout = 0 }, "classification.timeout"},
		{"semantic without timeout", func(c *CLIConfig) {
			c.Semantic.Address = "localhost:50060"
			c.Semantic.Timeout = 0
		}, "semantic.timeout"},
		{"semantic disabled ignores timeout", func(c *CLIConfig) { c.Semantic.Timeout = 0 }, ""},
		{"negative max len", func(c *CLIConfig) { c.Redis.MaxLen = -1 }, "max_len"},
		{"bad port", func(c *CLIConfig) { c.Postgres.Port = 70000 }, "postgres.port"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tc.errMsg)
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tc.errMsg)
			}
		})
	}
}

// TestConfigPath verifies the config path honours MEETIQ_CONFIG_DIR.
func TestConfigPath(t *testing.T) {
	dir := isolate(t)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if want := filepath.Join(dir, DefaultConfigFile); path != want {
		t.Errorf("ConfigPath() = %v, want %v", path, want)
	}
}

// TestLoadConfig_Defaults verifies default values when no config exists.
func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.OutputFormat != OutputFormatText {
		t.Errorf("OutputFormat = %v, want text", cfg.OutputFormat)
	}
	if cfg.TickInterval != DefaultTickInterval {
		t.Errorf("TickInterval = %v, want %v", cfg.TickInterval, DefaultTickInterval)
	}
}

// TestLoadConfig_FromFile verifies values and string durations from YAML.
func TestLoadConfig_FromFile(t *testing.T) {
	dir := isolate(t)

	configContent := `output_format: yaml
debug: true
log_format: json
profiles_file: ~/profiles.yaml
tick_interval: 30s
classification:
  enabled: false
  min_elapsed: 5m
  min_fragments: 25
  switch_threshold: 80
  timeout: 2s
semantic:
  address: classifier.internal:50060
  insecure: true
  timeout: 3s
redis:
  address: redis.internal:6380
  db: 2
  stream_prefix: team
  max_len: 500
postgres:
  host: db.internal
  database: meetings
  sslmode: require
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.OutputFormat != OutputFormatYAML {
		t.Errorf("OutputFormat = %v, want yaml", cfg.OutputFormat)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %v, want json", cfg.LogFormat)
	}
	if cfg.ProfilesFile != "~/profiles.yaml" {
		t.Errorf("ProfilesFile = %v, want ~/profiles.yaml", cfg.ProfilesFile)
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.TickInterval)
	}
	if cfg.Classification.Enabled {
		t.Error("Classification should be disabled")
	}
	if cfg.Classification.MinElapsed != 5*time.Minute {
		t.Errorf("MinElapsed = %v, want 5m", cfg.Classification.MinElapsed)
	}
	if cfg.Classification.MinFragments != 25 || cfg.Classification.SwitchThreshold != 80 {
		t.Errorf("Classification = %+v", cfg.Classification)
	}
	if cfg.Classification.Timeout != 2*time.Second {
		t.Errorf("Classification.Timeout = %v, want 2s", cfg.Classification.Timeout)
	}
	if cfg.Semantic.Address != "classifier.internal:50060" || !cfg.Semantic.Insecure {
		t.Errorf("Semantic = %+v", cfg.Semantic)
	}
	if cfg.Semantic.Method != DefaultSemanticMethod {
		t.Errorf("Semantic.Method = %v, want default", cfg.Semantic.Method)
	}
	if cfg.Redis.Address != "redis.internal:6380" || cfg.Redis.DB != 2 || cfg.Redis.StreamPrefix != "team" || cfg.Redis.MaxLen != 500 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Database != "meetings" || cfg.Postgres.SSLMode != "require" {
		t.Errorf("Postgres = %+v", cfg.Postgres)
	}
	if cfg.Postgres.User != "meetiq" || cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres defaults lost: %+v", cfg.Postgres)
	}
}

// TestLoadConfig_InvalidDuration verifies bad durations in the file fail loading.
func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := isolate(t)

	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("classification:\n  min_elapsed: soon\n"), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() should fail on an invalid duration")
	}
	if !strings.Contains(err.Error(), "classification.min_elapsed") {
		t.Errorf("error = %v, want field name", err)
	}
}

// TestLoadConfig_WithEnvOverrides verifies env vars win over the file.
func TestLoadConfig_WithEnvOverrides(t *testing.T) {
	dir := isolate(t)

	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("output_format: yaml\ntick_interval: 30s\n"), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("MEETIQ_OUTPUT_FORMAT", "json")
	t.Setenv("MEETIQ_DEBUG", "1")
	t.Setenv("MEETIQ_TICK_INTERVAL", "2m")
	t.Setenv("MEETIQ_CLASSIFICATION_ENABLED", "false")
	t.Setenv("MEETIQ_CLASSIFICATION_SWITCH_THRESHOLD", "90")
	t.Setenv("MEETIQ_SEMANTIC_ADDRESS", "localhost:50060")
	t.Setenv("MEETIQ_REDIS_MAX_LEN", "42")
	t.Setenv("MEETIQ_POSTGRES_PORT", "6543")
	t.Setenv("MEETIQ_POSTGRES_PASSWORD", "s3cret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", cfg.OutputFormat)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.TickInterval != 2*time.Minute {
		t.Errorf("TickInterval = %v, want 2m", cfg.TickInterval)
	}
	if cfg.Classification.Enabled {
		t.Error("Classification should be disabled")
	}
	if cfg.Classification.SwitchThreshold != 90 {
		t.Errorf("SwitchThreshold = %v, want 90", cfg.Classification.SwitchThreshold)
	}
	if cfg.Semantic.Address != "localhost:50060" {
		t.Errorf("Semantic.Address = %v", cfg.Semantic.Address)
	}
	if cfg.Redis.MaxLen != 42 {
		t.Errorf("Redis.MaxLen = %v, want 42", cfg.Redis.MaxLen)
	}
	if cfg.Postgres.Port != 6543 || cfg.Postgres.Password != "s3cret" {
		t.Errorf("Postgres = %+v", cfg.Postgres)
	}
}

// TestLoadFromEnv_InvalidValuesIgnored verifies malformed env values keep defaults.
func TestLoadFromEnv_InvalidValuesIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("MEETIQ_TICK_INTERVAL", "often")
	t.Setenv("MEETIQ_REDIS_DB", "two")

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	if cfg.TickInterval != DefaultTickInterval {
		t.Errorf("TickInterval = %v, want default", cfg.TickInterval)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("Redis.DB = %v, want 0", cfg.Redis.DB)
	}
}

// TestSaveConfig verifies a saved config loads back and is private.
func TestSaveConfig(t *testing.T) {
	dir := isolate(t)

	cfg := DefaultConfig()
	cfg.OutputFormat = OutputFormatJSON
	cfg.TickInterval = 45 * time.Second
	cfg.Classification.Enabled = false
	cfg.Classification.MinElapsed = 4 * time.Minute
	cfg.Redis.Password = "hunter2"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, DefaultConfigFile))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", loaded.OutputFormat)
	}
	if loaded.TickInterval != 45*time.Second {
		t.Errorf("TickInterval = %v, want 45s", loaded.TickInterval)
	}
	if loaded.Classification.Enabled {
		t.Error("Classification.Enabled should survive as false")
	}
	if loaded.Classification.MinElapsed != 4*time.Minute {
		t.Errorf("MinElapsed = %v, want 4m", loaded.Classification.MinElapsed)
	}
	if loaded.Redis.Password != "hunter2" {
		t.Errorf("Redis.Password = %q", loaded.Redis.Password)
	}
}

// TestExpandPath verifies ~ expansion.
func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	got, err := ExpandPath("~/profiles.yaml")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	if want := filepath.Join(home, "profiles.yaml"); got != want {
		t.Errorf("ExpandPath() = %v, want %v", got, want)
	}

	if got, _ := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %v", got)
	}
	if got, _ := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(\"\") = %v", got)
	}
}
