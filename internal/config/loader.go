package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/telemetry"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CLEANER_"
)

// DefaultPath returns ~/.config/daily-logger/cleaner.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "daily-logger", "cleaner.yaml"), nil
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CLEANER_SWEEP_LOOKBACK, CLEANER_ORACLE_MODEL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// An explicit configPath must exist. An empty configPath falls back to
// DefaultPath, which is optional.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the first underscore splits section from field:
//
//	CLEANER_SWEEP_MAX_COMMITS -> sweep.max_commits
//	CLEANER_GITHUB_OWNER      -> github.owner
//	CLEANER_LOGGING_LEVEL     -> logging.level
//
// Credentials additionally fall back to GITHUB_TOKEN and to OPENAI_API_KEY or
// ANTHROPIC_API_KEY depending on oracle.provider.
//
// Overrides run after every source is merged and before validation; the
// CLI uses them for flags.
func LoadWithFile(configPath string, overrides ...Override) (*Config, error) {
	k := koanf.New(".")

	required := configPath != ""
	if !required {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	content, err := readConfigFile(configPath, required)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return fromKoanf(k, overrides)
}

// Override adjusts a loaded configuration before validation.
type Override func(*Config)

// LoadBytes loads configuration from YAML content without touching the
// filesystem or environment. Intended for tests and embedded defaults.
func LoadBytes(content []byte, overrides ...Override) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return fromKoanf(k, overrides)
}

func fromKoanf(k *koanf.Koanf, overrides []Override) (*Config, error) {
	// Boolean defaults must be set before decoding; absent keys keep them.
	cfg := Config{Oracle: OracleConfig{ScrubSecrets: true}}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Nested configs are decoded onto their own defaults so a partial
	// section keeps the remaining defaults.
	cfg.Logging = logging.NewDefaultConfig()
	if err := k.Unmarshal("logging", cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to unmarshal logging config: %w", err)
	}
	cfg.Telemetry = telemetry.NewDefaultConfig()
	if err := k.Unmarshal("telemetry", cfg.Telemetry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal telemetry config: %w", err)
	}

	applyDefaults(&cfg)
	applyCredentialEnv(&cfg)
	for _, o := range overrides {
		o(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps CLEANER_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyCredentialEnv(cfg *Config) {
	if !cfg.GitHub.Token.IsSet() {
		cfg.GitHub.Token = Secret(os.Getenv("GITHUB_TOKEN"))
	}
	if !cfg.Oracle.APIKey.IsSet() {
		cfg.Oracle.APIKey = Secret(os.Getenv(oracleKeyEnv(cfg.Oracle.Provider)))
	}
}

// readConfigFile returns nil content when an optional file is absent.
func readConfigFile(path string, required bool) ([]byte, error) {
	// Open once and validate the descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
