package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hseinmoussa/tzbuddy/internal/fileutil"
)

// EnvPrefix prefixes every environment override: TZBUDDY_LOG_LEVEL etc.
const EnvPrefix = "TZBUDDY"

// Config holds all runtime configuration for tzbuddy.
type Config struct {
	DBPath             string `mapstructure:"db_path"`
	LogLevel           string `mapstructure:"log_level"`
	LogFormat          string `mapstructure:"log_format"`
	MaxMentions        int    `mapstructure:"max_mentions"`
	MaxActiveTimezones int    `mapstructure:"max_active_timezones"`
	RespondToEdited    bool   `mapstructure:"respond_to_edited"`
	IgnoreBots         bool   `mapstructure:"ignore_bots"`
	WebhookURL         string `mapstructure:"webhook_url"`
}

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindBool
)

// knownKeys lists every valid configuration key and its value kind.
var knownKeys = map[string]keyKind{
	"db_path":              kindString,
	"log_level":            kindString,
	"log_format":           kindString,
	"max_mentions":         kindInt,
	"max_active_timezones": kindInt,
	"respond_to_edited":    kindBool,
	"ignore_bots":          kindBool,
	"webhook_url":          kindString,
}

// defaults returns the default value of every key. db_path depends on HOME
// so it is computed per call.
func defaults() map[string]any {
	return map[string]any{
		"db_path":              filepath.Join(BaseDir(), "tzbuddy.db"),
		"log_level":            "info",
		"log_format":           "text",
		"max_mentions":         10,
		"max_active_timezones": 12,
		"respond_to_edited":    false,
		"ignore_bots":          true,
		"webhook_url":          "",
	}
}

// configFileRaw is the on-disk representation. Pointer fields keep unset
// keys out of the file so defaults can change underneath them.
type configFileRaw struct {
	DBPath             *string `yaml:"db_path,omitempty"`
	LogLevel           *string `yaml:"log_level,omitempty"`
	LogFormat          *string `yaml:"log_format,omitempty"`
	MaxMentions        *int    `yaml:"max_mentions,omitempty"`
	MaxActiveTimezones *int    `yaml:"max_active_timezones,omitempty"`
	RespondToEdited    *bool   `yaml:"respond_to_edited,omitempty"`
	IgnoreBots         *bool   `yaml:"ignore_bots,omitempty"`
	WebhookURL         *string `yaml:"webhook_url,omitempty"`
}

// BaseDir returns the root configuration directory: ~/.tzbuddy/
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to HOME env var.
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".tzbuddy")
}

// EnsureDirs creates the directory tree tzbuddy writes into.
func EnsureDirs() error {
	base := BaseDir()
	for _, d := range []string{base, RunDir()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", d, err)
		}
	}
	return nil
}

// RunDir holds the serve lock.
func RunDir() string {
	return filepath.Join(BaseDir(), "run")
}

// ConfigFilePath returns the path to the main config file.
func ConfigFilePath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// DirectoryFilePath returns the optional user timezone directory file that
// extends the embedded cities, abbreviations and labels.
func DirectoryFilePath() string {
	return filepath.Join(BaseDir(), "directory.yaml")
}

// Load reads configuration and applies the resolution order:
//
//	CLI flag > env var > config file > default
//
// CLI flag overrides are passed via the overrides map (key -> string value).
func Load(overrides map[string]string) (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}

	for k, val := range overrides {
		if err := ValidateKey(k); err != nil {
			return Config{}, err
		}
		typed, err := parseValue(k, val)
		if err != nil {
			return Config{}, err
		}
		v.Set(k, typed)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// newViper returns a viper instance with defaults, the config file (if it
// exists) and TZBUDDY_* environment variables.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	path := ConfigFilePath()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return v, nil
}

// Validate checks values a typo could break.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: want text or json", c.LogFormat)
	}
	if c.MaxMentions < 1 {
		return fmt.Errorf("invalid max_mentions %d: must be at least 1", c.MaxMentions)
	}
	if c.MaxActiveTimezones < 1 {
		return fmt.Errorf("invalid max_active_timezones %d: must be at least 1", c.MaxActiveTimezones)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// parseValue converts a CLI string into the key's type.
func parseValue(key, s string) (any, error) {
	switch knownKeys[key] {
	case kindInt:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, s, err)
		}
		return n, nil
	case kindBool:
		b, err := parseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		return b, nil
	default:
		return s, nil
	}
}

// ValidateKey returns an error if key is not a known configuration key.
func ValidateKey(key string) error {
	if _, ok := knownKeys[key]; !ok {
		return fmt.Errorf("unknown config key %q; known keys: %s", key, knownKeysList())
	}
	return nil
}

func knownKeysList() string {
	return strings.Join(Keys(), ", ")
}

// Keys returns every known key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loadRawFile reads and parses the YAML config file. If the file does not
// exist the returned struct is zero-valued (all pointers nil).
func loadRawFile() (configFileRaw, error) {
	var raw configFileRaw
	data, err := os.ReadFile(ConfigFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return raw, nil
		}
		return raw, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("parse config file: %w", err)
	}
	return raw, nil
}

// SetConfigValue writes a key-value pair to the config file. The file is
// created if it does not exist. Uses atomic write for crash safety.
func SetConfigValue(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	typed, err := parseValue(key, value)
	if err != nil {
		return err
	}

	raw, err := loadRawFile()
	if err != nil {
		return err
	}
	setRawValue(&raw, key, typed)

	data, err := yaml.Marshal(&raw)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return fileutil.AtomicWrite(ConfigFilePath(), data, 0644)
}

func setRawValue(raw *configFileRaw, key string, v any) {
	switch key {
	case "db_path":
		s := v.(string)
		raw.DBPath = &s
	case "log_level":
		s := v.(string)
		raw.LogLevel = &s
	case "log_format":
		s := v.(string)
		raw.LogFormat = &s
	case "max_mentions":
		n := v.(int)
		raw.MaxMentions = &n
	case "max_active_timezones":
		n := v.(int)
		raw.MaxActiveTimezones = &n
	case "respond_to_edited":
		b := v.(bool)
		raw.RespondToEdited = &b
	case "ignore_bots":
		b := v.(bool)
		raw.IgnoreBots = &b
	case "webhook_url":
		s := v.(string)
		raw.WebhookURL = &s
	}
}

// GetConfigValue returns the current effective value of a config key as a
// string, after applying the full resolution order (file + env; no CLI flags).
func GetConfigValue(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	all, err := ListConfig()
	if err != nil {
		return "", err
	}
	return all[key], nil
}

// ListConfig returns all config keys and their current effective values.
func ListConfig() (map[string]string, error) {
	cfg, err := Load(nil)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"db_path":              cfg.DBPath,
		"log_level":            cfg.LogLevel,
		"log_format":           cfg.LogFormat,
		"max_mentions":         strconv.Itoa(cfg.MaxMentions),
		"max_active_timezones": strconv.Itoa(cfg.MaxActiveTimezones),
		"respond_to_edited":    strconv.FormatBool(cfg.RespondToEdited),
		"ignore_bots":          strconv.FormatBool(cfg.IgnoreBots),
		"webhook_url":          cfg.WebhookURL,
	}, nil
}
