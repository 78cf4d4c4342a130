// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Upstream UpstreamConfig `toml:"upstream" json:"upstream"`
	Chat     ChatConfig     `toml:"chat" json:"chat"`
	Server   ServerConfig   `toml:"server" json:"server"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// UpstreamConfig points at the hosted completion API.
type UpstreamConfig struct {
	BaseURL     string `toml:"base_url" json:"base_url"`
	APIToken    string `toml:"api_token" json:"api_token"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// ChatConfig holds conversation defaults.
type ChatConfig struct {
	DefaultModel string  `toml:"default_model" json:"default_model"`
	TitleModel   string  `toml:"title_model" json:"title_model"`
	Temperature  float64 `toml:"temperature" json:"temperature"`
	MaxTokens    int     `toml:"max_tokens" json:"max_tokens"`

	// ProvisionalTitle names a new conversation after its first message
	// until a generated title arrives.
	ProvisionalTitle bool `toml:"provisional_title" json:"provisional_title"`

	// ServerURL makes the terminal client talk to a running rigchat server
	// instead of the upstream API.
	ServerURL string `toml:"server_url" json:"server_url"`
}

// ServerConfig configures `rigchat serve`.
type ServerConfig struct {
	Addr           string   `toml:"addr" json:"addr"`
	Env            string   `toml:"env" json:"env"`
	RateLimitRPS   float64  `toml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" json:"rate_limit_burst"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
}

// StorageConfig selects the conversation blob backend.
type StorageConfig struct {
	Backend string `toml:"backend" json:"backend"`
	Path    string `toml:"path" json:"path"`
	URL     string `toml:"url" json:"url"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level" json:"level"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:     cloud.DefaultBaseURL,
			TimeoutSecs: int(cloud.DefaultTimeout.Seconds()),
		},
		Chat: ChatConfig{
			DefaultModel: model.DefaultModel,
			TitleModel:   model.DefaultModel,
			Temperature:  cloud.DefaultTemperature,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:3000",
			Env:            "development",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = defaults.Upstream.BaseURL
	}
	if cfg.Upstream.TimeoutSecs == 0 {
		cfg.Upstream.TimeoutSecs = defaults.Upstream.TimeoutSecs
	}

	if cfg.Chat.DefaultModel == "" {
		cfg.Chat.DefaultModel = defaults.Chat.DefaultModel
	}
	if cfg.Chat.TitleModel == "" {
		cfg.Chat.TitleModel = defaults.Chat.TitleModel
	}
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = defaults.Chat.Temperature
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = defaults.Server.Env
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = defaults.Server.RateLimitRPS
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = defaults.Server.RateLimitBurst
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600 since it may hold
// the API token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// LoadDotEnv loads variables from .env files into the environment. Missing
// files are ignored and existing variables are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the TOML file at path, or the default location when path is
// empty. A missing file yields defaults. Environment overrides are applied
// last and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# rigchat configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns a ValidateErrors listing
// every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateURL(c.Upstream.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "upstream.base_url", Message: err.Error()})
	}
	if c.Upstream.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "upstream.timeout_secs",
			Message: fmt.Sprintf("cannot be negative, got %d", c.Upstream.TimeoutSecs),
		})
	}

	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %g", c.Chat.Temperature),
		})
	}
	if c.Chat.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_tokens",
			Message: fmt.Sprintf("cannot be negative, got %d", c.Chat.MaxTokens),
		})
	}
	if c.Chat.ServerURL != "" {
		if err := validateURL(c.Chat.ServerURL); err != nil {
			errs = append(errs, ValidationError{Field: "chat.server_url", Message: err.Error()})
		}
	}

	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_rps",
			Message: fmt.Sprintf("cannot be negative, got %g", c.Server.RateLimitRPS),
		})
	}
	if c.Server.RateLimitBurst < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_burst",
			Message: fmt.Sprintf("cannot be negative, got %d", c.Server.RateLimitBurst),
		})
	}

	validBackends := map[string]bool{
		storage.BackendFile: true, storage.BackendSQLite: true,
		storage.BackendRedis: true, storage.BackendPostgres: true,
		storage.BackendMemory: true,
	}
	backend := strings.ToLower(c.Storage.Backend)
	if !validBackends[backend] {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite, redis, postgres, memory", c.Storage.Backend),
		})
	}
	if (backend == storage.BackendRedis || backend == storage.BackendPostgres) && c.Storage.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.url",
			Message: fmt.Sprintf("required for the %s backend", backend),
		})
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: trace, debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - AI_BUILDER_TOKEN: upstream.api_token
//   - RIGCHAT_UPSTREAM_URL: upstream.base_url
//   - RIGCHAT_MODEL: chat.default_model
//   - RIGCHAT_SERVER_URL: chat.server_url
//   - RIGCHAT_ADDR: server.addr
//   - RIGCHAT_ENV: server.env
//   - RIGCHAT_STORAGE: storage.backend
//   - RIGCHAT_STORAGE_PATH: storage.path
//   - RIGCHAT_STORAGE_URL: storage.url
//   - RIGCHAT_LOG_LEVEL: log.level
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"AI_BUILDER_TOKEN", &c.Upstream.APIToken},
		{"RIGCHAT_UPSTREAM_URL", &c.Upstream.BaseURL},
		{"RIGCHAT_MODEL", &c.Chat.DefaultModel},
		{"RIGCHAT_SERVER_URL", &c.Chat.ServerURL},
		{"RIGCHAT_ADDR", &c.Server.Addr},
		{"RIGCHAT_ENV", &c.Server.Env},
		{"RIGCHAT_STORAGE", &c.Storage.Backend},
		{"RIGCHAT_STORAGE_PATH", &c.Storage.Path},
		{"RIGCHAT_STORAGE_URL", &c.Storage.URL},
		{"RIGCHAT_LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.default_model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "server.addr").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct tree to the leaf named by key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(strVal == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// =============================================================================
// COPY / DISPLAY
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Upstream.APIToken != "" {
		safe.Upstream.APIToken = "[REDACTED]"
	}
	if safe.Storage.URL != "" {
		safe.Storage.URL = redactURL(safe.Storage.URL)
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// redactURL hides the password in a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}
	return u.Redacted()
}
