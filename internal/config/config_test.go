// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var envKeys = []string{
	"AI_BUILDER_TOKEN", "RIGCHAT_UPSTREAM_URL", "RIGCHAT_MODEL", "RIGCHAT_SERVER_URL",
	"RIGCHAT_ADDR", "RIGCHAT_ENV", "RIGCHAT_STORAGE", "RIGCHAT_STORAGE_PATH",
	"RIGCHAT_STORAGE_URL", "RIGCHAT_LOG_LEVEL",
}

// clearEnv blanks every override so the developer's environment cannot leak
// into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg.Chat.DefaultModel != "grok-4-fast" {
		t.Errorf("Chat.DefaultModel = %q, want grok-4-fast", cfg.Chat.DefaultModel)
	}
	if cfg.Chat.Temperature != 0.7 {
		t.Errorf("Chat.Temperature = %v, want 0.7", cfg.Chat.Temperature)
	}
	if cfg.Upstream.BaseURL != "https://space.ai-builders.com/backend/v1" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %q, want file", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad upstream url", func(c *Config) { c.Upstream.BaseURL = "ftp://x" }, "upstream.base_url"},
		{"upstream without host", func(c *Config) { c.Upstream.BaseURL = "https://" }, "upstream.base_url"},
		{"negative timeout", func(c *Config) { c.Upstream.TimeoutSecs = -1 }, "upstream.timeout_secs"},
		{"temperature too high", func(c *Config) { c.Chat.Temperature = 2.5 }, "chat.temperature"},
		{"negative max tokens", func(c *Config) { c.Chat.MaxTokens = -5 }, "chat.max_tokens"},
		{"bad server url", func(c *Config) { c.Chat.ServerURL = "localhost:3000" }, "chat.server_url"},
		{"negative rps", func(c *Config) { c.Server.RateLimitRPS = -1 }, "server.rate_limit_rps"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, "storage.url"},
		{"postgres with url", func(c *Config) {
			c.Storage.Backend = "postgres"
			c.Storage.URL = "postgres://localhost/rigchat"
		}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidateErrors", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error on %s", err, tt.wantField)
			}
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	errs := ValidateErrors{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}
	if got := errs.Error(); got != "a: bad; b: worse" {
		t.Errorf("Error() = %q", got)
	}
	if got := (ValidateErrors{}).Error(); got != "no validation errors" {
		t.Errorf("empty Error() = %q", got)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
	if cfg.Upstream.APIToken != "" {
		t.Errorf("Upstream.APIToken = %q, want empty", cfg.Upstream.APIToken)
	}
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[upstream]
api_token = "file-token"

[chat]
default_model = "grok-4"
max_tokens = 512

[server]
addr = ":8080"
allowed_origins = ["https://chat.example.com"]

[storage]
backend = "sqlite"
path = "/tmp/rigchat"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.APIToken != "file-token" {
		t.Errorf("APIToken = %q", cfg.Upstream.APIToken)
	}
	if cfg.Chat.DefaultModel != "grok-4" || cfg.Chat.MaxTokens != 512 {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
	if cfg.Chat.TitleModel != "grok-4-fast" {
		t.Errorf("TitleModel = %q, want default filled in", cfg.Chat.TitleModel)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://chat.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoad_FixesPermissions(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if runtimeSupportsChmod() && info.Mode().Perm() != 0600 {
		t.Errorf("mode = %o, want 600", info.Mode().Perm())
	}
}

func runtimeSupportsChmod() bool {
	return os.PathSeparator == '/'
}

func TestLoad_InvalidTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[chat\nbroken")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected decode error")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[storage]\nbackend = \"floppy\"\n")
	_, err := Load(path)
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Load() error = %v, want ValidateErrors", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_BUILDER_TOKEN", " env-token ")
	t.Setenv("RIGCHAT_MODEL", "deepseek")
	t.Setenv("RIGCHAT_ADDR", ":9999")
	t.Setenv("RIGCHAT_STORAGE", "redis")
	t.Setenv("RIGCHAT_STORAGE_URL", "redis://localhost:6379/0")
	t.Setenv("RIGCHAT_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[upstream]\napi_token = \"file-token\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.APIToken != "env-token" {
		t.Errorf("APIToken = %q, want env to win", cfg.Upstream.APIToken)
	}
	if cfg.Chat.DefaultModel != "deepseek" {
		t.Errorf("DefaultModel = %q", cfg.Chat.DefaultModel)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.URL != "redis://localhost:6379/0" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "RIGCHAT_TEST_DOTENV_VALUE"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, key+"=from-dotenv\n")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv(key); got != "from-dotenv" {
		t.Errorf("%s = %q, want from-dotenv", key, got)
	}

	// Existing variables are not overwritten.
	t.Setenv(key, "from-shell")
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv(key); got != "from-shell" {
		t.Errorf("%s = %q, want from-shell", key, got)
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Chat.DefaultModel = "gemini-2.5-pro"
	cfg.Server.AllowedOrigins = []string{"a", "b"}

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Chat.DefaultModel != "gemini-2.5-pro" {
		t.Errorf("DefaultModel = %q", loaded.Chat.DefaultModel)
	}
	if strings.Join(loaded.Server.AllowedOrigins, ",") != "a,b" {
		t.Errorf("AllowedOrigins = %v", loaded.Server.AllowedOrigins)
	}
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("chat.default_model", "grok-4"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := cfg.Get("chat.default_model")
	if err != nil || got != "grok-4" {
		t.Errorf("Get() = %v, %v", got, err)
	}

	if err := cfg.Set("upstream.timeout_secs", "90"); err != nil {
		t.Fatalf("Set(int) error = %v", err)
	}
	if cfg.Upstream.TimeoutSecs != 90 {
		t.Errorf("TimeoutSecs = %d, want 90", cfg.Upstream.TimeoutSecs)
	}

	if err := cfg.Set("server.rate_limit_rps", "2.5"); err != nil {
		t.Fatalf("Set(float) error = %v", err)
	}
	if cfg.Server.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v", cfg.Server.RateLimitRPS)
	}

	if err := cfg.Set("server.allowed_origins", "https://a, https://b"); err != nil {
		t.Fatalf("Set(slice) error = %v", err)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}

	if err := cfg.Set("upstream.api_token", "secret"); err != nil {
		t.Fatalf("Set(token) error = %v", err)
	}
	if cfg.Upstream.APIToken != "secret" {
		t.Errorf("APIToken = %q", cfg.Upstream.APIToken)
	}

	errCases := []string{"", "nope.field", "chat.nope", "chat", "chat.default_model.extra"}
	for _, key := range errCases {
		if _, err := cfg.Get(key); err == nil {
			t.Errorf("Get(%q) expected error", key)
		}
	}
	if err := cfg.Set("upstream.timeout_secs", "abc"); err == nil {
		t.Error("Set(bad int) expected error")
	}
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	cfg := Default()
	for _, k := range keys {
		if _, err := cfg.Get(k); err != nil {
			t.Errorf("Get(%q) error = %v", k, err)
		}
	}
	want := map[string]bool{"upstream.api_token": false, "storage.backend": false, "log.level": false}
	for _, k := range keys {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("GetAllKeys() missing %s", k)
		}
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Server.AllowedOrigins[0] = "changed"
	clone.Chat.DefaultModel = "changed"

	if cfg.Server.AllowedOrigins[0] == "changed" {
		t.Error("Clone shares AllowedOrigins with the original")
	}
	if cfg.Chat.DefaultModel == "changed" {
		t.Error("Clone shares fields with the original")
	}
}

func TestConfig_StringRedacts(t *testing.T) {
	cfg := Default()
	cfg.Upstream.APIToken = "sk-very-secret"
	cfg.Storage.URL = "postgres://user:hunter2@db/rigchat"

	s := cfg.String()
	if strings.Contains(s, "sk-very-secret") || strings.Contains(s, "hunter2") {
		t.Errorf("String() leaks secrets: %s", s)
	}
	if !strings.Contains(s, "[REDACTED]") {
		t.Errorf("String() = %s, want redaction marker", s)
	}
	if cfg.Upstream.APIToken != "sk-very-secret" {
		t.Error("String() modified the original")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[chat]\ndefault_model = \"grok-4-fast\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zerolog.Nop(), func(c *Config) { applied <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "[chat]\ndefault_model = \"grok-4\"\n[upstream]\napi_token = \"rotated\"\n")

	select {
	case cfg := <-applied:
		if cfg.Chat.DefaultModel != "grok-4" {
			t.Errorf("DefaultModel = %q, want grok-4", cfg.Chat.DefaultModel)
		}
		if cfg.Upstream.APIToken != "rotated" {
			t.Errorf("APIToken = %q, want rotated", cfg.Upstream.APIToken)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not applied")
	}

	// Unrelated files in the directory are ignored.
	writeFile(t, filepath.Join(dir, "other.toml"), "x = 1")
	select {
	case cfg := <-applied:
		t.Errorf("unexpected reload: %+v", cfg.Chat)
	case <-time.After(500 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}
