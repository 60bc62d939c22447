package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Mode != ModeBatch {
		t.Errorf("expected default mode batch, got %q", cfg.Mode)
	}
	if cfg.Concurrency != 6 {
		t.Errorf("expected default concurrency 6, got %d", cfg.Concurrency)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("expected default max retries 5, got %d", cfg.MaxRetries)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Errorf("expected default backoff 500ms, got %v", cfg.BackoffBase)
	}
	if cfg.BatchSize != 20 {
		t.Errorf("expected default batch size 20, got %d", cfg.BatchSize)
	}
	if cfg.PageSize != 50 || cfg.PageDelay != 120*time.Millisecond {
		t.Errorf("expected page size 50 / delay 120ms, got %d / %v", cfg.PageSize, cfg.PageDelay)
	}
	if cfg.Prefix != "newsletter_export" || cfg.Extension != "md" {
		t.Errorf("unexpected output naming %q.%q", cfg.Prefix, cfg.Extension)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
mode: container
listing_url: https://www.lennysnewsletter.com/api/v1/archive?sort=new&search=
concurrency: 8
max_retries: 0
backoff_base: 750ms
batch_size: 40
request_timeout: 10s
output_url: mem://
front_matter: true
log_level: debug
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Mode != ModeContainer {
		t.Errorf("expected mode container, got %q", cfg.Mode)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Concurrency)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("expected explicit max_retries 0 to be kept, got %d", cfg.MaxRetries)
	}
	if cfg.BackoffBase != 750*time.Millisecond {
		t.Errorf("expected backoff 750ms, got %v", cfg.BackoffBase)
	}
	if cfg.BatchSize != 40 {
		t.Errorf("expected batch size 40, got %d", cfg.BatchSize)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("expected request timeout 10s, got %v", cfg.RequestTimeout)
	}
	if !cfg.FrontMatter {
		t.Error("expected front_matter true")
	}
	// Unset keys keep their defaults.
	if cfg.PageSize != 50 || cfg.Prefix != "newsletter_export" {
		t.Errorf("expected defaults for unset keys, got page_size %d prefix %q", cfg.PageSize, cfg.Prefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"retired zip level", "zip_level: 6\n"},
		{"retired streaming toggle", "stream_files: true\n"},
		{"typo", "concurrancy: 4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error for unknown key")
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestParse_BadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad duration", "backoff_base: soon\n"},
		{"wrong type", "concurrency: many\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"EXPORTER_LISTING_URL":  "https://example.com/api/v1/archive",
		"EXPORTER_CONCURRENCY":  "3",
		"EXPORTER_BACKOFF_BASE": "250",
		"EXPORTER_MODE":         "Container",
		"EXPORTER_PREFIX":       "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.ListingURL != "https://example.com/api/v1/archive" {
		t.Errorf("listing url = %q", cfg.ListingURL)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.BackoffBase != 250*time.Millisecond {
		t.Errorf("backoff = %v, want 250ms from bare milliseconds", cfg.BackoffBase)
	}
	if cfg.Mode != ModeContainer {
		t.Errorf("mode = %q, want container", cfg.Mode)
	}
	if cfg.Prefix != "newsletter_export" {
		t.Errorf("empty env value should be ignored, prefix = %q", cfg.Prefix)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "EXPORTER_MAX_RETRIES" {
			return "lots", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "EXPORTER_MAX_RETRIES") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestSet_UnknownKey(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("zip_level", "9"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		check     func(*testing.T, Config)
		wantNotes int
	}{
		{
			name:   "in range untouched",
			modify: func(c *Config) {},
			check: func(t *testing.T, c Config) {
				if c != Default() {
					t.Errorf("config changed: %+v", c)
				}
			},
		},
		{
			name: "above maximum",
			modify: func(c *Config) {
				c.Concurrency = 50
				c.MaxRetries = 99
				c.BackoffBase = time.Minute
				c.BatchSize = 1000
			},
			check: func(t *testing.T, c Config) {
				if c.Concurrency != 12 || c.MaxRetries != 10 || c.BackoffBase != 5*time.Second || c.BatchSize != 200 {
					t.Errorf("got %d/%d/%v/%d", c.Concurrency, c.MaxRetries, c.BackoffBase, c.BatchSize)
				}
			},
			wantNotes: 4,
		},
		{
			name: "below minimum",
			modify: func(c *Config) {
				c.Concurrency = -2
				c.MaxRetries = -1
				c.BackoffBase = 10 * time.Millisecond
				c.BatchSize = -5
			},
			check: func(t *testing.T, c Config) {
				if c.Concurrency != 1 || c.MaxRetries != 0 || c.BackoffBase != 100*time.Millisecond || c.BatchSize != 1 {
					t.Errorf("got %d/%d/%v/%d", c.Concurrency, c.MaxRetries, c.BackoffBase, c.BatchSize)
				}
			},
			wantNotes: 4,
		},
		{
			name: "zero takes default",
			modify: func(c *Config) {
				c.Concurrency = 0
				c.MaxRetries = 0
				c.BackoffBase = 0
				c.BatchSize = 0
			},
			check: func(t *testing.T, c Config) {
				if c.Concurrency != 6 || c.MaxRetries != 0 || c.BackoffBase != 500*time.Millisecond || c.BatchSize != 20 {
					t.Errorf("got %d/%d/%v/%d", c.Concurrency, c.MaxRetries, c.BackoffBase, c.BatchSize)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			notes := cfg.Clamp()
			if len(notes) != tt.wantNotes {
				t.Errorf("notes = %v, want %d", notes, tt.wantNotes)
			}
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.ListingURL = "https://example.com/api/v1/archive"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "zip" }, "mode"},
		{"missing listing url", func(c *Config) { c.ListingURL = "" }, "listing_url is required"},
		{"relative listing url", func(c *Config) { c.ListingURL = "/api/v1/archive" }, "absolute http(s) URL"},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "page_size"},
		{"negative page delay", func(c *Config) { c.PageDelay = -time.Second }, "page_delay"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }, "user_agent"},
		{"empty output", func(c *Config) { c.OutputURL = "" }, "output_url"},
		{"prefix with slash", func(c *Config) { c.Prefix = "a/b" }, "prefix"},
		{"dotted extension", func(c *Config) { c.Extension = "tar.gz" }, "extension"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
