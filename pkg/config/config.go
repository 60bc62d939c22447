package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/archive-exporter/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Output modes.
const (
	ModeBatch     = "batch"
	ModeContainer = "container"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "EXPORTER_"

// Supported ranges.
const (
	MinConcurrency = 1
	MaxConcurrency = 12
	MinRetries     = 0
	MaxRetries     = 10
	MinBackoff     = 100 * time.Millisecond
	MaxBackoff     = 5000 * time.Millisecond
	MinBatchSize   = 1
	MaxBatchSize   = 200
)

// Config defines configuration for an export run.
type Config struct {
	Mode           string
	ListingURL     string
	PageSize       int
	PageDelay      time.Duration
	Concurrency    int
	MaxRetries     int
	BackoffBase    time.Duration
	BatchSize      int
	RequestTimeout time.Duration
	UserAgent      string
	OutputURL      string
	Prefix         string
	Extension      string
	FrontMatter    bool
	LogLevel       string
	LogPretty      bool
	MetricsAddr    string
	Progress       bool
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{
		Mode:           ModeBatch,
		PageSize:       50,
		PageDelay:      120 * time.Millisecond,
		Concurrency:    6,
		MaxRetries:     5,
		BackoffBase:    500 * time.Millisecond,
		BatchSize:      20,
		RequestTimeout: 30 * time.Second,
		UserAgent:      "archive-exporter/1.0",
		OutputURL:      "./export",
		Prefix:         "newsletter_export",
		Extension:      "md",
		LogLevel:       "info",
	}
}

// yamlConfig is used for YAML unmarshaling. Durations are strings and
// pointers mark keys that were present, so an explicit 0 is kept.
type yamlConfig struct {
	Mode           *string `yaml:"mode"`
	ListingURL     *string `yaml:"listing_url"`
	PageSize       *int    `yaml:"page_size"`
	PageDelay      *string `yaml:"page_delay"`
	Concurrency    *int    `yaml:"concurrency"`
	MaxRetries     *int    `yaml:"max_retries"`
	BackoffBase    *string `yaml:"backoff_base"`
	BatchSize      *int    `yaml:"batch_size"`
	RequestTimeout *string `yaml:"request_timeout"`
	UserAgent      *string `yaml:"user_agent"`
	OutputURL      *string `yaml:"output_url"`
	Prefix         *string `yaml:"prefix"`
	Extension      *string `yaml:"extension"`
	FrontMatter    *bool   `yaml:"front_matter"`
	LogLevel       *string `yaml:"log_level"`
	LogPretty      *bool   `yaml:"log_pretty"`
	MetricsAddr    *string `yaml:"metrics_addr"`
	Progress       *bool   `yaml:"progress"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of Default. Keys the exporter
// does not know, including the retired zip_level and stream_files, are an
// error.
func Parse(data []byte) (Config, error) {
	var yc yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	set := func(key string, v *string) error {
		if v == nil {
			return nil
		}
		return cfg.Set(key, *v)
	}
	setInt := func(key string, v *int) error {
		if v == nil {
			return nil
		}
		return cfg.Set(key, strconv.Itoa(*v))
	}
	setBool := func(key string, v *bool) error {
		if v == nil {
			return nil
		}
		return cfg.Set(key, strconv.FormatBool(*v))
	}

	for _, err := range []error{
		set("mode", yc.Mode),
		set("listing_url", yc.ListingURL),
		setInt("page_size", yc.PageSize),
		set("page_delay", yc.PageDelay),
		setInt("concurrency", yc.Concurrency),
		setInt("max_retries", yc.MaxRetries),
		set("backoff_base", yc.BackoffBase),
		setInt("batch_size", yc.BatchSize),
		set("request_timeout", yc.RequestTimeout),
		set("user_agent", yc.UserAgent),
		set("output_url", yc.OutputURL),
		set("prefix", yc.Prefix),
		set("extension", yc.Extension),
		setBool("front_matter", yc.FrontMatter),
		set("log_level", yc.LogLevel),
		setBool("log_pretty", yc.LogPretty),
		set("metrics_addr", yc.MetricsAddr),
		setBool("progress", yc.Progress),
	} {
		if err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// Keys lists every configuration key in file order.
var Keys = []string{
	"mode", "listing_url", "page_size", "page_delay", "concurrency",
	"max_retries", "backoff_base", "batch_size", "request_timeout",
	"user_agent", "output_url", "prefix", "extension", "front_matter",
	"log_level", "log_pretty", "metrics_addr", "progress",
}

// Set assigns one setting from its string form. Durations accept Go
// duration syntax ("500ms") or a bare integer number of milliseconds.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "mode":
		c.Mode = strings.ToLower(strings.TrimSpace(value))
	case "listing_url":
		c.ListingURL = strings.TrimSpace(value)
	case "page_size":
		c.PageSize, err = strconv.Atoi(value)
	case "page_delay":
		c.PageDelay, err = parseDuration(value)
	case "concurrency":
		c.Concurrency, err = strconv.Atoi(value)
	case "max_retries":
		c.MaxRetries, err = strconv.Atoi(value)
	case "backoff_base":
		c.BackoffBase, err = parseDuration(value)
	case "batch_size":
		c.BatchSize, err = strconv.Atoi(value)
	case "request_timeout":
		c.RequestTimeout, err = parseDuration(value)
	case "user_agent":
		c.UserAgent = value
	case "output_url":
		c.OutputURL = strings.TrimSpace(value)
	case "prefix":
		c.Prefix = strings.TrimSpace(value)
	case "extension":
		c.Extension = strings.TrimPrefix(strings.TrimSpace(value), ".")
	case "front_matter":
		c.FrontMatter, err = strconv.ParseBool(value)
	case "log_level":
		c.LogLevel = strings.ToLower(strings.TrimSpace(value))
	case "log_pretty":
		c.LogPretty, err = strconv.ParseBool(value)
	case "metrics_addr":
		c.MetricsAddr = strings.TrimSpace(value)
	case "progress":
		c.Progress, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(value)
}

// ApplyEnv overrides settings from EXPORTER_<KEY> variables found through
// lookup, e.g. EXPORTER_MAX_RETRIES.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, key := range Keys {
		name := EnvPrefix + strings.ToUpper(key)
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// LoadFromEnv applies the process environment.
func (c *Config) LoadFromEnv() error {
	return c.ApplyEnv(os.LookupEnv)
}

// Clamp pulls the tuning knobs into their supported ranges. Zero values
// take the default, except max_retries where 0 is a valid budget. It
// returns one note per adjusted setting.
func (c *Config) Clamp() []string {
	def := Default()
	var notes []string

	clampInt := func(key string, v *int, lo, hi, fallback int, zeroIsDefault bool) {
		orig := *v
		switch {
		case zeroIsDefault && *v == 0:
			*v = fallback
			return
		case *v < lo:
			*v = lo
		case *v > hi:
			*v = hi
		default:
			return
		}
		notes = append(notes, fmt.Sprintf("%s %d clamped to %d", key, orig, *v))
	}

	clampInt("concurrency", &c.Concurrency, MinConcurrency, MaxConcurrency, def.Concurrency, true)
	clampInt("max_retries", &c.MaxRetries, MinRetries, MaxRetries, def.MaxRetries, false)
	clampInt("batch_size", &c.BatchSize, MinBatchSize, MaxBatchSize, def.BatchSize, true)

	switch orig := c.BackoffBase; {
	case orig == 0:
		c.BackoffBase = def.BackoffBase
	case orig < MinBackoff:
		c.BackoffBase = MinBackoff
		notes = append(notes, fmt.Sprintf("backoff_base %s clamped to %s", orig, c.BackoffBase))
	case orig > MaxBackoff:
		c.BackoffBase = MaxBackoff
		notes = append(notes, fmt.Sprintf("backoff_base %s clamped to %s", orig, c.BackoffBase))
	}

	return notes
}

// Validate validates the configuration. Call it after Clamp.
func (c *Config) Validate() error {
	if c.Mode != ModeBatch && c.Mode != ModeContainer {
		return fmt.Errorf("config: mode must be %q or %q (got %q)", ModeBatch, ModeContainer, c.Mode)
	}
	if c.ListingURL == "" {
		return errors.New("config: listing_url is required")
	}
	u, err := url.Parse(c.ListingURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: listing_url must be an absolute http(s) URL (got %q)", c.ListingURL)
	}
	if c.PageSize <= 0 {
		return errors.New("config: page_size must be positive")
	}
	if c.PageDelay < 0 {
		return errors.New("config: page_delay must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	if c.UserAgent == "" {
		return errors.New("config: user_agent is required")
	}
	if c.OutputURL == "" {
		return errors.New("config: output_url is required")
	}
	if c.Prefix == "" || strings.ContainsAny(c.Prefix, `/\`) {
		return fmt.Errorf("config: prefix must be a non-empty file name (got %q)", c.Prefix)
	}
	if c.Extension == "" || strings.ContainsAny(c.Extension, `/\.`) {
		return fmt.Errorf("config: extension must be a bare extension (got %q)", c.Extension)
	}
	if err := logging.ValidateLevel(logging.LogLevel(c.LogLevel)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
