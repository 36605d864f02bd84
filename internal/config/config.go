// Package config provides configuration management for the extractor.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinRequestDelayMs is the smallest pause allowed between work page requests.
const MinRequestDelayMs = 1500

// Configuration validation errors.
var (
	ErrMissingInput             = errors.New("extractor.input is required")
	ErrInvalidWorkers           = errors.New("extractor.workers must be at least 1")
	ErrRequestDelayTooShort     = errors.New("extractor.request_delay_ms must be at least 1500")
	ErrInvalidBaseURL           = errors.New("site.base_url must be an absolute http(s) URL")
	ErrInvalidRequestsPerSecond = errors.New("site.requests_per_second must be non-negative")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrInvalidDownloadTimeout   = errors.New("download.timeout_sec must be at least 1")
	ErrInvalidDownloadSize      = errors.New("download.max_size_mb must be at least 1")
	ErrMissingOutputPath        = errors.New("output.results_path, output.processed_log_path and output.report_path are required")
	ErrInvalidReportFormat      = errors.New("output.report_format must be 'html' or 'markdown'")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
)

// Report formats.
const (
	ReportHTML     = "html"
	ReportMarkdown = "markdown"
)

// Config represents the complete extractor configuration.
type Config struct {
	Extractor ExtractorConfig `yaml:"extractor"`
	Site      SiteConfig      `yaml:"site"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Download  DownloadConfig  `yaml:"download"`
	Retry     RetryPolicy     `yaml:"retry"`
}

// ExtractorConfig controls the document pipeline.
type ExtractorConfig struct {
	Input          string `yaml:"input"`
	Workers        int    `yaml:"workers"`
	RequestDelayMs int    `yaml:"request_delay_ms"`
}

// SiteConfig describes the archive hosting the referenced works.
type SiteConfig struct {
	BaseURL           string  `yaml:"base_url"`
	LoginPath         string  `yaml:"login_path"`
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DownloadConfig bounds source document downloads.
type DownloadConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
	MaxSizeMb  int `yaml:"max_size_mb"`
}

// RetryPolicy defines retry behavior for work page fetches.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// OutputConfig defines where persisted state and the report live.
type OutputConfig struct {
	ResultsPath      string `yaml:"results_path"`
	ProcessedLogPath string `yaml:"processed_log_path"`
	ReportPath       string `yaml:"report_path"`
	ReportFormat     string `yaml:"report_format"`
	ReportTitle      string `yaml:"report_title"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the settings the extractor runs with when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Extractor: ExtractorConfig{
			Input:          "urls.txt",
			Workers:        4,
			RequestDelayMs: MinRequestDelayMs,
		},
		Site: SiteConfig{
			BaseURL:   "https://archiveofourown.org",
			LoginPath: "/users/login",
			UserAgent: "Mozilla/5.0",
		},
		Download: DownloadConfig{
			TimeoutSec: 20,
			MaxSizeMb:  64,
		},
		Retry: RetryPolicy{
			MaxAttempts:       3,
			InitialDelayMs:    1000,
			MaxDelayMs:        30000,
			BackoffMultiplier: 2.0,
			TimeoutSec:        15,
		},
		Output: OutputConfig{
			ResultsPath:      "results.json",
			ProcessedLogPath: "processed_pdfs.txt",
			ReportPath:       "results.html",
			ReportFormat:     ReportHTML,
			ReportTitle:      "AO3 Works Extraction Results",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file, creating its directory.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Extractor.Input) == "" {
		return ErrMissingInput
	}

	if c.Extractor.Workers < 1 {
		return ErrInvalidWorkers
	}

	if c.Extractor.RequestDelayMs < MinRequestDelayMs {
		return ErrRequestDelayTooShort
	}

	base, err := url.Parse(c.Site.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.Site.BaseURL)
	}

	if c.Site.RequestsPerSecond < 0 {
		return ErrInvalidRequestsPerSecond
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if c.Download.TimeoutSec < 1 {
		return ErrInvalidDownloadTimeout
	}

	if c.Download.MaxSizeMb < 1 {
		return ErrInvalidDownloadSize
	}

	if c.Output.ResultsPath == "" || c.Output.ProcessedLogPath == "" || c.Output.ReportPath == "" {
		return ErrMissingOutputPath
	}

	if c.Output.ReportFormat != ReportHTML && c.Output.ReportFormat != ReportMarkdown {
		return ErrInvalidReportFormat
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

// GetRetryDelay returns how long to wait after the given failed attempt
// (1-based): initial delay multiplied by the backoff factor once per prior
// attempt, capped at the max delay.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if rp.MaxDelayMs > 0 && delayMs > float64(rp.MaxDelayMs) {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int64(delayMs)) * time.Millisecond
}

// GetTimeout returns the per-request timeout.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// GetRequestDelay returns the pause taken after each processed reference.
func (c *Config) GetRequestDelay() time.Duration {
	return time.Duration(c.Extractor.RequestDelayMs) * time.Millisecond
}

// GetDownloadTimeout returns the per-document download timeout.
func (c *Config) GetDownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSec) * time.Second
}

// MaxDocumentBytes returns the download size limit in bytes.
func (c *Config) MaxDocumentBytes() int64 {
	return int64(c.Download.MaxSizeMb) * 1024 * 1024
}

// SiteHost returns the host part of the site base URL.
func (c *Config) SiteHost() string {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil {
		return ""
	}

	return u.Host
}

// LoginURL joins the site base URL with the login path.
func (c *Config) LoginURL() string {
	return strings.TrimRight(c.Site.BaseURL, "/") + "/" + strings.TrimLeft(c.Site.LoginPath, "/")
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Input: %s, Workers: %d, MaxAttempts: %d, Results: %s, Report: %s (%s)}",
		c.Extractor.Input,
		c.Extractor.Workers,
		c.Retry.MaxAttempts,
		c.Output.ResultsPath,
		c.Output.ReportPath,
		c.Output.ReportFormat,
	)
}
