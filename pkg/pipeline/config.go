// Package pipeline is the public embedding API for the API detection
// engine: configure a Pipeline, call Run, read the RunResult.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robbiethompson18/api-detection-engine/internal/capture"
	"github.com/robbiethompson18/api-detection-engine/internal/judge"
	"github.com/robbiethompson18/api-detection-engine/internal/minimize"
)

// Config holds the full pipeline configuration.
type Config struct {
	// Target is the page whose traffic is analyzed. A missing scheme is
	// treated as https.
	Target string `json:"target" yaml:"target"`

	// Method filters captured exchanges (default GET).
	Method string `json:"method" yaml:"method"`

	// Cookies is an optional "name=value; name=value" string applied to
	// the capture session.
	Cookies string `json:"cookies,omitempty" yaml:"cookies,omitempty"`

	// OutputDir enables per-stage JSON artifacts when non-empty.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`

	// BatchSize is the number of candidates per judgment call.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	Capture  capture.Config  `json:"capture" yaml:"capture"`
	Judge    judge.Config    `json:"judge" yaml:"judge"`
	Minimize minimize.Config `json:"minimize" yaml:"minimize"`

	// Verbose enables debug logging.
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Method:    "GET",
		BatchSize: 5,
		Capture:   capture.DefaultConfig(),
		Judge:     judge.DefaultConfig(),
		Minimize:  minimize.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, layered over
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// Validate checks the configuration before any stage runs.
func (c *Config) Validate() error {
	normalized, err := capture.NormalizeTarget(c.Target)
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	c.Target = normalized

	if c.Cookies != "" {
		if _, err := capture.ParseCookieString(c.Cookies, c.Target); err != nil {
			return fmt.Errorf("invalid cookies: %w", err)
		}
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.Capture.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative")
	}
	if c.Judge.Endpoint == "" {
		return fmt.Errorf("judgment service endpoint is required")
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	_ = json.Unmarshal(data, clone)
	return clone
}

// applyDefaults fills zero values left by partially specified configs.
func (c *Config) applyDefaults() {
	if c.Method == "" {
		c.Method = "GET"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.Capture.Timeout == 0 {
		c.Capture.Timeout = capture.DefaultConfig().Timeout
	}
	if c.Judge.Timeout == 0 {
		c.Judge.Timeout = judge.DefaultConfig().Timeout
	}
	if c.Minimize.MaxRetries == 0 {
		c.Minimize.MaxRetries = minimize.DefaultConfig().MaxRetries
	}
	if c.Minimize.DefaultBackoff == 0 {
		c.Minimize.DefaultBackoff = 2 * time.Second
	}
}
