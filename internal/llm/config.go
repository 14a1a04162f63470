package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"kimi-proxy/internal/rpc"
	"kimi-proxy/pkg/utils"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListenAddr is where the proxy listens when nothing is configured
	DefaultListenAddr = ":8080"
	// DefaultStreamBuffer is the number of SSE frames buffered per stream
	DefaultStreamBuffer = 16
	// DefaultLogLevel is the charmbracelet/log level name used by default
	DefaultLogLevel = "info"
)

// Config contains configuration for the proxy.
// Values come from an optional YAML file and are then overridden by
// environment variables.
type Config struct {
	// ListenAddr is the HTTP listen address (LISTEN_ADDR)
	ListenAddr string `yaml:"listen_addr"`
	// BaseURL is the Kimi backend endpoint (KIMI_BASE_URL)
	BaseURL string `yaml:"base_url"`
	// LogHeaders enables masked debug logging of inbound headers (LOG_HEADERS)
	LogHeaders bool `yaml:"log_headers"`
	// StreamBuffer bounds the frames queued between backend and client (STREAM_BUFFER)
	StreamBuffer int `yaml:"stream_buffer"`
	// LogLevel is one of debug, info, warn, error (LOG_LEVEL)
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   DefaultListenAddr,
		BaseURL:      rpc.DefaultBaseURL,
		LogHeaders:   false,
		StreamBuffer: DefaultStreamBuffer,
		LogLevel:     DefaultLogLevel,
	}
}

// LoadConfig builds the configuration. When path is empty only defaults and
// environment variables are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = utils.GetEnvWithDefault("LISTEN_ADDR", c.ListenAddr)
	c.BaseURL = utils.GetEnvWithDefault("KIMI_BASE_URL", c.BaseURL)
	c.LogHeaders = utils.GetEnvBool("LOG_HEADERS", c.LogHeaders)
	c.StreamBuffer = utils.GetEnvInt("STREAM_BUFFER", c.StreamBuffer)
	c.LogLevel = utils.GetEnvWithDefault("LOG_LEVEL", c.LogLevel)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr must not be empty"))
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("base_url %q must be an http(s) URL", c.BaseURL))
	}
	if c.StreamBuffer < 1 {
		errs = append(errs, fmt.Errorf("stream_buffer must be at least 1, got %d", c.StreamBuffer))
	}
	return errors.Join(errs...)
}
