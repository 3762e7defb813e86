// Package config loads the .zhdrill.yaml project file and the optional
// .env file next to it.
//
// Values from the file are defaults; command-line flags override them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/zhdrill/translate"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .zhdrill.yaml structure.
type File struct {
	// Provider is the LLM provider ID (default "openai").
	Provider string `yaml:"provider,omitempty"`
	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty"`
	// BaseURL overrides the provider's API URL.
	BaseURL string `yaml:"base_url,omitempty"`
	// Proxy is an HTTP/HTTPS proxy URL for all outgoing requests.
	Proxy string `yaml:"proxy,omitempty"`
	// TimeoutSeconds is the per-request timeout (0 = provider default).
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
	// MaxRetries is the retry budget per request (0 = 3).
	MaxRetries int `yaml:"max_retries,omitempty"`
	// Prompt replaces the system prompt.
	Prompt string `yaml:"prompt,omitempty"`
	// PromptType selects a prompt from prompts.json.
	PromptType string `yaml:"prompt_type,omitempty"`

	// ServiceURL, when set, sends primary requests to another zhdrill
	// server instead of an LLM provider.
	ServiceURL string `yaml:"service_url,omitempty"`
	// Fallback is the fallback translator: dictionary, google or remote.
	Fallback string `yaml:"fallback,omitempty"`
	// FallbackURL is the zhdrill server used by the remote fallback.
	FallbackURL string `yaml:"fallback_url,omitempty"`

	// CacheSize is the number of cached primary results (0 = 256, -1 = off).
	CacheSize int `yaml:"cache_size,omitempty"`
	// ChunkSize is the number of words per learning chunk (default 2).
	ChunkSize int `yaml:"chunk_size,omitempty"`

	Practice Practice `yaml:"practice,omitempty"`
	Server   Server   `yaml:"server,omitempty"`
}

// Practice holds drill settings.
type Practice struct {
	Repetitions     int     `yaml:"repetitions,omitempty"`
	IntervalSeconds float64 `yaml:"interval_seconds,omitempty"`
	Rate            float64 `yaml:"rate,omitempty"`
	Voice           string  `yaml:"voice,omitempty"`
	Engine          string  `yaml:"engine,omitempty"`
}

// Server holds HTTP API settings.
type Server struct {
	Addr          string `yaml:"addr,omitempty"`
	MaxConcurrent int    `yaml:"max_concurrent,omitempty"`
}

// Fallback translators.
const (
	FallbackDictionary = "dictionary"
	FallbackGoogle     = "google"
	FallbackRemote     = "remote"
)

// Defaults.
const (
	DefaultProvider        = translate.ProviderOpenAI
	DefaultCacheSize       = 256
	DefaultChunkSize       = 2
	DefaultRepetitions     = 5
	DefaultIntervalSeconds = 2
	DefaultRate            = 0.7
	DefaultAddr            = ":8080"
	DefaultMaxConcurrent   = 4
)

// Interval returns the pause between drill parts.
func (p Practice) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds * float64(time.Second))
}

// Timeout returns the request timeout, or 0 for the provider default.
func (f *File) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".zhdrill.yaml"

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

// Load loads and validates .zhdrill.yaml from rootDir.
// Returns nil if no .zhdrill.yaml exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.applyDefaults()
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// LoadOrDefault is Load with Default substituted for a missing file.
func LoadOrDefault(rootDir string) (*File, error) {
	f, err := Load(rootDir)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return Default(), nil
	}
	return f, nil
}

func (f *File) applyDefaults() {
	if f.Provider == "" {
		f.Provider = DefaultProvider
	}
	if f.Fallback == "" {
		f.Fallback = FallbackDictionary
	}
	if f.CacheSize == 0 {
		f.CacheSize = DefaultCacheSize
	}
	if f.ChunkSize == 0 {
		f.ChunkSize = DefaultChunkSize
	}
	if f.Practice.Repetitions == 0 {
		f.Practice.Repetitions = DefaultRepetitions
	}
	if f.Practice.IntervalSeconds == 0 {
		f.Practice.IntervalSeconds = DefaultIntervalSeconds
	}
	if f.Practice.Rate == 0 {
		f.Practice.Rate = DefaultRate
	}
	if f.Server.Addr == "" {
		f.Server.Addr = DefaultAddr
	}
	if f.Server.MaxConcurrent == 0 {
		f.Server.MaxConcurrent = DefaultMaxConcurrent
	}
}

func (f *File) validate() error {
	if _, ok := translate.DefaultProviders()[f.Provider]; !ok {
		return fmt.Errorf("unknown provider %q (valid: openai, google, groq, opencode, custom-openai, ollama)", f.Provider)
	}
	switch f.Fallback {
	case FallbackDictionary, FallbackGoogle:
	case FallbackRemote:
		if f.FallbackURL == "" {
			return fmt.Errorf("fallback %q requires fallback_url", f.Fallback)
		}
	default:
		return fmt.Errorf("unknown fallback %q (valid: dictionary, google, remote)", f.Fallback)
	}
	if f.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative, got %d", f.TimeoutSeconds)
	}
	if f.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", f.MaxRetries)
	}
	if f.CacheSize < -1 {
		return fmt.Errorf("cache_size must be -1 (off) or positive, got %d", f.CacheSize)
	}
	if f.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1, got %d", f.ChunkSize)
	}
	if f.Practice.Repetitions < 1 {
		return fmt.Errorf("practice.repetitions must be at least 1, got %d", f.Practice.Repetitions)
	}
	if f.Practice.IntervalSeconds <= 0 {
		return fmt.Errorf("practice.interval_seconds must be positive, got %g", f.Practice.IntervalSeconds)
	}
	if f.Practice.Rate <= 0 || f.Practice.Rate > 4 {
		return fmt.Errorf("practice.rate must be in (0, 4], got %g", f.Practice.Rate)
	}
	switch f.Practice.Engine {
	case "", "auto", "say", "espeak-ng":
	default:
		return fmt.Errorf("unknown practice.engine %q (valid: auto, say, espeak-ng)", f.Practice.Engine)
	}
	if f.Server.MaxConcurrent < 1 {
		return fmt.Errorf("server.max_concurrent must be at least 1, got %d", f.Server.MaxConcurrent)
	}
	return nil
}
