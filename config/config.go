package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Config is the top-level mdgate configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Markdown MarkdownConfig `yaml:"markdown"`
}

// ServerConfig defines the HTTP listeners.
type ServerConfig struct {
	Listen        string        `yaml:"listen"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MetricsListen string        `yaml:"metrics_listen"` // "" disables the admin/metrics listener
}

// LoggingConfig defines structured logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MarkdownConfig configures the markdown rendition pipeline.
type MarkdownConfig struct {
	Cache          CacheConfig   `yaml:"cache"`
	Headers        HeadersConfig `yaml:"headers"`
	Exclude        ExcludeConfig `yaml:"exclude"`
	Convert        ConvertConfig `yaml:"convert"`
	ETag           ETagConfig    `yaml:"etag"`
	MaxRequestSize int64         `yaml:"max_request_size"` // upstream payload ceiling in bytes, default 10 MiB
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`    // upstream fetch deadline, default 30s
}

// CacheConfig controls the Cache-Control hint on rendered responses.
// The pipeline only emits the directive; it never stores responses.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxAge in seconds. nil = default 3600; an explicit 0 emits max-age=0.
	MaxAge *int `yaml:"max_age"`
}

// HeadersConfig controls header forwarding and extra response headers.
type HeadersConfig struct {
	// Forward restricts forwarded request headers to the intersection with
	// the fixed allow-list. nil means every allow-listed header present on
	// the request is forwarded; an explicit empty list forwards nothing.
	Forward []string `yaml:"forward"`
	// Custom response headers copied verbatim onto rendered responses.
	Custom map[string]string `yaml:"custom"`
}

// ExcludeConfig controls which paths never reach the pipeline.
type ExcludeConfig struct {
	// Paths holds exclusion matchers. A bare string or "literal:" prefix is
	// a substring match, "re:" a regular expression, "glob:" a doublestar
	// glob. First match wins.
	Paths []string `yaml:"paths"`
	// APIRoutes excludes the reserved /api/ prefix. nil = default true.
	APIRoutes *bool `yaml:"api_routes"`
}

// ConvertConfig holds HTML-to-markdown style options. When every field is
// zero the shared default converter is used; any set field switches the
// renderer to an independently configured converter.
type ConvertConfig struct {
	HeadingStyle     string `yaml:"heading_style"`      // "atx" or "setext"
	CodeBlockStyle   string `yaml:"code_block_style"`   // "fenced" or "indented"
	BulletListMarker string `yaml:"bullet_list_marker"` // "-", "+" or "*"
	// Extras are passed through to the converter by option name, unvalidated,
	// so new converter options work without a config schema change.
	Extras map[string]string `yaml:"extras"`
}

// ETagConfig controls ETag generation on rendered markdown.
type ETagConfig struct {
	Enabled *bool `yaml:"enabled"` // nil = default true
}

// Defaults mirrored by the pipeline when fields are unset.
const (
	DefaultMaxRequestSize = 10 << 20 // 10 MiB
	DefaultCacheMaxAge    = 3600
)

// DefaultFetchTimeout is the upstream fetch deadline applied when none is
// configured.
const DefaultFetchTimeout = 30 * time.Second

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:        ":8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  30 * time.Second,
			MetricsListen: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Markdown: MarkdownConfig{
			Cache: CacheConfig{
				MaxAge: intPtr(DefaultCacheMaxAge),
			},
			MaxRequestSize: DefaultMaxRequestSize,
			FetchTimeout:   DefaultFetchTimeout,
		},
	}
}

func intPtr(v int) *int { return &v }

// Normalize fills unset markdown fields with defaults. Explicit values
// survive: false on the *bool fields, 0 on the *int fields, and a non-nil
// empty forward list. Only the non-pointer max_request_size and
// fetch_timeout treat zero as unset.
func (m *MarkdownConfig) Normalize() {
	*m = MergeNonZero(MarkdownConfig{
		Cache:          CacheConfig{MaxAge: intPtr(DefaultCacheMaxAge)},
		MaxRequestSize: DefaultMaxRequestSize,
		FetchTimeout:   DefaultFetchTimeout,
	}, *m)
}

// MaxAgeSeconds resolves the tri-state MaxAge field.
func (c CacheConfig) MaxAgeSeconds() int {
	if c.MaxAge == nil {
		return DefaultCacheMaxAge
	}
	return *c.MaxAge
}

// ExcludeAPIRoutes resolves the tri-state APIRoutes flag.
func (e ExcludeConfig) ExcludeAPIRoutes() bool {
	if e.APIRoutes == nil {
		return true
	}
	return *e.APIRoutes
}

// ETagEnabled resolves the tri-state Enabled flag.
func (e ETagConfig) ETagEnabled() bool {
	if e.Enabled == nil {
		return true
	}
	return *e.Enabled
}

var validLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging: invalid level %q", c.Logging.Level)
	}
	if c.Markdown.MaxRequestSize < 0 {
		return fmt.Errorf("markdown: max_request_size must not be negative")
	}
	if c.Markdown.FetchTimeout < 0 {
		return fmt.Errorf("markdown: fetch_timeout must not be negative")
	}
	if c.Markdown.Cache.MaxAge != nil && *c.Markdown.Cache.MaxAge < 0 {
		return fmt.Errorf("markdown: cache.max_age must not be negative")
	}
	for _, p := range c.Markdown.Exclude.Paths {
		if err := validateMatcher(p); err != nil {
			return fmt.Errorf("markdown: exclude.paths: %w", err)
		}
	}
	switch c.Markdown.Convert.HeadingStyle {
	case "", "atx", "setext":
	default:
		return fmt.Errorf("markdown: convert.heading_style must be \"atx\" or \"setext\", got %q", c.Markdown.Convert.HeadingStyle)
	}
	switch c.Markdown.Convert.CodeBlockStyle {
	case "", "fenced", "indented":
	default:
		return fmt.Errorf("markdown: convert.code_block_style must be \"fenced\" or \"indented\", got %q", c.Markdown.Convert.CodeBlockStyle)
	}
	switch c.Markdown.Convert.BulletListMarker {
	case "", "-", "+", "*":
	default:
		return fmt.Errorf("markdown: convert.bullet_list_marker must be \"-\", \"+\" or \"*\", got %q", c.Markdown.Convert.BulletListMarker)
	}
	return nil
}

// validateMatcher checks an exclusion matcher at config load time so bad
// patterns fail fast instead of at request time.
func validateMatcher(m string) error {
	switch {
	case strings.HasPrefix(m, "re:"):
		if _, err := regexp.Compile(strings.TrimPrefix(m, "re:")); err != nil {
			return fmt.Errorf("invalid regexp %q: %w", m, err)
		}
	case strings.HasPrefix(m, "glob:"):
		if !doublestar.ValidatePattern(strings.TrimPrefix(m, "glob:")) {
			return fmt.Errorf("invalid glob pattern %q", m)
		}
	}
	return nil
}
