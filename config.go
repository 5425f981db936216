package arrbox

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config carries the create/open parameters and the deployment-level
// routing policy.
type Config struct {
	// Format demands a specific backend, overriding content sniffing.
	// FormatUnknown lets the routing procedure decide.
	Format FormatTag `json:"format,omitempty" yaml:"format,omitempty"`

	// Flags is the mode/creation bitmask.
	Flags Flags `json:"flags,omitempty" yaml:"flags,omitempty"`

	// FallbackFormat is used on open when no signature matches and no
	// explicit Format was demanded. Unset, an unmatched header is an
	// ErrUnknownFormat; a deployment choosing a fallback must document it.
	FallbackFormat FormatTag `json:"fallbackFormat,omitempty" yaml:"fallbackFormat,omitempty"`

	// SizeHint is the initial file size hint in bytes (advisory).
	SizeHint int64 `json:"sizeHint,omitempty" yaml:"sizeHint,omitempty"`

	// ChunkHint is the preferred chunk size in bytes for chunked
	// backends (advisory, in/out: drivers may update it to the value
	// actually used).
	ChunkHint int64 `json:"chunkHint,omitempty" yaml:"chunkHint,omitempty"`

	// BasePE is the legacy base processing element (classic model only,
	// ignored elsewhere).
	BasePE int `json:"basePE,omitempty" yaml:"basePE,omitempty"`

	// Options holds driver-specific configuration.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`

	// Fs is the filesystem drivers operate on. Defaults to the OS
	// filesystem; tests substitute afero.NewMemMapFs().
	Fs afero.Fs `json:"-" yaml:"-"`

	// Logger receives debug-level routing and lifecycle logs.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// withDefaults returns a copy with nil fields filled in. A nil receiver
// yields a fully defaulted Config.
func (c *Config) withDefaults() *Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.Fs == nil {
		out.Fs = afero.NewOsFs()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// Option returns a driver option by key.
func (c *Config) Option(key string) (any, bool) {
	if c == nil || c.Options == nil {
		return nil, false
	}
	v, ok := c.Options[key]
	return v, ok
}

// StringOption returns a driver option coerced to string.
func (c *Config) StringOption(key string) (string, bool) {
	v, ok := c.Option(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// LoadConfig reads a YAML config file from the given filesystem.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("arrbox: reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("arrbox: parsing config: %w", err)
	}
	return &cfg, nil
}
