// Package config loads the websnap service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/go-websnap/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
)

// Config holds pool sizing and render defaults for the service.
type Config struct {
	Pool   PoolConfig   `yaml:"pool"`
	Render RenderConfig `yaml:"render"`
	Output OutputConfig `yaml:"output"`
}

// PoolConfig mirrors the library pool knobs. Zero values fall back to
// the library defaults.
type PoolConfig struct {
	MaxBrowsers           int           `yaml:"maxBrowsers"`
	MaxContextsPerBrowser int           `yaml:"maxContextsPerBrowser"`
	ContextTimeout        time.Duration `yaml:"contextTimeout"`
	RecycleAfterUses      int           `yaml:"recycleAfterUses"`
	AcquireTimeout        time.Duration `yaml:"acquireTimeout"`
	IdleTimeout           time.Duration `yaml:"idleTimeout"`
	MaxBrowserAge         time.Duration `yaml:"maxBrowserAge"`
}

// RenderConfig holds default render options, overridable per run by
// flags.
type RenderConfig struct {
	Artifact        string        `yaml:"artifact"`    // "pdf" or "screenshot"
	Format          string        `yaml:"format"`      // paper format for PDF
	Landscape       bool          `yaml:"landscape"`
	Margin          string        `yaml:"margin"`      // uniform margin, e.g. "1cm"
	PrintBackground bool          `yaml:"printBackground"`
	FullPage        bool          `yaml:"fullPage"`    // screenshot only
	ImageFormat     string        `yaml:"imageFormat"` // "png" or "jpeg"
	WaitUntil       string        `yaml:"waitUntil"`
	WaitTimeout     time.Duration `yaml:"waitTimeout"`
	Delay           time.Duration `yaml:"delay"`
	ViewportWidth   string        `yaml:"viewportWidth"`
	ViewportHeight  string        `yaml:"viewportHeight"`
	UserAgent       string        `yaml:"userAgent"`
}

// OutputConfig defines output destination options.
type OutputConfig struct {
	DefaultDir string `yaml:"defaultDir"` // empty = current directory
}

// DefaultConfig returns the zero config; the library supplies the
// actual defaults so the two never drift.
func DefaultConfig() *Config {
	return &Config{}
}

// Load reads and strictly parses a config file. An explicit path must
// exist; a bare name is searched in the working directory and
// $HOME/.config/websnap/.
func Load(nameOrPath string) (*Config, error) {
	path, err := resolve(nameOrPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	return cfg, nil
}

// resolve turns a config name or path into a readable file path.
func resolve(nameOrPath string) (string, error) {
	if filepath.Ext(nameOrPath) != "" || filepath.IsAbs(nameOrPath) {
		if _, err := os.Stat(nameOrPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, nameOrPath)
		}
		return nameOrPath, nil
	}

	candidates := []string{nameOrPath + ".yaml", nameOrPath + ".yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "websnap", nameOrPath+".yaml"),
			filepath.Join(home, ".config", "websnap", nameOrPath+".yml"),
		)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrConfigNotFound, nameOrPath)
}
