// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/git-pkgs/jslib/internal/core"
)

// Config is the jslib configuration.
type Config struct {
	// RootDir is the library root. Required.
	// Env: JSLIB_ROOTDIR
	RootDir string `mapstructure:"rootdir"`

	// CacheDir holds cached package descriptors. It must exist when set.
	// Default: <tmp>/jslib
	// Env: JSLIB_CACHEDIR
	CacheDir string `mapstructure:"cachedir"`

	// Registry is the package registry base URL.
	// Env: JSLIB_REGISTRY
	Registry string `mapstructure:"registry"`

	// Token authenticates against the registry.
	// Env: JSLIB_TOKEN
	Token string `mapstructure:"token"`

	// URLBase is the loader's baseUrl. Ignored when Config is set.
	// Env: JSLIB_URLBASE
	URLBase string `mapstructure:"urlbase"`

	// Config is a JSON object, comments allowed, merged over the generated
	// loader configuration.
	// Env: JSLIB_CONFIG
	Config string `mapstructure:"config"`

	// Runtime is the path of the loader runtime placed at the start of
	// bundles.
	Runtime string `mapstructure:"runtime"`

	// Loader is the path of the standalone loader used when scripts are
	// served one by one.
	Loader string `mapstructure:"loader"`

	// Optimizer is the command that runs the optimizer script.
	// Default: node
	Optimizer string `mapstructure:"optimizer"`

	// Timeout bounds an optimizer run. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ValidationError is a configuration value that cannot be used.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks that the configured directories exist.
func (c *Config) Validate(fsys afero.Fs) error {
	if c.RootDir == "" {
		return &ValidationError{Field: "rootdir", Message: "no rootdir configured"}
	}
	if ok, err := afero.DirExists(fsys, c.RootDir); err != nil || !ok {
		return &ValidationError{Field: "rootdir", Message: fmt.Sprintf("%s does not exist", c.RootDir)}
	}
	if c.CacheDir != "" {
		if ok, err := afero.DirExists(fsys, c.CacheDir); err != nil || !ok {
			return &ValidationError{Field: "cachedir", Message: fmt.Sprintf("%s does not exist", c.CacheDir)}
		}
	}
	if c.Timeout < 0 {
		return &ValidationError{Field: "timeout", Message: "must not be negative"}
	}
	return nil
}

// CacheDirectory returns the descriptor cache directory, creating the
// default one under the system temp dir when none is configured.
func (c *Config) CacheDirectory(fsys afero.Fs) (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	dir := filepath.Join(os.TempDir(), "jslib")
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}
	return dir, nil
}

// LoaderOverrides returns the configuration merged over the generated
// loader configuration.
func (c *Config) LoaderOverrides() (*core.LoaderConfig, error) {
	overrides := core.DefaultLoaderConfig()
	if strings.TrimSpace(c.Config) != "" {
		parsed, err := core.ParseLoaderConfig([]byte(c.Config))
		if err != nil {
			return nil, &ValidationError{Field: "config", Message: err.Error()}
		}
		return core.MergeLoaderConfig(overrides, parsed), nil
	}
	if c.URLBase != "" {
		overrides.Set("baseUrl", c.URLBase)
	}
	return overrides, nil
}

// OptimizerCommand splits the optimizer command line on whitespace.
func (c *Config) OptimizerCommand() []string {
	return strings.Fields(c.Optimizer)
}

// ReadSource reads an optional script file. An empty path yields "".
func ReadSource(fsys afero.Fs, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
