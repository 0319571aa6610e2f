package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/git-pkgs/jslib/internal/npm"
)

// Environment variable prefix for jslib configuration.
const envPrefix = "JSLIB"

// DefaultConfigName is the config file looked up in the working directory.
const DefaultConfigName = "jslib"

var keys = []string{
	"rootdir",
	"cachedir",
	"registry",
	"token",
	"urlbase",
	"config",
	"runtime",
	"loader",
	"optimizer",
	"timeout",
}

// Loader handles loading configuration from a file and the environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range keys {
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key))
	}

	v.SetDefault("registry", npm.DefaultURL)
	v.SetDefault("optimizer", "node")

	return &Loader{v: v}
}

// Load loads configuration from configFile. When configFile is empty,
// jslib.yaml in the working directory is used if present. Environment
// variables take precedence over file values.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(DefaultConfigName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Set overrides a key, as a command-line flag does.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}
