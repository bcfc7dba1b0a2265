// Package config loads the onedrived configuration from a YAML file,
// with ONEDRIVED_* environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/m-rots/onedrived"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// DefaultPath is used when no configuration file is given.
const DefaultPath = "~/.onedrived/config.yaml"

// ErrInvalidConfig occurs when a loaded configuration cannot be used.
var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	MaxPutSize  int64         `mapstructure:"max_put_size"`
	MaxGetSize  int64         `mapstructure:"max_get_size"`
	Workers     int           `mapstructure:"workers"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// Defaults of every drive. A drive adds its own patterns and proxies.
	IgnoreFiles []string          `mapstructure:"ignore_files"`
	Proxies     map[string]string `mapstructure:"proxies"`

	Store   Store   `mapstructure:"store"`
	Log     Log     `mapstructure:"log"`
	Account Account `mapstructure:"account"`
	Drive   Drive   `mapstructure:"drive"`
}

type Store struct {
	// Backend is either sqlite or bolt.
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type Log struct {
	Level string `mapstructure:"level"`
	// File is optional. Logs are always written to stderr.
	File string `mapstructure:"file"`
}

type Account struct {
	ID           string `mapstructure:"id"`
	Type         string `mapstructure:"type"`
	ClientID     string `mapstructure:"client_id"`
	RefreshToken string `mapstructure:"refresh_token"`
}

type Drive struct {
	ID        string `mapstructure:"id"`
	LocalRoot string `mapstructure:"local_root"`
}

var defaults = map[string]interface{}{
	"max_put_size":          onedrived.DefaultMaxPutSize,
	"max_get_size":          onedrived.DefaultMaxGetSize,
	"workers":               4,
	"http_timeout":          5 * time.Minute,
	"store.backend":         "sqlite",
	"store.path":            "~/.onedrived/onedrived.db",
	"log.level":             "info",
	"log.file":              "",
	"account.id":            "",
	"account.type":          string(onedrived.AccountPersonal),
	"account.client_id":     "",
	"account.refresh_token": "",
	"drive.id":              "",
	"drive.local_root":      "~/OneDrive",
}

// Load reads the configuration at path. A missing file is only an error
// when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("ONEDRIVED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("config path %v: %w", path, err)
	}

	v.SetConfigFile(expanded)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("read %v: %w", expanded, err)
		}
	}

	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode %v: %w", expanded, err)
	}

	for _, p := range []*string{&config.Store.Path, &config.Log.File, &config.Drive.LocalRoot} {
		if *p == "" {
			continue
		}

		if *p, err = homedir.Expand(*p); err != nil {
			return nil, fmt.Errorf("expand %v: %w", *p, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values which have no sensible fallback.
func (c *Config) Validate() error {
	switch {
	case c.MaxPutSize <= 0:
		return fmt.Errorf("max_put_size must be positive: %w", ErrInvalidConfig)
	case c.MaxPutSize%(320*1024) != 0:
		return fmt.Errorf("max_put_size must be a multiple of 320 KiB: %w", ErrInvalidConfig)
	case c.MaxGetSize <= 0:
		return fmt.Errorf("max_get_size must be positive: %w", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1: %w", ErrInvalidConfig)
	case c.Store.Backend != "sqlite" && c.Store.Backend != "bolt":
		return fmt.Errorf("unknown store backend %q: %w", c.Store.Backend, ErrInvalidConfig)
	}

	switch onedrived.AccountType(c.Account.Type) {
	case onedrived.AccountPersonal, onedrived.AccountBusiness:
	default:
		return fmt.Errorf("unknown account type %q: %w", c.Account.Type, ErrInvalidConfig)
	}

	return nil
}

// DriveDefaults is the configuration every drive starts from.
func (c *Config) DriveDefaults() onedrived.DriveConfig {
	return onedrived.DriveConfig{
		MaxGetSize:  c.MaxGetSize,
		MaxPutSize:  c.MaxPutSize,
		IgnoreFiles: c.IgnoreFiles,
		Proxies:     c.Proxies,
	}
}
