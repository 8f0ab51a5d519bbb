// File: internal/config/config.go
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Store() StoreConfig
	Discovery() DiscoveryConfig
	Registry() RegistryConfig

	// Store Setters
	SetStorePath(string)

	// Discovery Setters
	SetDiscoveryAPIPrefix(string)
	SetDiscoveryParallel(bool)
}

// Config holds the entire application configuration. Fields stay exported so
// viper/mapstructure can decode them; consumers go through the Interface
// getters, which return by value.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
	DiscoveryCfg DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	RegistryCfg  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }
func (c *Config) Discovery() DiscoveryConfig { return c.DiscoveryCfg }
func (c *Config) Registry() RegistryConfig   { return c.RegistryCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetStorePath(p string)          { c.StoreCfg.Path = p }
func (c *Config) SetDiscoveryAPIPrefix(p string) { c.DiscoveryCfg.APIPrefix = p }
func (c *Config) SetDiscoveryParallel(b bool)    { c.DiscoveryCfg.Parallel = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// StoreConfig locates the fact database snapshot produced by the indexing
// pipeline. The store is opened strictly read-only; PoolSize bounds the number
// of concurrent reader connections handed to parallel discoverers.
type StoreConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
}

// DiscoveryConfig tunes the taint discovery engine. The path markers identify
// architectural layers by path segment, matching how the indexer records file
// paths (relative, forward-slash separated).
type DiscoveryConfig struct {
	// APIPrefix is the versioned API root stripped during endpoint path
	// normalization, e.g. "/api/v1".
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix"`
	// ClientMarkers flag a file as client-side code.
	ClientMarkers []string `mapstructure:"client_markers" yaml:"client_markers"`
	// ServiceMarkers flag the service layer scanned for HTTP-client wrappers.
	ServiceMarkers []string `mapstructure:"service_markers" yaml:"service_markers"`
	// StoreMarkers flag the store/controller layer scanned for wrapper callers.
	StoreMarkers []string `mapstructure:"store_markers" yaml:"store_markers"`
	// WrapperSuffixes identify API-wrapper object names (e.g. "Api", "Client").
	WrapperSuffixes []string `mapstructure:"wrapper_suffixes" yaml:"wrapper_suffixes"`
	// Parallel runs the independent discovery categories concurrently.
	Parallel bool `mapstructure:"parallel" yaml:"parallel"`
}

// RegistryConfig carries the caller-supplied taint pattern registry: a mapping
// from category name to an ordered list of pattern strings. There are
// deliberately NO defaults for this section. An absent category means
// "discover nothing for that category" -- the engine never substitutes a
// guessed pattern for a missing one.
type RegistryConfig struct {
	Patterns map[string][]string `mapstructure:"patterns" yaml:"patterns"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
// Note: registry.patterns intentionally receives no defaults (zero-fallback).
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "faultline")
	v.SetDefault("logger.log_file", "faultline.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Store --
	v.SetDefault("store.path", ".faultline/facts.db")
	v.SetDefault("store.pool_size", 8)

	// -- Discovery --
	v.SetDefault("discovery.api_prefix", "/api/v1")
	v.SetDefault("discovery.client_markers", []string{"frontend/", "client/", "/components/", "/pages/"})
	v.SetDefault("discovery.service_markers", []string{"/services/", "/api/"})
	v.SetDefault("discovery.store_markers", []string{"/stores/", "/store/", "/controllers/"})
	v.SetDefault("discovery.wrapper_suffixes", []string{"Api", "api", "Client", "Service"})
	v.SetDefault("discovery.parallel", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.StoreCfg.Path == "" {
		return fmt.Errorf("store.path is a required configuration field")
	}
	if c.StoreCfg.PoolSize <= 0 {
		return fmt.Errorf("store.pool_size must be a positive integer")
	}
	return nil
}
