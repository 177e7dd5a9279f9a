// Package config provides configuration loading for callmap.
//
// Configuration Hierarchy (highest to lowest priority):
//  1. Environment variables (CALLMAP_*)
//  2. Project config (.callmap/config.yml or .callmap/config.yaml)
//  3. User config (~/.callmap/config.yml)
//  4. Built-in defaults
//
// Environment Variable Convention:
//   - Prefix: CALLMAP_
//   - Nested fields: use underscores (CALLMAP_HOSTS_TIMEOUT=10s)
//   - List values are comma separated (CALLMAP_DISCOVERY_IGNORE=build/**,dist/**)
package config

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/adapters"
	"github.com/mvp-joe/callmap/internal/hosts"
)

// Config represents the complete callmap configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Headers    HeadersConfig    `yaml:"headers" mapstructure:"headers"`
	Hosts      HostsConfig      `yaml:"hosts" mapstructure:"hosts"`
	Symbols    SymbolsConfig    `yaml:"symbols" mapstructure:"symbols"`
	Confidence ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
}

// LoggingConfig sets the log level: debug, info, warn or error.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DiscoveryConfig selects which files a batch scan visits.
type DiscoveryConfig struct {
	Include []string `yaml:"include" mapstructure:"include"` // glob patterns, relative to the scan root
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`   // glob patterns to skip
}

// HeadersConfig lists extra directories searched for C headers next to native modules.
type HeadersConfig struct {
	SearchPaths []string `yaml:"search_paths" mapstructure:"search_paths"`
}

// HostsConfig configures the external capability hosts.
type HostsConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	AllowExecute      bool          `yaml:"allow_execute" mapstructure:"allow_execute"` // permit running executables for --help
	HelpFlag          string        `yaml:"help_flag" mapstructure:"help_flag"`
	ReflectionCommand []string      `yaml:"reflection_command" mapstructure:"reflection_command"`
	TypeLibCommand    []string      `yaml:"typelib_command" mapstructure:"typelib_command"`
	SymbolsCommand    []string      `yaml:"symbols_command" mapstructure:"symbols_command"`
	SignatureCommand  []string      `yaml:"signature_command" mapstructure:"signature_command"`
	CacheSize         int           `yaml:"cache_size" mapstructure:"cache_size"`
}

// SymbolsConfig filters compiler and runtime symbols out of debug-symbol catalogs.
type SymbolsConfig struct {
	InternalPatterns []string `yaml:"internal_patterns" mapstructure:"internal_patterns"`
}

// ConfidenceConfig feeds the artifact-trust and naming evidence.
type ConfidenceConfig struct {
	KnownPublishers []string `yaml:"known_publishers" mapstructure:"known_publishers"`
	SystemPaths     []string `yaml:"system_paths" mapstructure:"system_paths"`
	SystemModules   []string `yaml:"system_modules" mapstructure:"system_modules"`
	NamePatterns    []string `yaml:"name_patterns" mapstructure:"name_patterns"`
}

// OutputConfig controls where catalog documents are written.
type OutputConfig struct {
	Dir            string `yaml:"dir" mapstructure:"dir"`
	ValidateSchema bool   `yaml:"validate_schema" mapstructure:"validate_schema"`
}

// StorageConfig locates the SQLite catalog store. An empty path disables it.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Discovery: DiscoveryConfig{
			Include: []string{"**"},
			Ignore: []string{
				".git/**",
				".callmap/**",
				"node_modules/**",
				"vendor/**",
				"__pycache__/**",
				"**/*.callmap.json",
			},
		},
		Headers: HeadersConfig{SearchPaths: []string{}},
		Hosts: HostsConfig{
			Timeout:           hosts.DefaultTimeout,
			AllowExecute:      false,
			HelpFlag:          "--help",
			ReflectionCommand: []string{},
			TypeLibCommand:    []string{},
			SymbolsCommand:    []string{},
			SignatureCommand:  []string{},
			CacheSize:         hosts.DefaultCacheSize,
		},
		Symbols: SymbolsConfig{
			InternalPatterns: clone(adapters.DefaultInternalSymbolPatterns),
		},
		Confidence: ConfidenceConfig{
			KnownPublishers: clone(adapters.DefaultKnownPublishers),
			SystemPaths:     clone(adapters.DefaultSystemPaths),
			SystemModules:   clone(adapters.DefaultSystemModules),
			NamePatterns:    clone(adapters.DefaultNamePatterns),
		},
		Output: OutputConfig{
			Dir:            ".callmap/catalogs",
			ValidateSchema: true,
		},
		Storage: StorageConfig{
			SQLitePath: ".callmap/callmap.db",
		},
	}
}

// LogLevel returns the parsed logging level, falling back to info.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// ToHostOptions converts the hosts section to hosts.Options.
func (c *Config) ToHostOptions() hosts.Options {
	return hosts.Options{
		Timeout:           c.Hosts.Timeout,
		AllowExecute:      c.Hosts.AllowExecute,
		HelpFlag:          c.Hosts.HelpFlag,
		ReflectionCommand: c.Hosts.ReflectionCommand,
		TypeLibCommand:    c.Hosts.TypeLibCommand,
		SymbolsCommand:    c.Hosts.SymbolsCommand,
		SignatureCommand:  c.Hosts.SignatureCommand,
		CacheSize:         c.Hosts.CacheSize,
	}
}

// ToAdapterOptions converts the headers, symbols and confidence sections to adapters.Options.
func (c *Config) ToAdapterOptions() adapters.Options {
	return adapters.Options{
		HeaderSearchPaths:      c.Headers.SearchPaths,
		KnownPublishers:        c.Confidence.KnownPublishers,
		SystemPaths:            c.Confidence.SystemPaths,
		SystemModules:          c.Confidence.SystemModules,
		NamePatterns:           c.Confidence.NamePatterns,
		InternalSymbolPatterns: c.Symbols.InternalPatterns,
	}
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
