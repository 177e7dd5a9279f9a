package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DirName is the per-project and per-user configuration directory.
const DirName = ".callmap"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from files and environment variables.
	// Priority: defaults → user config → project config → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
	homeDir string
}

// NewLoader creates a loader for the given project root. The user config is read
// from the current user's home directory when it can be resolved.
func NewLoader(rootDir string) Loader {
	home, _ := os.UserHomeDir()
	return &loader{rootDir: rootDir, homeDir: home}
}

// NewLoaderWithHome creates a loader with an explicit home directory. An empty
// homeDir skips the user config layer.
func NewLoaderWithHome(rootDir, homeDir string) Loader {
	return &loader{rootDir: rootDir, homeDir: homeDir}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (CALLMAP_*)
// 2. Project config file (.callmap/config.yml or .callmap/config.yaml)
// 3. User config file (~/.callmap/config.yml)
// 4. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Enable environment variable overrides (e.g., CALLMAP_HOSTS_TIMEOUT)
	v.SetEnvPrefix("CALLMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	setDefaults(v)

	if l.homeDir != "" {
		if err := mergeConfigFile(v, filepath.Join(l.homeDir, DirName)); err != nil {
			return nil, fmt.Errorf("failed to read user config: %w", err)
		}
	}
	if err := mergeConfigFile(v, filepath.Join(l.rootDir, DirName)); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// mergeConfigFile merges dir/config.yml or dir/config.yaml when one exists.
func mergeConfigFile(v *viper.Viper, dir string) error {
	for _, name := range []string{"config.yml", "config.yaml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	}
	return nil
}

func bindEnvVars(v *viper.Viper) {
	for _, key := range []string{
		"logging.level",
		"discovery.include",
		"discovery.ignore",
		"headers.search_paths",
		"hosts.timeout",
		"hosts.allow_execute",
		"hosts.help_flag",
		"hosts.reflection_command",
		"hosts.typelib_command",
		"hosts.symbols_command",
		"hosts.signature_command",
		"hosts.cache_size",
		"symbols.internal_patterns",
		"confidence.known_publishers",
		"confidence.system_paths",
		"confidence.system_modules",
		"confidence.name_patterns",
		"output.dir",
		"output.validate_schema",
		"storage.sqlite_path",
	} {
		v.BindEnv(key)
	}
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetDefault("discovery.include", defaults.Discovery.Include)
	v.SetDefault("discovery.ignore", defaults.Discovery.Ignore)

	v.SetDefault("headers.search_paths", defaults.Headers.SearchPaths)

	v.SetDefault("hosts.timeout", defaults.Hosts.Timeout)
	v.SetDefault("hosts.allow_execute", defaults.Hosts.AllowExecute)
	v.SetDefault("hosts.help_flag", defaults.Hosts.HelpFlag)
	v.SetDefault("hosts.reflection_command", defaults.Hosts.ReflectionCommand)
	v.SetDefault("hosts.typelib_command", defaults.Hosts.TypeLibCommand)
	v.SetDefault("hosts.symbols_command", defaults.Hosts.SymbolsCommand)
	v.SetDefault("hosts.signature_command", defaults.Hosts.SignatureCommand)
	v.SetDefault("hosts.cache_size", defaults.Hosts.CacheSize)

	v.SetDefault("symbols.internal_patterns", defaults.Symbols.InternalPatterns)

	v.SetDefault("confidence.known_publishers", defaults.Confidence.KnownPublishers)
	v.SetDefault("confidence.system_paths", defaults.Confidence.SystemPaths)
	v.SetDefault("confidence.system_modules", defaults.Confidence.SystemModules)
	v.SetDefault("confidence.name_patterns", defaults.Confidence.NamePatterns)

	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.validate_schema", defaults.Output.ValidateSchema)

	v.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)
}

// LoadConfig loads configuration rooted at the current working directory.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
