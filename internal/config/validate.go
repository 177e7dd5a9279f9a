package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"
)

var (
	// ErrInvalidLogLevel indicates an unknown logging level
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidTimeout indicates a non-positive host timeout
	ErrInvalidTimeout = errors.New("invalid host timeout")

	// ErrInvalidCacheSize indicates a negative host cache size
	ErrInvalidCacheSize = errors.New("invalid host cache size")

	// ErrEmptyHelpFlag indicates executable probing is enabled without a help flag
	ErrEmptyHelpFlag = errors.New("empty help flag")

	// ErrInvalidPattern indicates a glob pattern that does not compile
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrEmptyOutputDir indicates a missing output directory
	ErrEmptyOutputDir = errors.New("empty output directory")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := log.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q (valid: debug, info, warn, error)", ErrInvalidLogLevel, cfg.Logging.Level))
	}

	errs = append(errs, validatePatterns("discovery.include", cfg.Discovery.Include)...)
	errs = append(errs, validatePatterns("discovery.ignore", cfg.Discovery.Ignore)...)
	errs = append(errs, validatePatterns("symbols.internal_patterns", cfg.Symbols.InternalPatterns)...)
	errs = append(errs, validatePatterns("confidence.name_patterns", cfg.Confidence.NamePatterns)...)

	if err := validateHosts(&cfg.Hosts); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(cfg.Output.Dir) == "" {
		errs = append(errs, fmt.Errorf("%w: output.dir is required", ErrEmptyOutputDir))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateHosts(cfg *HostsConfig) error {
	var errs []error

	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidTimeout, cfg.Timeout))
	}

	// Zero means the default size.
	if cfg.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: cache_size cannot be negative, got %d", ErrInvalidCacheSize, cfg.CacheSize))
	}

	if cfg.AllowExecute && strings.TrimSpace(cfg.HelpFlag) == "" {
		errs = append(errs, fmt.Errorf("%w: help_flag is required when allow_execute is set", ErrEmptyHelpFlag))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validatePatterns(key string, patterns []string) []error {
	var errs []error
	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %q: %v", ErrInvalidPattern, key, p, err))
		}
	}
	return errs
}

// validationErrors keeps every cause reachable through errors.Is.
type validationErrors []error

func (v validationErrors) Error() string {
	var msgs []string
	for _, err := range v {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (v validationErrors) Unwrap() []error { return v }

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	// Flatten nested groups so the message stays one list.
	var flat validationErrors
	for _, err := range errs {
		var nested validationErrors
		if errors.As(err, &nested) {
			flat = append(flat, nested...)
			continue
		}
		flat = append(flat, err)
	}
	return flat
}
