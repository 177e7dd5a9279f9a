// Package cli implements the callmap command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/callmap/internal/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	root    string
	verbose bool
	quiet   bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "callmap",
		Short: "Catalog the invocable surface of software artifacts",
		Long: `callmap inspects binaries, scripts, schemas and service descriptors and
writes a catalog of everything that can be invoked: name, parameters, return
type, how to call it and how confident the extraction is.

Configuration is read from ~/.callmap/config.yml, then <root>/.callmap/config.yml,
then CALLMAP_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.root, "root", "", "project root holding .callmap/config.yml (default is the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors and disable progress bars")

	rootCmd.AddCommand(
		newScanCmd(opts),
		newClassifyCmd(opts),
		newKindsCmd(opts),
		newFindCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on error.
// This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootDir resolves --root, defaulting to the working directory.
func (o *globalOptions) rootDir() (string, error) {
	if o.root != "" {
		return filepath.Abs(o.root)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

// loadConfig reads the layered configuration for the project root.
func (o *globalOptions) loadConfig() (string, *config.Config, error) {
	root, err := o.rootDir()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return root, cfg, nil
}

// newLogger creates the process logger. --verbose and --quiet override the
// configured level.
func (o *globalOptions) newLogger(w io.Writer, cfg *config.Config) *log.Logger {
	level := cfg.LogLevel()
	switch {
	case o.verbose:
		level = log.DebugLevel
	case o.quiet:
		level = log.ErrorLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: "callmap",
		Level:  level,
	})
}
