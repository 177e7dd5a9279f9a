package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/output"
	"github.com/mvp-joe/callmap/internal/pipeline"
	"github.com/mvp-joe/callmap/internal/storage"
)

type scanOptions struct {
	watch    bool
	debounce time.Duration
	outDir   string
	dbPath   string
	noDB     bool
}

func newScanCmd(g *globalOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Catalog a single artifact or every artifact under a directory",
		Long: `Scan classifies artifacts, extracts their invocables and writes one catalog
document per artifact.

A file argument prints its catalog to stdout. A directory argument (default:
the project root) is scanned with the discovery include/ignore globs; catalogs
are written under output.dir and recorded in the SQLite store.

Examples:
  # Print the catalog of one library
  callmap scan bin/mathlib.dll

  # Catalog every artifact under the project root
  callmap scan

  # Keep catalogs current while files change
  callmap scan --watch ./tools
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runScan(ctx, g, opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "keep running and rescan changed artifacts")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", pipeline.DefaultDebounce, "quiet period before a change set is rescanned")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "catalog output directory (overrides output.dir)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite store path (overrides storage.sqlite_path)")
	cmd.Flags().BoolVar(&opts.noDB, "no-db", false, "do not record the run in the SQLite store")
	return cmd
}

func runScan(ctx context.Context, g *globalOptions, opts *scanOptions, args []string, stdout, stderr io.Writer) error {
	eng, err := g.newEngine(stderr)
	if err != nil {
		return err
	}
	defer eng.Close()

	target := eng.root
	if len(args) == 1 {
		target, err = filepath.Abs(args[0])
		if err != nil {
			return err
		}
	}
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("failed to access %s: %w", target, err)
	}

	if !info.IsDir() {
		if opts.watch {
			return fmt.Errorf("--watch requires a directory")
		}
		return scanFile(ctx, eng, target, stdout)
	}
	return scanDir(ctx, eng, g, opts, target, stdout, stderr)
}

// scanFile prints one artifact's catalog.
func scanFile(ctx context.Context, eng *engine, path string, stdout io.Writer) error {
	p, err := eng.newPipeline("")
	if err != nil {
		return err
	}
	c, err := p.Process(ctx, path)
	if err != nil {
		return err
	}
	return output.Write(stdout, c, eng.cfg.Output.ValidateSchema)
}

func scanDir(ctx context.Context, eng *engine, g *globalOptions, opts *scanOptions, dir string, stdout, stderr io.Writer) error {
	d, err := pipeline.NewDiscovery(dir, eng.cfg.Discovery.Include, eng.cfg.Discovery.Ignore)
	if err != nil {
		return fmt.Errorf("invalid discovery patterns: %w", err)
	}

	outDir := opts.outDir
	if outDir == "" {
		outDir = eng.cfg.Output.Dir
	}
	writer, err := output.NewAtomicWriter(resolveUnder(eng.root, outDir), eng.cfg.Output.ValidateSchema)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	defer writer.Close()

	var (
		store *storage.Store
		runID string
	)
	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = eng.cfg.Storage.SQLitePath
	}
	if !opts.noDB && dbPath != "" {
		store, err = storage.Open(resolveUnder(eng.root, dbPath), eng.logger)
		if err != nil {
			return fmt.Errorf("failed to open catalog store: %w", err)
		}
		defer store.Close()

		runID, err = store.BeginRun(dir, pipeline.Version)
		if err != nil {
			return err
		}
	}

	p, err := eng.newPipeline(runID)
	if err != nil {
		return err
	}

	handle := func(rel string, c *catalog.Catalog) error {
		if _, err := writer.WriteCatalog(output.FileName(rel), c); err != nil {
			return err
		}
		if store != nil {
			if _, err := store.SaveCatalog(p.RunID(), c); err != nil {
				return err
			}
		}
		return nil
	}

	progress := NewCLIProgressReporter(stdout, g.quiet)
	stats, err := p.Scan(ctx, d, handle, progress)
	if ctx.Err() != nil {
		return nil
	}
	if stats == nil {
		return err
	}
	if !opts.watch {
		if err != nil {
			return fmt.Errorf("%d of %d artifacts failed: %w", stats.Failed, stats.Discovered, err)
		}
		return nil
	}

	if !g.quiet {
		fmt.Fprintf(stdout, "Watching %s for changes (Ctrl+C to stop)\n", dir)
	}
	return p.Watch(ctx, d, opts.debounce, handle, NewCLIProgressReporter(stderr, true))
}

// resolveUnder makes a configured relative path relative to the project root.
func resolveUnder(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
