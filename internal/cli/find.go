package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/storage"
)

func newFindCmd(g *globalOptions) *cobra.Command {
	var (
		minTier string
		dbPath  string
	)

	cmd := &cobra.Command{
		Use:   "find <name>",
		Short: "Look up stored invocables by name",
		Long: `Find searches every recorded scan in the SQLite store for invocables with
the given name.

Examples:
  callmap find double_it
  callmap find GetVersion --min-tier medium
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := confidence.ParseTier(minTier)
			if err != nil {
				return err
			}
			root, cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Storage.SQLitePath
			}
			if dbPath == "" {
				return errors.New("no catalog store configured (storage.sqlite_path)")
			}

			store, err := storage.Open(resolveUnder(root, dbPath), g.newLogger(cmd.ErrOrStderr(), cfg))
			if err != nil {
				return fmt.Errorf("failed to open catalog store: %w", err)
			}
			defer store.Close()

			return runFind(store, args[0], tier, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&minTier, "min-tier", confidence.Low.String(), "lowest confidence tier to show (low, medium, high, guaranteed)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite store path (overrides storage.sqlite_path)")
	return cmd
}

func runFind(store *storage.Store, name string, minTier confidence.Tier, out io.Writer) error {
	invs, err := store.FindByName(name, minTier)
	if err != nil {
		return err
	}
	if len(invs) == 0 {
		fmt.Fprintf(out, "No invocables named %q at or above %s\n", name, minTier)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tMETHOD\tSIGNATURE\tORIGIN")
	for _, inv := range invs {
		origin := inv.OriginPath
		if inv.OriginLine > 0 {
			origin = fmt.Sprintf("%s:%d", origin, inv.OriginLine)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inv.Tier, inv.Method, inv.Signature, origin)
	}
	return tw.Flush()
}
