package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/callmap/internal/adapters"
	"github.com/mvp-joe/callmap/internal/catalog"
)

func newKindsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the artifact kinds and the adapter handling each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := g.newEngine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer eng.Close()
			return printKinds(eng.registry, cmd.OutOrStdout())
		},
	}
}

func printKinds(r *adapters.Registry, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tADAPTER\tDEDUP")
	for _, k := range catalog.AllKinds() {
		a, ok := r.For(k)
		if !ok {
			fmt.Fprintf(tw, "%s\t-\t-\n", k)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k, a.Name(), a.Policy())
	}
	return tw.Flush()
}
