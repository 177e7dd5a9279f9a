package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/classify"
)

func newClassifyCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <path>...",
		Short: "Print the kind of each artifact without extracting it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger := g.newLogger(cmd.ErrOrStderr(), cfg)
			return runClassify(classify.New(logger), args, cmd.OutOrStdout())
		},
	}
}

// runClassify prints "<kind>\t<path>" per argument. Missing paths are reported
// and classified unknown.
func runClassify(c *classify.Classifier, paths []string, out io.Writer) error {
	missing := 0
	for _, p := range paths {
		kind := catalog.KindUnknown
		if _, err := os.Stat(p); err != nil {
			missing++
		} else {
			kind = c.Classify(p)
		}
		fmt.Fprintf(out, "%s\t%s\n", kind, p)
	}
	if missing > 0 {
		return fmt.Errorf("%d path(s) could not be read", missing)
	}
	return nil
}
