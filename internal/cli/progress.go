package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/pipeline"
)

// CLIProgressReporter implements pipeline.ProgressReporter with a progress bar.
type CLIProgressReporter struct {
	out      io.Writer
	quiet    bool
	bar      *progressbar.ProgressBar
	failures []string
}

// NewCLIProgressReporter creates a reporter writing to out.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{out: out, quiet: quiet}
}

func (c *CLIProgressReporter) OnDiscoveryStart() {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.out, "Discovering artifacts...")
}

func (c *CLIProgressReporter) OnDiscoveryComplete(artifacts int) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "Found %s artifacts\n", formatNumber(artifacts))
}

func (c *CLIProgressReporter) OnProcessingStart(total int) {
	c.failures = nil
	if c.quiet || total == 0 {
		return
	}
	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Cataloging"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("artifacts/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnArtifactProcessed(path string, kind catalog.FileKind, invocables int) {
	if c.bar != nil {
		_ = c.bar.Add(1)
	}
}

func (c *CLIProgressReporter) OnArtifactFailed(path string, err error) {
	c.failures = append(c.failures, fmt.Sprintf("%s: %v", path, err))
	if c.bar != nil {
		_ = c.bar.Add(1)
	}
}

func (c *CLIProgressReporter) OnComplete(stats *pipeline.BatchStats) {
	if c.bar != nil {
		_ = c.bar.Finish()
		c.bar = nil
	}
	if c.quiet {
		return
	}

	fmt.Fprintf(c.out, "✓ Cataloged %s artifacts, %s invocables in %.1fs\n",
		formatNumber(stats.Processed), formatNumber(stats.Invocables), stats.Duration.Seconds())

	kinds := make([]string, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(c.out, "  %-20s %s\n", k+":", formatNumber(stats.ByKind[catalog.FileKind(k)]))
	}

	if len(c.failures) > 0 {
		fmt.Fprintf(c.out, "✗ %d failed:\n", len(c.failures))
		for _, f := range c.failures {
			fmt.Fprintf(c.out, "  %s\n", f)
		}
	}
}

// formatNumber adds thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, ch := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(ch))
	}
	return string(out)
}
