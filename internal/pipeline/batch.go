package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/mvp-joe/callmap/internal/catalog"
)

// Handler receives each successfully built catalog with the artifact path relative
// to the scan root. A handler error counts as a failure of that artifact.
type Handler func(rel string, c *catalog.Catalog) error

// Scan discovers artifacts under d's root and processes them as one batch.
func (p *Pipeline) Scan(ctx context.Context, d *Discovery, handle Handler, progress ProgressReporter) (*BatchStats, error) {
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}

	progress.OnDiscoveryStart()
	files, err := d.Discover()
	if err != nil {
		return nil, &ArtifactError{Path: d.Root(), Op: "discover", Err: err}
	}
	progress.OnDiscoveryComplete(len(files))
	p.logger.Info("discovered artifacts", "root", d.Root(), "count", len(files))

	return p.ProcessBatch(ctx, d, files, handle, progress)
}

// ProcessBatch processes files in order. A failing artifact is reported and
// skipped; the returned error joins every ArtifactError. Cancellation stops the
// batch and returns the context error.
func (p *Pipeline) ProcessBatch(ctx context.Context, d *Discovery, files []string, handle Handler, progress ProgressReporter) (*BatchStats, error) {
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}

	start := time.Now()
	stats := &BatchStats{
		Discovered: len(files),
		ByKind:     map[catalog.FileKind]int{},
	}
	var failures []error

	progress.OnProcessingStart(len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		c, err := p.Process(ctx, path)
		if err == nil && handle != nil {
			if herr := handle(d.Rel(path), c); herr != nil {
				err = &ArtifactError{Path: path, Op: "write", Err: herr}
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				stats.Duration = time.Since(start)
				return stats, ctxErr
			}
			stats.Failed++
			failures = append(failures, err)
			p.logger.Warn("artifact failed", "path", path, "err", err)
			progress.OnArtifactFailed(path, err)
			continue
		}

		stats.Processed++
		stats.Invocables += c.Summary.Total
		stats.ByKind[c.Metadata.TargetKind]++
		progress.OnArtifactProcessed(path, c.Metadata.TargetKind, c.Summary.Total)
	}

	stats.Duration = time.Since(start)
	progress.OnComplete(stats)
	p.logger.Info("batch complete", "processed", stats.Processed, "failed", stats.Failed,
		"invocables", stats.Invocables, "duration", stats.Duration)

	return stats, errors.Join(failures...)
}
