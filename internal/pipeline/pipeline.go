// Package pipeline runs artifacts through classification, extraction and
// aggregation, one artifact at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mvp-joe/callmap/internal/adapters"
	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/classify"
)

// Version is stamped into every catalog's metadata.
const Version = "1.0.0"

// ErrNotRegularFile is returned for directories and device files.
var ErrNotRegularFile = errors.New("not a regular file")

// ArtifactError is a hard failure processing one artifact. Batch runs record it
// and move on to the next artifact.
type ArtifactError struct {
	Path string
	Op   string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Options configures a Pipeline. Registry is required.
type Options struct {
	Classifier *classify.Classifier
	Registry   *adapters.Registry
	Logger     *log.Logger
	// RunID tags every catalog from this pipeline; a random id is used when empty.
	RunID   string
	Version string
	Now     func() time.Time
}

// Pipeline turns artifact paths into catalogs.
type Pipeline struct {
	classifier *classify.Classifier
	registry   *adapters.Registry
	logger     *log.Logger
	runID      string
	version    string
	now        func() time.Time
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("pipeline: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.New(logger)
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	version := opts.Version
	if version == "" {
		version = Version
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		classifier: classifier,
		registry:   opts.Registry,
		logger:     logger,
		runID:      runID,
		version:    version,
		now:        now,
	}, nil
}

// RunID returns the id stamped into this pipeline's catalogs.
func (p *Pipeline) RunID() string { return p.runID }

// Classify returns the kind of the artifact at path.
func (p *Pipeline) Classify(path string) catalog.FileKind {
	return p.classifier.Classify(path)
}

// Process classifies the artifact, runs the matching adapter, deduplicates by the
// adapter's policy and assembles the catalog. Artifacts no adapter handles yield an
// empty catalog. Only hard I/O failures and cancellation are returned as errors.
func (p *Pipeline) Process(ctx context.Context, path string) (*catalog.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ArtifactError{Path: path, Op: "resolve", Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ArtifactError{Path: abs, Op: "stat", Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ArtifactError{Path: abs, Op: "stat", Err: ErrNotRegularFile}
	}

	start := p.now()
	kind := p.classifier.Classify(abs)

	var invs []catalog.Invocable
	if adapter, ok := p.registry.For(kind); ok {
		extracted, err := adapter.Extract(ctx, abs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &ArtifactError{Path: abs, Op: "extract", Err: err}
		}
		invs = catalog.Dedup(p.valid(adapter.Name(), abs, extracted), adapter.Policy())
		p.logger.Debug("extracted", "path", abs, "adapter", adapter.Name(), "kind", kind,
			"found", len(extracted), "kept", len(invs), "policy", adapter.Policy())
	} else {
		p.logger.Debug("no adapter for kind", "path", abs, "kind", kind)
	}

	meta := catalog.Metadata{
		TargetPath:      abs,
		TargetName:      filepath.Base(abs),
		TargetKind:      kind,
		SizeBytes:       info.Size(),
		Timestamp:       start.UTC(),
		PipelineVersion: p.version,
		RunID:           p.runID,
	}
	return catalog.Build(meta, invs), nil
}

// valid drops records an adapter produced without the required fields.
func (p *Pipeline) valid(adapter, path string, in []catalog.Invocable) []catalog.Invocable {
	out := in[:0:0]
	for _, inv := range in {
		if err := inv.Validate(); err != nil {
			p.logger.Warn("dropping invalid invocable", "path", path, "adapter", adapter, "name", inv.Name, "err", err)
			continue
		}
		out = append(out, inv)
	}
	return out
}
