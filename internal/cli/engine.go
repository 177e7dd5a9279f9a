package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/adapters"
	"github.com/mvp-joe/callmap/internal/classify"
	"github.com/mvp-joe/callmap/internal/config"
	"github.com/mvp-joe/callmap/internal/hosts"
	"github.com/mvp-joe/callmap/internal/pipeline"
)

// engine bundles everything a command needs to process artifacts.
type engine struct {
	root     string
	cfg      *config.Config
	logger   *log.Logger
	registry *adapters.Registry
	release  func()
}

// newEngine loads configuration and builds the hosts and adapter registry.
// Close must be called to release the host result cache.
func (o *globalOptions) newEngine(stderr io.Writer) (*engine, error) {
	root, cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := o.newLogger(stderr, cfg)

	set, release, err := hosts.NewSet(cfg.ToHostOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create hosts: %w", err)
	}

	registry, err := adapters.NewRegistry(adapters.Deps{
		Logger:  logger,
		Hosts:   set,
		Options: cfg.ToAdapterOptions(),
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	logger.Debug("engine ready", "root", root, "adapters", len(registry.Adapters()))
	return &engine{
		root:     root,
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		release:  release,
	}, nil
}

// newPipeline creates a pipeline stamping runID into its catalogs; an empty
// runID gets a fresh one.
func (e *engine) newPipeline(runID string) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Options{
		Classifier: classify.New(e.logger),
		Registry:   e.registry,
		Logger:     e.logger,
		RunID:      runID,
	})
}

func (e *engine) Close() {
	if e.release != nil {
		e.release()
	}
}
