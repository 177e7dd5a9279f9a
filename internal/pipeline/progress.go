package pipeline

import (
	"time"

	"github.com/mvp-joe/callmap/internal/catalog"
)

// ProgressReporter provides callbacks for reporting batch progress.
// Implementations can display progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnDiscoveryStart is called when artifact discovery begins.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called when discovery finishes.
	OnDiscoveryComplete(artifacts int)

	// OnProcessingStart is called before the first artifact is processed.
	OnProcessingStart(total int)

	// OnArtifactProcessed is called after each cataloged artifact.
	OnArtifactProcessed(path string, kind catalog.FileKind, invocables int)

	// OnArtifactFailed is called when an artifact fails hard.
	OnArtifactFailed(path string, err error)

	// OnComplete is called when the batch finishes.
	OnComplete(stats *BatchStats)
}

// BatchStats summarizes a batch run.
type BatchStats struct {
	Discovered int
	Processed  int
	Failed     int
	Invocables int
	ByKind     map[catalog.FileKind]int
	Duration   time.Duration
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnDiscoveryStart()                                                      {}
func (n *NoOpProgressReporter) OnDiscoveryComplete(artifacts int)                                      {}
func (n *NoOpProgressReporter) OnProcessingStart(total int)                                            {}
func (n *NoOpProgressReporter) OnArtifactProcessed(path string, kind catalog.FileKind, invocables int) {}
func (n *NoOpProgressReporter) OnArtifactFailed(path string, err error)                                {}
func (n *NoOpProgressReporter) OnComplete(stats *BatchStats)                                           {}
