package catalog

import (
	"time"

	"github.com/mvp-joe/callmap/internal/confidence"
)

// DedupPolicy decides which record survives when an artifact yields several
// invocables with the same name.
type DedupPolicy int

const (
	// FirstSeenWins keeps the earliest record (prototype, symbol, script and descriptor sources).
	FirstSeenWins DedupPolicy = iota
	// LastSeenWins keeps the latest record (ordinal-bearing export tables).
	LastSeenWins
)

func (p DedupPolicy) String() string {
	if p == LastSeenWins {
		return "last-seen-wins"
	}
	return "first-seen-wins"
}

// Dedup collapses records sharing a name. The survivor takes the position of the
// name's first appearance.
func Dedup(in []Invocable, policy DedupPolicy) []Invocable {
	index := make(map[string]int, len(in))
	out := make([]Invocable, 0, len(in))
	for _, inv := range in {
		if i, seen := index[inv.Name]; seen {
			if policy == LastSeenWins {
				out[i] = inv
			}
			continue
		}
		index[inv.Name] = len(out)
		out = append(out, inv)
	}
	return out
}

// Metadata describes the artifact a catalog was produced from.
type Metadata struct {
	TargetPath      string    `json:"target_path"`
	TargetName      string    `json:"target_name"`
	TargetKind      FileKind  `json:"target_kind"`
	SizeBytes       int64     `json:"size_bytes"`
	Timestamp       time.Time `json:"timestamp"`
	PipelineVersion string    `json:"pipeline_version"`
	RunID           string    `json:"run_id"`
}

// Summary counts a catalog's invocables.
type Summary struct {
	Total        int                     `json:"total"`
	ByKind       map[FileKind]int        `json:"by_kind"`
	ByConfidence map[confidence.Tier]int `json:"by_confidence"`
}

// Catalog is the per-artifact result: metadata, ordered invocables and summary.
type Catalog struct {
	Metadata   Metadata    `json:"metadata"`
	Invocables []Invocable `json:"invocables"`
	Summary    Summary     `json:"summary"`
}

// Summarize counts invocables by kind and tier. Every tier is present, zero or not.
func Summarize(invs []Invocable) Summary {
	s := Summary{
		Total:        len(invs),
		ByKind:       map[FileKind]int{},
		ByConfidence: map[confidence.Tier]int{},
	}
	for _, t := range confidence.AllTiers() {
		s.ByConfidence[t] = 0
	}
	for _, inv := range invs {
		s.ByKind[inv.Kind]++
		s.ByConfidence[inv.Confidence.Tier]++
	}
	return s
}

// Build assembles a catalog from already-deduplicated invocables.
func Build(meta Metadata, invs []Invocable) *Catalog {
	if invs == nil {
		invs = []Invocable{}
	}
	return &Catalog{
		Metadata:   meta,
		Invocables: invs,
		Summary:    Summarize(invs),
	}
}
