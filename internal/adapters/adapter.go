// Package adapters turns classified artifacts into canonical invocables.
//
// Each Adapter handles one family of file kinds. Extract never fails on
// malformed content: it logs a warning and returns what it could recover.
// Only hard I/O errors on the artifact path itself are returned.
package adapters

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/hosts"
)

// Adapter extracts invocables from artifacts of the kinds it claims.
type Adapter interface {
	Name() string
	Kinds() []catalog.FileKind
	Policy() catalog.DedupPolicy
	Extract(ctx context.Context, path string) ([]catalog.Invocable, error)
}

// Deps carries what every adapter may need. Hosts fields may be nil; a nil
// capability behaves like an unavailable one.
type Deps struct {
	Logger  *log.Logger
	Hosts   hosts.Set
	Options Options
}

func (d Deps) logger() *log.Logger {
	if d.Logger == nil {
		return log.New(io.Discard)
	}
	return d.Logger
}

// Registry maps file kinds to the adapter that handles them.
type Registry struct {
	adapters []Adapter
	byKind   map[catalog.FileKind]Adapter
}

// NewRegistry builds the default adapter set.
func NewRegistry(deps Deps) (*Registry, error) {
	opts := deps.Options.withDefaults()
	deps.Options = opts

	names, err := compilePatterns(opts.NamePatterns)
	if err != nil {
		return nil, fmt.Errorf("confidence.name_patterns: %w", err)
	}
	internal, err := compilePatterns(opts.InternalSymbolPatterns)
	if err != nil {
		return nil, fmt.Errorf("symbols.internal_patterns: %w", err)
	}

	exports := NewExportsAdapter(deps, names)
	typelib := NewTypeLibAdapter(deps)

	return NewRegistryOf(
		exports,
		NewCOMServerAdapter(typelib, exports, deps.logger()),
		typelib,
		NewManagedAdapter(deps),
		NewCLIHelpAdapter(deps),
		NewSymbolsAdapter(deps, internal, names),
		NewPythonAdapter(deps),
		NewJavaScriptAdapter(deps),
		NewTypeScriptAdapter(deps),
		NewRubyAdapter(deps),
		NewPHPAdapter(deps),
		NewShellAdapter(deps),
		NewPowerShellAdapter(deps),
		NewBatchAdapter(deps),
		NewVBScriptAdapter(deps),
		NewSQLAdapter(deps),
		NewOpenAPIAdapter(deps),
		NewJSONRPCAdapter(deps),
		NewWSDLAdapter(deps),
		NewIDLAdapter(deps),
		NewJNDIAdapter(deps),
	)
}

// NewRegistryOf registers the given adapters. Two adapters claiming the same
// kind is an error.
func NewRegistryOf(adapters ...Adapter) (*Registry, error) {
	r := &Registry{byKind: make(map[catalog.FileKind]Adapter)}
	for _, a := range adapters {
		for _, k := range a.Kinds() {
			if prev, ok := r.byKind[k]; ok {
				return nil, fmt.Errorf("kind %s claimed by both %s and %s", k, prev.Name(), a.Name())
			}
			r.byKind[k] = a
		}
		r.adapters = append(r.adapters, a)
	}
	return r, nil
}

// For returns the adapter handling kind.
func (r *Registry) For(kind catalog.FileKind) (Adapter, bool) {
	a, ok := r.byKind[kind]
	return a, ok
}

// Adapters returns the registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// Kinds returns every kind with an adapter, in declaration order.
func (r *Registry) Kinds() []catalog.FileKind {
	var out []catalog.FileKind
	for _, k := range catalog.AllKinds() {
		if _, ok := r.byKind[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Names returns the adapter names sorted alphabetically.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Name())
	}
	sort.Strings(out)
	return out
}
