package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/hosts"
	"github.com/mvp-joe/callmap/internal/pefile"
	"github.com/mvp-joe/callmap/internal/textscan"
)

var headerExtensions = map[string]bool{".h": true, ".hh": true, ".hpp": true, ".hxx": true}

// ExportsAdapter reads the export table of a native module and matches each
// export against C/C++ header prototypes.
type ExportsAdapter struct {
	logger   *log.Logger
	pe       hosts.PEReader
	verifier hosts.SignatureVerifier
	opts     Options
	names    patternSet
}

// NewExportsAdapter creates the export-table adapter. names are the compiled
// conventional-name patterns.
func NewExportsAdapter(deps Deps, names patternSet) *ExportsAdapter {
	pe := deps.Hosts.PE
	if pe == nil {
		pe = hosts.FilePEReader{}
	}
	return &ExportsAdapter{
		logger:   deps.logger(),
		pe:       pe,
		verifier: deps.Hosts.Signature,
		opts:     deps.Options.withDefaults(),
		names:    names,
	}
}

func (a *ExportsAdapter) Name() string { return "exports" }

func (a *ExportsAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindNativeModule}
}

// Policy is last-seen-wins: when an export table lists a name twice the later
// ordinal is the one the loader resolves.
func (a *ExportsAdapter) Policy() catalog.DedupPolicy { return catalog.LastSeenWins }

// Extract lists the module's exports.
//
// Process:
// 1. Read the export table through the PE reader
// 2. Load sibling and search-path headers in sorted path order
// 3. Evaluate artifact trust once
// 4. Build one invocable per export, enriched by its header prototype
func (a *ExportsAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	return a.extract(ctx, path, catalog.KindNativeModule)
}

// extract builds the records with kind as their source kind.
func (a *ExportsAdapter) extract(ctx context.Context, path string, kind catalog.FileKind) ([]catalog.Invocable, error) {
	img, err := a.pe.Read(path)
	if err != nil {
		if isReadError(err) {
			return nil, err
		}
		if errors.Is(err, hosts.ErrNotPE) {
			a.logger.Warn("not a PE image", "adapter", a.Name(), "path", path)
		} else {
			a.logger.Warn("failed to read export table", "adapter", a.Name(), "path", path, "err", err)
		}
		return nil, nil
	}
	if len(img.Exports) == 0 {
		a.logger.Debug("no exports", "path", path)
		return nil, nil
	}

	headers := a.loadHeaders(path)
	trust := artifactTrust(ctx, a.verifier, a.opts, a.logger, path)
	a.logger.Debug("exports", "path", path, "count", len(img.Exports), "headers", len(headers))

	out := make([]catalog.Invocable, 0, len(img.Exports))
	for _, e := range img.Exports {
		out = append(out, a.exportInvocable(path, kind, e, headers, trust))
	}
	return out, nil
}

func (a *ExportsAdapter) exportInvocable(path string, kind catalog.FileKind, e pefile.Export, headers []textscan.HeaderFile, trust confidence.Trust) catalog.Invocable {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("#%d", e.Ordinal)
	}
	exec := catalog.ModuleCall{
		ModulePath: path,
		Function:   name,
		Ordinal:    e.Ordinal,
		RVA:        e.RVA,
		Forwarder:  e.Forwarder,
	}
	inv := catalog.Invocable{
		Name:   name,
		Kind:   kind,
		Origin: catalog.Origin{Path: path},
	}
	factors := confidence.Factors{Trust: trust}

	var match *textscan.PrototypeMatch
	if e.Name != "" && e.Forwarder == "" {
		match, _ = textscan.FindPrototype(headers, e.Name)
	}
	if match != nil {
		source := "header prototype " + filepath.Base(match.File)
		inv.Parameters = prototypeParams(match.Params)
		if !isVoid(match.ReturnType) {
			inv.Return = catalog.NewReturn(match.ReturnType)
		}
		factors.Parameters = source
		factors.ReturnType = source

		if match.Doc != "" {
			dc := textscan.ParseDocComment(match.Doc)
			applyParamDocs(inv.Parameters, dc)
			inv.Documentation = dc.Summary
			if inv.Documentation == "" {
				inv.Documentation = match.Doc
			}
			factors.Documentation = "header comment " + filepath.Base(match.File)
		}
		inv.Signature = match.Prototype
		inv.Origin = catalog.Origin{Path: match.File, Line: match.Line}
		exec.CallingConvention = callingConvention(match.Prototype)
		exec.HeaderFile = match.File
	} else {
		inv.Signature = name
		factors.NamePattern = a.names.match(name)
	}

	inv.Execution = exec
	return finish(inv, factors)
}

// loadHeaders reads the C/C++ headers next to path and in the configured
// search paths. Unreadable headers are skipped.
func (a *ExportsAdapter) loadHeaders(path string) []textscan.HeaderFile {
	dirs := append([]string{filepath.Dir(path)}, a.opts.HeaderSearchPaths...)
	seen := make(map[string]bool)
	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			a.logger.Debug("header directory unreadable", "dir", dir, "err", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !headerExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
		}
	}
	sort.Strings(files)

	headers := make([]textscan.HeaderFile, 0, len(files))
	for _, p := range files {
		data, err := os.ReadFile(p)
		if err != nil {
			a.logger.Debug("header unreadable", "path", p, "err", err)
			continue
		}
		headers = append(headers, textscan.HeaderFile{Path: p, Text: string(data)})
	}
	return headers
}

// prototypeParams canonicalizes a raw C parameter list.
func prototypeParams(list string) []catalog.Parameter {
	raw := textscan.SplitParams(list)
	params := make([]catalog.Parameter, 0, len(raw))
	for i, r := range raw {
		params = append(params, catalog.NewParameter(r, i))
	}
	return params
}

func isVoid(ret string) bool {
	ret = strings.TrimSpace(ret)
	return ret == "" || ret == "void" || ret == "VOID"
}

var conventionNames = []struct{ token, name string }{
	{"__stdcall", "stdcall"},
	{"WINAPI", "stdcall"},
	{"APIENTRY", "stdcall"},
	{"CALLBACK", "stdcall"},
	{"PASCAL", "stdcall"},
	{"STDMETHODCALLTYPE", "stdcall"},
	{"NTAPI", "stdcall"},
	{"__cdecl", "cdecl"},
	{"__fastcall", "fastcall"},
	{"__thiscall", "thiscall"},
	{"__vectorcall", "vectorcall"},
}

// callingConvention names the convention spelled in a prototype, defaulting to cdecl.
func callingConvention(prototype string) string {
	fields := strings.FieldsFunc(prototype, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == '*' || r == '\t'
	})
	for _, f := range fields {
		for _, c := range conventionNames {
			if f == c.token {
				return c.name
			}
		}
	}
	return "cdecl"
}
