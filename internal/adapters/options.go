package adapters

import (
	"strings"

	"github.com/gobwas/glob"
)

// Options tunes adapter behavior. Zero fields take the defaults below.
type Options struct {
	// HeaderSearchPaths are directories scanned for C headers in addition to
	// the artifact's own directory.
	HeaderSearchPaths []string

	KnownPublishers []string
	SystemPaths     []string
	SystemModules   []string

	// NamePatterns are globs for conventional API names (Get*, Create*, ...).
	NamePatterns []string

	// InternalSymbolPatterns are globs for compiler/runtime symbols to skip.
	InternalSymbolPatterns []string
}

var (
	DefaultKnownPublishers = []string{"Microsoft Corporation", "Microsoft Windows", "Oracle America, Inc.", "Apple Inc.", "Google LLC"}

	DefaultSystemPaths = []string{`C:\Windows\System32`, `C:\Windows\SysWOW64`, "/usr/lib", "/lib", "/System/Library"}

	DefaultSystemModules = []string{"kernel32.dll", "user32.dll", "gdi32.dll", "advapi32.dll", "ntdll.dll",
		"ole32.dll", "oleaut32.dll", "shell32.dll", "ws2_32.dll", "msvcrt.dll", "ucrtbase.dll", "comctl32.dll"}

	DefaultNamePatterns = []string{"Get*", "Set*", "Create*", "Open*", "Close*", "Read*", "Write*",
		"Init*", "Query*", "Register*", "Unregister*", "Dll*"}

	DefaultInternalSymbolPatterns = []string{"__*", "_RTC_*", "*@ILT*", "??_*", "*`*", "_guard_*", "$*"}
)

func (o Options) withDefaults() Options {
	if o.KnownPublishers == nil {
		o.KnownPublishers = DefaultKnownPublishers
	}
	if o.SystemPaths == nil {
		o.SystemPaths = DefaultSystemPaths
	}
	if o.SystemModules == nil {
		o.SystemModules = DefaultSystemModules
	}
	if o.NamePatterns == nil {
		o.NamePatterns = DefaultNamePatterns
	}
	if o.InternalSymbolPatterns == nil {
		o.InternalSymbolPatterns = DefaultInternalSymbolPatterns
	}
	return o
}

// patternSet is an ordered list of compiled globs; the first match names the pattern.
type patternSet []compiledPattern

type compiledPattern struct {
	source string
	g      glob.Glob
}

func compilePatterns(patterns []string) (patternSet, error) {
	out := make(patternSet, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, compiledPattern{source: p, g: g})
	}
	return out, nil
}

func mustCompilePatterns(patterns []string) patternSet {
	ps, err := compilePatterns(patterns)
	if err != nil {
		panic(err)
	}
	return ps
}

// match returns the first pattern matching name, or "".
func (ps patternSet) match(name string) string {
	for _, p := range ps {
		if p.g.Match(name) {
			return p.source
		}
	}
	return ""
}

// isSystemArtifact reports whether path lives under a system directory or
// names a well-known system module.
func (o Options) isSystemArtifact(path string) bool {
	norm := slashed(path)
	base := norm[strings.LastIndexByte(norm, '/')+1:]
	for _, m := range o.SystemModules {
		if strings.ToLower(m) == base {
			return true
		}
	}
	for _, dir := range o.SystemPaths {
		d := strings.TrimSuffix(slashed(dir), "/")
		if d != "" && strings.HasPrefix(norm, d+"/") {
			return true
		}
	}
	return false
}

// slashed lowercases p and normalizes both separator styles, so Windows paths
// compare the same on every host.
func slashed(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
}

func (o Options) isKnownPublisher(publisher string) bool {
	for _, p := range o.KnownPublishers {
		if strings.EqualFold(p, publisher) {
			return true
		}
	}
	return false
}
