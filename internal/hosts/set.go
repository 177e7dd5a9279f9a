package hosts

import (
	"time"

	"github.com/charmbracelet/log"
)

// Options configures the default host implementations.
type Options struct {
	Timeout           time.Duration
	AllowExecute      bool
	HelpFlag          string
	ReflectionCommand []string
	TypeLibCommand    []string
	SymbolsCommand    []string
	SignatureCommand  []string
	CacheSize         int
}

// NewSet builds the default capabilities: the on-disk PE reader, the Itanium
// demangler and command-backed hosts sharing one runner and result cache.
// The returned func releases the cache.
func NewSet(opts Options, logger *log.Logger) (Set, func(), error) {
	cache, err := NewResultCache(opts.CacheSize)
	if err != nil {
		return Set{}, nil, err
	}
	runner := NewRunner(opts.Timeout, cache, logger)

	set := Set{
		PE:         FilePEReader{},
		Reflection: NewCommandReflectionHost(runner, opts.ReflectionCommand),
		TypeLib:    NewCommandTypeLibHost(runner, opts.TypeLibCommand),
		Symbols:    NewCommandSymbolResolver(runner, opts.SymbolsCommand),
		Signature:  NewCommandSignatureVerifier(runner, opts.SignatureCommand),
		Demangler:  ItaniumDemangler{},
		Help:       NewExecHelpRunner(runner, opts.HelpFlag, opts.AllowExecute),
	}
	return set, cache.Close, nil
}
