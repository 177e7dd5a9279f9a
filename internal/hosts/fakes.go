package hosts

import (
	"context"
	"fmt"
	"sync"

	"github.com/mvp-joe/callmap/internal/pefile"
)

// The fakes below are in-memory capability implementations for tests. Each
// records how often it was called so tests can check the once-per-artifact rule.

// FakeReflectionHost returns a fixed assembly or error.
type FakeReflectionHost struct {
	Assembly *Assembly
	Err      error
	calls    counter
}

func (f *FakeReflectionHost) Reflect(_ context.Context, path string) (*Assembly, error) {
	f.calls.inc()
	return f.Assembly, f.Err
}

// Calls returns the number of Reflect calls.
func (f *FakeReflectionHost) Calls() int { return f.calls.get() }

// FakeTypeLibHost returns a fixed type library or error.
type FakeTypeLibHost struct {
	Library *TypeLibrary
	Err     error
	calls   counter
}

func (f *FakeTypeLibHost) Describe(_ context.Context, path string) (*TypeLibrary, error) {
	f.calls.inc()
	return f.Library, f.Err
}

// Calls returns the number of Describe calls.
func (f *FakeTypeLibHost) Calls() int { return f.calls.get() }

// FakeSymbolResolver returns fixed symbols or error.
type FakeSymbolResolver struct {
	Syms  []Symbol
	Err   error
	calls counter
}

func (f *FakeSymbolResolver) Symbols(_ context.Context, path string) ([]Symbol, error) {
	f.calls.inc()
	return f.Syms, f.Err
}

// Calls returns the number of Symbols calls.
func (f *FakeSymbolResolver) Calls() int { return f.calls.get() }

// FakeSignatureVerifier returns a fixed signature or error.
type FakeSignatureVerifier struct {
	Sig   Signature
	Err   error
	calls counter
}

func (f *FakeSignatureVerifier) Verify(_ context.Context, path string) (Signature, error) {
	f.calls.inc()
	return f.Sig, f.Err
}

// Calls returns the number of Verify calls.
func (f *FakeSignatureVerifier) Calls() int { return f.calls.get() }

// FakeHelpRunner returns fixed help text or error.
type FakeHelpRunner struct {
	Text  string
	Err   error
	calls counter
}

func (f *FakeHelpRunner) Help(_ context.Context, path string) (string, error) {
	f.calls.inc()
	return f.Text, f.Err
}

// Calls returns the number of Help calls.
func (f *FakeHelpRunner) Calls() int { return f.calls.get() }

// FakePEReader serves images from a map keyed by path.
type FakePEReader struct {
	Images map[string]*pefile.Image
}

func (f *FakePEReader) Read(path string) (*pefile.Image, error) {
	img, ok := f.Images[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotPE)
	}
	return img, nil
}

// Unavailable returns a Set whose subprocess-backed capabilities all report
// ErrHostUnavailable, with the real PE reader and demangler.
func Unavailable() Set {
	down := fmt.Errorf("test: %w", ErrHostUnavailable)
	return Set{
		PE:         FilePEReader{},
		Reflection: &FakeReflectionHost{Err: down},
		TypeLib:    &FakeTypeLibHost{Err: down},
		Symbols:    &FakeSymbolResolver{Err: down},
		Signature:  &FakeSignatureVerifier{Err: down},
		Demangler:  ItaniumDemangler{},
		Help:       &FakeHelpRunner{Err: down},
	}
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
