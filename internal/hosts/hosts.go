// Package hosts defines the external capabilities the extraction adapters depend on
// (PE reading, managed reflection, type-library description, symbol resolution,
// signature verification, demangling and help-text capture) together with their
// default implementations.
//
// Every capability is a synchronous interface. Adapters do not care whether an
// implementation shells out to a helper process, reads the file directly or is a
// test double. Unavailable or timed-out hosts return ErrHostUnavailable or
// ErrHostTimeout and adapters treat either as absence of evidence.
package hosts

import (
	"context"
	"errors"

	"github.com/mvp-joe/callmap/internal/pefile"
)

var (
	// ErrHostUnavailable means the capability is not configured, not installed or failed.
	ErrHostUnavailable = errors.New("host unavailable")
	// ErrHostTimeout means the capability did not answer within the configured timeout.
	ErrHostTimeout = errors.New("host timed out")
	// ErrNotPE means the input is not a Portable Executable image.
	ErrNotPE = pefile.ErrNotPE
)

// IsDegraded reports whether err means "no evidence" rather than a hard failure.
func IsDegraded(err error) bool {
	return errors.Is(err, ErrHostUnavailable) || errors.Is(err, ErrHostTimeout) || errors.Is(err, ErrNotPE)
}

// PEReader reads the export table and header facts of a PE image.
type PEReader interface {
	Read(path string) (*pefile.Image, error)
}

// ReflectionHost enumerates the public surface of a managed assembly.
type ReflectionHost interface {
	Reflect(ctx context.Context, path string) (*Assembly, error)
}

// TypeLibHost describes the interfaces of a COM type library.
type TypeLibHost interface {
	Describe(ctx context.Context, path string) (*TypeLibrary, error)
}

// SymbolResolver lists the symbols recorded in a debug symbol file.
type SymbolResolver interface {
	Symbols(ctx context.Context, path string) ([]Symbol, error)
}

// SignatureVerifier checks an artifact's code signature.
type SignatureVerifier interface {
	Verify(ctx context.Context, path string) (Signature, error)
}

// Demangler turns a decorated C++ name into its readable form.
type Demangler interface {
	Demangle(name string) (string, bool)
}

// HelpRunner captures an executable's help output.
type HelpRunner interface {
	Help(ctx context.Context, path string) (string, error)
}

// Assembly is the reflection view of a managed assembly.
type Assembly struct {
	Name  string        `json:"name"`
	Types []ManagedType `json:"types"`
}

// ManagedType is one public type.
type ManagedType struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Methods   []ManagedMethod `json:"methods"`
}

// FullName is Namespace.Name, or Name when the namespace is empty.
func (t ManagedType) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// ManagedMethod is one public method.
type ManagedMethod struct {
	Name       string         `json:"name"`
	ReturnType string         `json:"return_type"`
	IsStatic   bool           `json:"is_static"`
	Parameters []ManagedParam `json:"parameters"`
}

// ManagedParam is one method parameter.
type ManagedParam struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	IsOptional bool   `json:"is_optional"`
	IsOut      bool   `json:"is_out"`
}

// TypeLibrary is the description of a COM type library.
type TypeLibrary struct {
	Name       string         `json:"name"`
	GUID       string         `json:"guid"`
	Version    string         `json:"version"`
	Doc        string         `json:"doc"`
	CoClasses  []CoClass      `json:"coclasses"`
	Interfaces []ComInterface `json:"interfaces"`
}

// CoClass is a creatable class and the interfaces it implements.
type CoClass struct {
	Name       string   `json:"name"`
	CLSID      string   `json:"clsid"`
	ProgID     string   `json:"prog_id"`
	Interfaces []string `json:"interfaces"`
}

// ComInterface is a COM interface or dispinterface.
type ComInterface struct {
	Name     string      `json:"name"`
	IID      string      `json:"iid"`
	Doc      string      `json:"doc"`
	Dispatch bool        `json:"dispatch"`
	Methods  []ComMethod `json:"methods"`
}

// ComMethod is one member of a COM interface.
type ComMethod struct {
	Name       string     `json:"name"`
	DispID     int32      `json:"dispid"`
	InvokeKind string     `json:"invoke_kind"`
	ReturnType string     `json:"return_type"`
	Doc        string     `json:"doc"`
	Params     []ComParam `json:"params"`
}

// ComParam is one member parameter; Flags holds IDL attributes such as in, out, retval, optional.
type ComParam struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Flags []string `json:"flags"`
}

// HasFlag reports whether the parameter carries the named IDL attribute.
func (p ComParam) HasFlag(flag string) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Symbol is one entry of a debug symbol file.
type Symbol struct {
	Name        string `json:"name"`
	Undecorated string `json:"undecorated"`
	Kind        string `json:"kind"`
	Address     uint64 `json:"address"`
	Size        uint64 `json:"size"`
	Module      string `json:"module"`
}

// Signature is the outcome of a code-signature check.
type Signature struct {
	Signed    bool   `json:"signed"`
	Publisher string `json:"publisher"`
}

// Set bundles the capabilities handed to the adapters.
type Set struct {
	PE         PEReader
	Reflection ReflectionHost
	TypeLib    TypeLibHost
	Symbols    SymbolResolver
	Signature  SignatureVerifier
	Demangler  Demangler
	Help       HelpRunner
}
