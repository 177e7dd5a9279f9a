package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

var (
	ErrEmptyName        = errors.New("invocable name is empty")
	ErrInvalidKind      = errors.New("invocable kind is not a declared file kind")
	ErrMissingExecution = errors.New("invocable has no execution metadata")
	ErrMissingRationale = errors.New("confidence above low requires a rationale")
)

// Parameter is one canonical parameter of an invocable.
type Parameter struct {
	Name        string                `json:"name"`
	Type        textscan.SemanticType `json:"type"`
	NativeType  string                `json:"native_type,omitempty"`
	Required    bool                  `json:"required"`
	Description string                `json:"description,omitempty"`
}

// ReturnType is the semantic and native return type of an invocable.
type ReturnType struct {
	Type   textscan.SemanticType `json:"type"`
	Native string                `json:"native,omitempty"`
}

// Origin locates the declaration an invocable was extracted from.
type Origin struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// Invocable is the canonical record for one discoverable callable unit.
// Adapters create it once and never mutate it afterwards.
type Invocable struct {
	Name          string
	Kind          FileKind
	Signature     string
	Parameters    []Parameter
	Return        *ReturnType
	Documentation string
	Confidence    confidence.Record
	Origin        Origin
	Execution     Execution
}

// Validate checks the record's structural invariants.
func (inv Invocable) Validate() error {
	var errs []error
	if strings.TrimSpace(inv.Name) == "" {
		errs = append(errs, ErrEmptyName)
	}
	if !inv.Kind.Valid() || inv.Kind == KindUnknown {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidKind, inv.Kind))
	}
	if inv.Execution == nil {
		errs = append(errs, ErrMissingExecution)
	}
	if inv.Confidence.Tier != confidence.Low && len(inv.Confidence.Rationale) == 0 {
		errs = append(errs, ErrMissingRationale)
	}
	return errors.Join(errs...)
}

// NewReturn builds a ReturnType from native type text.
func NewReturn(native string) *ReturnType {
	return &ReturnType{Type: textscan.SemanticTypeOf(native), Native: strings.TrimSpace(native)}
}

// NewParameter canonicalizes raw at position index into a required parameter.
func NewParameter(raw string, index int) Parameter {
	p := textscan.CanonicalizeParam(raw, index)
	return Parameter{
		Name:       p.Name,
		Type:       p.Type,
		NativeType: p.Native,
		Required:   !p.HasDefault && !p.Variadic,
	}
}

// FormatSignature renders "ret name(p1, p2)" from canonical parts.
func FormatSignature(name string, params []Parameter, ret *ReturnType) string {
	parts := make([]string, len(params))
	for i, p := range params {
		typ := p.NativeType
		if typ == "" {
			typ = string(p.Type)
		}
		parts[i] = strings.TrimSpace(typ + " " + p.Name)
	}
	sig := name + "(" + strings.Join(parts, ", ") + ")"
	if ret != nil {
		r := ret.Native
		if r == "" {
			r = string(ret.Type)
		}
		sig = r + " " + sig
	}
	return sig
}

type invocableJSON struct {
	Name        string           `json:"name"`
	Kind        FileKind         `json:"kind"`
	Confidence  confidence.Tier  `json:"confidence"`
	Rationale   []string         `json:"rationale"`
	Description *string          `json:"description"`
	Signature   string           `json:"signature"`
	ReturnType  *ReturnType      `json:"return_type"`
	Parameters  []Parameter      `json:"parameters"`
	Origin      Origin           `json:"origin"`
	Execution   *json.RawMessage `json:"execution"`
}

// MarshalJSON renders the document form: confidence and rationale are flattened,
// the execution object leads with its method and parameters is always an array.
func (inv Invocable) MarshalJSON() ([]byte, error) {
	out := invocableJSON{
		Name:       inv.Name,
		Kind:       inv.Kind,
		Confidence: inv.Confidence.Tier,
		Rationale:  inv.Confidence.Rationale,
		Signature:  inv.Signature,
		ReturnType: inv.Return,
		Parameters: inv.Parameters,
		Origin:     inv.Origin,
	}
	if out.Rationale == nil {
		out.Rationale = []string{}
	}
	if out.Parameters == nil {
		out.Parameters = []Parameter{}
	}
	if inv.Documentation != "" {
		doc := inv.Documentation
		out.Description = &doc
	}
	if inv.Execution != nil {
		raw, err := MarshalExecution(inv.Execution)
		if err != nil {
			return nil, fmt.Errorf("invocable %q: %w", inv.Name, err)
		}
		msg := json.RawMessage(raw)
		out.Execution = &msg
	}
	return json.Marshal(out)
}
