// Package confidence derives the confidence tier of an invocable from the evidence
// an adapter established about it.
package confidence

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is an ordered confidence label: Low < Medium < High < Guaranteed.
type Tier int

const (
	Low Tier = iota
	Medium
	High
	Guaranteed
)

var tierNames = [...]string{"low", "medium", "high", "guaranteed"}

// AllTiers lists tiers from lowest to highest.
func AllTiers() []Tier {
	return []Tier{Low, Medium, High, Guaranteed}
}

// Rank returns the tier's position in the ordering.
func (t Tier) Rank() int { return int(t) }

func (t Tier) String() string {
	if t < Low || t > Guaranteed {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return Low, fmt.Errorf("unknown confidence tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Trust holds signals about the artifact as a whole rather than one callable.
type Trust struct {
	Signed         bool
	Publisher      string
	KnownPublisher bool
	SystemArtifact bool
}

// Factors is the evidence an adapter established for one invocable.
// Documentation, Parameters and ReturnType name their evidence source
// (e.g. "header prototype math.h") and are empty when not established.
type Factors struct {
	Documentation string
	Parameters    string
	ReturnType    string
	Trust         Trust
	// NamePattern names the heuristic a symbol name matched, if any.
	NamePattern string
}

// Record is a tier plus the facts that justified it.
type Record struct {
	Tier      Tier     `json:"tier"`
	Rationale []string `json:"rationale"`
}

// Derive maps factors to a confidence record. It is pure and monotonic: adding
// evidence never lowers the tier.
func Derive(f Factors) Record {
	doc := f.Documentation != ""
	params := f.Parameters != ""
	ret := f.ReturnType != ""
	trusted := (f.Trust.Signed && f.Trust.KnownPublisher) || f.Trust.SystemArtifact

	var tier Tier
	switch {
	case doc && params && ret:
		tier = Guaranteed
	case doc && (params || ret), params && ret:
		tier = High
	case doc || params || ret, trusted:
		tier = Medium
	case f.NamePattern != "":
		tier = Medium
	default:
		tier = Low
	}

	var rationale []string
	if doc {
		rationale = append(rationale, "documentation: "+f.Documentation)
	}
	if params {
		rationale = append(rationale, "parameters: "+f.Parameters)
	}
	if ret {
		rationale = append(rationale, "return type: "+f.ReturnType)
	}
	if f.Trust.Signed {
		if f.Trust.Publisher != "" {
			rationale = append(rationale, "signed by "+f.Trust.Publisher)
		} else {
			rationale = append(rationale, "signed")
		}
		if f.Trust.KnownPublisher {
			rationale = append(rationale, "known publisher")
		}
	}
	if f.Trust.SystemArtifact {
		rationale = append(rationale, "system artifact")
	}
	if f.NamePattern != "" {
		rationale = append(rationale, "name pattern: "+f.NamePattern)
	}
	if rationale == nil {
		rationale = []string{}
	}
	return Record{Tier: tier, Rationale: rationale}
}

// String renders the record as "tier (reason; reason)".
func (r Record) String() string {
	if len(r.Rationale) == 0 {
		return r.Tier.String()
	}
	return r.Tier.String() + " (" + strings.Join(r.Rationale, "; ") + ")"
}

var _ json.Marshaler = Record{}

// MarshalJSON keeps rationale an array even when empty.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.Rationale == nil {
		r.Rationale = []string{}
	}
	return json.Marshal(plain(r))
}
