package hosts

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// ItaniumDemangler demangles Itanium C++ ABI names (_Z...) and recovers the
// qualified name of MSVC-decorated names (?name@scope@@...). Parameter types of
// MSVC names are not decoded; callers get the undecorated name only.
type ItaniumDemangler struct{}

func (ItaniumDemangler) Demangle(name string) (string, bool) {
	switch {
	case strings.HasPrefix(name, "_Z") || strings.HasPrefix(name, "__Z"):
		// Mach-O adds an extra leading underscore
		if strings.HasPrefix(name, "__Z") {
			name = name[1:]
		}
		out, err := demangle.ToString(name, demangle.NoClones)
		if err != nil {
			return "", false
		}
		return out, true
	case strings.HasPrefix(name, "?") && !strings.HasPrefix(name, "??"):
		return undecorateMSVCName(name)
	}
	return "", false
}

// undecorateMSVCName turns ?Name@Inner@Outer@@... into Outer::Inner::Name.
func undecorateMSVCName(name string) (string, bool) {
	body := name[1:]
	end := strings.Index(body, "@@")
	if end <= 0 {
		return "", false
	}
	parts := strings.Split(body[:end], "@")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, "?$") {
			return "", false
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::"), true
}
