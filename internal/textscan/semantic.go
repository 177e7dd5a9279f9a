package textscan

import (
	"regexp"
	"strings"
)

// SemanticType is the language-neutral parameter/return type vocabulary.
type SemanticType string

const (
	TypeString  SemanticType = "string"
	TypeInteger SemanticType = "integer"
	TypeNumber  SemanticType = "number"
	TypeBoolean SemanticType = "boolean"
	TypeArray   SemanticType = "array"
	TypeObject  SemanticType = "object"
	TypeNull    SemanticType = "null"
	TypeAny     SemanticType = "any"
)

// AllSemanticTypes lists the vocabulary in a stable order.
func AllSemanticTypes() []SemanticType {
	return []SemanticType{TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeNull, TypeAny}
}

var (
	identRe   = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	sizedIntR = regexp.MustCompile(`^u?int(8|16|32|64|128|ptr)?(_t)?$`)
)

var (
	arrayWords = set("array", "list", "vector", "sequence", "set", "tuple", "collection",
		"ienumerable", "enumerable", "slice", "safearray", "deque", "arraylist")
	pointerWords = set("handle", "hwnd", "hmodule", "hinstance", "hkey", "hdc", "pvoid",
		"lpvoid", "intptr", "uintptr", "intptr_t", "uintptr_t", "ptr")
	boolWords   = set("bool", "boolean", "_bool", "bit", "variant_bool", "logical", "switchparameter", "switch")
	numberWords = set("float", "double", "decimal", "numeric", "real", "money", "smallmoney",
		"single", "number", "float32", "float64", "currency", "float4", "float8")
	intWords = set("int", "integer", "long", "short", "byte", "sbyte", "dword", "word", "qword",
		"size_t", "ssize_t", "bigint", "smallint", "tinyint", "mediumint", "serial", "bigserial",
		"unsigned", "signed", "ulong", "ushort", "uint", "hresult", "lresult", "wparam", "lparam",
		"long64", "ulong64", "ulonglong", "longlong", "dword32", "dword64", "octet")
	stringWords = set("string", "str", "char", "wchar", "wchar_t", "tchar", "text", "ntext",
		"varchar", "nvarchar", "nchar", "varchar2", "nvarchar2", "clob", "nclob", "bstr",
		"lpstr", "lpcstr", "lpwstr", "lpcwstr", "lptstr", "lpctstr", "uuid", "guid", "date",
		"datetime", "datetime2", "datetimeoffset", "timestamp", "time", "xml", "uri", "url",
		"character", "wstring", "citext", "interval")
	objectWords = set("object", "dict", "dictionary", "map", "hashmap", "hash", "struct",
		"record", "json", "jsonb", "variant", "hashtable", "pscustomobject", "idispatch",
		"iunknown", "mapping", "any_object", "anytype", "complextype")
	anyWords  = set("any", "unknown", "mixed", "dynamic", "var")
	nullWords = set("void", "null", "none", "nil", "undefined", "never")
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// SemanticTypeOf maps native type text onto the semantic vocabulary by keyword containment.
// Pointer and handle types map to string; unrecognized text maps to string.
// Empty text carries no information and maps to any.
func SemanticTypeOf(text string) SemanticType {
	t := strings.TrimSpace(text)
	if t == "" {
		return TypeAny
	}
	lower := strings.ToLower(t)
	words := identRe.FindAllString(lower, -1)

	if strings.Contains(lower, "[]") || anyIn(words, arrayWords) {
		return TypeArray
	}
	if strings.ContainsAny(lower, "*&") || anyIn(words, pointerWords) || hasPointerPrefix(words) {
		return TypeString
	}
	if len(words) > 0 && allIn(words, nullWords) {
		return TypeNull
	}
	switch {
	case anyIn(words, objectWords):
		return TypeObject
	case anyIn(words, boolWords):
		return TypeBoolean
	case anyIn(words, numberWords):
		return TypeNumber
	case anyIn(words, intWords) || anyMatch(words, sizedIntR):
		return TypeInteger
	case anyIn(words, stringWords):
		return TypeString
	case anyIn(words, anyWords):
		return TypeAny
	}
	return TypeString
}

// hasPointerPrefix catches Win32 LP* typedefs such as LPDWORD or LPHANDLE
// that are not in the string vocabulary.
func hasPointerPrefix(words []string) bool {
	for _, w := range words {
		if stringWords[w] {
			continue
		}
		if strings.HasPrefix(w, "lp") && len(w) > 3 {
			return true
		}
	}
	return false
}

func anyIn(words []string, m map[string]bool) bool {
	for _, w := range words {
		if m[w] {
			return true
		}
	}
	return false
}

func allIn(words []string, m map[string]bool) bool {
	for _, w := range words {
		if !m[w] {
			return false
		}
	}
	return true
}

func anyMatch(words []string, re *regexp.Regexp) bool {
	for _, w := range words {
		if re.MatchString(w) {
			return true
		}
	}
	return false
}
