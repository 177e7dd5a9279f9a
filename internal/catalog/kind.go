// Package catalog defines the canonical invocable record, its execution metadata
// and the per-artifact catalog assembled from an adapter's output.
package catalog

import "fmt"

// FileKind is the closed classification tag that selects an extraction adapter.
type FileKind string

const (
	KindNativeModule     FileKind = "native_module"
	KindNativeExecutable FileKind = "native_executable"
	KindManagedAssembly  FileKind = "managed_assembly"
	KindCOMServer        FileKind = "com_server"
	KindTypeLibrary      FileKind = "type_library"
	KindDebugSymbols     FileKind = "debug_symbols"
	KindPythonScript     FileKind = "python_script"
	KindJavaScript       FileKind = "javascript"
	KindTypeScript       FileKind = "typescript"
	KindPowerShellScript FileKind = "powershell_script"
	KindBatchScript      FileKind = "batch_script"
	KindVBScript         FileKind = "vbscript"
	KindShellScript      FileKind = "shell_script"
	KindRubyScript       FileKind = "ruby_script"
	KindPHPScript        FileKind = "php_script"
	KindSQLSource        FileKind = "sql_source"
	KindOpenAPI          FileKind = "openapi"
	KindJSONRPC          FileKind = "jsonrpc"
	KindWSDL             FileKind = "wsdl"
	KindCORBAIDL         FileKind = "corba_idl"
	KindJNDIConfig       FileKind = "jndi_config"
	KindUnknown          FileKind = "unknown"
)

var allKinds = []FileKind{
	KindNativeModule, KindNativeExecutable, KindManagedAssembly, KindCOMServer,
	KindTypeLibrary, KindDebugSymbols, KindPythonScript, KindJavaScript,
	KindTypeScript, KindPowerShellScript, KindBatchScript, KindVBScript,
	KindShellScript, KindRubyScript, KindPHPScript, KindSQLSource,
	KindOpenAPI, KindJSONRPC, KindWSDL, KindCORBAIDL, KindJNDIConfig, KindUnknown,
}

// AllKinds lists every FileKind in declaration order.
func AllKinds() []FileKind {
	out := make([]FileKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k FileKind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts a string to a FileKind.
func ParseKind(s string) (FileKind, error) {
	k := FileKind(s)
	if !k.Valid() {
		return KindUnknown, fmt.Errorf("unknown file kind %q", s)
	}
	return k, nil
}

// IsScript reports whether k is one of the interpreted script kinds.
func (k FileKind) IsScript() bool {
	switch k {
	case KindPythonScript, KindJavaScript, KindTypeScript, KindPowerShellScript,
		KindBatchScript, KindVBScript, KindShellScript, KindRubyScript, KindPHPScript:
		return true
	}
	return false
}
