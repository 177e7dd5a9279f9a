// Package classify maps an artifact path to its FileKind from extension, content
// sniffing, PE header inspection and shebang lines. Classification never fails:
// anything unrecognized is KindUnknown.
package classify

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-enry/go-enry/v2"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/pefile"
)

// sniffSize is how much of a structured text file is inspected.
const sniffSize = 8 * 1024

var extensionKinds = map[string]catalog.FileKind{
	".py":   catalog.KindPythonScript,
	".pyw":  catalog.KindPythonScript,
	".js":   catalog.KindJavaScript,
	".mjs":  catalog.KindJavaScript,
	".cjs":  catalog.KindJavaScript,
	".ts":   catalog.KindTypeScript,
	".mts":  catalog.KindTypeScript,
	".cts":  catalog.KindTypeScript,
	".ps1":  catalog.KindPowerShellScript,
	".psm1": catalog.KindPowerShellScript,
	".bat":  catalog.KindBatchScript,
	".cmd":  catalog.KindBatchScript,
	".vbs":  catalog.KindVBScript,
	".sh":   catalog.KindShellScript,
	".bash": catalog.KindShellScript,
	".zsh":  catalog.KindShellScript,
	".ksh":  catalog.KindShellScript,
	".rb":   catalog.KindRubyScript,
	".php":  catalog.KindPHPScript,
	".sql":  catalog.KindSQLSource,
	".pdb":  catalog.KindDebugSymbols,
	".tlb":  catalog.KindTypeLibrary,
	".olb":  catalog.KindTypeLibrary,
	".idl":  catalog.KindCORBAIDL,
	".wsdl": catalog.KindWSDL,
}

// structuredDefaults are the kinds assumed when sniffing a structured text file finds nothing.
var structuredDefaults = map[string]catalog.FileKind{
	".json":       catalog.KindOpenAPI,
	".yaml":       catalog.KindOpenAPI,
	".yml":        catalog.KindOpenAPI,
	".xml":        catalog.KindWSDL,
	".properties": catalog.KindJNDIConfig,
}

var shebangKinds = map[string]catalog.FileKind{
	"Python":     catalog.KindPythonScript,
	"JavaScript": catalog.KindJavaScript,
	"TypeScript": catalog.KindTypeScript,
	"Shell":      catalog.KindShellScript,
	"Ruby":       catalog.KindRubyScript,
	"PHP":        catalog.KindPHPScript,
	"PowerShell": catalog.KindPowerShellScript,
}

var comExports = []string{"DllGetClassObject", "DllRegisterServer"}

// Classifier classifies artifacts and logs how each decision was reached.
type Classifier struct {
	logger *log.Logger
}

// New creates a classifier. A nil logger discards diagnostics.
func New(logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Classifier{logger: logger}
}

// Classify is shorthand for a silent classifier.
func Classify(path string) catalog.FileKind {
	return New(nil).Classify(path)
}

// Classify returns the kind of the artifact at path.
func (c *Classifier) Classify(path string) catalog.FileKind {
	ext := strings.ToLower(filepath.Ext(path))

	if kind, ok := extensionKinds[ext]; ok {
		c.logger.Debug("classified by extension", "path", path, "kind", kind)
		return kind
	}

	if def, ok := structuredDefaults[ext]; ok {
		head, err := readHead(path, sniffSize)
		if err != nil {
			c.logger.Debug("cannot read for sniffing", "path", path, "err", err)
			return catalog.KindUnknown
		}
		kind := SniffStructured(ext, head)
		if kind == catalog.KindUnknown {
			kind = def
		}
		c.logger.Debug("classified by content sniff", "path", path, "kind", kind)
		return kind
	}

	f, err := os.Open(path)
	if err != nil {
		c.logger.Debug("cannot open for inspection", "path", path, "err", err)
		return catalog.KindUnknown
	}
	defer f.Close()

	if pefile.HasSignature(f) {
		kind := c.inspectPE(f, path)
		c.logger.Debug("classified by PE header", "path", path, "kind", kind)
		return kind
	}

	head := make([]byte, 256)
	n, _ := io.ReadFull(f, head)
	if kind := ShebangKind(head[:n]); kind != catalog.KindUnknown {
		c.logger.Debug("classified by shebang", "path", path, "kind", kind)
		return kind
	}
	return catalog.KindUnknown
}

func (c *Classifier) inspectPE(r io.ReaderAt, path string) catalog.FileKind {
	img, err := pefile.Parse(r)
	if err != nil {
		c.logger.Warn("malformed PE image", "path", path, "err", err)
		return catalog.KindUnknown
	}
	return KindOfImage(img)
}

// KindOfImage maps parsed PE facts to a kind.
func KindOfImage(img *pefile.Image) catalog.FileKind {
	switch {
	case img.IsManaged:
		return catalog.KindManagedAssembly
	case !img.IsDLL:
		return catalog.KindNativeExecutable
	case img.ImportsAny("ole32.dll", "oleaut32.dll") && img.ExportsAny(comExports...):
		return catalog.KindCOMServer
	default:
		return catalog.KindNativeModule
	}
}

// ShebangKind maps a "#!" first line to a script kind using enry's interpreter table.
func ShebangKind(head []byte) catalog.FileKind {
	if !bytes.HasPrefix(head, []byte("#!")) {
		return catalog.KindUnknown
	}
	lang, _ := enry.GetLanguageByShebang(head)
	if kind, ok := shebangKinds[lang]; ok {
		return kind
	}
	return catalog.KindUnknown
}

// SniffStructured inspects the head of a .json/.yaml/.yml/.xml/.properties file.
// It returns KindUnknown when nothing decisive was found.
func SniffStructured(ext string, head []byte) catalog.FileKind {
	text := string(head)
	lower := strings.ToLower(text)

	if hasKey(text, "openapi") || hasKey(text, "swagger") {
		return catalog.KindOpenAPI
	}
	if hasKey(text, "openrpc") || hasKey(text, "jsonrpc") || hasKey(text, "methods") {
		return catalog.KindJSONRPC
	}
	for _, marker := range []string{"jndi-name", "resource-ref", "res-ref-name", "ejb-ref", "resource-env-ref", "java.naming.", "<resource ", "env-entry"} {
		if strings.Contains(lower, marker) {
			return catalog.KindJNDIConfig
		}
	}
	if strings.Contains(text, "http://schemas.xmlsoap.org/wsdl/") || strings.Contains(text, "http://www.w3.org/ns/wsdl") {
		return catalog.KindWSDL
	}
	return catalog.KindUnknown
}

// hasKey reports whether key appears as a JSON or YAML mapping key.
func hasKey(text, key string) bool {
	if strings.Contains(text, `"`+key+`"`) {
		// JSON: "key" followed by a colon
		idx := strings.Index(text, `"`+key+`"`)
		rest := strings.TrimLeft(text[idx+len(key)+2:], " \t\r\n")
		if strings.HasPrefix(rest, ":") {
			return true
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, key+":") || strings.HasPrefix(line, "'"+key+"':") {
			return true
		}
	}
	return false
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}
