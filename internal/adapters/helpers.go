package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/hosts"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// readText reads the artifact. Errors are hard I/O failures and are returned
// to the caller unchanged apart from wrapping.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// statArtifact checks that a host-backed adapter's input is readable before
// handing it to a helper process.
func statArtifact(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return f.Close()
}

// finish derives the confidence record and fills a default signature.
func finish(inv catalog.Invocable, f confidence.Factors) catalog.Invocable {
	inv.Confidence = confidence.Derive(f)
	if inv.Signature == "" {
		inv.Signature = catalog.FormatSignature(inv.Name, inv.Parameters, inv.Return)
	}
	return inv
}

// evidence returns source when established, else "".
func evidence(established bool, source string) string {
	if established {
		return source
	}
	return ""
}

// hostFailure logs a host error at the level it deserves: unavailable or
// timed-out hosts are routine, anything else is a warning.
func hostFailure(logger *log.Logger, adapter, path string, err error) {
	if hosts.IsDegraded(err) {
		logger.Debug("host unavailable, no evidence", "adapter", adapter, "path", path, "err", err)
		return
	}
	logger.Warn("host failed", "adapter", adapter, "path", path, "err", err)
}

// artifactTrust evaluates signature and system-artifact signals once per artifact.
func artifactTrust(ctx context.Context, verifier hosts.SignatureVerifier, opts Options, logger *log.Logger, path string) confidence.Trust {
	t := confidence.Trust{SystemArtifact: opts.isSystemArtifact(path)}
	if verifier == nil {
		return t
	}
	sig, err := verifier.Verify(ctx, path)
	if err != nil {
		hostFailure(logger, "signature", path, err)
		return t
	}
	t.Signed = sig.Signed
	t.Publisher = sig.Publisher
	t.KnownPublisher = sig.Signed && opts.isKnownPublisher(sig.Publisher)
	return t
}

// untypedParam is a parameter whose declaration carries no type at all.
func untypedParam(name string, required bool) catalog.Parameter {
	return catalog.Parameter{Name: name, Type: textscan.TypeAny, Required: required}
}

// typedParam builds a parameter from a separately known name and native type.
func typedParam(name, native string, required bool) catalog.Parameter {
	return catalog.Parameter{
		Name:       name,
		Type:       textscan.SemanticTypeOf(native),
		NativeType: strings.TrimSpace(native),
		Required:   required,
	}
}

// scriptName is the file name without its extension.
func scriptName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isReadError reports whether err came from reading the artifact itself.
func isReadError(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

// joinDoc joins non-empty documentation fragments with a blank line.
func joinDoc(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// applyParamDocs copies per-parameter descriptions from a parsed doc comment and,
// for parameters without a declared type, the documented type. It reports
// whether every parameter ended up typed.
func applyParamDocs(params []catalog.Parameter, dc textscan.DocComment) bool {
	typed := true
	for i := range params {
		td, ok := dc.Params[params[i].Name]
		if ok {
			params[i].Description = td.Description
			if params[i].NativeType == "" && td.Type != "" {
				params[i].NativeType = td.Type
				params[i].Type = textscan.SemanticTypeOf(td.Type)
			}
		}
		if params[i].NativeType == "" {
			typed = false
		}
	}
	return typed
}
