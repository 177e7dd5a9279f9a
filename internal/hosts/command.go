package hosts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mvp-joe/callmap/internal/pefile"
)

// FilePEReader reads PE images directly from disk.
type FilePEReader struct{}

// Read parses the image at path.
func (FilePEReader) Read(path string) (*pefile.Image, error) {
	return pefile.Open(path)
}

// CommandReflectionHost runs a helper that prints an Assembly as JSON.
type CommandReflectionHost struct {
	runner  *Runner
	command []string
}

// NewCommandReflectionHost creates a reflection host; an empty command is unavailable.
func NewCommandReflectionHost(runner *Runner, command []string) *CommandReflectionHost {
	return &CommandReflectionHost{runner: runner, command: command}
}

func (h *CommandReflectionHost) Reflect(ctx context.Context, path string) (*Assembly, error) {
	var asm Assembly
	if err := runJSON(ctx, h.runner, "reflection", h.command, path, &asm); err != nil {
		return nil, err
	}
	return &asm, nil
}

// CommandTypeLibHost runs a helper that prints a TypeLibrary as JSON.
type CommandTypeLibHost struct {
	runner  *Runner
	command []string
}

// NewCommandTypeLibHost creates a type-library host; an empty command is unavailable.
func NewCommandTypeLibHost(runner *Runner, command []string) *CommandTypeLibHost {
	return &CommandTypeLibHost{runner: runner, command: command}
}

func (h *CommandTypeLibHost) Describe(ctx context.Context, path string) (*TypeLibrary, error) {
	var lib TypeLibrary
	if err := runJSON(ctx, h.runner, "typelib", h.command, path, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// CommandSymbolResolver runs a helper that prints a JSON array of Symbols.
type CommandSymbolResolver struct {
	runner  *Runner
	command []string
}

// NewCommandSymbolResolver creates a symbol resolver; an empty command is unavailable.
func NewCommandSymbolResolver(runner *Runner, command []string) *CommandSymbolResolver {
	return &CommandSymbolResolver{runner: runner, command: command}
}

func (h *CommandSymbolResolver) Symbols(ctx context.Context, path string) ([]Symbol, error) {
	var syms []Symbol
	if err := runJSON(ctx, h.runner, "symbols", h.command, path, &syms); err != nil {
		return nil, err
	}
	return syms, nil
}

// CommandSignatureVerifier runs a helper that prints a Signature as JSON.
type CommandSignatureVerifier struct {
	runner  *Runner
	command []string
}

// NewCommandSignatureVerifier creates a signature verifier; an empty command is unavailable.
func NewCommandSignatureVerifier(runner *Runner, command []string) *CommandSignatureVerifier {
	return &CommandSignatureVerifier{runner: runner, command: command}
}

func (h *CommandSignatureVerifier) Verify(ctx context.Context, path string) (Signature, error) {
	var sig Signature
	if err := runJSON(ctx, h.runner, "signature", h.command, path, &sig); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// ExecHelpRunner runs the artifact itself with a help flag. It refuses unless
// execution of inspected binaries was explicitly allowed.
type ExecHelpRunner struct {
	runner  *Runner
	flag    string
	allowed bool
}

// NewExecHelpRunner creates a help runner.
func NewExecHelpRunner(runner *Runner, flag string, allowed bool) *ExecHelpRunner {
	if flag == "" {
		flag = "--help"
	}
	return &ExecHelpRunner{runner: runner, flag: flag, allowed: allowed}
}

func (h *ExecHelpRunner) Help(ctx context.Context, path string) (string, error) {
	if !h.allowed {
		return "", fmt.Errorf("help capture: executing inspected binaries is disabled: %w", ErrHostUnavailable)
	}
	out, err := h.runner.RunCombined(ctx, "help", []string{PathPlaceholder, h.flag}, path)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func runJSON(ctx context.Context, runner *Runner, host string, command []string, path string, v any) error {
	out, err := runner.Run(ctx, host, command, path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(out)) == "" {
		return fmt.Errorf("%s: empty output: %w", host, ErrHostUnavailable)
	}
	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("%s: invalid JSON output: %v: %w", host, err, ErrHostUnavailable)
	}
	return nil
}
