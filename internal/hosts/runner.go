package hosts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultTimeout bounds every host invocation.
	DefaultTimeout = 30 * time.Second

	// PathPlaceholder in a command template is replaced with the artifact path.
	PathPlaceholder = "{path}"
)

// Runner executes helper processes under a timeout, optionally memoizing output.
type Runner struct {
	timeout time.Duration
	cache   *ResultCache
	logger  *log.Logger
}

// NewRunner creates a runner. A zero timeout means DefaultTimeout; cache may be nil.
func NewRunner(timeout time.Duration, cache *ResultCache, logger *log.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{timeout: timeout, cache: cache, logger: logger}
}

// Timeout returns the per-invocation timeout.
func (r *Runner) Timeout() time.Duration { return r.timeout }

// Run executes the command template against path and returns stdout.
//
// Process:
// 1. Expand {path} (or append path when the template has no placeholder)
// 2. Serve from the result cache when the same input was seen before
// 3. Execute with the configured timeout
// 4. Map deadline, missing binary and non-zero exit to host sentinel errors
func (r *Runner) Run(ctx context.Context, host string, template []string, path string) ([]byte, error) {
	return r.run(ctx, host, template, path, false)
}

// RunCombined is Run with stderr appended to stdout. A non-zero exit is accepted
// when the process printed something, since many tools exit non-zero after --help.
func (r *Runner) RunCombined(ctx context.Context, host string, template []string, path string) ([]byte, error) {
	return r.run(ctx, host, template, path, true)
}

func (r *Runner) run(ctx context.Context, host string, template []string, path string, combined bool) ([]byte, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("%s: no command configured: %w", host, ErrHostUnavailable)
	}
	args := ExpandTemplate(template, path)

	var key string
	if r.cache != nil {
		if k, err := r.cache.Key(host, args, path); err == nil {
			key = k
			if out, ok := r.cache.Get(key); ok {
				r.logger.Debug("host cache hit", "host", host, "path", path)
				return out, nil
			}
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, args[0], args[1:]...)
	// grandchildren holding the output pipes must not outlive the deadline
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if combined {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("host invoked", "host", host, "path", path, "took", time.Since(start), "err", err)

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s exceeded %s: %w", host, r.timeout, ErrHostTimeout)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %s not found: %w", host, args[0], ErrHostUnavailable)
		}
		var exitErr *exec.ExitError
		if !(combined && errors.As(err, &exitErr) && stdout.Len() > 0) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%s failed: %s: %w", host, msg, ErrHostUnavailable)
			}
			return nil, fmt.Errorf("%s failed: %v: %w", host, err, ErrHostUnavailable)
		}
	}

	out := stdout.Bytes()
	if key != "" {
		r.cache.Set(key, out)
	}
	return out, nil
}

// ExpandTemplate substitutes {path} in each element, appending path when absent.
func ExpandTemplate(template []string, path string) []string {
	args := make([]string, len(template))
	found := false
	for i, a := range template {
		if strings.Contains(a, PathPlaceholder) {
			found = true
		}
		args[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}
	if !found {
		args = append(args, path)
	}
	return args
}
