// Package runner invokes external smart-card utilities and captures their
// output. It holds no business logic: callers decide what a non-zero exit or
// a particular line of output means.
package runner

//go:generate mockgen -source=runner.go -destination=mocks/mocks.go -package=mocks Runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxOutput caps captured output at 10 MiB.
	DefaultMaxOutput = 10 * 1024 * 1024

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the command itself was killed.
	waitDelay = 500 * time.Millisecond
)

var (
	// ErrToolNotFound is returned when the executable is not on PATH.
	ErrToolNotFound = errors.New("tool not found")
	// ErrTimeout is returned when the command outlives its deadline.
	ErrTimeout = errors.New("command timed out")
)

// Output is what a finished command produced. Stderr is merged into Stdout so
// diagnostic text ends up where callers scan for markers.
type Output struct {
	Stdout    []byte
	ExitCode  int
	Succeeded bool
	Truncated bool
}

// String returns the captured output as text.
func (o Output) String() string {
	return string(o.Stdout)
}

// ExecutionError reports a command that could not be started or waited on.
// A command that ran and exited non-zero is not an ExecutionError.
type ExecutionError struct {
	Op      string // "start", "wait", "acquire"
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Runner is the narrow seam between the smart-card packages and the OS.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec. A single attempt per call, no retries.
type ExecRunner struct {
	timeout   time.Duration
	maxOutput int64
	sem       *semaphore.Weighted
	logger    *slog.Logger
}

type Option func(*ExecRunner)

// WithTimeout bounds each command. Zero disables the per-command deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *ExecRunner) {
		r.timeout = d
	}
}

// WithMaxOutput caps captured output; bytes beyond the cap are discarded.
func WithMaxOutput(n int64) Option {
	return func(r *ExecRunner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// WithMaxConcurrent bounds how many commands may run at once.
func WithMaxConcurrent(n int64) Option {
	return func(r *ExecRunner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// New constructs an ExecRunner.
func New(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		maxOutput: DefaultMaxOutput,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LookPath resolves name on PATH, mapping a miss onto ErrToolNotFound.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrToolNotFound)
	}
	return path, nil
}

// Run executes name with args and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	command := strings.TrimSpace(name + " " + strings.Join(args, " "))

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return Output{}, &ExecutionError{Op: "acquire", Command: command, Err: err}
		}
		defer r.sem.Release(1)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	buf := newCappedBuffer(r.maxOutput)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = buf
	cmd.Stderr = buf
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Output{}, fmt.Errorf("%s: %w", name, ErrToolNotFound)
		}
		return Output{}, &ExecutionError{Op: "start", Command: command, Err: err}
	}

	waitErr := cmd.Wait()
	out := Output{
		Stdout:    buf.Bytes(),
		Truncated: buf.Truncated(),
	}
	if buf.Truncated() {
		r.logger.WarnContext(ctx, "command output truncated",
			"command", command,
			"limit_bytes", r.maxOutput,
		)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		err := ctxErr
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return out, &ExecutionError{Op: "wait", Command: command, Err: err}
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		out.Succeeded = true
	case errors.As(waitErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, &ExecutionError{Op: "wait", Command: command, Err: waitErr}
	}

	r.logger.DebugContext(ctx, "command finished",
		"command", command,
		"exit_code", out.ExitCode,
		"bytes", len(out.Stdout),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
