// Package certificate reads the certificate objects on an inserted card and
// parses the printable subject into identity fields. It does not validate
// signatures or chains.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mfrid/internal/smartcard/probe"
	"mfrid/internal/smartcard/runner"
)

var (
	// ErrUnreadable means the listing command could not be run or failed.
	ErrUnreadable = errors.New("certificate listing failed")
	// ErrNoDistinguishedName means the listing ran but carried no DN.
	ErrNoDistinguishedName = errors.New("no distinguished name in certificate listing")
)

// Extractor lists certificate objects with the card utility.
type Extractor struct {
	runner runner.Runner
	tool   string
	module string
	logger *slog.Logger
}

type Option func(*Extractor)

func WithTool(tool string) Option {
	return func(e *Extractor) {
		if tool != "" {
			e.tool = tool
		}
	}
}

func WithModule(module string) Option {
	return func(e *Extractor) {
		e.module = module
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func NewExtractor(r runner.Runner, opts ...Option) *Extractor {
	e := &Extractor{
		runner: r,
		tool:   probe.DefaultTool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract lists the card's certificates and parses the first subject found.
// The raw listing is dropped once parsed.
func (e *Extractor) Extract(ctx context.Context) (*Subject, error) {
	out, err := e.runner.Run(ctx, e.tool, probe.Args(e.module, "--list-objects", "--type", "cert")...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if !out.Succeeded {
		return nil, fmt.Errorf("%w: %s exited with status %d", ErrUnreadable, e.tool, out.ExitCode)
	}
	if out.Truncated {
		e.logger.WarnContext(ctx, "certificate listing truncated, parsing what was captured")
	}

	subject, ok := ParseListing(out.Stdout)
	if !ok {
		return nil, ErrNoDistinguishedName
	}
	e.logger.DebugContext(ctx, "certificate subject parsed",
		"uid", subject.UID,
		"branch", subject.Branch,
		"ambiguous", subject.Ambiguous,
	)
	return subject, nil
}
