// Package probe decides whether the smart-card tool is installed, a reader is
// attached and a card is inserted. Every failure lands on one of four outcomes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mfrid/internal/smartcard/runner"
)

// DefaultTool is the OpenSC PKCS#11 command line utility.
const DefaultTool = "pkcs11-tool"

const (
	slotMarker       = "Slot"
	presentMarker    = "token present"
	notPresentMarker = "token not present"
)

// Outcome is the tagged result of probing the hardware.
type Outcome int

const (
	OutcomeToolMissing Outcome = iota
	OutcomeNoReader
	OutcomeNoCard
	OutcomeCardPresent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeToolMissing:
		return "tool_missing"
	case OutcomeNoReader:
		return "no_reader"
	case OutcomeNoCard:
		return "no_card"
	case OutcomeCardPresent:
		return "card_present"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText lets the outcome appear by name in JSON diagnostics.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, candidate := range []Outcome{OutcomeToolMissing, OutcomeNoReader, OutcomeNoCard, OutcomeCardPresent} {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown probe outcome %q", string(text))
}

// Result is produced once per resolution attempt.
type Result struct {
	Outcome  Outcome
	ToolPath string
	// SlotLine is the slot line that reported a present token.
	SlotLine string
	// Ambiguous is set when the slot listing carried neither presence marker
	// and the probe fell back to OutcomeNoCard.
	Ambiguous bool
	// Err is the command failure that forced the outcome, if any.
	Err error
}

// Prober runs the probe against a Runner.
type Prober struct {
	runner runner.Runner
	tool   string
	module string
	logger *slog.Logger
}

type Option func(*Prober)

// WithTool overrides the card utility name.
func WithTool(tool string) Option {
	return func(p *Prober) {
		if tool != "" {
			p.tool = tool
		}
	}
}

// WithModule passes a PKCS#11 module path to every invocation.
func WithModule(module string) Option {
	return func(p *Prober) {
		p.module = module
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

func New(r runner.Runner, opts ...Option) *Prober {
	p := &Prober{
		runner: r,
		tool:   DefaultTool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tool returns the configured utility name.
func (p *Prober) Tool() string {
	return p.tool
}

// Probe inspects the tool, the readers and the slots in that order.
func (p *Prober) Probe(ctx context.Context) Result {
	path, err := p.runner.LookPath(p.tool)
	if err != nil {
		p.logger.InfoContext(ctx, "smart card tool not found", "tool", p.tool, "error", err)
		return Result{Outcome: OutcomeToolMissing, Err: err}
	}

	out, err := p.runner.Run(ctx, path, Args(p.module, "--list-slots")...)
	if err != nil {
		if errors.Is(err, runner.ErrToolNotFound) {
			return Result{Outcome: OutcomeToolMissing, Err: err}
		}
		p.logger.WarnContext(ctx, "listing slots failed", "tool", path, "error", err)
		return Result{Outcome: OutcomeNoReader, ToolPath: path, Err: err}
	}
	if !out.Succeeded {
		err := fmt.Errorf("%s --list-slots exited with status %d: %s",
			p.tool, out.ExitCode, firstLine(out.String()))
		p.logger.WarnContext(ctx, "listing slots failed", "tool", path, "exit_code", out.ExitCode)
		return Result{Outcome: OutcomeNoReader, ToolPath: path, Err: err}
	}

	res := Classify(out.String())
	res.ToolPath = path
	p.logger.DebugContext(ctx, "probe finished",
		"outcome", res.Outcome.String(),
		"ambiguous", res.Ambiguous,
	)
	return res
}

// Classify maps slot listing text onto an outcome.
func Classify(slots string) Result {
	if !strings.Contains(slots, slotMarker) {
		return Result{Outcome: OutcomeNoReader}
	}
	for _, line := range strings.Split(slots, "\n") {
		if strings.Contains(line, slotMarker) && strings.Contains(line, presentMarker) {
			return Result{Outcome: OutcomeCardPresent, SlotLine: strings.TrimSpace(line)}
		}
	}
	if strings.Contains(slots, notPresentMarker) {
		return Result{Outcome: OutcomeNoCard}
	}
	return Result{Outcome: OutcomeNoCard, Ambiguous: true}
}

// Args prefixes args with --module when a module path is set.
func Args(module string, args ...string) []string {
	if module == "" {
		return args
	}
	return append([]string{"--module", module}, args...)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
