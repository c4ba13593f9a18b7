// Package cli implements the cacctl command tree.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"mfrid/internal/platform/config"
	"mfrid/internal/platform/logger"
	"mfrid/internal/smartcard/runner"
)

// deps lets tests replace the process environment and the card tool.
type deps struct {
	loadConfig func() config.Config
	newRunner  func(cfg config.Smartcard, log *slog.Logger) runner.Runner
}

func defaultDeps() deps {
	return deps{
		loadConfig: config.FromEnv,
		newRunner: func(cfg config.Smartcard, log *slog.Logger) runner.Runner {
			return runner.New(
				runner.WithTimeout(cfg.CommandTimeout),
				runner.WithMaxOutput(cfg.MaxOutput),
				runner.WithMaxConcurrent(cfg.MaxConcurrent),
				runner.WithLogger(log),
			)
		},
	}
}

type rootOptions struct {
	logLevel  string
	logFormat string
	verbose   bool
}

// logger returns a stderr logger for serve and verbose runs, and a discarding
// one otherwise so command output stays machine readable.
func (o *rootOptions) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	format := cfg.Log.Format
	if o.logFormat != "" {
		format = o.logFormat
	}
	return logger.New(cmd.ErrOrStderr(), level, format)
}

func (o *rootOptions) quietLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	if o.verbose {
		return o.logger(cmd, cfg)
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultDeps())
}

func newRootCmd(d deps) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "cacctl",
		Short: "Resolve a military identity from an inserted CAC",
		Long: `Resolve a military identity from an inserted Common Access Card.

cacctl runs the HTTP service used by the memorandum form and exposes each
resolution step (reader probe, certificate parse, rank extraction) so an
operator can troubleshoot a workstation without the UI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (json or text); defaults to LOG_FORMAT")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Write logs to stderr for one-shot commands")

	root.AddCommand(
		newServeCmd(d, opts),
		newProbeCmd(d, opts),
		newResolveCmd(d, opts),
		newParseDNCmd(),
		newRankCmd(),
	)
	return root
}

// Execute runs the CLI against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
