package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"mfrid/internal/directory"
	"mfrid/internal/identity"
	"mfrid/internal/smartcard/certificate"
	"mfrid/internal/smartcard/probe"
)

func newResolveCmd(d deps, opts *rootOptions) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Run a full resolution and print the response envelope",
		Long: `Run a full resolution (probe, certificate, directory) and print the same
JSON envelope /api/cac-data returns. No audit event is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := d.loadConfig()
			log := opts.quietLogger(cmd, cfg)
			r := d.newRunner(cfg.Smartcard, log)

			resolver := identity.NewResolver(
				probe.New(r,
					probe.WithTool(cfg.Smartcard.Tool),
					probe.WithModule(cfg.Smartcard.Module),
					probe.WithLogger(log),
				),
				certificate.NewExtractor(r,
					certificate.WithTool(cfg.Smartcard.Tool),
					certificate.WithModule(cfg.Smartcard.Module),
					certificate.WithLogger(log),
				),
				directory.New(cfg.Directory, directory.WithLogger(log)),
				identity.WithLogger(log),
			)

			res := resolver.Resolve(commandContext(cmd))
			env := identity.NewEnvelope(res)
			if debug {
				env = identity.NewDebugEnvelope(res)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(env)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Include the debug block")
	return cmd
}
