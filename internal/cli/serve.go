package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mfrid/internal/app"
)

func newServeCmd(d deps, opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service that answers /api/cac-data for the memorandum form.

Configuration comes from the environment (MFR_ADDR or PORT, SMARTCARD_*,
DIRECTORY_* or AD_*, REDIS_URL, AUDIT_*, RATE_LIMIT_*).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := d.loadConfig()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			log := opts.logger(cmd, cfg)

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides MFR_ADDR and PORT")
	return cmd
}

// commandContext falls back to Background for commands run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
