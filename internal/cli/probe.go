package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mfrid/internal/smartcard/probe"
)

type probeOutput struct {
	Outcome   probe.Outcome `json:"outcome"`
	Tool      string        `json:"tool,omitempty"`
	Slot      string        `json:"slot,omitempty"`
	Ambiguous bool          `json:"ambiguous"`
	Error     string        `json:"error,omitempty"`
}

func newProbeCmd(d deps, opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report whether a reader and card are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := d.loadConfig()
			log := opts.quietLogger(cmd, cfg)
			p := probe.New(d.newRunner(cfg.Smartcard, log),
				probe.WithTool(cfg.Smartcard.Tool),
				probe.WithModule(cfg.Smartcard.Module),
				probe.WithLogger(log),
			)

			res := p.Probe(commandContext(cmd))
			out := probeOutput{
				Outcome:   res.Outcome,
				Tool:      res.ToolPath,
				Slot:      res.SlotLine,
				Ambiguous: res.Ambiguous,
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintf(w, "outcome: %s\n", out.Outcome)
			if out.Tool != "" {
				fmt.Fprintf(w, "tool: %s\n", out.Tool)
			}
			if out.Slot != "" {
				fmt.Fprintf(w, "slot: %s\n", out.Slot)
			}
			if out.Ambiguous {
				fmt.Fprintln(w, "ambiguous: slot listing matched neither present nor absent")
			}
			if out.Error != "" {
				fmt.Fprintf(w, "error: %s\n", out.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
