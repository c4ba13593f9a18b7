package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mfrid/internal/directory/rank"
)

func newRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rank <title...>",
		Short:   "Print the rank code found in a directory title",
		Example: `  cacctl rank "Lt Col, USAF"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := rank.Extract(strings.Join(args, " "))
			if code == "" {
				return fmt.Errorf("no rank found in %q", strings.Join(args, " "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}
