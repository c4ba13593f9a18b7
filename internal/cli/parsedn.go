package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mfrid/internal/smartcard/certificate"
)

func newParseDNCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "parse-dn [file]",
		Short: "Parse a certificate listing and print the subject",
		Long: `Parse the output of "pkcs11-tool --list-objects --type cert" from a file,
or from stdin when no file is given, and print the parsed subject as JSON.

With --raw the input is a bare distinguished name instead of a listing.`,
		Example: `  pkcs11-tool --list-objects --type cert | cacctl parse-dn
  cacctl parse-dn --raw <<< "CN=DOE.JOHN.A.1234567890,OU=USAF,O=U.S. Government"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open listing: %w", err)
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read listing: %w", err)
			}

			var subject *certificate.Subject
			if raw {
				dn := strings.TrimSpace(string(data))
				if dn == "" {
					return certificate.ErrNoDistinguishedName
				}
				s := certificate.ParseDN(dn)
				subject = &s
			} else {
				var ok bool
				subject, ok = certificate.ParseListing(data)
				if !ok {
					return certificate.ErrNoDistinguishedName
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(subject)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Treat input as a bare distinguished name")
	return cmd
}
