// cacctl is the operator CLI for the CAC identity resolver. It runs the HTTP
// service and exposes each resolution step for troubleshooting a workstation.
//
// Usage:
//
//	cacctl serve
//	cacctl probe
//	cacctl resolve [--debug]
//	cacctl parse-dn [file]
//	cacctl rank <title...>
package main

import (
	"fmt"
	"os"

	"mfrid/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
