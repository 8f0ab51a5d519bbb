// File: cmd/version.go
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is the application version.
// This value is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/faultline-sec/faultline/cmd.Version=1.0.0"
var Version = "0.1.0"

// newVersionCmd reports the build version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the faultline version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("faultline %s\n", Version)
		},
	}
}
