// Package observability holds the commands that inspect what labelflow has
// done: its structured log and the events recorded there.
package observability

import "github.com/spf13/cobra"

// Register adds the observability commands to parent.
func Register(parent *cobra.Command) {
	RegisterLogsCmd(parent)
}
