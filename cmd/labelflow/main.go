// Command labelflow drives the guided superpixel labeling workflow.
package main

import (
	"os"

	"github.com/Iron-Ham/labelflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cmd.Report(os.Stderr, err)
		os.Exit(1)
	}
}
