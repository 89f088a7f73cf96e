// Command tk is the tracker's command-line interface.
package main

import (
	"os"

	"agency-tracker/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
