// Command retzctl is the developer terminal tool for interacting with
// the Retz controller API.
package main

import (
	"os"

	"retz/cmd/retzctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
