// Package main provides the CLI for the LeapFit MCMC diagnostics viewer.
package main

import (
	"os"

	"github.com/leapstack-labs/leapfit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
