// Command featurescope is the command-line client for FeatureScope.
package main

import (
	"os"

	"github.com/turtacn/FeatureScope/internal/interfaces/cli"
)

// Build metadata, set through -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	// Execute prints the error itself.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
