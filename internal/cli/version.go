package cli

import "fmt"

// Build metadata, overridden with -ldflags "-X .../internal/cli.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func versionString() string {
	return fmt.Sprintf("defectctl %s (commit %s, built %s)", Version, Commit, Date)
}
