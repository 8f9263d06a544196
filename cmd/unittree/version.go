package main

import (
	"fmt"

	"github.com/blang/semver/v4"
	"github.com/spf13/cobra"
)

// Version, GitCommit and BuildTime are set at build time via -ldflags, the
// same build-time-injected version variables the teacher repo's own
// command tree carries.
var (
	Version   = "0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// toolVersionString normalizes Version through semver before it gets
// stamped onto an artifact's meta.tool_version, so a loosely-formatted
// build-injected string (e.g. "v0.1.0") round-trips as the canonical form
// checkCompatibleToolVersion expects to parse back. A dev build with no
// -ldflags (Version left at "0.0.0-dev") stamps an empty string, so its
// artifacts are unstamped for compatibility checking. Any other Version
// that doesn't parse as a semver is returned raw.
func toolVersionString() string {
	if Version == "0.0.0-dev" {
		return ""
	}
	v, err := semver.ParseTolerant(Version)
	if err != nil {
		return Version
	}
	return v.String()
}

// minCompatibleToolVersion is the oldest tool_version build-deps accepts on
// an input MS artifact before refusing it as MalformedMSInput. Bumped
// whenever the MS artifact shape changes incompatibly.
var minCompatibleToolVersion = semver.MustParse("0.1.0")

// checkCompatibleToolVersion parses an MS artifact's stamped tool_version
// and reports whether build-deps may consume it.
func checkCompatibleToolVersion(stamped string) error {
	if stamped == "" {
		return nil // artifacts from a dev build may carry no version at all
	}
	v, err := semver.ParseTolerant(stamped)
	if err != nil {
		return fmt.Errorf("tool_version %q is not a valid version: %w", stamped, err)
	}
	if v.LT(minCompatibleToolVersion) {
		return fmt.Errorf("tool_version %s predates the minimum compatible version %s", v, minCompatibleToolVersion)
	}
	return nil
}

// NewVersionCommand creates the version subcommand.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("unittree %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		},
	}
}
