package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// flags holds the invocation-contract parameters of §6.4, shared by every
// subcommand via persistent flags on the root command.
type flags struct {
	root         string
	msPath       string
	targetUnit   string
	depthLimit   int
	force        bool
	outputPrefix string
}

// NewRootCommand builds the unittree command tree: a root command carrying
// the persistent flags of the invocation contract, and one subcommand per
// action (build-master, build-deps, build-both).
func NewRootCommand(log *logrus.Logger) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "unittree",
		Short:         "Static analysis of a systemd unit tree",
		Long:          "Crawls a systemd unit tree under a filesystem root (or an already-built master-struct artifact) and emits the master-struct and dependency-map JSON artifacts described in the unittree specification.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&f.root, "root", "/", "filesystem root of the unit tree to crawl")
	root.PersistentFlags().StringVar(&f.msPath, "ms", "", "path to a previously-built *_ms.json artifact (build-deps only)")
	root.PersistentFlags().StringVar(&f.targetUnit, "target-unit", "default.target", "root unit the dependency resolver starts from")
	root.PersistentFlags().IntVar(&f.depthLimit, "depth-limit", -1, "maximum traversal depth for the dependency resolver; negative means unbounded")
	root.PersistentFlags().BoolVar(&f.force, "force", false, "overwrite existing output artifacts")
	root.PersistentFlags().StringVar(&f.outputPrefix, "output-prefix", "unittree", "output artifacts are written to <prefix>_ms.json and <prefix>_dm.json")

	root.AddCommand(NewBuildMasterCommand(f, log))
	root.AddCommand(NewBuildDepsCommand(f, log))
	root.AddCommand(NewBuildBothCommand(f, log))
	root.AddCommand(NewVersionCommand())

	return root
}

// depthLimitPtr converts the --depth-limit flag into the *int the resolver
// expects: nil for unbounded (a negative value, the default), non-nil
// otherwise.
func (f *flags) depthLimitPtr() *int {
	if f.depthLimit < 0 {
		return nil
	}
	d := f.depthLimit
	return &d
}
