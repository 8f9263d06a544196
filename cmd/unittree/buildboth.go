package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/initgraph/unittree/pkg/artifact"
	"github.com/initgraph/unittree/pkg/depgraph"
)

// NewBuildBothCommand implements action=build_both: a single crawl feeds
// both the master-struct build and the dependency resolution, so the MS
// and DM artifacts it writes share one run_id (§10.2/§11: the
// github.com/google/uuid correlation stamp).
func NewBuildBothCommand(f *flags, log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "build-both",
		Short: "Crawl a filesystem root and emit both the master-struct and dependency-map artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := buildMasterStruct(f, log)
			if err != nil {
				return err
			}

			dm, err := depgraph.Resolve(ms, f.targetUnit, f.depthLimitPtr(), log)
			if err != nil {
				return err
			}
			dm.Meta.GeneratedAt = ms.Meta.GeneratedAt
			dm.Meta.ToolVersion = ms.Meta.ToolVersion
			dm.Meta.RunID = ms.Meta.RunID

			msPath := artifact.MasterStructPath(f.outputPrefix)
			if err := artifact.WriteJSON(msPath, ms, f.force); err != nil {
				return translateWriteErr(msPath, err)
			}
			dmPath := artifact.DependencyMapPath(f.outputPrefix)
			if err := artifact.WriteJSON(dmPath, dm, f.force); err != nil {
				return translateWriteErr(dmPath, err)
			}

			log.WithFields(logrus.Fields{
				"ms_path": msPath, "dm_path": dmPath,
				"units": len(ms.Units), "nodes": len(dm.Nodes),
				"run_id": ms.Meta.RunID,
			}).Info("wrote master structure and dependency map")
			return nil
		},
	}
}
