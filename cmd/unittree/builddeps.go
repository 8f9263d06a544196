package main

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/initgraph/unittree/pkg/artifact"
	"github.com/initgraph/unittree/pkg/depgraph"
	"github.com/initgraph/unittree/pkg/errs"
	"github.com/initgraph/unittree/pkg/units"
)

var errMissingMSFlag = errors.New("build-deps requires --ms pointing at a previously-built *_ms.json artifact")

// loadMasterStruct reads and validates a previously-saved MS artifact
// (§12's build-deps standalone mode: comparing across firmware versions by
// building one MS per image and resolving against each independently).
func loadMasterStruct(path string) (*units.MasterStruct, error) {
	var ms units.MasterStruct
	if err := artifact.ReadJSON(path, &ms); err != nil {
		return nil, &errs.MalformedMSInputError{Path: path, Err: err}
	}
	if err := checkCompatibleToolVersion(ms.Meta.ToolVersion); err != nil {
		return nil, &errs.MalformedMSInputError{Path: path, Err: err}
	}
	return &ms, nil
}

// NewBuildDepsCommand implements action=build_deps.
func NewBuildDepsCommand(f *flags, log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "build-deps",
		Short: "Resolve a dependency map from a previously-built master-struct artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.msPath == "" {
				return errMissingMSFlag
			}
			ms, err := loadMasterStruct(f.msPath)
			if err != nil {
				return err
			}

			dm, err := depgraph.Resolve(ms, f.targetUnit, f.depthLimitPtr(), log)
			if err != nil {
				return err
			}
			dm.Meta.GeneratedAt = ms.Meta.GeneratedAt
			dm.Meta.ToolVersion = toolVersionString()
			dm.Meta.RunID = ms.Meta.RunID

			path := artifact.DependencyMapPath(f.outputPrefix)
			if err := artifact.WriteJSON(path, dm, f.force); err != nil {
				return translateWriteErr(path, err)
			}
			log.WithFields(logrus.Fields{"path": path, "nodes": len(dm.Nodes)}).Info("wrote dependency map")
			return nil
		},
	}
}
