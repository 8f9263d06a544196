package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/initgraph/unittree/pkg/artifact"
	"github.com/initgraph/unittree/pkg/assemble"
	"github.com/initgraph/unittree/pkg/errs"
	"github.com/initgraph/unittree/pkg/implicit"
	"github.com/initgraph/unittree/pkg/units"
)

// withCrawlProgress runs work while driving an indeterminate spinner on
// stderr, the same feedback the teacher gives for its own long-running
// bootstrap steps — Unit Discovery over a large firmware search-path tree
// has no known total up front, so the bar is a spinner rather than a
// percentage.
func withCrawlProgress(description string, work func() error) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSpinnerType(11),
		progressbar.OptionSetSpinnerChangeInterval(100*time.Millisecond),
		progressbar.OptionThrottle(60*time.Millisecond),
	)
	defer func() { _ = bar.Finish() }()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-done:
				return
			}
		}
	}()

	err := work()
	close(done)
	return err
}

// buildMasterStruct runs the full crawl-to-MS pipeline (Unit Discovery
// through the Master-Struct Assembler, then the Implicit-Dependency
// Injector) and stamps the run's metadata.
func buildMasterStruct(f *flags, log logrus.FieldLogger) (*units.MasterStruct, error) {
	var ms *units.MasterStruct
	err := withCrawlProgress("crawling "+f.root, func() error {
		var buildErr error
		ms, buildErr = assemble.Build(f.root, log)
		return buildErr
	})
	if err != nil {
		return nil, err
	}

	implicit.Inject(ms, log)

	ms.Meta.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	ms.Meta.ToolVersion = toolVersionString()
	ms.Meta.RunID = uuid.NewString()

	return ms, nil
}

// NewBuildMasterCommand implements action=build_master.
func NewBuildMasterCommand(f *flags, log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "build-master",
		Short: "Crawl a filesystem root and emit the master-struct artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := buildMasterStruct(f, log)
			if err != nil {
				return err
			}

			path := artifact.MasterStructPath(f.outputPrefix)
			if err := artifact.WriteJSON(path, ms, f.force); err != nil {
				return translateWriteErr(path, err)
			}
			log.WithFields(logrus.Fields{"path": path, "units": len(ms.Units)}).Info("wrote master structure")
			return nil
		},
	}
}

// translateWriteErr maps artifact's collision sentinel onto the
// OutputCollision fatal error-taxonomy entry (§7).
func translateWriteErr(path string, err error) error {
	if _, ok := err.(*artifact.ErrExists); ok {
		return &errs.OutputCollisionError{Path: path}
	}
	return err
}
