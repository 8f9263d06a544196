// Package dropin merges a unit's base file with its applicable drop-in
// directories (type-wide, name-specific, and alias-named), honouring
// systemd's layering and precedence rules.
package dropin

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/initgraph/unittree/pkg/discovery"
	"github.com/initgraph/unittree/pkg/errs"
	"github.com/initgraph/unittree/pkg/unitfile"
	"github.com/initgraph/unittree/pkg/units"
)

// Merged is the result of merging one unit's base file and drop-ins.
type Merged struct {
	Directives *unitfile.DirectiveSet
	// DropinPaths is the ordered list of .conf files applied, in the order
	// §3.2's "dropins" field requires (type-wide before name-specific,
	// lower-precedence directory before higher, lexicographic within a
	// directory).
	DropinPaths []string
	Warnings    []string
}

// Merge merges a unit's base file (if any), its type-wide drop-ins, its
// name-specific drop-ins, and the name-specific drop-ins bound to each of
// its known alias basenames (§4.D steps 1-4).
func Merge(unitType units.Type, unitName string, basePath string, aliasNames []string, disc *discovery.Result, log logrus.FieldLogger) Merged {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := Merged{Directives: unitfile.NewDirectiveSet()}

	applyFile := func(path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			m.Warnings = append(m.Warnings, errs.Format(errs.CodeMalformedUnit, path+": "+err.Error()))
			return
		}
		directives, err := unitfile.Parse(path, content)
		if err != nil {
			m.Warnings = append(m.Warnings, errs.Format(errs.CodeMalformedUnit, err.Error()))
			log.WithFields(logrus.Fields{"path": path}).Warn("malformed unit file")
			return
		}
		m.Directives.Apply(directives, path)
	}

	applyDropinDirs := func(dirs []discovery.DropinDir) {
		sorted := make([]discovery.DropinDir, len(dirs))
		copy(sorted, dirs)
		// Higher-precedence directories (lower Precedence index) apply
		// last so they win; sort so lowest precedence (highest index)
		// comes first.
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Precedence > sorted[j].Precedence })

		for _, d := range sorted {
			entries, err := os.ReadDir(d.Path)
			if err != nil {
				m.Warnings = append(m.Warnings, errs.Format(errs.CodeMalformedUnit, d.Path+": "+err.Error()))
				continue
			}
			var confs []string
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".conf") {
					confs = append(confs, e.Name())
				}
			}
			sort.Strings(confs)
			for _, name := range confs {
				p := filepath.Join(d.Path, name)
				applyFile(p)
				m.DropinPaths = append(m.DropinPaths, p)
			}
		}
	}

	if basePath != "" {
		applyFile(basePath)
	}
	applyDropinDirs(disc.TypeDropins[unitType])
	applyDropinDirs(disc.NameDropins[unitName])
	for _, alias := range aliasNames {
		applyDropinDirs(disc.NameDropins[alias])
	}

	return m
}
