// Package discovery walks the search paths produced by pathresolver and
// classifies every directory entry found there: regular unit files,
// symlinks (aliases, masked units, dangling links), drop-in directories
// (name-specific and type-wide), and *.wants/*.requires directories.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/initgraph/unittree/pkg/errs"
	"github.com/initgraph/unittree/pkg/fsroot"
	"github.com/initgraph/unittree/pkg/pathresolver"
	"github.com/initgraph/unittree/pkg/units"
)

// UnitFileCandidate is a regular file found at a search path whose name
// matches a recognized unit suffix.
type UnitFileCandidate struct {
	Name       string
	Path       string
	SearchPath string
	Precedence int
}

// SymlinkCandidate is a symlink found at a search path whose name matches
// a recognized unit suffix, already resolved (confined to root) to
// determine whether it is dangling, escaping, or masked.
type SymlinkCandidate struct {
	Name       string
	Path       string
	SearchPath string
	Precedence int

	RawTarget    string
	ResolvedPath string
	Dangling     bool
	Escaping     bool
	Masked       bool
}

// DropinDir is a *.d directory, either bound to one unit (name-specific) or
// to every unit of a type (type-wide).
type DropinDir struct {
	Path       string
	SearchPath string
	Precedence int
}

// GeneratedDir is a *.wants or *.requires directory: every entry inside it
// becomes an implicit Wants=/Requires= on the owning unit.
type GeneratedDir struct {
	Owner      string
	Path       string
	Precedence int
	Members    []string
}

// Result is the full classification of every search path's contents.
type Result struct {
	// UnitFiles and Symlinks are keyed by basename, candidates listed in
	// precedence order (index 0 = highest precedence). First-wins: index 0
	// is the winner, the rest are overridden.
	UnitFiles map[string][]UnitFileCandidate
	Symlinks  map[string][]SymlinkCandidate

	// NameDropins is keyed by the owning unit's basename.
	NameDropins map[string][]DropinDir
	// TypeDropins is keyed by unit type.
	TypeDropins map[units.Type][]DropinDir

	WantsDirs    []GeneratedDir
	RequiresDirs []GeneratedDir

	Warnings []string
}

func newResult() *Result {
	return &Result{
		UnitFiles:   make(map[string][]UnitFileCandidate),
		Symlinks:    make(map[string][]SymlinkCandidate),
		NameDropins: make(map[string][]DropinDir),
		TypeDropins: make(map[units.Type][]DropinDir),
	}
}

// Walk classifies every entry under every search path, in precedence
// order. Unreadable directories are recorded as warnings and skipped,
// rather than aborting the run — a forensic tool over a possibly-damaged
// firmware tree must tolerate partial trees.
func Walk(root string, paths []pathresolver.SearchPath, log logrus.FieldLogger) (*Result, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	res := newResult()

	for _, sp := range paths {
		entries, err := os.ReadDir(sp.Path)
		if err != nil {
			msg := errs.Format(errs.CodeMalformedUnit, "reading search path "+sp.Path+": "+err.Error())
			res.Warnings = append(res.Warnings, msg)
			log.WithFields(logrus.Fields{"path": sp.Path}).Warn(msg)
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			classify(root, sp, entry, name, res, log)
		}
	}

	sortCandidates(res)
	return res, nil
}

func classify(root string, sp pathresolver.SearchPath, entry os.DirEntry, name string, res *Result, log logrus.FieldLogger) {
	fullPath := filepath.Join(sp.Path, name)

	switch {
	case entry.IsDir() && strings.HasSuffix(name, ".wants"):
		owner := strings.TrimSuffix(name, ".wants")
		if !units.HasRecognizedSuffix(owner) {
			return
		}
		res.WantsDirs = append(res.WantsDirs, readGeneratedDir(owner, fullPath, sp.Precedence, log))

	case entry.IsDir() && strings.HasSuffix(name, ".requires"):
		owner := strings.TrimSuffix(name, ".requires")
		if !units.HasRecognizedSuffix(owner) {
			return
		}
		res.RequiresDirs = append(res.RequiresDirs, readGeneratedDir(owner, fullPath, sp.Precedence, log))

	case entry.IsDir() && strings.HasSuffix(name, ".d"):
		trimmed := strings.TrimSuffix(name, ".d")
		dir := DropinDir{Path: fullPath, SearchPath: sp.Path, Precedence: sp.Precedence}
		if t, ok := units.TypeFromName(trimmed); ok {
			res.TypeDropins[t] = append(res.TypeDropins[t], dir)
			return
		}
		if units.HasRecognizedSuffix(trimmed) {
			res.NameDropins[trimmed] = append(res.NameDropins[trimmed], dir)
		}

	case entry.IsDir():
		// Unrecognized directory (e.g. a generator output dir); ignored.

	case units.HasRecognizedSuffix(name):
		info, err := entry.Info()
		if err != nil {
			return
		}
		if info.Mode()&os.ModeSymlink != 0 {
			res.Symlinks[name] = append(res.Symlinks[name], resolveSymlinkCandidate(root, sp, name, fullPath, log))
			return
		}
		if info.Mode().IsRegular() {
			res.UnitFiles[name] = append(res.UnitFiles[name], UnitFileCandidate{
				Name: name, Path: fullPath, SearchPath: sp.Path, Precedence: sp.Precedence,
			})
		}

	default:
		// Entries with no recognized unit suffix (README, vendor dropped
		// files, etc.) are silently ignored, matching systemd's own
		// tolerance of unrelated files in a unit directory.
	}
}

func resolveSymlinkCandidate(root string, sp pathresolver.SearchPath, name, fullPath string, log logrus.FieldLogger) SymlinkCandidate {
	cand := SymlinkCandidate{Name: name, Path: fullPath, SearchPath: sp.Path, Precedence: sp.Precedence}

	if raw, err := os.Readlink(fullPath); err == nil {
		cand.RawTarget = raw
	}

	resolution, err := fsroot.Resolve(root, fullPath)
	if err != nil {
		log.WithFields(logrus.Fields{"path": fullPath}).Warn(errs.Format(errs.CodeMalformedUnit, err.Error()))
		cand.Dangling = true
		return cand
	}

	switch {
	case resolution.Escaping:
		cand.Escaping = true
		log.WithFields(logrus.Fields{"path": fullPath}).Warn(errs.Format(errs.CodeEscapingSymlink, fullPath))
	case resolution.Dangling:
		cand.Dangling = true
		log.WithFields(logrus.Fields{"path": fullPath}).Warn(errs.Format(errs.CodeDanglingSymlink, fullPath))
	default:
		cand.ResolvedPath = resolution.Path
		if fsroot.IsZeroLengthOrNull(root, resolution.Path) {
			cand.Masked = true
		}
	}

	return cand
}

func readGeneratedDir(owner, path string, precedence int, log logrus.FieldLogger) GeneratedDir {
	gd := GeneratedDir{Owner: owner, Path: path, Precedence: precedence}

	entries, err := os.ReadDir(path)
	if err != nil {
		log.WithFields(logrus.Fields{"path": path}).Warn(errs.Format(errs.CodeMalformedUnit, err.Error()))
		return gd
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		gd.Members = append(gd.Members, e.Name())
	}
	sort.Strings(gd.Members)
	return gd
}

func sortCandidates(res *Result) {
	for name, cands := range res.UnitFiles {
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Precedence < cands[j].Precedence })
		res.UnitFiles[name] = cands
	}
	for name, cands := range res.Symlinks {
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Precedence < cands[j].Precedence })
		res.Symlinks[name] = cands
	}
	for name, dirs := range res.NameDropins {
		sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].Precedence < dirs[j].Precedence })
		res.NameDropins[name] = dirs
	}
	for t, dirs := range res.TypeDropins {
		sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].Precedence < dirs[j].Precedence })
		res.TypeDropins[t] = dirs
	}
	sort.SliceStable(res.WantsDirs, func(i, j int) bool { return res.WantsDirs[i].Precedence < res.WantsDirs[j].Precedence })
	sort.SliceStable(res.RequiresDirs, func(i, j int) bool { return res.RequiresDirs[i].Precedence < res.RequiresDirs[j].Precedence })
}

// Winner returns the first-precedence unit file candidate for a name, and
// every later candidate's path for the owning record's overridden_by list.
func Winner(cands []UnitFileCandidate) (UnitFileCandidate, []string) {
	if len(cands) == 0 {
		return UnitFileCandidate{}, nil
	}
	overridden := make([]string, 0, len(cands)-1)
	for _, c := range cands[1:] {
		overridden = append(overridden, c.Path)
	}
	return cands[0], overridden
}
