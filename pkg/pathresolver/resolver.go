// Package pathresolver enumerates the systemd unit search paths under a
// filesystem root, in the precedence order systemd itself uses when
// resolving which file "wins" for a given unit name.
package pathresolver

import (
	"os"
	"path/filepath"
)

// systemSearchPaths are the relative search path suffixes, listed highest
// precedence first. User-scope unit directories are never searched — this
// system only models the system manager's unit tree.
var systemSearchPaths = []string{
	"etc/systemd/system",
	"run/systemd/system",
	"usr/local/lib/systemd/system",
	"usr/lib/systemd/system",
	"lib/systemd/system",
}

// SearchPath describes one entry in the precedence-ordered search path list.
type SearchPath struct {
	// Path is the absolute, root-joined directory path.
	Path string
	// Precedence is the zero-based index in precedence order (0 = highest).
	Precedence int
	// Exists reports whether the directory was present on disk when
	// resolved. Missing paths are not an error — they are simply skipped by
	// callers that only want existing directories (see Resolve).
	Exists bool
}

// ResolveAll returns every candidate search path under root, in precedence
// order, annotated with whether it exists. "lib/systemd/system" is omitted
// if it resolves to the same absolute path as "usr/lib/systemd/system" (the
// common case where /lib is a symlink into /usr/lib), since §4.A asks for it
// only "if distinct from the above".
func ResolveAll(root string) ([]SearchPath, error) {
	result := make([]SearchPath, 0, len(systemSearchPaths))
	seen := make(map[string]bool)

	for i, suffix := range systemSearchPaths {
		abs := filepath.Join(root, suffix)

		real := abs
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			real = resolved
		}
		if seen[real] {
			continue
		}
		seen[real] = true

		info, err := os.Stat(abs)
		exists := err == nil && info.IsDir()

		result = append(result, SearchPath{
			Path:       abs,
			Precedence: i,
			Exists:     exists,
		})
	}

	// Re-number precedence contiguously after any suffix was skipped as a
	// duplicate, so callers can rely on Precedence being a dense 0..n-1
	// ordering.
	for i := range result {
		result[i].Precedence = i
	}

	return result, nil
}

// Resolve returns only the search paths that exist on disk, in precedence
// order, highest precedence first. This is the list Unit Discovery (§4.C)
// actually walks.
func Resolve(root string) ([]SearchPath, error) {
	all, err := ResolveAll(root)
	if err != nil {
		return nil, err
	}

	existing := make([]SearchPath, 0, len(all))
	for _, sp := range all {
		if sp.Exists {
			existing = append(existing, sp)
		}
	}
	for i := range existing {
		existing[i].Precedence = i
	}
	return existing, nil
}
