// Package artifact writes and reads the JSON documents the core emits: the
// master-struct snapshot and the dependency-map snapshot. Writes are atomic
// (temp file + rename) so a crash mid-write never leaves a corrupt artifact
// next to a valid one.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// MasterStructSuffix and DependencyMapSuffix are the conventional filename
// suffixes appended to an output prefix (see the invocation contract).
const (
	MasterStructSuffix = "_ms.json"
	DependencyMapSuffix = "_dm.json"
)

// MasterStructPath returns the conventional path for a master-struct artifact
// given an output prefix.
func MasterStructPath(prefix string) string {
	return prefix + MasterStructSuffix
}

// DependencyMapPath returns the conventional path for a dependency-map
// artifact given an output prefix.
func DependencyMapPath(prefix string) string {
	return prefix + DependencyMapSuffix
}

// ErrExists is returned by WriteJSON when the target path already exists and
// overwrite is not requested. It corresponds to the OutputCollision fatal
// error of the error taxonomy.
type ErrExists struct {
	Path string
}

func (e *ErrExists) Error() string {
	return fmt.Sprintf("output path %q already exists (use force_overwrite to replace it)", e.Path)
}

// WriteJSON marshals v as indented JSON with sorted map keys (Go's
// encoding/json already sorts map[string]... keys on marshal) and writes it
// atomically to path. If overwrite is false and path already exists, it
// returns *ErrExists without touching the file.
func WriteJSON(path string, v any, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return &ErrExists{Path: path}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking output path %q: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory for %q: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", path, err)
	}
	data = append(data, '\n')

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals the JSON document at path into v. It reports
// MalformedMSInput-class errors (see the error taxonomy) by wrapping the
// underlying decode error.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %q: %w", path, err)
	}
	return nil
}
