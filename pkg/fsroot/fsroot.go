// Package fsroot resolves symbolic links confined to a filesystem root R,
// the way an analyzer examining an unpacked firmware image must: an
// absolute symlink target names a path inside the image, never a path on
// the host doing the analysis, and a resolved path that would climb above
// R is treated as escaping rather than followed onto the host filesystem.
package fsroot

import (
	"os"
	"path/filepath"
	"strings"
)

// maxHops bounds symlink chain following so a link cycle cannot hang the
// resolver; systemd itself caps symlink chains similarly.
const maxHops = 40

// Resolution is the outcome of following a symlink chain confined to root.
type Resolution struct {
	// Path is the final absolute, root-confined path reached. Valid
	// whenever Dangling and Escaping are both false.
	Path string
	// Dangling is true when the chain ends at a path that does not exist.
	Dangling bool
	// Escaping is true when a link target would resolve outside root; the
	// chain stops at the point of escape and is treated like dangling by
	// callers, but reported separately for diagnostics.
	Escaping bool
}

// Resolve follows the symlink chain starting at path (an absolute path
// already known to live under root), confining every hop to root. An
// absolute link target is interpreted as root-relative (joined onto root),
// matching how systemd's own unit search treats the image it's pointed at
// as if it were "/". A relative target is resolved relative to the
// directory containing the link being followed.
func Resolve(root, path string) (Resolution, error) {
	root = filepath.Clean(root)
	current := filepath.Clean(path)

	for hop := 0; hop < maxHops; hop++ {
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return Resolution{Dangling: true}, nil
			}
			return Resolution{}, err
		}

		if info.Mode()&os.ModeSymlink == 0 {
			return Resolution{Path: current}, nil
		}

		raw, err := os.Readlink(current)
		if err != nil {
			return Resolution{}, err
		}
		if raw == "/dev/null" {
			// The null device need not exist inside an unpacked image.
			return Resolution{Path: filepath.Join(root, "dev", "null")}, nil
		}

		var next string
		if filepath.IsAbs(raw) {
			next = filepath.Join(root, raw)
		} else {
			next = filepath.Join(filepath.Dir(current), raw)
		}
		next = filepath.Clean(next)

		if !withinRoot(root, next) {
			return Resolution{Escaping: true}, nil
		}
		current = next
	}

	// Too many hops: treat as dangling rather than looping forever.
	return Resolution{Dangling: true}, nil
}

// withinRoot reports whether p is root itself or a descendant of it.
func withinRoot(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// IsZeroLengthOrNull reports whether the resolved path is the null device
// path (root-relative "/dev/null") or a zero-length regular file — both of
// which systemd treats as a masked unit when a unit name resolves to them.
func IsZeroLengthOrNull(root, resolvedPath string) bool {
	if resolvedPath == filepath.Join(root, "dev", "null") {
		return true
	}
	info, err := os.Stat(resolvedPath)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() == 0
}
