// Package enrich defines the artifact enricher hook (§6.5): an optional,
// pluggable extension point invoked for every Exec*= command line the
// assembler discovers, so that binary inspection (library extraction,
// string scraping, executable hashing) stays out of the core resolver.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/initgraph/unittree/pkg/units"
)

// ExecDirectives lists the [Service] keys whose values are command lines
// eligible for enrichment.
var ExecDirectives = []string{
	"ExecStart", "ExecStartPre", "ExecStartPost", "ExecStop", "ExecReload",
}

// Enricher attaches binary-inspection results to a resolved executable path.
// The hook is opaque to the core: a nil Enricher (or one that finds nothing)
// yields empty enrichment, never an error.
type Enricher interface {
	Enrich(executablePath string) *units.Enrichment
}

// HashOnly is the default Enricher: it stat/hashes the resolved executable
// under root but does no library or string extraction. It grounds the hook
// without depending on a disassembler.
type HashOnly struct {
	Root string
}

// Enrich computes a sha256 file hash for the resolved path, or returns nil
// if the path does not resolve to a readable regular file.
func (h HashOnly) Enrich(executablePath string) *units.Enrichment {
	if executablePath == "" {
		return nil
	}
	f, err := os.Open(executablePath)
	if err != nil {
		return nil
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return nil
	}
	return &units.Enrichment{
		ExecutablePath: executablePath,
		FileHash:       hex.EncodeToString(hasher.Sum(nil)),
	}
}

// ResolveExecutablePath extracts the executable path from a systemd
// command-line value (§4.H of the systemd.exec grammar: an optional leading
// "-"/"@"/"+"/"!"/"!!" prefix before the path) and joins it under root,
// returning "" if it can't be located there.
func ResolveExecutablePath(root, commandLine string) string {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return ""
	}
	path := strings.TrimLeft(fields[0], "-@+!")
	if path == "" || !filepath.IsAbs(path) {
		return ""
	}
	full := filepath.Join(root, path)
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		return ""
	}
	return full
}

// Apply runs hook over every Exec*= value in r's merged [Service] section,
// attaching the resulting Enrichment to that directive's origin record. A
// nil hook or unresolved path leaves the origin's Enrichment unset.
func Apply(hook Enricher, root string, r *units.Record) {
	if hook == nil {
		return
	}
	for _, key := range ExecDirectives {
		values := r.Values("Service", key)
		if len(values) == 0 {
			continue
		}
		label := "Service." + key
		origin, ok := r.DirectiveOrigins[label]
		if !ok {
			continue
		}
		for _, v := range values {
			execPath := ResolveExecutablePath(root, v)
			if execPath == "" {
				continue
			}
			if e := hook.Enrich(execPath); e != nil {
				origin.Enrichment = e
				break
			}
		}
		r.DirectiveOrigins[label] = origin
	}
}
