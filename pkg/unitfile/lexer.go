// Package unitfile parses a single systemd unit file (or drop-in) into an
// ordered list of section/key/value directives.
//
// Low-level tokenizing (comments, line continuation, section headers) is
// delegated to github.com/coreos/go-systemd/v22/unit, the same library the
// rest of this codebase's lineage has always used for reading unit files.
// This package layers the directive-repetition and "empty value clears the
// key" semantics systemd itself applies on top of that tokenizer.
package unitfile

import (
	"bytes"
	"fmt"

	sdunit "github.com/coreos/go-systemd/v22/unit"
)

// Directive is one key=value occurrence inside a section of a unit file.
// Unlike a map, a slice of Directive preserves the original file order,
// which matters for later merge/override passes.
type Directive struct {
	Section string
	Key     string
	Value   string
}

// MalformedUnitError wraps a parse failure for one unit file. It is the
// Go representation of the MalformedUnit error-taxonomy entry: fatal to the
// single file, recoverable at the level of the overall crawl.
type MalformedUnitError struct {
	Path string
	Err  error
}

func (e *MalformedUnitError) Error() string {
	return fmt.Sprintf("parsing unit file %q: %v", e.Path, e.Err)
}

func (e *MalformedUnitError) Unwrap() error { return e.Err }

// Parse tokenizes the raw bytes of a unit file into an ordered list of
// directives. path is used only for error messages.
//
// A directive appearing before any [Section] header is a MalformedUnitError,
// per the lexer rule that directives before the first header are an error.
func Parse(path string, content []byte) ([]Directive, error) {
	for _, line := range bytes.Split(content, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] == '#' || trimmed[0] == ';' {
			continue
		}
		if trimmed[0] == '[' {
			break
		}
		return nil, &MalformedUnitError{Path: path, Err: fmt.Errorf("line %q appears before the first section header", trimmed)}
	}

	opts, err := sdunit.DeserializeOptions(bytes.NewReader(content))
	if err != nil {
		return nil, &MalformedUnitError{Path: path, Err: err}
	}

	directives := make([]Directive, 0, len(opts))
	for _, opt := range opts {
		if opt.Section == "" {
			return nil, &MalformedUnitError{Path: path, Err: fmt.Errorf("directive %q appears before the first section header", opt.Name)}
		}
		directives = append(directives, Directive{
			Section: opt.Section,
			Key:     opt.Name,
			Value:   opt.Value,
		})
	}
	return directives, nil
}
