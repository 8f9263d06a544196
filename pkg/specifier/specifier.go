// Package specifier implements systemd's template specifier substitution
// (%i, %n, …), applied to a template unit's directives after drop-in
// merging when synthesizing a template-instance unit.
package specifier

import (
	"strconv"
	"strings"

	"github.com/initgraph/unittree/pkg/errs"
	"github.com/initgraph/unittree/pkg/units"
)

// knownSpecifiers is every letter this implementation understands, used to
// detect (and warn on) specifiers the corpus does not define.
var knownSpecifiers = map[byte]bool{
	'i': true, 'I': true, 'n': true, 'N': true, 'p': true, 'f': true, '%': true,
}

// DecodeInstance decodes systemd's "\xHH" escape sequences in an instance
// string into their raw bytes, leaving any other character untouched.
func DecodeInstance(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Expand substitutes every recognized specifier in s for the instance
// identity id (whose Instance field holds the literal, still-escaped
// instance string). Unknown specifiers are left verbatim in the output and
// reported through warn, matching the per-unit recoverable UnknownSpecifier
// diagnostic (§7).
func Expand(s string, id units.Identity, warn func(code, detail string)) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}

	literal := id.Instance
	decoded := DecodeInstance(literal)

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		spec := s[i+1]
		switch spec {
		case 'i':
			b.WriteString(literal)
		case 'I':
			b.WriteString(decoded)
		case 'n':
			b.WriteString(id.CanonicalName())
		case 'N':
			b.WriteString(id.Prefix + "@" + literal)
		case 'p':
			b.WriteString(id.Prefix)
		case 'f':
			if strings.Contains(literal, `\x`) {
				b.WriteByte('/')
				b.WriteString(decoded)
			} else {
				b.WriteByte('/')
				b.WriteString(literal)
			}
		case '%':
			b.WriteByte('%')
		default:
			if warn != nil && !knownSpecifiers[spec] {
				warn(errs.CodeUnknownSpecifier, "%"+string(spec))
			}
			b.WriteByte('%')
			b.WriteByte(spec)
			i++
			continue
		}
		i++
	}
	return b.String()
}

// ExpandAll applies Expand to every value of a merged directive table,
// returning a new table (the input is not mutated).
func ExpandAll(sections map[string]map[string][]string, id units.Identity, warn func(code, detail string)) map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(sections))
	for section, keys := range sections {
		outKeys := make(map[string][]string, len(keys))
		for key, values := range keys {
			expanded := make([]string, len(values))
			for i, v := range values {
				expanded[i] = Expand(v, id, warn)
			}
			outKeys[key] = expanded
		}
		out[section] = outKeys
	}
	return out
}
