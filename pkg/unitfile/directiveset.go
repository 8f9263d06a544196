package unitfile

// DirectiveSet accumulates directives from a unit's base file and every
// drop-in applied on top of it, in application order. It implements
// systemd's override semantics:
//
//   - a repeated key appends to the existing value list ("additive"
//     semantics for multi-valued keys such as ExecStartPre=)
//   - an empty value (e.g. "ExecStart=") resets (clears) the accumulated
//     list for that key — later entries in the same or a later file start
//     the list over
//
// Values are grouped by section, then by key, mirroring the directives
// field of the unit record (§3.2).
type DirectiveSet struct {
	// Sections maps section name -> key -> ordered values.
	Sections map[string]map[string][]string

	// Origins maps "Section\x00Key" -> the path (or implicit rule id) of the
	// file that most recently contributed to that key's value list. This is
	// the per-directive origin tracking required by §3.2.
	Origins map[string]string
}

// NewDirectiveSet returns an empty DirectiveSet ready for Apply calls.
func NewDirectiveSet() *DirectiveSet {
	return &DirectiveSet{
		Sections: make(map[string]map[string][]string),
		Origins:  make(map[string]string),
	}
}

func originKey(section, key string) string {
	return section + "\x00" + key
}

// Apply merges a batch of directives parsed from a single file into the set,
// attributing them to origin (typically the file's path, or an
// "implicit:<rule-id>" string for injected directives). Directives must be
// supplied in file order; Apply must be called once per file, in the order
// the files should be merged (lowest precedence first).
func (d *DirectiveSet) Apply(directives []Directive, origin string) {
	for _, dir := range directives {
		section, ok := d.Sections[dir.Section]
		if !ok {
			section = make(map[string][]string)
			d.Sections[dir.Section] = section
		}

		if dir.Value == "" {
			// Empty RHS clears everything accumulated so far for this key.
			section[dir.Key] = nil
		} else {
			section[dir.Key] = append(section[dir.Key], dir.Value)
		}
		d.Origins[originKey(dir.Section, dir.Key)] = origin
	}
}

// Get returns the accumulated value list for a section/key, and whether the
// key was ever set (even if subsequently reset to an empty list).
func (d *DirectiveSet) Get(section, key string) ([]string, bool) {
	sec, ok := d.Sections[section]
	if !ok {
		return nil, false
	}
	values, ok := sec[key]
	return values, ok
}

// First returns the first accumulated value for a section/key, or "" if
// unset. Convenient for single-valued directives like Description= or
// Type=.
func (d *DirectiveSet) First(section, key string) string {
	values, _ := d.Get(section, key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// OriginOf returns the origin recorded for a section/key, or "" if unset.
func (d *DirectiveSet) OriginOf(section, key string) string {
	return d.Origins[originKey(section, key)]
}

// SetImplicit records an implicit directive value under the given rule id,
// appending to (not clearing) any existing explicit value — implicit
// defaults never override or erase directives the unit file itself set.
func (d *DirectiveSet) SetImplicit(section, key, value, ruleID string) {
	sec, ok := d.Sections[section]
	if !ok {
		sec = make(map[string][]string)
		d.Sections[section] = sec
	}
	for _, existing := range sec[key] {
		if existing == value {
			return
		}
	}
	sec[key] = append(sec[key], value)
	if _, hasOrigin := d.Origins[originKey(section, key)]; !hasOrigin {
		d.Origins[originKey(section, key)] = "implicit:" + ruleID
	}
}
