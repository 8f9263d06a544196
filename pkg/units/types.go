// Package units holds the domain model shared across the crawler, resolver
// and their supporting components: unit identity, unit types, relation
// kinds, the unit record, and the master structure (MS) that ties them
// together. The master-struct assembler (component G) that fills an MS is
// in package assemble.
package units

import (
	"fmt"
	"sort"
	"strings"
)

// Type is the tagged variant systemd uses to classify a unit. The
// implicit-dependency injector (package implicit) dispatches on this tag.
type Type string

const (
	TypeService   Type = "service"
	TypeSocket    Type = "socket"
	TypeDevice    Type = "device"
	TypeMount     Type = "mount"
	TypeAutomount Type = "automount"
	TypeSwap      Type = "swap"
	TypeTarget    Type = "target"
	TypePath      Type = "path"
	TypeTimer     Type = "timer"
	TypeSlice     Type = "slice"
	TypeScope     Type = "scope"
)

// AllTypes lists every recognized unit type, in the order they appear in
// §3.1.
var AllTypes = []Type{
	TypeService, TypeSocket, TypeDevice, TypeMount, TypeAutomount,
	TypeSwap, TypeTarget, TypePath, TypeTimer, TypeSlice, TypeScope,
}

// suffixToType and typeToSuffix are derived from AllTypes; the unit suffix
// on disk is always "."+string(Type).
var (
	suffixToType = func() map[string]Type {
		m := make(map[string]Type, len(AllTypes))
		for _, t := range AllTypes {
			m["."+string(t)] = t
		}
		return m
	}()
)

// Suffix returns the filename suffix for a unit type, e.g. ".service".
func (t Type) Suffix() string { return "." + string(t) }

// TypeFromSuffix returns the Type matching a filename suffix such as
// ".service", and whether it was recognized.
func TypeFromSuffix(suffix string) (Type, bool) {
	t, ok := suffixToType[suffix]
	return t, ok
}

// TypeFromName returns the Type matching a bare type name such as
// "service" (no leading dot), as used in a top-level "<type>.d" drop-in
// directory name.
func TypeFromName(name string) (Type, bool) {
	return TypeFromSuffix("." + name)
}

// HasRecognizedSuffix reports whether s ends in a suffix matching a known
// unit type, e.g. "foo.service" or "foo@bar.timer".
func HasRecognizedSuffix(s string) bool {
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return false
	}
	_, ok := TypeFromSuffix(s[dot:])
	return ok
}

// Identity is a parsed canonical unit name: <prefix>[@<instance>].<type>.
type Identity struct {
	Prefix   string
	Instance string // "" for a non-templated unit or a template itself
	Type     Type
}

// IsTemplate reports whether the identity's instance is empty. Identity does
// not record whether the parsed name contained an "@", so a plain unit
// (foo.service) reports true just like a template (foo@.service); only a
// template instance (foo@bar.service) reports false. ParseIdentity's
// isTemplate result is what tells a template from a plain unit.
func (id Identity) IsTemplate() bool {
	return strings.Contains(id.rawPrefixInstance(), "@") && id.Instance == ""
}

// rawPrefixInstance renders "prefix@instance", or "prefix@" when Instance is
// empty; the result always contains an "@".
func (id Identity) rawPrefixInstance() string {
	if id.Instance != "" {
		return id.Prefix + "@" + id.Instance
	}
	return id.Prefix + "@"
}

// CanonicalName reconstructs the canonical name string from an Identity.
func (id Identity) CanonicalName() string {
	if id.Instance != "" {
		return fmt.Sprintf("%s@%s%s", id.Prefix, id.Instance, id.Type.Suffix())
	}
	return id.Prefix + id.Type.Suffix()
}

// ParseIdentity parses a canonical unit name into prefix, instance and type.
// It returns ok=false if name does not end in a recognized unit suffix.
// isTemplate is true when an "@" was present with an empty instance
// (foo@.service); it is false for both plain units and instances.
func ParseIdentity(name string) (id Identity, isTemplate bool, ok bool) {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return Identity{}, false, false
	}
	suffix := name[dot:]
	t, recognized := TypeFromSuffix(suffix)
	if !recognized {
		return Identity{}, false, false
	}

	base := name[:dot]
	at := strings.IndexByte(base, '@')
	if at < 0 {
		return Identity{Prefix: base, Type: t}, false, true
	}

	prefix := base[:at]
	instance := base[at+1:]
	id = Identity{Prefix: prefix, Instance: instance, Type: t}
	return id, instance == "", true
}

// TemplateName returns the canonical name of the template that would
// generate an instance identity, e.g. "foo@bar.service" -> "foo@.service".
func (id Identity) TemplateName() string {
	return id.Prefix + "@" + id.Type.Suffix()
}

// Edge is one relation between two units, as recorded in both the master
// structure and, if reachable, the dependency map.
type Edge struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Kind    string `json:"kind"`
	Origin  string `json:"origin"`
	Section string `json:"section"`
}

// Relation kind constants (§3.3). Values are the literal directive/fact name
// as it would appear in a unit file or systemctl output.
const (
	RelWants              = "Wants"
	RelRequires           = "Requires"
	RelRequisite          = "Requisite"
	RelBindsTo            = "BindsTo"
	RelPartOf             = "PartOf"
	RelUpholds            = "Upholds"
	RelConflicts          = "Conflicts"
	RelOnFailure          = "OnFailure"
	RelOnSuccess          = "OnSuccess"
	RelPropagatesReloadTo = "PropagatesReloadTo"
	RelPropagatesStopTo   = "PropagatesStopTo"
	RelJoinsNamespaceOf   = "JoinsNamespaceOf"
	RelTriggers           = "Triggers"

	RelRequiredBy            = "RequiredBy"
	RelWantedBy              = "WantedBy"
	RelBoundBy               = "BoundBy"
	RelConsistsOf            = "ConsistsOf"
	RelUpheldBy              = "UpheldBy"
	RelRequisiteOf           = "RequisiteOf"
	RelReloadPropagatedFrom  = "ReloadPropagatedFrom"
	RelStopPropagatedFrom    = "StopPropagatedFrom"
	RelTriggeredBy           = "TriggeredBy"
	RelTriggeredByOnFailure  = "TriggeredByOnFailure"
	RelTriggeredByOnSuccess  = "TriggeredByOnSuccess"

	RelBefore = "Before"
	RelAfter  = "After"

	RelAliasedBy = "aliased_by"
	RelAliasOf   = "alias_of"
)

// reverseOf maps a forward requirement relation to its reverse-direction
// fact, per the table in §4.F. Conflicts is symmetric and is handled
// specially by callers (recorded on both sides under the same key).
var reverseOf = map[string]string{
	RelWants:              RelWantedBy,
	RelRequires:           RelRequiredBy,
	RelRequisite:          RelRequisiteOf,
	RelBindsTo:            RelBoundBy,
	RelPartOf:             RelConsistsOf,
	RelUpholds:            RelUpheldBy,
	RelPropagatesReloadTo: RelReloadPropagatedFrom,
	RelPropagatesStopTo:   RelStopPropagatedFrom,
	RelTriggers:           RelTriggeredBy,
	RelOnFailure:          RelTriggeredByOnFailure,
	RelOnSuccess:          RelTriggeredByOnSuccess,
}

// ReverseRelation returns the reverse-direction relation kind for a forward
// requirement relation, and whether one is defined. Note: the spec text
// (§3.3) additionally lists a bare "PartOf⁻¹" alongside ConsistsOf; §4.F
// defines PartOf's reverse as ConsistsOf, so this implementation treats
// "PartOf⁻¹" and ConsistsOf as the same relation rather than emitting a
// redundant extra edge kind (see DESIGN.md Open Question (OQ-1)).
func ReverseRelation(kind string) (string, bool) {
	rev, ok := reverseOf[kind]
	return rev, ok
}

// RequirementKinds lists every requirement-class relation kind that can
// appear as a forward directive in a unit file (i.e. excludes the
// reverse-only facts and Conflicts' own reverse, which is itself).
var RequirementKinds = []string{
	RelWants, RelRequires, RelRequisite, RelBindsTo, RelPartOf, RelUpholds,
	RelConflicts, RelOnFailure, RelOnSuccess, RelPropagatesReloadTo,
	RelPropagatesStopTo, RelJoinsNamespaceOf,
}

// ClosureKinds lists the relation kinds the dependency resolver (§4.H step
// 4) follows when expanding the frontier from a reached unit.
var ClosureKinds = []string{
	RelWants, RelRequires, RelRequisite, RelBindsTo, RelUpholds, RelPartOf,
	RelTriggers, RelOnFailure, RelOnSuccess, RelPropagatesReloadTo,
	RelPropagatesStopTo, RelBefore, RelAfter,
}

// PullKinds is ClosureKinds minus the ordering relations: following one of
// these edges is what actually enqueues a new unit into the dependency map
// (§8.2 property 4 — ordering-only edges never pull a unit in).
var PullKinds = []string{
	RelWants, RelRequires, RelRequisite, RelBindsTo, RelUpholds, RelPartOf,
	RelTriggers, RelOnFailure, RelOnSuccess, RelPropagatesReloadTo,
	RelPropagatesStopTo,
}

// ReverseKinds lists every reverse-direction fact name (the values of
// ReverseRelation), used by the dependency resolver to pick out a unit's
// "backward" edges.
var ReverseKinds = []string{
	RelRequiredBy, RelWantedBy, RelRequisiteOf, RelBoundBy, RelConsistsOf,
	RelUpheldBy, RelReloadPropagatedFrom, RelStopPropagatedFrom,
	RelTriggeredBy, RelTriggeredByOnFailure, RelTriggeredByOnSuccess,
}

// DirectiveOrigin records whether a directive's value came from a unit file
// on disk or was synthesized by the implicit-dependency injector.
type DirectiveOrigin struct {
	Explicit   bool        `json:"explicit"`
	Source     string      `json:"source"`
	Enrichment *Enrichment `json:"enrichment,omitempty"`
}

// Enrichment carries the optional binary-inspection results attached to an
// Exec*= directive's origin by the artifact enricher hook.
type Enrichment struct {
	ExecutablePath string   `json:"executable_path,omitempty"`
	Libraries      []string `json:"libraries,omitempty"`
	Strings        []string `json:"strings,omitempty"`
	FileHash       string   `json:"file_hash,omitempty"`
}

// Record is the effective, fully-merged record of one unit in the MS.
type Record struct {
	CanonicalName string `json:"canonical_name"`
	Type          Type   `json:"type"`
	SourcePath    string `json:"source_path,omitempty"`
	IsTemplate    bool   `json:"is_template"`
	InstanceName  string `json:"instance_name,omitempty"`

	Aliases      []string `json:"aliases"`
	Dropins      []string `json:"dropins"`
	OverriddenBy []string `json:"overridden_by,omitempty"`

	// Directives: section -> key -> ordered values.
	Directives map[string]map[string][]string `json:"directives"`
	// DirectiveOrigins: "Section.Key" -> origin.
	DirectiveOrigins map[string]DirectiveOrigin `json:"directive_origins,omitempty"`

	// Relations: relation kind -> ordered set of target canonical names.
	Relations map[string][]string `json:"relations"`
	// Edges carries the full edge records (with origin/section), needed by
	// the dependency resolver to reproduce provenance in the DM.
	Edges []Edge `json:"-"`

	NotFound bool `json:"not_found,omitempty"`
	Masked   bool `json:"masked,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// NewRecord returns an empty Record for canonical name id.
func NewRecord(id Identity, isTemplate bool) *Record {
	return &Record{
		CanonicalName: id.CanonicalName(),
		Type:          id.Type,
		IsTemplate:    isTemplate,
		InstanceName:  id.Instance,
		Directives:    make(map[string]map[string][]string),
		Relations:     make(map[string][]string),
	}
}

// AddEdge appends an edge kind->target onto the record's Relations and Edges
// lists, de-duplicating repeated (kind, target) pairs so the ordered set
// semantics of §3.3 hold.
func (r *Record) AddEdge(e Edge) {
	targets := r.Relations[e.Kind]
	for _, existing := range targets {
		if existing == e.Target {
			return
		}
	}
	r.Relations[e.Kind] = append(targets, e.Target)
	r.Edges = append(r.Edges, e)
}

// SetDirectives replaces the record's merged directive table and records
// per-key origins, deriving Explicit from whether the origin string begins
// with "implicit:".
func (r *Record) SetDirectives(sections map[string]map[string][]string, origins map[string]string) {
	r.Directives = sections
	r.DirectiveOrigins = make(map[string]DirectiveOrigin, len(origins))
	for key, origin := range origins {
		parts := strings.SplitN(key, "\x00", 2)
		if len(parts) != 2 {
			continue
		}
		label := parts[0] + "." + parts[1]
		r.DirectiveOrigins[label] = DirectiveOrigin{
			Explicit: !strings.HasPrefix(origin, "implicit:"),
			Source:   origin,
		}
	}
}

// Values returns the accumulated values for a section/key, or nil.
func (r *Record) Values(section, key string) []string {
	if r.Directives == nil {
		return nil
	}
	return r.Directives[section][key]
}

// Prefix returns the name prefix of the record's canonical name (the part
// before any "@instance" and before the type suffix), used by the
// implicit-dependency injector to guess a unit's conventionally-matched
// counterpart (e.g. a socket's service).
func (r *Record) Prefix() string {
	id, _, ok := ParseIdentity(r.CanonicalName)
	if !ok {
		return r.CanonicalName
	}
	return id.Prefix
}

// First returns the first value for a section/key, or "".
func (r *Record) First(section, key string) string {
	vs := r.Values(section, key)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Meta carries top-level run metadata shared by both artifact documents.
type Meta struct {
	RootPath    string   `json:"root_path"`
	GeneratedAt string   `json:"generated_at"`
	ToolVersion string   `json:"tool_version"`
	RunID       string   `json:"run_id,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// MasterStruct is the canonical, alias-resolved, drop-in-merged,
// implicit-enriched unit graph (§3.4).
type MasterStruct struct {
	Units map[string]*Record `json:"units"`
	Meta  Meta                `json:"meta"`
}

// NewMasterStruct returns an empty MasterStruct.
func NewMasterStruct() *MasterStruct {
	return &MasterStruct{Units: make(map[string]*Record)}
}

// Get returns the record for canonical name, or nil.
func (ms *MasterStruct) Get(name string) *Record {
	return ms.Units[name]
}

// EnsureSynthetic returns the existing record for name, or creates and
// stores a synthetic not_found record for it (§3.4 invariant 2: every
// referenced target must exist as a key, even if not found on disk).
func (ms *MasterStruct) EnsureSynthetic(name string) *Record {
	if r, ok := ms.Units[name]; ok {
		return r
	}
	id, isTemplate, ok := ParseIdentity(name)
	if !ok {
		// Can't even classify the type; fall back to a bare record keyed by
		// the raw name so the MS keys invariant still holds.
		r := &Record{CanonicalName: name, NotFound: true, Directives: map[string]map[string][]string{}, Relations: map[string][]string{}}
		ms.Units[name] = r
		return r
	}
	r := NewRecord(id, isTemplate)
	r.NotFound = true
	ms.Units[name] = r
	return r
}

// SortedNames returns every canonical name in the MS, sorted ascending, for
// deterministic iteration during serialization or traversal.
func (ms *MasterStruct) SortedNames() []string {
	names := make([]string, 0, len(ms.Units))
	for name := range ms.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
