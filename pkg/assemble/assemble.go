// Package assemble implements the Master-Struct Assembler (§4.G): it wires
// together Unit Discovery, the Drop-in Merger, the Alias & Template Engine
// and the Unit File Lexer to produce the canonical master structure (MS).
package assemble

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/initgraph/unittree/pkg/discovery"
	"github.com/initgraph/unittree/pkg/dropin"
	"github.com/initgraph/unittree/pkg/enrich"
	"github.com/initgraph/unittree/pkg/errs"
	"github.com/initgraph/unittree/pkg/pathresolver"
	"github.com/initgraph/unittree/pkg/specifier"
	"github.com/initgraph/unittree/pkg/units"
)

// explicitRelationKeys lists the [Unit] section keys read as relation
// directives, in the order §3.3 enumerates them.
var explicitRelationKeys = append(append([]string{}, units.RequirementKinds...), units.RelBefore, units.RelAfter, units.RelTriggers)

// pendingAlias is a symlink winner that resolved (successfully, danglingly,
// or by escaping root) to some target name, queued for processing once
// every primary unit record has been created.
type pendingAlias struct {
	aliasPath string
	aliasName string
	targetRaw string // best-effort target basename, for dangling/escaping
	resolved  string // resolved absolute path, when not dangling/escaping
	dangling  bool
}

// Build runs Unit Discovery, then assembles the master structure for
// filesystem root, enriching Exec*= command lines with a sha256 file hash.
// log receives per-unit recoverable diagnostics.
func Build(root string, log logrus.FieldLogger) (*units.MasterStruct, error) {
	return BuildWithEnricher(root, log, enrich.HashOnly{Root: root})
}

// BuildWithEnricher is Build with an explicit enricher hook; pass nil to
// disable enrichment entirely (§6.5: absence of a hook yields empty
// enrichment).
func BuildWithEnricher(root string, log logrus.FieldLogger, hook enrich.Enricher) (*units.MasterStruct, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	info, statErr := os.Stat(root)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, &errs.RootNotFoundError{Root: root}
		}
		return nil, &errs.RootInaccessibleError{Root: root, Err: statErr}
	}
	if !info.IsDir() {
		return nil, &errs.RootInaccessibleError{Root: root, Err: os.ErrInvalid}
	}

	searchPaths, err := pathresolver.Resolve(root)
	if err != nil {
		return nil, &errs.RootInaccessibleError{Root: root, Err: err}
	}

	disc, err := discovery.Walk(root, searchPaths, log)
	if err != nil {
		return nil, err
	}

	return AssembleFromDiscoveryWithEnricher(root, disc, log, hook), nil
}

// AssembleFromDiscovery builds an MS from an already-computed discovery
// result, so callers (and tests) can drive Unit Discovery and assembly
// separately. Runs with no enricher hook.
func AssembleFromDiscovery(root string, disc *discovery.Result, log logrus.FieldLogger) *units.MasterStruct {
	return AssembleFromDiscoveryWithEnricher(root, disc, log, nil)
}

// AssembleFromDiscoveryWithEnricher is AssembleFromDiscovery with an
// explicit enricher hook.
func AssembleFromDiscoveryWithEnricher(root string, disc *discovery.Result, log logrus.FieldLogger, hook enrich.Enricher) *units.MasterStruct {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &assembler{root: root, disc: disc, log: log, ms: units.NewMasterStruct(), aliasNamesOf: map[string][]string{}, enricher: hook}

	a.buildPrimaryRecords()
	a.resolveAliases()
	a.mergeDirectives()
	a.buildWantsRequiresDirs()
	a.buildExplicitRelations()

	a.ms.Meta = units.Meta{
		RootPath: root,
		Warnings: append([]string{errs.Format(errs.CodeGeneratorsOmitted, "/run/systemd/generator*/ is not enumerated")}, a.warnings...),
	}
	return a.ms
}

type assembler struct {
	root string
	disc *discovery.Result
	log  logrus.FieldLogger
	ms   *units.MasterStruct

	// basePath/overriddenBy are keyed by canonical name for every "real"
	// (non-alias) unit discovered: either a regular unit file winner, or a
	// masked-symlink winner.
	basePath     map[string]string
	overriddenBy map[string][]string

	// aliasNamesOf maps a target canonical name to the basenames of every
	// alias that legally resolves to it, needed so alias drop-ins
	// (§4.D step 4) get merged in.
	aliasNamesOf map[string][]string

	// pending holds every alias-producing symlink winner queued by
	// buildPrimaryRecords for processing in resolveAliases.
	pending []pendingAlias

	enricher enrich.Enricher

	warnings []string
}

func (a *assembler) warn(code, detail string) {
	msg := errs.Format(code, detail)
	a.warnings = append(a.warnings, msg)
	a.log.Warn(msg)
}

// winner is the single highest-precedence entry for a basename, chosen by
// pickWinner across both unit-file and symlink candidates.
type winner struct {
	isSymlink bool
	file      discovery.UnitFileCandidate
	link      discovery.SymlinkCandidate
	precedence int
	overridden []string
}

func (a *assembler) pickWinner(name string) winner {
	files := a.disc.UnitFiles[name]
	links := a.disc.Symlinks[name]

	type entry struct {
		precedence int
		isSymlink  bool
		file       discovery.UnitFileCandidate
		link       discovery.SymlinkCandidate
		path       string
	}
	var all []entry
	for _, f := range files {
		all = append(all, entry{precedence: f.Precedence, file: f, path: f.Path})
	}
	for _, l := range links {
		all = append(all, entry{precedence: l.Precedence, isSymlink: true, link: l, path: l.Path})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].precedence < all[j].precedence })

	w := winner{isSymlink: all[0].isSymlink, file: all[0].file, link: all[0].link, precedence: all[0].precedence}
	for _, e := range all[1:] {
		w.overridden = append(w.overridden, e.path)
	}
	return w
}

func (a *assembler) allBasenames() []string {
	seen := map[string]bool{}
	var names []string
	for n := range a.disc.UnitFiles {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for n := range a.disc.Symlinks {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// buildPrimaryRecords creates a Record for every real (file-backed or
// masked) unit, and queues every alias-producing symlink for later
// resolution.
func (a *assembler) buildPrimaryRecords() {
	a.basePath = map[string]string{}
	a.overriddenBy = map[string][]string{}

	var pending []pendingAlias

	for _, name := range a.allBasenames() {
		if !units.HasRecognizedSuffix(name) {
			continue
		}
		w := a.pickWinner(name)

		if !w.isSymlink {
			a.createRecord(name, w.file.Path, false)
			a.overriddenBy[name] = w.overridden
			continue
		}

		link := w.link
		if link.Masked {
			a.createRecord(name, link.Path, true)
			a.overriddenBy[name] = w.overridden
			continue
		}

		pa := pendingAlias{aliasPath: link.Path, aliasName: name, dangling: link.Dangling || link.Escaping}
		if pa.dangling {
			pa.targetRaw = filepath.Base(link.RawTarget)
		} else {
			pa.resolved = link.ResolvedPath
		}
		pending = append(pending, pa)
		a.overriddenBy[name] = w.overridden
	}

	a.pending = pending
}

func (a *assembler) createRecord(name, path string, masked bool) {
	id, isTemplate, ok := units.ParseIdentity(name)
	if !ok {
		return
	}
	r := units.NewRecord(id, isTemplate)
	r.SourcePath = path
	r.Masked = masked
	a.ms.Units[name] = r
	a.basePath[name] = path
}

// resolveAliases processes the pending alias-producing symlinks queued by
// buildPrimaryRecords.
func (a *assembler) resolveAliases() {
	for _, pa := range a.pending {
		var targetName string
		if pa.dangling {
			if pa.targetRaw == "" || !units.HasRecognizedSuffix(pa.targetRaw) {
				a.warn(errs.CodeDanglingSymlink, pa.aliasPath)
				continue
			}
			targetName = pa.targetRaw
		} else {
			targetName = filepath.Base(pa.resolved)
			if !units.HasRecognizedSuffix(targetName) {
				a.warn(errs.CodeBadAlias, pa.aliasPath+": resolved target has no recognized unit suffix")
				continue
			}
		}

		if ok, reason := specifier.CheckAliasLegality(pa.aliasName, targetName); !ok {
			a.warn(errs.CodeBadAlias, pa.aliasPath+": "+reason)
			continue
		}

		if _, exists := a.ms.Units[targetName]; !exists {
			if pa.dangling {
				rec := a.ms.EnsureSynthetic(targetName)
				rec.NotFound = true
			} else {
				// Target exists on disk but wasn't a discovered winner
				// (e.g. it lives outside every search path, or was
				// shadowed). Register it with what we know.
				a.createRecord(targetName, pa.resolved, false)
			}
		}

		target := a.ms.Units[targetName]
		target.Aliases = append(target.Aliases, pa.aliasPath)
		target.AddEdge(units.Edge{Source: targetName, Target: pa.aliasName, Kind: units.RelAliasedBy, Origin: pa.aliasPath, Section: ""})
		a.aliasNamesOf[targetName] = append(a.aliasNamesOf[targetName], pa.aliasName)
	}

	for name, r := range a.ms.Units {
		sort.Strings(r.Aliases)
		sort.Strings(a.aliasNamesOf[name])
	}
}

// mergeDirectives runs the drop-in merger and unit-file lexer for every
// real (non-masked, non-synthetic) unit record. Template instances are not
// handled here: resolveTarget synthesizes them later and applies specifier
// expansion to the template's merged directives.
func (a *assembler) mergeDirectives() {
	for _, name := range a.ms.SortedNames() {
		r := a.ms.Get(name)
		if r.NotFound {
			continue
		}
		r.OverriddenBy = a.overriddenBy[name]
		if r.Masked {
			continue
		}
		basePath := a.basePath[name]
		if basePath == "" {
			continue
		}

		merged := dropin.Merge(r.Type, name, basePath, a.aliasNamesOf[name], a.disc, a.log)
		for _, w := range merged.Warnings {
			a.warnings = append(a.warnings, w)
		}
		r.SetDirectives(merged.Directives.Sections, merged.Directives.Origins)
		r.Dropins = merged.DropinPaths
		enrich.Apply(a.enricher, a.root, r)
	}
}

// buildWantsRequiresDirs turns every discovered *.wants/*.requires
// directory into an implicit Wants=/Requires= relation on the owning unit
// (§4.C), resolving template instantiation on demand via resolveTarget.
func (a *assembler) buildWantsRequiresDirs() {
	apply := func(dirs []discovery.GeneratedDir, kind string) {
		for _, gd := range dirs {
			owner := a.resolveTarget(gd.Owner)
			if owner == nil {
				continue
			}
			for _, member := range gd.Members {
				if !units.HasRecognizedSuffix(member) {
					continue
				}
				a.addEdge(owner, kind, member, "unit-dir:"+gd.Path)
			}
		}
	}
	apply(a.disc.WantsDirs, units.RelWants)
	apply(a.disc.RequiresDirs, units.RelRequires)
}

// buildExplicitRelations reads the relation-kind directives out of every
// real unit's merged [Unit] section and records the corresponding edges.
func (a *assembler) buildExplicitRelations() {
	for _, name := range a.ms.SortedNames() {
		r := a.ms.Get(name)
		if r.NotFound {
			continue
		}
		for _, key := range explicitRelationKeys {
			for _, value := range r.Values("Unit", key) {
				for _, target := range strings.Fields(value) {
					origin := r.DirectiveOrigins["Unit."+key].Source
					a.addEdge(r, key, target, origin)
				}
			}
		}
	}
}

// addEdge records a forward edge plus, where §3.3/§4.F define one, its
// reverse — resolving the target through template instantiation if it
// names an instance of a known template.
func (a *assembler) addEdge(r *units.Record, kind, targetName, origin string) {
	target := a.resolveTarget(targetName)
	canonical := targetName
	if target != nil {
		canonical = target.CanonicalName
	}

	r.AddEdge(units.Edge{Source: r.CanonicalName, Target: canonical, Kind: kind, Origin: origin, Section: "Unit"})

	if target == nil {
		target = a.ms.EnsureSynthetic(canonical)
	}
	if rev, ok := units.ReverseRelation(kind); ok {
		target.AddEdge(units.Edge{Source: canonical, Target: r.CanonicalName, Kind: rev, Origin: origin, Section: "Unit"})
	} else if kind == units.RelConflicts {
		target.AddEdge(units.Edge{Source: canonical, Target: r.CanonicalName, Kind: units.RelConflicts, Origin: origin, Section: "Unit"})
	}
}

// resolveTarget returns the record for name, synthesizing a template
// instance on demand (§4.E) when name is an instance of a known template
// and no file-backed unit of that exact name was discovered.
func (a *assembler) resolveTarget(name string) *units.Record {
	if r, ok := a.ms.Units[name]; ok {
		return r
	}
	id, isTemplate, ok := units.ParseIdentity(name)
	if !ok || isTemplate || id.Instance == "" {
		return nil
	}
	tmpl, ok := a.ms.Units[id.TemplateName()]
	if !ok || tmpl.NotFound {
		return nil
	}

	inst := units.NewRecord(id, false)
	inst.SourcePath = tmpl.SourcePath
	expanded := specifier.ExpandAll(tmpl.Directives, id, a.warn)
	inst.SetDirectives(expanded, originsToRawKeys(tmpl.DirectiveOrigins))
	inst.Dropins = append([]string{}, tmpl.Dropins...)
	enrich.Apply(a.enricher, a.root, inst)
	a.ms.Units[name] = inst
	return inst
}

// originsToRawKeys converts a Record's dot-keyed DirectiveOrigins back into
// the "\x00"-keyed format SetDirectives expects, so a synthesized template
// instance can carry forward the template's provenance.
func originsToRawKeys(do map[string]units.DirectiveOrigin) map[string]string {
	out := make(map[string]string, len(do))
	for label, o := range do {
		idx := strings.IndexByte(label, '.')
		if idx < 0 {
			continue
		}
		out[label[:idx]+"\x00"+label[idx+1:]] = o.Source
	}
	return out
}
