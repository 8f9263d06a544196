// Package implicit injects the default and type-specific implicit
// dependencies systemd adds to every unit at load time (§4.F), after
// explicit directives and relations have been assembled into the master
// structure.
package implicit

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/initgraph/unittree/pkg/units"
)

const (
	ruleServiceDefault   = "service-default"
	ruleSocketDefault    = "socket-default"
	ruleMountDefault     = "mount-default"
	ruleAutomountDefault = "automount-default"
	ruleSwapDefault      = "swap-default"
	ruleTargetDefault    = "target-default"
	rulePathDefault      = "path-default"
	ruleTimerDefault     = "timer-default"
	ruleSliceDefault     = "slice-default"
	ruleScopeDefault     = "scope-default"
	ruleRequiresMounts   = "requires-mounts-for"
)

// Inject walks every unit in ms in a deterministic (sorted) order and adds
// the implicit edges described by §4.F's table, plus the reverse edges
// required by the mapping at the end of §4.F.
func Inject(ms *units.MasterStruct, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	inj := &injector{ms: ms, log: log}

	for _, name := range ms.SortedNames() {
		r := ms.Get(name)
		if r == nil || r.NotFound {
			continue
		}
		inj.injectUnit(r)
	}
}

type injector struct {
	ms  *units.MasterStruct
	log logrus.FieldLogger
}

func (inj *injector) defaultDependencies(r *units.Record) bool {
	return r.First("Unit", "DefaultDependencies") != "no"
}

// add records a forward edge from r with origin implicit:ruleID, and the
// corresponding reverse edge on the target (creating a synthetic record if
// the target is not otherwise present).
func (inj *injector) add(r *units.Record, kind, target, ruleID string) {
	if target == r.CanonicalName {
		return
	}
	origin := "implicit:" + ruleID
	r.AddEdge(units.Edge{Source: r.CanonicalName, Target: target, Kind: kind, Origin: origin, Section: "Unit"})

	targetRec := inj.ms.EnsureSynthetic(target)
	if rev, ok := units.ReverseRelation(kind); ok {
		targetRec.AddEdge(units.Edge{Source: target, Target: r.CanonicalName, Kind: rev, Origin: origin, Section: "Unit"})
	} else if kind == units.RelConflicts {
		targetRec.AddEdge(units.Edge{Source: target, Target: r.CanonicalName, Kind: units.RelConflicts, Origin: origin, Section: "Unit"})
	}
}

// addOrdering records a Before or After edge with no reverse fact (ordering
// relations have no inverse name in §3.3).
func (inj *injector) addOrdering(r *units.Record, kind, target, ruleID string) {
	if target == r.CanonicalName {
		return
	}
	origin := "implicit:" + ruleID
	r.AddEdge(units.Edge{Source: r.CanonicalName, Target: target, Kind: kind, Origin: origin, Section: "Unit"})
	inj.ms.EnsureSynthetic(target)
}

func (inj *injector) requireAndAfter(r *units.Record, target, ruleID string) {
	inj.add(r, units.RelRequires, target, ruleID)
	inj.addOrdering(r, units.RelAfter, target, ruleID)
}

func (inj *injector) bindsAndAfter(r *units.Record, target, ruleID string) {
	inj.add(r, units.RelBindsTo, target, ruleID)
	inj.addOrdering(r, units.RelAfter, target, ruleID)
}

func (inj *injector) conflictsAndBefore(r *units.Record, target, ruleID string) {
	inj.add(r, units.RelConflicts, target, ruleID)
	inj.addOrdering(r, units.RelBefore, target, ruleID)
}

func hasNofail(r *units.Record) bool {
	for _, opt := range r.Values("Mount", "Options") {
		for _, o := range strings.Split(opt, ",") {
			if strings.TrimSpace(o) == "nofail" {
				return true
			}
		}
	}
	return false
}

func (inj *injector) injectUnit(r *units.Record) {
	inj.injectRequiresMountsFor(r)

	switch r.Type {
	case units.TypeService:
		inj.injectService(r)
	case units.TypeSocket:
		inj.injectSocket(r)
	case units.TypeMount:
		inj.injectMount(r)
	case units.TypeAutomount:
		inj.injectAutomount(r)
	case units.TypeSwap:
		inj.injectSwap(r)
	case units.TypeTarget:
		inj.injectTarget(r)
	case units.TypePath:
		inj.injectPath(r)
	case units.TypeTimer:
		inj.injectTimer(r)
	case units.TypeSlice:
		inj.injectSlice(r)
	case units.TypeScope:
		inj.injectScope(r)
	case units.TypeDevice:
		// No default or type-specific implicit edges (§4.F table).
	}
}

func (inj *injector) injectService(r *units.Record) {
	if inj.defaultDependencies(r) {
		inj.requireAndAfter(r, "sysinit.target", ruleServiceDefault)
		inj.addOrdering(r, units.RelAfter, "basic.target", ruleServiceDefault)
		inj.conflictsAndBefore(r, "shutdown.target", ruleServiceDefault)
	}
	if r.First("Service", "Type") == "dbus" {
		inj.requireAndAfter(r, "dbus.socket", ruleServiceDefault)
	}
	for _, sock := range r.Values("Service", "Sockets") {
		for _, name := range strings.Fields(sock) {
			inj.add(r, units.RelWants, name, ruleServiceDefault)
			inj.addOrdering(r, units.RelAfter, name, ruleServiceDefault)
		}
	}
	// Any socket unit whose conventional name matches this service's
	// prefix socket-activates it, even without an explicit Sockets=.
	if sockName := r.Prefix() + ".socket"; inj.ms.Get(sockName) != nil {
		inj.addOrdering(r, units.RelAfter, sockName, ruleServiceDefault)
	}
}

func (inj *injector) injectSocket(r *units.Record) {
	inj.addOrdering(r, units.RelBefore, "sockets.target", ruleSocketDefault)
	if inj.defaultDependencies(r) {
		inj.requireAndAfter(r, "sysinit.target", ruleSocketDefault)
		inj.conflictsAndBefore(r, "shutdown.target", ruleSocketDefault)
	}
	if svcName := r.Prefix() + ".service"; inj.ms.Get(svcName) != nil {
		inj.addOrdering(r, units.RelBefore, svcName, ruleSocketDefault)
		inj.add(r, units.RelTriggers, svcName, ruleSocketDefault)
	}
	for _, key := range []string{"ListenStream", "ListenDatagram"} {
		for _, v := range r.Values("Socket", key) {
			if !strings.HasPrefix(v, "/") {
				continue
			}
			if mount := inj.longestMountPrefix(v); mount != "" {
				inj.requireAndAfter(r, mount, ruleSocketDefault)
			}
		}
	}
	if dev := r.First("Socket", "BindToDevice"); dev != "" {
		inj.bindsAndAfter(r, deviceUnitName(dev), ruleSocketDefault)
	}
}

func (inj *injector) injectMount(r *units.Record) {
	inj.add(r, units.RelConflicts, "umount.target", ruleMountDefault)
	inj.addOrdering(r, units.RelBefore, "umount.target", ruleMountDefault)

	if isNetworkMount(r) {
		inj.addOrdering(r, units.RelAfter, "remote-fs-pre.target", ruleMountDefault)
		inj.addOrdering(r, units.RelAfter, "network.target", ruleMountDefault)
		inj.addOrdering(r, units.RelAfter, "network-online.target", ruleMountDefault)
		if !hasNofail(r) {
			inj.addOrdering(r, units.RelBefore, "remote-fs.target", ruleMountDefault)
		}
	} else {
		inj.addOrdering(r, units.RelAfter, "local-fs-pre.target", ruleMountDefault)
		if !hasNofail(r) {
			inj.addOrdering(r, units.RelBefore, "local-fs.target", ruleMountDefault)
		}
	}

	where := r.First("Mount", "Where")
	if parent := inj.longestMountPrefix(parentDir(where)); parent != "" {
		inj.requireAndAfter(r, parent, ruleMountDefault)
	}
	if what := r.First("Mount", "What"); strings.HasPrefix(what, "/dev/") {
		inj.bindsAndAfter(r, deviceUnitName(what), ruleMountDefault)
	}
}

func (inj *injector) injectAutomount(r *units.Record) {
	inj.add(r, units.RelConflicts, "umount.target", ruleAutomountDefault)
	inj.addOrdering(r, units.RelBefore, "umount.target", ruleAutomountDefault)
	inj.addOrdering(r, units.RelAfter, "local-fs-pre.target", ruleAutomountDefault)
	inj.addOrdering(r, units.RelBefore, "local-fs.target", ruleAutomountDefault)

	where := r.First("Automount", "Where")
	if parent := inj.longestMountPrefix(parentDir(where)); parent != "" {
		inj.requireAndAfter(r, parent, ruleAutomountDefault)
	}
	if mountName := strings.TrimSuffix(r.CanonicalName, ".automount") + ".mount"; inj.ms.Get(mountName) != nil {
		inj.addOrdering(r, units.RelBefore, mountName, ruleAutomountDefault)
	}
}

func (inj *injector) injectSwap(r *units.Record) {
	inj.add(r, units.RelConflicts, "umount.target", ruleSwapDefault)
	inj.addOrdering(r, units.RelBefore, "umount.target", ruleSwapDefault)
	inj.addOrdering(r, units.RelBefore, "swap.target", ruleSwapDefault)

	if what := r.First("Swap", "What"); strings.HasPrefix(what, "/dev/") {
		inj.bindsAndAfter(r, deviceUnitName(what), ruleSwapDefault)
	} else if what != "" {
		if mount := inj.longestMountPrefix(what); mount != "" {
			inj.bindsAndAfter(r, mount, ruleSwapDefault)
		}
	}
}

func (inj *injector) injectTarget(r *units.Record) {
	for _, kind := range []string{units.RelWants, units.RelRequires} {
		for _, target := range r.Relations[kind] {
			inj.addOrdering(r, units.RelAfter, target, ruleTargetDefault)
		}
	}
	if inj.defaultDependencies(r) {
		inj.conflictsAndBefore(r, "shutdown.target", ruleTargetDefault)
	}
}

func (inj *injector) injectPath(r *units.Record) {
	inj.addOrdering(r, units.RelBefore, "paths.target", rulePathDefault)
	if inj.defaultDependencies(r) {
		inj.requireAndAfter(r, "sysinit.target", rulePathDefault)
		inj.conflictsAndBefore(r, "shutdown.target", rulePathDefault)
	}
	for _, key := range []string{"PathExists", "PathChanged", "PathModified", "DirectoryNotEmpty"} {
		for _, v := range r.Values("Path", key) {
			if parent := inj.longestMountPrefix(parentDir(v)); parent != "" {
				inj.requireAndAfter(r, parent, rulePathDefault)
			}
		}
	}
	if svcName := r.Prefix() + ".service"; inj.ms.Get(svcName) != nil {
		inj.addOrdering(r, units.RelBefore, svcName, rulePathDefault)
		inj.add(r, units.RelTriggers, svcName, rulePathDefault)
	}
}

func (inj *injector) injectTimer(r *units.Record) {
	if inj.defaultDependencies(r) {
		inj.requireAndAfter(r, "sysinit.target", ruleTimerDefault)
		inj.conflictsAndBefore(r, "shutdown.target", ruleTimerDefault)
	}
	inj.addOrdering(r, units.RelBefore, "timers.target", ruleTimerDefault)

	triggered := r.First("Timer", "Unit")
	if triggered == "" {
		triggered = r.Prefix() + ".service"
	}
	inj.addOrdering(r, units.RelBefore, triggered, ruleTimerDefault)
	inj.add(r, units.RelTriggers, triggered, ruleTimerDefault)

	if len(r.Values("Timer", "OnCalendar")) > 0 {
		inj.addOrdering(r, units.RelAfter, "time-set.target", ruleTimerDefault)
		inj.addOrdering(r, units.RelAfter, "time-sync.target", ruleTimerDefault)
	}
}

func (inj *injector) injectSlice(r *units.Record) {
	if inj.defaultDependencies(r) {
		inj.conflictsAndBefore(r, "shutdown.target", ruleSliceDefault)
	}
	if parent := sliceParent(r.Prefix()); parent != "" {
		inj.requireAndAfter(r, parent+".slice", ruleSliceDefault)
	}
}

func (inj *injector) injectScope(r *units.Record) {
	if inj.defaultDependencies(r) {
		inj.conflictsAndBefore(r, "shutdown.target", ruleScopeDefault)
	}
}

// injectRequiresMountsFor applies the cross-cutting RequiresMountsFor= rule
// to every unit type, per §4.F's closing paragraph.
func (inj *injector) injectRequiresMountsFor(r *units.Record) {
	for _, v := range r.Values("Unit", "RequiresMountsFor") {
		for _, path := range strings.Fields(v) {
			if mount := inj.longestMountPrefix(path); mount != "" {
				inj.requireAndAfter(r, mount, ruleRequiresMounts)
			}
		}
	}
}

// longestMountPrefix returns the canonical name of the mount unit in ms
// whose Where= directive is the longest matching prefix of path, or "" if
// none covers it.
func (inj *injector) longestMountPrefix(path string) string {
	if path == "" {
		return ""
	}
	best, bestLen := "", -1
	for _, name := range inj.ms.SortedNames() {
		r := inj.ms.Get(name)
		if r == nil || r.Type != units.TypeMount || r.NotFound {
			continue
		}
		where := r.First("Mount", "Where")
		if where == "" || !pathUnder(path, where) {
			continue
		}
		if len(where) > bestLen {
			best, bestLen = name, len(where)
		}
	}
	return best
}

func pathUnder(path, prefix string) bool {
	if path == prefix {
		return true
	}
	p := strings.TrimSuffix(prefix, "/") + "/"
	return strings.HasPrefix(path, p)
}

func parentDir(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	idx := strings.LastIndexByte(strings.TrimSuffix(path, "/"), '/')
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func isNetworkMount(r *units.Record) bool {
	what := r.First("Mount", "What")
	fstype := r.First("Mount", "Type")
	if strings.Contains(what, ":/") {
		return true
	}
	switch strings.ToLower(fstype) {
	case "nfs", "nfs4", "cifs", "smb3", "glusterfs", "ceph":
		return true
	}
	return false
}

// deviceUnitName converts a device node or sysfs path into the canonical
// device-unit name: leading and trailing slashes are dropped, path
// separators become dashes, and each other byte outside [A-Za-z0-9_.-] is
// written as "\x" followed by its lowercase hex value. Dashes in the path
// are kept as they are.
func deviceUnitName(path string) string {
	trimmed := strings.Trim(path, "/")
	var b strings.Builder
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case c == '/':
			b.WriteByte('-')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteByte(c)
		default:
			b.WriteString(`\x`)
			b.WriteString(strconv.FormatUint(uint64(c), 16))
		}
	}
	return b.String() + ".device"
}

// sliceParent returns the parent slice prefix (without ".slice") for a
// dash-hierarchical slice name, e.g. "a-b-c" -> "a-b", "a" -> "-" (root),
// "-" -> "" (root has no parent).
func sliceParent(prefix string) string {
	if prefix == "-" || prefix == "" {
		return ""
	}
	idx := strings.LastIndexByte(prefix, '-')
	if idx < 0 {
		return "-"
	}
	return prefix[:idx]
}
