// Package depgraph implements the Dependency Resolver (§4.H): a breadth-
// first traversal of the master structure from a chosen root unit, closing
// over requirement and ordering edges to produce the dependency map (DM).
package depgraph

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/initgraph/unittree/pkg/errs"
	"github.com/initgraph/unittree/pkg/units"
)

// Edge is one edge attached to a DM node; Source is implied by the node it
// is attached to, matching the artifact shape of §6.3.
type Edge struct {
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	Origin  string `json:"origin"`
	Section string `json:"section"`
}

// Node is one reached unit's entry in the dependency map.
type Node struct {
	Forward    []Edge `json:"forward"`
	Backward   []Edge `json:"backward"`
	Masked     bool   `json:"masked,omitempty"`
	NotFound   bool   `json:"not_found,omitempty"`
	Depth      int    `json:"depth"`
	ReachedVia *Edge  `json:"reached_via,omitempty"`
}

// DependencyMap is the full DM artifact (§6.3).
type DependencyMap struct {
	Root       string           `json:"root"`
	DepthLimit *int             `json:"depth_limit"`
	Nodes      map[string]*Node `json:"nodes"`
	Meta       units.Meta       `json:"meta"`
}

var pullSet = toSet(units.PullKinds)
var reverseSet = toSet(units.ReverseKinds)
var orderingSet = toSet([]string{units.RelBefore, units.RelAfter})

func toSet(kinds []string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

type frontierEntry struct {
	name  string
	depth int
}

// Resolve builds the DM rooted at rootName, following the alias table to
// its canonical name first. depthLimit is nil for unbounded.
func Resolve(ms *units.MasterStruct, rootName string, depthLimit *int, log logrus.FieldLogger) (*DependencyMap, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	canonical, ok := resolveRootName(ms, rootName)
	if !ok {
		return nil, &errs.RootUnitNotFoundError{Unit: rootName}
	}

	depth := map[string]int{canonical: 0}
	reachedVia := map[string]Edge{}
	queue := []frontierEntry{{canonical, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		r := ms.Get(cur.name)
		if r == nil {
			continue
		}
		if r.Masked {
			log.WithFields(logrus.Fields{"unit": cur.name}).Debug("masked unit: outgoing edges not followed")
			continue
		}
		if depthLimit != nil && cur.depth >= *depthLimit {
			continue
		}

		for _, kind := range units.PullKinds {
			for _, target := range r.Relations[kind] {
				if _, seen := depth[target]; seen {
					continue
				}
				depth[target] = cur.depth + 1
				reachedVia[target] = Edge{Kind: kind, Target: cur.name, Origin: findOrigin(r, kind, target), Section: "Unit"}
				queue = append(queue, frontierEntry{target, cur.depth + 1})
			}
		}
	}

	nodes := make(map[string]*Node, len(depth))
	for name, d := range depth {
		r := ms.Get(name)
		n := &Node{Depth: d, Masked: r.Masked, NotFound: r.NotFound}
		if rv, ok := reachedVia[name]; ok {
			rvCopy := rv
			n.ReachedVia = &rvCopy
		}
		nodes[name] = n
	}

	// Forward/backward edges are built from each unit's Relations table
	// (kind -> ordered target names) rather than its in-memory Edges slice:
	// Relations is what the MS artifact actually serializes (§3.2), so a DM
	// built over an MS rehydrated from a saved JSON artifact (§12's
	// build-deps standalone mode) reaches the same nodes and edges as one
	// built in-process. Edges, when present, only enriches Origin/Section.
	for name := range depth {
		r := ms.Get(name)
		n := nodes[name]

		for _, target := range r.Relations[units.RelConflicts] {
			origin, section := edgeDetail(r, units.RelConflicts, target)
			n.Forward = append(n.Forward, Edge{Kind: units.RelConflicts, Target: target, Origin: origin, Section: section})
		}
		for kind := range pullSet {
			for _, target := range r.Relations[kind] {
				if _, ok := depth[target]; !ok {
					continue
				}
				origin, section := edgeDetail(r, kind, target)
				n.Forward = append(n.Forward, Edge{Kind: kind, Target: target, Origin: origin, Section: section})
			}
		}
		for kind := range orderingSet {
			for _, target := range r.Relations[kind] {
				if _, ok := depth[target]; !ok {
					continue
				}
				origin, section := edgeDetail(r, kind, target)
				n.Forward = append(n.Forward, Edge{Kind: kind, Target: target, Origin: origin, Section: section})
			}
		}
		for kind := range reverseSet {
			for _, target := range r.Relations[kind] {
				if _, ok := depth[target]; !ok {
					continue
				}
				origin, section := edgeDetail(r, kind, target)
				n.Backward = append(n.Backward, Edge{Kind: kind, Target: target, Origin: origin, Section: section})
			}
		}

		sortEdges(n.Forward)
		sortEdges(n.Backward)
	}

	return &DependencyMap{
		Root:       canonical,
		DepthLimit: depthLimit,
		Nodes:      nodes,
		Meta:       units.Meta{Warnings: ms.Meta.Warnings},
	}, nil
}

func sortEdges(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Kind != edges[j].Kind {
			return edges[i].Kind < edges[j].Kind
		}
		return edges[i].Target < edges[j].Target
	})
}

func findOrigin(r *units.Record, kind, target string) string {
	for _, e := range r.Edges {
		if e.Kind == kind && e.Target == target {
			return e.Origin
		}
	}
	return ""
}

// edgeDetail looks up the Origin/Section an in-process Edges slice recorded
// for a (kind, target) pair. When Edges is unavailable (an MS rehydrated
// from a JSON artifact never carries it — Record.Edges is json:"-"), it
// falls back to an empty origin and the conventional "Unit" section, since
// every relation kind (§3.3) is declared there.
func edgeDetail(r *units.Record, kind, target string) (origin, section string) {
	for _, e := range r.Edges {
		if e.Kind == kind && e.Target == target {
			return e.Origin, e.Section
		}
	}
	return "", "Unit"
}

// resolveRootName resolves a requested root unit name through the MS's
// alias facts (§4.H step 1): a direct key hit wins; otherwise every unit's
// aliased_by list is searched for a matching alias basename.
func resolveRootName(ms *units.MasterStruct, name string) (string, bool) {
	if r := ms.Get(name); r != nil {
		return name, true
	}
	for _, canonical := range ms.SortedNames() {
		r := ms.Get(canonical)
		for _, alias := range r.Relations[units.RelAliasedBy] {
			if alias == name {
				return canonical, true
			}
		}
	}
	return "", false
}
