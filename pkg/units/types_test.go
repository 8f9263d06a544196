package units

import "testing"

func TestParseIdentity(t *testing.T) {
	cases := []struct {
		name         string
		want         Identity
		wantTemplate bool
		wantOK       bool
	}{
		{"sshd.service", Identity{Prefix: "sshd", Type: TypeService}, false, true},
		{"getty@.service", Identity{Prefix: "getty", Type: TypeService}, true, true},
		{"getty@tty1.service", Identity{Prefix: "getty", Instance: "tty1", Type: TypeService}, false, true},
		{"foo@bar@baz.service", Identity{Prefix: "foo", Instance: "bar@baz", Type: TypeService}, false, true},
		{"noextension", Identity{}, false, false},
		{"foo.notaunittype", Identity{}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, isTemplate, ok := ParseIdentity(tc.name)
			if ok != tc.wantOK {
				t.Fatalf("ParseIdentity(%q) ok = %v, want %v", tc.name, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if id != tc.want {
				t.Errorf("ParseIdentity(%q) = %+v, want %+v", tc.name, id, tc.want)
			}
			if isTemplate != tc.wantTemplate {
				t.Errorf("ParseIdentity(%q) isTemplate = %v, want %v", tc.name, isTemplate, tc.wantTemplate)
			}
		})
	}
}

func TestIdentity_CanonicalName_RoundTrip(t *testing.T) {
	names := []string{"sshd.service", "getty@.service", "getty@tty1.service", "foo@bar@baz.service"}
	for _, name := range names {
		id, _, ok := ParseIdentity(name)
		if !ok {
			t.Fatalf("ParseIdentity(%q) failed", name)
		}
		if got := id.CanonicalName(); got != name {
			t.Errorf("CanonicalName() round-trip = %q, want %q", got, name)
		}
	}
}

func TestIdentity_TemplateName(t *testing.T) {
	id, _, ok := ParseIdentity("getty@tty1.service")
	if !ok {
		t.Fatal("ParseIdentity failed")
	}
	if got, want := id.TemplateName(), "getty@.service"; got != want {
		t.Errorf("TemplateName() = %q, want %q", got, want)
	}
}

func TestReverseRelation(t *testing.T) {
	cases := []struct {
		kind   string
		want   string
		wantOK bool
	}{
		{RelWants, RelWantedBy, true},
		{RelRequires, RelRequiredBy, true},
		{RelPartOf, RelConsistsOf, true},
		{RelOnFailure, RelTriggeredByOnFailure, true},
		{RelBefore, "", false},
		{RelConflicts, "", false},
	}
	for _, tc := range cases {
		got, ok := ReverseRelation(tc.kind)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("ReverseRelation(%q) = (%q, %v), want (%q, %v)", tc.kind, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestRecord_AddEdge_Dedups(t *testing.T) {
	r := NewRecord(Identity{Prefix: "foo", Type: TypeService}, false)
	r.AddEdge(Edge{Source: "foo.service", Target: "bar.service", Kind: RelRequires, Origin: "explicit", Section: "Unit"})
	r.AddEdge(Edge{Source: "foo.service", Target: "bar.service", Kind: RelRequires, Origin: "explicit", Section: "Unit"})
	r.AddEdge(Edge{Source: "foo.service", Target: "baz.service", Kind: RelRequires, Origin: "explicit", Section: "Unit"})

	if got := r.Relations[RelRequires]; len(got) != 2 {
		t.Fatalf("Relations[Requires] = %v, want 2 distinct targets", got)
	}
	if len(r.Edges) != 2 {
		t.Errorf("Edges = %v, want 2 entries (repeat dropped)", r.Edges)
	}
}

func TestMasterStruct_EnsureSynthetic(t *testing.T) {
	ms := NewMasterStruct()

	r := ms.EnsureSynthetic("ghost.service")
	if r == nil || !r.NotFound {
		t.Fatalf("EnsureSynthetic(ghost.service) = %+v, want a NotFound record", r)
	}
	if r.Type != TypeService {
		t.Errorf("Type = %q, want service", r.Type)
	}

	again := ms.EnsureSynthetic("ghost.service")
	if again != r {
		t.Error("EnsureSynthetic should return the existing record on a second call, not create a new one")
	}

	bogus := ms.EnsureSynthetic("not-a-unit-name")
	if bogus == nil || !bogus.NotFound || bogus.CanonicalName != "not-a-unit-name" {
		t.Errorf("EnsureSynthetic(unparseable) = %+v, want a bare NotFound record keyed by the raw name", bogus)
	}
}

func TestMasterStruct_SortedNames(t *testing.T) {
	ms := NewMasterStruct()
	ms.EnsureSynthetic("c.service")
	ms.EnsureSynthetic("a.service")
	ms.EnsureSynthetic("b.service")

	got := ms.SortedNames()
	want := []string{"a.service", "b.service", "c.service"}
	if len(got) != len(want) {
		t.Fatalf("SortedNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SortedNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
