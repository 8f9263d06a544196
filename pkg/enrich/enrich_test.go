package enrich

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/initgraph/unittree/pkg/units"
)

func TestResolveExecutablePath_StripsPrefixAndJoinsRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "usr/bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "usr/bin/agetty"), []byte("bin"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := ResolveExecutablePath(root, "-/usr/bin/agetty tty1")
	want := filepath.Join(root, "usr/bin/agetty")
	if got != want {
		t.Errorf("ResolveExecutablePath() = %q, want %q", got, want)
	}
}

func TestResolveExecutablePath_MissingFileYieldsEmpty(t *testing.T) {
	root := t.TempDir()
	if got := ResolveExecutablePath(root, "/usr/bin/ghost"); got != "" {
		t.Errorf("ResolveExecutablePath() = %q, want empty for missing file", got)
	}
}

func TestHashOnly_Enrich(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "bin")
	if err := os.WriteFile(path, []byte("hello"), 0o755); err != nil {
		t.Fatal(err)
	}
	h := HashOnly{Root: root}
	e := h.Enrich(path)
	if e == nil {
		t.Fatal("Enrich() returned nil for a readable file")
	}
	if e.FileHash == "" {
		t.Errorf("expected a non-empty FileHash")
	}
}

func TestApply_AttachesEnrichmentToExecStartOrigin(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "usr/bin/agetty")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("bin"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := &units.Record{
		Directives: map[string]map[string][]string{
			"Service": {"ExecStart": {"/usr/bin/agetty tty1"}},
		},
		DirectiveOrigins: map[string]units.DirectiveOrigin{
			"Service.ExecStart": {Explicit: true, Source: "unit_file:foo"},
		},
	}

	Apply(HashOnly{Root: root}, root, r)

	origin := r.DirectiveOrigins["Service.ExecStart"]
	if origin.Enrichment == nil {
		t.Fatal("expected Enrichment to be attached")
	}
	if origin.Enrichment.FileHash == "" {
		t.Errorf("expected a non-empty FileHash on the attached enrichment")
	}
}

func TestApply_NilHookIsNoop(t *testing.T) {
	r := &units.Record{
		Directives:       map[string]map[string][]string{"Service": {"ExecStart": {"/bin/true"}}},
		DirectiveOrigins: map[string]units.DirectiveOrigin{"Service.ExecStart": {Explicit: true, Source: "unit_file:foo"}},
	}
	Apply(nil, "/", r)
	if r.DirectiveOrigins["Service.ExecStart"].Enrichment != nil {
		t.Errorf("expected no enrichment with a nil hook")
	}
}
