package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/initgraph/unittree/pkg/pathresolver"
	"github.com/initgraph/unittree/pkg/units"
)

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	mustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func resolveSearchPaths(t *testing.T, root string) []pathresolver.SearchPath {
	t.Helper()
	paths, err := pathresolver.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	return paths
}

func TestWalk_ClassifiesUnitFileAndOverride(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "usr/lib/systemd/system/foo.service"), "[Unit]\n")
	mustWriteFile(t, filepath.Join(root, "etc/systemd/system/foo.service"), "[Unit]\n")

	res, err := Walk(root, resolveSearchPaths(t, root), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	cands := res.UnitFiles["foo.service"]
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	winner, overridden := Winner(cands)
	wantWinner := filepath.Join(root, "etc/systemd/system/foo.service")
	if winner.Path != wantWinner {
		t.Errorf("winner = %q, want %q", winner.Path, wantWinner)
	}
	if len(overridden) != 1 || overridden[0] != filepath.Join(root, "usr/lib/systemd/system/foo.service") {
		t.Errorf("overridden = %v", overridden)
	}
}

func TestWalk_NameAndTypeDropins(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "etc/systemd/system/foo.service.d/10-over.conf"), "[Service]\n")
	mustWriteFile(t, filepath.Join(root, "usr/lib/systemd/system/service.d/00-base.conf"), "[Service]\n")

	res, err := Walk(root, resolveSearchPaths(t, root), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if len(res.NameDropins["foo.service"]) != 1 {
		t.Errorf("NameDropins[foo.service] = %+v, want 1 entry", res.NameDropins["foo.service"])
	}
	if len(res.TypeDropins[units.TypeService]) != 1 {
		t.Errorf("TypeDropins[service] = %+v, want 1 entry", res.TypeDropins[units.TypeService])
	}
}

func TestWalk_WantsDirMembers(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "etc/systemd/system/getty.target.wants/getty@tty1.service"), "")

	res, err := Walk(root, resolveSearchPaths(t, root), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(res.WantsDirs) != 1 {
		t.Fatalf("WantsDirs = %+v, want 1", res.WantsDirs)
	}
	gd := res.WantsDirs[0]
	if gd.Owner != "getty.target" {
		t.Errorf("Owner = %q, want getty.target", gd.Owner)
	}
	if len(gd.Members) != 1 || gd.Members[0] != "getty@tty1.service" {
		t.Errorf("Members = %v", gd.Members)
	}
}

func TestWalk_MaskedSymlinkToDevNull(t *testing.T) {
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "dev"))
	mustMkdirAll(t, filepath.Join(root, "etc/systemd/system"))
	linkPath := filepath.Join(root, "etc/systemd/system/bluetooth.service")
	if err := os.Symlink("/dev/null", linkPath); err != nil {
		t.Fatal(err)
	}

	res, err := Walk(root, resolveSearchPaths(t, root), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	cands := res.Symlinks["bluetooth.service"]
	if len(cands) != 1 {
		t.Fatalf("Symlinks[bluetooth.service] = %+v, want 1", cands)
	}
	if !cands[0].Masked {
		t.Errorf("expected symlink to be classified masked")
	}
}

func TestWalk_DanglingSymlink(t *testing.T) {
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "etc/systemd/system"))
	linkPath := filepath.Join(root, "etc/systemd/system/ghost.service")
	if err := os.Symlink("nowhere.service", linkPath); err != nil {
		t.Fatal(err)
	}

	res, err := Walk(root, resolveSearchPaths(t, root), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	cands := res.Symlinks["ghost.service"]
	if len(cands) != 1 || !cands[0].Dangling {
		t.Fatalf("Symlinks[ghost.service] = %+v, want 1 dangling candidate", cands)
	}
}

func TestWalk_IgnoresUnrecognizedEntries(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "etc/systemd/system/README"), "not a unit")

	res, err := Walk(root, resolveSearchPaths(t, root), nil)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(res.UnitFiles) != 0 || len(res.Symlinks) != 0 {
		t.Errorf("expected no classified entries, got %+v / %+v", res.UnitFiles, res.Symlinks)
	}
}
