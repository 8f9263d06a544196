package pathresolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolve_SkipsMissingPaths(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc", "systemd", "system"), 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := Resolve(root)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(paths) != 1 {
		t.Fatalf("Resolve() returned %d paths, want 1: %+v", len(paths), paths)
	}
	want := filepath.Join(root, "etc", "systemd", "system")
	if paths[0].Path != want {
		t.Errorf("Resolve()[0].Path = %q, want %q", paths[0].Path, want)
	}
}

func TestResolve_PrecedenceOrder(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{
		"etc/systemd/system",
		"usr/lib/systemd/system",
	} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := Resolve(root)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Resolve() returned %d paths, want 2", len(paths))
	}
	if paths[0].Precedence != 0 || paths[1].Precedence != 1 {
		t.Errorf("Resolve() precedence = %d,%d, want 0,1", paths[0].Precedence, paths[1].Precedence)
	}
	if !strings.HasPrefix(paths[0].Path, filepath.Join(root, "etc")) {
		t.Errorf("Resolve()[0] = %q, want etc path first", paths[0].Path)
	}
}

func TestResolveAll_MissingPathsNoError(t *testing.T) {
	root := t.TempDir()
	all, err := ResolveAll(root)
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	for _, sp := range all {
		if sp.Exists {
			t.Errorf("expected %q to not exist under empty root", sp.Path)
		}
	}
}
